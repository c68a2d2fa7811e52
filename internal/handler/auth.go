package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/happiness-journal/internal/middleware"
	"github.com/iliyamo/happiness-journal/internal/service"
	"github.com/iliyamo/happiness-journal/internal/utils"
)

// AuthHandler serves native login and logout.
type AuthHandler struct {
	Accounts Accounts
	Sessions Sessions
	Keys     KeyMinter
}

func NewAuthHandler(a Accounts, s Sessions, k KeyMinter) *AuthHandler {
	return &AuthHandler{Accounts: a, Sessions: s, Keys: k}
}

type tokenResp struct {
	SessionToken string `json:"session_token"`
}

// Login: POST /api/token with HTTP Basic credentials.  The identifier may
// be an email or a username.  The response carries the session token in
// the body and a fresh Password-Key token in the header.
func (h *AuthHandler) Login(c echo.Context) error {
	identifier, password, ok := c.Request().BasicAuth()
	if !ok || identifier == "" || password == "" {
		c.Response().Header().Set(echo.HeaderWWWAuthenticate, `Basic realm="happiness-journal"`)
		return fail(c, http.StatusUnauthorized, "basic credentials required")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	u, err := h.Accounts.VerifyCredentials(ctx, identifier, password)
	if err != nil {
		return respondError(c, err)
	}
	raw, _, err := h.Sessions.Issue(ctx, u.ID, service.NativeSessionTTL)
	if err != nil {
		return respondError(c, err)
	}
	if err := setPasswordKeyHeader(c, h.Keys, h.Accounts.PasswordKey(password)); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, tokenResp{SessionToken: raw})
}

// Logout: DELETE /api/token revokes the presented bearer token.
func (h *AuthHandler) Logout(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if err := h.Sessions.Revoke(ctx, middleware.SessionToken(c)); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// setPasswordKeyHeader mints a Password-Key token for pwdKey and returns it
// in the response header of the same name.
func setPasswordKeyHeader(c echo.Context, k KeyMinter, pwdKey string) error {
	tok, _, err := k.Mint(pwdKey)
	if err != nil {
		return err
	}
	c.Response().Header().Set(utils.PasswordKeyClaim, tok)
	return nil
}
