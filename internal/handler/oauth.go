package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/happiness-journal/internal/oauth"
)

// OAuthHandler exposes the authorization server.
type OAuthHandler struct {
	Server *oauth.Server
}

// AuthorizePage: GET /authorize sends the browser to the frontend login
// page with the client's parameters.
func (h *OAuthHandler) AuthorizePage(c echo.Context) error {
	var p oauth.AuthorizeParams
	if err := (&echo.DefaultBinder{}).BindQueryParams(c, &p); err != nil {
		return badRequest(c, "invalid query")
	}
	target, err := h.Server.LoginRedirect(p)
	if err != nil {
		return oauthError(c, err)
	}
	return c.Redirect(http.StatusFound, target)
}

// Authorize: POST /authorize checks credentials and answers with the
// client redirect carrying the code.
func (h *OAuthHandler) Authorize(c echo.Context) error {
	var req oauth.AuthorizeRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	redirect, err := h.Server.Authorize(ctx, req)
	if errors.Is(err, oauth.ErrUnauthorized) {
		return fail(c, http.StatusUnauthorized, "Invalid credentials")
	}
	if err != nil {
		return oauthError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"redirect_url": redirect})
}

// Token: POST /token (form encoded).
func (h *OAuthHandler) Token(c echo.Context) error {
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	c.Response().Header().Set("Pragma", "no-cache")

	var req oauth.TokenRequest
	if err := (&echo.DefaultBinder{}).BindBody(c, &req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": oauth.CodeInvalidRequest, "error_description": "malformed body"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	resp, err := h.Server.Token(ctx, req)
	if err != nil {
		return oauthError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// Register: POST /register issues a public client id.
func (h *OAuthHandler) Register(c echo.Context) error {
	var req oauth.ClientRegistrationRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	return c.JSON(http.StatusCreated, h.Server.RegisterClient(req))
}

// AuthorizationServer: GET /.well-known/oauth-authorization-server.
func (h *OAuthHandler) AuthorizationServer(c echo.Context) error {
	return c.JSON(http.StatusOK, h.Server.AuthorizationServerMetadata())
}

// ProtectedResource: GET /.well-known/oauth-protected-resource.
func (h *OAuthHandler) ProtectedResource(c echo.Context) error {
	return c.JSON(http.StatusOK, h.Server.ProtectedResourceMetadata())
}

// oauthError renders *oauth.Error in the RFC 6749 shape.
func oauthError(c echo.Context, err error) error {
	var oe *oauth.Error
	if errors.As(err, &oe) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": oe.Code, "error_description": oe.Description})
	}
	return respondError(c, err)
}
