package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/happiness-journal/internal/logger"
)

// Keys under which the auth middlewares store request identity.
const (
	ContextUserID       = "user_id"
	ContextSessionToken = "session_token"
	ContextPasswordKey  = "password_key"
)

// UserID returns the id stored by SessionAuth or MCPAuth.
func UserID(c echo.Context) (uint64, bool) {
	id, ok := c.Get(ContextUserID).(uint64)
	return id, ok && id != 0
}

// SessionToken returns the raw bearer token accepted by SessionAuth.
func SessionToken(c echo.Context) string {
	s, _ := c.Get(ContextSessionToken).(string)
	return s
}

// PasswordKey returns the key unsealed by RequirePasswordKey.
func PasswordKey(c echo.Context) string {
	s, _ := c.Get(ContextPasswordKey).(string)
	return s
}

// BearerToken extracts the token from "Authorization: Bearer <token>".
func BearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get(echo.HeaderAuthorization)
	if len(auth) < 7 || !strings.EqualFold(auth[:7], "Bearer ") {
		return "", false
	}
	tok := strings.TrimSpace(auth[7:])
	return tok, tok != ""
}

// setUser records uid on the echo context and on the request context so
// that logger.WithContext picks it up.
func setUser(c echo.Context, uid uint64) context.Context {
	c.Set(ContextUserID, uid)
	ctx := context.WithValue(c.Request().Context(), logger.UserIDKey, uid)
	c.SetRequest(c.Request().WithContext(ctx))
	return ctx
}

// userKey is the user part of rate-limit keys.
func userKey(c echo.Context) string {
	if id, ok := UserID(c); ok {
		return strconv.FormatUint(id, 10)
	}
	return "anon"
}
