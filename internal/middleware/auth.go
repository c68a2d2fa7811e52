package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/happiness-journal/internal/logger"
	"github.com/iliyamo/happiness-journal/internal/service"
)

// TokenVerifier resolves a raw session token to its owner.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (uint64, error)
}

// SessionAuth requires a valid session bearer token and stores the user id
// and raw token on the context.
func SessionAuth(v TokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := BearerToken(c.Request())
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Unauthorized", "message": "missing bearer token"})
			}
			uid, err := v.Verify(c.Request().Context(), raw)
			if errors.Is(err, service.ErrInvalidToken) {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Unauthorized", "message": "invalid token"})
			}
			if err != nil {
				logger.WithContext(c.Request().Context()).Error("verify session token", zap.Error(err))
				return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Internal Server Error"})
			}
			setUser(c, uid)
			c.Set(ContextSessionToken, raw)
			return next(c)
		}
	}
}
