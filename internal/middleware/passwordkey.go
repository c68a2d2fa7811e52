package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/happiness-journal/internal/utils"
)

// RequirePasswordKey unseals the Password-Key header.  A missing, forged
// or expired token is a 401; whether the key inside is the right one is
// only known once the handler tries to unwrap the user's key.
func RequirePasswordKey(b *utils.PasswordKeyBroker) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tok := c.Request().Header.Get(utils.PasswordKeyClaim)
			if tok == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Unauthorized", "message": "missing Password-Key"})
			}
			key, err := b.Verify(tok)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Unauthorized", "message": "invalid Password-Key"})
			}
			c.Set(ContextPasswordKey, key)
			return next(c)
		}
	}
}
