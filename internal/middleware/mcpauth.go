package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/happiness-journal/internal/logger"
	"github.com/iliyamo/happiness-journal/internal/mcp"
	"github.com/iliyamo/happiness-journal/internal/service"
)

// MCPRealm is the realm advertised in tool-endpoint challenges.
const MCPRealm = "happiness-journal"

// MCPAuth guards every path under /mcp.  Unauthenticated requests get a
// challenge pointing at the protected-resource metadata so that clients
// can discover the authorization server.  Other paths pass through.
func MCPAuth(v TokenVerifier, resourceMetadataURL string) echo.MiddlewareFunc {
	challenge := fmt.Sprintf(`Bearer realm="%s", resource_metadata_uri="%s"`, MCPRealm, resourceMetadataURL)
	deny := func(c echo.Context, msg string) error {
		c.Response().Header().Set(echo.HeaderWWWAuthenticate, challenge)
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Unauthorized", "message": msg})
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !strings.HasPrefix(c.Request().URL.Path, "/mcp") {
				return next(c)
			}
			raw, ok := BearerToken(c.Request())
			if !ok {
				return deny(c, "missing bearer token")
			}
			// Verified against the shared pool; tool calls open their own
			// read transactions later.
			uid, err := v.Verify(c.Request().Context(), raw)
			if errors.Is(err, service.ErrInvalidToken) {
				return deny(c, "invalid token")
			}
			if err != nil {
				logger.WithContext(c.Request().Context()).Error("verify mcp token", zap.Error(err))
				return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Internal Server Error"})
			}
			ctx := setUser(c, uid)
			c.SetRequest(c.Request().WithContext(mcp.WithUserID(ctx, uid)))
			return next(c)
		}
	}
}
