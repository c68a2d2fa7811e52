// Package router wires handlers and middleware onto an echo instance.
package router

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/happiness-journal/internal/config"
	"github.com/iliyamo/happiness-journal/internal/handler"
	"github.com/iliyamo/happiness-journal/internal/mcp"
	"github.com/iliyamo/happiness-journal/internal/middleware"
	"github.com/iliyamo/happiness-journal/internal/utils"
)

// Deps is everything the route table needs.  Redis may be nil, which turns
// the rate limiter and the discovery cache into pass-throughs.
type Deps struct {
	FrontendURL string
	BotSecret   string

	Verifier     middleware.TokenVerifier
	PasswordKeys *utils.PasswordKeyBroker

	Auth      *handler.AuthHandler
	User      *handler.UserHandler
	Happiness *handler.HappinessHandler
	Journal   *handler.JournalHandler
	Group     *handler.GroupHandler
	Comment   *handler.CommentHandler
	OAuth     *handler.OAuthHandler
	Link      *handler.DiscordLinkHandler
	MCP       *mcp.Server

	Redis     *redis.Client
	RateLimit config.RateLimitConfig
	Cache     config.CacheConfig
}

// New builds the echo instance with every route registered.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handler.HTTPErrorHandler

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestContext())
	e.Use(middleware.RequestLogger())
	e.Use(echomw.BodyLimit("6M"))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: corsOrigins(d.FrontendURL),
		AllowHeaders: []string{
			echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization,
			utils.PasswordKeyClaim, middleware.BotSecretHeader, mcp.SessionHeader,
		},
		ExposeHeaders: []string{utils.PasswordKeyClaim, mcp.SessionHeader, echo.HeaderWWWAuthenticate},
	}))
	// Guards /mcp only; every other path passes through untouched.
	e.Use(middleware.MCPAuth(d.Verifier, d.OAuth.Server.ProtectedResourceMetadataURL()))

	RegisterRoutes(e)
	RegisterAPI(e, d)
	RegisterOAuth(e, d)
	RegisterDiscordLink(e, d)
	RegisterMCP(e, d.MCP)
	return e
}

// RegisterRoutes registers unauthenticated infrastructure routes.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

func corsOrigins(frontend string) []string {
	if frontend == "" {
		return []string{"*"}
	}
	return []string{frontend}
}
