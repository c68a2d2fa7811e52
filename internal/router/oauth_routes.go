package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/happiness-journal/internal/middleware"
)

// RegisterOAuth registers the authorization server at the root, where
// MCP clients expect it.  Discovery documents are served through the
// Redis response cache.
func RegisterOAuth(e *echo.Echo, d Deps) {
	limit := middleware.NewTokenBucket(d.RateLimit, d.Redis)
	cache := middleware.NewRedisCache(d.Cache, d.Redis)

	e.GET("/authorize", d.OAuth.AuthorizePage)
	e.POST("/authorize", d.OAuth.Authorize, limit)
	e.POST("/token", d.OAuth.Token, limit)
	e.POST("/register", d.OAuth.Register)

	e.GET("/.well-known/oauth-authorization-server", d.OAuth.AuthorizationServer, cache)
	e.GET("/.well-known/oauth-protected-resource", d.OAuth.ProtectedResource, cache)
}

// RegisterDiscordLink registers the bot-facing link endpoints.  The
// callback is visited by the user's browser and carries no bot secret.
func RegisterDiscordLink(e *echo.Echo, d Deps) {
	bot := middleware.RequireBotSecret(d.BotSecret)

	g := e.Group("/api/discord/link")
	g.POST("/start", d.Link.Start, bot)
	g.GET("/poll", d.Link.Poll, bot)
	g.GET("/callback", d.Link.Callback)
}
