package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/happiness-journal/internal/middleware"
)

// RegisterAPI registers the native API under /api.  Registration, login
// and the reset flow are public; everything else needs a session bearer
// token, and the journal additionally a Password-Key token.
func RegisterAPI(e *echo.Echo, d Deps) {
	limit := middleware.NewTokenBucket(d.RateLimit, d.Redis)
	auth := middleware.SessionAuth(d.Verifier)
	pkt := middleware.RequirePasswordKey(d.PasswordKeys)

	api := e.Group("/api")
	api.POST("/user", d.User.Register)
	api.POST("/token", d.Auth.Login, limit)
	api.POST("/user/reset-request", d.User.ResetRequest, limit)
	api.POST("/user/reset", d.User.Reset, limit)

	g := api.Group("", auth)
	g.DELETE("/token", d.Auth.Logout)

	g.GET("/user/info", d.User.Info)
	g.PUT("/user/info", d.User.UpdateInfo)
	g.DELETE("/user", d.User.Delete)
	g.POST("/user/password-key", d.User.PasswordKey, limit)
	g.POST("/user/recovery-phrase", d.User.RecoveryPhrase, pkt)
	g.PUT("/user/pfp", d.User.Pfp)
	g.GET("/user/settings", d.User.ListSettings)
	g.PUT("/user/settings", d.User.PutSetting)
	g.GET("/user/groups", d.Group.Mine)

	g.POST("/happiness", d.Happiness.Create)
	g.GET("/happiness", d.Happiness.List)
	g.GET("/happiness/search", d.Happiness.Search)
	g.POST("/happiness/export", d.Happiness.Export)
	g.PUT("/happiness/:id", d.Happiness.Update)
	g.DELETE("/happiness/:id", d.Happiness.Delete)
	g.POST("/happiness/:id/comments", d.Comment.Create)
	g.GET("/happiness/:id/comments", d.Comment.List)
	g.DELETE("/comments/:id", d.Comment.Delete)

	j := g.Group("/journal", pkt)
	j.POST("", d.Journal.Create)
	j.GET("", d.Journal.List)
	j.PUT("/:id", d.Journal.Update)
	j.DELETE("/:id", d.Journal.Delete)

	g.POST("/group", d.Group.Create)
	g.GET("/group/:id", d.Group.Get)
	g.POST("/group/:id/invite", d.Group.Invite)
	g.POST("/group/:id/accept", d.Group.Accept)
	g.DELETE("/group/:id/membership", d.Group.Leave)
	g.GET("/group/:id/happiness", d.Group.GroupHappiness)
}
