package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/happiness-journal/internal/mcp"
)

// RegisterMCP registers the streamable HTTP tool endpoint.  MCPAuth,
// installed globally, has already authenticated the caller.
func RegisterMCP(e *echo.Echo, s *mcp.Server) {
	e.POST("/mcp", s.HandlePost)
	e.GET("/mcp", s.HandleGet)
	e.DELETE("/mcp", s.HandleDelete)
}
