package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/happiness-journal/internal/discordlink"
)

// DiscordLinkHandler lets the bot bind a Discord user to an access token.
// Start and Poll require X-Bot-Secret; Callback is hit by the browser.
type DiscordLinkHandler struct {
	Broker *discordlink.Broker
}

type linkStartReq struct {
	DiscordUserID string `json:"discord_user_id"`
}

// Start: POST /api/discord/link/start.
func (h *DiscordLinkHandler) Start(c echo.Context) error {
	var req linkStartReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	res, err := h.Broker.Start(ctx, req.DiscordUserID)
	if errors.Is(err, discordlink.ErrInvalidRequest) {
		return badRequest(c, "discord_user_id required")
	}
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Callback: GET /api/discord/link/callback?code&state.
func (h *DiscordLinkHandler) Callback(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	target, err := h.Broker.Callback(ctx, c.QueryParam("code"), c.QueryParam("state"))
	if err != nil {
		return badRequest(c, "link failed")
	}
	return c.Redirect(http.StatusFound, target)
}

// Poll: GET /api/discord/link/poll?link_id.  A complete session is
// delivered once; afterwards the id is unknown.
func (h *DiscordLinkHandler) Poll(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	res, err := h.Broker.Poll(ctx, c.QueryParam("link_id"))
	switch {
	case errors.Is(err, discordlink.ErrInvalidRequest):
		return badRequest(c, "link_id required")
	case errors.Is(err, discordlink.ErrNotFound):
		return badRequest(c, "unknown or expired link")
	case err != nil:
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}
