package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/happiness-journal/internal/middleware"
	"github.com/iliyamo/happiness-journal/internal/model"
)

// JournalHandler serves the encrypted journal.  Every route sits behind
// RequirePasswordKey; a token carrying the wrong key surfaces as a 400
// when the DEK fails to unwrap.
type JournalHandler struct {
	Journals Journals
}

type journalReq struct {
	Data      string     `json:"data"`
	Timestamp model.Date `json:"timestamp"`
}

// Create: POST /api/journal {data, timestamp}.
func (h *JournalHandler) Create(c echo.Context) error {
	uid, _ := middleware.UserID(c)
	var req journalReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if req.Data == "" {
		return badRequest(c, "data required")
	}
	if req.Timestamp.IsZero() {
		return badRequest(c, "timestamp required (YYYY-MM-DD)")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	j, err := h.Journals.Create(ctx, uid, middleware.PasswordKey(c), req.Data, req.Timestamp)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, j)
}

// List: GET /api/journal?start&end returns decrypted entries.
func (h *JournalHandler) List(c echo.Context) error {
	uid, _ := middleware.UserID(c)
	start, end, err := dateRange(c)
	if err != nil {
		return respondError(c, err)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	list, err := h.Journals.List(ctx, uid, middleware.PasswordKey(c), start, end)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, nonNil(list))
}

// Update: PUT /api/journal/:id {data}.
func (h *JournalHandler) Update(c echo.Context) error {
	uid, _ := middleware.UserID(c)
	id, err := pathID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var req journalReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if req.Data == "" {
		return badRequest(c, "data required")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	j, err := h.Journals.Update(ctx, uid, middleware.PasswordKey(c), id, req.Data)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, j)
}

// Delete: DELETE /api/journal/:id.
func (h *JournalHandler) Delete(c echo.Context) error {
	uid, _ := middleware.UserID(c)
	id, err := pathID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if err := h.Journals.Delete(ctx, uid, id); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
