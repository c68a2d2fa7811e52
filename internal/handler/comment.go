package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/happiness-journal/internal/middleware"
	"github.com/iliyamo/happiness-journal/internal/model"
	"github.com/iliyamo/happiness-journal/internal/repository"
)

// CommentHandler serves comments on happiness entries.  A user may read
// and write comments on their own entries and on entries of anyone they
// share a group with.
type CommentHandler struct {
	Happiness *repository.HappinessRepo
	Groups    *repository.GroupRepo
	Comments  *repository.CommentRepo
}

// canView returns the entry when uid may see it.
func (h *CommentHandler) canView(ctx context.Context, uid, happinessID uint64) (model.Happiness, error) {
	e, err := h.Happiness.GetByID(ctx, happinessID)
	if err != nil {
		return e, err
	}
	if e.UserID == uid {
		return e, nil
	}
	ok, err := h.Groups.SharesGroup(ctx, uid, e.UserID)
	if err != nil {
		return e, err
	}
	if !ok {
		return e, repository.ErrForbidden
	}
	return e, nil
}

type commentReq struct {
	Text string `json:"text"`
}

// Create: POST /api/happiness/:id/comments.
func (h *CommentHandler) Create(c echo.Context) error {
	uid, _ := middleware.UserID(c)
	hid, err := pathID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var req commentReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" || len(req.Text) > maxCommentLen {
		return badRequest(c, "text must be 1-1000 characters")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if _, err := h.canView(ctx, uid, hid); err != nil {
		return respondError(c, err)
	}
	now := time.Now().UTC()
	id, err := h.Comments.Create(ctx, hid, uid, req.Text, now)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, model.Comment{ID: id, HappinessID: hid, UserID: uid, Text: req.Text, Timestamp: now})
}

// List: GET /api/happiness/:id/comments.
func (h *CommentHandler) List(c echo.Context) error {
	uid, _ := middleware.UserID(c)
	hid, err := pathID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if _, err := h.canView(ctx, uid, hid); err != nil {
		return respondError(c, err)
	}
	list, err := h.Comments.ListForHappiness(ctx, hid)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, nonNil(list))
}

// Delete: DELETE /api/comments/:id.  Only the author may delete.
func (h *CommentHandler) Delete(c echo.Context) error {
	uid, _ := middleware.UserID(c)
	id, err := pathID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	cm, err := h.Comments.GetByID(ctx, id)
	if err != nil {
		return respondError(c, err)
	}
	if cm.UserID != uid {
		return respondError(c, repository.ErrForbidden)
	}
	if err := h.Comments.Delete(ctx, id, uid); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
