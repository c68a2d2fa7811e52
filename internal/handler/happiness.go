package handler

import (
	"context"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/happiness-journal/internal/logger"
	"github.com/iliyamo/happiness-journal/internal/middleware"
	"github.com/iliyamo/happiness-journal/internal/model"
	"github.com/iliyamo/happiness-journal/internal/queue"
	"github.com/iliyamo/happiness-journal/internal/repository"
)

const maxCommentLen = 1000

// HappinessHandler serves the daily scores.
type HappinessHandler struct {
	Happiness *repository.HappinessRepo
	Users     Users
	Queue     queue.Publisher
}

type happinessReq struct {
	Value     *float64   `json:"value"`
	Comment   string     `json:"comment"`
	Timestamp model.Date `json:"timestamp"`
}

// validValue accepts 0..10 in half steps.
func validValue(v float64) bool {
	return v >= 0 && v <= 10 && math.Trunc(v*2) == v*2
}

// Create: POST /api/happiness.  One entry per user and day; a second one
// is a 409.
func (h *HappinessHandler) Create(c echo.Context) error {
	uid, _ := middleware.UserID(c)
	var req happinessReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if req.Value == nil || !validValue(*req.Value) {
		return badRequest(c, "value must be between 0 and 10 in steps of 0.5")
	}
	if req.Timestamp.IsZero() {
		return badRequest(c, "timestamp required (YYYY-MM-DD)")
	}
	if len(req.Comment) > maxCommentLen {
		return badRequest(c, "comment too long")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	e := model.Happiness{UserID: uid, Value: *req.Value, Comment: strings.TrimSpace(req.Comment), Timestamp: req.Timestamp}
	id, err := h.Happiness.Create(ctx, e)
	if err != nil {
		return respondError(c, err)
	}
	e.ID = id
	return c.JSON(http.StatusCreated, e)
}

// List: GET /api/happiness?start&end.
func (h *HappinessHandler) List(c echo.Context) error {
	uid, _ := middleware.UserID(c)
	start, end, err := dateRange(c)
	if err != nil {
		return respondError(c, err)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	list, err := h.Happiness.ListRange(ctx, uid, start, end)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, nonNil(list))
}

type happinessEditReq struct {
	Value   *float64 `json:"value"`
	Comment *string  `json:"comment"`
}

// Update: PUT /api/happiness/:id {value?, comment?}.  Fields left out keep
// their stored value; a body with neither is a 400.
func (h *HappinessHandler) Update(c echo.Context) error {
	uid, _ := middleware.UserID(c)
	id, err := pathID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var req happinessEditReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if req.Value == nil && req.Comment == nil {
		return badRequest(c, "insufficient information on edit")
	}
	if req.Value != nil && !validValue(*req.Value) {
		return badRequest(c, "value must be between 0 and 10 in steps of 0.5")
	}
	if req.Comment != nil && len(*req.Comment) > maxCommentLen {
		return badRequest(c, "comment too long")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	e, err := h.Happiness.GetByID(ctx, id)
	if err != nil {
		return respondError(c, err)
	}
	if e.UserID != uid {
		return respondError(c, repository.ErrForbidden)
	}
	if req.Value != nil {
		e.Value = *req.Value
	}
	if req.Comment != nil {
		e.Comment = strings.TrimSpace(*req.Comment)
	}
	if err := h.Happiness.Update(ctx, e); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, e)
}

// Delete: DELETE /api/happiness/:id.  Comments on the entry cascade.
func (h *HappinessHandler) Delete(c echo.Context) error {
	uid, _ := middleware.UserID(c)
	id, err := pathID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if err := h.Happiness.Delete(ctx, id, uid); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Search: GET /api/happiness/search?text&start&end&low&high.
func (h *HappinessHandler) Search(c echo.Context) error {
	uid, _ := middleware.UserID(c)
	var (
		f   = model.HappinessFilter{Text: strings.TrimSpace(c.QueryParam("text"))}
		err error
	)
	if f.Start, err = optDate(c, "start"); err != nil {
		return respondError(c, err)
	}
	if f.End, err = optDate(c, "end"); err != nil {
		return respondError(c, err)
	}
	if f.Low, err = optFloat(c, "low"); err != nil {
		return respondError(c, err)
	}
	if f.High, err = optFloat(c, "high"); err != nil {
		return respondError(c, err)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	list, err := h.Happiness.Search(ctx, uid, f)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, nonNil(list))
}

// Export: POST /api/happiness/export queues a CSV of every entry to be
// mailed to the user.
func (h *HappinessHandler) Export(c echo.Context) error {
	uid, _ := middleware.UserID(c)
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		return respondError(c, err)
	}
	ev := queue.ExportRequested{UserID: u.ID, Email: u.Email, Username: u.Username, RequestedAt: time.Now().UTC()}
	if err := h.Queue.Publish(ctx, queue.ExportRequestedQueue, ev); err != nil {
		logger.WithContext(ctx).Error("queue export", zap.Error(err))
		return fail(c, http.StatusServiceUnavailable, "export is temporarily unavailable")
	}
	return c.JSON(http.StatusAccepted, echo.Map{"message": "export will be emailed to " + u.Email})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
