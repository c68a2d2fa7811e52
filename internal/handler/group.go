package handler

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/happiness-journal/internal/database"
	"github.com/iliyamo/happiness-journal/internal/middleware"
	"github.com/iliyamo/happiness-journal/internal/model"
	"github.com/iliyamo/happiness-journal/internal/repository"
)

// GroupHandler serves groups, their membership and invitations.
type GroupHandler struct {
	DB        *sql.DB
	Groups    *repository.GroupRepo
	Users     *repository.UserRepo
	Happiness *repository.HappinessRepo
}

type groupReq struct {
	Name string `json:"name"`
}

type groupResp struct {
	model.Group
	Members []model.GroupMember `json:"members"`
}

// Create: POST /api/group.  The creator becomes the first member.
func (h *GroupHandler) Create(c echo.Context) error {
	uid, _ := middleware.UserID(c)
	var req groupReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || len(req.Name) > 100 {
		return badRequest(c, "name must be 1-100 characters")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	var g model.Group
	err := database.WithTx(ctx, h.DB, func(ctx context.Context) error {
		id, err := h.Groups.Create(ctx, req.Name)
		if err != nil {
			return err
		}
		if err := h.Groups.AddMember(ctx, id, uid); err != nil {
			return err
		}
		g, err = h.Groups.GetByID(ctx, id)
		return err
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, g)
}

// member loads the group named by the path and requires uid to belong
// to it.
func (h *GroupHandler) member(ctx context.Context, c echo.Context, uid uint64) (model.Group, error) {
	gid, err := pathID(c, "id")
	if err != nil {
		return model.Group{}, err
	}
	g, err := h.Groups.GetByID(ctx, gid)
	if err != nil {
		return g, err
	}
	ok, err := h.Groups.IsMember(ctx, gid, uid)
	if err != nil {
		return g, err
	}
	if !ok {
		return g, repository.ErrForbidden
	}
	return g, nil
}

// Get: GET /api/group/:id returns the group and its members.
func (h *GroupHandler) Get(c echo.Context) error {
	uid, _ := middleware.UserID(c)
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	g, err := h.member(ctx, c, uid)
	if err != nil {
		return respondError(c, err)
	}
	members, err := h.Groups.Members(ctx, g.ID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, groupResp{Group: g, Members: members})
}

type inviteReq struct {
	Username string `json:"username"`
}

// Invite: POST /api/group/:id/invite {username}.  Members only.
func (h *GroupHandler) Invite(c echo.Context) error {
	uid, _ := middleware.UserID(c)
	var req inviteReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Username) == "" {
		return badRequest(c, "username required")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	g, err := h.member(ctx, c, uid)
	if err != nil {
		return respondError(c, err)
	}
	gid := g.ID
	invitee, err := h.Users.GetByUsername(ctx, req.Username)
	if err != nil {
		return respondError(c, err)
	}
	already, err := h.Groups.IsMember(ctx, gid, invitee.ID)
	if err != nil {
		return respondError(c, err)
	}
	if already {
		return fail(c, http.StatusConflict, "already a member")
	}
	if err := h.Groups.Invite(ctx, gid, invitee.ID); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return fail(c, http.StatusConflict, "already invited")
		}
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"group_id": gid, "username": invitee.Username})
}

// Accept: POST /api/group/:id/accept turns a pending invitation into a
// membership.
func (h *GroupHandler) Accept(c echo.Context) error {
	uid, _ := middleware.UserID(c)
	gid, err := pathID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	err = database.WithTx(ctx, h.DB, func(ctx context.Context) error {
		if err := h.Groups.TakeInvite(ctx, gid, uid); err != nil {
			return err
		}
		return h.Groups.AddMember(ctx, gid, uid)
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"group_id": gid})
}

// Leave: DELETE /api/group/:id/membership.  The last member leaving
// deletes the group.
func (h *GroupHandler) Leave(c echo.Context) error {
	uid, _ := middleware.UserID(c)
	gid, err := pathID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	err = database.WithTx(ctx, h.DB, func(ctx context.Context) error {
		if err := h.Groups.RemoveMember(ctx, gid, uid); err != nil {
			return err
		}
		n, err := h.Groups.CountMembers(ctx, gid)
		if err != nil {
			return err
		}
		if n == 0 {
			return h.Groups.Delete(ctx, gid)
		}
		return nil
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// GroupHappiness: GET /api/group/:id/happiness?start&end.
func (h *GroupHandler) GroupHappiness(c echo.Context) error {
	uid, _ := middleware.UserID(c)
	start, end, err := dateRange(c)
	if err != nil {
		return respondError(c, err)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	g, err := h.member(ctx, c, uid)
	if err != nil {
		return respondError(c, err)
	}
	list, err := h.Happiness.ListForGroup(ctx, g.ID, start, end)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, nonNil(list))
}

// Mine: GET /api/user/groups.
func (h *GroupHandler) Mine(c echo.Context) error {
	uid, _ := middleware.UserID(c)
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	list, err := h.Groups.ListForUser(ctx, uid)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, nonNil(list))
}
