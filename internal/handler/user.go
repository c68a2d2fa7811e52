package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/happiness-journal/internal/logger"
	"github.com/iliyamo/happiness-journal/internal/mailer"
	"github.com/iliyamo/happiness-journal/internal/middleware"
	"github.com/iliyamo/happiness-journal/internal/model"
	"github.com/iliyamo/happiness-journal/internal/queue"
	"github.com/iliyamo/happiness-journal/internal/repository"
	"github.com/iliyamo/happiness-journal/internal/storage"
	"github.com/iliyamo/happiness-journal/internal/utils"
)

// ResetTokenTTL is the lifetime of an emailed password reset link.
const ResetTokenTTL = 30 * time.Minute

// maxSettingValue matches the settings.setting_value column width.
const maxSettingValue = 1024

// SettingStore persists per-user preferences.
type SettingStore interface {
	List(ctx context.Context, userID uint64) ([]model.Setting, error)
	Upsert(ctx context.Context, userID uint64, key, value string) error
}

// UserHandler serves account management under /api/user.
type UserHandler struct {
	Accounts    Accounts
	Users       Users
	Keys        KeyMinter
	Settings    SettingStore
	Pictures    storage.PictureStore // nil when no bucket is configured
	Queue       queue.Publisher
	Secret      string // signs reset tokens
	FrontendURL string
}

type registerReq struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type userResp struct {
	ID          uint64    `json:"id"`
	Email       string    `json:"email"`
	Username    string    `json:"username"`
	Pfp         *string   `json:"pfp"`
	HasRecovery bool      `json:"has_recovery_phrase"`
	CreatedAt   time.Time `json:"created_at"`
}

func toUserResp(u model.User) userResp {
	r := userResp{
		ID:          u.ID,
		Email:       u.Email,
		Username:    u.Username,
		HasRecovery: u.HasRecovery(),
		CreatedAt:   u.CreatedAt,
	}
	if u.Pfp.Valid {
		r.Pfp = &u.Pfp.String
	}
	return r
}

// Register: POST /api/user.
func (h *UserHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	u, err := h.Accounts.Register(ctx, req.Email, req.Username, req.Password)
	if err != nil {
		return respondError(c, err)
	}
	logger.WithContext(ctx).Info("user registered", zap.Uint64("user_id", u.ID))
	return c.JSON(http.StatusCreated, toUserResp(u))
}

// Info: GET /api/user/info.
func (h *UserHandler) Info(c echo.Context) error {
	uid, _ := middleware.UserID(c)
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, toUserResp(u))
}

type updateInfoReq struct {
	DataType string `json:"data_type"`
	Data     string `json:"data"`
}

// UpdateInfo: PUT /api/user/info {data_type: password|username|email, data}.
// A password change needs the current Password-Key token; the DEK is
// re-wrapped and a new token is returned in the response header.
func (h *UserHandler) UpdateInfo(c echo.Context) error {
	uid, _ := middleware.UserID(c)
	var req updateInfoReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	switch strings.ToLower(req.DataType) {
	case "password":
		tok := c.Request().Header.Get(utils.PasswordKeyClaim)
		if tok == "" {
			return fail(c, http.StatusUnauthorized, "missing Password-Key")
		}
		oldKey, err := h.Keys.Verify(tok)
		if err != nil {
			return fail(c, http.StatusUnauthorized, "invalid Password-Key")
		}
		newKey, err := h.Accounts.ChangePassword(ctx, uid, oldKey, req.Data)
		if err != nil {
			return respondError(c, err)
		}
		if err := setPasswordKeyHeader(c, h.Keys, newKey); err != nil {
			return respondError(c, err)
		}
	case "username":
		if err := h.Accounts.ChangeUsername(ctx, uid, req.Data); err != nil {
			return respondError(c, err)
		}
	case "email":
		if err := h.Accounts.ChangeEmail(ctx, uid, req.Data); err != nil {
			return respondError(c, err)
		}
	default:
		return badRequest(c, "data_type must be password, username or email")
	}
	return c.JSON(http.StatusOK, echo.Map{"message": req.DataType + " updated"})
}

// Delete: DELETE /api/user.  Owned rows cascade; the stored picture is
// removed on a best-effort basis.
func (h *UserHandler) Delete(c echo.Context) error {
	uid, _ := middleware.UserID(c)
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		return respondError(c, err)
	}
	if err := h.Accounts.Delete(ctx, uid); err != nil {
		return respondError(c, err)
	}
	if u.Pfp.Valid && h.Pictures != nil {
		if err := h.Pictures.DeleteByURL(ctx, u.Pfp.String); err != nil {
			logger.WithContext(ctx).Warn("delete profile picture", zap.Error(err))
		}
	}
	return c.NoContent(http.StatusNoContent)
}

type passwordReq struct {
	Password string `json:"password"`
}

// PasswordKey: POST /api/user/password-key re-derives the password key
// for a logged-in user and returns it as a Password-Key token.
func (h *UserHandler) PasswordKey(c echo.Context) error {
	uid, _ := middleware.UserID(c)
	var req passwordReq
	if err := c.Bind(&req); err != nil || req.Password == "" {
		return badRequest(c, "password required")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		return respondError(c, err)
	}
	if !utils.VerifyPassword(u.PasswordHash, req.Password) {
		return fail(c, http.StatusUnauthorized, "Invalid credentials")
	}
	tok, exp, err := h.Keys.Mint(h.Accounts.PasswordKey(req.Password))
	if err != nil {
		return respondError(c, err)
	}
	c.Response().Header().Set(utils.PasswordKeyClaim, tok)
	return c.JSON(http.StatusOK, echo.Map{"expires_at": exp})
}

type phraseReq struct {
	Phrase string `json:"phrase"`
}

// RecoveryPhrase: POST /api/user/recovery-phrase stores a copy of the DEK
// wrapped by the phrase.  Requires a Password-Key token.
func (h *UserHandler) RecoveryPhrase(c echo.Context) error {
	uid, _ := middleware.UserID(c)
	var req phraseReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if err := h.Accounts.AddRecoveryPhrase(ctx, uid, middleware.PasswordKey(c), req.Phrase); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "recovery phrase set"})
}

type resetRequestReq struct {
	Email string `json:"email"`
}

// ResetRequest: POST /api/user/reset-request.  Always 202 so the response
// does not reveal whether the address is registered.
func (h *UserHandler) ResetRequest(c echo.Context) error {
	var req resetRequestReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	h.sendResetLink(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	return c.JSON(http.StatusAccepted, echo.Map{"message": "if the address is registered, a reset link was sent"})
}

// sendResetLink queues the reset mail.  Failures are only logged.
func (h *UserHandler) sendResetLink(ctx context.Context, email string) {
	log := logger.WithContext(ctx)
	u, err := h.Users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return
	}
	if err != nil {
		log.Error("reset request lookup", zap.Error(err))
		return
	}
	tok, err := utils.NewResetToken(h.Secret, u.ID, ResetTokenTTL)
	if err != nil {
		log.Error("sign reset token", zap.Error(err))
		return
	}
	msg := mailer.Message{
		To:      u.Email,
		Subject: "Reset your password",
		Body: "Hi " + u.Username + ",\n\nUse the link below within 30 minutes to choose a new password:\n\n" +
			h.FrontendURL + "/reset-password?token=" + tok + "\n\nIf you did not ask for this, ignore this email.\n",
	}
	if err := h.Queue.Publish(ctx, queue.EmailSendQueue, queue.EmailSend{Message: msg}); err != nil {
		log.Error("queue reset email", zap.Uint64("user_id", u.ID), zap.Error(err))
	}
}

type resetReq struct {
	Token          string `json:"token"`
	Password       string `json:"password"`
	RecoveryPhrase string `json:"recovery_phrase"`
}

// Reset: POST /api/user/reset sets a new password from an emailed token.
// Without a working recovery phrase the encrypted journal is dropped.
func (h *UserHandler) Reset(c echo.Context) error {
	var req resetReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	uid, err := utils.ParseResetToken(h.Secret, req.Token)
	if err != nil {
		return respondError(c, err)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	preserved, err := h.Accounts.ResetPassword(ctx, uid, req.Password, req.RecoveryPhrase)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"data_preserved": preserved})
}

// Pfp: PUT /api/user/pfp uploads a profile picture from the multipart
// field "file".
func (h *UserHandler) Pfp(c echo.Context) error {
	uid, _ := middleware.UserID(c)
	if h.Pictures == nil {
		return fail(c, http.StatusServiceUnavailable, "picture uploads are disabled")
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return badRequest(c, "file required")
	}
	if fh.Size > storage.MaxPictureBytes {
		return fail(c, http.StatusRequestEntityTooLarge, storage.ErrTooLarge.Error())
	}
	f, err := fh.Open()
	if err != nil {
		return badRequest(c, "unreadable file")
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, storage.MaxPictureBytes+1))
	if err != nil {
		return badRequest(c, "unreadable file")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 30*time.Second)
	defer cancel()

	prev, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		return respondError(c, err)
	}
	url, err := h.Pictures.PutPicture(ctx, uid, data)
	switch {
	case errors.Is(err, storage.ErrTooLarge):
		return fail(c, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, storage.ErrUnsupportedType):
		return fail(c, http.StatusUnsupportedMediaType, err.Error())
	case err != nil:
		return respondError(c, err)
	}
	if err := h.Users.UpdatePfp(ctx, uid, url); err != nil {
		return respondError(c, err)
	}
	if prev.Pfp.Valid && prev.Pfp.String != url {
		if err := h.Pictures.DeleteByURL(ctx, prev.Pfp.String); err != nil {
			logger.WithContext(ctx).Warn("delete previous picture", zap.Error(err))
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"pfp": url})
}

// ListSettings: GET /api/user/settings.
func (h *UserHandler) ListSettings(c echo.Context) error {
	uid, _ := middleware.UserID(c)
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	list, err := h.Settings.List(ctx, uid)
	if err != nil {
		return respondError(c, err)
	}
	if list == nil {
		list = []model.Setting{}
	}
	return c.JSON(http.StatusOK, list)
}

// PutSetting: PUT /api/user/settings {key, value}.
func (h *UserHandler) PutSetting(c echo.Context) error {
	uid, _ := middleware.UserID(c)
	var req model.Setting
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	req.Key = strings.TrimSpace(req.Key)
	if req.Key == "" || len(req.Key) > 64 {
		return badRequest(c, "key must be 1-64 characters")
	}
	if len(req.Value) > maxSettingValue {
		return badRequest(c, "value too long")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if err := h.Settings.Upsert(ctx, uid, req.Key, req.Value); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, req)
}
