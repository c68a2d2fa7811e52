package handler

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/happiness-journal/internal/model"
	"github.com/iliyamo/happiness-journal/internal/queue"
	"github.com/iliyamo/happiness-journal/internal/utils"
)

// stubAccounts implements only what the tests below reach.
type stubAccounts struct {
	Accounts
	resetUID uint64
}

func (stubAccounts) PasswordKey(password string) string { return "key:" + password }

func (s *stubAccounts) ResetPassword(_ context.Context, uid uint64, _, phrase string) (bool, error) {
	s.resetUID = uid
	return phrase != "", nil
}

func newUserHandler(t *testing.T) (*UserHandler, *fakePublisher) {
	t.Helper()
	hash, err := utils.HashPassword("p", bcrypt.MinCost)
	require.NoError(t, err)
	pub := &fakePublisher{}
	return &UserHandler{
		Accounts:    &stubAccounts{},
		Users:       &fakeUsers{byID: map[uint64]model.User{1: {ID: 1, Email: "t@x.io", Username: "t", PasswordHash: hash}}},
		Keys:        utils.NewPasswordKeyBroker("secret", time.Hour),
		Queue:       pub,
		Secret:      "secret",
		FrontendURL: "http://app.test",
	}, pub
}

func TestResetRequest_AlwaysAccepted(t *testing.T) {
	h, pub := newUserHandler(t)

	c, rec := newCtx(http.MethodPost, "/api/user/reset-request", `{"email":"nobody@x.io"}`, 0)
	require.NoError(t, h.ResetRequest(c))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, pub.sent)

	c, rec2 := newCtx(http.MethodPost, "/api/user/reset-request", `{"email":" T@x.io "}`, 0)
	require.NoError(t, h.ResetRequest(c))
	assert.Equal(t, http.StatusAccepted, rec2.Code)
	assert.Equal(t, rec.Body.String(), rec2.Body.String())

	require.Len(t, pub.sent, 1)
	assert.Equal(t, queue.EmailSendQueue, pub.sent[0].queue)
	ev, ok := pub.sent[0].payload.(queue.EmailSend)
	require.True(t, ok)
	assert.Equal(t, "t@x.io", ev.Message.To)

	i := strings.Index(ev.Message.Body, "http://app.test/reset-password?token=")
	require.GreaterOrEqual(t, i, 0)
	tok := strings.Fields(ev.Message.Body[i+len("http://app.test/reset-password?token="):])[0]
	uid, err := utils.ParseResetToken("secret", tok)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), uid)
}

func TestResetRequest_QueueFailureStillAccepted(t *testing.T) {
	h, pub := newUserHandler(t)
	pub.err = assert.AnError
	c, rec := newCtx(http.MethodPost, "/api/user/reset-request", `{"email":"t@x.io"}`, 0)
	require.NoError(t, h.ResetRequest(c))
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestReset(t *testing.T) {
	h, _ := newUserHandler(t)
	tok, err := utils.NewResetToken("secret", 1, ResetTokenTTL)
	require.NoError(t, err)

	c, rec := newCtx(http.MethodPost, "/api/user/reset", `{"token":"`+tok+`","password":"n","recovery_phrase":"words"}`, 0)
	require.NoError(t, h.Reset(c))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data_preserved":true}`, rec.Body.String())
	assert.Equal(t, uint64(1), h.Accounts.(*stubAccounts).resetUID)

	c, rec = newCtx(http.MethodPost, "/api/user/reset", `{"token":"garbage","password":"n"}`, 0)
	require.NoError(t, h.Reset(c))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPasswordKey(t *testing.T) {
	h, _ := newUserHandler(t)

	c, rec := newCtx(http.MethodPost, "/api/user/password-key", `{"password":"wrong"}`, 1)
	require.NoError(t, h.PasswordKey(c))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, rec.Header().Get(utils.PasswordKeyClaim))

	c, rec = newCtx(http.MethodPost, "/api/user/password-key", `{}`, 1)
	require.NoError(t, h.PasswordKey(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	c, rec = newCtx(http.MethodPost, "/api/user/password-key", `{"password":"p"}`, 1)
	require.NoError(t, h.PasswordKey(c))
	require.Equal(t, http.StatusOK, rec.Code)
	key, err := h.Keys.Verify(rec.Header().Get(utils.PasswordKeyClaim))
	require.NoError(t, err)
	assert.Equal(t, "key:p", key)
}

func TestPfp_DisabledWithoutStore(t *testing.T) {
	h, _ := newUserHandler(t)
	c, rec := newCtx(http.MethodPut, "/api/user/pfp", "", 1)
	require.NoError(t, h.Pfp(c))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

type fakeSettings struct{ saved map[string]string }

func (f *fakeSettings) List(context.Context, uint64) ([]model.Setting, error) { return nil, nil }

func (f *fakeSettings) Upsert(_ context.Context, _ uint64, key, value string) error {
	if f.saved == nil {
		f.saved = map[string]string{}
	}
	f.saved[key] = value
	return nil
}

func TestPutSetting_ValueLengthBoundary(t *testing.T) {
	h, _ := newUserHandler(t)
	store := &fakeSettings{}
	h.Settings = store

	atLimit := strings.Repeat("a", maxSettingValue)
	c, rec := newCtx(http.MethodPut, "/api/user/settings", `{"key":"theme","value":"`+atLimit+`"}`, 1)
	require.NoError(t, h.PutSetting(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, store.saved["theme"], maxSettingValue)

	over := atLimit + "a"
	c, rec = newCtx(http.MethodPut, "/api/user/settings", `{"key":"font","value":"`+over+`"}`, 1)
	require.NoError(t, h.PutSetting(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotContains(t, store.saved, "font")
}

func TestListSettings_EmptyIsArray(t *testing.T) {
	h, _ := newUserHandler(t)
	h.Settings = &fakeSettings{}

	c, rec := newCtx(http.MethodGet, "/api/user/settings", "", 1)
	require.NoError(t, h.ListSettings(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}
