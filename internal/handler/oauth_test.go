package handler

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/happiness-journal/internal/oauth"
)

func TestOAuthToken_ErrorsAreNotCached(t *testing.T) {
	h := &OAuthHandler{Server: oauth.NewServer(nil, nil, oauth.NewMemoryCodeStore(), "http://api.test", "http://app.test")}

	form := url.Values{"grant_type": {"client_credentials"}}
	req := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	rec := httptest.NewRecorder()
	require.NoError(t, h.Token(echo.New().NewContext(req, rec)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get(echo.HeaderCacheControl))
	assert.Equal(t, "no-cache", rec.Header().Get("Pragma"))
	assert.Contains(t, rec.Body.String(), `"error":"invalid_request"`)
}

func TestOAuthToken_UnknownCode(t *testing.T) {
	h := &OAuthHandler{Server: oauth.NewServer(nil, nil, oauth.NewMemoryCodeStore(), "http://api.test", "http://app.test")}

	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {"nope"},
		"redirect_uri":  {"https://c.test/cb"},
		"code_verifier": {"v"},
	}
	req := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	rec := httptest.NewRecorder()
	require.NoError(t, h.Token(echo.New().NewContext(req, rec)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error":"invalid_grant"`)
}

func TestOAuthRegister(t *testing.T) {
	h := &OAuthHandler{Server: oauth.NewServer(nil, nil, oauth.NewMemoryCodeStore(), "http://api.test", "http://app.test")}
	c, rec := newCtx(http.MethodPost, "/register", `{"redirect_uris":["http://localhost/cb"]}`, 0)
	require.NoError(t, h.Register(c))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"token_endpoint_auth_method":"none"`)
	assert.Contains(t, rec.Body.String(), `"client_name":"MCP Client"`)
}
