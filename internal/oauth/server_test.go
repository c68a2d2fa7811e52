package oauth

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/happiness-journal/internal/model"
	"github.com/iliyamo/happiness-journal/internal/service"
)

type fakeCreds struct {
	user model.User
	pw   string
}

func (f fakeCreds) VerifyCredentials(_ context.Context, id, pw string) (model.User, error) {
	if (id == f.user.Username || id == f.user.Email) && pw == f.pw {
		return f.user, nil
	}
	return model.User{}, service.ErrInvalidCredentials
}

type fakeIssuer struct {
	issued []uint64
	ttl    time.Duration
}

func (f *fakeIssuer) Issue(_ context.Context, uid uint64, ttl time.Duration) (string, model.SessionToken, error) {
	f.issued = append(f.issued, uid)
	f.ttl = ttl
	return "tok-for-user", model.SessionToken{UserID: uid}, nil
}

func newTestServer() (*Server, *fakeIssuer) {
	iss := &fakeIssuer{}
	creds := fakeCreds{user: model.User{ID: 9, Username: "alice", Email: "a@x.io"}, pw: "pw"}
	return NewServer(creds, iss, NewMemoryCodeStore(), "https://api.example/", "https://app.example"), iss
}

func authorize(t *testing.T, s *Server, challenge, method string) string {
	t.Helper()
	loc, err := s.Authorize(context.Background(), AuthorizeRequest{
		Username: "alice", Password: "pw",
		AuthorizeParams: AuthorizeParams{
			ClientID: "c1", RedirectURI: "http://localhost:3000/cb?x=1", ResponseType: "code",
			State: "st8", CodeChallenge: challenge, CodeChallengeMethod: method,
		},
	})
	require.NoError(t, err)
	u, err := url.Parse(loc)
	require.NoError(t, err)
	assert.Equal(t, "localhost:3000", u.Host)
	assert.Equal(t, "/cb", u.Path)
	assert.Equal(t, "1", u.Query().Get("x"))
	assert.Equal(t, "st8", u.Query().Get("state"))
	require.NotEmpty(t, u.Query().Get("code"))
	return u.Query().Get("code")
}

func TestServer_FullFlowS256(t *testing.T) {
	s, iss := newTestServer()
	v, err := NewVerifier()
	require.NoError(t, err)
	code := authorize(t, s, S256Challenge(v), MethodS256)

	resp, err := s.Token(context.Background(), TokenRequest{
		GrantType: "authorization_code", Code: code,
		RedirectURI: "http://localhost:3000/cb?x=1", CodeVerifier: v,
	})
	require.NoError(t, err)
	assert.Equal(t, "tok-for-user", resp.AccessToken)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, 86400, resp.ExpiresIn)
	assert.Equal(t, []uint64{9}, iss.issued)
	assert.Equal(t, 24*time.Hour, iss.ttl)

	_, err = s.Token(context.Background(), TokenRequest{
		GrantType: "authorization_code", Code: code,
		RedirectURI: "http://localhost:3000/cb?x=1", CodeVerifier: v,
	})
	assert.True(t, IsGrantError(err, CodeInvalidGrant))
	assert.Len(t, iss.issued, 1)
}

func TestServer_ChallengeWithoutMethodIsPlain(t *testing.T) {
	s, _ := newTestServer()
	code := authorize(t, s, "plain-challenge", "")

	_, _, err := s.Exchange(context.Background(), code, "plain-challenge", "http://localhost:3000/cb?x=1")
	assert.NoError(t, err)
}

func TestServer_AuthorizeRejects(t *testing.T) {
	s, _ := newTestServer()
	ctx := context.Background()

	_, err := s.Authorize(ctx, AuthorizeRequest{Username: "alice", Password: "nope",
		AuthorizeParams: AuthorizeParams{RedirectURI: "https://c/cb"}})
	assert.True(t, errors.Is(err, ErrUnauthorized))

	_, err = s.Authorize(ctx, AuthorizeRequest{Username: "alice", Password: "pw",
		AuthorizeParams: AuthorizeParams{RedirectURI: "not a url"}})
	assert.True(t, IsGrantError(err, CodeInvalidRequest))

	_, err = s.Authorize(ctx, AuthorizeRequest{Username: "alice", Password: "pw",
		AuthorizeParams: AuthorizeParams{RedirectURI: "https://c/cb", CodeChallenge: "x", CodeChallengeMethod: "S512"}})
	assert.True(t, IsGrantError(err, CodeInvalidRequest))
}

func TestServer_TokenValidation(t *testing.T) {
	s, _ := newTestServer()
	ctx := context.Background()

	_, err := s.Token(ctx, TokenRequest{GrantType: "password", Code: "c", RedirectURI: "https://c/cb"})
	assert.True(t, IsGrantError(err, CodeInvalidRequest))

	_, err = s.Token(ctx, TokenRequest{GrantType: "authorization_code", RedirectURI: "https://c/cb"})
	assert.True(t, IsGrantError(err, CodeInvalidRequest))

	_, err = s.Token(ctx, TokenRequest{GrantType: "authorization_code", Code: "missing", RedirectURI: "https://c/cb"})
	assert.True(t, IsGrantError(err, CodeInvalidGrant))
}

func TestServer_LoginRedirect(t *testing.T) {
	s, _ := newTestServer()
	loc, err := s.LoginRedirect(AuthorizeParams{
		ClientID: "c1", RedirectURI: "https://c/cb", ResponseType: "code", State: "s",
	})
	require.NoError(t, err)
	u, err := url.Parse(loc)
	require.NoError(t, err)
	assert.Equal(t, "app.example", u.Host)
	assert.Equal(t, "/oauth/authorize", u.Path)
	assert.Equal(t, "https://c/cb", u.Query().Get("redirect_uri"))
	assert.Equal(t, "s", u.Query().Get("state"))

	_, err = s.LoginRedirect(AuthorizeParams{RedirectURI: "https://c/cb", ResponseType: "token"})
	assert.True(t, IsGrantError(err, CodeInvalidRequest))
}

func TestServer_RegisterClient(t *testing.T) {
	s, _ := newTestServer()
	reg := s.RegisterClient(ClientRegistrationRequest{})
	assert.Equal(t, "MCP Client", reg.ClientName)
	assert.NotNil(t, reg.RedirectURIs)
	assert.Equal(t, "none", reg.TokenEndpointAuthMethod)
	assert.Len(t, reg.ClientID, 36)

	other := s.RegisterClient(ClientRegistrationRequest{ClientName: "Claude", RedirectURIs: []string{"https://c/cb"}})
	assert.Equal(t, "Claude", other.ClientName)
	assert.NotEqual(t, reg.ClientID, other.ClientID)
}

func TestServer_Metadata(t *testing.T) {
	s, _ := newTestServer()
	md := s.AuthorizationServerMetadata()
	assert.Equal(t, "https://api.example", md["issuer"])
	assert.Equal(t, "https://api.example/token", md["token_endpoint"])
	assert.Equal(t, []string{MethodS256, MethodPlain}, md["code_challenge_methods_supported"])

	pr := s.ProtectedResourceMetadata()
	assert.Equal(t, "https://api.example/mcp", pr["resource"])
	assert.Equal(t, "https://api.example/.well-known/oauth-protected-resource", s.ProtectedResourceMetadataURL())
}
