// Package oauth implements the OAuth 2.1 authorization-code flow with PKCE
// on top of the native session tokens.  Clients register dynamically and
// without secrets; a code is bound to its redirect_uri and, when present,
// to a PKCE challenge.
package oauth

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/happiness-journal/internal/model"
	"github.com/iliyamo/happiness-journal/internal/service"
)

// CredentialVerifier checks a username or email and password.
type CredentialVerifier interface {
	VerifyCredentials(ctx context.Context, identifier, password string) (model.User, error)
}

// TokenIssuer mints session tokens.
type TokenIssuer interface {
	Issue(ctx context.Context, userID uint64, ttl time.Duration) (string, model.SessionToken, error)
}

// Server holds the collaborators of the OAuth endpoints.
type Server struct {
	Credentials CredentialVerifier
	Tokens      TokenIssuer
	Codes       CodeStore
	Issuer      string        // OAUTH_BASE_URL without trailing slash
	FrontendURL string        // login page host
	TokenTTL    time.Duration // lifetime of issued access tokens
}

func NewServer(creds CredentialVerifier, tokens TokenIssuer, codes CodeStore, issuer, frontendURL string) *Server {
	return &Server{
		Credentials: creds,
		Tokens:      tokens,
		Codes:       codes,
		Issuer:      strings.TrimRight(issuer, "/"),
		FrontendURL: strings.TrimRight(frontendURL, "/"),
		TokenTTL:    service.OAuthSessionTTL,
	}
}

// AuthorizeParams are the query parameters of GET /authorize, echoed into
// the JSON body of POST /authorize.
type AuthorizeParams struct {
	ClientID            string `json:"client_id" query:"client_id" form:"client_id"`
	RedirectURI         string `json:"redirect_uri" query:"redirect_uri" form:"redirect_uri"`
	ResponseType        string `json:"response_type" query:"response_type" form:"response_type"`
	State               string `json:"state" query:"state" form:"state"`
	CodeChallenge       string `json:"code_challenge" query:"code_challenge" form:"code_challenge"`
	CodeChallengeMethod string `json:"code_challenge_method" query:"code_challenge_method" form:"code_challenge_method"`
}

func (p AuthorizeParams) values() url.Values {
	v := url.Values{}
	set := func(k, val string) {
		if val != "" {
			v.Set(k, val)
		}
	}
	set("client_id", p.ClientID)
	set("redirect_uri", p.RedirectURI)
	set("response_type", p.ResponseType)
	set("state", p.State)
	set("code_challenge", p.CodeChallenge)
	set("code_challenge_method", p.CodeChallengeMethod)
	return v
}

// LoginRedirect returns the frontend login URL carrying the client's
// parameters.
func (s *Server) LoginRedirect(p AuthorizeParams) (string, error) {
	if p.ResponseType != "code" {
		return "", invalidRequest("unsupported response_type")
	}
	if p.RedirectURI == "" {
		return "", invalidRequest("redirect_uri required")
	}
	if !ValidMethod(p.CodeChallengeMethod) {
		return "", invalidRequest("unsupported code_challenge_method")
	}
	return s.FrontendURL + "/oauth/authorize?" + p.values().Encode(), nil
}

// AuthorizeRequest is the body of POST /authorize.
type AuthorizeRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	AuthorizeParams
}

// Authorize verifies the user's credentials, stages a code and returns the
// client redirect carrying code and state.
func (s *Server) Authorize(ctx context.Context, req AuthorizeRequest) (string, error) {
	target, err := parseRedirectURI(req.RedirectURI)
	if err != nil {
		return "", err
	}
	if !ValidMethod(req.CodeChallengeMethod) {
		return "", invalidRequest("unsupported code_challenge_method")
	}

	u, err := s.Credentials.VerifyCredentials(ctx, req.Username, req.Password)
	if errors.Is(err, service.ErrInvalidCredentials) {
		return "", ErrUnauthorized
	}
	if err != nil {
		return "", err
	}

	method := req.CodeChallengeMethod
	if req.CodeChallenge != "" && method == "" {
		method = MethodPlain
	}
	code, err := s.Codes.Issue(ctx, AuthCode{
		UserID:              u.ID,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: method,
		ClientID:            req.ClientID,
		RedirectURI:         req.RedirectURI,
	})
	if err != nil {
		return "", err
	}

	q := target.Query()
	q.Set("code", code)
	if req.State != "" {
		q.Set("state", req.State)
	}
	target.RawQuery = q.Encode()
	return target.String(), nil
}

// TokenRequest is the form body of POST /token.
type TokenRequest struct {
	GrantType    string `form:"grant_type"`
	Code         string `form:"code"`
	RedirectURI  string `form:"redirect_uri"`
	CodeVerifier string `form:"code_verifier"`
	ClientID     string `form:"client_id"`
}

// TokenResponse is the JSON body of a successful POST /token.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// Token handles the authorization_code grant.
func (s *Server) Token(ctx context.Context, req TokenRequest) (TokenResponse, error) {
	if req.GrantType != "authorization_code" {
		return TokenResponse{}, invalidRequest("unsupported grant_type")
	}
	if req.Code == "" || req.RedirectURI == "" {
		return TokenResponse{}, invalidRequest("code and redirect_uri required")
	}
	tok, expiresIn, err := s.Exchange(ctx, req.Code, req.CodeVerifier, req.RedirectURI)
	if err != nil {
		return TokenResponse{}, err
	}
	return TokenResponse{AccessToken: tok, TokenType: "Bearer", ExpiresIn: expiresIn}, nil
}

// Exchange consumes a code and issues a session token for its user.  It is
// shared by the token endpoint and the Discord link callback.
func (s *Server) Exchange(ctx context.Context, code, verifier, redirectURI string) (string, int, error) {
	uid, err := s.Codes.Consume(ctx, code, verifier, redirectURI)
	if err != nil {
		return "", 0, err
	}
	raw, _, err := s.Tokens.Issue(ctx, uid, s.TokenTTL)
	if err != nil {
		return "", 0, err
	}
	return raw, int(s.TokenTTL / time.Second), nil
}

// ClientRegistrationRequest is the body of POST /register.
type ClientRegistrationRequest struct {
	ClientName   string   `json:"client_name"`
	RedirectURIs []string `json:"redirect_uris"`
}

// ClientRegistration is the 201 body of POST /register.
type ClientRegistration struct {
	ClientID                string   `json:"client_id"`
	ClientName              string   `json:"client_name"`
	RedirectURIs            []string `json:"redirect_uris"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
}

// RegisterClient issues a client id.  Nothing is persisted: public clients
// are bound by PKCE and redirect_uri, not by their id.
func (s *Server) RegisterClient(req ClientRegistrationRequest) ClientRegistration {
	name := strings.TrimSpace(req.ClientName)
	if name == "" {
		name = "MCP Client"
	}
	uris := req.RedirectURIs
	if uris == nil {
		uris = []string{}
	}
	return ClientRegistration{
		ClientID:                uuid.NewString(),
		ClientName:              name,
		RedirectURIs:            uris,
		TokenEndpointAuthMethod: "none",
	}
}

// AuthorizationServerMetadata is the RFC 8414 discovery document.
func (s *Server) AuthorizationServerMetadata() map[string]any {
	return map[string]any{
		"issuer":                                s.Issuer,
		"authorization_endpoint":                s.Issuer + "/authorize",
		"token_endpoint":                        s.Issuer + "/token",
		"registration_endpoint":                 s.Issuer + "/register",
		"grant_types_supported":                 []string{"authorization_code"},
		"response_types_supported":              []string{"code"},
		"code_challenge_methods_supported":      []string{MethodS256, MethodPlain},
		"token_endpoint_auth_methods_supported": []string{"none"},
	}
}

// ProtectedResourceMetadata is the RFC 9728 document for the tool endpoint.
func (s *Server) ProtectedResourceMetadata() map[string]any {
	return map[string]any{
		"resource":              s.Issuer + "/mcp",
		"authorization_servers": []string{s.Issuer},
	}
}

// ProtectedResourceMetadataURL is advertised in WWW-Authenticate headers.
func (s *Server) ProtectedResourceMetadataURL() string {
	return s.Issuer + "/.well-known/oauth-protected-resource"
}

func parseRedirectURI(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, invalidRequest("redirect_uri required")
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" || u.Fragment != "" {
		return nil, invalidRequest("invalid redirect_uri")
	}
	return u, nil
}
