package discordlink

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/happiness-journal/internal/logger"
	"github.com/iliyamo/happiness-journal/internal/oauth"
	"github.com/iliyamo/happiness-journal/internal/utils"
)

// linkIDBytes gives 192-bit link ids.
const linkIDBytes = 24

// Exchanger redeems an authorization code for an access token.
type Exchanger interface {
	Exchange(ctx context.Context, code, verifier, redirectURI string) (string, int, error)
}

// Broker runs the start, callback and poll steps.
type Broker struct {
	Store       Store
	State       *StateSigner
	Exchanger   Exchanger
	BaseURL     string // OAUTH_BASE_URL
	FrontendURL string
	now         func() time.Time
}

func NewBroker(store Store, state *StateSigner, ex Exchanger, baseURL, frontendURL string) *Broker {
	return &Broker{
		Store:       store,
		State:       state,
		Exchanger:   ex,
		BaseURL:     strings.TrimRight(baseURL, "/"),
		FrontendURL: strings.TrimRight(frontendURL, "/"),
		now:         time.Now,
	}
}

// CallbackURL is the redirect_uri used for every link authorization.
func (b *Broker) CallbackURL() string { return b.BaseURL + "/api/discord/link/callback" }

// StartResult is returned to the bot.
type StartResult struct {
	LinkID    string `json:"link_id"`
	LinkURL   string `json:"link_url"`
	ExpiresIn int    `json:"expires_in"`
}

// Start creates a pending session and the authorize URL the bot shows the user.
func (b *Broker) Start(ctx context.Context, discordUserID string) (StartResult, error) {
	discordUserID = strings.TrimSpace(discordUserID)
	if discordUserID == "" {
		return StartResult{}, ErrInvalidRequest
	}
	linkID, err := utils.RandomURLToken(linkIDBytes)
	if err != nil {
		return StartResult{}, err
	}
	verifier, err := oauth.NewVerifier()
	if err != nil {
		return StartResult{}, err
	}
	state, err := b.State.Seal(linkID, discordUserID)
	if err != nil {
		return StartResult{}, err
	}

	s := Session{
		LinkID:        linkID,
		DiscordUserID: discordUserID,
		CodeVerifier:  verifier,
		RedirectURI:   b.CallbackURL(),
		ExpiresAt:     b.now().UTC().Add(SessionTTL),
		Status:        StatusPending,
	}
	if err := b.Store.Create(ctx, s); err != nil {
		return StartResult{}, fmt.Errorf("store link session: %w", err)
	}

	q := url.Values{}
	q.Set("client_id", uuid.NewString())
	q.Set("redirect_uri", s.RedirectURI)
	q.Set("response_type", "code")
	q.Set("state", state)
	q.Set("code_challenge", oauth.S256Challenge(verifier))
	q.Set("code_challenge_method", oauth.MethodS256)

	return StartResult{
		LinkID:    linkID,
		LinkURL:   b.BaseURL + "/authorize?" + q.Encode(),
		ExpiresIn: int(SessionTTL / time.Second),
	}, nil
}

// Callback completes a session from the browser redirect and returns the
// frontend URL to send the user to.  Every failure is reported as
// ErrLinkFailed; the cause is logged.
func (b *Broker) Callback(ctx context.Context, code, state string) (string, error) {
	if err := b.callback(ctx, code, state); err != nil {
		logger.WithContext(ctx).Warn("discord link callback failed", zap.Error(err))
		return "", ErrLinkFailed
	}
	return b.FrontendURL, nil
}

func (b *Broker) callback(ctx context.Context, code, state string) error {
	if code == "" || state == "" {
		return errors.New("missing code or state")
	}
	claims, err := b.State.Open(state)
	if err != nil {
		return err
	}
	s, err := b.Store.Get(ctx, claims.LinkID)
	if err != nil {
		return err
	}
	if s.DiscordUserID != claims.DiscordUserID {
		return errors.New("discord user mismatch")
	}
	if s.Status != StatusPending {
		return ErrNotPending
	}
	// Reserve the session so a concurrent callback for the same state
	// fails here instead of minting a second token.
	if err := b.Store.Update(ctx, s.LinkID, StatusPending, func(s *Session) { s.Status = StatusExchanging }); err != nil {
		return err
	}

	token, expiresIn, err := b.Exchanger.Exchange(ctx, code, s.CodeVerifier, s.RedirectURI)
	if err != nil {
		if uerr := b.Store.Update(ctx, s.LinkID, StatusExchanging, func(s *Session) { s.Status = StatusExpired }); uerr != nil {
			logger.WithContext(ctx).Warn("expire link session", zap.Error(uerr))
		}
		return fmt.Errorf("exchange: %w", err)
	}
	tokenExp := b.now().UTC().Add(time.Duration(expiresIn) * time.Second)
	return b.Store.Update(ctx, s.LinkID, StatusExchanging, func(s *Session) {
		s.Status = StatusComplete
		s.AccessToken = token
		s.TokenExpiresAt = tokenExp
	})
}

// PollResult is returned to the bot.  Token fields are set only when
// Status is complete.
type PollResult struct {
	Status      Status `json:"status"`
	AccessToken string `json:"access_token,omitempty"`
	TokenType   string `json:"token_type,omitempty"`
	ExpiresIn   *int   `json:"expires_in,omitempty"`
}

// Poll reports a pending session or delivers a complete one.  A delivered
// session is gone; later polls return ErrNotFound.
func (b *Broker) Poll(ctx context.Context, linkID string) (PollResult, error) {
	if linkID == "" {
		return PollResult{}, ErrInvalidRequest
	}
	s, err := b.Store.Claim(ctx, linkID)
	if err != nil {
		return PollResult{}, err
	}
	if s.Status != StatusComplete {
		return PollResult{Status: StatusPending}, nil
	}
	left := int(s.TokenExpiresAt.Sub(b.now()) / time.Second)
	if left < 0 {
		left = 0
	}
	return PollResult{
		Status:      StatusComplete,
		AccessToken: s.AccessToken,
		TokenType:   "Bearer",
		ExpiresIn:   &left,
	}, nil
}

// Sweep drops expired sessions from stores that do not expire on their own.
func (b *Broker) Sweep(ctx context.Context) (int, error) { return b.Store.Sweep(ctx) }
