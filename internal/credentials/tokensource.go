package credentials

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/docrelay/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// DefaultRefreshTimeout bounds one provider refresh and the save that follows it.
const DefaultRefreshTimeout = 30 * time.Second

// Refresher collapses concurrent refreshes of the same session in one [Store]
// into a single provider call.
//
// Share one Refresher per store; token sources built from different Refreshers
// do not coordinate.
type Refresher struct {
	store   Store
	config  *oauth2.Config
	logger  *log.Logger
	timeout time.Duration
	group   singleflight.Group
}

// NewRefresher creates a Refresher for store using the client in config.
func NewRefresher(store Store, config *oauth2.Config, logger *log.Logger) *Refresher {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Refresher{
		store:   store,
		config:  config,
		logger:  shared.WithLogger(logger, "component", "credentials"),
		timeout: DefaultRefreshTimeout,
	}
}

// TokenSource returns a refresh-aware token source for sessionID.
//
// ctx is used for store reads and carries values into the refresh request; it
// must outlive the source.
func (r *Refresher) TokenSource(ctx context.Context, sessionID string) *StoreTokenSource {
	return &StoreTokenSource{ctx: ctx, sessionID: sessionID, refresher: r}
}

// StoreTokenSource is an [oauth2.TokenSource] backed by a [Store].
//
// Every call reads the stored credential, so a logout or re-authorization in
// another request takes effect immediately.
type StoreTokenSource struct {
	ctx       context.Context
	sessionID string
	refresher *Refresher
}

// Token returns a valid access token, refreshing and persisting it when expired.
//
// A shared refresh is detached from the caller that started it, so cancelling
// one request does not fail the others waiting on the same refresh.
func (s *StoreTokenSource) Token() (*oauth2.Token, error) {
	r := s.refresher

	cred, ok, err := r.store.Load(s.ctx, s.sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}
	if !ok {
		return nil, shared.ErrNotAuthenticated
	}

	if tok := cred.Token(); tok.Valid() {
		return tok, nil
	}

	v, err, joined := r.group.Do(s.sessionID, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), r.timeout)
		defer cancel()
		return r.refresh(ctx, s.sessionID)
	})
	if err != nil {
		return nil, err
	}
	if joined {
		r.logger.Debug("joined in-flight refresh")
	}
	return v.(*oauth2.Token), nil
}

// refresh runs inside the per-session critical section.
func (r *Refresher) refresh(ctx context.Context, sessionID string) (*oauth2.Token, error) {
	cred, ok, err := r.store.Load(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}
	if !ok {
		return nil, shared.ErrNotAuthenticated
	}
	if tok := cred.Token(); tok.Valid() {
		return tok, nil
	}

	if cred.RefreshToken == "" {
		r.clear(ctx, sessionID)
		return nil, fmt.Errorf("no refresh token stored: %w", shared.ErrAuthExpired)
	}

	fresh, err := r.config.TokenSource(ctx, &oauth2.Token{RefreshToken: cred.RefreshToken}).Token()
	if err != nil {
		if rejected(err) {
			r.logger.Warn("refresh rejected by provider, clearing credential")
			r.clear(ctx, sessionID)
			return nil, fmt.Errorf("%w: %v", shared.ErrAuthExpired, err)
		}
		return nil, fmt.Errorf("%w: token refresh: %v", shared.ErrRemoteError, err)
	}

	next := cred.Refreshed(fresh)
	if err := r.store.Save(ctx, sessionID, next); err != nil {
		return nil, fmt.Errorf("failed to persist refreshed credential: %w", err)
	}

	r.logger.Info("refreshed access token", "expiry", next.Expiry)
	return next.Token(), nil
}

func (r *Refresher) clear(ctx context.Context, sessionID string) {
	if err := r.store.Clear(ctx, sessionID); err != nil {
		r.logger.Error("failed to clear credential", "error", err)
	}
}

// rejected reports whether the token endpoint refused the refresh token itself.
func rejected(err error) bool {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return false
	}
	if re.Response == nil {
		return true
	}
	return re.Response.StatusCode < http.StatusInternalServerError
}
