package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const (
	defaultTokenTTL     = 7 * 24 * time.Hour
	defaultTokenMargin  = 5 * time.Minute
	defaultTokenTimeout = 30 * time.Second
)

// AccessToken is a bearer token for the issuance API.
type AccessToken struct {
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Usable reports whether the token can still be used at now, keeping
// margin in reserve before expiry.
func (t AccessToken) Usable(now time.Time, margin time.Duration) bool {
	return t.Value != "" && now.Add(margin).Before(t.ExpiresAt)
}

// TokenStore shares a token between processes. Load returns false when no
// token is stored.
type TokenStore interface {
	Load(ctx context.Context) (AccessToken, bool, error)
	Save(ctx context.Context, tok AccessToken) error
	Clear(ctx context.Context) error
}

// TokenFetcher requests a new token from the token endpoint.
type TokenFetcher func(ctx context.Context) (AccessToken, error)

type TokenSourceConfig struct {
	Store        TokenStore
	Margin       time.Duration
	FetchTimeout time.Duration
	Now          func() time.Time
	Metrics      *Metrics
	Logger       logrus.FieldLogger
}

// TokenSource caches the process-wide access token.
//
// Refreshes are single-flight: when the cached token is missing or inside
// the safety margin, concurrent callers share one fetch. The fetch itself is
// detached from any single caller's context so that one caller giving up
// does not fail the others; each caller still stops waiting when its own
// context ends.
type TokenSource struct {
	fetch   TokenFetcher
	store   TokenStore
	margin  time.Duration
	timeout time.Duration
	now     func() time.Time
	metrics *Metrics
	log     logrus.FieldLogger

	mu     sync.Mutex
	cached AccessToken

	group singleflight.Group
}

func NewTokenSource(fetch TokenFetcher, cfg TokenSourceConfig) *TokenSource {
	s := &TokenSource{
		fetch:   fetch,
		store:   cfg.Store,
		margin:  cfg.Margin,
		timeout: cfg.FetchTimeout,
		now:     cfg.Now,
		metrics: cfg.Metrics,
		log:     cfg.Logger,
	}
	if s.margin <= 0 {
		s.margin = defaultTokenMargin
	}
	if s.timeout <= 0 {
		s.timeout = defaultTokenTimeout
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.log == nil {
		s.log = logrus.StandardLogger()
	}
	s.log = s.log.WithField("component", "gateway.token")
	return s
}

// Token returns a usable token value, fetching one if needed.
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	if tok, ok := s.cachedToken(); ok {
		return tok.Value, nil
	}

	ch := s.group.DoChan("token", func() (any, error) {
		return s.refresh(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return "", &Error{Kind: KindTokenFetchFailed, Message: "waiting for access token", Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(AccessToken).Value, nil
	}
}

// Invalidate drops the cached token, e.g. after the API rejected it.
func (s *TokenSource) Invalidate(ctx context.Context) {
	s.mu.Lock()
	s.cached = AccessToken{}
	s.mu.Unlock()
	if s.store != nil {
		if err := s.store.Clear(ctx); err != nil {
			s.log.WithError(err).Warn("clearing shared token")
		}
	}
}

func (s *TokenSource) cachedToken() (AccessToken, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cached, s.cached.Usable(s.now(), s.margin)
}

func (s *TokenSource) setCached(tok AccessToken) {
	s.mu.Lock()
	s.cached = tok
	s.mu.Unlock()
}

func (s *TokenSource) refresh(ctx context.Context) (AccessToken, error) {
	// another flight may have finished between the cache check and DoChan
	if tok, ok := s.cachedToken(); ok {
		return tok, nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if s.store != nil {
		tok, ok, err := s.store.Load(ctx)
		switch {
		case err != nil:
			s.log.WithError(err).Warn("loading shared token")
		case ok && tok.Usable(s.now(), s.margin):
			s.setCached(tok)
			s.metrics.IncrementTokenFetch("shared")
			return tok, nil
		}
	}

	tok, err := s.fetch(ctx)
	if err != nil {
		s.metrics.IncrementTokenFetch("error")
		return AccessToken{}, err
	}
	s.metrics.IncrementTokenFetch("fetched")
	s.setCached(tok)
	s.log.WithField("expires_at", tok.ExpiresAt).Info("access token refreshed")

	if s.store != nil {
		if err := s.store.Save(ctx, tok); err != nil {
			s.log.WithError(err).Warn("saving shared token")
		}
	}
	return tok, nil
}

// MemoryTokenStore is an in-process TokenStore, mostly useful for tests and
// for sharing one token between several Clients.
type MemoryTokenStore struct {
	mu  sync.RWMutex
	tok *AccessToken
}

func NewMemoryTokenStore() *MemoryTokenStore { return &MemoryTokenStore{} }

func (m *MemoryTokenStore) Load(_ context.Context) (AccessToken, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.tok == nil {
		return AccessToken{}, false, nil
	}
	return *m.tok, true, nil
}

func (m *MemoryTokenStore) Save(_ context.Context, tok AccessToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tok = &tok
	return nil
}

func (m *MemoryTokenStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tok = nil
	return nil
}
