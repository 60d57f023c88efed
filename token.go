package networking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wultra/networking-android/internal/singleflight"
)

// Token is a named credential attached to token-signed requests.
type Token struct {
	Name        string    `json:"name"`
	HeaderKey   string    `json:"headerKey"`
	HeaderValue string    `json:"headerValue"`
	ExpiresAt   time.Time `json:"expiresAt,omitempty"`
}

// Expired reports whether the token is past its expiry. Tokens without an
// expiry never expire.
func (t *Token) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt)
}

// Header returns the header the token is sent as.
func (t *Token) Header() Header {
	return Header{Key: t.HeaderKey, Value: t.HeaderValue}
}

// TokenStore is the local token cache. Implementations must be safe for
// concurrent use and must publish tokens atomically: readers see either the
// previous or the new token, never a partial one.
type TokenStore interface {
	Get(name string) (*Token, bool)
	Set(token *Token)
	Delete(name string)
	Clear()
}

// TokenIssuer acquires a fresh token from the backend.
type TokenIssuer interface {
	RequestToken(ctx context.Context, name string) (*Token, error)
}

// TokenIssuerFunc adapts a function to the TokenIssuer interface.
type TokenIssuerFunc func(ctx context.Context, name string) (*Token, error)

// RequestToken implements TokenIssuer.
func (f TokenIssuerFunc) RequestToken(ctx context.Context, name string) (*Token, error) {
	return f(ctx, name)
}

// TokenProvider resolves a token by name for the dispatcher.
type TokenProvider interface {
	Token(ctx context.Context, name string) (*Token, error)
}

var errNilToken = errors.New("issuer returned no token")

// TokenManager is the default TokenProvider. It serves tokens from a
// TokenStore and acquires missing ones through a TokenIssuer. Concurrent
// requests for the same missing token share one acquisition. Failed
// acquisitions are not cached.
type TokenManager struct {
	store        TokenStore
	issuer       TokenIssuer
	group        *singleflight.Group[*Token]
	logger       Logger
	metrics      *MetricsCollector
	fetchTimeout time.Duration
	now          func() time.Time
}

// TokenManagerOption configures a TokenManager.
type TokenManagerOption func(*TokenManager)

// WithTokenStore replaces the default in-memory store.
func WithTokenStore(store TokenStore) TokenManagerOption {
	return func(m *TokenManager) {
		m.store = store
	}
}

// WithTokenLogger sets the logger for cache and acquisition events.
func WithTokenLogger(logger Logger) TokenManagerOption {
	return func(m *TokenManager) {
		m.logger = logger
	}
}

// WithTokenMetrics records cache hits, misses and acquisitions.
func WithTokenMetrics(collector *MetricsCollector) TokenManagerOption {
	return func(m *TokenManager) {
		m.metrics = collector
	}
}

// WithTokenFetchTimeout bounds a single acquisition. The acquisition is
// shared between callers, so it does not follow any one caller's
// cancellation.
func WithTokenFetchTimeout(d time.Duration) TokenManagerOption {
	return func(m *TokenManager) {
		m.fetchTimeout = d
	}
}

// NewTokenManager creates a TokenManager acquiring tokens from issuer.
func NewTokenManager(issuer TokenIssuer, opts ...TokenManagerOption) *TokenManager {
	m := &TokenManager{
		store:        NewInMemoryTokenStore(),
		issuer:       issuer,
		group:        singleflight.New[*Token](),
		logger:       NopLogger{},
		fetchTimeout: 30 * time.Second,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type tokenResult struct {
	token  *Token
	err    error
	shared bool
}

// Token implements TokenProvider. A cached, unexpired token is returned
// without any network call.
func (m *TokenManager) Token(ctx context.Context, name string) (*Token, error) {
	if tok, ok := m.lookup(name); ok {
		m.metrics.RecordTokenCacheHit(name)
		m.logger.Debug("Token cache hit", "token", name)
		return tok, nil
	}
	m.metrics.RecordTokenCacheMiss(name)
	m.logger.Debug("Token cache miss", "token", name)

	fetchCtx := context.WithoutCancel(ctx)
	ch := make(chan tokenResult, 1)
	go func() {
		tok, err, shared := m.group.Do(name, func() (*Token, error) {
			return m.acquire(fetchCtx, name)
		})
		ch <- tokenResult{token: tok, err: err, shared: shared}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		if r.shared {
			m.logger.Debug("Token acquisition shared", "token", name)
		}
		return r.token, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Invalidate drops a cached token, e.g. after the backend rejected it.
// Callers arriving afterwards do not join an acquisition started earlier.
func (m *TokenManager) Invalidate(name string) {
	m.group.Forget(name)
	m.store.Delete(name)
	m.logger.Debug("Token invalidated", "token", name)
}

// InvalidateAll drops every cached token.
func (m *TokenManager) InvalidateAll() {
	m.store.Clear()
}

func (m *TokenManager) lookup(name string) (*Token, bool) {
	tok, ok := m.store.Get(name)
	if !ok || tok == nil || tok.Expired(m.now()) {
		return nil, false
	}
	return tok, true
}

func (m *TokenManager) acquire(ctx context.Context, name string) (*Token, error) {
	// A fetch for this name may have completed between the miss and now.
	if tok, ok := m.lookup(name); ok {
		return tok, nil
	}
	if m.issuer == nil {
		return nil, ErrNoTokenProvider
	}

	if m.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.fetchTimeout)
		defer cancel()
	}

	start := m.now()
	tok, err := m.issuer.RequestToken(ctx, name)
	if err == nil && tok == nil {
		err = errNilToken
	}
	if err != nil {
		m.metrics.RecordTokenAcquisition(name, false, time.Since(start))
		m.logger.Warn("Token acquisition failed", "token", name, "error", err)
		return nil, fmt.Errorf("acquire token %q: %w", name, err)
	}
	m.metrics.RecordTokenAcquisition(name, true, time.Since(start))

	if tok.Name != name {
		cp := *tok
		cp.Name = name
		tok = &cp
	}
	m.store.Set(tok)
	m.logger.Debug("Token acquired", "token", name, "expiresAt", tok.ExpiresAt)
	return tok, nil
}
