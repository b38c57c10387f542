package claudeauth

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TokenManager owns the lifecycle of one refreshable OAuth credential: lazy
// load from the store, expiry-aware refresh, and persistence of refreshed
// records. It is safe for concurrent use; the whole check-then-refresh
// sequence runs under one lock so at most one refresh is ever in flight per
// instance, and callers arriving mid-refresh block and observe the result.
//
// A failed refresh (or an unusable stored record) makes the manager invalid.
// Invalid is terminal for the instance: only Reload can leave it.
type TokenManager struct {
	store     TokenStore
	refresher Refresher
	logger    *zap.Logger
	threshold time.Duration

	mu       sync.RWMutex
	record   *TokenRecord
	loaded   bool
	invalid  bool
	reason   string // why the manager went invalid
	lastLoad time.Time
}

// TokenManagerOptions configures a TokenManager.
type TokenManagerOptions struct {
	Store     TokenStore
	Refresher Refresher
	Logger    *zap.Logger
	// RefreshThreshold is the margin before actual expiry at which a token
	// is proactively treated as expired. Default 5 minutes.
	RefreshThreshold time.Duration
}

// NewTokenManager creates a token manager. The store and refresher are
// required; nothing is loaded until the first access.
func NewTokenManager(opts TokenManagerOptions) (*TokenManager, error) {
	if opts.Store == nil {
		return nil, &AuthenticationError{Reason: "token store is required"}
	}
	if opts.Refresher == nil {
		return nil, &AuthenticationError{Reason: "token refresher is required"}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.RefreshThreshold <= 0 {
		opts.RefreshThreshold = defaultRefreshThreshold
	}
	return &TokenManager{
		store:     opts.Store,
		refresher: opts.Refresher,
		logger:    opts.Logger,
		threshold: opts.RefreshThreshold,
	}, nil
}

// AccessToken returns a non-expired access token, refreshing first when the
// cached record is within the refresh threshold of expiry. It never returns
// a token known to be expired. The refresh HTTP call runs under the manager
// lock, so concurrent callers coalesce onto a single refresh.
func (m *TokenManager) AccessToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ensureLoadedLocked(ctx); err != nil {
		return "", err
	}

	now := time.Now()
	if !m.expiredLocked(now) {
		return m.record.AccessToken, nil
	}

	return m.refreshLocked(ctx, now)
}

// ForceRefresh refreshes unconditionally, bypassing the expiry check. Used
// for explicit re-authentication flows.
func (m *TokenManager) ForceRefresh(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ensureLoadedLocked(ctx); err != nil {
		return "", err
	}
	return m.refreshLocked(ctx, time.Now())
}

// Valid is a non-mutating peek: it reports whether a loaded record is
// outside the refresh threshold. It never triggers a load or refresh.
func (m *TokenManager) Valid() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.invalid || m.record == nil {
		return false
	}
	return !m.expiredLocked(time.Now())
}

// Expiry returns the cached record's expiry, if one is loaded.
func (m *TokenManager) Expiry() (time.Time, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.record == nil {
		return time.Time{}, false
	}
	return m.record.ExpiresAt, true
}

// Scopes returns the cached record's scopes, if any.
func (m *TokenManager) Scopes() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.record == nil {
		return nil
	}
	return append([]string(nil), m.record.Scopes...)
}

// Reload discards all cached state, including a terminal invalid state, and
// re-reads the store. Useful when credentials were rotated externally.
func (m *TokenManager) Reload(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record = nil
	m.loaded = false
	m.invalid = false
	m.reason = ""

	return m.ensureLoadedLocked(ctx)
}

// ensureLoadedLocked performs the lazy first load and enforces the terminal
// invalid state. Caller must hold the write lock.
func (m *TokenManager) ensureLoadedLocked(ctx context.Context) error {
	if m.invalid {
		return &AuthenticationError{Reason: m.reason}
	}
	if m.loaded {
		return nil
	}

	rec, err := m.store.Load(ctx)
	if err != nil {
		// Load failures are treated as "no record found"; only save
		// failures are hard errors.
		m.logger.Warn("token store load failed", zap.Error(err))
		rec = nil
	}
	m.loaded = true
	m.lastLoad = time.Now()

	if verr := rec.Validate(); verr != nil {
		m.invalid = true
		m.reason = verr.Error()
		return &AuthenticationError{Reason: m.reason, Err: err}
	}

	if !strings.HasPrefix(rec.AccessToken, oauthTokenPrefix) {
		m.logger.Warn("unexpected access token format",
			zap.String("access_token", maskToken(rec.AccessToken)),
			zap.String("expected_prefix", oauthTokenPrefix),
		)
	}

	m.record = rec
	m.logger.Debug("token record loaded",
		zap.Time("expires_at", rec.ExpiresAt),
		zap.Strings("scopes", rec.Scopes),
	)
	return nil
}

// expiredLocked reports whether the record is within the refresh threshold
// of expiry. Already-expired and about-to-expire are the same transition.
func (m *TokenManager) expiredLocked(now time.Time) bool {
	return !now.Before(m.record.ExpiresAt.Add(-m.threshold))
}

// refreshLocked exchanges the refresh token, persists the new record, then
// updates the cache. Persist happens before the cache update so a crash in
// between never loses a token that storage cannot recover. Caller must hold
// the write lock with a usable record loaded.
func (m *TokenManager) refreshLocked(ctx context.Context, now time.Time) (string, error) {
	overdue := now.Sub(m.record.ExpiresAt)

	newRec, err := m.refresher.Refresh(ctx, m.record.RefreshToken)
	if err != nil {
		m.invalid = true
		m.reason = "token refresh failed"
		m.logger.Warn("token refresh failed",
			zap.Duration("overdue", overdue),
			zap.Error(err),
		)
		return "", err
	}

	if newRec.RefreshToken == "" {
		newRec.RefreshToken = m.record.RefreshToken
	}
	if newRec.Scopes == nil {
		newRec.Scopes = m.record.Scopes
	}

	if err := m.store.Save(ctx, newRec); err != nil {
		// The refresh token may have rotated; keep the new record in
		// memory so it is not lost, but surface the persistence failure.
		m.record = newRec
		m.logger.Error("failed to persist refreshed token", zap.Error(err))
		return "", err
	}

	m.record = newRec
	m.logger.Info("token refreshed",
		zap.String("access_token", maskToken(newRec.AccessToken)),
		zap.Time("expires_at", newRec.ExpiresAt),
		zap.Duration("overdue", overdue),
	)
	return newRec.AccessToken, nil
}
