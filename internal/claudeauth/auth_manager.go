package claudeauth

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// AuthManager is the single object application code holds: discovery run
// once and cached, with every OAuth credential fetch re-delegated to the
// live TokenManager so long-lived holders keep seeing refreshed tokens.
//
// If the resolved OAuth source later goes permanently invalid, Credential
// fails without silently re-running the cascade; the caller decides when to
// InvalidateAndRediscover (typically after a downstream 401).
type AuthManager struct {
	discovery *Discovery
	logger    *zap.Logger

	mu      sync.Mutex
	result  *DiscoveryResult
	watcher *FileWatcher
}

// NewAuthManager creates the façade over a discovery cascade. Nothing is
// probed until the first call.
func NewAuthManager(discovery *Discovery, logger *zap.Logger) *AuthManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthManager{discovery: discovery, logger: logger}
}

// NewAuthManagerFromConfig builds the discovery cascade from cfg and, when
// cfg.WatchCredentials is set, watches the credential file so externally
// rotated credentials are picked up without a restart. A watcher that cannot
// start (for example, the credential directory does not exist yet) is logged
// and skipped; resolution itself is unaffected.
func NewAuthManagerFromConfig(cfg Config, logger *zap.Logger) *AuthManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := NewAuthManager(NewDiscovery(cfg.DiscoveryOptions(logger)), logger)
	if cfg.WatchCredentials {
		if err := a.WatchCredentialFile(cfg.CredentialsPath); err != nil {
			logger.Warn("credential watcher unavailable",
				zap.String("path", cfg.CredentialsPath),
				zap.Error(err),
			)
		}
	}
	return a
}

// WatchCredentialFile starts watching path for external rotation. When the
// file changes, the cached OAuth token manager is reloaded; if there is no
// live manager (or the reload fails), the discovery cache is invalidated so
// the next resolution re-probes every source. Long-running holders should
// call StopWatching on shutdown.
func (a *AuthManager) WatchCredentialFile(path string) error {
	w := NewFileWatcher(FileWatcherOptions{
		Path:     path,
		OnChange: a.credentialFileChanged,
		Logger:   a.logger,
	})
	if err := w.Start(); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.watcher != nil {
		a.watcher.Stop()
	}
	a.watcher = w
	return nil
}

// StopWatching halts credential file watching, if active.
func (a *AuthManager) StopWatching() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.watcher != nil {
		a.watcher.Stop()
		a.watcher = nil
	}
}

func (a *AuthManager) credentialFileChanged() {
	a.mu.Lock()
	res := a.result
	a.mu.Unlock()

	if res != nil && res.Manager != nil {
		if err := res.Manager.Reload(context.Background()); err == nil {
			a.logger.Info("credentials reloaded after external rotation")
			return
		} else {
			a.logger.Warn("reload after rotation failed, re-running discovery", zap.Error(err))
		}
	}
	a.InvalidateAndRediscover()
}

// Credential resolves the current credential. The discovery cascade runs at
// most once until invalidated; OAuth-sourced results go through the token
// manager on every call, so refresh keeps working transparently.
func (a *AuthManager) Credential(ctx context.Context) (Credential, error) {
	res, err := a.resolve(ctx)
	if err != nil {
		return Credential{}, err
	}

	if res.Manager == nil {
		return res.Credential, nil
	}

	// Fetch outside the façade lock; the manager serializes its own
	// refresh and may block on the refresh HTTP call.
	token, err := res.Manager.AccessToken(ctx)
	if err != nil {
		return Credential{}, err
	}

	cred := res.Credential
	cred.Value = token
	return cred, nil
}

// HasCredential reports whether a credential can currently be resolved.
func (a *AuthManager) HasCredential(ctx context.Context) bool {
	_, err := a.Credential(ctx)
	return err == nil
}

// Method reports which kind of credential resolution produced, or
// MethodNone when discovery exhausted every source.
func (a *AuthManager) Method(ctx context.Context) AuthMethod {
	res, err := a.resolve(ctx)
	if err != nil {
		return MethodNone
	}
	return res.Credential.Method
}

// Attempts returns the per-source outcomes of the cached discovery run, for
// diagnostics. It resolves first if nothing is cached yet.
func (a *AuthManager) Attempts(ctx context.Context) []Attempt {
	res, err := a.resolve(ctx)
	if err != nil {
		var noCreds *NoCredentialsError
		if errors.As(err, &noCreds) {
			return noCreds.Attempts
		}
		return nil
	}
	return res.Attempts
}

// InvalidateAndRediscover clears the cached discovery result. The next
// resolution re-probes every source, picking up externally rotated
// credentials or falling through past a permanently failed OAuth source.
func (a *AuthManager) InvalidateAndRediscover() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.result != nil {
		a.logger.Info("discovery cache invalidated",
			zap.String("previous_source", string(a.result.Credential.Source)),
		)
	}
	a.result = nil
}

// resolve returns the cached discovery result, running the cascade if
// nothing is cached. The first discovery is deliberately serialized under
// the façade lock, OAuth probe refreshes included, so concurrent first
// callers cannot race duplicate cascades. Steady-state token fetches happen
// in Credential, outside this lock.
func (a *AuthManager) resolve(ctx context.Context) (*DiscoveryResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.result != nil {
		return a.result, nil
	}

	res, err := a.discovery.Discover(ctx)
	if err != nil {
		return nil, err
	}
	a.result = res
	return res, nil
}
