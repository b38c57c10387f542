package claudeauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"go.uber.org/zap"
)

// Attempt records the outcome of one discovery probe.
type Attempt struct {
	Source  Source
	Outcome string
}

const outcomeNotTried = "not tried"

// DiscoveryResult is the product of one discovery run. When an OAuth file
// source won, Manager is the live TokenManager that must serve all further
// token fetches so refresh keeps working.
type DiscoveryResult struct {
	Credential Credential
	Manager    *TokenManager
	Attempts   []Attempt
}

// DiscoveryOptions configures the credential discovery cascade.
type DiscoveryOptions struct {
	// Explicit, when non-empty, wins unconditionally. ExplicitMethod
	// defaults to MethodAPIKey.
	Explicit       string
	ExplicitMethod AuthMethod

	// CredentialsPath overrides the OAuth credential file location. When
	// empty, the EnvCredentialsPath environment variable is consulted.
	CredentialsPath string
	// DefaultPath is the platform default OAuth file; defaults to
	// DefaultCredentialsPath().
	DefaultPath string

	// APIKeyEnv names the environment variable probed for the API key
	// fallback. Defaults to EnvAPIKey.
	APIKeyEnv string

	TokenEndpoint    string
	ClientID         string
	HTTPClient       *http.Client
	RefreshThreshold Duration

	Logger *zap.Logger
}

// Discovery resolves exactly one credential from the ordered cascade:
// explicit > OAuth file at custom path > OAuth file at default path > API
// key from the environment. OAuth sources only count as found when a valid
// access token can actually be produced; a present-but-unrefreshable file
// falls through to the next source.
type Discovery struct {
	opts       DiscoveryOptions
	logger     *zap.Logger
	newManager func(path string) (*TokenManager, error)
}

// NewDiscovery creates a discovery cascade from opts.
func NewDiscovery(opts DiscoveryOptions) *Discovery {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.DefaultPath == "" {
		opts.DefaultPath = DefaultCredentialsPath()
	}
	if opts.APIKeyEnv == "" {
		opts.APIKeyEnv = EnvAPIKey
	}
	if opts.ExplicitMethod == "" {
		opts.ExplicitMethod = MethodAPIKey
	}

	d := &Discovery{opts: opts, logger: opts.Logger}
	d.newManager = func(path string) (*TokenManager, error) {
		return NewTokenManager(TokenManagerOptions{
			Store: NewFileStore(path),
			Refresher: NewHTTPRefresher(HTTPRefresherOptions{
				TokenEndpoint: opts.TokenEndpoint,
				ClientID:      opts.ClientID,
				HTTPClient:    opts.HTTPClient,
			}),
			Logger:           opts.Logger,
			RefreshThreshold: opts.RefreshThreshold.Duration,
		})
	}
	return d
}

// Discover runs the cascade once and returns the single highest-priority
// available credential. It is idempotent but not cached; caching belongs to
// the AuthManager so callers can force re-discovery. On exhaustion it
// returns a *NoCredentialsError listing every source and its failure.
func (d *Discovery) Discover(ctx context.Context) (*DiscoveryResult, error) {
	attempts := []Attempt{
		{Source: SourceExplicit, Outcome: outcomeNotTried},
		{Source: SourceCustomFile, Outcome: outcomeNotTried},
		{Source: SourceDefaultFile, Outcome: outcomeNotTried},
		{Source: SourceEnvAPIKey, Outcome: outcomeNotTried},
	}

	selected := func(i int, cred Credential, mgr *TokenManager) *DiscoveryResult {
		attempts[i].Outcome = "selected"
		d.logger.Info("credential source selected",
			zap.String("source", string(cred.Source)),
			zap.String("method", string(cred.Method)),
		)
		return &DiscoveryResult{Credential: cred, Manager: mgr, Attempts: attempts}
	}

	// 1. Explicit credential: wins unconditionally, no probing.
	if d.opts.Explicit != "" {
		return selected(0, Credential{
			Value:  d.opts.Explicit,
			Method: d.opts.ExplicitMethod,
			Source: SourceExplicit,
		}, nil), nil
	}
	attempts[0].Outcome = "no explicit credential provided"

	// 2. OAuth file at the custom path (option or environment override).
	customPath := d.opts.CredentialsPath
	if customPath == "" {
		customPath = os.Getenv(EnvCredentialsPath)
	}
	if customPath == "" {
		attempts[1].Outcome = "no custom path configured"
	} else if token, mgr, reason := d.probeOAuthFile(ctx, customPath); token != "" {
		return selected(1, Credential{
			Value:  token,
			Method: MethodOAuth,
			Source: SourceCustomFile,
		}, mgr), nil
	} else {
		attempts[1].Outcome = reason
	}

	// 3. OAuth file at the platform default path.
	if token, mgr, reason := d.probeOAuthFile(ctx, d.opts.DefaultPath); token != "" {
		return selected(2, Credential{
			Value:  token,
			Method: MethodOAuth,
			Source: SourceDefaultFile,
		}, mgr), nil
	} else {
		attempts[2].Outcome = reason
	}

	// 4. API key from the environment.
	if key := os.Getenv(d.opts.APIKeyEnv); key != "" {
		return selected(3, Credential{
			Value:  key,
			Method: MethodAPIKey,
			Source: SourceEnvAPIKey,
		}, nil), nil
	}
	attempts[3].Outcome = fmt.Sprintf("environment variable %s unset", d.opts.APIKeyEnv)

	return &DiscoveryResult{Attempts: attempts}, &NoCredentialsError{Attempts: attempts}
}

// probeOAuthFile attempts to produce a valid access token from path. OAuth
// availability is soft: any failure returns a reason and lets the cascade
// fall through instead of wedging discovery.
func (d *Discovery) probeOAuthFile(ctx context.Context, path string) (string, *TokenManager, string) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil, fmt.Sprintf("file %s absent", path)
		}
		return "", nil, fmt.Sprintf("file %s unreadable: %v", path, err)
	}

	mgr, err := d.newManager(path)
	if err != nil {
		return "", nil, err.Error()
	}

	token, err := mgr.AccessToken(ctx)
	if err != nil {
		d.logger.Warn("oauth source unavailable",
			zap.String("path", path),
			zap.Error(err),
		)
		return "", nil, fmt.Sprintf("file %s: %v", path, err)
	}
	return token, mgr, ""
}
