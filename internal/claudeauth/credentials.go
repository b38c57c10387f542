package claudeauth

import (
	"os"
	"path/filepath"
	"time"
)

const (
	// EnvAPIKey is the environment variable holding the API key fallback.
	EnvAPIKey = "ANTHROPIC_API_KEY"
	// EnvCredentialsPath optionally overrides the OAuth credential file path.
	EnvCredentialsPath = "CLAUDE_AUTH_CREDENTIALS"

	anthropicTokenEndpoint = "https://console.anthropic.com/v1/oauth/token"
	anthropicOAuthClientID = "9d1c250a-e61b-44d9-88ed-5944d1962f5e"

	// oauthTokenPrefix is what Anthropic OAuth access tokens start with,
	// as opposed to API keys (sk-ant-api03-). Used for sanity warnings only.
	oauthTokenPrefix = "sk-ant-oat"

	defaultRefreshThreshold             = 5 * time.Minute
	defaultFilePerm         os.FileMode = 0o600
	maxResponseSize                     = 1 << 20 // 1MB limit for OAuth responses
)

// AuthMethod identifies which kind of credential resolution produced.
type AuthMethod string

const (
	MethodOAuth  AuthMethod = "oauth"
	MethodAPIKey AuthMethod = "api_key"
	MethodNone   AuthMethod = "none"
)

// Source identifies where a credential came from.
type Source string

const (
	SourceExplicit    Source = "explicit"
	SourceCustomFile  Source = "custom_credentials_file"
	SourceDefaultFile Source = "default_credentials_file"
	SourceEnvAPIKey   Source = "env_api_key"
)

// Credential is a resolved credential snapshot. It never mutates; callers
// that need refreshed OAuth material resolve again through the AuthManager.
type Credential struct {
	Value  string
	Method AuthMethod
	Source Source
}

// DefaultCredentialsPath returns the platform default OAuth credential file
// location, ~/.claude-auth/credentials.json.
func DefaultCredentialsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "/tmp"
	}
	return filepath.Join(home, ".claude-auth", "credentials.json")
}

// maskToken masks a token for safe logging, showing only a short prefix.
func maskToken(token string) string {
	if len(token) <= 8 {
		return "***"
	}
	return token[:8] + "..."
}
