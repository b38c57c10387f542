package claudeauth

import (
	"errors"
	"fmt"
	"strings"
)

// Anthropic credential prefixes. Every credential is its 13-character prefix
// followed by 95 characters of URL-safe key material, 108 characters total.
const (
	apiKeyPrefix       = "sk-ant-api03-"
	accessTokenPrefix  = "sk-ant-oat01-"
	refreshTokenPrefix = "sk-ant-ort01-"

	credentialLength = 108
)

// ValidateAPIKey checks that key is a well-formed Anthropic API key. Only the
// format is checked; a well-formed key may still be revoked.
func ValidateAPIKey(key string) error {
	return validateFormat(key, "API key", apiKeyPrefix)
}

// ValidateAccessToken checks that token is a well-formed OAuth access token.
func ValidateAccessToken(token string) error {
	return validateFormat(token, "OAuth access token", accessTokenPrefix)
}

// ValidateRefreshToken checks that token is a well-formed OAuth refresh token.
func ValidateRefreshToken(token string) error {
	return validateFormat(token, "OAuth refresh token", refreshTokenPrefix)
}

// ValidateCredential detects the credential kind from its prefix and checks
// the format. The returned method is MethodAPIKey or MethodOAuth when the
// prefix is recognized, even if the rest of the value is malformed, so
// callers can report what the value was trying to be.
func ValidateCredential(value string) (AuthMethod, error) {
	switch {
	case value == "":
		return MethodNone, errors.New("credential is empty")
	case strings.HasPrefix(value, apiKeyPrefix):
		return MethodAPIKey, ValidateAPIKey(value)
	case strings.HasPrefix(value, accessTokenPrefix):
		return MethodOAuth, ValidateAccessToken(value)
	case strings.HasPrefix(value, refreshTokenPrefix):
		return MethodOAuth, ValidateRefreshToken(value)
	default:
		return MethodNone, fmt.Errorf(
			"unrecognized credential prefix: API keys start with %s, OAuth tokens with %s or %s",
			apiKeyPrefix, accessTokenPrefix, refreshTokenPrefix)
	}
}

func validateFormat(value, kind, prefix string) error {
	if value == "" {
		return fmt.Errorf("%s is empty", kind)
	}
	if !strings.HasPrefix(value, prefix) {
		if hint := prefixHint(value, prefix); hint != "" {
			return fmt.Errorf("%s must start with %s (%s)", kind, prefix, hint)
		}
		return fmt.Errorf("%s must start with %s", kind, prefix)
	}
	if len(value) != credentialLength {
		return fmt.Errorf("%s has length %d, want %d", kind, len(value), credentialLength)
	}
	for _, c := range value[len(prefix):] {
		if !isKeyMaterial(c) {
			return fmt.Errorf("%s contains invalid character %q; only letters, digits, _ and - are allowed", kind, c)
		}
	}
	return nil
}

// prefixHint recognizes a value that carries one of the other known prefixes
// and names what it actually is.
func prefixHint(value, expected string) string {
	for prefix, kind := range map[string]string{
		apiKeyPrefix:       "an API key",
		accessTokenPrefix:  "an OAuth access token",
		refreshTokenPrefix: "an OAuth refresh token",
	} {
		if prefix != expected && strings.HasPrefix(value, prefix) {
			return "this looks like " + kind
		}
	}
	return ""
}

func isKeyMaterial(c rune) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '_' || c == '-':
		return true
	}
	return false
}
