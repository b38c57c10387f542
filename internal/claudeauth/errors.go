package claudeauth

import (
	"fmt"
	"strings"
)

// StorageError indicates a TokenStore read or write failure. Load-side
// instances are softened to "source unavailable" by discovery; save-side
// instances are always surfaced, since they mean a freshly refreshed token
// was not persisted.
type StorageError struct {
	Op   string // "load" or "save"
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("token storage %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// RefreshError indicates the token refresh call failed or returned an
// unusable payload. It is never retried internally.
type RefreshError struct {
	Status string // HTTP status when the server answered, empty otherwise
	Detail string
	Err    error
}

func (e *RefreshError) Error() string {
	msg := "token refresh failed"
	if e.Status != "" {
		msg += ": " + e.Status
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RefreshError) Unwrap() error { return e.Err }

// AuthenticationError indicates no valid credential could be produced: the
// token manager is invalid (bad record or a refresh that permanently failed)
// and only a reload can revive it.
type AuthenticationError struct {
	Reason string
	Err    error
}

func (e *AuthenticationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication unavailable: %s: %v", e.Reason, e.Err)
	}
	return "authentication unavailable: " + e.Reason
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// NoCredentialsError indicates discovery exhausted every source. Attempts
// records what was tried and why each source failed.
type NoCredentialsError struct {
	Attempts []Attempt
}

func (e *NoCredentialsError) Error() string {
	var b strings.Builder
	b.WriteString("no credentials found in any source")
	for _, a := range e.Attempts {
		fmt.Fprintf(&b, "; %s: %s", a.Source, a.Outcome)
	}
	return b.String()
}
