package claudeauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// TokenRecord is the durable OAuth state: an access/refresh token pair plus
// an absolute expiry. Expiry is always absolute time, never a relative
// duration, so refreshes are immune to clock-drift ambiguity.
type TokenRecord struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Scopes       []string
}

// Validate reports whether the record is usable. A record missing any of
// the three required fields must never be treated as valid.
func (r *TokenRecord) Validate() error {
	if r == nil {
		return errors.New("no token record")
	}
	if r.AccessToken == "" {
		return errors.New("token record missing access token")
	}
	if r.RefreshToken == "" {
		return errors.New("token record missing refresh token")
	}
	if r.ExpiresAt.IsZero() {
		return errors.New("token record missing expiry")
	}
	return nil
}

// TokenStore persists token records. Load returns (nil, nil) when the store
// holds no record. Implementations may be shared across processes; this
// package does not provide cross-process locking.
type TokenStore interface {
	Load(ctx context.Context) (*TokenRecord, error)
	Save(ctx context.Context, rec *TokenRecord) error
}

// tokenRecordFile is the persisted JSON shape.
type tokenRecordFile struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	ExpiresAt    int64    `json:"expires_at"` // absolute unix seconds
	Scope        []string `json:"scope,omitempty"`
}

// FileStore is the default file-backed TokenStore. Credential files must be
// owner-only (0600); a readable-by-group-or-other file is rejected outright.
type FileStore struct {
	path string
}

// NewFileStore creates a file-backed token store at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (s *FileStore) Path() string { return s.path }

// Load reads the token record. A missing file is not an error: it returns
// (nil, nil) so callers can treat it as "no record".
func (s *FileStore) Load(ctx context.Context) (*TokenRecord, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, &StorageError{Op: "load", Path: s.path, Err: err}
	}

	if info.Mode().Perm()&0o077 != 0 {
		return nil, &StorageError{Op: "load", Path: s.path,
			Err: fmt.Errorf("credential file must have 0600 permissions, has %#o", info.Mode().Perm())}
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, &StorageError{Op: "load", Path: s.path, Err: err}
	}

	var po tokenRecordFile
	if err := json.Unmarshal(data, &po); err != nil {
		return nil, &StorageError{Op: "load", Path: s.path, Err: fmt.Errorf("parse credentials: %w", err)}
	}

	rec := &TokenRecord{
		AccessToken:  po.AccessToken,
		RefreshToken: po.RefreshToken,
		Scopes:       po.Scope,
	}
	if po.ExpiresAt > 0 {
		rec.ExpiresAt = time.Unix(po.ExpiresAt, 0)
	}
	return rec, nil
}

// Save persists the record with 0600 permissions, creating the parent
// directory (0700) if needed.
func (s *FileStore) Save(ctx context.Context, rec *TokenRecord) error {
	po := tokenRecordFile{
		AccessToken:  rec.AccessToken,
		RefreshToken: rec.RefreshToken,
		Scope:        rec.Scopes,
	}
	if !rec.ExpiresAt.IsZero() {
		po.ExpiresAt = rec.ExpiresAt.Unix()
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return &StorageError{Op: "save", Path: s.path, Err: err}
	}

	data, err := json.MarshalIndent(po, "", "  ")
	if err != nil {
		return &StorageError{Op: "save", Path: s.path, Err: err}
	}

	if err := os.WriteFile(s.path, data, defaultFilePerm); err != nil {
		return &StorageError{Op: "save", Path: s.path, Err: err}
	}
	return nil
}
