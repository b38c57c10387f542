package claudeauth

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "credentials.json")
	store := NewFileStore(path)

	want := &TokenRecord{
		AccessToken:  "sk-ant-oat01-abc",
		RefreshToken: "sk-ant-ort01-def",
		ExpiresAt:    time.Unix(1761378353, 0),
		Scopes:       []string{"user:inference", "user:profile"},
	}
	if err := store.Save(context.Background(), want); err != nil {
		t.Fatalf("save: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("credential file permissions = %#o, want 0600", perm)
	}

	got, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.AccessToken != want.AccessToken || got.RefreshToken != want.RefreshToken {
		t.Fatalf("unexpected tokens: %+v", got)
	}
	if !got.ExpiresAt.Equal(want.ExpiresAt) {
		t.Fatalf("expires_at = %v, want %v", got.ExpiresAt, want.ExpiresAt)
	}
	if len(got.Scopes) != 2 || got.Scopes[0] != "user:inference" {
		t.Fatalf("unexpected scopes: %v", got.Scopes)
	}
}

func TestFileStoreSchema(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "credentials.json")
	data := `{
		"access_token": "sk-ant-oat01-fixed",
		"refresh_token": "sk-ant-ort01-fixed",
		"expires_at": 1761378353,
		"scope": ["user:inference"]
	}`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	rec, err := NewFileStore(path).Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if rec.AccessToken != "sk-ant-oat01-fixed" {
		t.Fatalf("access token = %q", rec.AccessToken)
	}
	if rec.ExpiresAt.Unix() != 1761378353 {
		t.Fatalf("expires_at = %v", rec.ExpiresAt)
	}
	if err := rec.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestFileStoreMissingFileIsNoRecord(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "absent.json"))
	rec, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected nil record for missing file, got %+v", rec)
	}
}

func TestFileStoreRejectsLoosePermissions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "credentials.json")
	if err := os.WriteFile(path, []byte(`{}`), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	_, err := NewFileStore(path).Load(context.Background())
	var storageErr *StorageError
	if !errors.As(err, &storageErr) {
		t.Fatalf("expected StorageError for 0644 file, got %v", err)
	}
	if storageErr.Op != "load" {
		t.Fatalf("op = %q, want load", storageErr.Op)
	}
}

func TestFileStoreCorruptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "credentials.json")
	if err := os.WriteFile(path, []byte(`{not json`), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	_, err := NewFileStore(path).Load(context.Background())
	var storageErr *StorageError
	if !errors.As(err, &storageErr) {
		t.Fatalf("expected StorageError for corrupt file, got %v", err)
	}
}

func TestTokenRecordValidate(t *testing.T) {
	cases := []struct {
		name string
		rec  *TokenRecord
		ok   bool
	}{
		{"nil", nil, false},
		{"complete", validRecord(time.Hour), true},
		{"missing access token", &TokenRecord{RefreshToken: "r", ExpiresAt: time.Now()}, false},
		{"missing refresh token", &TokenRecord{AccessToken: "a", ExpiresAt: time.Now()}, false},
		{"missing expiry", &TokenRecord{AccessToken: "a", RefreshToken: "r"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.rec.Validate()
			if tc.ok && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
