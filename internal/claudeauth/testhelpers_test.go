package claudeauth

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// fakeStore is an in-memory TokenStore with injectable failures.
type fakeStore struct {
	mu      sync.Mutex
	rec     *TokenRecord
	loadErr error
	saveErr error
	saves   int
}

func (s *fakeStore) Load(ctx context.Context) (*TokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	if s.rec == nil {
		return nil, nil
	}
	cp := *s.rec
	return &cp, nil
}

func (s *fakeStore) Save(ctx context.Context, rec *TokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	cp := *rec
	s.rec = &cp
	s.saves++
	return nil
}

func (s *fakeStore) saved() *TokenRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec
}

func (s *fakeStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// fakeRefresher delegates to a function so tests can count and fail calls.
type fakeRefresher struct {
	fn func(ctx context.Context, refreshToken string) (*TokenRecord, error)
}

func (r *fakeRefresher) Refresh(ctx context.Context, refreshToken string) (*TokenRecord, error) {
	return r.fn(ctx, refreshToken)
}

func validRecord(ttl time.Duration) *TokenRecord {
	return &TokenRecord{
		AccessToken:  "sk-ant-oat01-current",
		RefreshToken: "sk-ant-ort01-current",
		ExpiresAt:    time.Now().Add(ttl),
		Scopes:       []string{"user:inference"},
	}
}

func newManager(t *testing.T, store TokenStore, refresher Refresher, threshold time.Duration) *TokenManager {
	t.Helper()
	m, err := NewTokenManager(TokenManagerOptions{
		Store:            store,
		Refresher:        refresher,
		RefreshThreshold: threshold,
	})
	if err != nil {
		t.Fatalf("new token manager: %v", err)
	}
	return m
}

func newTokenServer(t *testing.T, accessToken, refreshToken string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"%s","refresh_token":"%s","expires_in":3600}`, accessToken, refreshToken)
	}))
}

func writeRecordFile(t *testing.T, dir string, rec *TokenRecord) string {
	t.Helper()
	path := filepath.Join(dir, "credentials.json")
	if err := NewFileStore(path).Save(context.Background(), rec); err != nil {
		t.Fatalf("write credential file: %v", err)
	}
	return path
}
