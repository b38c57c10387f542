package claudeauth

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileWatcherFiresOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "credentials.json")
	if err := NewFileStore(path).Save(context.Background(), validRecord(time.Hour)); err != nil {
		t.Fatalf("write credential file: %v", err)
	}

	changed := make(chan struct{}, 1)
	w := NewFileWatcher(FileWatcherOptions{
		Path:     path,
		Debounce: 10 * time.Millisecond,
		OnChange: func() {
			select {
			case changed <- struct{}{}:
			default:
			}
		},
	})
	if err := w.Start(); err != nil {
		t.Fatalf("start watcher: %v", err)
	}
	defer w.Stop()

	if err := NewFileStore(path).Save(context.Background(), validRecord(2*time.Hour)); err != nil {
		t.Fatalf("rewrite credential file: %v", err)
	}

	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not observe the credential file change")
	}
}

func TestFileWatcherIgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "credentials.json")
	if err := NewFileStore(path).Save(context.Background(), validRecord(time.Hour)); err != nil {
		t.Fatalf("write credential file: %v", err)
	}

	changed := make(chan struct{}, 1)
	w := NewFileWatcher(FileWatcherOptions{
		Path:     path,
		Debounce: 10 * time.Millisecond,
		OnChange: func() {
			select {
			case changed <- struct{}{}:
			default:
			}
		},
	})
	if err := w.Start(); err != nil {
		t.Fatalf("start watcher: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(dir, "other.json"), []byte("{}"), 0o600); err != nil {
		t.Fatalf("write sibling file: %v", err)
	}

	select {
	case <-changed:
		t.Fatal("watcher fired for an unrelated file")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestFileWatcherReloadsManager(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "credentials.json")
	store := NewFileStore(path)
	if err := store.Save(context.Background(), &TokenRecord{
		AccessToken:  "sk-ant-oat01-before",
		RefreshToken: "sk-ant-ort01-before",
		ExpiresAt:    time.Now().Add(time.Hour),
	}); err != nil {
		t.Fatalf("write credential file: %v", err)
	}

	m, err := NewTokenManager(TokenManagerOptions{
		Store: store,
		Refresher: &fakeRefresher{fn: func(ctx context.Context, rt string) (*TokenRecord, error) {
			t.Error("refresh must not run in this test")
			return nil, os.ErrInvalid
		}},
	})
	if err != nil {
		t.Fatalf("new token manager: %v", err)
	}

	token, err := m.AccessToken(context.Background())
	if err != nil {
		t.Fatalf("access token: %v", err)
	}
	if token != "sk-ant-oat01-before" {
		t.Fatalf("token = %q", token)
	}

	reloaded := make(chan struct{}, 1)
	w := NewFileWatcher(FileWatcherOptions{
		Path:     path,
		Debounce: 10 * time.Millisecond,
		OnChange: func() {
			if err := m.Reload(context.Background()); err == nil {
				select {
				case reloaded <- struct{}{}:
				default:
				}
			}
		},
	})
	if err := w.Start(); err != nil {
		t.Fatalf("start watcher: %v", err)
	}
	defer w.Stop()

	// Simulate external rotation.
	if err := store.Save(context.Background(), &TokenRecord{
		AccessToken:  "sk-ant-oat01-after",
		RefreshToken: "sk-ant-ort01-after",
		ExpiresAt:    time.Now().Add(time.Hour),
	}); err != nil {
		t.Fatalf("rotate credential file: %v", err)
	}

	select {
	case <-reloaded:
	case <-time.After(5 * time.Second):
		t.Fatal("manager was not reloaded after rotation")
	}

	token, err = m.AccessToken(context.Background())
	if err != nil {
		t.Fatalf("access token after rotation: %v", err)
	}
	if token != "sk-ant-oat01-after" {
		t.Fatalf("token = %q, want rotated token", token)
	}
}
