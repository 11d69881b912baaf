package gcp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/anzsic/classify/internal/domain"
)

// fakeGcloud writes an executable shell script standing in for `gcloud
// auth print-access-token`, used to exercise TokenManager without a real
// gcloud install.
func fakeGcloud(t *testing.T, stdout string, exitCode int) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "gcloud")
	script := "#!/bin/sh\n"
	if exitCode != 0 {
		script += fmt.Sprintf("echo %s 1>&2\nexit %d\n", stdout, exitCode)
	} else {
		script += fmt.Sprintf("echo %s\n", stdout)
	}
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake gcloud: %v", err)
	}
	return path
}

func TestTokenManager_GetToken_FetchesAndCaches(t *testing.T) {
	path := fakeGcloud(t, "tok-abc", 0)
	tm := NewTokenManager(path)

	got, err := tm.GetToken(context.Background())
	if err != nil {
		t.Fatalf("GetToken failed: %v", err)
	}
	if got != "tok-abc" {
		t.Errorf("unexpected token: %q", got)
	}

	tm.gcloudPath = "/nonexistent/should-not-run"
	got2, err := tm.GetToken(context.Background())
	if err != nil {
		t.Fatalf("expected cached token, got error: %v", err)
	}
	if got2 != "tok-abc" {
		t.Errorf("expected cached token, got %q", got2)
	}
}

func TestTokenManager_EmptyOutputIsAuthenticationError(t *testing.T) {
	path := fakeGcloud(t, "", 0)
	tm := NewTokenManager(path)

	_, err := tm.GetToken(context.Background())
	if err == nil {
		t.Fatal("expected error for empty token output")
	}
	var authErr *domain.AuthenticationError
	if !errors.As(err, &authErr) {
		t.Errorf("expected AuthenticationError, got %T: %v", err, err)
	}
}

func TestTokenManager_NonZeroExitIsAuthenticationError(t *testing.T) {
	path := fakeGcloud(t, "permission denied", 1)
	tm := NewTokenManager(path)

	_, err := tm.GetToken(context.Background())
	if err == nil {
		t.Fatal("expected error for nonzero exit")
	}
	var authErr *domain.AuthenticationError
	if !errors.As(err, &authErr) {
		t.Errorf("expected AuthenticationError, got %T: %v", err, err)
	}
}

func TestTokenManager_MissingBinaryIsAuthenticationError(t *testing.T) {
	tm := NewTokenManager(filepath.Join(t.TempDir(), "does-not-exist"))

	_, err := tm.GetToken(context.Background())
	if err == nil {
		t.Fatal("expected error for missing gcloud binary")
	}
	var authErr *domain.AuthenticationError
	if !errors.As(err, &authErr) {
		t.Errorf("expected AuthenticationError, got %T: %v", err, err)
	}
}

func TestTokenManager_Invalidate_ForcesRefresh(t *testing.T) {
	path := fakeGcloud(t, "first", 0)
	tm := NewTokenManager(path)

	tok, err := tm.GetToken(context.Background())
	if err != nil || tok != "first" {
		t.Fatalf("unexpected first token: %q, %v", tok, err)
	}

	if err := os.WriteFile(path, []byte("#!/bin/sh\necho second\n"), 0o755); err != nil {
		t.Fatalf("rewrite fake gcloud: %v", err)
	}

	tok2, err := tm.GetToken(context.Background())
	if err != nil || tok2 != "first" {
		t.Fatalf("expected cached token before invalidate, got %q, %v", tok2, err)
	}

	tm.Invalidate()

	tok3, err := tm.GetToken(context.Background())
	if err != nil {
		t.Fatalf("GetToken after invalidate failed: %v", err)
	}
	if tok3 != "second" {
		t.Errorf("expected refreshed token %q, got %q", "second", tok3)
	}
}

func TestTokenManager_NeedsRefresh_WithinMargin(t *testing.T) {
	tm := &TokenManager{value: "tok", expiresAt: time.Now().Add(tokenRefreshMargin / 2)}
	if !tm.needsRefresh() {
		t.Error("expected needsRefresh true when within refresh margin of expiry")
	}

	tm.expiresAt = time.Now().Add(tokenRefreshMargin * 2)
	if tm.needsRefresh() {
		t.Error("expected needsRefresh false when well before expiry")
	}
}
