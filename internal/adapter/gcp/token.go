// Package gcp implements EmbeddingPort and LLMPort against the Vertex AI
// REST endpoints, using gcloud-issued access tokens managed by a shared
// TokenManager.
package gcp

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/anzsic/classify/internal/domain"
)

// tokenRefreshMargin is how many seconds before expiry the manager
// proactively refreshes.
const tokenRefreshMargin = 120 * time.Second

// tokenTTL is the conservative assumed lifetime of a gcloud access token.
const tokenTTL = 3600 * time.Second

// TokenManager caches a single GCP access token shared by every adapter
// in the Vertex AI family, refreshing it via `gcloud auth
// print-access-token`. It is a single-writer/many-reader resource: a
// mutex guards refresh so concurrent callers observe at most one
// in-flight refresh.
type TokenManager struct {
	gcloudPath string
	mu         sync.Mutex
	value      string
	expiresAt  time.Time
}

// NewTokenManager builds a TokenManager that shells out to gcloudPath
// ("gcloud" if empty).
func NewTokenManager(gcloudPath string) *TokenManager {
	if gcloudPath == "" {
		gcloudPath = "gcloud"
	}
	return &TokenManager{gcloudPath: gcloudPath}
}

// GetToken returns a cached token, refreshing synchronously if it is
// absent or within the refresh margin of expiry.
func (t *TokenManager) GetToken(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.needsRefresh() {
		if err := t.refresh(ctx); err != nil {
			return "", err
		}
	}
	return t.value, nil
}

// Invalidate forces the next GetToken call to fetch a fresh token.
func (t *TokenManager) Invalidate() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.expiresAt = time.Time{}
}

func (t *TokenManager) needsRefresh() bool {
	return t.value == "" || !time.Now().Add(tokenRefreshMargin).Before(t.expiresAt)
}

func (t *TokenManager) refresh(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, t.gcloudPath, "auth", "print-access-token")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return domain.NewAuthenticationError("gcloud timed out fetching access token")
		}
		stderrMsg := strings.TrimSpace(stderr.String())
		if stderrMsg == "" {
			stderrMsg = "(no stderr)"
		}
		if isExecNotFound(err) {
			return domain.NewAuthenticationError(fmt.Sprintf("gcloud not found at %q; set GCLOUD_PATH", t.gcloudPath))
		}
		return domain.NewAuthenticationError(fmt.Sprintf("gcloud auth print-access-token failed: %s", stderrMsg))
	}

	token := strings.TrimSpace(stdout.String())
	if token == "" {
		return domain.NewAuthenticationError("gcloud returned an empty access token")
	}

	t.value = token
	t.expiresAt = time.Now().Add(tokenTTL)
	return nil
}

func isExecNotFound(err error) bool {
	return strings.Contains(err.Error(), "executable file not found") || strings.Contains(err.Error(), "no such file or directory")
}
