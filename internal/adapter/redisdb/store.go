// Package redisdb implements port.DatabasePort against a Redis/Valkey
// catalogue index via rueidis, grounded on the reference internal/db/redis
// package's FT.SEARCH query construction and RESP2 result parsing.
//
// The catalogue index itself (schema, HNSW parameters, lexical index
// type) is a read-only contract: this package queries an index assumed
// to already exist, it does not create or manage one.
package redisdb

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/rueidis"

	"github.com/anzsic/classify/internal/adapter/retry"
	"github.com/anzsic/classify/internal/port"
)

// Compile-time check: Store implements port.DatabasePort.
var _ port.DatabasePort = (*Store)(nil)

// Config holds connection parameters for the catalogue Redis/Valkey store.
type Config struct {
	Addrs    []string
	Username string
	Password string
	DB       int

	// IndexName is the FT.SEARCH index over the catalogue hashes.
	IndexName string
	// KeyPrefix is prepended to a code to form its hash key, e.g. "catalogue:".
	KeyPrefix string

	// Timeout bounds each query call. Zero means no additional deadline
	// beyond whatever the caller's context already carries.
	Timeout time.Duration
	// RetryConfig governs retries of a failed query. The zero value
	// disables retrying (MaxAttempts 0 means the loop body never runs,
	// so NewStore defaults it to a single attempt).
	RetryConfig retry.Config
}

// Store wraps a rueidis client with the catalogue's query surface.
type Store struct {
	client    rueidis.Client
	indexName string
	keyPrefix string
	timeout   time.Duration
	retryCfg  retry.Config
}

// NewStore connects to Redis/Valkey via rueidis.
func NewStore(cfg Config) (*Store, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("addrs is required")
	}
	if cfg.IndexName == "" {
		return nil, fmt.Errorf("index name is required")
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		DisableCache: true,
		AlwaysRESP2:  true, // FT.SEARCH result parsing expects RESP2 array format
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	keyPrefix := cfg.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = "catalogue:"
	}
	retryCfg := cfg.RetryConfig
	if retryCfg.MaxAttempts == 0 {
		retryCfg = retry.Config{MaxAttempts: 1}
	}

	return &Store{
		client:    client,
		indexName: cfg.IndexName,
		keyPrefix: keyPrefix,
		timeout:   cfg.Timeout,
		retryCfg:  retryCfg,
	}, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	cmd := s.client.B().Ping().Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Close shuts down the client.
func (s *Store) Close() {
	s.client.Close()
}

// WaitForReady polls Ping until the store responds or timeout expires.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for database: %w", ctx.Err())
		case <-ticker.C:
			if err := s.Ping(ctx); err == nil {
				return nil
			}
		}
	}
}

func (s *Store) do(ctx context.Context, cmd rueidis.Completed) rueidis.RedisResult {
	return s.client.Do(ctx, cmd)
}

// withRetry bounds ctx to s.timeout (if set) and runs fn under s.retryCfg's
// backoff policy, retrying any error fn reports (transport failures and
// Redis error replies alike).
func (s *Store) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	_, err := retry.Do(ctx, s.retryCfg, func(ctx context.Context, attemptNum int) (any, retry.Outcome, error) {
		if err := fn(ctx); err != nil {
			return nil, retry.RetryBackoff, err
		}
		return nil, retry.Success, nil
	})
	return err
}

func (s *Store) b() rueidis.Builder {
	return s.client.B()
}

func (s *Store) keyFor(code string) string {
	return s.keyPrefix + code
}
