package redisdb

import (
	"github.com/redis/rueidis"

	"github.com/anzsic/classify/internal/adapter/retry"
)

// NewStoreForTest creates a Store with the provided rueidis client
// (test-only).
func NewStoreForTest(c rueidis.Client, indexName, keyPrefix string) *Store {
	if keyPrefix == "" {
		keyPrefix = "catalogue:"
	}
	return &Store{client: c, indexName: indexName, keyPrefix: keyPrefix, retryCfg: retry.Config{MaxAttempts: 1}}
}

// NewStoreForTestWithRetry is NewStoreForTest plus an explicit retry
// policy, for tests exercising backoff-on-transient-error behavior.
func NewStoreForTestWithRetry(c rueidis.Client, indexName, keyPrefix string, retryCfg retry.Config) *Store {
	s := NewStoreForTest(c, indexName, keyPrefix)
	s.retryCfg = retryCfg
	return s
}
