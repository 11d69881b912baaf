package domain

import "errors"

// Sentinel errors forming the classification pipeline's error taxonomy.
// Callers use errors.Is/errors.As for narrow handling, or a broad check
// against any of these for a catch-all at an interface boundary.
var (
	// ErrConfiguration signals invalid or missing settings, or an invalid
	// request parameter (e.g. top_k > pool_size).
	ErrConfiguration = errors.New("configuration error")
	// ErrAuthentication signals missing, expired, or rejected credentials.
	ErrAuthentication = errors.New("authentication error")
	// ErrEmbedding signals an embedding provider failure after retries.
	ErrEmbedding = errors.New("embedding error")
	// ErrLLM signals an LLM provider failure after retries. Never raised
	// for an empty-but-valid response — that is a legal business outcome.
	ErrLLM = errors.New("llm error")
	// ErrDatabase signals a datastore transport or query failure.
	ErrDatabase = errors.New("database error")
	// ErrRetrieval signals a Stage 1 logical failure: one search up and
	// the other down, or an empty hydrate result.
	ErrRetrieval = errors.New("retrieval error")
	// ErrRerank signals a Stage 2 logical failure: a parsed-but-unusable
	// LLM response. Never raised for a legitimately empty result.
	ErrRerank = errors.New("rerank error")
	// ErrCancelled signals the caller's context was cancelled mid-call,
	// distinct from a timeout.
	ErrCancelled = errors.New("cancelled")
)

// ConfigurationError wraps ErrConfiguration with the offending detail.
type ConfigurationError struct {
	Detail string
}

func (e *ConfigurationError) Error() string { return "configuration error: " + e.Detail }
func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

// NewConfigurationError builds a ConfigurationError.
func NewConfigurationError(detail string) error {
	return &ConfigurationError{Detail: detail}
}

// AuthenticationError wraps ErrAuthentication with the offending detail.
type AuthenticationError struct {
	Detail string
}

func (e *AuthenticationError) Error() string { return "authentication error: " + e.Detail }
func (e *AuthenticationError) Unwrap() error { return ErrAuthentication }

// NewAuthenticationError builds an AuthenticationError.
func NewAuthenticationError(detail string) error {
	return &AuthenticationError{Detail: detail}
}

// EmbeddingError wraps ErrEmbedding, optionally carrying the underlying
// transport cause.
type EmbeddingError struct {
	Detail string
	Cause  error
}

func (e *EmbeddingError) Error() string {
	if e.Cause != nil {
		return "embedding error: " + e.Detail + ": " + e.Cause.Error()
	}
	return "embedding error: " + e.Detail
}
func (e *EmbeddingError) Unwrap() error { return ErrEmbedding }

// NewEmbeddingError builds an EmbeddingError.
func NewEmbeddingError(detail string, cause error) error {
	return &EmbeddingError{Detail: detail, Cause: cause}
}

// LLMError wraps ErrLLM, optionally carrying the underlying transport cause.
type LLMError struct {
	Detail string
	Cause  error
}

func (e *LLMError) Error() string {
	if e.Cause != nil {
		return "llm error: " + e.Detail + ": " + e.Cause.Error()
	}
	return "llm error: " + e.Detail
}
func (e *LLMError) Unwrap() error { return ErrLLM }

// NewLLMError builds an LLMError.
func NewLLMError(detail string, cause error) error {
	return &LLMError{Detail: detail, Cause: cause}
}

// DatabaseError wraps ErrDatabase, optionally carrying the underlying
// transport cause.
type DatabaseError struct {
	Detail string
	Cause  error
}

func (e *DatabaseError) Error() string {
	if e.Cause != nil {
		return "database error: " + e.Detail + ": " + e.Cause.Error()
	}
	return "database error: " + e.Detail
}
func (e *DatabaseError) Unwrap() error { return ErrDatabase }

// NewDatabaseError builds a DatabaseError.
func NewDatabaseError(detail string, cause error) error {
	return &DatabaseError{Detail: detail, Cause: cause}
}

// RetrievalError wraps ErrRetrieval — a Stage 1 logical failure.
type RetrievalError struct {
	Detail string
}

func (e *RetrievalError) Error() string { return "retrieval error: " + e.Detail }
func (e *RetrievalError) Unwrap() error { return ErrRetrieval }

// NewRetrievalError builds a RetrievalError.
func NewRetrievalError(detail string) error {
	return &RetrievalError{Detail: detail}
}

// RerankError wraps ErrRerank — a Stage 2 logical failure. Never raised
// to the caller by the reranker itself (an empty result is legal); retained
// for callers that want to log the condition.
type RerankError struct {
	Detail string
}

func (e *RerankError) Error() string { return "rerank error: " + e.Detail }
func (e *RerankError) Unwrap() error { return ErrRerank }

// NewRerankError builds a RerankError.
func NewRerankError(detail string) error {
	return &RerankError{Detail: detail}
}

// CancelledError wraps ErrCancelled, distinct from a timeout.
type CancelledError struct {
	Detail string
}

func (e *CancelledError) Error() string { return "cancelled: " + e.Detail }
func (e *CancelledError) Unwrap() error { return ErrCancelled }

// NewCancelledError builds a CancelledError.
func NewCancelledError(detail string) error {
	return &CancelledError{Detail: detail}
}
