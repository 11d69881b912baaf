// Package health aggregates readiness checks across the pipeline's
// adapters, grounded on the teacher's internal/usecase/health service.
package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// DatabaseChecker checks catalogue datastore availability, matching
// port.DatabasePort's Healthcheck method.
type DatabaseChecker interface {
	Healthcheck(ctx context.Context) (bool, error)
}

// ProviderChecker checks an embedding or LLM provider's availability.
type ProviderChecker interface {
	HealthCheck(ctx context.Context) error
}

// Service coordinates health checks across the database and the
// configured embedding/LLM providers.
type Service struct {
	db        DatabaseChecker
	embedding ProviderChecker
	llm       ProviderChecker
}

// New creates a Service. embedding and llm may be nil when the
// configured provider does not expose a health check.
func New(db DatabaseChecker, embedding, llm ProviderChecker) *Service {
	return &Service{db: db, embedding: embedding, llm: llm}
}

// Check runs health checks against all configured components.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	ok, err := s.db.Healthcheck(ctx)
	if err != nil || !ok {
		checks["database"] = CheckError
	} else {
		checks["database"] = CheckOK
	}

	if s.embedding != nil {
		if err := s.embedding.HealthCheck(ctx); err != nil {
			checks["embedding"] = CheckError
		} else {
			checks["embedding"] = CheckOK
		}
	}

	if s.llm != nil {
		if err := s.llm.HealthCheck(ctx); err != nil {
			checks["llm"] = CheckError
		} else {
			checks["llm"] = CheckOK
		}
	}

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}

	return Report{Status: status, Checks: checks}
}
