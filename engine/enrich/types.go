// Package enrich pulls a carrier's insurance history from the external
// provider and materializes it into the temporal graph: policies, coverage
// periods, succession links, derived events, and fraud indicators.
package enrich

import (
	"context"
	"time"

	"github.com/HaulGuardAI/haulguard-mvp/engine/domain"
	"github.com/HaulGuardAI/haulguard-mvp/engine/graph"
	"github.com/HaulGuardAI/haulguard-mvp/pkg/searchcarriers"
)

const (
	// Subject carries enrichment requests from the API to workers.
	Subject = "enrich.carrier"
	// DLQSubject receives requests that kept failing.
	DLQSubject = "enrich.dlq"
	// MaxRetries before a request lands on the DLQ.
	MaxRetries = 3

	// batchSize carriers are enriched per batch, with a pause between
	// batches to stay friendly to the provider API.
	batchSize       = 10
	interBatchDelay = 2 * time.Second

	// maxSummaryErrors bounds the error list carried in a Summary.
	maxSummaryErrors = 10
)

// Request asks workers to enrich a set of carriers under one job.
type Request struct {
	JobID  string  `json:"job_id"`
	USDOTs []int64 `json:"usdots"`
}

// Summary reports what one carrier's enrichment actually did. Partial
// progress is preserved: counters and collected errors, never a bare
// failure.
type Summary struct {
	JobID                string    `json:"job_id,omitempty"`
	CarrierUSDOT         int64     `json:"carrier_usdot"`
	Status               string    `json:"status"`
	PoliciesCreated      int       `json:"policies_created"`
	EventsCreated        int       `json:"events_created"`
	GapsFound            int       `json:"gaps_found"`
	Skipped              int       `json:"skipped_records"`
	ComplianceViolations []string  `json:"compliance_violations,omitempty"`
	FraudIndicators      []string  `json:"fraud_indicators,omitempty"`
	Errors               []string  `json:"errors,omitempty"`
	StartedAt            time.Time `json:"started_at"`
	CompletedAt          time.Time `json:"completed_at"`
	Duration             string    `json:"duration"`
}

func (s *Summary) addError(err error) {
	if len(s.Errors) < maxSummaryErrors {
		s.Errors = append(s.Errors, err.Error())
	}
}

// Fetcher is the slice of the provider client the orchestrator needs.
type Fetcher interface {
	InsuranceHistory(ctx context.Context, usdot int64) ([]searchcarriers.InsuranceRecord, error)
}

// Store is the slice of the graph layer the orchestrator writes through.
type Store interface {
	CarrierExists(ctx context.Context, usdot int64) (bool, error)
	UpdateCarrier(ctx context.Context, usdot int64, patch domain.CarrierPatch) error
	PolicyExists(ctx context.Context, policyID string) (bool, error)
	CreatePolicy(ctx context.Context, p domain.InsurancePolicy) error
	LinkCoveragePeriod(ctx context.Context, usdot int64, p domain.InsurancePolicy) error
	GetOrCreateProvider(ctx context.Context, name string) (domain.InsuranceProvider, error)
	LinkProvider(ctx context.Context, policyID, providerName string) error
	LinkCarrierProvider(ctx context.Context, usdot int64, providerName string) error
	LinkSuccession(ctx context.Context, laterPolicyID, earlierPolicyID string, gapDays int) error
	CreateEvent(ctx context.Context, e domain.InsuranceEvent) error
}

// JobStore persists enrichment job state.
type JobStore interface {
	CreateJob(ctx context.Context, usdots []int64) (string, error)
	StartJob(ctx context.Context, jobID string) error
	UpdateJob(ctx context.Context, jobID string, p graph.JobProgress) error
	FinishJob(ctx context.Context, jobID, status string) error
}
