package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/HaulGuardAI/haulguard-mvp/engine/domain"
	"github.com/HaulGuardAI/haulguard-mvp/engine/graph"
	"github.com/HaulGuardAI/haulguard-mvp/pkg/fn"
	"github.com/HaulGuardAI/haulguard-mvp/pkg/resilience"
	"github.com/HaulGuardAI/haulguard-mvp/pkg/searchcarriers"
)

// carrierLocks serializes work on the same carrier within this process.
// Different carriers proceed concurrently; cross-process races are absorbed
// by the idempotent graph upserts.
type carrierLocks struct {
	mu sync.Mutex
	m  map[int64]*sync.Mutex
}

func (c *carrierLocks) lock(usdot int64) func() {
	c.mu.Lock()
	if c.m == nil {
		c.m = make(map[int64]*sync.Mutex)
	}
	l, ok := c.m[usdot]
	if !ok {
		l = &sync.Mutex{}
		c.m[usdot] = l
	}
	c.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Orchestrator runs the enrichment flow for carriers.
type Orchestrator struct {
	store   Store
	jobs    JobStore
	fetcher Fetcher
	limiter *resilience.Limiter
	log     *slog.Logger
	locks   carrierLocks
	now     func() time.Time
}

// New builds an orchestrator. jobs may be nil when job tracking is not
// wanted (the CLI's direct mode).
func New(store Store, jobs JobStore, fetcher Fetcher, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		store:   store,
		jobs:    jobs,
		fetcher: fetcher,
		limiter: resilience.NewLimiter(resilience.LimiterOpts{Rate: 2, Burst: 2}),
		log:     log,
		now:     time.Now,
	}
}

// EnrichCarrier runs the full enrichment of one carrier as a unit: fetch
// history, map records, upsert providers, policies, and edges, derive
// succession links and events, refresh the display cache, and check
// compliance. Safe to re-run; every write converges.
func (o *Orchestrator) EnrichCarrier(ctx context.Context, jobID string, usdot int64) Summary {
	unlock := o.locks.lock(usdot)
	defer unlock()

	s := Summary{JobID: jobID, CarrierUSDOT: usdot, Status: graph.JobCompleted, StartedAt: o.now()}
	defer func() {
		s.CompletedAt = o.now()
		s.Duration = s.CompletedAt.Sub(s.StartedAt).String()
	}()

	exists, err := o.store.CarrierExists(ctx, usdot)
	if err != nil {
		return o.fail(&s, fmt.Errorf("carrier lookup: %w", err))
	}
	if !exists {
		return o.fail(&s, fmt.Errorf("carrier %d: %w", usdot, domain.ErrNotFound))
	}

	records, err := o.fetcher.InsuranceHistory(ctx, usdot)
	if err != nil {
		return o.fail(&s, fmt.Errorf("fetch insurance history: %w", err))
	}
	if len(records) == 0 {
		s.Status = graph.JobSkipped
		o.log.Info("no insurance data", "usdot", usdot)
		return s
	}

	var policies []domain.InsurancePolicy
	for _, rec := range records {
		p, err := MapRecord(usdot, rec)
		if err != nil {
			var dq *domain.DataQualityError
			if errors.As(err, &dq) {
				s.Skipped++
				s.addError(err)
				continue
			}
			return o.fail(&s, err)
		}
		policies = append(policies, p)
	}
	if len(policies) == 0 {
		s.Status = graph.JobSkipped
		return s
	}

	for _, p := range policies {
		if err := o.persistPolicy(ctx, usdot, p, &s); err != nil {
			s.addError(err)
		}
	}

	sort.Slice(policies, func(i, j int) bool {
		return policies[i].EffectiveDate.Before(policies[j].EffectiveDate)
	})
	o.linkSuccessions(ctx, policies, &s)

	for _, e := range DeriveEvents(usdot, policies) {
		if err := o.store.CreateEvent(ctx, e); err != nil {
			s.addError(fmt.Errorf("event %s: %w", e.EventID, err))
			continue
		}
		s.EventsCreated++
		s.FraudIndicators = appendUnique(s.FraudIndicators, e.FraudIndicators...)
		if e.ComplianceViolation {
			s.ComplianceViolations = appendUnique(s.ComplianceViolations, e.ViolationReason)
		}
	}

	o.refreshDisplayCache(ctx, usdot, policies, &s)

	compliance := searchcarriers.CheckCompliance(usdot, records, domain.DefaultFederalMinimum, o.now())
	for _, v := range compliance.Violations {
		s.ComplianceViolations = appendUnique(s.ComplianceViolations, v.Code)
	}

	if len(s.Errors) > 0 {
		s.Status = graph.JobCompletedWithErrs
	}
	o.log.Info("carrier enriched",
		"usdot", usdot,
		"status", s.Status,
		"policies", s.PoliciesCreated,
		"events", s.EventsCreated,
		"gaps", s.GapsFound,
	)
	return s
}

func (o *Orchestrator) persistPolicy(ctx context.Context, usdot int64, p domain.InsurancePolicy, s *Summary) error {
	if _, err := o.store.GetOrCreateProvider(ctx, p.ProviderName); err != nil {
		return fmt.Errorf("provider %q: %w", p.ProviderName, err)
	}

	known, err := o.store.PolicyExists(ctx, p.PolicyID)
	if err != nil {
		return fmt.Errorf("policy %s: %w", p.PolicyID, err)
	}
	if !known {
		err := o.store.CreatePolicy(ctx, p)
		if err != nil && !errors.Is(err, domain.ErrDuplicate) {
			return fmt.Errorf("policy %s: %w", p.PolicyID, err)
		}
		// A lost duplicate race still links below, but it created nothing.
		if err == nil {
			s.PoliciesCreated++
		}
	}

	if err := o.store.LinkCoveragePeriod(ctx, usdot, p); err != nil {
		return fmt.Errorf("coverage period %s: %w", p.PolicyID, err)
	}
	if err := o.store.LinkProvider(ctx, p.PolicyID, p.ProviderName); err != nil {
		return fmt.Errorf("provider link %s: %w", p.PolicyID, err)
	}
	if err := o.store.LinkCarrierProvider(ctx, usdot, p.ProviderName); err != nil {
		return fmt.Errorf("insured-by link %d: %w", usdot, err)
	}
	return nil
}

// linkSuccessions walks the time-sorted policies and records PRECEDED_BY
// edges wherever a positive gap separates two consecutive policies.
func (o *Orchestrator) linkSuccessions(ctx context.Context, sorted []domain.InsurancePolicy, s *Summary) {
	for i := 1; i < len(sorted); i++ {
		gap := domain.GapDays(sorted[i-1], sorted[i])
		if gap == nil || *gap <= 0 {
			continue
		}
		if err := o.store.LinkSuccession(ctx, sorted[i].PolicyID, sorted[i-1].PolicyID, *gap); err != nil {
			s.addError(fmt.Errorf("succession %s: %w", sorted[i].PolicyID, err))
			continue
		}
		s.GapsFound++
		if *gap > 30 {
			s.ComplianceViolations = appendUnique(s.ComplianceViolations,
				fmt.Sprintf("%d day coverage gap before %s", *gap, sorted[i].PolicyID))
		}
	}
}

// refreshDisplayCache mirrors the newest active policy onto the carrier
// node for cheap listing queries.
func (o *Orchestrator) refreshDisplayCache(ctx context.Context, usdot int64, sorted []domain.InsurancePolicy, s *Summary) {
	today := domain.DateOf(o.now())
	for i := len(sorted) - 1; i >= 0; i-- {
		p := sorted[i]
		if domain.PolicyStatus(p, today) != domain.StatusActive {
			continue
		}
		patch := domain.CarrierPatch{
			InsuranceProvider: &p.ProviderName,
			InsuranceAmount:   &p.CoverageAmount,
		}
		if err := o.store.UpdateCarrier(ctx, usdot, patch); err != nil {
			s.addError(fmt.Errorf("display cache: %w", err))
		}
		return
	}
}

func (o *Orchestrator) fail(s *Summary, err error) Summary {
	s.Status = graph.JobFailed
	s.addError(err)
	o.log.Error("carrier enrichment failed", "usdot", s.CarrierUSDOT, "error", err)
	return *s
}

// RunBatch enriches carriers in batches of ten with pacing between calls
// and a pause between batches. When a job store is configured the job
// record tracks progress and lands on a terminal status.
func (o *Orchestrator) RunBatch(ctx context.Context, jobID string, usdots []int64) ([]Summary, error) {
	if o.jobs != nil && jobID != "" {
		if err := o.jobs.StartJob(ctx, jobID); err != nil {
			o.log.Warn("job start", "job_id", jobID, "error", err)
		}
	}

	summaries := make([]Summary, 0, len(usdots))
	batches := fn.Chunk(usdots, batchSize)
	for bi, batch := range batches {
		for _, usdot := range batch {
			if err := o.limiter.Wait(ctx); err != nil {
				return summaries, err
			}
			s := o.EnrichCarrier(ctx, jobID, usdot)
			summaries = append(summaries, s)
			o.recordProgress(ctx, jobID, s)
		}

		if bi < len(batches)-1 {
			select {
			case <-ctx.Done():
				return summaries, ctx.Err()
			case <-time.After(interBatchDelay):
			}
		}
	}

	if o.jobs != nil && jobID != "" {
		if err := o.jobs.FinishJob(ctx, jobID, batchStatus(summaries)); err != nil {
			o.log.Warn("job finish", "job_id", jobID, "error", err)
		}
	}
	return summaries, nil
}

func (o *Orchestrator) recordProgress(ctx context.Context, jobID string, s Summary) {
	if o.jobs == nil || jobID == "" {
		return
	}
	p := graph.JobProgress{
		Processed:       1,
		PoliciesCreated: int64(s.PoliciesCreated),
		EventsCreated:   int64(s.EventsCreated),
		GapsFound:       int64(s.GapsFound),
	}
	if s.Status == graph.JobFailed {
		p.Failed = 1
		if len(s.Errors) > 0 {
			p.LastError = s.Errors[len(s.Errors)-1]
		}
	} else {
		p.Succeeded = 1
	}
	if err := o.jobs.UpdateJob(ctx, jobID, p); err != nil {
		o.log.Warn("job progress", "job_id", jobID, "error", err)
	}
}

// batchStatus folds per-carrier outcomes into the job's terminal status.
func batchStatus(summaries []Summary) string {
	if len(summaries) == 0 {
		return graph.JobSkipped
	}
	failed, skipped, withErrs := 0, 0, 0
	for _, s := range summaries {
		switch s.Status {
		case graph.JobFailed:
			failed++
		case graph.JobSkipped:
			skipped++
		case graph.JobCompletedWithErrs:
			withErrs++
		}
	}
	switch {
	case failed == len(summaries):
		return graph.JobFailed
	case skipped == len(summaries):
		return graph.JobSkipped
	case failed > 0 || withErrs > 0:
		return graph.JobCompletedWithErrs
	default:
		return graph.JobCompleted
	}
}

func appendUnique(list []string, items ...string) []string {
	return fn.Unique(append(list, items...))
}
