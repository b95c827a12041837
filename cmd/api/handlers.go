package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/HaulGuardAI/haulguard-mvp/engine/domain"
	"github.com/HaulGuardAI/haulguard-mvp/engine/enrich"
	"github.com/HaulGuardAI/haulguard-mvp/engine/graph"
	"github.com/HaulGuardAI/haulguard-mvp/pkg/fn"
	"github.com/HaulGuardAI/haulguard-mvp/pkg/metrics"
	"github.com/HaulGuardAI/haulguard-mvp/pkg/repo"
)

// highRiskOOSThreshold is the out-of-service rate above which a carrier
// qualifies for bulk enrichment.
const highRiskOOSThreshold = 0.5

// insuranceStore is the graph surface the handlers need. *graph.GraphStore
// satisfies it; tests substitute a fake.
type insuranceStore interface {
	CreateCarrier(ctx context.Context, c domain.Carrier) error
	GetCarrier(ctx context.Context, usdot int64) (domain.Carrier, error)
	UpdateCarrier(ctx context.Context, usdot int64, patch domain.CarrierPatch) error
	DeleteCarrier(ctx context.Context, usdot int64) error
	ListCarriers(ctx context.Context, opts repo.ListOpts) ([]domain.Carrier, error)
	HighRiskCarriers(ctx context.Context, oosThreshold float64, limit int) ([]domain.Carrier, error)
	CarrierStatistics(ctx context.Context, usdot int64) (graph.CarrierStats, error)

	CarrierExists(ctx context.Context, usdot int64) (bool, error)
	CreatePolicy(ctx context.Context, p domain.InsurancePolicy) error
	LinkCoveragePeriod(ctx context.Context, usdot int64, p domain.InsurancePolicy) error
	GetPolicy(ctx context.Context, policyID string) (domain.InsurancePolicy, error)
	ListCarrierPolicies(ctx context.Context, usdot int64, opts graph.ListPolicyOpts) ([]domain.InsurancePolicy, error)
	CarrierTimeline(ctx context.Context, usdot int64) ([]graph.TimelineEntry, error)

	CreateEvent(ctx context.Context, e domain.InsuranceEvent) error
	SuspiciousEvents(ctx context.Context, limit int) ([]domain.InsuranceEvent, error)

	GetOrCreateProvider(ctx context.Context, name string) (domain.InsuranceProvider, error)
	GetProvider(ctx context.Context, providerID string) (domain.InsuranceProvider, error)
	ListProviders(ctx context.Context, offset, limit int) ([]domain.InsuranceProvider, error)
	ProviderCarriers(ctx context.Context, providerID string) ([]domain.Carrier, error)
	LinkCarrierProvider(ctx context.Context, usdot int64, providerName string) error
	LinkOfficer(ctx context.Context, usdot int64, fullName string) error
	CarrierOfficers(ctx context.Context, usdot int64) ([]domain.Person, error)
	PersonCarriers(ctx context.Context, personID string) ([]domain.Carrier, error)

	DetectGaps(ctx context.Context, usdot int64, minGapDays int) ([]graph.CoverageGap, error)
	DetectOverlaps(ctx context.Context, usdot int64) ([]graph.CoverageOverlap, error)
	DetectShopping(ctx context.Context, monthsWindow, minProviders int) ([]graph.ShoppingPattern, error)
	FindUnderinsured(ctx context.Context, minimum float64) ([]graph.UnderinsuredCarrier, error)
	RiskScores(ctx context.Context, limit int) ([]graph.RiskScore, error)
	ChameleonPatterns(ctx context.Context, limit int) ([]graph.ChameleonPair, error)

	Summary(ctx context.Context) (graph.InsuranceSummary, error)
	CreateJob(ctx context.Context, usdots []int64) (string, error)
	GetJob(ctx context.Context, jobID string) (graph.EnrichmentJob, error)
}

// publishFunc hands an enrichment request to the queue.
type publishFunc func(ctx context.Context, req enrich.Request) error

type api struct {
	store   insuranceStore
	publish publishFunc
	log     *slog.Logger
}

func newAPI(store insuranceStore, publish publishFunc, reg *metrics.Registry, log *slog.Logger) http.Handler {
	a := &api{store: store, publish: publish, log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.Handle("GET /metrics", reg.Handler())

	mux.HandleFunc("POST /api/insurance/policies", a.createPolicy)
	mux.HandleFunc("GET /api/insurance/policies/{id}", a.getPolicy)
	mux.HandleFunc("GET /api/insurance/carriers/{usdot}/policies", a.listCarrierPolicies)
	mux.HandleFunc("GET /api/insurance/carriers/{usdot}/timeline", a.carrierTimeline)
	mux.HandleFunc("POST /api/insurance/carriers/{usdot}/enrich", a.enrichCarrier)
	mux.HandleFunc("GET /api/insurance/enrichment/{job_id}", a.getJob)
	mux.HandleFunc("POST /api/insurance/events", a.createEvent)

	mux.HandleFunc("GET /api/insurance/fraud/coverage-gaps", a.coverageGaps)
	mux.HandleFunc("GET /api/insurance/fraud/overlaps", a.overlaps)
	mux.HandleFunc("GET /api/insurance/fraud/insurance-shopping", a.insuranceShopping)
	mux.HandleFunc("GET /api/insurance/fraud/underinsured", a.underinsured)
	mux.HandleFunc("GET /api/insurance/fraud/risk-scores", a.riskScores)
	mux.HandleFunc("GET /api/insurance/fraud/chameleon-patterns", a.chameleonPatterns)
	mux.HandleFunc("GET /api/insurance/fraud/suspicious-events", a.suspiciousEvents)

	mux.HandleFunc("GET /api/insurance/statistics/summary", a.summary)
	mux.HandleFunc("POST /api/insurance/bulk-enrich/high-risk", a.bulkEnrichHighRisk)

	mux.HandleFunc("POST /api/carriers", a.createCarrier)
	mux.HandleFunc("GET /api/carriers", a.listCarriers)
	mux.HandleFunc("GET /api/carriers/{usdot}", a.getCarrier)
	mux.HandleFunc("PATCH /api/carriers/{usdot}", a.patchCarrier)
	mux.HandleFunc("DELETE /api/carriers/{usdot}", a.deleteCarrier)
	mux.HandleFunc("GET /api/carriers/{usdot}/statistics", a.carrierStatistics)
	mux.HandleFunc("POST /api/carriers/{usdot}/insurance", a.linkCarrierInsurance)
	mux.HandleFunc("POST /api/carriers/{usdot}/officer", a.linkCarrierOfficer)
	mux.HandleFunc("GET /api/carriers/{usdot}/officers", a.carrierOfficers)
	mux.HandleFunc("GET /api/persons/{id}/carriers", a.personCarriers)

	mux.HandleFunc("POST /api/providers", a.createProvider)
	mux.HandleFunc("GET /api/providers", a.listProviders)
	mux.HandleFunc("GET /api/providers/{id}", a.getProvider)
	mux.HandleFunc("GET /api/providers/{id}/carriers", a.providerCarriers)

	return mux
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Policies ---

func (a *api) createPolicy(w http.ResponseWriter, r *http.Request) {
	var p domain.InsurancePolicy
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if err := a.store.CreatePolicy(r.Context(), p); err != nil {
		a.writeError(w, err)
		return
	}
	// Attach the coverage edge when the carrier node already exists, so the
	// policy is reachable from the timeline and fraud queries.
	exists, err := a.store.CarrierExists(r.Context(), p.CarrierUSDOT)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if exists {
		if err := a.store.LinkCoveragePeriod(r.Context(), p.CarrierUSDOT, p); err != nil {
			a.writeError(w, err)
			return
		}
	}
	respond(w, http.StatusCreated, p)
}

func (a *api) getPolicy(w http.ResponseWriter, r *http.Request) {
	p, err := a.store.GetPolicy(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	respond(w, http.StatusOK, p)
}

func (a *api) listCarrierPolicies(w http.ResponseWriter, r *http.Request) {
	usdot, ok := usdotPath(w, r)
	if !ok {
		return
	}
	opts := graph.ListPolicyOpts{
		ActiveOnly:     boolQuery(r, "active_only"),
		IncludeExpired: boolQuery(r, "include_expired"),
	}
	policies, err := a.store.ListCarrierPolicies(r.Context(), usdot, opts)
	if err != nil {
		a.writeError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{"usdot": usdot, "policies": policies, "count": len(policies)})
}

func (a *api) carrierTimeline(w http.ResponseWriter, r *http.Request) {
	usdot, ok := usdotPath(w, r)
	if !ok {
		return
	}
	entries, err := a.store.CarrierTimeline(r.Context(), usdot)
	if err != nil {
		a.writeError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{"usdot": usdot, "timeline": entries, "count": len(entries)})
}

// --- Enrichment ---

func (a *api) enrichCarrier(w http.ResponseWriter, r *http.Request) {
	usdot, ok := usdotPath(w, r)
	if !ok {
		return
	}
	jobID, err := a.store.CreateJob(r.Context(), []int64{usdot})
	if err != nil {
		a.writeError(w, err)
		return
	}
	if err := a.publish(r.Context(), enrich.Request{JobID: jobID, USDOTs: []int64{usdot}}); err != nil {
		a.log.Error("publish enrichment request", "err", err, "usdot", usdot)
		a.writeError(w, err)
		return
	}
	respond(w, http.StatusAccepted, map[string]any{"job_id": jobID, "usdot": usdot})
}

func (a *api) getJob(w http.ResponseWriter, r *http.Request) {
	job, err := a.store.GetJob(r.Context(), r.PathValue("job_id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	respond(w, http.StatusOK, job)
}

func (a *api) bulkEnrichHighRisk(w http.ResponseWriter, r *http.Request) {
	limit := intQuery(r, "limit", 100)
	carriers, err := a.store.HighRiskCarriers(r.Context(), highRiskOOSThreshold, limit)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if len(carriers) == 0 {
		respond(w, http.StatusOK, map[string]any{"carrier_count": 0})
		return
	}
	usdots := fn.Map(carriers, func(c domain.Carrier) int64 { return c.USDOT })
	jobID, err := a.store.CreateJob(r.Context(), usdots)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if err := a.publish(r.Context(), enrich.Request{JobID: jobID, USDOTs: usdots}); err != nil {
		a.log.Error("publish bulk enrichment request", "err", err)
		a.writeError(w, err)
		return
	}
	respond(w, http.StatusAccepted, map[string]any{"job_id": jobID, "carrier_count": len(usdots)})
}

// --- Events ---

func (a *api) createEvent(w http.ResponseWriter, r *http.Request) {
	var e domain.InsuranceEvent
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if err := a.store.CreateEvent(r.Context(), e); err != nil {
		a.writeError(w, err)
		return
	}
	respond(w, http.StatusCreated, e)
}

func (a *api) suspiciousEvents(w http.ResponseWriter, r *http.Request) {
	events, err := a.store.SuspiciousEvents(r.Context(), intQuery(r, "limit", 50))
	if err != nil {
		a.writeError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{"events": events, "count": len(events)})
}

// --- Fraud detection ---

func (a *api) coverageGaps(w http.ResponseWriter, r *http.Request) {
	usdot := int64Query(r, "carrier_usdot", 0)
	gaps, err := a.store.DetectGaps(r.Context(), usdot, intQuery(r, "min_gap_days", 1))
	if err != nil {
		a.writeError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{"gaps": gaps, "count": len(gaps)})
}

func (a *api) overlaps(w http.ResponseWriter, r *http.Request) {
	overlaps, err := a.store.DetectOverlaps(r.Context(), int64Query(r, "carrier_usdot", 0))
	if err != nil {
		a.writeError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{"overlaps": overlaps, "count": len(overlaps)})
}

func (a *api) insuranceShopping(w http.ResponseWriter, r *http.Request) {
	patterns, err := a.store.DetectShopping(r.Context(),
		intQuery(r, "months_window", 24), intQuery(r, "min_providers", 3))
	if err != nil {
		a.writeError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{"patterns": patterns, "count": len(patterns)})
}

func (a *api) underinsured(w http.ResponseWriter, r *http.Request) {
	var minimum float64
	if cargo := r.URL.Query().Get("cargo_type"); cargo != "" {
		minimum = domain.FederalMinimum(domain.CargoType(strings.ToUpper(cargo)))
	}
	carriers, err := a.store.FindUnderinsured(r.Context(), minimum)
	if err != nil {
		a.writeError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{"carriers": carriers, "count": len(carriers)})
}

func (a *api) riskScores(w http.ResponseWriter, r *http.Request) {
	scores, err := a.store.RiskScores(r.Context(), intQuery(r, "limit", 50))
	if err != nil {
		a.writeError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{"scores": scores, "count": len(scores)})
}

func (a *api) chameleonPatterns(w http.ResponseWriter, r *http.Request) {
	pairs, err := a.store.ChameleonPatterns(r.Context(), intQuery(r, "limit", 50))
	if err != nil {
		a.writeError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{"pairs": pairs, "count": len(pairs)})
}

func (a *api) summary(w http.ResponseWriter, r *http.Request) {
	s, err := a.store.Summary(r.Context())
	if err != nil {
		a.writeError(w, err)
		return
	}
	respond(w, http.StatusOK, s)
}

// --- Carriers ---

func (a *api) createCarrier(w http.ResponseWriter, r *http.Request) {
	var c domain.Carrier
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if err := a.store.CreateCarrier(r.Context(), c); err != nil {
		a.writeError(w, err)
		return
	}
	respond(w, http.StatusCreated, c)
}

func (a *api) listCarriers(w http.ResponseWriter, r *http.Request) {
	carriers, err := a.store.ListCarriers(r.Context(), repo.ListOpts{
		Offset: intQuery(r, "offset", 0),
		Limit:  intQuery(r, "limit", 100),
	})
	if err != nil {
		a.writeError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{"carriers": carriers, "count": len(carriers)})
}

func (a *api) getCarrier(w http.ResponseWriter, r *http.Request) {
	usdot, ok := usdotPath(w, r)
	if !ok {
		return
	}
	c, err := a.store.GetCarrier(r.Context(), usdot)
	if err != nil {
		a.writeError(w, err)
		return
	}
	respond(w, http.StatusOK, c)
}

func (a *api) patchCarrier(w http.ResponseWriter, r *http.Request) {
	usdot, ok := usdotPath(w, r)
	if !ok {
		return
	}
	var patch domain.CarrierPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if err := a.store.UpdateCarrier(r.Context(), usdot, patch); err != nil {
		a.writeError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{"usdot": usdot, "status": "updated"})
}

func (a *api) deleteCarrier(w http.ResponseWriter, r *http.Request) {
	usdot, ok := usdotPath(w, r)
	if !ok {
		return
	}
	if err := a.store.DeleteCarrier(r.Context(), usdot); err != nil {
		a.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) carrierStatistics(w http.ResponseWriter, r *http.Request) {
	usdot, ok := usdotPath(w, r)
	if !ok {
		return
	}
	stats, err := a.store.CarrierStatistics(r.Context(), usdot)
	if err != nil {
		a.writeError(w, err)
		return
	}
	respond(w, http.StatusOK, stats)
}

func (a *api) linkCarrierInsurance(w http.ResponseWriter, r *http.Request) {
	usdot, ok := usdotPath(w, r)
	if !ok {
		return
	}
	var body struct {
		ProviderName string `json:"provider_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ProviderName == "" {
		badRequest(w, "provider_name is required")
		return
	}
	if err := a.store.LinkCarrierProvider(r.Context(), usdot, body.ProviderName); err != nil {
		a.writeError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{"usdot": usdot, "provider": body.ProviderName, "status": "linked"})
}

func (a *api) linkCarrierOfficer(w http.ResponseWriter, r *http.Request) {
	usdot, ok := usdotPath(w, r)
	if !ok {
		return
	}
	var body struct {
		FullName string `json:"full_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.FullName == "" {
		badRequest(w, "full_name is required")
		return
	}
	if err := a.store.LinkOfficer(r.Context(), usdot, body.FullName); err != nil {
		a.writeError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{"usdot": usdot, "officer": body.FullName, "status": "linked"})
}

func (a *api) carrierOfficers(w http.ResponseWriter, r *http.Request) {
	usdot, ok := usdotPath(w, r)
	if !ok {
		return
	}
	officers, err := a.store.CarrierOfficers(r.Context(), usdot)
	if err != nil {
		a.writeError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{"usdot": usdot, "officers": officers, "count": len(officers)})
}

func (a *api) personCarriers(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	carriers, err := a.store.PersonCarriers(r.Context(), id)
	if err != nil {
		a.writeError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{"person_id": id, "carriers": carriers, "count": len(carriers)})
}

// --- Providers ---

func (a *api) createProvider(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if strings.TrimSpace(body.Name) == "" {
		badRequest(w, "name is required")
		return
	}
	p, err := a.store.GetOrCreateProvider(r.Context(), body.Name)
	if err != nil {
		a.writeError(w, err)
		return
	}
	respond(w, http.StatusCreated, p)
}

func (a *api) listProviders(w http.ResponseWriter, r *http.Request) {
	providers, err := a.store.ListProviders(r.Context(), intQuery(r, "skip", 0), intQuery(r, "limit", 100))
	if err != nil {
		a.writeError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{"providers": providers, "count": len(providers)})
}

func (a *api) getProvider(w http.ResponseWriter, r *http.Request) {
	p, err := a.store.GetProvider(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	respond(w, http.StatusOK, p)
}

func (a *api) providerCarriers(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	carriers, err := a.store.ProviderCarriers(r.Context(), id)
	if err != nil {
		a.writeError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{"provider_id": id, "carriers": carriers, "count": len(carriers)})
}

// --- Helpers ---

func respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, msg string) {
	respond(w, http.StatusBadRequest, map[string]string{"error": msg})
}

// writeError maps domain errors to status codes. Anything unrecognized is
// logged and reported as a generic 500.
func (a *api) writeError(w http.ResponseWriter, err error) {
	var vErr *domain.ValidationError
	switch {
	case errors.As(err, &vErr):
		respond(w, http.StatusUnprocessableEntity, map[string]string{
			"error": "validation failed", "field": vErr.Field, "detail": vErr.Error(),
		})
	case errors.Is(err, domain.ErrDuplicate):
		respond(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		respond(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	default:
		a.log.Error("request failed", "err", err)
		respond(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

func usdotPath(w http.ResponseWriter, r *http.Request) (int64, bool) {
	usdot, err := strconv.ParseInt(r.PathValue("usdot"), 10, 64)
	if err != nil || usdot <= 0 {
		badRequest(w, "usdot must be a positive integer")
		return 0, false
	}
	return usdot, true
}

func intQuery(r *http.Request, name string, fallback int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func int64Query(r *http.Request, name string, fallback int64) int64 {
	if v := r.URL.Query().Get(name); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func boolQuery(r *http.Request, name string) bool {
	v := r.URL.Query().Get(name)
	return v == "true" || v == "1"
}
