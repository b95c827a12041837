package graph

import (
	"github.com/HaulGuardAI/haulguard-mvp/engine/domain"
)

// CoverageGap is one uncovered stretch between two successive policies of a
// carrier, as reported by DetectGaps.
type CoverageGap struct {
	CarrierUSDOT int64       `json:"carrier_usdot"`
	CarrierName  string      `json:"carrier_name"`
	FromPolicy   string      `json:"from_policy"`
	ToPolicy     string      `json:"to_policy"`
	FromProvider string      `json:"from_provider"`
	ToProvider   string      `json:"to_provider"`
	GapStart     domain.Date `json:"gap_start"`
	GapEnd       domain.Date `json:"gap_end"`
	GapDays      int64       `json:"gap_days"`
}

// CoverageOverlap is a pair of coverage periods for the same carrier that
// overlap in time, a double-coverage anomaly worth reviewing.
type CoverageOverlap struct {
	CarrierUSDOT int64        `json:"carrier_usdot"`
	CarrierName  string       `json:"carrier_name"`
	Policy1      string       `json:"policy_1"`
	Policy2      string       `json:"policy_2"`
	Provider1    string       `json:"provider_1"`
	Provider2    string       `json:"provider_2"`
	Start1       domain.Date  `json:"start_1"`
	End1         *domain.Date `json:"end_1"`
	Start2       domain.Date  `json:"start_2"`
	End2         *domain.Date `json:"end_2"`
	OverlapDays  int          `json:"overlap_days"`
}

// ShoppingPattern flags a carrier that moved across many providers inside a
// trailing window.
type ShoppingPattern struct {
	CarrierUSDOT  int64    `json:"carrier_usdot"`
	CarrierName   string   `json:"carrier_name"`
	ProviderCount int64    `json:"provider_count"`
	Providers     []string `json:"providers"`
	MonthsWindow  int      `json:"months_window"`
	ShoppingRatio float64  `json:"shopping_ratio"`
}

// RiskScore is the composite 0-100 fraud risk for one carrier together with
// every factor that contributed to it.
type RiskScore struct {
	CarrierUSDOT         int64  `json:"carrier_usdot"`
	CarrierName          string `json:"carrier_name"`
	Score                int64  `json:"risk_score"`
	PolicyCount          int64  `json:"policy_count"`
	ProviderCount        int64  `json:"provider_count"`
	Cancellations        int64  `json:"cancellations"`
	ComplianceViolations int64  `json:"compliance_violations"`
	MaxCoverageGap       int64  `json:"max_coverage_gap"`
}

// ChameleonPair is two distinct carriers sharing both an officer and an
// insurance provider, the classic reincarnated-carrier shape.
type ChameleonPair struct {
	Carrier1USDOT      int64  `json:"carrier_1_usdot"`
	Carrier1Name       string `json:"carrier_1_name"`
	Carrier2USDOT      int64  `json:"carrier_2_usdot"`
	Carrier2Name       string `json:"carrier_2_name"`
	SharedOfficer      string `json:"shared_officer"`
	SharedProviders    int64  `json:"shared_providers"`
	Carrier1Violations int64  `json:"carrier_1_violations"`
	Carrier2Violations int64  `json:"carrier_2_violations"`
}

type UnderinsuredCarrier struct {
	CarrierUSDOT    int64   `json:"carrier_usdot"`
	CarrierName     string  `json:"carrier_name"`
	PolicyID        string  `json:"policy_id"`
	ProviderName    string  `json:"provider_name"`
	CoverageAmount  float64 `json:"coverage_amount"`
	RequiredMinimum float64 `json:"required_minimum"`
	Shortage        float64 `json:"shortage"`
}

// TimelineEntry is one item in a carrier's merged insurance history. Exactly
// one of Policy or Event is set; Kind says which.
type TimelineEntry struct {
	Kind   string                  `json:"kind"`
	Date   domain.Date             `json:"date"`
	Policy *domain.InsurancePolicy `json:"policy,omitempty"`
	Event  *domain.InsuranceEvent  `json:"event,omitempty"`
}

// CarrierStats aggregates a single carrier's graph neighborhood.
type CarrierStats struct {
	CarrierUSDOT     int64   `json:"carrier_usdot"`
	CarrierName      string  `json:"carrier_name"`
	PolicyCount      int64   `json:"policy_count"`
	ActivePolicies   int64   `json:"active_policies"`
	ProviderCount    int64   `json:"provider_count"`
	EventCount       int64   `json:"event_count"`
	SuspiciousEvents int64   `json:"suspicious_events"`
	TotalCoverage    float64 `json:"total_coverage"`
}

// InsuranceSummary is the whole-graph rollup served at /api/stats.
type InsuranceSummary struct {
	Carriers        int64 `json:"carriers"`
	Policies        int64 `json:"policies"`
	Events          int64 `json:"events"`
	Providers       int64 `json:"providers"`
	CoverageEdges   int64 `json:"coverage_edges"`
	SuccessionEdges int64 `json:"succession_edges"`
}
