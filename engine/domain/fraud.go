package domain

// Fraud pattern tags attached to suspicious events. Tags are independent;
// one event may carry several.
const (
	PatternExtendedGap       = "extended_coverage_gap"
	PatternProviderShopping  = "provider_shopping"
	PatternCoverageReduction = "significant_coverage_reduction"
	PatternFinancialDistress = "financial_distress"
	PatternCoverageLapse     = "coverage_lapse"
)

// ReasonNonPayment is the cancellation reason that signals financial distress.
const ReasonNonPayment = "NON_PAYMENT"

// coverageReductionThreshold flags drops of more than $100k.
const coverageReductionThreshold = -100_000

// FraudPatterns inspects a single event and returns the pattern tags it
// exhibits. Empty when nothing is suspicious.
func FraudPatterns(e InsuranceEvent) []string {
	var patterns []string

	if e.DaysWithoutCoverage != nil && *e.DaysWithoutCoverage > 30 {
		patterns = append(patterns, PatternExtendedGap)
	}
	if e.EventType == EventProviderChange {
		patterns = append(patterns, PatternProviderShopping)
	}
	if e.CoverageChange != nil && *e.CoverageChange < coverageReductionThreshold {
		patterns = append(patterns, PatternCoverageReduction)
	}
	if e.EventType == EventCancellation && e.Reason == ReasonNonPayment {
		patterns = append(patterns, PatternFinancialDistress)
	}
	if e.EventType == EventLapse {
		patterns = append(patterns, PatternCoverageLapse)
	}

	return patterns
}

// ProviderStabilityScore scores how settled a carrier's insurer choice is,
// from provider changes in the 12 months before the given event. 1.0 means
// stable, 0.2 means churning.
func ProviderStabilityScore(e InsuranceEvent, history []InsuranceEvent) float64 {
	if len(history) == 0 {
		return 1.0
	}
	changes := 0
	for _, prev := range history {
		if prev.EventType != EventProviderChange {
			continue
		}
		if prev.EventDate.DaysUntil(e.EventDate) <= 365 {
			changes++
		}
	}
	switch {
	case changes == 0:
		return 1.0
	case changes == 1:
		return 0.8
	case changes == 2:
		return 0.5
	default:
		return 0.2
	}
}

// eventRiskWeights assigns a base risk per event type.
var eventRiskWeights = map[EventType]float64{
	EventCancellation:     0.3,
	EventLapse:            0.4,
	EventProviderChange:   0.2,
	EventCoverageDecrease: 0.2,
	EventNewPolicy:        0.1,
	EventRenewal:          0.0,
	EventCoverageIncrease: 0.0,
}

// EventRiskScore scores a single event in [0, 1].
func EventRiskScore(e InsuranceEvent) float64 {
	score, ok := eventRiskWeights[e.EventType]
	if !ok {
		score = 0.1
	}

	if e.DaysWithoutCoverage != nil {
		switch {
		case *e.DaysWithoutCoverage > 30:
			score += 0.3
		case *e.DaysWithoutCoverage > 7:
			score += 0.1
		}
	}
	if e.ComplianceViolation {
		score += 0.2
	}
	if e.IsSuspicious {
		score += 0.1
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}
