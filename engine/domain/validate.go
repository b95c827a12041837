package domain

import (
	"fmt"
	"strings"
)

// ValidatePolicy enforces the policy invariants at the store boundary:
// an id and effective date are required, coverage cannot be negative, and
// neither end date may precede the effective date.
func ValidatePolicy(p InsurancePolicy) error {
	if strings.TrimSpace(p.PolicyID) == "" {
		return NewValidationError("policy_id", p.PolicyID, ErrMissingIdentifier)
	}
	if p.CarrierUSDOT <= 0 {
		return NewValidationError("carrier_usdot", fmt.Sprintf("%d", p.CarrierUSDOT), ErrMissingIdentifier)
	}
	if p.EffectiveDate.IsZero() {
		return NewValidationError("effective_date", "", ErrMissingEffectiveDate)
	}
	if p.CoverageAmount < 0 {
		return NewValidationError("coverage_amount", fmt.Sprintf("%.2f", p.CoverageAmount), ErrNegativeCoverage)
	}
	if p.CargoCoverage != nil && *p.CargoCoverage < 0 {
		return NewValidationError("cargo_coverage", fmt.Sprintf("%.2f", *p.CargoCoverage), ErrNegativeCoverage)
	}
	if p.ExpirationDate != nil && p.ExpirationDate.Before(p.EffectiveDate) {
		return NewValidationError("expiration_date", p.ExpirationDate.String(), ErrEndBeforeStart)
	}
	if p.CancellationDate != nil && p.CancellationDate.Before(p.EffectiveDate) {
		return NewValidationError("cancellation_date", p.CancellationDate.String(), ErrEndBeforeStart)
	}
	if p.FilingStatus != "" && !ValidFilingStatuses[p.FilingStatus] {
		return NewValidationError("filing_status", string(p.FilingStatus), ErrInvalidFilingStatus)
	}
	return nil
}

// ValidateEvent enforces event invariants before any write.
func ValidateEvent(e InsuranceEvent) error {
	if strings.TrimSpace(e.EventID) == "" {
		return NewValidationError("event_id", e.EventID, ErrMissingIdentifier)
	}
	if e.CarrierUSDOT <= 0 {
		return NewValidationError("carrier_usdot", fmt.Sprintf("%d", e.CarrierUSDOT), ErrMissingIdentifier)
	}
	if !ValidEventTypes[e.EventType] {
		return NewValidationError("event_type", string(e.EventType), ErrInvalidEventType)
	}
	if e.EventDate.IsZero() {
		return NewValidationError("event_date", "", ErrMissingEffectiveDate)
	}
	if e.DaysWithoutCoverage != nil && *e.DaysWithoutCoverage < 0 {
		return NewValidationError("days_without_coverage", fmt.Sprintf("%d", *e.DaysWithoutCoverage), ErrNegativeCoverage)
	}
	return nil
}

// ValidateCarrier checks the minimal carrier invariants.
func ValidateCarrier(c Carrier) error {
	if c.USDOT <= 0 {
		return NewValidationError("usdot", fmt.Sprintf("%d", c.USDOT), ErrMissingIdentifier)
	}
	if strings.TrimSpace(c.Name) == "" {
		return NewValidationError("carrier_name", c.Name, ErrMissingIdentifier)
	}
	return nil
}

// ValidateProvider checks that a provider carries its unique name.
func ValidateProvider(p InsuranceProvider) error {
	if strings.TrimSpace(p.Name) == "" {
		return NewValidationError("name", p.Name, ErrMissingIdentifier)
	}
	return nil
}
