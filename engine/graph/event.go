package graph

import (
	"context"
	"fmt"

	"github.com/HaulGuardAI/haulguard-mvp/engine/domain"
)

// CreateEvent merges an insurance event and its edge from the carrier.
// The carrier must already exist; merging on event_id makes re-enrichment
// idempotent.
func (g *GraphStore) CreateEvent(ctx context.Context, e domain.InsuranceEvent) error {
	if err := domain.ValidateEvent(e); err != nil {
		return err
	}
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, `
		MATCH (c:Carrier {usdot: $usdot})
		MERGE (ie:InsuranceEvent {event_id: $event_id})
		ON CREATE SET ie = $props, ie.created_at = datetime()
		MERGE (c)-[:INSURANCE_EVENT]->(ie)
		RETURN ie.event_id`,
		map[string]any{
			"usdot":    e.CarrierUSDOT,
			"event_id": e.EventID,
			"props":    eventToMap(e),
		})
	if err != nil {
		return fmt.Errorf("create event %s: %w", e.EventID, err)
	}
	if !res.Next(ctx) {
		return fmt.Errorf("create event %s: carrier %d: %w", e.EventID, e.CarrierUSDOT, domain.ErrNotFound)
	}
	return nil
}

// ListCarrierEvents returns a carrier's events ordered by event date.
func (g *GraphStore) ListCarrierEvents(ctx context.Context, usdot int64) ([]domain.InsuranceEvent, error) {
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, `
		MATCH (c:Carrier {usdot: $usdot})-[:INSURANCE_EVENT]->(ie:InsuranceEvent)
		RETURN ie ORDER BY ie.event_date`,
		map[string]any{"usdot": usdot})
	if err != nil {
		return nil, err
	}
	var out []domain.InsuranceEvent
	for res.Next(ctx) {
		if props, ok := nodeProps(res.Record(), "ie"); ok {
			e := eventFromProps(props)
			if e.CarrierUSDOT == 0 {
				e.CarrierUSDOT = usdot
			}
			out = append(out, e)
		}
	}
	return out, res.Err()
}

// SuspiciousEvents returns flagged events across all carriers, most
// recent first.
func (g *GraphStore) SuspiciousEvents(ctx context.Context, limit int) ([]domain.InsuranceEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, `
		MATCH (c:Carrier)-[:INSURANCE_EVENT]->(ie:InsuranceEvent)
		WHERE ie.is_suspicious = true
		RETURN ie, c.usdot AS usdot
		ORDER BY ie.event_date DESC
		LIMIT $limit`,
		map[string]any{"limit": limit})
	if err != nil {
		return nil, err
	}
	var out []domain.InsuranceEvent
	for res.Next(ctx) {
		rec := res.Record()
		if props, ok := nodeProps(rec, "ie"); ok {
			e := eventFromProps(props)
			if e.CarrierUSDOT == 0 {
				e.CarrierUSDOT = int64Field(rec, "usdot")
			}
			out = append(out, e)
		}
	}
	return out, res.Err()
}

func eventToMap(e domain.InsuranceEvent) map[string]any {
	m := map[string]any{
		"event_id":             e.EventID,
		"carrier_usdot":        e.CarrierUSDOT,
		"event_type":           string(e.EventType),
		"event_date":           e.EventDate.String(),
		"compliance_violation": e.ComplianceViolation,
		"is_suspicious":        e.IsSuspicious,
	}
	putStr(m, "previous_provider", e.PreviousProvider)
	putStr(m, "new_provider", e.NewProvider)
	if e.PreviousCoverage != nil {
		m["previous_coverage"] = *e.PreviousCoverage
	}
	if e.NewCoverage != nil {
		m["new_coverage"] = *e.NewCoverage
	}
	if e.CoverageChange != nil {
		m["coverage_change"] = *e.CoverageChange
	}
	if e.DaysWithoutCoverage != nil {
		m["days_without_coverage"] = *e.DaysWithoutCoverage
	}
	putStr(m, "previous_policy_id", e.PreviousPolicyID)
	putStr(m, "new_policy_id", e.NewPolicyID)
	putStr(m, "violation_reason", e.ViolationReason)
	if len(e.FraudIndicators) > 0 {
		m["fraud_indicators"] = e.FraudIndicators
	}
	putStr(m, "reason", e.Reason)
	putStr(m, "notes", e.Notes)
	putStr(m, "data_source", e.DataSource)
	return m
}

func eventFromProps(props map[string]any) domain.InsuranceEvent {
	e := domain.InsuranceEvent{
		EventID:             asString(props["event_id"]),
		CarrierUSDOT:        asInt64(props["carrier_usdot"]),
		EventType:           domain.EventType(asString(props["event_type"])),
		EventDate:           asDate(props["event_date"]),
		PreviousProvider:    asString(props["previous_provider"]),
		NewProvider:         asString(props["new_provider"]),
		PreviousPolicyID:    asString(props["previous_policy_id"]),
		NewPolicyID:         asString(props["new_policy_id"]),
		ComplianceViolation: asBool(props["compliance_violation"]),
		ViolationReason:     asString(props["violation_reason"]),
		IsSuspicious:        asBool(props["is_suspicious"]),
		Reason:              asString(props["reason"]),
		Notes:               asString(props["notes"]),
		DataSource:          asString(props["data_source"]),
	}
	if v, ok := props["previous_coverage"]; ok {
		f := asFloat(v)
		e.PreviousCoverage = &f
	}
	if v, ok := props["new_coverage"]; ok {
		f := asFloat(v)
		e.NewCoverage = &f
	}
	if v, ok := props["coverage_change"]; ok {
		f := asFloat(v)
		e.CoverageChange = &f
	}
	if v, ok := props["days_without_coverage"]; ok {
		n := int(asInt64(v))
		e.DaysWithoutCoverage = &n
	}
	if v, ok := props["fraud_indicators"].([]any); ok {
		for _, item := range v {
			e.FraudIndicators = append(e.FraudIndicators, asString(item))
		}
	}
	return e
}
