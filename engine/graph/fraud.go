package graph

import (
	"context"
	"fmt"

	"github.com/HaulGuardAI/haulguard-mvp/engine/domain"
)

// DetectGaps finds uncovered stretches between consecutive policies. A zero
// usdot scans every carrier. Gaps shorter than minGapDays are dropped;
// open-ended earlier policies produce no gap.
func (g *GraphStore) DetectGaps(ctx context.Context, usdot int64, minGapDays int) ([]CoverageGap, error) {
	if minGapDays < 1 {
		minGapDays = 1
	}
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, `
		MATCH (c:Carrier)-[:HAD_INSURANCE]->(ip:InsurancePolicy)
		WHERE $usdot = 0 OR c.usdot = $usdot
		WITH c, ip ORDER BY ip.effective_date
		WITH c, collect(ip) AS policies
		WHERE size(policies) > 1
		UNWIND range(0, size(policies) - 2) AS i
		WITH c, policies[i] AS p1, policies[i + 1] AS p2
		WITH c, p1, p2,
		     CASE
		       WHEN p1.cancellation_date IS NOT NULL THEN p1.cancellation_date
		       WHEN p1.expiration_date IS NOT NULL THEN p1.expiration_date
		       ELSE NULL
		     END AS p1_end
		WHERE p1_end IS NOT NULL AND p2.effective_date > p1_end
		WITH c, p1, p2, p1_end,
		     duration.between(date(p1_end), date(p2.effective_date)).days AS gap_days
		WHERE gap_days >= $min_gap_days
		RETURN c.usdot AS usdot,
		       c.carrier_name AS name,
		       p1.policy_id AS from_policy,
		       p2.policy_id AS to_policy,
		       p1.provider_name AS from_provider,
		       p2.provider_name AS to_provider,
		       p1_end AS gap_start,
		       p2.effective_date AS gap_end,
		       gap_days
		ORDER BY gap_days DESC`,
		map[string]any{"usdot": usdot, "min_gap_days": minGapDays})
	if err != nil {
		return nil, fmt.Errorf("detect gaps: %w", err)
	}

	var out []CoverageGap
	for res.Next(ctx) {
		rec := res.Record()
		out = append(out, CoverageGap{
			CarrierUSDOT: int64Field(rec, "usdot"),
			CarrierName:  strField(rec, "name"),
			FromPolicy:   strField(rec, "from_policy"),
			ToPolicy:     strField(rec, "to_policy"),
			FromProvider: strField(rec, "from_provider"),
			ToProvider:   strField(rec, "to_provider"),
			GapStart:     dateField(rec, "gap_start"),
			GapEnd:       dateField(rec, "gap_end"),
			GapDays:      int64Field(rec, "gap_days"),
		})
	}
	return out, res.Err()
}

// DetectOverlaps finds pairs of coverage periods for the same carrier that
// overlap in time. Periods that merely touch do not count. The id ordering
// keeps each pair from appearing twice.
func (g *GraphStore) DetectOverlaps(ctx context.Context, usdot int64) ([]CoverageOverlap, error) {
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, `
		MATCH (c:Carrier)-[r1:HAD_INSURANCE]->(p1:InsurancePolicy)
		MATCH (c)-[r2:HAD_INSURANCE]->(p2:InsurancePolicy)
		WHERE ($usdot = 0 OR c.usdot = $usdot)
		  AND elementId(r1) < elementId(r2)
		  AND r1.from_date < r2.from_date
		  AND (r1.to_date IS NULL OR r1.to_date > r2.from_date)
		RETURN c.usdot AS usdot,
		       c.carrier_name AS name,
		       p1.policy_id AS policy_1,
		       p2.policy_id AS policy_2,
		       p1.provider_name AS provider_1,
		       p2.provider_name AS provider_2,
		       r1.from_date AS start_1,
		       r1.to_date AS end_1,
		       r2.from_date AS start_2,
		       r2.to_date AS end_2
		ORDER BY c.usdot, r1.from_date`,
		map[string]any{"usdot": usdot})
	if err != nil {
		return nil, fmt.Errorf("detect overlaps: %w", err)
	}

	today := domain.DateOf(g.now())
	var out []CoverageOverlap
	for res.Next(ctx) {
		rec := res.Record()
		o := CoverageOverlap{
			CarrierUSDOT: int64Field(rec, "usdot"),
			CarrierName:  strField(rec, "name"),
			Policy1:      strField(rec, "policy_1"),
			Policy2:      strField(rec, "policy_2"),
			Provider1:    strField(rec, "provider_1"),
			Provider2:    strField(rec, "provider_2"),
			Start1:       dateField(rec, "start_1"),
			End1:         datePtrField(rec, "end_1"),
			Start2:       dateField(rec, "start_2"),
			End2:         datePtrField(rec, "end_2"),
		}
		o.OverlapDays = domain.OverlapDays(
			domain.Period{From: o.Start1, To: o.End1},
			domain.Period{From: o.Start2, To: o.End2},
			today,
		)
		out = append(out, o)
	}
	return out, res.Err()
}

// UncoveredDays computes how many days inside [windowStart, windowEnd) a
// carrier had no coverage at all. Overlapping periods are merged first, so
// the covered and uncovered totals always sum to the window length.
func (g *GraphStore) UncoveredDays(ctx context.Context, usdot int64, windowStart, windowEnd domain.Date) (int, error) {
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, `
		MATCH (c:Carrier {usdot: $usdot})-[r:HAD_INSURANCE]->(:InsurancePolicy)
		RETURN r.from_date AS from_date, r.to_date AS to_date`,
		map[string]any{"usdot": usdot})
	if err != nil {
		return 0, fmt.Errorf("uncovered days for %d: %w", usdot, err)
	}

	var periods []domain.Period
	for res.Next(ctx) {
		rec := res.Record()
		from := dateField(rec, "from_date")
		if from.IsZero() {
			continue
		}
		periods = append(periods, domain.Period{From: from, To: datePtrField(rec, "to_date")})
	}
	if err := res.Err(); err != nil {
		return 0, err
	}
	return domain.UncoveredDays(periods, windowStart, windowEnd), nil
}

// RiskScores computes the composite 0-100 fraud risk for every carrier.
// Carriers with no insurance history at all score 100. Only carriers with a
// positive score are returned, highest first.
func (g *GraphStore) RiskScores(ctx context.Context, limit int) ([]RiskScore, error) {
	if limit <= 0 {
		limit = 100
	}
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, `
		MATCH (c:Carrier)
		OPTIONAL MATCH (c)-[:HAD_INSURANCE]->(ip:InsurancePolicy)
		OPTIONAL MATCH (c)-[:INSURANCE_EVENT]->(ie:InsuranceEvent)
		OPTIONAL MATCH (c)-[:HAD_INSURANCE]->(:InsurancePolicy)<-[pr:PRECEDED_BY]-(:InsurancePolicy)
		WITH c,
		     count(DISTINCT ip) AS policy_count,
		     count(DISTINCT ip.provider_name) AS provider_count,
		     count(DISTINCT CASE WHEN ie.event_type = 'CANCELLATION' THEN ie END) AS cancellations,
		     count(DISTINCT CASE WHEN ie.compliance_violation = true THEN ie END) AS violations,
		     coalesce(max(pr.gap_days), 0) AS max_gap
		WITH c, policy_count, provider_count, cancellations, violations, max_gap,
		     CASE
		       WHEN policy_count = 0 THEN 100
		       ELSE
		         (CASE WHEN provider_count > 3 THEN 25 ELSE 0 END) +
		         (CASE WHEN cancellations > 2 THEN 25 ELSE cancellations * 10 END) +
		         (CASE WHEN violations > 0 THEN 25 ELSE 0 END) +
		         (CASE WHEN max_gap > 30 THEN 25 WHEN max_gap > 7 THEN 15 ELSE 0 END)
		     END AS risk_score
		WHERE risk_score > 0
		RETURN c.usdot AS usdot,
		       c.carrier_name AS name,
		       risk_score,
		       policy_count,
		       provider_count,
		       cancellations,
		       violations,
		       max_gap
		ORDER BY risk_score DESC
		LIMIT $limit`,
		map[string]any{"limit": limit})
	if err != nil {
		return nil, fmt.Errorf("risk scores: %w", err)
	}

	var out []RiskScore
	for res.Next(ctx) {
		rec := res.Record()
		out = append(out, RiskScore{
			CarrierUSDOT:         int64Field(rec, "usdot"),
			CarrierName:          strField(rec, "name"),
			Score:                int64Field(rec, "risk_score"),
			PolicyCount:          int64Field(rec, "policy_count"),
			ProviderCount:        int64Field(rec, "provider_count"),
			Cancellations:        int64Field(rec, "cancellations"),
			ComplianceViolations: int64Field(rec, "violations"),
			MaxCoverageGap:       int64Field(rec, "max_gap"),
		})
	}
	return out, res.Err()
}

// DetectShopping flags carriers that used at least minProviders distinct
// providers for policies effective inside the trailing monthsWindow.
func (g *GraphStore) DetectShopping(ctx context.Context, monthsWindow, minProviders int) ([]ShoppingPattern, error) {
	if monthsWindow <= 0 {
		monthsWindow = 12
	}
	if minProviders <= 0 {
		minProviders = 3
	}
	cutoff := domain.DateOf(g.now().AddDate(0, -monthsWindow, 0))

	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, `
		MATCH (c:Carrier)-[:HAD_INSURANCE]->(ip:InsurancePolicy)
		WHERE ip.effective_date >= $cutoff
		WITH c,
		     count(DISTINCT ip.provider_name) AS provider_count,
		     collect(DISTINCT ip.provider_name) AS providers
		WHERE provider_count >= $min_providers
		RETURN c.usdot AS usdot,
		       c.carrier_name AS name,
		       provider_count,
		       providers
		ORDER BY provider_count DESC`,
		map[string]any{"cutoff": cutoff.String(), "min_providers": minProviders})
	if err != nil {
		return nil, fmt.Errorf("detect shopping: %w", err)
	}

	var out []ShoppingPattern
	for res.Next(ctx) {
		rec := res.Record()
		sp := ShoppingPattern{
			CarrierUSDOT:  int64Field(rec, "usdot"),
			CarrierName:   strField(rec, "name"),
			ProviderCount: int64Field(rec, "provider_count"),
			MonthsWindow:  monthsWindow,
		}
		if raw, ok := rec.Get("providers"); ok {
			if list, ok := raw.([]any); ok {
				for _, v := range list {
					sp.Providers = append(sp.Providers, asString(v))
				}
			}
		}
		sp.ShoppingRatio = float64(sp.ProviderCount) / float64(monthsWindow)
		out = append(out, sp)
	}
	return out, res.Err()
}

// FindUnderinsured returns carriers whose active coverage falls below the
// given minimum, with the shortage amount.
func (g *GraphStore) FindUnderinsured(ctx context.Context, minimum float64) ([]UnderinsuredCarrier, error) {
	if minimum <= 0 {
		minimum = domain.DefaultFederalMinimum
	}
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, `
		MATCH (c:Carrier)-[r:HAD_INSURANCE]->(ip:InsurancePolicy)
		WHERE r.status = 'ACTIVE' AND ip.coverage_amount < $minimum
		RETURN c.usdot AS usdot,
		       c.carrier_name AS name,
		       ip.policy_id AS policy_id,
		       ip.provider_name AS provider,
		       ip.coverage_amount AS coverage,
		       $minimum - ip.coverage_amount AS shortage
		ORDER BY shortage DESC`,
		map[string]any{"minimum": minimum})
	if err != nil {
		return nil, fmt.Errorf("find underinsured: %w", err)
	}

	var out []UnderinsuredCarrier
	for res.Next(ctx) {
		rec := res.Record()
		out = append(out, UnderinsuredCarrier{
			CarrierUSDOT:    int64Field(rec, "usdot"),
			CarrierName:     strField(rec, "name"),
			PolicyID:        strField(rec, "policy_id"),
			ProviderName:    strField(rec, "provider"),
			CoverageAmount:  floatField(rec, "coverage"),
			RequiredMinimum: minimum,
			Shortage:        floatField(rec, "shortage"),
		})
	}
	return out, res.Err()
}

// ChameleonPatterns finds pairs of distinct carriers that share both a
// managing officer and an insurance provider. The usdot ordering reports
// each pair once.
func (g *GraphStore) ChameleonPatterns(ctx context.Context, limit int) ([]ChameleonPair, error) {
	if limit <= 0 {
		limit = 100
	}
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, `
		MATCH (c1:Carrier)-[:MANAGED_BY]->(p:Person)<-[:MANAGED_BY]-(c2:Carrier)
		WHERE c1.usdot < c2.usdot
		MATCH (c1)-[:INSURED_BY]->(ins:InsuranceProvider)<-[:INSURED_BY]-(c2)
		WITH c1, c2, p, count(DISTINCT ins) AS shared_providers
		RETURN c1.usdot AS usdot_1,
		       c1.carrier_name AS name_1,
		       c2.usdot AS usdot_2,
		       c2.carrier_name AS name_2,
		       p.full_name AS officer,
		       shared_providers,
		       coalesce(c1.violations, 0) AS violations_1,
		       coalesce(c2.violations, 0) AS violations_2
		ORDER BY shared_providers DESC, usdot_1
		LIMIT $limit`,
		map[string]any{"limit": limit})
	if err != nil {
		return nil, fmt.Errorf("chameleon patterns: %w", err)
	}

	var out []ChameleonPair
	for res.Next(ctx) {
		rec := res.Record()
		out = append(out, ChameleonPair{
			Carrier1USDOT:      int64Field(rec, "usdot_1"),
			Carrier1Name:       strField(rec, "name_1"),
			Carrier2USDOT:      int64Field(rec, "usdot_2"),
			Carrier2Name:       strField(rec, "name_2"),
			SharedOfficer:      strField(rec, "officer"),
			SharedProviders:    int64Field(rec, "shared_providers"),
			Carrier1Violations: int64Field(rec, "violations_1"),
			Carrier2Violations: int64Field(rec, "violations_2"),
		})
	}
	return out, res.Err()
}
