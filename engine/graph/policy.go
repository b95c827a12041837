package graph

import (
	"context"
	"fmt"
	"sort"

	"github.com/HaulGuardAI/haulguard-mvp/engine/domain"
)

// ListPolicyOpts filters ListCarrierPolicies.
type ListPolicyOpts struct {
	ActiveOnly     bool
	IncludeExpired bool
}

// CreatePolicy inserts a policy node. Policies are immutable; an existing
// policy_id yields domain.ErrDuplicate and no write.
func (g *GraphStore) CreatePolicy(ctx context.Context, p domain.InsurancePolicy) error {
	if err := domain.ValidatePolicy(p); err != nil {
		return err
	}
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, `
		MATCH (ip:InsurancePolicy {policy_id: $policy_id}) RETURN ip.policy_id LIMIT 1`,
		map[string]any{"policy_id": p.PolicyID})
	if err != nil {
		return err
	}
	if res.Next(ctx) {
		return fmt.Errorf("policy %s: %w", p.PolicyID, domain.ErrDuplicate)
	}

	_, err = sess.Run(ctx, `
		CREATE (ip:InsurancePolicy $props)
		SET ip.created_at = datetime(), ip.updated_at = datetime()`,
		map[string]any{"props": policyToMap(p)})
	if err != nil {
		return fmt.Errorf("create policy %s: %w", p.PolicyID, err)
	}
	g.log.Debug("policy created", "policy_id", p.PolicyID, "usdot", p.CarrierUSDOT)
	return nil
}

// GetPolicy fetches one policy by id.
func (g *GraphStore) GetPolicy(ctx context.Context, policyID string) (domain.InsurancePolicy, error) {
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, `
		MATCH (ip:InsurancePolicy {policy_id: $policy_id})
		OPTIONAL MATCH (c:Carrier)-[:HAD_INSURANCE]->(ip)
		RETURN ip, c.usdot AS usdot`,
		map[string]any{"policy_id": policyID})
	if err != nil {
		return domain.InsurancePolicy{}, err
	}
	if !res.Next(ctx) {
		return domain.InsurancePolicy{}, fmt.Errorf("policy %s: %w", policyID, domain.ErrNotFound)
	}
	rec := res.Record()
	props, ok := nodeProps(rec, "ip")
	if !ok {
		return domain.InsurancePolicy{}, fmt.Errorf("policy %s: unexpected record shape", policyID)
	}
	p := policyFromProps(props)
	if p.CarrierUSDOT == 0 {
		p.CarrierUSDOT = int64Field(rec, "usdot")
	}
	return p, nil
}

// PolicyExists reports whether a policy node is present.
func (g *GraphStore) PolicyExists(ctx context.Context, policyID string) (bool, error) {
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, `
		MATCH (ip:InsurancePolicy {policy_id: $policy_id}) RETURN ip.policy_id LIMIT 1`,
		map[string]any{"policy_id": policyID})
	if err != nil {
		return false, err
	}
	return res.Next(ctx), nil
}

// ListCarrierPolicies returns a carrier's policies ordered by effective
// date ascending.
func (g *GraphStore) ListCarrierPolicies(ctx context.Context, usdot int64, opts ListPolicyOpts) ([]domain.InsurancePolicy, error) {
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	cypher := `
		MATCH (c:Carrier {usdot: $usdot})-[h:HAD_INSURANCE]->(ip:InsurancePolicy)
		RETURN ip, h.status AS status
		ORDER BY ip.effective_date`
	if opts.ActiveOnly {
		cypher = `
		MATCH (c:Carrier {usdot: $usdot})-[h:HAD_INSURANCE]->(ip:InsurancePolicy)
		WHERE h.status = 'ACTIVE'
		RETURN ip, h.status AS status
		ORDER BY ip.effective_date`
	} else if !opts.IncludeExpired {
		cypher = `
		MATCH (c:Carrier {usdot: $usdot})-[h:HAD_INSURANCE]->(ip:InsurancePolicy)
		WHERE h.status <> 'EXPIRED'
		RETURN ip, h.status AS status
		ORDER BY ip.effective_date`
	}

	res, err := sess.Run(ctx, cypher, map[string]any{"usdot": usdot})
	if err != nil {
		return nil, err
	}
	var out []domain.InsurancePolicy
	for res.Next(ctx) {
		rec := res.Record()
		props, ok := nodeProps(rec, "ip")
		if !ok {
			continue
		}
		p := policyFromProps(props)
		if p.CarrierUSDOT == 0 {
			p.CarrierUSDOT = usdot
		}
		if s := strField(rec, "status"); s != "" {
			p.FilingStatus = domain.FilingStatus(s)
		}
		out = append(out, p)
	}
	return out, res.Err()
}

// BulkCreatePolicies merges a batch of policies in one write transaction.
// Existing policy ids are left untouched.
func (g *GraphStore) BulkCreatePolicies(ctx context.Context, policies []domain.InsurancePolicy) (int, error) {
	rows := make([]map[string]any, 0, len(policies))
	for _, p := range policies {
		if err := domain.ValidatePolicy(p); err != nil {
			return 0, err
		}
		rows = append(rows, policyToMap(p))
	}
	if len(rows) == 0 {
		return 0, nil
	}
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	created, err := sess.ExecuteWrite(ctx, func(tx CypherRunner) (any, error) {
		res, err := tx.Run(ctx, `
			UNWIND $rows AS row
			MERGE (ip:InsurancePolicy {policy_id: row.policy_id})
			ON CREATE SET ip = row, ip.created_at = datetime()
			SET ip.updated_at = datetime()
			RETURN count(ip) AS n`,
			map[string]any{"rows": rows})
		if err != nil {
			return 0, err
		}
		if res.Next(ctx) {
			n, _ := res.Record().Get("n")
			return asInt64(n), nil
		}
		return int64(0), res.Err()
	})
	if err != nil {
		return 0, fmt.Errorf("bulk create policies: %w", err)
	}
	return int(created.(int64)), nil
}

// LinkCoveragePeriod merges the HAD_INSURANCE edge between a carrier and a
// policy. Repeated calls converge on one edge; the temporal properties are
// recomputed from the policy's dates on every call, last write wins.
func (g *GraphStore) LinkCoveragePeriod(ctx context.Context, usdot int64, p domain.InsurancePolicy) error {
	end := domain.EndDate(p)
	status := domain.PolicyStatus(p, domain.DateOf(g.now()))
	duration := domain.DurationDays(p.EffectiveDate, end)

	params := map[string]any{
		"usdot":         usdot,
		"policy_id":     p.PolicyID,
		"from_date":     p.EffectiveDate.String(),
		"to_date":       nil,
		"status":        string(status),
		"duration_days": duration,
	}
	if end != nil {
		params["to_date"] = end.String()
	}

	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, `
		MATCH (c:Carrier {usdot: $usdot})
		MATCH (ip:InsurancePolicy {policy_id: $policy_id})
		MERGE (c)-[r:HAD_INSURANCE]->(ip)
		ON CREATE SET r.from_date = $from_date,
		              r.to_date = $to_date,
		              r.status = $status,
		              r.duration_days = $duration_days,
		              r.created_at = datetime()
		ON MATCH SET r.to_date = $to_date,
		             r.status = $status,
		             r.duration_days = $duration_days,
		             r.updated_at = datetime()
		RETURN r.status`,
		params)
	if err != nil {
		return fmt.Errorf("link coverage %d -> %s: %w", usdot, p.PolicyID, err)
	}
	if !res.Next(ctx) {
		return fmt.Errorf("link coverage %d -> %s: %w", usdot, p.PolicyID, domain.ErrNotFound)
	}
	return nil
}

// LinkSuccession merges the PRECEDED_BY edge from the later policy back to
// the earlier one, carrying the gap in days between them.
func (g *GraphStore) LinkSuccession(ctx context.Context, laterPolicyID, earlierPolicyID string, gapDays int) error {
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, `
		MATCH (next:InsurancePolicy {policy_id: $later})
		MATCH (prev:InsurancePolicy {policy_id: $earlier})
		MERGE (next)-[r:PRECEDED_BY]->(prev)
		ON CREATE SET r.gap_days = $gap_days, r.created_at = datetime()
		ON MATCH SET r.gap_days = $gap_days
		RETURN r.gap_days`,
		map[string]any{"later": laterPolicyID, "earlier": earlierPolicyID, "gap_days": gapDays})
	if err != nil {
		return fmt.Errorf("link succession %s -> %s: %w", laterPolicyID, earlierPolicyID, err)
	}
	if !res.Next(ctx) {
		return fmt.Errorf("link succession %s -> %s: %w", laterPolicyID, earlierPolicyID, domain.ErrNotFound)
	}
	return nil
}

// CarrierTimeline merges a carrier's policies and events into one sequence
// ordered by date. Policies sort before events on the same day.
func (g *GraphStore) CarrierTimeline(ctx context.Context, usdot int64) ([]TimelineEntry, error) {
	policies, err := g.ListCarrierPolicies(ctx, usdot, ListPolicyOpts{IncludeExpired: true})
	if err != nil {
		return nil, err
	}
	events, err := g.ListCarrierEvents(ctx, usdot)
	if err != nil {
		return nil, err
	}

	entries := make([]TimelineEntry, 0, len(policies)+len(events))
	for i := range policies {
		entries = append(entries, TimelineEntry{Kind: "policy", Date: policies[i].EffectiveDate, Policy: &policies[i]})
	}
	for i := range events {
		entries = append(entries, TimelineEntry{Kind: "event", Date: events[i].EventDate, Event: &events[i]})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].Date.Equal(entries[j].Date) {
			return entries[i].Date.Before(entries[j].Date)
		}
		return entries[i].Kind == "policy" && entries[j].Kind == "event"
	})
	return entries, nil
}

func policyToMap(p domain.InsurancePolicy) map[string]any {
	m := map[string]any{
		"policy_id":             p.PolicyID,
		"carrier_usdot":         p.CarrierUSDOT,
		"provider_name":         p.ProviderName,
		"policy_type":           p.PolicyType,
		"coverage_amount":       p.CoverageAmount,
		"effective_date":        p.EffectiveDate.String(),
		"filing_status":         string(p.FilingStatus),
		"is_compliant":          p.IsCompliant,
		"meets_federal_minimum": p.MeetsFederalMin,
	}
	putStr(m, "provider_id", p.ProviderID)
	putStr(m, "policy_number", p.PolicyNumber)
	if p.CargoCoverage != nil {
		m["cargo_coverage"] = *p.CargoCoverage
	}
	putDatePtr(m, "expiration_date", p.ExpirationDate)
	putDatePtr(m, "cancellation_date", p.CancellationDate)
	putStr(m, "cancellation_reason", p.CancellationReason)
	if p.RequiredMinimum > 0 {
		m["required_minimum"] = p.RequiredMinimum
	}
	putStr(m, "data_source", p.DataSource)
	putStr(m, "source_record_id", p.SourceRecordID)
	return m
}

func policyFromProps(props map[string]any) domain.InsurancePolicy {
	p := domain.InsurancePolicy{
		PolicyID:           asString(props["policy_id"]),
		CarrierUSDOT:       asInt64(props["carrier_usdot"]),
		ProviderName:       asString(props["provider_name"]),
		ProviderID:         asString(props["provider_id"]),
		PolicyType:         asString(props["policy_type"]),
		PolicyNumber:       asString(props["policy_number"]),
		CoverageAmount:     asFloat(props["coverage_amount"]),
		EffectiveDate:      asDate(props["effective_date"]),
		ExpirationDate:     asDatePtr(props["expiration_date"]),
		CancellationDate:   asDatePtr(props["cancellation_date"]),
		CancellationReason: asString(props["cancellation_reason"]),
		FilingStatus:       domain.FilingStatus(asString(props["filing_status"])),
		IsCompliant:        asBool(props["is_compliant"]),
		MeetsFederalMin:    asBool(props["meets_federal_minimum"]),
		RequiredMinimum:    asFloat(props["required_minimum"]),
		DataSource:         asString(props["data_source"]),
		SourceRecordID:     asString(props["source_record_id"]),
	}
	if v, ok := props["cargo_coverage"]; ok {
		f := asFloat(v)
		p.CargoCoverage = &f
	}
	return p
}
