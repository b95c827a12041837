package graph

import (
	"context"
	"fmt"

	"github.com/HaulGuardAI/haulguard-mvp/engine/domain"
)

type edgeUpdate struct {
	usdot    int64
	policyID string
	policy   domain.InsurancePolicy
}

// BackfillStats summarizes one backfill run.
type BackfillStats struct {
	CarriersScanned int `json:"carriers_scanned"`
	EdgesUpdated    int `json:"edges_updated"`
	SuccessionLinks int `json:"succession_links"`
}

// RecomputeCoveragePeriods rewrites the temporal properties of every
// HAD_INSURANCE edge from its policy's dates. Useful after bulk imports
// that created edges without them, or after the status derivation rules
// change. Runs in batches of one write transaction each.
func (g *GraphStore) RecomputeCoveragePeriods(ctx context.Context, batchSize int) (BackfillStats, error) {
	if batchSize <= 0 {
		batchSize = 500
	}
	var stats BackfillStats

	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, `
		MATCH (c:Carrier)-[:HAD_INSURANCE]->(ip:InsurancePolicy)
		RETURN c.usdot AS usdot,
		       ip.policy_id AS policy_id,
		       ip.effective_date AS effective_date,
		       ip.expiration_date AS expiration_date,
		       ip.cancellation_date AS cancellation_date
		ORDER BY c.usdot, ip.effective_date`,
		nil)
	if err != nil {
		return stats, fmt.Errorf("scan coverage edges: %w", err)
	}

	today := domain.DateOf(g.now())
	var updates []edgeUpdate
	seen := map[int64]bool{}
	for res.Next(ctx) {
		rec := res.Record()
		p := domain.InsurancePolicy{
			PolicyID:         strField(rec, "policy_id"),
			EffectiveDate:    dateField(rec, "effective_date"),
			ExpirationDate:   datePtrField(rec, "expiration_date"),
			CancellationDate: datePtrField(rec, "cancellation_date"),
		}
		if p.EffectiveDate.IsZero() {
			continue
		}
		usdot := int64Field(rec, "usdot")
		seen[usdot] = true
		updates = append(updates, edgeUpdate{usdot: usdot, policyID: p.PolicyID, policy: p})
	}
	if err := res.Err(); err != nil {
		return stats, err
	}
	stats.CarriersScanned = len(seen)

	for start := 0; start < len(updates); start += batchSize {
		end := min(start+batchSize, len(updates))
		rows := make([]map[string]any, 0, end-start)
		for _, u := range updates[start:end] {
			endDate := domain.EndDate(u.policy)
			row := map[string]any{
				"usdot":         u.usdot,
				"policy_id":     u.policyID,
				"from_date":     u.policy.EffectiveDate.String(),
				"to_date":       nil,
				"status":        string(domain.PolicyStatus(u.policy, today)),
				"duration_days": domain.DurationDays(u.policy.EffectiveDate, endDate),
			}
			if endDate != nil {
				row["to_date"] = endDate.String()
			}
			rows = append(rows, row)
		}

		updated, err := sess.ExecuteWrite(ctx, func(tx CypherRunner) (any, error) {
			r, err := tx.Run(ctx, `
				UNWIND $rows AS row
				MATCH (c:Carrier {usdot: row.usdot})-[rel:HAD_INSURANCE]->(ip:InsurancePolicy {policy_id: row.policy_id})
				SET rel.from_date = row.from_date,
				    rel.to_date = row.to_date,
				    rel.status = row.status,
				    rel.duration_days = row.duration_days,
				    rel.updated_at = datetime()
				RETURN count(rel) AS n`,
				map[string]any{"rows": rows})
			if err != nil {
				return 0, err
			}
			if r.Next(ctx) {
				n, _ := r.Record().Get("n")
				return asInt64(n), nil
			}
			return int64(0), r.Err()
		})
		if err != nil {
			return stats, fmt.Errorf("update coverage edges: %w", err)
		}
		stats.EdgesUpdated += int(updated.(int64))
	}

	links, err := g.rebuildSuccessionLinks(ctx, sess, updates)
	if err != nil {
		return stats, err
	}
	stats.SuccessionLinks = links
	return stats, nil
}

// rebuildSuccessionLinks derives PRECEDED_BY edges from the time-sorted
// policy sequence of each carrier. Only positive gaps produce a link.
func (g *GraphStore) rebuildSuccessionLinks(ctx context.Context, sess CypherSession, updates []edgeUpdate) (int, error) {
	byCarrier := map[int64][]domain.InsurancePolicy{}
	for _, u := range updates {
		byCarrier[u.usdot] = append(byCarrier[u.usdot], u.policy)
	}

	var rows []map[string]any
	for _, policies := range byCarrier {
		for i := 1; i < len(policies); i++ {
			gap := domain.GapDays(policies[i-1], policies[i])
			if gap == nil || *gap <= 0 {
				continue
			}
			rows = append(rows, map[string]any{
				"later":    policies[i].PolicyID,
				"earlier":  policies[i-1].PolicyID,
				"gap_days": *gap,
			})
		}
	}
	if len(rows) == 0 {
		return 0, nil
	}

	linked, err := sess.ExecuteWrite(ctx, func(tx CypherRunner) (any, error) {
		r, err := tx.Run(ctx, `
			UNWIND $rows AS row
			MATCH (next:InsurancePolicy {policy_id: row.later})
			MATCH (prev:InsurancePolicy {policy_id: row.earlier})
			MERGE (next)-[rel:PRECEDED_BY]->(prev)
			ON CREATE SET rel.created_at = datetime()
			SET rel.gap_days = row.gap_days
			RETURN count(rel) AS n`,
			map[string]any{"rows": rows})
		if err != nil {
			return 0, err
		}
		if r.Next(ctx) {
			n, _ := r.Record().Get("n")
			return asInt64(n), nil
		}
		return int64(0), r.Err()
	})
	if err != nil {
		return 0, fmt.Errorf("rebuild succession links: %w", err)
	}
	return int(linked.(int64)), nil
}
