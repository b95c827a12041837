package graph

import (
	"context"
)

var schemaStatements = []string{
	`CREATE CONSTRAINT carrier_usdot IF NOT EXISTS FOR (c:Carrier) REQUIRE c.usdot IS UNIQUE`,
	`CREATE CONSTRAINT policy_id IF NOT EXISTS FOR (ip:InsurancePolicy) REQUIRE ip.policy_id IS UNIQUE`,
	`CREATE CONSTRAINT event_id IF NOT EXISTS FOR (ie:InsuranceEvent) REQUIRE ie.event_id IS UNIQUE`,
	`CREATE CONSTRAINT provider_name IF NOT EXISTS FOR (p:InsuranceProvider) REQUIRE p.name IS UNIQUE`,
	`CREATE CONSTRAINT person_name IF NOT EXISTS FOR (p:Person) REQUIRE p.full_name IS UNIQUE`,
	`CREATE CONSTRAINT job_id IF NOT EXISTS FOR (j:EnrichmentJob) REQUIRE j.job_id IS UNIQUE`,
	`CREATE INDEX policy_effective IF NOT EXISTS FOR (ip:InsurancePolicy) ON (ip.effective_date)`,
	`CREATE INDEX event_date IF NOT EXISTS FOR (ie:InsuranceEvent) ON (ie.event_date)`,
}

// EnsureSchema applies uniqueness constraints and indexes. Best effort:
// failures are logged and skipped so older server versions still start.
func (g *GraphStore) EnsureSchema(ctx context.Context) {
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	for _, stmt := range schemaStatements {
		if _, err := sess.Run(ctx, stmt, nil); err != nil {
			g.log.Warn("schema statement failed", "error", err)
		}
	}
}
