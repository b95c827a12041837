package graph

import (
	"context"
	"fmt"
)

// Summary counts the nodes and edges that make up the insurance graph.
func (g *GraphStore) Summary(ctx context.Context) (InsuranceSummary, error) {
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, `
		OPTIONAL MATCH (c:Carrier)
		WITH count(c) AS carriers
		OPTIONAL MATCH (ip:InsurancePolicy)
		WITH carriers, count(ip) AS policies
		OPTIONAL MATCH (ie:InsuranceEvent)
		WITH carriers, policies, count(ie) AS events
		OPTIONAL MATCH (p:InsuranceProvider)
		WITH carriers, policies, events, count(p) AS providers
		OPTIONAL MATCH ()-[h:HAD_INSURANCE]->()
		WITH carriers, policies, events, providers, count(h) AS coverage
		OPTIONAL MATCH ()-[s:PRECEDED_BY]->()
		RETURN carriers, policies, events, providers, coverage, count(s) AS succession`,
		nil)
	if err != nil {
		return InsuranceSummary{}, fmt.Errorf("graph summary: %w", err)
	}
	if !res.Next(ctx) {
		return InsuranceSummary{}, fmt.Errorf("graph summary: no row")
	}
	rec := res.Record()
	return InsuranceSummary{
		Carriers:        int64Field(rec, "carriers"),
		Policies:        int64Field(rec, "policies"),
		Events:          int64Field(rec, "events"),
		Providers:       int64Field(rec, "providers"),
		CoverageEdges:   int64Field(rec, "coverage"),
		SuccessionEdges: int64Field(rec, "succession"),
	}, nil
}
