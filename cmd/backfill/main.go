// Command backfill recomputes the derived properties on every HAD_INSURANCE
// edge from the underlying policy dates and rebuilds PRECEDED_BY succession
// links. Safe to run repeatedly; it only rewrites derived state.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/HaulGuardAI/haulguard-mvp/engine/graph"
)

func main() {
	var (
		neo4jURL  = flag.String("neo4j", envOr("NEO4J_URL", "neo4j://localhost:7687"), "Neo4j bolt URL")
		neo4jUser = flag.String("neo4j-user", envOr("NEO4J_USER", "neo4j"), "Neo4j username")
		neo4jPass = flag.String("neo4j-pass", envOr("NEO4J_PASS", "password"), "Neo4j password")
		batchSize = flag.Int("batch", 500, "edges per write transaction")
		minGap    = flag.Int("min-gap", 1, "minimum gap days to report after the rewrite")
	)
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	store, driver, err := graph.New(ctx, *neo4jURL, *neo4jUser, *neo4jPass, log)
	if err != nil {
		log.Error("neo4j connect failed", "error", err)
		os.Exit(1)
	}
	defer driver.Close(ctx)

	stats, err := store.RecomputeCoveragePeriods(ctx, *batchSize)
	if err != nil {
		log.Error("backfill failed", "error", err)
		os.Exit(1)
	}
	fmt.Printf("carriers scanned:  %d\n", stats.CarriersScanned)
	fmt.Printf("edges updated:     %d\n", stats.EdgesUpdated)
	fmt.Printf("succession links:  %d\n", stats.SuccessionLinks)

	// Verification pass over the rewritten graph.
	gaps, err := store.DetectGaps(ctx, 0, *minGap)
	if err != nil {
		log.Error("gap verification failed", "error", err)
		os.Exit(1)
	}
	overlaps, err := store.DetectOverlaps(ctx, 0)
	if err != nil {
		log.Error("overlap verification failed", "error", err)
		os.Exit(1)
	}
	summary, err := store.Summary(ctx)
	if err != nil {
		log.Error("summary failed", "error", err)
		os.Exit(1)
	}
	fmt.Printf("coverage gaps:     %d\n", len(gaps))
	fmt.Printf("coverage overlaps: %d\n", len(overlaps))
	fmt.Printf("graph: %d carriers, %d policies, %d events, %d providers, %d coverage edges, %d succession edges\n",
		summary.Carriers, summary.Policies, summary.Events, summary.Providers,
		summary.CoverageEdges, summary.SuccessionEdges)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
