// Command enrich pulls insurance history from the SearchCarriers API and
// writes it into the Neo4j temporal graph. It runs either a direct batch
// over the given USDOT numbers or as a NATS queue worker.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/HaulGuardAI/haulguard-mvp/engine/domain"
	"github.com/HaulGuardAI/haulguard-mvp/engine/enrich"
	"github.com/HaulGuardAI/haulguard-mvp/engine/graph"
	"github.com/HaulGuardAI/haulguard-mvp/pkg/fn"
	"github.com/HaulGuardAI/haulguard-mvp/pkg/metrics"
	"github.com/HaulGuardAI/haulguard-mvp/pkg/searchcarriers"
	"github.com/nats-io/nats.go"
)

var met = metrics.New()

// Enrichment metrics
var (
	mCarriersTotal  = func(status string) *metrics.Counter { return met.Counter(metrics.WithLabels("haulguard_enrich_carriers_total", "status", status), "Carriers enriched by final status") }
	mPoliciesTotal  = met.Counter("haulguard_enrich_policies_total", "Policies created")
	mEventsTotal    = met.Counter("haulguard_enrich_events_total", "Events created")
	mGapsTotal      = met.Counter("haulguard_enrich_gaps_total", "Coverage gaps found")
	mRecordsSkipped = met.Counter("haulguard_enrich_records_skipped_total", "Raw records dropped for data quality")
	mCarrierDur     = met.Histogram("haulguard_enrich_carrier_duration_seconds", "Per-carrier enrichment time", nil)
)

func main() {
	var (
		usdotList = flag.String("usdot", "", "comma-separated USDOT numbers to enrich")
		highRisk  = flag.Bool("high-risk", false, "enrich carriers flagged high-risk in the graph")
		limit     = flag.Int("limit", 100, "max carriers for -high-risk")
		batch     = flag.Bool("batch", false, "run as one tracked job with progress counters")
		consume   = flag.Bool("consume", false, "run as a NATS queue worker instead of a one-shot batch")
		neo4jURL  = flag.String("neo4j", envOr("NEO4J_URL", "neo4j://localhost:7687"), "Neo4j bolt URL")
		neo4jUser = flag.String("neo4j-user", envOr("NEO4J_USER", "neo4j"), "Neo4j username")
		neo4jPass = flag.String("neo4j-pass", envOr("NEO4J_PASS", "password"), "Neo4j password")
		natsURL   = flag.String("nats", envOr("NATS_URL", nats.DefaultURL), "NATS server URL")
		scURL     = flag.String("searchcarriers", envOr("SEARCHCARRIERS_URL", ""), "SearchCarriers base URL override")
		scToken   = flag.String("token", envOr("SEARCHCARRIERS_TOKEN", ""), "SearchCarriers API token")
		metPort   = flag.Int("metrics-port", 9092, "metrics listen port")
	)
	flag.Parse()

	met.CollectRuntime("haulguard_enrich", 15*time.Second)
	met.ServeAsync(*metPort)

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	store, driver, err := graph.New(ctx, *neo4jURL, *neo4jUser, *neo4jPass, log)
	if err != nil {
		log.Error("neo4j connect failed", "error", err)
		os.Exit(1)
	}
	defer driver.Close(ctx)
	store.EnsureSchema(ctx)
	log.Info("connected to Neo4j")

	var scOpts []searchcarriers.Option
	if *scURL != "" {
		scOpts = append(scOpts, searchcarriers.WithBaseURL(*scURL))
	}
	client := searchcarriers.New(*scToken, log, scOpts...)
	orch := enrich.New(store, store, client, log)

	if *consume {
		runWorker(ctx, *natsURL, orch, log)
		return
	}

	usdots, err := resolveTargets(ctx, store, *usdotList, *highRisk, *limit)
	if err != nil {
		log.Error("resolve targets", "error", err)
		os.Exit(1)
	}
	if len(usdots) == 0 {
		fmt.Fprintln(os.Stderr, "nothing to enrich: pass -usdot or -high-risk")
		os.Exit(2)
	}

	if *batch {
		jobID, err := store.CreateJob(ctx, usdots)
		if err != nil {
			log.Error("create job", "error", err)
			os.Exit(1)
		}
		log.Info("batch job created", "job_id", jobID, "carriers", len(usdots))
		summaries, err := orch.RunBatch(ctx, jobID, usdots)
		if err != nil {
			log.Error("batch aborted", "error", err, "job_id", jobID)
		}
		for _, s := range summaries {
			record(s)
			printSummary(s)
		}
		return
	}

	for _, usdot := range usdots {
		s := orch.EnrichCarrier(ctx, "", usdot)
		record(s)
		printSummary(s)
		if ctx.Err() != nil {
			return
		}
	}
}

// runWorker blocks on the enrichment queue until interrupted.
func runWorker(ctx context.Context, natsURL string, orch *enrich.Orchestrator, log *slog.Logger) {
	nc, err := nats.Connect(natsURL, nats.Name("haulguard-enrich-worker"))
	if err != nil {
		log.Error("nats connect failed", "error", err)
		os.Exit(1)
	}
	defer nc.Drain()

	sub, err := enrich.StartConsumer(nc, orch, log)
	if err != nil {
		log.Error("start consumer failed", "error", err)
		os.Exit(1)
	}
	defer sub.Unsubscribe()

	log.Info("worker consuming", "subject", enrich.Subject)
	<-ctx.Done()
	log.Info("worker shutting down")
}

func resolveTargets(ctx context.Context, store *graph.GraphStore, usdotList string, highRisk bool, limit int) ([]int64, error) {
	if usdotList != "" {
		var usdots []int64
		for _, part := range strings.Split(usdotList, ",") {
			usdot, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("bad usdot %q: %w", part, err)
			}
			usdots = append(usdots, usdot)
		}
		return usdots, nil
	}
	if !highRisk {
		return nil, nil
	}
	carriers, err := store.HighRiskCarriers(ctx, 0.5, limit)
	if err != nil {
		return nil, fmt.Errorf("high-risk carriers: %w", err)
	}
	return fn.Map(carriers, func(c domain.Carrier) int64 { return c.USDOT }), nil
}

func record(s enrich.Summary) {
	mCarriersTotal(s.Status).Inc()
	mPoliciesTotal.Add(int64(s.PoliciesCreated))
	mEventsTotal.Add(int64(s.EventsCreated))
	mGapsTotal.Add(int64(s.GapsFound))
	mRecordsSkipped.Add(int64(s.Skipped))
	if d, err := time.ParseDuration(s.Duration); err == nil {
		mCarrierDur.Observe(d.Seconds())
	}
}

func printSummary(s enrich.Summary) {
	out, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		fmt.Printf("usdot %d: %s\n", s.CarrierUSDOT, s.Status)
		return
	}
	fmt.Println(string(out))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
