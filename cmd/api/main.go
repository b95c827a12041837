// Package main implements the HaulGuard insurance API server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/HaulGuardAI/haulguard-mvp/engine/enrich"
	"github.com/HaulGuardAI/haulguard-mvp/engine/graph"
	"github.com/HaulGuardAI/haulguard-mvp/pkg/metrics"
	"github.com/HaulGuardAI/haulguard-mvp/pkg/mid"
	"github.com/HaulGuardAI/haulguard-mvp/pkg/searchcarriers"
	"github.com/nats-io/nats.go"
)

// Config holds all environment-based configuration.
type Config struct {
	Port       string
	Neo4jURL   string
	Neo4jUser  string
	Neo4jPass  string
	NATSURL    string
	SCBaseURL  string
	SCToken    string
	APIKey     string
	CORSOrigin string
	RunWorker  bool
}

func loadConfig() Config {
	return Config{
		Port:       envOr("PORT", "8080"),
		Neo4jURL:   envOr("NEO4J_URL", "neo4j://localhost:7687"),
		Neo4jUser:  envOr("NEO4J_USER", "neo4j"),
		Neo4jPass:  envOr("NEO4J_PASS", "password"),
		NATSURL:    envOr("NATS_URL", nats.DefaultURL),
		SCBaseURL:  envOr("SEARCHCARRIERS_URL", ""),
		SCToken:    envOr("SEARCHCARRIERS_TOKEN", ""),
		APIKey:     os.Getenv("API_KEY"),
		CORSOrigin: envOr("CORS_ORIGIN", "*"),
		RunWorker:  os.Getenv("RUN_WORKER") == "1",
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := loadConfig()

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Connect to Neo4j ---
	store, driver, err := graph.New(ctx, cfg.Neo4jURL, cfg.Neo4jUser, cfg.Neo4jPass, logger)
	if err != nil {
		return fmt.Errorf("neo4j connect: %w", err)
	}
	defer driver.Close(ctx)
	store.EnsureSchema(ctx)

	// --- Connect to NATS ---
	nc, err := nats.Connect(cfg.NATSURL, nats.Name("haulguard-api"))
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Drain()

	publish := func(ctx context.Context, req enrich.Request) error {
		return enrich.PublishRequest(ctx, nc, req)
	}

	// The worker can run inline for single-process deployments.
	if cfg.RunWorker {
		scOpts := []searchcarriers.Option{}
		if cfg.SCBaseURL != "" {
			scOpts = append(scOpts, searchcarriers.WithBaseURL(cfg.SCBaseURL))
		}
		client := searchcarriers.New(cfg.SCToken, logger, scOpts...)
		orch := enrich.New(store, store, client, logger)
		sub, err := enrich.StartConsumer(nc, orch, logger)
		if err != nil {
			return fmt.Errorf("start consumer: %w", err)
		}
		defer sub.Unsubscribe()
		logger.Info("inline enrichment worker started", "subject", enrich.Subject)
	}

	// --- Build HTTP server ---
	reg := metrics.New()
	reg.CollectRuntime("haulguard_api", 15*time.Second)

	api := newAPI(store, publish, reg, logger)
	handler := mid.Chain(api,
		mid.Recover(logger),
		mid.Logger(logger),
		mid.CORS(cfg.CORSOrigin),
		mid.OTel("haulguard-api"),
		mid.APIKey(cfg.APIKey),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// --- Graceful shutdown ---
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}
