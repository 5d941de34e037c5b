package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"appeals/internal/judgment/catalog"
	"appeals/internal/judgment/handler"
	judgmentmetrics "appeals/internal/judgment/metrics"
	"appeals/internal/judgment/roster"
	"appeals/internal/judgment/service"
	"appeals/internal/judgment/store"
	"appeals/internal/platform/config"
	"appeals/internal/platform/httpserver"
	"appeals/internal/platform/kafka"
	platformmetrics "appeals/internal/platform/metrics"
	"appeals/internal/platform/middleware"
	"appeals/internal/platform/postgres"
	platformredis "appeals/internal/platform/redis"
	audit "appeals/pkg/platform/audit"
	"appeals/pkg/platform/audit/publishers/compliance"
	auditmemory "appeals/pkg/platform/audit/store/memory"
	auditpostgres "appeals/pkg/platform/audit/store/postgres"
	"appeals/pkg/platform/audit/worker"
)

const (
	tokenIssuer   = "appeals"
	tokenAudience = "appeals-board"
)

// engineStore is what the engine needs from a backing store.
type engineStore interface {
	service.Store
	service.StoreTx
	service.Roster
	service.CaseStages
}

// auditBackend is an outbox-backed audit store.
type auditBackend interface {
	audit.Store
	audit.Outbox
}

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the outbox relay",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := commonRun()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, log)
		},
	}
}

func serve(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	engine, auditStore, db, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	var members service.Roster = engine
	if cfg.Redis.URL != "" {
		client, err := platformredis.New(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer client.Close()
		members = roster.NewRedisCache(client.Client, engine, cfg.RosterCacheTTL,
			roster.WithLogger(log),
			roster.WithRegisterer(reg),
		)
		log.Info("roster cache enabled", "ttl", cfg.RosterCacheTTL)
	}

	opts := []service.Option{
		service.WithLogger(log),
		service.WithMetrics(judgmentmetrics.New(reg)),
		service.WithAuditPublisher(compliance.New(auditStore,
			compliance.WithLogger(log),
			compliance.WithMetrics(compliance.NewMetrics(reg)),
		)),
	}
	if cfg.CatalogFile != "" {
		decisions, err := catalog.Load(cfg.CatalogFile)
		if err != nil {
			return err
		}
		opts = append(opts, service.WithDecisionCatalog(decisions))
	}
	svc := service.New(engine, engine, members, engine, opts...)

	httpMetrics := platformmetrics.New(reg)
	tokens := middleware.NewMemberTokens(cfg.JWTSigningKey, tokenIssuer, tokenAudience)

	r := chi.NewRouter()
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.Logger(log))
	r.Use(middleware.Timeout(cfg.TxTimeout * 2))
	r.Use(middleware.Latency(httpMetrics))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	r.Group(func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)
		r.Use(middleware.RequireMember(tokens, log, httpMetrics))
		handler.New(svc, log).Register(r)
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting appeals engine", "addr", cfg.Addr)
		return httpserver.Run(gctx, httpserver.New(cfg.Addr, r), log)
	})
	if cfg.Kafka.Enabled() {
		producer, err := kafka.NewProducer(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return err
		}
		defer producer.Close()
		relay := worker.NewRelay(auditStore, producer,
			worker.WithInterval(cfg.Kafka.OutboxInterval),
			worker.WithBatchSize(cfg.Kafka.BatchSize),
			worker.WithLogger(log),
		)
		g.Go(func() error {
			log.Info("outbox relay started", "topic", cfg.Kafka.Topic, "interval", cfg.Kafka.OutboxInterval)
			return ignoreCancel(relay.Run(gctx))
		})
	}
	return g.Wait()
}

// openStores picks Postgres when a database URL is configured and the
// in-memory stores otherwise. db is nil for the in-memory path.
func openStores(ctx context.Context, cfg config.Config, log *slog.Logger) (engineStore, auditBackend, *sql.DB, error) {
	if cfg.DatabaseURL == "" {
		log.Warn("no database configured, using in-memory stores")
		return store.NewInMemory(store.WithTxTimeout(cfg.TxTimeout)), auditmemory.NewInMemoryStore(), nil, nil
	}
	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, err
	}
	if _, err := postgres.Migrate(ctx, db, store.Migrations, "migrations", log); err != nil {
		_ = db.Close()
		return nil, nil, nil, fmt.Errorf("migrate: %w", err)
	}
	return store.NewPostgres(db, store.WithPostgresTxTimeout(cfg.TxTimeout)), auditpostgres.New(db), db, nil
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
