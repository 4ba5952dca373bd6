package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"naturewatch/internal/audit"
	"naturewatch/internal/conflict"
	"naturewatch/internal/credibility"
	"naturewatch/internal/dispute"
	"naturewatch/internal/geoprivacy"
	"naturewatch/internal/identity"
	"naturewatch/internal/ingest"
	"naturewatch/internal/observation"
	"naturewatch/internal/platform/config"
	"naturewatch/internal/platform/httpserver"
	"naturewatch/internal/platform/logger"
	"naturewatch/internal/platform/metrics"
	"naturewatch/internal/platform/postgres"
	platformredis "naturewatch/internal/platform/redis"
	"naturewatch/internal/temporal"
	httptransport "naturewatch/internal/transport/http"
	"naturewatch/internal/verification"
)

// main wires dependencies and owns the server lifecycle. Trust policy lives in
// config; business logic lives in the internal services.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	db, err := postgres.Open(cfg.Server.PostgresURL)
	if err != nil {
		log.Error("postgres connection failed", "error", err)
		os.Exit(1)
	}
	if db != nil {
		defer db.Close()
	}

	rdb, err := platformredis.New(cfg.Server.RedisURL)
	if err != nil {
		log.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	if rdb != nil {
		defer rdb.Close()
	}

	// Stores: postgres when configured, in-memory otherwise.
	var (
		observations observation.Store
		ledgerStore  credibility.Store
		verifStore   verification.Store
		disputeStore dispute.Store
		zoneStore    geoprivacy.ZoneStore
		auditStore   audit.Store
	)
	if db != nil {
		observations = observation.NewPostgres(db)
		ledgerStore = credibility.NewPostgres(db)
		verifStore = verification.NewPostgres(db)
		disputeStore = dispute.NewPostgres(db)
		zoneStore = geoprivacy.NewPostgresZoneStore(db)
		auditStore = audit.NewPostgres(db)
		log.Info("using postgres stores")
	} else {
		observations = observation.NewInMemoryStore()
		ledgerStore = credibility.NewInMemoryStore()
		verifStore = verification.NewInMemoryStore()
		disputeStore = dispute.NewInMemoryStore()
		zoneStore = geoprivacy.NewInMemoryZoneStore()
		auditStore = audit.NewInMemoryStore()
		log.Warn("POSTGRES_URL not set; using in-memory stores")
	}

	m := metrics.New()

	// Audit events are buffered and persisted off the request path.
	auditInbox := make(chan audit.Event, 256)
	auditPub := audit.NewPublisher(auditStore, audit.WithInbox(auditInbox))

	ledger, err := credibility.New(ledgerStore, cfg.Trust.NewUserBaseScore, cfg.Trust.MaxTransitionRetries,
		credibility.WithLogger(log),
		credibility.WithAuditPublisher(auditPub),
		credibility.WithMetrics(m),
	)
	if err != nil {
		log.Error("credibility service init failed", "error", err)
		os.Exit(1)
	}

	detectorOpts := []conflict.Option{}
	if rdb != nil {
		detectorOpts = append(detectorOpts, conflict.WithRedis(rdb.Client))
	}
	detector := conflict.NewDetector(observations, cfg.Trust.ConflictCellDecimals, detectorOpts...)

	ingestSvc, err := ingest.New(
		observations,
		zoneStore,
		geoprivacy.NewTransformer(
			float64(cfg.Trust.BufferPrecisionMinMeters),
			float64(cfg.Trust.BufferPrecisionMaxMeters),
			time.Now().UnixNano(),
		),
		temporal.NewValidator(cfg.Trust.RetentionWindowDays),
		detector,
		cfg.Trust,
		ingest.WithLogger(log),
		ingest.WithAuditPublisher(auditPub),
		ingest.WithMetrics(m),
	)
	if err != nil {
		log.Error("ingest service init failed", "error", err)
		os.Exit(1)
	}

	verificationSvc, err := verification.New(verifStore, observations, disputeStore, ledger, cfg.Trust,
		verification.WithLogger(log),
		verification.WithAuditPublisher(auditPub),
		verification.WithMetrics(m),
	)
	if err != nil {
		log.Error("verification service init failed", "error", err)
		os.Exit(1)
	}

	disputeSvc, err := dispute.New(disputeStore, observations, ledger, verificationSvc, cfg.Trust,
		dispute.WithLogger(log),
		dispute.WithAuditPublisher(auditPub),
		dispute.WithMetrics(m),
	)
	if err != nil {
		log.Error("dispute service init failed", "error", err)
		os.Exit(1)
	}

	validator := identity.NewValidator(cfg.Server.JWTSigningKey)
	handler := httptransport.New(ingestSvc, verificationSvc, disputeSvc, ledger, log)
	router := httptransport.NewRouter(handler, validator, log, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if db != nil {
			if err := db.PingContext(ctx); err != nil {
				return err
			}
		}
		if rdb != nil {
			if err := rdb.Health(ctx); err != nil {
				return err
			}
		}
		return nil
	})

	srv := httpserver.New(cfg.Server.Addr, router)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		_ = audit.NewWorker(auditStore, auditInbox, log).Run(rootCtx)
	}()

	// Voting-window sweeper: disputes that never reach quorum still resolve
	// when the window elapses.
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-rootCtx.Done():
				return
			case <-ticker.C:
				if n, err := disputeSvc.SweepExpired(rootCtx); err != nil {
					log.Error("dispute sweep failed", "error", err)
				} else if n > 0 {
					log.Info("expired disputes resolved", "count", n)
				}
			}
		}
	}()

	go func() {
		log.Info("starting naturewatch", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-rootCtx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
}
