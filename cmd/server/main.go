package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"vigil/internal/approval"
	"vigil/internal/assignment"
	"vigil/internal/identity"
	"vigil/internal/notify"
	"vigil/internal/platform/config"
	"vigil/internal/platform/httpserver"
	"vigil/internal/platform/logger"
	"vigil/internal/platform/postgres"
	platformredis "vigil/internal/platform/redis"
	httptransport "vigil/internal/transport/http"
	"vigil/internal/workflow/audit"
	"vigil/internal/workflow/metrics"
	"vigil/internal/workflow/notice"
	"vigil/internal/workflow/penalty"
	"vigil/internal/workflow/store"
	"vigil/internal/workflow/sweeper"
)

// main wires dependencies and owns the process lifecycle. Business rules
// live in the internal service packages.
func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel, cfg.LogJSON)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := postgres.Migrate(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		log.Error("migrations failed", "error", err)
		os.Exit(1)
	}
	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	redisClient, err := platformredis.New(ctx, cfg.RedisURL)
	if err != nil {
		log.Error("redis unavailable", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	var sink notify.Sink
	if cfg.KafkaBrokers != "" {
		kafkaSink, err := notify.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			log.Error("kafka unavailable", "error", err)
			os.Exit(1)
		}
		defer kafkaSink.Close()
		sink = kafkaSink
	}

	st := store.NewPostgres(db)
	registry := assignment.NewPostgresRegistry(db)
	m := metrics.New()

	auditService := audit.NewService(st, registry, sink, m, log)
	noticeService := notice.NewService(st, sink, m, log, cfg.BulkParallelism)
	penaltyService := penalty.NewService(st, sink, m, log)

	var approvalStore approval.Store = approval.NewMemoryStore()
	if redisClient != nil {
		approvalStore = approval.NewRedisStore(redisClient.Client)
	}
	approvalService := approval.NewService(approvalStore, cfg.ApprovalTTL)

	checks := map[string]httptransport.HealthChecker{"postgres": dbChecker{db}}
	if redisClient != nil {
		checks["redis"] = redisClient
	}

	validator := identity.NewJWTValidator(cfg.JWTSigningKey, cfg.JWTIssuer)
	router := httptransport.NewRouter(httptransport.RouterParams{
		Logger:    log,
		Validator: validator,
		Health:    httptransport.NewHealthHandler(checks),
		API: []httptransport.Registrar{
			httptransport.NewAuditHandler(auditService),
			httptransport.NewNoticeHandler(noticeService),
			httptransport.NewPenaltyHandler(penaltyService),
			httptransport.NewApprovalHandler(approvalService),
		},
	})

	if cfg.SweepInterval > 0 {
		sw := sweeper.New(st, m, log, cfg.SweepLimit)
		go sw.RunEvery(ctx, cfg.SweepInterval)
		log.Info("deadline sweep enabled", "interval", cfg.SweepInterval.String())
	}

	srv := httpserver.New(cfg.Addr, router)
	go func() {
		log.Info("server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
}

// dbChecker adapts *sql.DB to the readiness probe.
type dbChecker struct {
	db interface {
		PingContext(ctx context.Context) error
	}
}

func (c dbChecker) Health(ctx context.Context) error {
	return c.db.PingContext(ctx)
}
