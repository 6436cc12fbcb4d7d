package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointments/internal/config"
	"github.com/hackgods/clinic-appointments/internal/db"
	"github.com/hackgods/clinic-appointments/internal/logger"
	"github.com/hackgods/clinic-appointments/internal/metrics"
	"github.com/hackgods/clinic-appointments/internal/notify"
	redisclient "github.com/hackgods/clinic-appointments/internal/redis"
)

const sweepLockName = "notify-worker:sweep"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	zlog, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	zlog.Info("notify-worker starting up",
		zap.String("env", cfg.Env),
		zap.Duration("interval", cfg.WorkerInterval),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		zlog.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	zlog.Info("connected to Postgres")

	if err := db.EnsureSchema(rootCtx, pgPool); err != nil {
		zlog.Fatal("schema error", zap.Error(err))
	}

	rdb, err := redisclient.NewRedisClient(rootCtx, redisclient.Options{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		zlog.Fatal("redis connection error", zap.Error(err))
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			zlog.Warn("error closing redis", zap.Error(err))
		}
	}()
	zlog.Info("connected to Redis")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewCollector("clinic", reg)

	metricsSrv := newMetricsServer(cfg.MetricsPort, reg)
	go func() {
		zlog.Info("metrics listening", zap.String("addr", metricsSrv.Addr))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Error("metrics server error", zap.Error(err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}()

	dispatcher := notify.NewDispatcher(
		notify.NewPgOutbox(pgPool),
		notify.NewSMTPMailer(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.MailFrom,
		}),
		zlog.Named("notify"),
		m,
		notify.DispatcherConfig{
			MaxAttempts: cfg.NotifyMaxAttempts,
			BatchSize:   cfg.NotifyBatchSize,
			StaleAfter:  cfg.NotifyStaleAfter,
		},
	)
	locker := redisclient.NewRedisLocker(rdb, cfg.LockTTL)

	// Run once at startup
	runOnce(rootCtx, zlog, locker, dispatcher)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			zlog.Info("shutdown signal received, stopping notify worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, zlog, locker, dispatcher)
		}
	}
}

func newMetricsServer(port string, gatherer prometheus.Gatherer) *http.Server {
	r := chi.NewRouter()
	r.Handle("/metrics", metrics.Handler(gatherer))
	return &http.Server{
		Addr:              net.JoinHostPort("", port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// runOnce sweeps one batch. Only the replica holding the lock does any work.
func runOnce(ctx context.Context, zlog *zap.Logger, locker redisclient.Locker, d *notify.Dispatcher) {
	start := time.Now()

	var report notify.RetryReport
	err := locker.WithLock(ctx, sweepLockName, func(ctx context.Context) error {
		var err error
		report, err = d.RetryFailed(ctx)
		return err
	})
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		zlog.Debug("another worker holds the sweep lock")
		return
	}
	if err != nil {
		zlog.Error("notify sweep error", zap.Error(err))
		return
	}

	zlog.Info("notify sweep complete",
		zap.Int("claimed", report.Claimed),
		zap.Int("sent", report.Sent),
		zap.Int("failed", report.Failed),
		zap.Duration("took", time.Since(start)),
	)
}
