package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/oskarlin/rxcache/internal/adminserver"
	"github.com/oskarlin/rxcache/internal/auditlog"
	"github.com/oskarlin/rxcache/internal/diagnostics"
	"github.com/oskarlin/rxcache/internal/rxcache"
	"github.com/oskarlin/rxcache/internal/rxconfig"
	"github.com/oskarlin/rxcache/internal/rxmetrics"
	"github.com/oskarlin/rxcache/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
)

func newServeCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the cache service and its admin server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(*configPath)
		},
	}
}

func runServe(configPath string) error {
	cfg, err := rxconfig.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg.Log)
	slog.SetDefault(log)
	log.Info("starting regexcachectl", "admin_addr", cfg.AdminServer.Addr)

	sink, err := diagnostics.BuildChain(diagnostics.ChainConfig{
		Kinds:          cfg.DiagnosticsSinkNames(),
		Logger:         log,
		RateLimitPerS:  cfg.Diagnostics.RateLimitPerS,
		RateLimitBurst: cfg.Diagnostics.RateLimitBurst,
		RedisAddr:      cfg.Diagnostics.RedisAddr,
		RedisChannel:   cfg.Diagnostics.RedisChannel,
		FileWriter:     logger.RotatingWriter(cfg.Diagnostics.FileLog),
	})
	if err != nil {
		return fmt.Errorf("build diagnostics chain: %w", err)
	}

	audit, err := newAuditStore(cfg.AuditLog)
	if err != nil {
		return fmt.Errorf("open audit store: %w", err)
	}

	metrics := rxmetrics.New("rxcache", prometheus.DefaultRegisterer)
	manager := rxcache.NewCacheManager(cfg, metrics, sink, audit)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	admin := adminserver.New(cfg.AdminServer, manager, log)
	manager.SetEventPublisher(admin.Events())

	manager.Start(ctx)
	admin.Start(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := admin.Stop(shutdownCtx); err != nil {
		log.Error("admin server shutdown error", "error", err)
	}
	if err := manager.Stop(); err != nil {
		log.Error("cache manager shutdown error", "error", err)
	}
	return nil
}

func newAuditStore(cfg rxconfig.AuditLogConfig) (auditlog.Store, error) {
	switch cfg.Driver {
	case "postgres":
		return auditlog.NewPostgresStore(context.Background(), cfg.DSN)
	default:
		return auditlog.NewSQLiteStore(context.Background(), cfg.DSN)
	}
}
