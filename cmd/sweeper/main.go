package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	auditclickhouse "github.com/w3c/attribution/internal/audit/clickhouse"
	"github.com/w3c/attribution/internal/collab"
	"github.com/w3c/attribution/internal/config"
	"github.com/w3c/attribution/internal/engine"
	"github.com/w3c/attribution/internal/logger"
	notifysqs "github.com/w3c/attribution/internal/notify/sqs"
	"github.com/w3c/attribution/internal/persist/sqlite"
	"github.com/w3c/attribution/internal/sweeper"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	log, err := logger.New(cfg.ServiceEnvironment)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func(log *zap.Logger) {
		if err := log.Sync(); err != nil {
			log.Error("failed to sync logger", zap.Error(err))
		}
	}(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	snapshotStore, err := sqlite.Open(cfg.SQLiteSnapshotPath, log)
	if err != nil {
		log.Fatal("failed to open snapshot store", zap.Error(err))
	}
	defer snapshotStore.Close()

	notifier, err := notifysqs.NewClient(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to create SQS notifier", zap.Error(err))
	}

	var auditor collab.Auditor
	auditClient, err := auditclickhouse.NewClient(ctx, cfg, log)
	if err != nil {
		log.Warn("audit sink unavailable, continuing without it", zap.Error(err))
	} else {
		defer auditClient.Close()
		auditRepo := auditclickhouse.NewRepository(auditClient, log)
		if err := auditRepo.InitSchema(ctx); err != nil {
			log.Warn("failed to initialize audit schema, continuing without it", zap.Error(err))
		} else {
			auditor = auditclickhouse.NewAuditor(auditRepo)
		}
	}

	eng := engine.New(engine.Config{
		MaxConversionSitesPerImpression:   cfg.MaxConversionSitesPerImpression,
		MaxConversionCallersPerImpression: cfg.MaxConversionCallersPerImpression,
		MaxCreditSize:                     cfg.MaxCreditSize,
		MaxLookbackDays:                   cfg.MaxLookbackDays,
		MaxHistogramSize:                  cfg.MaxHistogramSize,
		PrivacyBudgetMicroEpsilons:        cfg.PrivacyBudgetMicroEpsilons,
		PrivacyBudgetEpoch:                cfg.PrivacyBudgetEpoch,
		IncludeUnencryptedHistogram:       cfg.IncludeUnencryptedHistogram,
	},
		collab.SystemClock{},
		collab.NewMathRng(1),
		collab.PassthroughEncryptor{},
		collab.IdentityCanonicalizer{},
		collab.StaticAggregationServices{},
		notifier,
		auditor,
		log,
	)

	if snap, err := snapshotStore.Load(); err != nil {
		log.Warn("failed to load snapshot, starting empty", zap.Error(err))
	} else {
		eng.Restore(snap)
	}

	sw := sweeper.New(eng, snapshotStore, time.Duration(cfg.SweeperIntervalSec)*time.Second, log)

	healthAddr := ""
	if cfg.SweeperHealthCheckPort != "" {
		healthAddr = ":" + cfg.SweeperHealthCheckPort
	}

	log.Info("sweeper starting", zap.Duration("interval", time.Duration(cfg.SweeperIntervalSec)*time.Second))
	if err := sw.Run(ctx, healthAddr); err != nil {
		log.Fatal("sweeper stopped", zap.Error(err))
	}
}
