package main

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/w3c/attribution/docs"
	auditclickhouse "github.com/w3c/attribution/internal/audit/clickhouse"
	"github.com/w3c/attribution/internal/collab"
	"github.com/w3c/attribution/internal/config"
	"github.com/w3c/attribution/internal/engine"
	"github.com/w3c/attribution/internal/httpapi"
	"github.com/w3c/attribution/internal/logger"
	notifysqs "github.com/w3c/attribution/internal/notify/sqs"
	"github.com/w3c/attribution/internal/persist/sqlite"
)

// @title Attribution Measurement API
// @version 1.0
// @description Browser-resident attribution measurement: impressions, conversions, credit allocation, and differential privacy budget accounting.
// @host localhost:8080
// @BasePath /
// @schemes http https
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

	log.Info("starting attribution server",
		zap.String("environment", cfg.ServiceEnvironment),
		zap.String("port", cfg.ServiceAPIPort))

	docs.SwaggerInfo.Host = cfg.ServiceHost

	ctx := context.Background()

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
		log.Info("snapshot restored", zap.Int("impression_count", len(snap.Impressions)))
	}

	h := httpapi.NewHandler(eng, log)

	addr := fmt.Sprintf(":%s", cfg.ServiceAPIPort)
	log.Info("attribution server listening", zap.String("address", addr))

	if err := http.ListenAndServe(addr, h); err != nil {
		log.Fatal("attribution server stopped", zap.Error(err))
	}
}
