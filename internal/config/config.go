// Package config loads the attribution backend's process configuration
// from the environment via a flat envconfig-tagged struct.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config bundles every construction-time limit for the attribution engine
// plus the ambient process configuration for the HTTP server, the sweeper,
// the ClickHouse audit sink, the SQS notifier, and the SQLite snapshot store.
type Config struct {
	ServiceEnvironment string `envconfig:"SERVICE_ENVIRONMENT" default:"development"`
	ServiceAPIPort     string `envconfig:"SERVICE_API_PORT" default:"8080"`
	ServiceHost        string `envconfig:"SERVICE_HOST" default:"localhost:8080"`

	MaxConversionSitesPerImpression   int           `envconfig:"MAX_CONVERSION_SITES_PER_IMPRESSION" default:"10"`
	MaxConversionCallersPerImpression int           `envconfig:"MAX_CONVERSION_CALLERS_PER_IMPRESSION" default:"10"`
	MaxCreditSize                     int           `envconfig:"MAX_CREDIT_SIZE" default:"20"`
	MaxLookbackDays                   int           `envconfig:"MAX_LOOKBACK_DAYS" default:"30"`
	MaxHistogramSize                  int           `envconfig:"MAX_HISTOGRAM_SIZE" default:"256"`
	PrivacyBudgetMicroEpsilons        uint64        `envconfig:"PRIVACY_BUDGET_MICRO_EPSILONS" default:"1000000"`
	PrivacyBudgetEpoch                time.Duration `envconfig:"PRIVACY_BUDGET_EPOCH" default:"168h"`
	IncludeUnencryptedHistogram       bool          `envconfig:"INCLUDE_UNENCRYPTED_HISTOGRAM" default:"false"`

	SQSEndpoint string `envconfig:"SQS_ENDPOINT"`
	SQSQueueURL string `envconfig:"SQS_QUEUE_URL"`
	SQSRegion   string `envconfig:"SQS_REGION" default:"us-east-1"`

	ClickHouseHost               string `envconfig:"CLICKHOUSE_HOST" default:"localhost"`
	ClickHousePort               string `envconfig:"CLICKHOUSE_PORT" default:"9000"`
	ClickHouseDB                 string `envconfig:"CLICKHOUSE_DB" default:"attribution"`
	ClickHouseUser               string `envconfig:"CLICKHOUSE_USER" default:""`
	ClickHousePassword           string `envconfig:"CLICKHOUSE_PASSWORD" default:""`
	ClickHouseMaxOpenConns       int    `envconfig:"CLICKHOUSE_MAX_OPEN_CONNS" default:"5"`
	ClickHouseMaxIdleConns       int    `envconfig:"CLICKHOUSE_MAX_IDLE_CONNS" default:"2"`
	ClickHouseConnMaxLifetimeSec int    `envconfig:"CLICKHOUSE_CONN_MAX_LIFETIME_SEC" default:"3600"`

	SQLiteSnapshotPath string `envconfig:"SQLITE_SNAPSHOT_PATH" default:"attribution_snapshot.db"`

	SweeperIntervalSec     int    `envconfig:"SWEEPER_INTERVAL_SEC" default:"60"`
	SweeperHealthCheckPort string `envconfig:"SWEEPER_HEALTH_CHECK_PORT" default:"8081"`
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	return &cfg, nil
}
