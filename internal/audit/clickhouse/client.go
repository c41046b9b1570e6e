// Package clickhouse appends an audit trail of budget deductions and
// impression lifecycle events to ClickHouse, for operators investigating
// why a conversion returned a zero histogram after the fact. It never
// participates in the measureConversion/saveImpression decision itself.
package clickhouse

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"github.com/w3c/attribution/internal/config"
)

// Client wraps the ClickHouse connection.
type Client struct {
	connection driver.Conn
	log        *zap.Logger
}

// NewClient dials ClickHouse using the audit sink's slice of Config.
func NewClient(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Client, error) {
	addr := fmt.Sprintf("%s:%s", cfg.ClickHouseHost, cfg.ClickHousePort)

	log.Info("connecting to ClickHouse audit sink",
		zap.String("host", cfg.ClickHouseHost),
		zap.String("port", cfg.ClickHousePort),
		zap.String("database", cfg.ClickHouseDB))

	var tlsConfig *tls.Config

	connection, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.ClickHouseDB,
			Username: cfg.ClickHouseUser,
			Password: cfg.ClickHousePassword,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		TLS:              tlsConfig,
		DialTimeout:      5 * time.Second,
		MaxOpenConns:     cfg.ClickHouseMaxOpenConns,
		MaxIdleConns:     cfg.ClickHouseMaxIdleConns,
		ConnMaxLifetime:  time.Duration(cfg.ClickHouseConnMaxLifetimeSec) * time.Second,
		ConnOpenStrategy: clickhouse.ConnOpenInOrder,
		BlockBufferSize:  10,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := connection.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	log.Info("ClickHouse audit sink connection established")
	return &Client{connection: connection, log: log}, nil
}

func (c *Client) Conn() driver.Conn {
	return c.connection
}

func (c *Client) Close() error {
	if err := c.connection.Close(); err != nil {
		c.log.Error("error closing ClickHouse audit sink connection", zap.Error(err))
		return err
	}
	return nil
}
