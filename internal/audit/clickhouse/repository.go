package clickhouse

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// DeductionRecord is one row of the budget_deductions audit table: a
// record of a single attempted privacy-budget charge, whether it
// succeeded, and the resulting histogram's L1 norm.
type DeductionRecord struct {
	Site       string
	Epoch      int64
	Epsilon    float64
	Value      uint64
	MaxValue   uint64
	L1Norm     uint64
	Successful bool
	OccurredAt int64
}

// ImpressionClearedRecord is one row of the impressions_cleared audit
// table: a record that a site's impressions (or all impressions) were
// removed, and why.
type ImpressionClearedRecord struct {
	Site       string
	Reason     string
	OccurredAt int64
}

// Repository is the audit sink's write path; it is best-effort and never
// blocks the engine's six operations on its own success.
type Repository struct {
	client *Client
	log    *zap.Logger
}

func NewRepository(client *Client, log *zap.Logger) *Repository {
	return &Repository{client: client, log: log}
}

// InitSchema creates the audit tables if they do not already exist.
func (r *Repository) InitSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS budget_deductions (
			site String,
			epoch Int64,
			epsilon Float64,
			value UInt64,
			max_value UInt64,
			l1_norm UInt64,
			successful UInt8,
			occurred_at DateTime64(3)
		) ENGINE = MergeTree()
		ORDER BY (site, epoch, occurred_at)`,

		`CREATE TABLE IF NOT EXISTS impressions_cleared (
			site String,
			reason LowCardinality(String),
			occurred_at DateTime64(3)
		) ENGINE = MergeTree()
		ORDER BY (site, occurred_at)`,
	}

	for _, query := range queries {
		if err := r.client.Conn().Exec(ctx, query); err != nil {
			return fmt.Errorf("failed to create audit table: %w", err)
		}
	}

	r.log.Info("audit schema initialized")
	return nil
}

// RecordDeduction appends one budget ledger decision to the audit trail.
func (r *Repository) RecordDeduction(ctx context.Context, rec DeductionRecord) error {
	return r.client.Conn().Exec(ctx, `
		INSERT INTO budget_deductions
		(site, epoch, epsilon, value, max_value, l1_norm, successful, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Site, rec.Epoch, rec.Epsilon, rec.Value, rec.MaxValue, rec.L1Norm,
		boolToUint8(rec.Successful), rec.OccurredAt)
}

// RecordImpressionsCleared appends one impression-removal event to the audit trail.
func (r *Repository) RecordImpressionsCleared(ctx context.Context, rec ImpressionClearedRecord) error {
	return r.client.Conn().Exec(ctx, `
		INSERT INTO impressions_cleared (site, reason, occurred_at)
		VALUES (?, ?, ?)`,
		rec.Site, rec.Reason, rec.OccurredAt)
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.client.Conn().Ping(ctx)
}

func (r *Repository) Close() error {
	return r.client.Close()
}

func boolToUint8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
