package clickhouse

import (
	"context"

	"github.com/w3c/attribution/internal/collab"
)

// Auditor adapts Repository to collab.Auditor: it translates the engine's
// collaborator-shaped records into this package's DeductionRecord and
// ImpressionClearedRecord, and supplies the background context the
// synchronous engine has none of.
type Auditor struct {
	repo *Repository
}

func NewAuditor(repo *Repository) *Auditor {
	return &Auditor{repo: repo}
}

// RecordDeduction implements collab.Auditor.
func (a *Auditor) RecordDeduction(rec collab.DeductionRecord) error {
	return a.repo.RecordDeduction(context.Background(), DeductionRecord{
		Site:       rec.Site,
		Epoch:      rec.Epoch,
		Epsilon:    rec.Epsilon,
		Value:      rec.Value,
		MaxValue:   rec.MaxValue,
		L1Norm:     rec.L1Norm,
		Successful: rec.Successful,
		OccurredAt: rec.OccurredAt.UnixMilli(),
	})
}

// RecordImpressionsCleared implements collab.Auditor.
func (a *Auditor) RecordImpressionsCleared(rec collab.ImpressionClearedRecord) error {
	return a.repo.RecordImpressionsCleared(context.Background(), ImpressionClearedRecord{
		Site:       rec.Site,
		Reason:     rec.Reason,
		OccurredAt: rec.OccurredAt.UnixMilli(),
	})
}
