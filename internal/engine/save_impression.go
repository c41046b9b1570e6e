package engine

import (
	"time"

	"go.uber.org/zap"

	"github.com/google/uuid"

	"github.com/w3c/attribution/internal/domain"
)

// SaveImpressionInput is the caller-supplied, not-yet-validated input to
// SaveImpression, after header parsing / site canonicalization upstream
// non-goals have produced raw strings.
type SaveImpressionInput struct {
	ImpressionSite    string
	IntermediarySite  string // empty means absent
	HistogramIndex    *int
	MatchValue        *uint64
	ConversionSites   []string
	ConversionCallers []string
	LifetimeDays      *int
	Priority          *int32
}

// SaveImpressionAck is the (intentionally empty) acknowledgement.
type SaveImpressionAck struct{}

// SaveImpression implements saveImpression. When the
// engine is disabled, inputs are still validated but nothing is stored.
func (e *Engine) SaveImpression(in SaveImpressionInput) (SaveImpressionAck, error) {
	impressionSite, err := e.canonicalize("impression_site", in.ImpressionSite)
	if err != nil {
		return SaveImpressionAck{}, err
	}
	if impressionSite == "" {
		return SaveImpressionAck{}, domain.NewError(domain.InvalidSyntax, "impression_site", "required")
	}

	var intermediarySite domain.Site
	if in.IntermediarySite != "" {
		intermediarySite, err = e.canonicalize("intermediary_site", in.IntermediarySite)
		if err != nil {
			return SaveImpressionAck{}, err
		}
	}

	opts, err := domain.ValidateSaveImpression(domain.RawSaveImpressionOptions{
		HistogramIndex:    in.HistogramIndex,
		MatchValue:        in.MatchValue,
		ConversionSites:   in.ConversionSites,
		ConversionCallers: in.ConversionCallers,
		LifetimeDays:      in.LifetimeDays,
		Priority:          in.Priority,
	}, e.cfg.limits())
	if err != nil {
		e.log.Warn("saveImpression rejected", zap.Error(err))
		return SaveImpressionAck{}, err
	}

	if !e.state.Enabled {
		e.log.Info("saveImpression skipped: engine disabled")
		return SaveImpressionAck{}, nil
	}

	now := e.clock.Now()

	conversionSites := make(map[domain.Site]struct{}, len(opts.ConversionSites))
	for _, s := range opts.ConversionSites {
		conversionSites[s] = struct{}{}
	}
	conversionCallers := make(map[domain.Site]struct{}, len(opts.ConversionCallers))
	for _, s := range opts.ConversionCallers {
		conversionCallers[s] = struct{}{}
	}

	imp := &domain.Impression{
		ID:                uuid.New(),
		ImpressionSite:    impressionSite,
		IntermediarySite:  intermediarySite,
		ConversionSites:   conversionSites,
		ConversionCallers: conversionCallers,
		MatchValue:        opts.MatchValue,
		Timestamp:         now,
		Lifetime:          time.Duration(opts.LifetimeDays) * 24 * time.Hour,
		HistogramIndex:    opts.HistogramIndex,
		Priority:          opts.Priority,
	}

	e.store.Append(imp)
	e.log.Info("impression saved",
		zap.String("impression_site", string(impressionSite)),
		zap.Int("histogram_index", opts.HistogramIndex))

	return SaveImpressionAck{}, nil
}
