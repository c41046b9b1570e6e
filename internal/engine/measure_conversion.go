package engine

import (
	"time"

	"go.uber.org/zap"

	"github.com/w3c/attribution/internal/allocator"
	"github.com/w3c/attribution/internal/budget"
	"github.com/w3c/attribution/internal/collab"
	"github.com/w3c/attribution/internal/domain"
	"github.com/w3c/attribution/internal/matcher"
)

// MeasureConversionInput is the caller-supplied, not-yet-validated input.
type MeasureConversionInput struct {
	TopLevelSite       string
	IntermediarySite   string // empty means absent
	AggregationService string
	HistogramSize      *int
	Epsilon            *float64
	LookbackDays       *int
	Credit             []float64
	Value              *uint64
	MaxValue           *uint64
	MatchValues        []uint64
	ImpressionSites    []string
	ImpressionCallers  []string
}

// MeasureConversionResult is returned to the caller; Report is the
// Encryptor-wrapped opaque bytes, UnencryptedHistogram is populated only
// when the engine was constructed with IncludeUnencryptedHistogram=true.
type MeasureConversionResult struct {
	Report               []byte
	UnencryptedHistogram []uint64
}

// MeasureConversion implements measureConversion.
func (e *Engine) MeasureConversion(in MeasureConversionInput) (MeasureConversionResult, error) {
	topLevelSite, err := e.canonicalize("top_level_site", in.TopLevelSite)
	if err != nil {
		return MeasureConversionResult{}, err
	}
	if topLevelSite == "" {
		return MeasureConversionResult{}, domain.NewError(domain.InvalidSyntax, "top_level_site", "required")
	}

	var intermediarySite domain.Site
	if in.IntermediarySite != "" {
		intermediarySite, err = e.canonicalize("intermediary_site", in.IntermediarySite)
		if err != nil {
			return MeasureConversionResult{}, err
		}
	}

	impressionSites, err := e.canonicalizeMany("impression_sites", in.ImpressionSites)
	if err != nil {
		return MeasureConversionResult{}, err
	}
	impressionCallers, err := e.canonicalizeMany("impression_callers", in.ImpressionCallers)
	if err != nil {
		return MeasureConversionResult{}, err
	}

	opts, err := domain.ValidateMeasureConversion(domain.RawMeasureConversionOptions{
		AggregationService: in.AggregationService,
		HistogramSize:      in.HistogramSize,
		Epsilon:            in.Epsilon,
		LookbackDays:       in.LookbackDays,
		Credit:             in.Credit,
		Value:              in.Value,
		MaxValue:           in.MaxValue,
		MatchValues:        in.MatchValues,
		ImpressionSites:    impressionSites,
		ImpressionCallers:  impressionCallers,
	}, e.cfg.limits(), func(url string) bool {
		_, ok := e.aggregationServices.Resolve(url)
		return ok
	})
	if err != nil {
		e.log.Warn("measureConversion rejected", zap.Error(err))
		return MeasureConversionResult{}, err
	}

	if !e.state.Enabled {
		e.log.Info("measureConversion degraded: engine disabled")
		return e.wrapHistogram(make([]uint64, opts.HistogramSize))
	}

	now := e.clock.Now()
	hist, err := e.computeHistogram(topLevelSite, intermediarySite, now, opts)
	if err != nil {
		return MeasureConversionResult{}, err
	}
	return e.wrapHistogram(hist)
}

func (e *Engine) wrapHistogram(hist []uint64) (MeasureConversionResult, error) {
	report, err := e.encryptor.Encrypt(hist)
	if err != nil {
		return MeasureConversionResult{}, domain.Wrap(domain.InvalidState, "encryptor", err)
	}
	result := MeasureConversionResult{Report: report}
	if e.cfg.IncludeUnencryptedHistogram {
		result.UnencryptedHistogram = hist
	}
	return result, nil
}

func matchValueSet(values []uint64) map[uint64]struct{} {
	if len(values) == 0 {
		return nil
	}
	set := make(map[uint64]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

func siteSet(sites []domain.Site) map[domain.Site]struct{} {
	if len(sites) == 0 {
		return nil
	}
	set := make(map[domain.Site]struct{}, len(sites))
	for _, s := range sites {
		set[s] = struct{}{}
	}
	return set
}

// computeHistogram runs the ranking, allocation, and histogram-fill steps
// (Steps A through D) over the matched impressions for a single conversion.
// A credit-allocation failure is returned as the allocator's InvalidState error.
func (e *Engine) computeHistogram(topLevelSite, intermediarySite domain.Site, now time.Time, opts *domain.MeasureConversionOptions) ([]uint64, error) {
	lookback := time.Duration(opts.LookbackDays) * 24 * time.Hour

	query := matcher.Query{
		TopLevelSite:      topLevelSite,
		IntermediarySite:  intermediarySite,
		Now:               now,
		Lookback:          lookback,
		ImpressionSites:   siteSet(opts.ImpressionSites),
		ImpressionCallers: siteSet(opts.ImpressionCallers),
		MatchValues:       matchValueSet(opts.MatchValues),
	}

	cur := e.oracle.Index(topLevelSite, now)
	earliest := e.oracle.Index(topLevelSite, now.Add(-lookback))

	var pool []*domain.Impression

	if cur == earliest {
		pool = matcher.Gather(e.store, query, e.oracle, cur)
		if len(pool) == 0 {
			return make([]uint64, opts.HistogramSize), nil
		}

		retained, credit := allocator.Rank(pool, opts.Credit)
		allocated, allocErr := allocator.FairlyAllocateCredit(credit, opts.Value, e.rng)
		if allocErr != nil {
			e.log.Error("fair credit allocation failed", zap.Error(allocErr))
			return nil, allocErr
		}
		hist := allocator.FillHistogram(retained, allocated, opts.HistogramSize)

		l1 := allocator.L1Norm(hist)
		ok := e.ledger.Deduct(budget.DeductParams{
			Site:     topLevelSite,
			Epoch:    cur,
			Epsilon:  opts.Epsilon,
			Value:    opts.Value,
			MaxValue: opts.MaxValue,
			L1Norm:   &l1,
		})
		e.audit(func(a collab.Auditor) error {
			return a.RecordDeduction(collab.DeductionRecord{
				Site: string(topLevelSite), Epoch: cur, Epsilon: opts.Epsilon,
				Value: opts.Value, MaxValue: opts.MaxValue, L1Norm: l1,
				Successful: ok, OccurredAt: now,
			})
		})
		if !ok {
			e.notify(func(n collab.Notifier) { n.NotifyBudgetExhausted(string(topLevelSite), cur) })
			return make([]uint64, opts.HistogramSize), nil
		}
		return hist, nil
	}

	// Multi-epoch: sweep [start_epoch(site, now) .. cur], paying worst-case
	// sensitivity 2*value per epoch that contributes any matches, before
	// ranking/allocating across the merged pool.
	startEpoch := e.oracle.StartEpoch(topLevelSite, now, e.cfg.maxLookback(), e.state.LastBrowsingHistoryClear)
	worstCaseSensitivity := 2 * opts.Value

	for ep := startEpoch; ep <= cur; ep++ {
		matches := matcher.Gather(e.store, query, e.oracle, ep)
		if len(matches) == 0 {
			continue
		}
		ok := e.ledger.Deduct(budget.DeductParams{
			Site:     topLevelSite,
			Epoch:    ep,
			Epsilon:  opts.Epsilon,
			Value:    opts.Value,
			MaxValue: opts.MaxValue,
			L1Norm:   &worstCaseSensitivity,
		})
		e.audit(func(a collab.Auditor) error {
			return a.RecordDeduction(collab.DeductionRecord{
				Site: string(topLevelSite), Epoch: ep, Epsilon: opts.Epsilon,
				Value: opts.Value, MaxValue: opts.MaxValue, L1Norm: worstCaseSensitivity,
				Successful: ok, OccurredAt: now,
			})
		})
		if !ok {
			e.notify(func(n collab.Notifier) { n.NotifyBudgetExhausted(string(topLevelSite), ep) })
			continue
		}
		pool = append(pool, matches...)
	}

	if len(pool) == 0 {
		return make([]uint64, opts.HistogramSize), nil
	}

	retained, credit := allocator.Rank(pool, opts.Credit)
	allocated, allocErr := allocator.FairlyAllocateCredit(credit, opts.Value, e.rng)
	if allocErr != nil {
		e.log.Error("fair credit allocation failed", zap.Error(allocErr))
		return nil, allocErr
	}
	return allocator.FillHistogram(retained, allocated, opts.HistogramSize), nil
}
