// Package engine implements the Attribution Backend façade: the six public
// operations, orchestrating the epoch oracle, impression store, matcher,
// allocator, and privacy budget ledger.
package engine

import (
	"time"

	"go.uber.org/zap"

	"github.com/w3c/attribution/internal/budget"
	"github.com/w3c/attribution/internal/collab"
	"github.com/w3c/attribution/internal/domain"
	"github.com/w3c/attribution/internal/epoch"
	"github.com/w3c/attribution/internal/store"
)

// Config bundles every construction-time limit and tunable the engine needs.
type Config struct {
	MaxConversionSitesPerImpression   int
	MaxConversionCallersPerImpression int
	MaxCreditSize                     int
	MaxLookbackDays                   int
	MaxHistogramSize                  int
	PrivacyBudgetMicroEpsilons        uint64
	PrivacyBudgetEpoch                time.Duration
	IncludeUnencryptedHistogram       bool
}

func (c Config) limits() domain.Limits {
	return domain.Limits{
		MaxConversionSitesPerImpression:   c.MaxConversionSitesPerImpression,
		MaxConversionCallersPerImpression: c.MaxConversionCallersPerImpression,
		MaxCreditSize:                     c.MaxCreditSize,
		MaxLookbackDays:                   c.MaxLookbackDays,
		MaxHistogramSize:                  c.MaxHistogramSize,
	}
}

func (c Config) maxLookback() time.Duration {
	return time.Duration(c.MaxLookbackDays) * 24 * time.Hour
}

// Engine is the Attribution Backend. It is single-threaded and synchronous:
// every public method runs to completion before returning.
type Engine struct {
	cfg Config

	clock               collab.Clock
	rng                 collab.Rng
	encryptor           collab.Encryptor
	canon               collab.SiteCanonicalizer
	aggregationServices collab.AggregationServices
	notifier            collab.Notifier
	auditor             collab.Auditor

	oracle *epoch.Oracle
	store  *store.Store
	ledger *budget.Ledger
	state  domain.GlobalState

	log *zap.Logger
}

// New constructs an Engine. aggregationServices keys must already be
// normalized URLs; a non-normalized key is a construction-time fatal error,
// checked by the caller's injected SiteCanonicalizer/URL-normalizer before
// this constructor runs.
func New(
	cfg Config,
	clock collab.Clock,
	rng collab.Rng,
	encryptor collab.Encryptor,
	canon collab.SiteCanonicalizer,
	aggregationServices collab.AggregationServices,
	notifier collab.Notifier,
	auditor collab.Auditor,
	log *zap.Logger,
) *Engine {
	return &Engine{
		cfg:                 cfg,
		clock:               clock,
		rng:                 rng,
		encryptor:           encryptor,
		canon:               canon,
		aggregationServices: aggregationServices,
		notifier:            notifier,
		auditor:             auditor,
		oracle:              epoch.New(cfg.PrivacyBudgetEpoch, rng),
		store:               store.New(),
		ledger:              budget.New(cfg.PrivacyBudgetMicroEpsilons, domain.MaxConversionEpsilon),
		state:               domain.GlobalState{Enabled: true},
		log:                 log,
	}
}

// notify is a nil-safe dispatch to the optional Notifier collaborator.
func (e *Engine) notify(fn func(collab.Notifier)) {
	if e.notifier == nil {
		return
	}
	fn(e.notifier)
}

// audit is a nil-safe, best-effort dispatch to the optional Auditor
// collaborator; a write failure is logged and never surfaced to the caller.
func (e *Engine) audit(fn func(collab.Auditor) error) {
	if e.auditor == nil {
		return
	}
	if err := fn(e.auditor); err != nil {
		e.log.Warn("audit write failed", zap.Error(err))
	}
}

func (e *Engine) canonicalize(field, raw string) (domain.Site, error) {
	if raw == "" {
		return "", nil
	}
	canon, err := e.canon.CanonicalizeSite(raw)
	if err != nil {
		return "", domain.Wrap(domain.InvalidSyntax, field, err)
	}
	return domain.CanonicalizeSite(field, canon)
}

func (e *Engine) canonicalizeMany(field string, raws []string) ([]string, error) {
	out := make([]string, 0, len(raws))
	for _, r := range raws {
		c, err := e.canonicalize(field, r)
		if err != nil {
			return nil, err
		}
		out = append(out, string(c))
	}
	return out, nil
}

// SetEnabled implements set_enabled.
func (e *Engine) SetEnabled(enabled bool) {
	e.state.Enabled = enabled
	e.log.Info("engine enabled toggled", zap.Bool("enabled", enabled))
	if !enabled {
		e.notify(collab.Notifier.NotifyEngineDisabled)
	}
}

// Enabled reports the current toggle state.
func (e *Engine) Enabled() bool {
	return e.state.Enabled
}

// Impressions is a read-only accessor for host introspection and tests.
func (e *Engine) Impressions() []*domain.Impression {
	return e.store.Snapshot()
}

// PrivacyBudgetEntries is a read-only accessor returning every ledger cell.
func (e *Engine) PrivacyBudgetEntries() map[budget.Key]uint64 {
	return e.ledger.Snapshot()
}

// EpochStarts is a read-only accessor returning every site's epoch origin.
func (e *Engine) EpochStarts() map[domain.Site]time.Time {
	return e.oracle.Origins()
}

// LastBrowsingHistoryClear is a read-only accessor.
func (e *Engine) LastBrowsingHistoryClear() *time.Time {
	return e.state.LastBrowsingHistoryClear
}

// AggregationServiceKeys is a read-only accessor over the configured
// aggregation_services map.
func (e *Engine) AggregationServiceKeys() []string {
	return e.aggregationServices.Keys()
}

// Snapshot captures every piece of engine state a durable persistence
// layer needs to survive a restart without silently reopening spent
// privacy budget.
type Snapshot struct {
	Impressions              []*domain.Impression
	BudgetEntries            map[budget.Key]uint64
	EpochOrigins             map[domain.Site]time.Time
	Enabled                  bool
	LastBrowsingHistoryClear *time.Time
}

// Snapshot returns the current engine state for persistence.
func (e *Engine) Snapshot() Snapshot {
	return Snapshot{
		Impressions:              e.store.Snapshot(),
		BudgetEntries:            e.ledger.Snapshot(),
		EpochOrigins:             e.oracle.Origins(),
		Enabled:                  e.state.Enabled,
		LastBrowsingHistoryClear: e.state.LastBrowsingHistoryClear,
	}
}

// Restore replaces the engine's state with a previously captured Snapshot.
// Intended for use immediately after New, before any of the six operations
// have been called.
func (e *Engine) Restore(s Snapshot) {
	e.store.Restore(s.Impressions)
	e.ledger.Restore(s.BudgetEntries)
	e.oracle.Restore(s.EpochOrigins)
	e.state.Enabled = s.Enabled
	e.state.LastBrowsingHistoryClear = s.LastBrowsingHistoryClear
}
