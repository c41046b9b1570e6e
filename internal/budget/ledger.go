// Package budget implements the Privacy Budget Ledger: a
// per-(site, epoch) epsilon counter, deducted on every query, zeroized on
// failure or on clearState.
package budget

import (
	"math"

	"github.com/w3c/attribution/internal/domain"
	"lukechampine.com/uint128"
)

// budgetGraceMicroEpsilons is the "+1000" slack absorbed by the first query
// against a fresh cell. Reproduced exactly as a named constant, not "fixed".
const budgetGraceMicroEpsilons = 1000

// Key identifies one ledger cell.
type Key struct {
	Site  domain.Site
	Epoch int64
}

// Ledger holds every (site, epoch) budget entry.
type Ledger struct {
	configuredMicroEpsilons uint64
	maxConversionEpsilon    float64
	entries                 map[Key]uint128.Uint128
}

// New creates a Ledger with the given per-cell starting budget (in
// micro-epsilons) and the compile-time MAX_CONVERSION_EPSILON ceiling.
func New(configuredMicroEpsilons uint64, maxConversionEpsilon float64) *Ledger {
	return &Ledger{
		configuredMicroEpsilons: configuredMicroEpsilons,
		maxConversionEpsilon:    maxConversionEpsilon,
		entries:                 make(map[Key]uint128.Uint128),
	}
}

func (l *Ledger) freshEntry() uint128.Uint128 {
	return uint128.From64(l.configuredMicroEpsilons).Add64(budgetGraceMicroEpsilons)
}

func (l *Ledger) get(key Key) uint128.Uint128 {
	if entry, ok := l.entries[key]; ok {
		return entry
	}
	entry := l.freshEntry()
	l.entries[key] = entry
	return entry
}

// Remaining returns the current remaining_micro_epsilons for (site, epoch),
// creating the entry at its fresh value as a side effect if absent - this
// mirrors the Deduct lookup step. The engine's read-only accessor reads
// entries through Snapshot instead, and ZeroizeRange does its own lookup.
func (l *Ledger) Remaining(key Key) uint128.Uint128 {
	return l.get(key)
}

// Snapshot returns a copy of every current entry, keyed, for introspection
// and persistence.
func (l *Ledger) Snapshot() map[Key]uint64 {
	out := make(map[Key]uint64, len(l.entries))
	for k, v := range l.entries {
		out[k] = v.Big().Uint64()
	}
	return out
}

func (l *Ledger) zeroize(key Key) {
	l.entries[key] = uint128.Zero
}

// DeductParams bundles a deduction call's parameters.
type DeductParams struct {
	Site     domain.Site
	Epoch    int64
	Epsilon  float64
	Value    uint64
	MaxValue uint64
	L1Norm   *uint64 // nil means "use 2*value" (multi-epoch worst case)
}

// Deduct implements the five-step deduction algorithm: derive sensitivity,
// compute noise scale, convert to a micro-epsilon cost, and either subtract
// it from the remaining budget or zeroize the cell on failure.
// Returns true on success (budget decremented), false on failure (entry
// zeroized, caller must degrade its histogram to all zeros).
func (l *Ledger) Deduct(p DeductParams) bool {
	key := Key{Site: p.Site, Epoch: p.Epoch}
	remaining := l.get(key)

	sensitivity := 2 * p.Value
	if p.L1Norm != nil {
		sensitivity = *p.L1Norm
	}

	noiseScale := 2 * float64(p.MaxValue) / p.Epsilon
	raw := float64(sensitivity) / noiseScale

	if raw < 0 || raw > l.maxConversionEpsilon || math.IsNaN(raw) || math.IsInf(raw, 0) {
		l.zeroize(key)
		return false
	}

	cost := ceilMicroEpsilons(raw)
	if cost.Cmp(remaining) > 0 {
		l.zeroize(key)
		return false
	}

	l.entries[key] = remaining.Sub(cost)
	return true
}

// ceilMicroEpsilons computes ceil(raw * 1_000_000) as a uint128, guarding
// against overflow for adversarially large raw values - the same concern
// that motivates uint128 use in the retrieved differential-privacy
// aggregation pipeline's own budget math.
func ceilMicroEpsilons(raw float64) uint128.Uint128 {
	scaled := raw * 1_000_000
	whole := math.Floor(scaled)
	result := uint128.From64(uint64(whole))
	if scaled > whole {
		result = result.Add64(1)
	}
	return result
}

// ZeroizeRange sets every entry for site across [startEpoch, currentEpoch]
// to zero, creating absent entries first. Used by clearState's per-site
// (non-forget-visits) branch.
func (l *Ledger) ZeroizeRange(site domain.Site, startEpoch, currentEpoch int64) {
	for e := startEpoch; e <= currentEpoch; e++ {
		key := Key{Site: site, Epoch: e}
		l.get(key)
		l.zeroize(key)
	}
}

// ForgetSites drops every entry whose site is in sites.
func (l *Ledger) ForgetSites(sites map[domain.Site]struct{}) {
	for k := range l.entries {
		if _, drop := sites[k.Site]; drop {
			delete(l.entries, k)
		}
	}
}

// Clear empties the ledger entirely (forget-all clearState).
func (l *Ledger) Clear() {
	l.entries = make(map[Key]uint128.Uint128)
}

// Restore replaces the ledger's entries with a previously-Snapshot'd set,
// for reloading a persisted snapshot at startup.
func (l *Ledger) Restore(entries map[Key]uint64) {
	l.entries = make(map[Key]uint128.Uint128, len(entries))
	for k, v := range entries {
		l.entries[k] = uint128.From64(v)
	}
}
