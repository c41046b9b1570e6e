// Package epoch implements the Epoch Oracle: the mapping
// from (site, instant) to a privacy epoch index, using a per-site
// randomized origin so epoch rollovers are not globally observable.
package epoch

import (
	"time"

	"github.com/w3c/attribution/internal/collab"
	"github.com/w3c/attribution/internal/domain"
)

// Oracle owns the per-site randomized epoch origin map. Created lazily on
// first use per site and never rewritten unless the site's state is
// forgotten.
type Oracle struct {
	period time.Duration
	rng    collab.Rng
	origin map[domain.Site]time.Time
}

// New creates an Oracle with the given epoch period and entropy source.
func New(period time.Duration, rng collab.Rng) *Oracle {
	return &Oracle{
		period: period,
		rng:    rng,
		origin: make(map[domain.Site]time.Time),
	}
}

// Origins returns a read-only snapshot of the current epoch-start map, for
// the engine's read-only accessor.
func (o *Oracle) Origins() map[domain.Site]time.Time {
	snapshot := make(map[domain.Site]time.Time, len(o.origin))
	for s, t := range o.origin {
		snapshot[s] = t
	}
	return snapshot
}

// ensureOrigin draws and stores the randomized origin for site s if absent.
func (o *Oracle) ensureOrigin(s domain.Site, now time.Time) time.Time {
	if origin, ok := o.origin[s]; ok {
		return origin
	}
	p := o.rng.Random()
	if p < 0 || p >= 1 {
		panic("epoch: Rng.Random() returned a value outside [0, 1)")
	}
	origin := now.Add(-time.Duration(p * float64(o.period)))
	o.origin[s] = origin
	return origin
}

// Index returns epoch_index(s, t): floor((t - epoch_start[s]) / period).
func (o *Oracle) Index(s domain.Site, t time.Time) int64 {
	origin := o.ensureOrigin(s, t)
	delta := int64(t.Sub(origin))
	period := int64(o.period)
	q := delta / period
	if delta%period != 0 && delta < 0 {
		q--
	}
	return q
}

// clearEpoch returns epoch_index(s, lastClear) if lastClear is non-nil.
func (o *Oracle) clearEpoch(s domain.Site, lastClear *time.Time) (int64, bool) {
	if lastClear == nil {
		return 0, false
	}
	return o.Index(s, *lastClear), true
}

// StartEpoch returns max(earliest, clear_epoch + 2): the oldest epoch a
// lookback window may reach into, honoring the two-epoch quarantine after a
// browsing-history clear.
func (o *Oracle) StartEpoch(s domain.Site, now time.Time, maxLookback time.Duration, lastClear *time.Time) int64 {
	earliest := o.Index(s, now.Add(-maxLookback))
	if clearEpoch, ok := o.clearEpoch(s, lastClear); ok {
		if quarantined := clearEpoch + 2; quarantined > earliest {
			return quarantined
		}
	}
	return earliest
}

// Restore replaces the origin map with a previously-Origins'd set, for
// reloading a persisted snapshot at startup.
func (o *Oracle) Restore(origins map[domain.Site]time.Time) {
	o.origin = make(map[domain.Site]time.Time, len(origins))
	for s, t := range origins {
		o.origin[s] = t
	}
}

// Forget drops the stored origin for sites, or every site if sites is empty.
func (o *Oracle) Forget(sites map[domain.Site]struct{}) {
	if len(sites) == 0 {
		o.origin = make(map[domain.Site]time.Time)
		return
	}
	for s := range sites {
		delete(o.origin, s)
	}
}
