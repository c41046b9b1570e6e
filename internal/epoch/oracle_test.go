package epoch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/w3c/attribution/internal/domain"
)

// fixedRng always returns the same value, used to pin down the randomized
// origin draw in tests that need a deterministic epoch boundary.
type fixedRng struct{ v float64 }

func (r fixedRng) Random() float64 { return r.v }

const day = 24 * time.Hour

func TestIndex_ZeroOriginOffsetStartsAtEpochZero(t *testing.T) {
	o := New(day, fixedRng{v: 0})
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, int64(0), o.Index("a.example", now))
	assert.Equal(t, int64(1), o.Index("a.example", now.Add(day)))
	assert.Equal(t, int64(2), o.Index("a.example", now.Add(2*day+time.Hour)))
}

func TestIndex_OriginStableAcrossCalls(t *testing.T) {
	o := New(day, fixedRng{v: 0.5})
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	first := o.Index("a.example", now)
	second := o.Index("a.example", now)
	assert.Equal(t, first, second)
}

func TestIndex_FloorDivisionForNegativeDelta(t *testing.T) {
	o := New(day, fixedRng{v: 0})
	now := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	o.Index("a.example", now) // establish origin at `now`
	before := now.Add(-time.Hour)
	assert.Equal(t, int64(-1), o.Index("a.example", before))
}

func TestIndex_PerSiteIndependentOrigins(t *testing.T) {
	o := New(day, fixedRng{v: 0.25})
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	o.Index("a.example", now)
	o.Index("b.example", now.Add(10*day))
	origins := o.Origins()
	assert.Len(t, origins, 2)
	assert.NotEqual(t, origins["a.example"], origins["b.example"])
}

func TestStartEpoch_UnquarantinedUsesEarliest(t *testing.T) {
	o := New(day, fixedRng{v: 0})
	now := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	start := o.StartEpoch("a.example", now, 3*day, nil)
	earliest := o.Index("a.example", now.Add(-3*day))
	assert.Equal(t, earliest, start)
}

func TestStartEpoch_QuarantineAfterClearWins(t *testing.T) {
	o := New(day, fixedRng{v: 0})
	now := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	lastClear := now.Add(-time.Hour) // very recent clear, in the epoch just before now's
	start := o.StartEpoch("a.example", now, 30*day, &lastClear)
	clearEpoch := o.Index("a.example", lastClear)
	assert.Equal(t, clearEpoch+2, start)
}

func TestForget_SpecificSitesOnly(t *testing.T) {
	o := New(day, fixedRng{v: 0})
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	o.Index("a.example", now)
	o.Index("b.example", now)

	o.Forget(map[domain.Site]struct{}{"a.example": {}})
	origins := o.Origins()
	assert.NotContains(t, origins, domain.Site("a.example"))
	assert.Contains(t, origins, domain.Site("b.example"))
}

func TestForget_EmptySetClearsEverything(t *testing.T) {
	o := New(day, fixedRng{v: 0})
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	o.Index("a.example", now)
	o.Index("b.example", now)

	o.Forget(nil)
	assert.Empty(t, o.Origins())
}

func TestRestore_RoundTrip(t *testing.T) {
	o := New(day, fixedRng{v: 0})
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	o.Index("a.example", now)
	snapshot := o.Origins()

	fresh := New(day, fixedRng{v: 0})
	fresh.Restore(snapshot)
	assert.Equal(t, snapshot, fresh.Origins())
}

func TestEnsureOrigin_PanicsOnOutOfRangeRng(t *testing.T) {
	o := New(day, fixedRng{v: 1})
	assert.Panics(t, func() {
		o.Index("a.example", time.Now())
	})
}
