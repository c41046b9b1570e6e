package budget

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/w3c/attribution/internal/domain"
)

func TestRemaining_FreshCellIncludesGrace(t *testing.T) {
	l := New(2_000_000, 65536)
	key := Key{Site: "a.example", Epoch: 1}
	assert.Equal(t, uint64(2_001_000), l.Remaining(key).Big().Uint64())
}

func TestDeduct_SucceedsUntilBudgetExhausted(t *testing.T) {
	l := New(2_000_000, 65536)
	params := DeductParams{Site: "a.example", Epoch: 1, Epsilon: 1, Value: 1, MaxValue: 1}

	assert.True(t, l.Deduct(params))
	assert.Equal(t, uint64(1_001_000), l.Remaining(Key{Site: "a.example", Epoch: 1}).Big().Uint64())

	assert.True(t, l.Deduct(params))
	assert.Equal(t, uint64(1_000), l.Remaining(Key{Site: "a.example", Epoch: 1}).Big().Uint64())

	assert.False(t, l.Deduct(params), "third deduction exceeds remaining budget")
	assert.Equal(t, uint64(0), l.Remaining(Key{Site: "a.example", Epoch: 1}).Big().Uint64(), "entry is zeroized on failure")
}

func TestDeduct_UsesExplicitL1NormWhenProvided(t *testing.T) {
	l := New(10_000_000, 65536)
	l1 := uint64(1)
	params := DeductParams{Site: "a.example", Epoch: 1, Epsilon: 1, Value: 100, MaxValue: 100, L1Norm: &l1}
	assert.True(t, l.Deduct(params))
	// sensitivity=1 (not 2*value=200), noise_scale=2*100/1=200, raw=1/200=0.005 -> cost=5000 micro-epsilons.
	// fresh entry = 10_000_000 + 1_000 grace = 10_001_000, minus the 5_000 cost.
	assert.Equal(t, uint64(9_996_000), l.Remaining(Key{Site: "a.example", Epoch: 1}).Big().Uint64())
}

func TestDeduct_RawAboveCeilingFailsAndZeroizes(t *testing.T) {
	l := New(10_000_000_000, 100)
	// raw = value*epsilon/max_value = 1*1000/1 = 1000, above the 100 ceiling.
	params := DeductParams{Site: "a.example", Epoch: 1, Epsilon: 1000, Value: 1, MaxValue: 1}
	assert.False(t, l.Deduct(params))
	assert.Equal(t, uint64(0), l.Remaining(Key{Site: "a.example", Epoch: 1}).Big().Uint64())
}

func TestZeroizeRange_ZeroesEveryEpochInclusive(t *testing.T) {
	l := New(2_000_000, 65536)
	l.ZeroizeRange("a.example", 3, 5)
	for e := int64(3); e <= 5; e++ {
		assert.Equal(t, uint64(0), l.Remaining(Key{Site: "a.example", Epoch: e}).Big().Uint64())
	}
	assert.NotEqual(t, uint64(0), l.Remaining(Key{Site: "a.example", Epoch: 6}).Big().Uint64())
}

func TestForgetSites_DropsOnlyMatchingSiteEntries(t *testing.T) {
	l := New(2_000_000, 65536)
	l.Remaining(Key{Site: "a.example", Epoch: 1})
	l.Remaining(Key{Site: "b.example", Epoch: 1})

	l.ForgetSites(map[domain.Site]struct{}{"a.example": {}})

	snap := l.Snapshot()
	_, hasA := snap[Key{Site: "a.example", Epoch: 1}]
	_, hasB := snap[Key{Site: "b.example", Epoch: 1}]
	assert.False(t, hasA)
	assert.True(t, hasB)
}

func TestClear_EmptiesEverything(t *testing.T) {
	l := New(2_000_000, 65536)
	l.Remaining(Key{Site: "a.example", Epoch: 1})
	l.Clear()
	assert.Empty(t, l.Snapshot())
}

func TestRestore_RoundTrip(t *testing.T) {
	l := New(2_000_000, 65536)
	l.Deduct(DeductParams{Site: "a.example", Epoch: 1, Epsilon: 1, Value: 1, MaxValue: 1})
	snapshot := l.Snapshot()

	fresh := New(2_000_000, 65536)
	fresh.Restore(snapshot)
	assert.Equal(t, snapshot, fresh.Snapshot())
}
