// Package allocator implements last-N-touch ranking, fair integer credit
// allocation via randomized rounding that preserves expectation and exact
// sum, and histogram fill.
package allocator

import (
	"math/big"
	"sort"

	"github.com/w3c/attribution/internal/collab"
	"github.com/w3c/attribution/internal/domain"
)

// Rank implements Step B: sort the pool by (priority DESC, timestamp DESC)
// and keep the first N = min(len(credit), len(pool)). Returns the retained
// impressions and the truncated credit vector, both length N.
func Rank(pool []*domain.Impression, credit []float64) ([]*domain.Impression, []float64) {
	sorted := make([]*domain.Impression, len(pool))
	copy(sorted, pool)
	sort.SliceStable(sorted, func(a, b int) bool {
		if sorted[a].Priority != sorted[b].Priority {
			return sorted[a].Priority > sorted[b].Priority
		}
		return sorted[a].Timestamp.After(sorted[b].Timestamp)
	})

	n := len(credit)
	if len(sorted) < n {
		n = len(sorted)
	}
	return sorted[:n], credit[:n]
}

// ratFrac returns r - floor(r) for r >= 0.
func ratFrac(r *big.Rat) *big.Rat {
	floor := new(big.Int).Quo(r.Num(), r.Denom())
	return new(big.Rat).Sub(r, new(big.Rat).SetInt(floor))
}

func isZero(r *big.Rat) bool {
	return r.Sign() == 0
}

// FairlyAllocateCredit implements Step C: produces an integer vector of
// length len(credit) summing exactly to value, whose expectation equals
// value*credit_i/sum(credit). Exact rational arithmetic (math/big.Rat) is
// used throughout so the integer-sum invariant holds without floating
// point drift.
func FairlyAllocateCredit(credit []float64, value uint64, rng collab.Rng) ([]uint64, error) {
	n := len(credit)
	if n == 0 {
		return nil, domain.NewError(domain.InvalidState, "credit", "allocator received an empty credit vector")
	}

	sumCredit := new(big.Rat)
	creditRats := make([]*big.Rat, n)
	for i, c := range credit {
		cr := new(big.Rat).SetFloat64(c)
		if cr == nil {
			return nil, domain.NewError(domain.InvalidState, "credit", "credit entry is not a finite float")
		}
		creditRats[i] = cr
		sumCredit.Add(sumCredit, cr)
	}
	if isZero(sumCredit) {
		return nil, domain.NewError(domain.InvalidState, "credit", "sum of credit entries is zero")
	}

	valueRat := new(big.Rat).SetUint64(value)

	w := make([]*big.Rat, n)
	for i, cr := range creditRats {
		w[i] = new(big.Rat).Mul(valueRat, cr)
		w[i].Quo(w[i], sumCredit)
	}

	if n == 1 {
		return roundAll(w), nil
	}

	one := big.NewRat(1, 1)
	k := 0
	for i := 1; i < n; i++ {
		f1 := ratFrac(w[k])
		f2 := ratFrac(w[i])
		if isZero(f1) && isZero(f2) {
			continue
		}

		sum := new(big.Rat).Add(f1, f2)
		var dk, di *big.Rat
		if sum.Cmp(one) > 0 {
			dk = new(big.Rat).Sub(one, f1)
			di = new(big.Rat).Sub(one, f2)
		} else {
			dk = new(big.Rat).Neg(f1)
			di = new(big.Rat).Neg(f2)
		}

		denom := new(big.Rat).Add(dk, di)
		var p1 float64
		if isZero(denom) {
			p1 = 0.5
		} else {
			p1Rat := new(big.Rat).Quo(di, denom)
			p1, _ = p1Rat.Float64()
		}

		r := rng.Random()
		if r < 0 || r >= 1 {
			return nil, domain.NewError(domain.InvalidState, "rng", "Rng.Random() returned a value outside [0, 1)")
		}

		if r < p1 {
			// leader becomes i: k finalizes to an integer.
			w[i].Sub(w[i], dk)
			w[k].Add(w[k], dk)
			k = i
		} else {
			// leader stays k: i finalizes to an integer.
			w[k].Sub(w[k], di)
			w[i].Add(w[i], di)
		}
	}

	return roundAll(w), nil
}

// roundAll rounds each rational to the nearest integer (round-half-up);
// in exact arithmetic every entry is already integral by construction.
func roundAll(w []*big.Rat) []uint64 {
	half := big.NewRat(1, 2)
	out := make([]uint64, len(w))
	for i, r := range w {
		shifted := new(big.Rat).Add(r, half)
		floor := new(big.Int).Quo(shifted.Num(), shifted.Denom())
		if floor.Sign() < 0 {
			floor.SetInt64(0)
		}
		out[i] = floor.Uint64()
	}
	return out
}

// FillHistogram implements Step D: starting from a zero vector of length
// histogramSize, adds allocated[i] to the histogram_index slot of the i-th
// retained impression. Out-of-range indices silently contribute nothing.
func FillHistogram(retained []*domain.Impression, allocated []uint64, histogramSize int) []uint64 {
	hist := make([]uint64, histogramSize)
	for i, imp := range retained {
		if imp.HistogramIndex < 0 || imp.HistogramIndex >= histogramSize {
			continue
		}
		hist[imp.HistogramIndex] += allocated[i]
	}
	return hist
}

// L1Norm returns the sum of absolute values of a non-negative histogram,
// used as the observed sensitivity for single-epoch ledger deductions.
func L1Norm(hist []uint64) uint64 {
	var total uint64
	for _, v := range hist {
		total += v
	}
	return total
}
