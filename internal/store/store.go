// Package store implements the Impression Store: an
// append-only, ordered collection supporting filtered in-place erase. The
// engine is single-threaded, so no internal locking is used.
package store

import (
	"time"

	"github.com/w3c/attribution/internal/domain"
)

// Store is an ordered, append-only collection of impressions.
type Store struct {
	impressions []*domain.Impression
}

// New creates an empty Store.
func New() *Store {
	return &Store{}
}

// Append adds an impression to the end of the log. O(1) amortized, no
// deduplication.
func (s *Store) Append(imp *domain.Impression) {
	s.impressions = append(s.impressions, imp)
}

// Iter calls fn for every impression in stable storage order. Matching
// relies on this deterministic iteration.
func (s *Store) Iter(fn func(*domain.Impression)) {
	for _, imp := range s.impressions {
		fn(imp)
	}
}

// Len returns the current impression count.
func (s *Store) Len() int {
	return len(s.impressions)
}

// Snapshot returns a shallow copy of the current impression slice, for the
// engine's read-only accessor and for persistence.
func (s *Store) Snapshot() []*domain.Impression {
	out := make([]*domain.Impression, len(s.impressions))
	copy(out, s.impressions)
	return out
}

// FilterInPlace keeps only impressions for which keep returns true,
// preserving relative order. Used by expiry, clearImpressionsForSite, and
// forget-visits.
func (s *Store) FilterInPlace(keep func(*domain.Impression) bool) {
	filtered := s.impressions[:0]
	for _, imp := range s.impressions {
		if keep(imp) {
			filtered = append(filtered, imp)
		}
	}
	s.impressions = filtered
}

// ClearExpired removes impressions where now is past timestamp+lifetime.
// Idempotent: a second call with the same now removes nothing new.
func (s *Store) ClearExpired(now time.Time) {
	s.FilterInPlace(func(imp *domain.Impression) bool {
		return !imp.Expired(now)
	})
}

// ClearForSite implements clearImpressionsForSite: removes
// an impression if any of the four listed conditions hold, and otherwise
// permits the non-destructive narrowing of a still-non-empty site set.
func (s *Store) ClearForSite(site domain.Site) {
	s.FilterInPlace(func(imp *domain.Impression) bool {
		if !imp.HasIntermediary() && imp.ImpressionSite == site {
			return false
		}
		if imp.HasIntermediary() && imp.IntermediarySite == site {
			return false
		}
		if _, ok := imp.ConversionSites[site]; ok {
			delete(imp.ConversionSites, site)
			if len(imp.ConversionSites) == 0 {
				return false
			}
		}
		if _, ok := imp.ConversionCallers[site]; ok {
			delete(imp.ConversionCallers, site)
			if len(imp.ConversionCallers) == 0 {
				return false
			}
		}
		return true
	})
}

// ForgetSites drops impressions whose impression_site is in sites (used by
// clearState's forget_visits=true, sites non-empty branch).
func (s *Store) ForgetSites(sites map[domain.Site]struct{}) {
	s.FilterInPlace(func(imp *domain.Impression) bool {
		_, drop := sites[imp.ImpressionSite]
		return !drop
	})
}

// Clear empties the store entirely (forget-all clearState).
func (s *Store) Clear() {
	s.impressions = nil
}

// Restore replaces the store's contents with a previously-Snapshot'd slice,
// for reloading a persisted snapshot at startup.
func (s *Store) Restore(impressions []*domain.Impression) {
	s.impressions = impressions
}
