// Package matcher implements conversion-time impression matching.
package matcher

import (
	"time"

	"github.com/w3c/attribution/internal/domain"
	"github.com/w3c/attribution/internal/epoch"
	"github.com/w3c/attribution/internal/store"
)

// Query bundles a conversion's matching parameters.
type Query struct {
	TopLevelSite      domain.Site
	IntermediarySite  domain.Site // empty means absent
	Now               time.Time
	Lookback          time.Duration
	ImpressionSites   map[domain.Site]struct{}
	ImpressionCallers map[domain.Site]struct{}
	MatchValues       map[uint64]struct{}
}

// ConversionCaller is intermediary_site if present, else top_level_site.
func (q Query) ConversionCaller() domain.Site {
	if q.IntermediarySite != "" {
		return q.IntermediarySite
	}
	return q.TopLevelSite
}

// Matches reports whether imp matches the query for the given epoch,
// against all eight matching conditions.
func Matches(imp *domain.Impression, q Query, oracle *epoch.Oracle, targetEpoch int64) bool {
	if oracle.Index(q.TopLevelSite, imp.Timestamp) != targetEpoch {
		return false
	}
	if imp.Expired(q.Now) {
		return false
	}
	if q.Now.After(imp.Timestamp.Add(q.Lookback)) {
		return false
	}
	if len(imp.ConversionSites) > 0 {
		if _, ok := imp.ConversionSites[q.TopLevelSite]; !ok {
			return false
		}
	}
	if len(imp.ConversionCallers) > 0 {
		if _, ok := imp.ConversionCallers[q.ConversionCaller()]; !ok {
			return false
		}
	}
	if len(q.MatchValues) > 0 {
		if _, ok := q.MatchValues[imp.MatchValue]; !ok {
			return false
		}
	}
	if len(q.ImpressionSites) > 0 {
		if _, ok := q.ImpressionSites[imp.ImpressionSite]; !ok {
			return false
		}
	}
	if len(q.ImpressionCallers) > 0 {
		if _, ok := q.ImpressionCallers[imp.ImpressionCaller()]; !ok {
			return false
		}
	}
	return true
}

// Gather returns, in storage order, every impression in s matching q for
// targetEpoch.
func Gather(s *store.Store, q Query, oracle *epoch.Oracle, targetEpoch int64) []*domain.Impression {
	var matched []*domain.Impression
	s.Iter(func(imp *domain.Impression) {
		if Matches(imp, q, oracle, targetEpoch) {
			matched = append(matched, imp)
		}
	})
	return matched
}
