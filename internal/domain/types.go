// Package domain holds the plain data types shared across the attribution
// engine: impressions, budget entries, and global toggle state. Struct
// definitions only, no behavior beyond small derived accessors.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Site is a canonical registrable site (eTLD+1), produced by the injected
// SiteCanonicalizer collaborator before any value of this type is created.
type Site string

// Impression is immutable after creation except for the two site-set fields,
// which clearImpressionsForSite may prune in place.
type Impression struct {
	ID                uuid.UUID
	ImpressionSite    Site
	IntermediarySite  Site // empty means absent
	ConversionSites   map[Site]struct{}
	ConversionCallers map[Site]struct{}
	MatchValue        uint64
	Timestamp         time.Time
	Lifetime          time.Duration
	HistogramIndex    int
	Priority          int32
}

// HasIntermediary reports whether the impression was saved with an
// intermediary (embedded) site distinct from the impression site.
func (i *Impression) HasIntermediary() bool {
	return i.IntermediarySite != ""
}

// ImpressionCaller is the effective caller site for the impression: its
// intermediary if present, else its own impression site.
func (i *Impression) ImpressionCaller() Site {
	if i.HasIntermediary() {
		return i.IntermediarySite
	}
	return i.ImpressionSite
}

// ExpiresAt is the instant after which the impression must not match.
func (i *Impression) ExpiresAt() time.Time {
	return i.Timestamp.Add(i.Lifetime)
}

// Expired reports whether now is past the impression's lifetime.
func (i *Impression) Expired(now time.Time) bool {
	return now.After(i.ExpiresAt())
}

// Clone returns a deep copy safe to store independently of the caller's
// slices/maps, used by the store on Append.
func (i *Impression) Clone() *Impression {
	clone := *i
	if i.ConversionSites != nil {
		clone.ConversionSites = make(map[Site]struct{}, len(i.ConversionSites))
		for s := range i.ConversionSites {
			clone.ConversionSites[s] = struct{}{}
		}
	}
	if i.ConversionCallers != nil {
		clone.ConversionCallers = make(map[Site]struct{}, len(i.ConversionCallers))
		for s := range i.ConversionCallers {
			clone.ConversionCallers[s] = struct{}{}
		}
	}
	return &clone
}

// GlobalState is the engine-wide toggle and browsing-history bookkeeping.
type GlobalState struct {
	Enabled                 bool
	LastBrowsingHistoryClear *time.Time
}

// SaveImpressionOptions is the validated, defaulted options bundle accepted
// by saveImpression.
type SaveImpressionOptions struct {
	HistogramIndex    int
	MatchValue        uint64
	ConversionSites   []Site
	ConversionCallers []Site
	LifetimeDays      int
	Priority          int32
}

// MeasureConversionOptions is the validated, defaulted options bundle
// accepted by measureConversion.
type MeasureConversionOptions struct {
	AggregationService string
	HistogramSize      int
	Epsilon            float64
	LookbackDays       int
	Credit             []float64
	Value              uint64
	MaxValue           uint64
	MatchValues        []uint64
	ImpressionSites    []Site
	ImpressionCallers  []Site
}

// ConversionResult holds a conversion's histogram and, when requested by
// config, an unencrypted copy of it. The engine's MeasureConversion does not
// use this type; it returns engine.MeasureConversionResult.
type ConversionResult struct {
	Histogram             []uint64
	UnencryptedHistogram  []uint64 // only populated when requested by config
}
