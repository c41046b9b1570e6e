package domain

import (
	"math"
)

// Input defaults applied when the caller omits an optional field.
const (
	DefaultMatchValue   uint64 = 0
	DefaultLifetimeDays        = 30
	DefaultPriority     int32  = 0
	DefaultEpsilon             = 10.0
	DefaultValue        uint64 = 1
	DefaultMaxValue     uint64 = 1
)

// MaxConversionEpsilon is the compile-time budget ceiling a single
// conversion query's epsilon may not exceed.
const MaxConversionEpsilon = 65536.0

// Limits bundles the construction-time configuration relevant to input
// validation.
type Limits struct {
	MaxConversionSitesPerImpression   int
	MaxConversionCallersPerImpression int
	MaxCreditSize                     int
	MaxLookbackDays                   int
	MaxHistogramSize                  int
}

// CanonicalizeSite validates that s is already a non-empty canonical site.
// The actual eTLD+1 canonicalization is performed by the injected
// SiteCanonicalizer collaborator before this is called; this function only
// guards against the collaborator returning something unusable.
func CanonicalizeSite(field, s string) (Site, error) {
	if s == "" {
		return "", NewError(InvalidSyntax, field, "site does not canonicalize to a non-empty registrable site")
	}
	return Site(s), nil
}

func toSiteSet(field string, raw []string) (map[Site]struct{}, []Site, error) {
	if len(raw) == 0 {
		return map[Site]struct{}{}, nil, nil
	}
	set := make(map[Site]struct{}, len(raw))
	ordered := make([]Site, 0, len(raw))
	for _, r := range raw {
		site, err := CanonicalizeSite(field, r)
		if err != nil {
			return nil, nil, err
		}
		if _, ok := set[site]; !ok {
			set[site] = struct{}{}
			ordered = append(ordered, site)
		}
	}
	return set, ordered, nil
}

// RawSaveImpressionOptions is the unvalidated input to saveImpression.
type RawSaveImpressionOptions struct {
	HistogramIndex    *int
	MatchValue        *uint64
	ConversionSites   []string
	ConversionCallers []string
	LifetimeDays      *int
	Priority          *int32
}

// ValidateSaveImpression applies the save-impression validation rules and
// defaults, in a fixed declaration order. Callers must not assume a
// particular check wins when multiple inputs are simultaneously invalid.
func ValidateSaveImpression(raw RawSaveImpressionOptions, limits Limits) (*SaveImpressionOptions, error) {
	if raw.HistogramIndex == nil {
		return nil, NewError(OutOfRange, "histogram_index", "required")
	}
	if *raw.HistogramIndex < 0 || *raw.HistogramIndex >= limits.MaxHistogramSize {
		return nil, NewError(OutOfRange, "histogram_index", "must be within [0, max_histogram_size)")
	}

	opts := &SaveImpressionOptions{
		HistogramIndex: *raw.HistogramIndex,
		MatchValue:     DefaultMatchValue,
		LifetimeDays:   DefaultLifetimeDays,
		Priority:       DefaultPriority,
	}

	if raw.MatchValue != nil {
		opts.MatchValue = *raw.MatchValue
	}

	if len(raw.ConversionSites) > limits.MaxConversionSitesPerImpression {
		return nil, NewError(OutOfRange, "conversion_sites", "exceeds max_conversion_sites_per_impression")
	}
	_, sites, err := toSiteSet("conversion_sites", raw.ConversionSites)
	if err != nil {
		return nil, err
	}
	opts.ConversionSites = sites

	if len(raw.ConversionCallers) > limits.MaxConversionCallersPerImpression {
		return nil, NewError(OutOfRange, "conversion_callers", "exceeds max_conversion_callers_per_impression")
	}
	_, callers, err := toSiteSet("conversion_callers", raw.ConversionCallers)
	if err != nil {
		return nil, err
	}
	opts.ConversionCallers = callers

	if raw.LifetimeDays != nil {
		if *raw.LifetimeDays <= 0 {
			return nil, NewError(OutOfRange, "lifetime_days", "must be a positive integer")
		}
		opts.LifetimeDays = *raw.LifetimeDays
	}
	if opts.LifetimeDays > limits.MaxLookbackDays {
		opts.LifetimeDays = limits.MaxLookbackDays
	}

	if raw.Priority != nil {
		opts.Priority = *raw.Priority
	}

	return opts, nil
}

// RawMeasureConversionOptions is the unvalidated input to measureConversion.
type RawMeasureConversionOptions struct {
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

// AggregationServiceResolver resolves a normalized URL key against the
// construction-time aggregation_services map. The URL-parsing/normalization
// step itself is the HeaderParser/SiteCanonicalizer collaborators' job, a
// declared non-goal; this function only checks membership.
type AggregationServiceResolver func(normalizedURL string) bool

// ValidateMeasureConversion applies the measure-conversion validation rules
// and defaults. "unknown aggregation service" may fire before or after
// other validations - no ordering is promised here beyond this function's
// own declaration order.
func ValidateMeasureConversion(raw RawMeasureConversionOptions, limits Limits, resolve AggregationServiceResolver) (*MeasureConversionOptions, error) {
	if raw.HistogramSize == nil {
		return nil, NewError(OutOfRange, "histogram_size", "required")
	}
	if *raw.HistogramSize < 1 || *raw.HistogramSize > limits.MaxHistogramSize {
		return nil, NewError(OutOfRange, "histogram_size", "must be within [1, max_histogram_size]")
	}

	opts := &MeasureConversionOptions{
		HistogramSize: *raw.HistogramSize,
		Epsilon:       DefaultEpsilon,
		LookbackDays:  limits.MaxLookbackDays,
		Credit:        []float64{1},
		Value:         DefaultValue,
		MaxValue:      DefaultMaxValue,
	}

	if raw.Epsilon != nil {
		opts.Epsilon = *raw.Epsilon
	}
	if opts.Epsilon <= 0 || opts.Epsilon > MaxConversionEpsilon {
		return nil, NewError(OutOfRange, "epsilon", "must be within (0, MAX_CONVERSION_EPSILON]")
	}

	if raw.LookbackDays != nil {
		if *raw.LookbackDays <= 0 {
			return nil, NewError(OutOfRange, "lookback_days", "must be a positive integer")
		}
		opts.LookbackDays = *raw.LookbackDays
	}
	if opts.LookbackDays > limits.MaxLookbackDays {
		opts.LookbackDays = limits.MaxLookbackDays
	}

	if raw.Credit != nil {
		opts.Credit = raw.Credit
	}
	if len(opts.Credit) == 0 || len(opts.Credit) > limits.MaxCreditSize {
		return nil, NewError(OutOfRange, "credit", "must be non-empty with length <= max_credit_size")
	}
	for _, c := range opts.Credit {
		if c <= 0 || math.IsInf(c, 0) || math.IsNaN(c) {
			return nil, NewError(OutOfRange, "credit", "every entry must be positive and finite")
		}
	}

	if raw.Value != nil {
		opts.Value = *raw.Value
	}
	if raw.MaxValue != nil {
		opts.MaxValue = *raw.MaxValue
	}
	if opts.Value == 0 || opts.MaxValue == 0 {
		return nil, NewError(OutOfRange, "value", "value and max_value must be positive integers")
	}
	if opts.Value > opts.MaxValue {
		return nil, NewError(OutOfRange, "value", "value must be <= max_value")
	}

	opts.MatchValues = raw.MatchValues

	_, isites, err := toSiteSet("impression_sites", raw.ImpressionSites)
	if err != nil {
		return nil, err
	}
	opts.ImpressionSites = isites

	_, icallers, err := toSiteSet("impression_callers", raw.ImpressionCallers)
	if err != nil {
		return nil, err
	}
	opts.ImpressionCallers = icallers

	if raw.AggregationService == "" {
		return nil, NewError(InvalidSyntax, "aggregation_service", "URL does not parse")
	}
	opts.AggregationService = raw.AggregationService
	if resolve != nil && !resolve(raw.AggregationService) {
		return nil, NewError(UnknownReference, "aggregation_service", "not present in configured aggregation_services")
	}

	return opts, nil
}
