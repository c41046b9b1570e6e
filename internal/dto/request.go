package dto

// SaveImpressionRequest is the JSON body for POST /impression.
type SaveImpressionRequest struct {
	ImpressionSite    string   `json:"impression_site" binding:"required" example:"advertiser.example"`
	IntermediarySite  string   `json:"intermediary_site,omitempty" example:"ssp.example"`
	HistogramIndex    *int     `json:"histogram_index,omitempty" example:"3"`
	MatchValue        *uint64  `json:"match_value,omitempty" example:"42"`
	ConversionSites   []string `json:"conversion_sites,omitempty" example:"shop.example"`
	ConversionCallers []string `json:"conversion_callers,omitempty" example:"shop.example"`
	LifetimeDays      *int     `json:"lifetime_days,omitempty" example:"30"`
	Priority          *int32   `json:"priority,omitempty" example:"100"`
}

// MeasureConversionRequest is the JSON body for POST /conversion.
type MeasureConversionRequest struct {
	TopLevelSite       string    `json:"top_level_site" binding:"required" example:"shop.example"`
	IntermediarySite   string    `json:"intermediary_site,omitempty" example:"ssp.example"`
	AggregationService string    `json:"aggregation_service" binding:"required" example:"https://aggregator.example"`
	HistogramSize      *int      `json:"histogram_size,omitempty" example:"256"`
	Epsilon            *float64  `json:"epsilon,omitempty" example:"10"`
	LookbackDays       *int      `json:"lookback_days,omitempty" example:"7"`
	Credit             []float64 `json:"credit" binding:"required,min=1" example:"1,2"`
	Value              *uint64   `json:"value,omitempty" example:"1"`
	MaxValue           *uint64   `json:"max_value,omitempty" example:"1"`
	MatchValues        []uint64  `json:"match_values,omitempty"`
	ImpressionSites    []string  `json:"impression_sites,omitempty" example:"advertiser.example"`
	ImpressionCallers  []string  `json:"impression_callers,omitempty" example:"advertiser.example"`
}

// ClearImpressionsForSiteRequest is the JSON body for POST /clear/impressions.
type ClearImpressionsForSiteRequest struct {
	Site string `json:"site" binding:"required" example:"advertiser.example"`
}

// ClearStateRequest is the JSON body for POST /clear/state.
type ClearStateRequest struct {
	Sites        []string `json:"sites,omitempty" example:"shop.example"`
	ForgetVisits bool      `json:"forget_visits" example:"true"`
}

// SetEnabledRequest is the JSON body for POST /control/enabled.
type SetEnabledRequest struct {
	Enabled bool `json:"enabled"`
}
