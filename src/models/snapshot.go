package models

// -----------------------------------------------------------------------------
// Derived analytics. Snapshots are recomputed from the buffer at read time and
// never stored authoritatively.
// -----------------------------------------------------------------------------

// MAnalyticsSnapshot is a pure function of one stream's buffer.
// MovingAverages holds only the periods with at least K priced ticks;
// Volatility is nil when fewer than 2 priced ticks exist.
type MAnalyticsSnapshot struct {
	HasData        bool               `json:"has_data"`
	CurrentPrice   float64            `json:"current_price"`
	PriceChange    float64            `json:"price_change"`
	PriceChangePct float64            `json:"price_change_pct"`
	HighPrice      float64            `json:"high_price"`
	LowPrice       float64            `json:"low_price"`
	PriceRange     float64            `json:"price_range"`
	TotalVolume    float64            `json:"total_volume"`
	MovingAverages map[int]float64    `json:"moving_averages"`
	Volatility     *float64           `json:"volatility,omitempty"`
	Signals        map[string]string  `json:"signals"`           // "ma_5" -> "Bullish"/"Bearish"
	VolatilityBand string             `json:"volatility_band"`   // "High"/"Normal"/"Low", "" when undefined
	DataPoints     int                `json:"data_points"`
	LastUpdate     int64              `json:"last_update"` // unix milliseconds
}

// -----------------------------------------------------------------------------

// MStreamSummary pairs a stream's metadata with its current analytics.
type MStreamSummary struct {
	MStreamInfo
	Analytics MAnalyticsSnapshot `json:"analytics"`
}

// MDashboardTotals aggregates counters across all streams.
type MDashboardTotals struct {
	StreamCount int     `json:"stream_count"`
	ActiveCount int     `json:"active_count"`
	TotalTicks  int64   `json:"total_ticks"`
	TotalVolume float64 `json:"total_volume"`
}

// -----------------------------------------------------------------------------

// MDashboardSummary is the copy-on-read view over all streams.
// Built fresh on every read; never mutated after construction.
type MDashboardSummary struct {
	Streams     []MStreamSummary `json:"streams"`
	Totals      MDashboardTotals `json:"totals"`
	GeneratedAt int64            `json:"generated_at"` // unix milliseconds
}
