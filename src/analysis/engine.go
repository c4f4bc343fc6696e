package analysis

import (
	"fmt"
	"time"

	"market-terminal/src/analysis/core"
	"market-terminal/src/models"
)

// -----------------------------------------------------------------------------
// AnalyticsEngine is pure computation over a stream's buffer snapshot. It
// never mutates the buffer; every call is a fresh function of its input, so
// snapshots are always consistent with the buffer handed in.
// -----------------------------------------------------------------------------

const (
	SignalBullish = "Bullish"
	SignalBearish = "Bearish"

	VolatilityHigh   = "High"
	VolatilityNormal = "Normal"
	VolatilityLow    = "Low"
)

type AnalyticsEngine struct {
	cfg models.MAnalyticsConfig
}

// -----------------------------------------------------------------------------

func NewAnalyticsEngine(cfg models.MAnalyticsConfig) *AnalyticsEngine {
	return &AnalyticsEngine{cfg: cfg}
}

// -----------------------------------------------------------------------------

// ComputeSnapshot derives the full analytics view from a buffer snapshot.
// Buffers containing only null-price or null-size ticks yield a "no data"
// snapshot rather than an error.
func (e *AnalyticsEngine) ComputeSnapshot(ticks []models.MTick) models.MAnalyticsSnapshot {
	snapshot := models.MAnalyticsSnapshot{
		DataPoints:     len(ticks),
		MovingAverages: make(map[int]float64),
		Signals:        make(map[string]string),
	}

	if len(ticks) > 0 {
		snapshot.LastUpdate = ticks[len(ticks)-1].Timestamp
	} else {
		snapshot.LastUpdate = time.Now().UnixMilli()
	}

	prices := make([]float64, 0, len(ticks))
	volumes := make([]float64, 0, len(ticks))
	for _, t := range ticks {
		if t.HasPrice() {
			prices = append(prices, *t.Price)
		}
		if t.HasSize() {
			volumes = append(volumes, *t.Size)
		}
	}

	snapshot.TotalVolume = core.Sum(volumes)

	if len(prices) == 0 {
		return snapshot
	}
	snapshot.HasData = true

	// Price levels
	snapshot.CurrentPrice = prices[len(prices)-1]
	snapshot.HighPrice, snapshot.LowPrice = core.HighLow(prices)
	snapshot.PriceRange = snapshot.HighPrice - snapshot.LowPrice

	initial := prices[0]
	snapshot.PriceChange = snapshot.CurrentPrice - initial
	if initial > 0 {
		snapshot.PriceChangePct = (snapshot.PriceChange / initial) * 100
	}

	// Moving averages: only periods with enough priced ticks appear.
	for _, period := range e.cfg.MAPeriods {
		if ma, ok := core.MovingAverage(prices, period); ok {
			snapshot.MovingAverages[period] = ma

			signal := SignalBearish
			if snapshot.CurrentPrice > ma {
				signal = SignalBullish
			}
			snapshot.Signals[fmt.Sprintf("ma_%d", period)] = signal
		}
	}

	// Volatility: sample stddev of consecutive percentage changes; undefined
	// below 2 priced ticks.
	if len(prices) >= 2 {
		vol := core.SampleStdDev(core.PercentChanges(prices))
		snapshot.Volatility = &vol
		snapshot.VolatilityBand = e.classifyVolatility(vol)
	}

	return snapshot
}

// -----------------------------------------------------------------------------

func (e *AnalyticsEngine) classifyVolatility(vol float64) string {
	switch {
	case vol > e.cfg.VolatilityHighThreshold:
		return VolatilityHigh
	case vol < e.cfg.VolatilityLowThreshold:
		return VolatilityLow
	default:
		return VolatilityNormal
	}
}

// -----------------------------------------------------------------------------

// Summarize builds the per-symbol download summary from a completed bar set.
func Summarize(symbol string, bars []models.MDataBar) models.MDataSummary {
	summary := models.MDataSummary{
		Symbol:      symbol,
		RecordCount: len(bars),
		Bars:        bars,
	}
	if len(bars) == 0 {
		return summary
	}

	first, last := bars[0].Timestamp, bars[0].Timestamp
	for _, b := range bars[1:] {
		if b.Timestamp < first {
			first = b.Timestamp
		}
		if b.Timestamp > last {
			last = b.Timestamp
		}
	}
	summary.FirstTimestamp = first
	summary.LastTimestamp = last
	return summary
}
