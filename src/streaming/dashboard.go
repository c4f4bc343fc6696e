package streaming

import (
	"sort"
	"time"

	"market-terminal/src/analysis"
	"market-terminal/src/models"
)

// DashboardAggregator composes the cross-stream overview. Every call works on
// copies taken under the per-stream locks; streams that receive ticks while a
// snapshot is being built are simply read at slightly different instants,
// which keeps tick ingestion from ever blocking on a reader.
type DashboardAggregator struct {
	registry *StreamRegistry
	engine   *analysis.AnalyticsEngine
}

// -----------------------------------------------------------------------------

func NewDashboardAggregator(registry *StreamRegistry, engine *analysis.AnalyticsEngine) *DashboardAggregator {
	return &DashboardAggregator{registry: registry, engine: engine}
}

// -----------------------------------------------------------------------------

// StreamSummary builds the analytics view of one stream.
func (d *DashboardAggregator) StreamSummary(id int64) (models.MStreamSummary, bool) {
	info, ok := d.registry.Info(id)
	if !ok {
		return models.MStreamSummary{}, false
	}
	ticks, _ := d.registry.Series(id)

	return models.MStreamSummary{
		MStreamInfo: info,
		Analytics:   d.engine.ComputeSnapshot(ticks),
	}, true
}

// -----------------------------------------------------------------------------

// Snapshot builds the full dashboard: one summary per known stream plus
// cross-stream totals, ordered by stream id.
func (d *DashboardAggregator) Snapshot() models.MDashboardSummary {
	infos := d.registry.List()
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })

	summary := models.MDashboardSummary{
		Streams:     make([]models.MStreamSummary, 0, len(infos)),
		GeneratedAt: time.Now().UnixMilli(),
	}

	for _, info := range infos {
		ticks, ok := d.registry.Series(info.ID)
		if !ok {
			continue // purged between List and Series
		}
		snap := d.engine.ComputeSnapshot(ticks)

		summary.Streams = append(summary.Streams, models.MStreamSummary{
			MStreamInfo: info,
			Analytics:   snap,
		})

		summary.Totals.StreamCount++
		if info.State == models.StreamActive {
			summary.Totals.ActiveCount++
		}
		summary.Totals.TotalTicks += int64(info.TickCount)
		summary.Totals.TotalVolume += snap.TotalVolume
	}

	return summary
}
