package streaming

import (
	"context"
	"sync"
	"testing"

	"market-terminal/src/analysis"
)

// -----------------------------------------------------------------------------

func TestDashboard_SnapshotAggregatesStreams(t *testing.T) {
	streams, sim, cfg := newTestStreams(t)
	engine := analysis.NewAnalyticsEngine(cfg.Analytics)
	dash := NewDashboardAggregator(streams, engine)

	id1, _ := streams.Start(context.Background(), "AAPL", "STK")
	id2, _ := streams.Start(context.Background(), "MSFT", "STK")

	for i := 0; i < 10; i++ {
		sim.EmitTick(id1, 100+float64(i), 2)
	}
	for i := 0; i < 4; i++ {
		sim.EmitTick(id2, 300+float64(i), 1)
	}
	waitTicks(t, streams, id1, 10)
	waitTicks(t, streams, id2, 4)

	snap := dash.Snapshot()

	if snap.Totals.StreamCount != 2 || snap.Totals.ActiveCount != 2 {
		t.Fatalf("unexpected totals: %+v", snap.Totals)
	}
	if snap.Totals.TotalTicks != 14 {
		t.Fatalf("expected 14 total ticks, got %d", snap.Totals.TotalTicks)
	}
	if len(snap.Streams) != 2 {
		t.Fatalf("expected 2 stream summaries, got %d", len(snap.Streams))
	}

	// Ordered by stream id.
	if snap.Streams[0].ID > snap.Streams[1].ID {
		t.Fatal("summaries not ordered by id")
	}

	for _, s := range snap.Streams {
		if !s.Analytics.HasData {
			t.Fatalf("stream %d has no analytics data", s.ID)
		}
	}
}

// -----------------------------------------------------------------------------

func TestDashboard_StreamSummaryUnknownID(t *testing.T) {
	streams, _, cfg := newTestStreams(t)
	dash := NewDashboardAggregator(streams, analysis.NewAnalyticsEngine(cfg.Analytics))

	if _, ok := dash.StreamSummary(777); ok {
		t.Fatal("unknown stream must not produce a summary")
	}
}

// -----------------------------------------------------------------------------

// Snapshots taken while ticks pour in concurrently must never block ingestion
// or observe torn state.
func TestDashboard_SnapshotUnderConcurrentIngest(t *testing.T) {
	streams, sim, cfg := newTestStreams(t)
	engine := analysis.NewAnalyticsEngine(cfg.Analytics)
	dash := NewDashboardAggregator(streams, engine)

	const streamCount = 5
	ids := make([]int64, streamCount)
	for i := range ids {
		id, err := streams.Start(context.Background(), "SYM", "STK")
		if err != nil {
			t.Fatalf("start failed: %v", err)
		}
		ids[i] = id
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup

	// Writers: 200 ticks per stream.
	for _, id := range ids {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				sim.EmitTick(id, 100+float64(i%50), 1)
			}
		}(id)
	}

	// Readers: hammer snapshots until writers finish.
	var readers sync.WaitGroup
	for i := 0; i < 4; i++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for {
				select {
				case <-stop:
					return
				default:
					snap := dash.Snapshot()
					if snap.Totals.StreamCount != streamCount {
						t.Errorf("snapshot lost streams: %d", snap.Totals.StreamCount)
						return
					}
				}
			}
		}()
	}

	wg.Wait()
	close(stop)
	readers.Wait()

	// Everything emitted must eventually land.
	for _, id := range ids {
		waitTicks(t, streams, id, 200)
	}

	final := dash.Snapshot()
	if final.Totals.TotalTicks != int64(streamCount*200) {
		t.Fatalf("expected %d total ticks, got %d", streamCount*200, final.Totals.TotalTicks)
	}
	if final.GeneratedAt <= 0 {
		t.Fatal("snapshot missing generation timestamp")
	}
}
