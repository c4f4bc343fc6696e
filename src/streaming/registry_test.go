package streaming

import (
	"context"
	"testing"
	"time"

	"market-terminal/src/config"
	"market-terminal/src/gateway"
	"market-terminal/src/logger"
	"market-terminal/src/models"
)

// -----------------------------------------------------------------------------

func newTestStreams(t *testing.T) (*StreamRegistry, *gateway.SimGateway, *config.Config) {
	t.Helper()

	cfg := config.Default()
	log := logger.NewLogger("ERROR", "test")

	sim := gateway.NewSimGateway()
	registry := gateway.NewRequestRegistry(log, nil)
	pacer := gateway.NewPacingLimiter(cfg.Pacing, log, nil)
	sup := gateway.NewConnectionSupervisor(sim, registry, pacer, log, nil)

	streams := NewStreamRegistry(sup, cfg, log, nil)
	sup.SetTickSink(streams)

	if err := sup.Connect(context.Background(), models.MIdentity{Host: "sim"}, time.Second); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	return streams, sim, cfg
}

func waitTicks(t *testing.T, streams *StreamRegistry, id int64, want int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if info, ok := streams.Info(id); ok && info.TickCount >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	info, _ := streams.Info(id)
	t.Fatalf("expected %d ticks, got %d", want, info.TickCount)
}

// -----------------------------------------------------------------------------

func TestStreams_StartAndIngest(t *testing.T) {
	streams, sim, _ := newTestStreams(t)

	id, err := streams.Start(context.Background(), "AAPL", "STK")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	info, ok := streams.Info(id)
	if !ok || info.State != models.StreamActive {
		t.Fatalf("expected active stream, got %+v", info)
	}

	for i := 0; i < 20; i++ {
		sim.EmitTick(id, 100+float64(i), 5)
	}
	waitTicks(t, streams, id, 20)

	series, ok := streams.Series(id)
	if !ok || len(series) != 20 {
		t.Fatalf("expected 20 buffered ticks, got %d", len(series))
	}
	if streams.ActiveCount() != 1 {
		t.Fatalf("expected 1 active stream, got %d", streams.ActiveCount())
	}
}

// -----------------------------------------------------------------------------

func TestStreams_StopIsLocallyAuthoritative(t *testing.T) {
	streams, sim, _ := newTestStreams(t)

	id, err := streams.Start(context.Background(), "AAPL", "STK")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	sim.EmitTick(id, 100, 1)
	waitTicks(t, streams, id, 1)

	if err := streams.Stop(context.Background(), id); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	info, _ := streams.Info(id)
	if info.State != models.StreamStopped {
		t.Fatalf("expected stopped immediately, got %s", info.State)
	}

	// A tick racing past the stop is silently dropped.
	sim.EmitTick(id, 999, 1)
	time.Sleep(100 * time.Millisecond)

	info, _ = streams.Info(id)
	if info.TickCount != 1 {
		t.Fatalf("post-stop tick was recorded: count=%d", info.TickCount)
	}

	series, _ := streams.Series(id)
	if len(series) != 1 {
		t.Fatalf("post-stop tick leaked into buffer: %d", len(series))
	}

	// Stopping twice is a no-op.
	if err := streams.Stop(context.Background(), id); err != nil {
		t.Fatalf("second stop errored: %v", err)
	}
	// Stopping an unknown stream is a no-op.
	if err := streams.Stop(context.Background(), 424242); err != nil {
		t.Fatalf("unknown stop errored: %v", err)
	}
}

// -----------------------------------------------------------------------------

func TestStreams_BufferBoundedByCapacity(t *testing.T) {
	streams, sim, cfg := newTestStreams(t)
	cfg.Streaming.BufferCapacity = 16

	id, err := streams.Start(context.Background(), "AAPL", "STK")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	for i := 0; i < 16+5; i++ {
		sim.EmitTick(id, float64(i+1), 1)
	}
	waitTicks(t, streams, id, 21)

	series, _ := streams.Series(id)
	if len(series) != 16 {
		t.Fatalf("expected buffer capped at 16, got %d", len(series))
	}
	// Oldest 5 evicted: the first surviving price is the 6th emitted.
	if series[0].Price == nil || *series[0].Price != 6 {
		t.Fatalf("unexpected oldest surviving tick: %+v", series[0])
	}

	info, _ := streams.Info(id)
	if info.TickCount != 21 {
		t.Fatalf("lifetime tick count must keep counting evictions, got %d", info.TickCount)
	}
}

// -----------------------------------------------------------------------------

func TestStreams_StopAllOnConnectionLoss(t *testing.T) {
	streams, sim, _ := newTestStreams(t)

	id1, _ := streams.Start(context.Background(), "AAPL", "STK")
	id2, _ := streams.Start(context.Background(), "MSFT", "STK")

	sim.DropConnection()

	deadline := time.Now().Add(time.Second)
	for streams.ActiveCount() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	for _, id := range []int64{id1, id2} {
		info, ok := streams.Info(id)
		if !ok || info.State != models.StreamStopped {
			t.Fatalf("stream %d not stopped after loss: %+v", id, info)
		}
	}
}

// -----------------------------------------------------------------------------

func TestStreams_PurgeOnlyStopped(t *testing.T) {
	streams, _, _ := newTestStreams(t)

	id, err := streams.Start(context.Background(), "AAPL", "STK")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	if streams.Purge(id) {
		t.Fatal("active stream must not be purgeable")
	}

	streams.Stop(context.Background(), id)
	if !streams.Purge(id) {
		t.Fatal("stopped stream should purge")
	}
	if _, ok := streams.Info(id); ok {
		t.Fatal("purged stream still visible")
	}
}

// -----------------------------------------------------------------------------

func TestStreams_TickHookObservesAcceptedTicks(t *testing.T) {
	streams, sim, _ := newTestStreams(t)

	got := make(chan models.MTick, 8)
	streams.SetTickHook(func(_ int64, _ string, tick models.MTick) {
		got <- tick
	})

	id, _ := streams.Start(context.Background(), "AAPL", "STK")
	sim.EmitTick(id, 101.5, 3)

	select {
	case tk := <-got:
		if tk.Price == nil || *tk.Price != 101.5 {
			t.Fatalf("hook saw wrong tick: %+v", tk)
		}
	case <-time.After(time.Second):
		t.Fatal("hook never fired")
	}
}

// -----------------------------------------------------------------------------

func TestStreams_StopCancelsUpstreamAfterCallerContextDies(t *testing.T) {
	streams, sim, _ := newTestStreams(t)

	id, err := streams.Start(context.Background(), "AAPL", "STK")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	// An HTTP caller's context is cancelled the moment its handler returns.
	// The best-effort upstream cancel must still go out.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := streams.Stop(ctx, id); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		for _, req := range sim.SentRequests() {
			if req.Kind == models.ReqStreamStop && req.CancelID == id {
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("upstream cancel for stream %d never reached the gateway", id)
}
