package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"market-terminal/src/helpers"
	"market-terminal/src/models"
)

// recordingSink captures tick routing and connection-loss notifications.
type recordingSink struct {
	mu      sync.Mutex
	ticks   map[int64][]models.MTick
	stopped bool
}

func newRecordingSink() *recordingSink {
	return &recordingSink{ticks: make(map[int64][]models.MTick)}
}

func (r *recordingSink) Append(streamID int64, tick models.MTick) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ticks[streamID] = append(r.ticks[streamID], tick)
}

func (r *recordingSink) StopAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
}

func (r *recordingSink) ActiveCount() int { return 0 }

func (r *recordingSink) tickCount(streamID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ticks[streamID])
}

func (r *recordingSink) wasStopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

// -----------------------------------------------------------------------------

func newTestSupervisor(t *testing.T) (*ConnectionSupervisor, *SimGateway, *RequestRegistry, *recordingSink) {
	t.Helper()

	sim := NewSimGateway()
	registry := NewRequestRegistry(testLogger(), nil)
	pacer := NewPacingLimiter(models.MPacingConfig{MaxRequests: 100, WindowSeconds: 1, QueueDepth: 64}, testLogger(), nil)
	sup := NewConnectionSupervisor(sim, registry, pacer, testLogger(), nil)

	sink := newRecordingSink()
	sup.SetTickSink(sink)
	return sup, sim, registry, sink
}

func mustConnect(t *testing.T, sup *ConnectionSupervisor) {
	t.Helper()
	err := sup.Connect(context.Background(), models.MIdentity{Host: "sim", ClientID: 1}, time.Second)
	if err != nil {
		t.Fatalf("connect failed: %v", err)
	}
}

// -----------------------------------------------------------------------------

func TestSupervisor_ConnectAckAndState(t *testing.T) {
	sup, _, _, _ := newTestSupervisor(t)

	if sup.State() != StateDisconnected {
		t.Fatalf("expected disconnected, got %s", sup.State())
	}

	mustConnect(t, sup)

	if sup.State() != StateConnected {
		t.Fatalf("expected connected, got %s", sup.State())
	}

	// A second connect while connected is rejected.
	err := sup.Connect(context.Background(), models.MIdentity{}, time.Second)
	var connErr *helpers.ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("expected ConnectionError on double connect, got %v", err)
	}
}

// -----------------------------------------------------------------------------

func TestSupervisor_DispatchResolvesWithBars(t *testing.T) {
	sup, sim, _, _ := newTestSupervisor(t)
	mustConnect(t, sup)

	sim.SetSymbolBars("AAPL", 7)

	_, waiter, err := sup.Dispatch(context.Background(), models.ReqHistoricalBatch, "AAPL", time.Second, nil)
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}

	outcome := <-waiter
	if outcome.State != models.ReqCompleted {
		t.Fatalf("expected completed, got %s (err: %v)", outcome.State, outcome.Err)
	}
	if len(outcome.Bars) != 7 {
		t.Fatalf("expected 7 bars, got %d", len(outcome.Bars))
	}
}

// -----------------------------------------------------------------------------

func TestSupervisor_VendorErrorCarriedVerbatim(t *testing.T) {
	sup, sim, _, _ := newTestSupervisor(t)
	mustConnect(t, sup)

	const vendorMsg = "No security definition has been found for the request"
	sim.FailSymbol("BADSYM", vendorMsg)

	_, waiter, err := sup.Dispatch(context.Background(), models.ReqHistoricalBatch, "BADSYM", time.Second, nil)
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}

	outcome := <-waiter
	if outcome.State != models.ReqFailed {
		t.Fatalf("expected failed, got %s", outcome.State)
	}

	var gwErr *helpers.GatewayError
	if !errors.As(outcome.Err, &gwErr) {
		t.Fatalf("expected GatewayError, got %v", outcome.Err)
	}
	if gwErr.Message != vendorMsg {
		t.Fatalf("vendor message altered: %q", gwErr.Message)
	}
	if gwErr.Code != 200 {
		t.Fatalf("expected vendor code 200, got %d", gwErr.Code)
	}
}

// -----------------------------------------------------------------------------

func TestSupervisor_DuplicateCompletionsIgnored(t *testing.T) {
	sup, sim, registry, _ := newTestSupervisor(t)
	mustConnect(t, sup)

	sim.SetSymbolBars("AAPL", 3)
	sim.DuplicateCompletes(true)

	_, waiter, err := sup.Dispatch(context.Background(), models.ReqHistoricalBatch, "AAPL", time.Second, nil)
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}

	outcome := <-waiter
	if outcome.State != models.ReqCompleted {
		t.Fatalf("expected completed, got %s", outcome.State)
	}

	// The duplicate completion must not produce a second outcome.
	time.Sleep(100 * time.Millisecond)
	select {
	case extra, ok := <-waiter:
		if ok {
			t.Fatalf("waiter fired twice: %+v", extra)
		}
	default:
	}
	if registry.PendingCount() != 0 {
		t.Fatalf("expected empty registry, got %d", registry.PendingCount())
	}
}

// -----------------------------------------------------------------------------

func TestSupervisor_SilentRequestSweptAsTimeout(t *testing.T) {
	sup, sim, registry, _ := newTestSupervisor(t)
	mustConnect(t, sup)

	sim.SilenceSymbol("VOID")

	_, waiter, err := sup.Dispatch(context.Background(), models.ReqHistoricalBatch, "VOID", 30*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	registry.StartSweeper(ctx, 10*time.Millisecond)

	select {
	case outcome := <-waiter:
		if outcome.State != models.ReqTimedOut {
			t.Fatalf("expected timed_out, got %s", outcome.State)
		}
		if !helpers.IsTimeout(outcome.Err) {
			t.Fatalf("expected TimeoutError, got %v", outcome.Err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper never fired the waiter")
	}
}

// -----------------------------------------------------------------------------

func TestSupervisor_TicksRoutedToSink(t *testing.T) {
	sup, sim, _, sink := newTestSupervisor(t)
	mustConnect(t, sup)

	id, waiter, err := sup.Dispatch(context.Background(), models.ReqStreamStart, "AAPL", time.Second, nil)
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	<-waiter

	for i := 0; i < 5; i++ {
		sim.EmitTick(id, 100+float64(i), 10)
	}

	deadline := time.Now().Add(time.Second)
	for sink.tickCount(id) < 5 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := sink.tickCount(id); got != 5 {
		t.Fatalf("expected 5 ticks routed, got %d", got)
	}
}

// -----------------------------------------------------------------------------

func TestSupervisor_ConnectionLossFailsPendingAndStopsStreams(t *testing.T) {
	sup, sim, registry, sink := newTestSupervisor(t)
	mustConnect(t, sup)

	sim.SilenceSymbol("HANG")
	_, waiter, err := sup.Dispatch(context.Background(), models.ReqHistoricalBatch, "HANG", time.Minute, nil)
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}

	sim.DropConnection()

	select {
	case outcome := <-waiter:
		if outcome.State != models.ReqFailed {
			t.Fatalf("expected failed, got %s", outcome.State)
		}
		if !helpers.IsConnectionLost(outcome.Err) {
			t.Fatalf("expected ConnectionLostError, got %v", outcome.Err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pending request never failed after drop")
	}

	deadline := time.Now().Add(time.Second)
	for sup.State() != StateDisconnected && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if sup.State() != StateDisconnected {
		t.Fatalf("expected disconnected after drop, got %s", sup.State())
	}
	if !sink.wasStopped() {
		t.Fatal("tick sink not notified of connection loss")
	}
	if registry.PendingCount() != 0 {
		t.Fatalf("expected empty registry, got %d", registry.PendingCount())
	}

	// Sending after loss is a typed connection error.
	if err := sup.Send(models.MGatewayRequest{Kind: models.ReqNews}); err == nil {
		t.Fatal("send after loss must fail")
	}
}

// -----------------------------------------------------------------------------

// flakyGateway acks the handshake and then immediately kills the transport
// for the first N connects, reproducing a drop racing the ack.
type flakyGateway struct {
	mu        sync.Mutex
	events    chan models.MGatewayEvent
	closed    bool
	connects  int
	dropFirst int
}

func (g *flakyGateway) Connect(_ context.Context, _ models.MIdentity) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.connects++
	g.events = make(chan models.MGatewayEvent, 4)
	g.closed = false
	g.events <- models.MGatewayEvent{Kind: models.EventConnected}
	if g.connects <= g.dropFirst {
		close(g.events)
		g.closed = true
	}
	return nil
}

func (g *flakyGateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.closed {
		close(g.events)
		g.closed = true
	}
	return nil
}

func (g *flakyGateway) Send(models.MGatewayRequest) error { return nil }

func (g *flakyGateway) Events() <-chan models.MGatewayEvent {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.events
}

func waitState(t *testing.T, sup *ConnectionSupervisor, want ConnState) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if sup.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state never reached %q, stuck at %q", want, sup.State())
}

func TestSupervisor_DropRacingAckDoesNotStickConnected(t *testing.T) {
	gw := &flakyGateway{dropFirst: 1}
	registry := NewRequestRegistry(testLogger(), nil)
	pacer := NewPacingLimiter(models.MPacingConfig{MaxRequests: 100, WindowSeconds: 1, QueueDepth: 64}, testLogger(), nil)
	sup := NewConnectionSupervisor(gw, registry, pacer, testLogger(), nil)

	// The first transport dies right behind the ack. Whatever this call
	// returns, the supervisor must settle on disconnected -- never a
	// connected state with no event loop behind it.
	_ = sup.Connect(context.Background(), models.MIdentity{Host: "sim"}, time.Second)
	waitState(t, sup, StateDisconnected)

	// Recovery is a fresh Connect call, which must be accepted.
	if err := sup.Connect(context.Background(), models.MIdentity{Host: "sim"}, time.Second); err != nil {
		t.Fatalf("reconnect rejected: %v", err)
	}
	if sup.State() != StateConnected {
		t.Fatalf("expected connected after reconnect, got %s", sup.State())
	}
	sup.Disconnect()
	waitState(t, sup, StateDisconnected)
}

// -----------------------------------------------------------------------------

func TestSupervisor_ReconnectAfterDrop(t *testing.T) {
	sup, sim, _, _ := newTestSupervisor(t)
	mustConnect(t, sup)

	sim.DropConnection()
	waitState(t, sup, StateDisconnected)

	// The simulated transport supports a fresh connection after a drop, and
	// the supervisor accepts it and serves requests again.
	mustConnect(t, sup)

	sim.SetSymbolBars("AAPL", 4)
	_, waiter, err := sup.Dispatch(context.Background(), models.ReqHistoricalBatch, "AAPL", time.Second, nil)
	if err != nil {
		t.Fatalf("dispatch after reconnect failed: %v", err)
	}
	outcome := <-waiter
	if outcome.State != models.ReqCompleted || len(outcome.Bars) != 4 {
		t.Fatalf("expected 4 bars after reconnect, got state %q, %d bars", outcome.State, len(outcome.Bars))
	}
	sup.Disconnect()
}

// -----------------------------------------------------------------------------

func TestSupervisor_GatewayNoticesDoNotFailRequests(t *testing.T) {
	sup, sim, registry, _ := newTestSupervisor(t)
	mustConnect(t, sup)

	sim.SetSymbolBars("MSFT", 2)
	_, waiter, err := sup.Dispatch(context.Background(), models.ReqHistoricalBatch, "MSFT", time.Second, nil)
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}

	// Connection-level notices carry no request id; they are logged and must
	// not poison any waiter.
	sim.EmitEvent(models.MGatewayEvent{Kind: models.EventError, Code: 1100, Message: "connectivity between server and gateway lost"})

	outcome := <-waiter
	if outcome.State != models.ReqCompleted {
		t.Fatalf("request failed by a connection notice: %q %v", outcome.State, outcome.Err)
	}
	if registry.PendingCount() != 0 {
		t.Fatalf("expected empty ledger, got %d pending", registry.PendingCount())
	}
	sup.Disconnect()
}
