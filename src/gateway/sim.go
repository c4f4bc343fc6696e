package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"market-terminal/src/models"
)

// -----------------------------------------------------------------------------
// SimGateway is a scriptable in-process gateway used by the cmd/test harness
// and by package tests. It reproduces the callback contract of the real
// collaborator: asynchronous, per-id events, at-least-once delivery, optional
// duplicates and drops.
// -----------------------------------------------------------------------------

type SimGateway struct {
	mu        sync.Mutex
	events    chan models.MGatewayEvent
	connected bool
	closed    bool

	latency time.Duration

	barsPerSymbol map[string]int    // symbol -> historical bars to emit
	failSymbols   map[string]string // symbol -> vendor error message
	silentSymbols map[string]bool   // symbol -> emit nothing (timeout path)
	newsPerSymbol map[string][]models.MNewsItem
	sent          []models.MGatewayRequest

	duplicateCompletes bool
	basePrice          float64
}

// -----------------------------------------------------------------------------

func NewSimGateway() *SimGateway {
	return &SimGateway{
		events:        make(chan models.MGatewayEvent, 4096),
		barsPerSymbol: make(map[string]int),
		failSymbols:   make(map[string]string),
		silentSymbols: make(map[string]bool),
		newsPerSymbol: make(map[string][]models.MNewsItem),
		basePrice:     100.0,
	}
}

// -----------------------------------------------------------------------------
// Scripting knobs
// -----------------------------------------------------------------------------

// SetSymbolBars scripts how many historical bars a symbol returns.
func (g *SimGateway) SetSymbolBars(symbol string, count int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.barsPerSymbol[symbol] = count
}

// FailSymbol scripts a vendor error for every request on the symbol.
func (g *SimGateway) FailSymbol(symbol, message string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failSymbols[symbol] = message
}

// SilenceSymbol scripts a black hole: requests on the symbol get no events,
// forcing the sweep path.
func (g *SimGateway) SilenceSymbol(symbol string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.silentSymbols[symbol] = true
}

// QueueNews scripts headlines for a symbol's news requests.
func (g *SimGateway) QueueNews(symbol string, items []models.MNewsItem) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.newsPerSymbol[symbol] = items
}

// SetLatency delays every scripted response.
func (g *SimGateway) SetLatency(d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.latency = d
}

// DuplicateCompletes makes the gateway send every completion twice,
// exercising idempotent resolution.
func (g *SimGateway) DuplicateCompletes(on bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.duplicateCompletes = on
}

// -----------------------------------------------------------------------------
// IGateway implementation
// -----------------------------------------------------------------------------

func (g *SimGateway) Connect(_ context.Context, _ models.MIdentity) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.connected {
		return fmt.Errorf("already connected")
	}
	if g.closed {
		// Fresh transport per connection; the old channel died with the drop.
		g.events = make(chan models.MGatewayEvent, 4096)
	}
	g.connected = true
	g.closed = false

	go func() {
		g.emit(models.MGatewayEvent{Kind: models.EventConnected})
	}()
	return nil
}

// -----------------------------------------------------------------------------

func (g *SimGateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return nil
	}
	g.closed = true
	g.connected = false
	close(g.events)
	return nil
}

// -----------------------------------------------------------------------------

func (g *SimGateway) Events() <-chan models.MGatewayEvent {
	return g.events
}

// -----------------------------------------------------------------------------

func (g *SimGateway) Send(req models.MGatewayRequest) error {
	g.mu.Lock()
	if !g.connected {
		g.mu.Unlock()
		return fmt.Errorf("not connected")
	}
	g.sent = append(g.sent, req)
	latency := g.latency
	g.mu.Unlock()

	go func() {
		if latency > 0 {
			time.Sleep(latency)
		}
		g.respond(req)
	}()
	return nil
}

// -----------------------------------------------------------------------------

func (g *SimGateway) respond(req models.MGatewayRequest) {
	g.mu.Lock()
	silent := g.silentSymbols[req.Symbol]
	failMsg, failed := g.failSymbols[req.Symbol]
	barCount, hasBars := g.barsPerSymbol[req.Symbol]
	news := g.newsPerSymbol[req.Symbol]
	dup := g.duplicateCompletes
	base := g.basePrice
	g.mu.Unlock()

	if silent {
		return
	}

	if failed {
		g.emit(models.MGatewayEvent{
			Kind:    models.EventError,
			ReqID:   req.ReqID,
			Code:    200,
			Message: failMsg,
		})
		return
	}

	switch req.Kind {
	case models.ReqHistoricalBatch:
		if !hasBars {
			barCount = 10
		}
		now := time.Now().Unix()
		for i := 0; i < barCount; i++ {
			price := base + float64(i)
			g.emit(models.MGatewayEvent{
				Kind:  models.EventData,
				ReqID: req.ReqID,
				Bar: &models.MDataBar{
					Timestamp: now - int64(barCount-i)*86400,
					Open:      price,
					High:      price + 1,
					Low:       price - 1,
					Close:     price + 0.5,
					Volume:    1000 + float64(i),
					Count:     100,
				},
			})
		}
		g.emit(models.MGatewayEvent{Kind: models.EventComplete, ReqID: req.ReqID})
		if dup {
			g.emit(models.MGatewayEvent{Kind: models.EventComplete, ReqID: req.ReqID})
		}

	case models.ReqStreamStart, models.ReqStreamStop:
		g.emit(models.MGatewayEvent{Kind: models.EventComplete, ReqID: req.ReqID})
		if dup {
			g.emit(models.MGatewayEvent{Kind: models.EventComplete, ReqID: req.ReqID})
		}

	case models.ReqNews:
		for _, item := range news {
			n := item
			g.emit(models.MGatewayEvent{Kind: models.EventNews, ReqID: req.ReqID, News: &n})
		}
		g.emit(models.MGatewayEvent{Kind: models.EventNewsEnd, ReqID: req.ReqID})
	}
}

// -----------------------------------------------------------------------------
// Manual event injection (ticks arrive unsolicited in the real contract)
// -----------------------------------------------------------------------------

// EmitTick delivers one tick for a stream id.
func (g *SimGateway) EmitTick(streamID int64, price, size float64) {
	tick := models.MTick{Timestamp: time.Now().UnixMilli(), TickType: "LAST"}
	if price > 0 {
		tick.Price = &price
	}
	if size > 0 {
		tick.Size = &size
	}
	g.emit(models.MGatewayEvent{Kind: models.EventTick, ReqID: streamID, Tick: &tick})
}

// EmitEvent delivers an arbitrary scripted event.
func (g *SimGateway) EmitEvent(ev models.MGatewayEvent) {
	g.emit(ev)
}

// SentRequests returns a copy of every request the gateway accepted, in
// arrival order.
func (g *SimGateway) SentRequests() []models.MGatewayRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]models.MGatewayRequest, len(g.sent))
	copy(out, g.sent)
	return out
}

// DropConnection simulates an unexpected transport loss.
func (g *SimGateway) DropConnection() {
	g.Close()
}

// -----------------------------------------------------------------------------

func (g *SimGateway) emit(ev models.MGatewayEvent) {
	g.mu.Lock()
	closed := g.closed
	ch := g.events
	g.mu.Unlock()
	if closed {
		return
	}

	defer func() {
		// Losing the race with Close is fine; late events vanish with the
		// connection, exactly like the real transport.
		recover()
	}()
	ch <- ev
}
