package streaming

import (
	"context"
	"sync"
	"time"

	"market-terminal/src/config"
	"market-terminal/src/gateway"
	"market-terminal/src/logger"
	"market-terminal/src/metrics"
	"market-terminal/src/models"
	"market-terminal/src/utils"
)

// Stream is one live market-data subscription with its bounded tick history.
// The per-stream mutex covers both info and buffer.
type Stream struct {
	mu     sync.RWMutex
	info   models.MStreamInfo
	buffer *TickBuffer
}

// StreamRegistry owns every active and stopped stream. It satisfies
// gateway.TickSink so the supervisor can route tick events here.
type StreamRegistry struct {
	mu         sync.RWMutex
	streams    map[int64]*Stream
	supervisor *gateway.ConnectionSupervisor
	config     *config.Config
	logger     *logger.Logger
	metrics    *metrics.Metrics

	tickHook func(streamID int64, symbol string, tick models.MTick)
}

// -----------------------------------------------------------------------------

func NewStreamRegistry(supervisor *gateway.ConnectionSupervisor, cfg *config.Config, log *logger.Logger, m *metrics.Metrics) *StreamRegistry {
	return &StreamRegistry{
		streams:    make(map[int64]*Stream),
		supervisor: supervisor,
		config:     cfg,
		logger:     log,
		metrics:    m,
	}
}

// -----------------------------------------------------------------------------

// SetTickHook registers an optional observer called after every accepted tick.
// Must be set before streams start.
func (sr *StreamRegistry) SetTickHook(hook func(streamID int64, symbol string, tick models.MTick)) {
	sr.tickHook = hook
}

// -----------------------------------------------------------------------------

// Start subscribes to live data for a symbol. The returned stream id is the
// request id the gateway acknowledged, so tick events route back here directly.
func (sr *StreamRegistry) Start(ctx context.Context, symbol string, secType string) (int64, error) {
	if secType == "" {
		secType = "STK"
	}

	id, waiter, err := sr.supervisor.Dispatch(ctx, models.ReqStreamStart, symbol, sr.config.StreamTimeout(), func(req *models.MGatewayRequest) {
		req.SecType = secType
	})
	if err != nil {
		return 0, err
	}

	outcome := <-waiter
	if outcome.State != models.ReqCompleted {
		return 0, outcome.Err
	}

	now := time.Now()
	stream := &Stream{
		info: models.MStreamInfo{
			ID:         id,
			Symbol:     symbol,
			SecType:    secType,
			State:      models.StreamActive,
			CreatedAt:  now.UnixMilli(),
			Capacity:   sr.config.Streaming.BufferCapacity,
			MarketOpen: utils.GetCalendar(symbol).IsOpenOnMinute(now),
		},
		buffer: NewTickBuffer(sr.config.Streaming.BufferCapacity),
	}

	sr.mu.Lock()
	sr.streams[id] = stream
	sr.metrics.SetActiveStreams(sr.activeCountLocked())
	sr.mu.Unlock()

	sr.logger.Info("Stream %d started for %s", id, symbol)
	return id, nil
}

// -----------------------------------------------------------------------------

// Stop marks the stream stopped locally right away, then tells the gateway to
// cancel the subscription in the background. The local state is authoritative:
// any tick arriving after this call is dropped. The caller's context does not
// bound the background cancel.
func (sr *StreamRegistry) Stop(_ context.Context, id int64) error {
	sr.mu.RLock()
	stream, ok := sr.streams[id]
	sr.mu.RUnlock()
	if !ok {
		return nil
	}

	stream.mu.Lock()
	alreadyStopped := stream.info.State == models.StreamStopped
	stream.info.State = models.StreamStopped
	symbol := stream.info.Symbol
	stream.mu.Unlock()

	if alreadyStopped {
		return nil
	}

	sr.mu.RLock()
	sr.metrics.SetActiveStreams(sr.activeCountLocked())
	sr.mu.RUnlock()

	sr.logger.Info("Stream %d stopped for %s", id, symbol)

	// Fire and forget: the upstream cancel still goes through pacing, but the
	// caller does not wait on it and a failure only gets logged. The cancel
	// runs on its own deadline, not the caller's context -- an HTTP caller's
	// context dies with the request, which must not strand the subscription.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sr.config.StreamTimeout())
		defer cancel()
		_, waiter, err := sr.supervisor.Dispatch(ctx, models.ReqStreamStop, symbol, sr.config.StreamTimeout(), func(req *models.MGatewayRequest) {
			req.CancelID = id
		})
		if err != nil {
			sr.logger.Warning("Stream %d cancel dispatch failed: %v", id, err)
			return
		}
		outcome := <-waiter
		if outcome.State != models.ReqCompleted && outcome.Err != nil {
			sr.logger.Warning("Stream %d cancel not acknowledged: %v", id, outcome.Err)
		}
	}()

	return nil
}

// -----------------------------------------------------------------------------

// Append implements gateway.TickSink. Ticks for unknown or stopped streams are
// silently dropped.
func (sr *StreamRegistry) Append(streamID int64, tick models.MTick) {
	sr.mu.RLock()
	stream, ok := sr.streams[streamID]
	sr.mu.RUnlock()
	if !ok {
		sr.metrics.DroppedTick()
		return
	}

	stream.mu.Lock()
	if stream.info.State != models.StreamActive {
		stream.mu.Unlock()
		sr.metrics.DroppedTick()
		return
	}
	stream.buffer.Append(tick)
	stream.info.TickCount++
	stream.info.LastTickAt = tick.Timestamp
	symbol := stream.info.Symbol
	stream.mu.Unlock()

	if sr.tickHook != nil {
		sr.tickHook(streamID, symbol, tick)
	}
}

// -----------------------------------------------------------------------------

// StopAll implements gateway.TickSink. Called on connection loss: every stream
// flips to stopped locally, no upstream cancels are sent (the link is gone).
func (sr *StreamRegistry) StopAll() {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	stopped := 0
	for _, stream := range sr.streams {
		stream.mu.Lock()
		if stream.info.State == models.StreamActive {
			stream.info.State = models.StreamStopped
			stopped++
		}
		stream.mu.Unlock()
	}
	if stopped > 0 {
		sr.logger.Warning("Connection lost: %d active streams stopped", stopped)
	}
	sr.metrics.SetActiveStreams(0)
}

// -----------------------------------------------------------------------------

// ActiveCount implements gateway.TickSink.
func (sr *StreamRegistry) ActiveCount() int {
	sr.mu.RLock()
	defer sr.mu.RUnlock()
	return sr.activeCountLocked()
}

func (sr *StreamRegistry) activeCountLocked() int {
	count := 0
	for _, stream := range sr.streams {
		stream.mu.RLock()
		if stream.info.State == models.StreamActive {
			count++
		}
		stream.mu.RUnlock()
	}
	return count
}

// -----------------------------------------------------------------------------

// Series returns a copy of the stream's buffered ticks, oldest first.
func (sr *StreamRegistry) Series(id int64) ([]models.MTick, bool) {
	sr.mu.RLock()
	stream, ok := sr.streams[id]
	sr.mu.RUnlock()
	if !ok {
		return nil, false
	}

	stream.mu.RLock()
	defer stream.mu.RUnlock()
	return stream.buffer.GetAll(), true
}

// -----------------------------------------------------------------------------

// Info returns a copy of the stream's metadata.
func (sr *StreamRegistry) Info(id int64) (models.MStreamInfo, bool) {
	sr.mu.RLock()
	stream, ok := sr.streams[id]
	sr.mu.RUnlock()
	if !ok {
		return models.MStreamInfo{}, false
	}

	stream.mu.RLock()
	defer stream.mu.RUnlock()
	return stream.info, true
}

// -----------------------------------------------------------------------------

// List returns metadata for every known stream, active and stopped.
func (sr *StreamRegistry) List() []models.MStreamInfo {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	infos := make([]models.MStreamInfo, 0, len(sr.streams))
	for _, stream := range sr.streams {
		stream.mu.RLock()
		infos = append(infos, stream.info)
		stream.mu.RUnlock()
	}
	return infos
}

// -----------------------------------------------------------------------------

// Purge removes a stopped stream and frees its buffer.
func (sr *StreamRegistry) Purge(id int64) bool {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	stream, ok := sr.streams[id]
	if !ok {
		return false
	}

	stream.mu.Lock()
	if stream.info.State == models.StreamActive {
		stream.mu.Unlock()
		return false
	}
	stream.buffer.Clear()
	stream.mu.Unlock()

	delete(sr.streams, id)
	return true
}
