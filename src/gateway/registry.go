package gateway

import (
	"context"
	"sync"
	"time"

	"market-terminal/src/helpers"
	"market-terminal/src/logger"
	"market-terminal/src/metrics"
	"market-terminal/src/models"
)

// -----------------------------------------------------------------------------
// RequestRegistry assigns monotonically increasing request identifiers and
// correlates asynchronous, out-of-order callback completions back to the
// calling operation.
//
// Every allocated id leaves the pending state exactly once: either Resolve
// (callback path) or the sweeper (deadline path) wins; the loser finds the
// entry gone and is a logged no-op. Ids are never reused.
// -----------------------------------------------------------------------------

type pendingRequest struct {
	info      models.MRequestInfo
	waiter    chan models.MRequestOutcome // buffered: resolution never blocks
	bars      []models.MDataBar
	headlines []models.MNewsItem
}

type RequestRegistry struct {
	mu      sync.Mutex
	nextID  int64
	pending map[int64]*pendingRequest
	logger  *logger.Logger
	metrics *metrics.Metrics
}

// -----------------------------------------------------------------------------

func NewRequestRegistry(log *logger.Logger, m *metrics.Metrics) *RequestRegistry {
	return &RequestRegistry{
		nextID:  1,
		pending: make(map[int64]*pendingRequest),
		logger:  log,
		metrics: m,
	}
}

// -----------------------------------------------------------------------------

// Allocate returns a fresh id and a waiter the caller can block on until the
// request resolves or times out. The deadline is kind-specific.
func (r *RequestRegistry) Allocate(kind models.RequestKind, symbol string, timeout time.Duration) (int64, <-chan models.MRequestOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextID
	r.nextID++

	now := time.Now()
	entry := &pendingRequest{
		info: models.MRequestInfo{
			ReqID:    id,
			Kind:     kind,
			State:    models.ReqPending,
			Symbol:   symbol,
			IssuedAt: now,
			Deadline: now.Add(timeout),
		},
		waiter: make(chan models.MRequestOutcome, 1),
	}
	r.pending[id] = entry

	return id, entry.waiter
}

// -----------------------------------------------------------------------------

// Resolve transitions a pending request out of the registry and wakes its
// waiter. Unknown ids (already resolved, timed out, or never allocated) are
// ignored: duplicate and late callbacks are expected from the gateway.
func (r *RequestRegistry) Resolve(id int64, state models.RequestState, err error) {
	r.mu.Lock()
	entry, ok := r.pending[id]
	if !ok {
		r.mu.Unlock()
		r.logger.Debug("Ignoring callback for unknown reqId %d (late or duplicate)", id)
		return
	}
	delete(r.pending, id)
	r.mu.Unlock()

	entry.info.State = state
	entry.waiter <- models.MRequestOutcome{
		ReqID:     id,
		Kind:      entry.info.Kind,
		State:     state,
		Err:       err,
		Bars:      entry.bars,
		Headlines: entry.headlines,
	}
	r.metrics.Resolved(string(state))
}

// -----------------------------------------------------------------------------

// Cancel silently discards a pending request whose dispatch never reached the
// gateway (pacing rejection, send failure). The waiter is closed, not woken.
func (r *RequestRegistry) Cancel(id int64) {
	r.mu.Lock()
	entry, ok := r.pending[id]
	if ok {
		delete(r.pending, id)
	}
	r.mu.Unlock()

	if ok {
		close(entry.waiter)
	}
}

// -----------------------------------------------------------------------------

// AppendBar accumulates one historical fragment on a pending request.
// Fragments for unknown ids are dropped.
func (r *RequestRegistry) AppendBar(id int64, bar models.MDataBar) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.pending[id]
	if !ok {
		return
	}
	entry.bars = append(entry.bars, bar)
}

// -----------------------------------------------------------------------------

// AppendNews accumulates one headline fragment on a pending request.
func (r *RequestRegistry) AppendNews(id int64, item models.MNewsItem) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.pending[id]
	if !ok {
		return
	}
	entry.headlines = append(entry.headlines, item)
}

// -----------------------------------------------------------------------------

// Sweep transitions every pending request past its deadline to TimedOut and
// wakes its waiter. Returns the number of requests swept.
func (r *RequestRegistry) Sweep(now time.Time) int {
	r.mu.Lock()
	var expired []*pendingRequest
	for id, entry := range r.pending {
		if now.After(entry.info.Deadline) {
			delete(r.pending, id)
			expired = append(expired, entry)
		}
	}
	r.mu.Unlock()

	for _, entry := range expired {
		id := entry.info.ReqID
		r.logger.Warning("Request %d (%s %s) timed out after deadline", id, entry.info.Kind, entry.info.Symbol)
		entry.info.State = models.ReqTimedOut
		entry.waiter <- models.MRequestOutcome{
			ReqID:     id,
			Kind:      entry.info.Kind,
			State:     models.ReqTimedOut,
			Err:       helpers.NewTimeoutError(id, "request deadline exceeded"),
			Bars:      entry.bars,
			Headlines: entry.headlines,
		}
		r.metrics.Resolved(string(models.ReqTimedOut))
	}

	return len(expired)
}

// -----------------------------------------------------------------------------

// StartSweeper runs Sweep on a fixed cadence until the context is cancelled.
// The cadence is independent of request volume.
func (r *RequestRegistry) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				r.Sweep(now)
			}
		}
	}()
}

// -----------------------------------------------------------------------------

// FailAll resolves every pending request with the given error. Used on
// connection loss, where no further callbacks can arrive.
func (r *RequestRegistry) FailAll(err error) {
	r.mu.Lock()
	var entries []*pendingRequest
	for id, entry := range r.pending {
		delete(r.pending, id)
		entries = append(entries, entry)
	}
	r.mu.Unlock()

	for _, entry := range entries {
		entry.info.State = models.ReqFailed
		entry.waiter <- models.MRequestOutcome{
			ReqID: entry.info.ReqID,
			Kind:  entry.info.Kind,
			State: models.ReqFailed,
			Err:   err,
		}
		r.metrics.Resolved(string(models.ReqFailed))
	}

	if len(entries) > 0 {
		r.logger.Warning("Failed %d pending requests: %v", len(entries), err)
	}
}

// -----------------------------------------------------------------------------

// PendingCount returns the number of in-flight requests.
func (r *RequestRegistry) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// -----------------------------------------------------------------------------

// PendingRequests returns a snapshot of all in-flight requests.
func (r *RequestRegistry) PendingRequests() []models.MRequestInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]models.MRequestInfo, 0, len(r.pending))
	for _, entry := range r.pending {
		result = append(result, entry.info)
	}
	return result
}
