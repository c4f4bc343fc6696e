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
// PacingLimiter gates outbound dispatch so no more than N requests are issued
// within any trailing window of duration T, independent of request kind. This
// is the sole chokepoint protecting the shared connection from being
// throttled or disconnected by the remote gateway.
//
// Waiters queue in submission order; the window slides continuously so no
// waiter starves. Beyond the configured queue depth, Await fails fast with a
// CapacityError so callers back off instead of piling up.
// -----------------------------------------------------------------------------

type PacingLimiter struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	depth  int
	stamps []time.Time // admission times still inside the trailing window
	queue  []*pacingWaiter

	now func() time.Time // injectable for tests

	logger  *logger.Logger
	metrics *metrics.Metrics
}

type pacingWaiter struct{ _ byte }

// -----------------------------------------------------------------------------

func NewPacingLimiter(cfg models.MPacingConfig, log *logger.Logger, m *metrics.Metrics) *PacingLimiter {
	return &PacingLimiter{
		max:     cfg.MaxRequests,
		window:  time.Duration(cfg.WindowSeconds) * time.Second,
		depth:   cfg.QueueDepth,
		now:     time.Now,
		logger:  log,
		metrics: m,
	}
}

// -----------------------------------------------------------------------------

// TryAdmit admits one dispatch if the trailing window has room. O(1) amortized
// and short-held; safe to call from any goroutine.
func (p *PacingLimiter) TryAdmit() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tryAdmitLocked()
}

func (p *PacingLimiter) tryAdmitLocked() bool {
	now := p.now()
	p.pruneLocked(now)

	if len(p.stamps) >= p.max {
		return false
	}
	p.stamps = append(p.stamps, now)
	return true
}

// pruneLocked drops admissions that have slid out of the trailing window.
func (p *PacingLimiter) pruneLocked(now time.Time) {
	cutoff := now.Add(-p.window)
	i := 0
	for i < len(p.stamps) && !p.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		p.stamps = p.stamps[i:]
	}
}

// -----------------------------------------------------------------------------

// Await blocks until the dispatch is admitted, the queue overflows, or the
// context is cancelled. Queued callers are admitted in arrival order.
func (p *PacingLimiter) Await(ctx context.Context) error {
	p.mu.Lock()
	if len(p.queue) == 0 && p.tryAdmitLocked() {
		p.mu.Unlock()
		return nil
	}

	if len(p.queue) >= p.depth {
		p.mu.Unlock()
		p.logger.Warning("Pacing queue depth %d exceeded, rejecting dispatch", p.depth)
		return helpers.NewCapacityError("pacing queue full")
	}

	me := &pacingWaiter{}
	p.queue = append(p.queue, me)
	p.metrics.SetQueueDepth(len(p.queue))
	p.mu.Unlock()

	for {
		p.mu.Lock()
		if len(p.queue) > 0 && p.queue[0] == me && p.tryAdmitLocked() {
			p.queue = p.queue[1:]
			p.metrics.SetQueueDepth(len(p.queue))
			p.mu.Unlock()
			return nil
		}
		wait := p.retryDelayLocked(me)
		p.mu.Unlock()

		select {
		case <-ctx.Done():
			p.remove(me)
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// -----------------------------------------------------------------------------

// retryDelayLocked computes how long the caller should sleep before rechecking.
// The head waiter sleeps until the oldest admission slides out of the window;
// everyone else polls briefly.
func (p *PacingLimiter) retryDelayLocked(me *pacingWaiter) time.Duration {
	const minDelay = time.Millisecond
	const followerDelay = 5 * time.Millisecond

	if len(p.queue) == 0 || p.queue[0] != me {
		return followerDelay
	}
	if len(p.stamps) < p.max {
		return minDelay
	}

	d := p.stamps[0].Add(p.window).Sub(p.now())
	if d < minDelay {
		d = minDelay
	}
	return d
}

// -----------------------------------------------------------------------------

func (p *PacingLimiter) remove(me *pacingWaiter) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, w := range p.queue {
		if w == me {
			p.queue = append(p.queue[:i], p.queue[i+1:]...)
			break
		}
	}
	p.metrics.SetQueueDepth(len(p.queue))
}

// -----------------------------------------------------------------------------

// QueueLen returns the number of dispatches currently waiting for admission.
func (p *PacingLimiter) QueueLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// -----------------------------------------------------------------------------

// SetClock replaces the time source. Test hook only.
func (p *PacingLimiter) SetClock(now func() time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.now = now
}
