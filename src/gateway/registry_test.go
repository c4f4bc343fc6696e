package gateway

import (
	"sync"
	"testing"
	"time"

	"market-terminal/src/helpers"
	"market-terminal/src/logger"
	"market-terminal/src/models"
)

func testLogger() *logger.Logger {
	return logger.NewLogger("ERROR", "test")
}

// -----------------------------------------------------------------------------

func TestRegistry_UniqueMonotonicIDs(t *testing.T) {
	r := NewRequestRegistry(testLogger(), nil)

	const n = 200
	ids := make(chan int64, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, _ := r.Allocate(models.ReqHistoricalBatch, "AAPL", time.Minute)
			ids <- id
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]bool)
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate id %d allocated", id)
		}
		seen[id] = true
	}
	if len(seen) != n {
		t.Fatalf("expected %d unique ids, got %d", n, len(seen))
	}
}

// -----------------------------------------------------------------------------

func TestRegistry_ResolveWakesWaiterOnce(t *testing.T) {
	r := NewRequestRegistry(testLogger(), nil)

	id, waiter := r.Allocate(models.ReqStreamStart, "MSFT", time.Minute)
	r.AppendBar(id, models.MDataBar{Close: 101})
	r.Resolve(id, models.ReqCompleted, nil)

	outcome := <-waiter
	if outcome.State != models.ReqCompleted {
		t.Fatalf("expected completed, got %s", outcome.State)
	}
	if len(outcome.Bars) != 1 || outcome.Bars[0].Close != 101 {
		t.Fatalf("expected accumulated bar, got %v", outcome.Bars)
	}

	// Duplicate resolution is a no-op, not a second wakeup.
	r.Resolve(id, models.ReqFailed, helpers.NewGatewayError(id, 200, "late duplicate"))

	select {
	case extra, ok := <-waiter:
		if ok {
			t.Fatalf("waiter fired twice, got %+v", extra)
		}
	default:
	}

	if r.PendingCount() != 0 {
		t.Fatalf("expected empty registry, got %d pending", r.PendingCount())
	}
}

// -----------------------------------------------------------------------------

func TestRegistry_SweepExpiresOnlyOverdue(t *testing.T) {
	r := NewRequestRegistry(testLogger(), nil)

	expiredID, expiredWaiter := r.Allocate(models.ReqHistoricalBatch, "SLOW", 10*time.Millisecond)
	_, freshWaiter := r.Allocate(models.ReqHistoricalBatch, "FAST", time.Hour)

	swept := r.Sweep(time.Now().Add(time.Second))
	if swept != 1 {
		t.Fatalf("expected 1 swept request, got %d", swept)
	}

	outcome := <-expiredWaiter
	if outcome.State != models.ReqTimedOut {
		t.Fatalf("expected timed_out, got %s", outcome.State)
	}
	if !helpers.IsTimeout(outcome.Err) {
		t.Fatalf("expected TimeoutError, got %v", outcome.Err)
	}
	if outcome.ReqID != expiredID {
		t.Fatalf("expected req id %d, got %d", expiredID, outcome.ReqID)
	}

	select {
	case <-freshWaiter:
		t.Fatal("fresh request must not be swept")
	default:
	}

	// A callback racing in after the sweep is ignored.
	r.Resolve(expiredID, models.ReqCompleted, nil)
	if r.PendingCount() != 1 {
		t.Fatalf("expected 1 pending, got %d", r.PendingCount())
	}
}

// -----------------------------------------------------------------------------

func TestRegistry_CancelClosesWaiterSilently(t *testing.T) {
	r := NewRequestRegistry(testLogger(), nil)

	id, waiter := r.Allocate(models.ReqNews, "AAPL", time.Minute)
	r.Cancel(id)

	if _, ok := <-waiter; ok {
		t.Fatal("cancelled waiter must be closed without an outcome")
	}
	if r.PendingCount() != 0 {
		t.Fatalf("expected empty registry, got %d pending", r.PendingCount())
	}
}

// -----------------------------------------------------------------------------

func TestRegistry_FailAllOnConnectionLoss(t *testing.T) {
	r := NewRequestRegistry(testLogger(), nil)

	_, w1 := r.Allocate(models.ReqHistoricalBatch, "A", time.Minute)
	_, w2 := r.Allocate(models.ReqStreamStart, "B", time.Minute)

	r.FailAll(helpers.NewConnectionLostError(0))

	for _, w := range []<-chan models.MRequestOutcome{w1, w2} {
		outcome := <-w
		if outcome.State != models.ReqFailed {
			t.Fatalf("expected failed, got %s", outcome.State)
		}
		if !helpers.IsConnectionLost(outcome.Err) {
			t.Fatalf("expected ConnectionLostError, got %v", outcome.Err)
		}
	}
	if r.PendingCount() != 0 {
		t.Fatalf("expected empty registry, got %d pending", r.PendingCount())
	}
}

// -----------------------------------------------------------------------------

func TestRegistry_FragmentsForUnknownIDDropped(t *testing.T) {
	r := NewRequestRegistry(testLogger(), nil)

	r.AppendBar(999, models.MDataBar{Close: 1})
	r.AppendNews(999, models.MNewsItem{Headline: "orphan"})

	if r.PendingCount() != 0 {
		t.Fatalf("orphan fragments must not create entries, got %d", r.PendingCount())
	}
}
