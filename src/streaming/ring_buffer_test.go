package streaming

import (
	"testing"

	"market-terminal/src/models"
)

func tick(ts int64, price float64) models.MTick {
	return models.MTick{Timestamp: ts, Price: &price, TickType: "LAST"}
}

// -----------------------------------------------------------------------------

func TestTickBuffer_AppendAndOrder(t *testing.T) {
	b := NewTickBuffer(10)

	for i := int64(0); i < 5; i++ {
		b.Append(tick(i, float64(100+i)))
	}

	if b.Size() != 5 {
		t.Fatalf("expected size 5, got %d", b.Size())
	}

	all := b.GetAll()
	for i, tk := range all {
		if tk.Timestamp != int64(i) {
			t.Fatalf("ticks out of order at %d: ts=%d", i, tk.Timestamp)
		}
	}
}

// -----------------------------------------------------------------------------

func TestTickBuffer_EvictsOldestBeyondCapacity(t *testing.T) {
	const capacity = 8
	b := NewTickBuffer(capacity)

	// Capacity + 5 appends: the first 5 must be gone, order preserved.
	total := int64(capacity + 5)
	for i := int64(0); i < total; i++ {
		b.Append(tick(i, float64(i)))
	}

	if b.Size() != capacity {
		t.Fatalf("expected size %d, got %d", capacity, b.Size())
	}
	if !b.IsFull() {
		t.Fatal("buffer should report full")
	}

	all := b.GetAll()
	if len(all) != capacity {
		t.Fatalf("expected %d ticks, got %d", capacity, len(all))
	}
	for i, tk := range all {
		want := int64(i) + 5
		if tk.Timestamp != want {
			t.Fatalf("expected ts %d at index %d, got %d", want, i, tk.Timestamp)
		}
	}
}

// -----------------------------------------------------------------------------

func TestTickBuffer_GetLatest(t *testing.T) {
	b := NewTickBuffer(10)
	for i := int64(0); i < 10; i++ {
		b.Append(tick(i, float64(i)))
	}

	latest := b.GetLatest(3)
	if len(latest) != 3 {
		t.Fatalf("expected 3 ticks, got %d", len(latest))
	}
	if latest[0].Timestamp != 7 || latest[2].Timestamp != 9 {
		t.Fatalf("unexpected latest window: %d..%d", latest[0].Timestamp, latest[2].Timestamp)
	}

	// Asking beyond size returns everything.
	if got := b.GetLatest(100); len(got) != 10 {
		t.Fatalf("expected 10 ticks, got %d", len(got))
	}
}

// -----------------------------------------------------------------------------

func TestTickBuffer_DefaultCapacityAndClear(t *testing.T) {
	b := NewTickBuffer(0)
	if b.Capacity() != 1000 {
		t.Fatalf("expected default capacity 1000, got %d", b.Capacity())
	}

	b.Append(tick(1, 1))
	b.Clear()
	if b.Size() != 0 {
		t.Fatalf("expected empty after clear, got %d", b.Size())
	}
	if got := b.GetAll(); len(got) != 0 {
		t.Fatalf("expected no ticks after clear, got %d", len(got))
	}
}
