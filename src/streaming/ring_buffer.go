package streaming

import (
	"market-terminal/src/models"
)

// -----------------------------------------------------------------------------
// TickBuffer is a fixed-size circular buffer of ticks.
// True ring buffer - no resizing, oldest evicted on overflow.
// Not thread-safe on its own; the owning stream holds the lock.
// -----------------------------------------------------------------------------

type TickBuffer struct {
	data     []models.MTick
	capacity int
	index    int // Next write position
	size     int // Current number of elements
}

// -----------------------------------------------------------------------------

// NewTickBuffer creates a new buffer with fixed capacity
func NewTickBuffer(capacity int) *TickBuffer {
	if capacity <= 0 {
		capacity = 1000 // Default reasonable size
	}

	return &TickBuffer{
		data:     make([]models.MTick, capacity),
		capacity: capacity,
	}
}

// -----------------------------------------------------------------------------

// Append adds a tick, evicting the oldest when full
func (tb *TickBuffer) Append(tick models.MTick) {
	tb.data[tb.index] = tick
	tb.index = (tb.index + 1) % tb.capacity

	// Update size (never exceeds capacity)
	if tb.size < tb.capacity {
		tb.size++
	}
}

// -----------------------------------------------------------------------------

// GetAll returns all ticks in insertion order (oldest to newest)
func (tb *TickBuffer) GetAll() []models.MTick {
	if tb.size == 0 {
		return []models.MTick{}
	}

	result := make([]models.MTick, tb.size)

	// Calculate start index (oldest element)
	var startIdx int
	if tb.size == tb.capacity {
		// Buffer is full, oldest is at current index (wrap-around)
		startIdx = tb.index
	} else {
		startIdx = 0
	}

	for i := 0; i < tb.size; i++ {
		result[i] = tb.data[(startIdx+i)%tb.capacity]
	}

	return result
}

// -----------------------------------------------------------------------------

// GetLatest returns the n newest ticks in insertion order
func (tb *TickBuffer) GetLatest(n int) []models.MTick {
	if tb.size == 0 || n <= 0 {
		return []models.MTick{}
	}

	count := n
	if n > tb.size {
		count = tb.size
	}

	result := make([]models.MTick, count)

	// Latest data is at index-1
	startIdx := (tb.index - count + tb.capacity) % tb.capacity
	for i := 0; i < count; i++ {
		result[i] = tb.data[(startIdx+i)%tb.capacity]
	}

	return result
}

// -----------------------------------------------------------------------------

// Size returns current number of elements
func (tb *TickBuffer) Size() int {
	return tb.size
}

// -----------------------------------------------------------------------------

// Capacity returns buffer capacity (fixed)
func (tb *TickBuffer) Capacity() int {
	return tb.capacity
}

// -----------------------------------------------------------------------------

// IsFull returns whether buffer is full
func (tb *TickBuffer) IsFull() bool {
	return tb.size == tb.capacity
}

// -----------------------------------------------------------------------------

// Clear resets the buffer
func (tb *TickBuffer) Clear() {
	tb.index = 0
	tb.size = 0
}
