package models

// MTick is one unit of incoming market data for a stream.
// A tick carries a price, a size, or both; absent fields stay nil.
// Ticks are immutable once appended to a buffer.
type MTick struct {
	Timestamp int64    `json:"timestamp"` // unix milliseconds, arrival time
	Price     *float64 `json:"price,omitempty"`
	Size      *float64 `json:"size,omitempty"`
	TickType  string   `json:"tick_type,omitempty"` // vendor tick type name (LAST, BID, ...)
}

// -----------------------------------------------------------------------------

// HasPrice reports whether the tick carries a usable price.
func (t MTick) HasPrice() bool {
	return t.Price != nil && *t.Price > 0
}

// -----------------------------------------------------------------------------

// HasSize reports whether the tick carries a usable size.
func (t MTick) HasSize() bool {
	return t.Size != nil && *t.Size > 0
}
