package models

// StreamState is the local lifecycle state of a live stream.
type StreamState string

const (
	StreamActive  StreamState = "active"
	StreamStopped StreamState = "stopped"
)

// -----------------------------------------------------------------------------

// MStreamInfo is the metadata of one live stream (id == its request id).
type MStreamInfo struct {
	ID         int64       `json:"id"`
	Symbol     string      `json:"symbol"`
	SecType    string      `json:"sec_type"`
	State      StreamState `json:"state"`
	CreatedAt  int64       `json:"created_at"`   // unix milliseconds
	LastTickAt int64       `json:"last_tick_at"` // unix milliseconds, 0 before first tick
	TickCount  int         `json:"tick_count"`
	Capacity   int         `json:"capacity"`
	MarketOpen bool        `json:"market_open"`
}
