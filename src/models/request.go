package models

import "time"

// -----------------------------------------------------------------------------
// Request identity and lifecycle
// -----------------------------------------------------------------------------

// RequestKind identifies the operation a request id correlates to.
type RequestKind string

const (
	ReqHistoricalBatch RequestKind = "historical_batch"
	ReqStreamStart     RequestKind = "stream_start"
	ReqStreamStop      RequestKind = "stream_stop"
	ReqNews            RequestKind = "news"
)

// RequestState is the lifecycle state of an in-flight request.
type RequestState string

const (
	ReqPending   RequestState = "pending"
	ReqCompleted RequestState = "completed"
	ReqFailed    RequestState = "failed"
	ReqTimedOut  RequestState = "timed_out"
)

// -----------------------------------------------------------------------------

// MRequestOutcome is delivered to the waiter exactly once when a request
// leaves the pending state.
type MRequestOutcome struct {
	ReqID     int64
	Kind      RequestKind
	State     RequestState
	Err       error       // nil on ReqCompleted
	Bars      []MDataBar  // historical fragments, in arrival order
	Headlines []MNewsItem // news fragments, in arrival order
}

// -----------------------------------------------------------------------------

// MRequestInfo is a read-only view of an in-flight request, for status surfaces.
type MRequestInfo struct {
	ReqID    int64        `json:"req_id"`
	Kind     RequestKind  `json:"kind"`
	State    RequestState `json:"state"`
	Symbol   string       `json:"symbol"`
	IssuedAt time.Time    `json:"issued_at"`
	Deadline time.Time    `json:"deadline"`
}
