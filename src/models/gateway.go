package models

// -----------------------------------------------------------------------------
// Wire-level request/event envelopes exchanged with the gateway collaborator.
// The vendor protocol itself lives behind the IGateway adapter; these are the
// typed envelopes the core routes on.
// -----------------------------------------------------------------------------

// GatewayEventKind identifies one asynchronous callback kind.
type GatewayEventKind string

const (
	EventConnected    GatewayEventKind = "connected"
	EventData         GatewayEventKind = "data"      // one historical bar fragment
	EventComplete     GatewayEventKind = "complete"  // end of fragments for req_id
	EventError        GatewayEventKind = "error"     // per-request vendor error
	EventTick         GatewayEventKind = "tick"      // unsolicited stream tick
	EventNews         GatewayEventKind = "news"      // one news headline fragment
	EventNewsEnd      GatewayEventKind = "news_end"  // end of news for req_id
	EventDisconnected GatewayEventKind = "disconnected"
)

// -----------------------------------------------------------------------------

// MGatewayEvent is one inbound callback, tagged with the request (or stream)
// id it belongs to. ReqID 0 marks connection-level events.
type MGatewayEvent struct {
	Kind    GatewayEventKind `json:"kind"`
	ReqID   int64            `json:"req_id"`
	Bar     *MDataBar        `json:"bar,omitempty"`
	Tick    *MTick           `json:"tick,omitempty"`
	News    *MNewsItem       `json:"news,omitempty"`
	Code    int              `json:"code,omitempty"`
	Message string           `json:"message,omitempty"`
}

// -----------------------------------------------------------------------------

// MGatewayRequest is one outbound dispatch to the gateway.
type MGatewayRequest struct {
	Kind     RequestKind   `json:"kind"`
	ReqID    int64         `json:"req_id"`
	Symbol   string        `json:"symbol,omitempty"`
	SecType  string        `json:"sec_type,omitempty"`
	CancelID int64         `json:"cancel_id,omitempty"` // stream id a stop request targets
	Params   *MBatchParams `json:"params,omitempty"`
	News     *MNewsQuery   `json:"news,omitempty"`
}

// -----------------------------------------------------------------------------

// MIdentity is the connection identity presented to the gateway.
type MIdentity struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	ClientID int    `json:"client_id"`
}
