package models

// MConnectionStatus is the connection-level view exposed for polling.
type MConnectionStatus struct {
	State           string `json:"state"` // "disconnected", "connecting", "connected"
	Host            string `json:"host"`
	Port            int    `json:"port"`
	ClientID        int    `json:"client_id"`
	ConnectedAt     int64  `json:"connected_at"` // unix milliseconds, 0 when not connected
	PendingRequests int    `json:"pending_requests"`
	ActiveStreams   int    `json:"active_streams"`
	PacingQueue     int    `json:"pacing_queue"`
}
