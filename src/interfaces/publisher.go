package interfaces

import "market-terminal/src/models"

// -----------------------------------------------------------------------------

// IPublisher defines the interface for pushing data to downstream consumers
// (message broker, exporters).
type IPublisher interface {
	// OnTick publishes one live tick for a stream.
	OnTick(streamID int64, symbol string, tick models.MTick)

	// OnBatchComplete publishes a finished batch job's status.
	OnBatchComplete(status models.MBatchStatus)

	// Connect establishes connection to the message broker
	Connect() error

	// Disconnect closes the connection to the message broker
	Disconnect() error

	// IsConnected returns the current connection status
	IsConnected() bool
}
