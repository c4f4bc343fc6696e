package interfaces

import (
	"context"

	"market-terminal/src/models"
)

// -----------------------------------------------------------------------------
// IGateway is the abstract market-data gateway collaborator: one persistent
// connection accepting typed requests and delivering typed asynchronous
// events. Delivery is at-least-once and possibly reordered per id; consumers
// must be idempotent to duplicates.
// -----------------------------------------------------------------------------

type IGateway interface {

	// Connect opens the transport. The gateway acknowledges with an
	// EventConnected on the events channel; the caller owns the ack timeout.
	Connect(ctx context.Context, identity models.MIdentity) error

	// -----------------------------------------------------------------------------

	// Close tears down the transport. Safe to call when not connected.
	Close() error

	// -----------------------------------------------------------------------------

	// Send dispatches one request. Must only be called by the single
	// connection owner.
	Send(req models.MGatewayRequest) error

	// -----------------------------------------------------------------------------

	// Events returns the inbound event channel. The channel is closed when
	// the connection is lost or closed.
	Events() <-chan models.MGatewayEvent
}
