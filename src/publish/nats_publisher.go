package publish

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"market-terminal/src/logger"
	"market-terminal/src/models"
)

// -----------------------------------------------------------------------------
// NATSPublisher pushes ticks and batch completions to a NATS core subject
// tree. Publishing is fire-and-forget: the terminal's own state never depends
// on the broker being up.
// -----------------------------------------------------------------------------

type NATSPublisher struct {
	mu        sync.Mutex
	nc        *nats.Conn
	connected bool

	url           string
	subjectPrefix string
	logger        *logger.Logger
}

// tickMessage is the wire shape for one published tick.
type tickMessage struct {
	StreamID int64        `json:"stream_id"`
	Symbol   string       `json:"symbol"`
	Tick     models.MTick `json:"tick"`
}

// -----------------------------------------------------------------------------

func NewNATSPublisher(url, subjectPrefix string, log *logger.Logger) *NATSPublisher {
	if subjectPrefix == "" {
		subjectPrefix = "terminal"
	}
	return &NATSPublisher{
		url:           url,
		subjectPrefix: subjectPrefix,
		logger:        log,
	}
}

// -----------------------------------------------------------------------------

// Connect establishes the broker connection with automatic reconnects.
func (np *NATSPublisher) Connect() error {
	np.mu.Lock()
	defer np.mu.Unlock()

	if np.nc != nil && np.nc.IsConnected() {
		return nil
	}

	opts := []nats.Option{
		nats.Name("market-terminal"),
		nats.Timeout(5 * time.Second),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(-1),
		nats.RetryOnFailedConnect(true),

		nats.ClosedHandler(func(nc *nats.Conn) {
			np.logger.Error("NATS connection closed unexpectedly")
			np.setConnected(false)
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			np.logger.Warning("NATS disconnected, attempting reconnect: %v", err)
			np.setConnected(false)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			np.logger.Info("NATS reconnected to %s", nc.ConnectedUrl())
			np.setConnected(true)
		}),
	}

	var err error
	np.nc, err = nats.Connect(np.url, opts...)
	if err != nil {
		return fmt.Errorf("nats connection failed: %w", err)
	}

	np.connected = true
	np.logger.Info("Connected to NATS at %s", np.nc.ConnectedUrl())
	return nil
}

// -----------------------------------------------------------------------------

func (np *NATSPublisher) Disconnect() error {
	np.mu.Lock()
	defer np.mu.Unlock()

	if np.nc != nil {
		np.nc.Close()
		np.nc = nil
	}
	np.connected = false
	return nil
}

// -----------------------------------------------------------------------------

func (np *NATSPublisher) IsConnected() bool {
	np.mu.Lock()
	defer np.mu.Unlock()
	return np.connected && np.nc != nil && np.nc.IsConnected()
}

func (np *NATSPublisher) setConnected(v bool) {
	np.mu.Lock()
	np.connected = v
	np.mu.Unlock()
}

// -----------------------------------------------------------------------------

// OnTick publishes one live tick on <prefix>.ticks.<symbol>.
func (np *NATSPublisher) OnTick(streamID int64, symbol string, tick models.MTick) {
	if !np.IsConnected() {
		return
	}

	payload, err := json.Marshal(tickMessage{StreamID: streamID, Symbol: symbol, Tick: tick})
	if err != nil {
		np.logger.Error("Failed to serialize tick for %s: %v", symbol, err)
		return
	}

	subject := fmt.Sprintf("%s.ticks.%s", np.subjectPrefix, symbol)
	if err := np.nc.Publish(subject, payload); err != nil {
		np.logger.Error("Failed to publish tick for %s to %s: %v", symbol, subject, err)
	}
}

// -----------------------------------------------------------------------------

// OnBatchComplete publishes a finished job's status on <prefix>.batches.
func (np *NATSPublisher) OnBatchComplete(status models.MBatchStatus) {
	if !np.IsConnected() {
		return
	}

	payload, err := json.Marshal(status)
	if err != nil {
		np.logger.Error("Failed to serialize batch status %s: %v", status.JobID, err)
		return
	}

	subject := fmt.Sprintf("%s.batches", np.subjectPrefix)
	if err := np.nc.Publish(subject, payload); err != nil {
		np.logger.Error("Failed to publish batch status %s to %s: %v", status.JobID, subject, err)
	}
}
