package helpers

import (
	"errors"
	"fmt"
	"time"
)

// -----------------------------------------------------------------------------
// Custom Error Types
//
// Every error crossing a component boundary is structured: kind (type),
// request id (0 for connection-level failures), and message. Vendor messages
// are carried verbatim in GatewayError.
// -----------------------------------------------------------------------------

type TerminalError struct {
	ReqID   int64
	Message string
	Cause   error
}

func (e *TerminalError) Error() string {
	msg := e.Message
	if e.ReqID > 0 {
		msg = fmt.Sprintf("%s (reqId: %d)", msg, e.ReqID)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *TerminalError) Unwrap() error {
	return e.Cause
}

// -----------------------------------------------------------------------------

// ConnectionError: connect failed or the acknowledgment never arrived in time.
type ConnectionError struct{ TerminalError }

// TimeoutError: a request exceeded its deadline and was swept.
type TimeoutError struct{ TerminalError }

// GatewayError: explicit error event for a request id; Code and Message come
// from the vendor verbatim.
type GatewayError struct {
	TerminalError
	Code int
}

// ConnectionLostError: mid-flight disconnect; fatal to all pending requests
// and active streams but not to the process.
type ConnectionLostError struct{ TerminalError }

// CapacityError: pacing queue depth exceeded; callers should back off.
type CapacityError struct{ TerminalError }

// -----------------------------------------------------------------------------
// Constructors
// -----------------------------------------------------------------------------

func NewConnectionError(msg string, cause error) *ConnectionError {
	return &ConnectionError{TerminalError{Message: msg, Cause: cause}}
}

func NewTimeoutError(reqID int64, msg string) *TimeoutError {
	return &TimeoutError{TerminalError{ReqID: reqID, Message: msg}}
}

func NewGatewayError(reqID int64, code int, vendorMsg string) *GatewayError {
	return &GatewayError{
		TerminalError: TerminalError{ReqID: reqID, Message: vendorMsg},
		Code:          code,
	}
}

func NewConnectionLostError(reqID int64) *ConnectionLostError {
	return &ConnectionLostError{TerminalError{ReqID: reqID, Message: "connection lost"}}
}

func NewCapacityError(msg string) *CapacityError {
	return &CapacityError{TerminalError{Message: msg}}
}

// -----------------------------------------------------------------------------
// Classification helpers
// -----------------------------------------------------------------------------

func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

func IsConnectionLost(err error) bool {
	var cl *ConnectionLostError
	return errors.As(err, &cl)
}

func IsCapacity(err error) bool {
	var ce *CapacityError
	return errors.As(err, &ce)
}

// -----------------------------------------------------------------------------
// Retry Logic
// -----------------------------------------------------------------------------

// RetryWithBackoff attempts to execute the operation up to maxRetries times
// with exponential backoff.
func RetryWithBackoff(operation string, maxRetries int, baseDelay time.Duration, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err
		if attempt == maxRetries-1 {
			break
		}

		delay := baseDelay * (1 << attempt)
		fmt.Printf("Warning: Attempt %d/%d failed for %s: %v. Retrying in %v\n", attempt+1, maxRetries, operation, err, delay)
		time.Sleep(delay)
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operation, maxRetries, lastErr)
}
