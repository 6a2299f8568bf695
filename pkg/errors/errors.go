package apperrors

import "errors"

// Standardized subsystem errors. Each maps to one containment boundary:
// transport errors are retried by the connection manager, protocol errors are
// dropped, handler errors are isolated in the router, refresh errors are
// isolated per slice.
var (
	ErrNotConnected       = errors.New("connection not established")
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
	ErrManagerClosed      = errors.New("connection manager closed")
	ErrMalformedPayload   = errors.New("malformed inbound payload")
	ErrUnknownSlice       = errors.New("unknown cache slice")
	ErrSliceStale         = errors.New("cache slice stale")
	ErrEngineUnavailable  = errors.New("engine unavailable")
)
