// Package core defines the shared interfaces and message types for the
// dashboard sync subsystem.
package core

import "context"

// ILogger defines the interface for structured logging
type ILogger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	WithField(key string, value interface{}) ILogger
	WithFields(fields map[string]interface{}) ILogger
}

// MessageSender sends outbound messages over the push connection. Components
// other than the connection manager interact with the connection only through
// this interface, never through a direct connection handle.
type MessageSender interface {
	// Send returns false when the connection is not established. There is no
	// outbound buffering: callers that need delivery must check the result.
	Send(msg OutboundMessage) bool
}

// Dispatcher routes inbound messages to registered handlers.
type Dispatcher interface {
	Dispatch(msg InboundMessage)
}

// Refresher triggers authoritative re-fetches of named cache slices.
type Refresher interface {
	// Refresh re-fetches the given slices. Concurrent calls for the same
	// slice coalesce into a single underlying fetch.
	Refresh(ctx context.Context, slices ...string)
}
