package core

import (
	"encoding/json"
	"time"
)

// ConnectionState represents the lifecycle state of the push connection
type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosing
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosing:
		return "closing"
	}
	return "unknown"
}

// Inbound event type tags sent by the engine over the push connection
const (
	EventSignalGenerated = "signal_generated"
	EventPriceAlert      = "price_alert"
	EventTargetHit       = "target_hit"
	EventStopLossHit     = "stop_loss_hit"
	EventPortfolioUpdate = "portfolio_update"
	EventSystemAlert     = "system_alert"
	EventHeartbeat       = "heartbeat"
	EventConnectionAck   = "connection-ack"
	EventPong            = "pong"
)

// Outbound message type tags
const (
	MsgHeartbeat          = "heartbeat"
	MsgHeartbeatResponse  = "heartbeat_response"
	MsgConnection         = "connection"
	MsgSubscribePortfolio = "subscribe_portfolio"
)

// InboundMessage is a parsed push message. Data is kept opaque; consumers
// decode the parts they care about.
type InboundMessage struct {
	Type       string          `json:"type"`
	Data       json.RawMessage `json:"data"`
	ReceivedAt time.Time       `json:"-"`
}

// Clone returns a copy with its own payload bytes so one handler cannot
// mutate another's view of the same event.
func (m InboundMessage) Clone() InboundMessage {
	if m.Data == nil {
		return m
	}
	data := make(json.RawMessage, len(m.Data))
	copy(data, m.Data)
	return InboundMessage{Type: m.Type, Data: data, ReceivedAt: m.ReceivedAt}
}

// OutboundMessage is a message sent to the engine over the push connection
type OutboundMessage struct {
	Type      string `json:"type"`
	ClientID  string `json:"client_id,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}
