// Package connection owns the single push connection to the trading engine:
// dialing, heartbeats, reconnection with exponential backoff, and typed
// send/receive. No other component ever touches the connection handle.
package connection

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"dashboard_sync/internal/core"
	"dashboard_sync/pkg/telemetry"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Config controls the connection manager
type Config struct {
	URL                  string
	HeartbeatInterval    time.Duration
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
	MaxReconnectAttempts int
	WriteWait            time.Duration
	HandshakeTimeout     time.Duration
}

func (c *Config) applyDefaults() {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.ReconnectBaseDelay <= 0 {
		c.ReconnectBaseDelay = time.Second
	}
	if c.ReconnectMaxDelay <= 0 {
		c.ReconnectMaxDelay = 30 * time.Second
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = 5
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 5 * time.Second
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
}

// MessageFunc receives each parsed inbound message, in delivery order
type MessageFunc func(msg core.InboundMessage)

// StateChangeFunc observes lifecycle transitions
type StateChangeFunc func(from, to core.ConnectionState)

// Manager is the owned, explicitly constructed connection instance. Create
// with NewManager, start with Connect, and dispose with Close; there is no
// ambient global.
type Manager struct {
	cfg      Config
	logger   core.ILogger
	metrics  *telemetry.MetricsHolder
	clientID string
	dialer   *websocket.Dialer

	onMessage     MessageFunc
	onStateChange StateChangeFunc

	mu             sync.Mutex
	state          core.ConnectionState
	conn           *websocket.Conn
	connDone       chan struct{}
	attempts       int
	reconnectTimer *time.Timer
	closed         bool

	writeMu sync.Mutex
	wg      sync.WaitGroup
}

// NewManager creates a manager in the Disconnected state
func NewManager(cfg Config, logger core.ILogger) *Manager {
	cfg.applyDefaults()
	return &Manager{
		cfg:      cfg,
		logger:   logger.WithField("component", "connection_manager"),
		metrics:  telemetry.GetGlobalMetrics(),
		clientID: uuid.NewString(),
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		state: core.StateDisconnected,
	}
}

// SetOnMessage sets the inbound message callback. Must be called before
// Connect.
func (m *Manager) SetOnMessage(fn MessageFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onMessage = fn
}

// SetOnStateChange sets the lifecycle callback. Must be called before
// Connect.
func (m *Manager) SetOnStateChange(fn StateChangeFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStateChange = fn
}

// State returns the current connection state
func (m *Manager) State() core.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Attempts returns the current consecutive reconnect attempt count
func (m *Manager) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// ClientID returns the id sent in the identification message
func (m *Manager) ClientID() string {
	return m.clientID
}

// transition records a state change while mu is held and returns the
// callback to invoke after mu is released.
func (m *Manager) transition(to core.ConnectionState) func() {
	from := m.state
	if from == to {
		return func() {}
	}
	m.state = to
	m.metrics.SetConnectionState(int64(to))
	m.logger.Info("connection state", "from", from.String(), "to", to.String())
	cb := m.onStateChange
	return func() {
		if cb != nil {
			cb(from, to)
		}
	}
}

// Connect starts dialing. It is idempotent: a no-op while already Connecting
// or Connected. Calling it from Reconnecting cancels the pending backoff
// timer and dials immediately; from terminal Disconnected it starts a fresh
// attempt cycle.
func (m *Manager) Connect() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	switch m.state {
	case core.StateConnecting, core.StateConnected, core.StateClosing:
		m.mu.Unlock()
		return
	}
	m.cancelReconnectTimerLocked()
	m.attempts = 0
	notify := m.transition(core.StateConnecting)
	m.mu.Unlock()
	notify()

	go m.dial()
}

func (m *Manager) dial() {
	if m.metrics.ConnectsTotal != nil {
		m.metrics.ConnectsTotal.Add(context.Background(), 1)
	}

	conn, _, err := m.dialer.Dial(m.cfg.URL, nil)

	m.mu.Lock()
	// Dispose or manual disconnect while the dial was in flight wins.
	if m.closed || m.state != core.StateConnecting {
		m.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}

	if err != nil {
		m.logger.Warn("dial failed", "url", m.cfg.URL, "error", err)
		notify := m.scheduleReconnectLocked()
		m.mu.Unlock()
		notify()
		return
	}

	m.conn = conn
	m.connDone = make(chan struct{})
	m.attempts = 0
	notify := m.transition(core.StateConnected)

	m.wg.Add(2)
	go m.readLoop(conn)
	go m.heartbeatLoop(m.connDone)
	m.mu.Unlock()
	notify()

	// Identify ourselves and subscribe to portfolio pushes.
	m.Send(core.OutboundMessage{Type: core.MsgConnection, ClientID: m.clientID})
	m.Send(core.OutboundMessage{Type: core.MsgSubscribePortfolio})
}

// Send writes one message when Connected. It returns false, with a warning,
// in every other state: there is deliberately no outbound queue.
func (m *Manager) Send(msg core.OutboundMessage) bool {
	m.mu.Lock()
	conn := m.conn
	connected := m.state == core.StateConnected
	m.mu.Unlock()

	if !connected || conn == nil {
		m.logger.Warn("send while not connected, dropping", "type", msg.Type)
		return false
	}

	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixMilli()
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(m.cfg.WriteWait))
	if err := conn.WriteJSON(msg); err != nil {
		m.logger.Warn("write failed", "type", msg.Type, "error", err)
		return false
	}
	return true
}

func (m *Manager) readLoop(conn *websocket.Conn) {
	defer m.wg.Done()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.handleClose(conn, err)
			return
		}
		m.handleInbound(data)
	}
}

func (m *Manager) handleInbound(data []byte) {
	if m.metrics.MessagesTotal != nil {
		m.metrics.MessagesTotal.Add(context.Background(), 1)
	}

	var msg core.InboundMessage
	if err := json.Unmarshal(data, &msg); err != nil || msg.Type == "" {
		// Protocol error: drop the frame, keep the connection.
		if m.metrics.MessagesDropped != nil {
			m.metrics.MessagesDropped.Add(context.Background(), 1)
		}
		m.logger.Warn("discarding unparseable message", "error", err, "bytes", len(data))
		return
	}
	msg.ReceivedAt = time.Now()

	switch msg.Type {
	case core.EventHeartbeat:
		// Every server heartbeat gets exactly one immediate reply.
		m.Send(core.OutboundMessage{Type: core.MsgHeartbeatResponse})
		if m.metrics.HeartbeatRepliesSent != nil {
			m.metrics.HeartbeatRepliesSent.Add(context.Background(), 1)
		}
		return
	case core.EventPong, core.EventConnectionAck:
		m.logger.Debug("transport message", "type", msg.Type)
		return
	}

	m.mu.Lock()
	fn := m.onMessage
	m.mu.Unlock()
	if fn != nil {
		fn(msg)
	}
}

func (m *Manager) heartbeatLoop(done <-chan struct{}) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			// A failed write here may be transient; the read loop decides
			// when the connection is actually dead.
			if m.Send(core.OutboundMessage{Type: core.MsgHeartbeat}) {
				if m.metrics.HeartbeatsSentTotal != nil {
					m.metrics.HeartbeatsSentTotal.Add(context.Background(), 1)
				}
			}
		}
	}
}

// handleClose runs when the read loop ends. Manual closure is terminal;
// abnormal closure schedules a reconnect while attempts remain.
func (m *Manager) handleClose(conn *websocket.Conn, err error) {
	m.mu.Lock()
	if m.conn != conn {
		// A newer connection replaced this one; nothing to do.
		m.mu.Unlock()
		return
	}
	m.teardownConnLocked()

	if m.closed || m.state == core.StateClosing {
		notify := m.transition(core.StateDisconnected)
		m.mu.Unlock()
		notify()
		return
	}

	m.logger.Warn("connection lost", "error", err)
	notify := m.scheduleReconnectLocked()
	m.mu.Unlock()
	notify()
}

func (m *Manager) teardownConnLocked() {
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	if m.connDone != nil {
		close(m.connDone)
		m.connDone = nil
	}
}

// scheduleReconnectLocked arms the single backoff timer, or transitions to
// terminal Disconnected once attempts are exhausted. Caller holds mu and
// invokes the returned callback after releasing it.
func (m *Manager) scheduleReconnectLocked() func() {
	if m.attempts >= m.cfg.MaxReconnectAttempts {
		m.logger.Error("reconnect attempts exhausted, staying disconnected",
			"attempts", m.attempts,
		)
		return m.transition(core.StateDisconnected)
	}

	m.attempts++
	delay := m.backoffDelay(m.attempts)
	m.logger.Info("scheduling reconnect", "attempt", m.attempts, "delay", delay.String())
	if m.metrics.ReconnectsTotal != nil {
		m.metrics.ReconnectsTotal.Add(context.Background(), 1)
	}

	notify := m.transition(core.StateReconnecting)

	m.cancelReconnectTimerLocked()
	m.reconnectTimer = time.AfterFunc(delay, func() {
		m.mu.Lock()
		m.reconnectTimer = nil
		// A timer firing after dispose or an explicit disconnect must not
		// resurrect the connection.
		if m.closed || m.state != core.StateReconnecting {
			m.mu.Unlock()
			return
		}
		n := m.transition(core.StateConnecting)
		m.mu.Unlock()
		n()
		m.dial()
	})

	return notify
}

// backoffDelay returns base * 2^attempt capped at the configured maximum,
// with attempt counted from 1.
func (m *Manager) backoffDelay(attempt int) time.Duration {
	delay := m.cfg.ReconnectBaseDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= m.cfg.ReconnectMaxDelay {
			return m.cfg.ReconnectMaxDelay
		}
	}
	return delay
}

func (m *Manager) cancelReconnectTimerLocked() {
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
}

// Disconnect performs a manual close: the close frame carries the normal
// closure code so the ensuing close is not treated as abnormal, and no
// reconnect is scheduled until an explicit Connect.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.cancelReconnectTimerLocked()

	if m.conn == nil {
		notify := m.transition(core.StateDisconnected)
		m.mu.Unlock()
		notify()
		return
	}

	notify := m.transition(core.StateClosing)
	conn := m.conn
	m.mu.Unlock()
	notify()

	m.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnect"),
		time.Now().Add(m.cfg.WriteWait))
	m.writeMu.Unlock()

	// Force the read loop to return even if the peer never answers the
	// close frame.
	conn.Close()
}

// Close disposes the manager: every pending timer is cleared, the connection
// is closed with the manual code, and no reconnect fires afterwards. The
// manager cannot be reused after Close.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.cancelReconnectTimerLocked()

	conn := m.conn
	m.conn = nil
	if m.connDone != nil {
		close(m.connDone)
		m.connDone = nil
	}
	notify := m.transition(core.StateDisconnected)
	m.mu.Unlock()
	notify()

	if conn != nil {
		m.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"),
			time.Now().Add(m.cfg.WriteWait))
		m.writeMu.Unlock()
		conn.Close()
	}

	// Wait for loops to exit, but never hang shutdown on a stuck peer.
	doneCh := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(doneCh)
	}()
	select {
	case <-doneCh:
	case <-time.After(5 * time.Second):
		m.logger.Warn("connection loops did not exit within timeout")
	}
}
