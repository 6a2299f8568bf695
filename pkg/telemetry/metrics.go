package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names
const (
	MetricMessagesTotal        = "dashboard_sync_messages_total"
	MetricMessagesDropped      = "dashboard_sync_messages_dropped_total"
	MetricConnectsTotal        = "dashboard_sync_connects_total"
	MetricReconnectsTotal      = "dashboard_sync_reconnects_total"
	MetricConnectionState      = "dashboard_sync_connection_state"
	MetricDispatchLatency      = "dashboard_sync_dispatch_latency_seconds"
	MetricHandlerPanics        = "dashboard_sync_handler_panics_total"
	MetricRefreshesTotal       = "dashboard_sync_refreshes_total"
	MetricRefreshFailures      = "dashboard_sync_refresh_failures_total"
	MetricSlicesStale          = "dashboard_sync_slices_stale"
	MetricNotificationsTotal   = "dashboard_sync_notifications_total"
	MetricNotificationsUnread  = "dashboard_sync_notifications_unread"
	MetricHeartbeatsSentTotal  = "dashboard_sync_heartbeats_sent_total"
	MetricHeartbeatRepliesSent = "dashboard_sync_heartbeat_replies_total"
)

// MetricsHolder holds initialized instruments
type MetricsHolder struct {
	MessagesTotal        metric.Int64Counter
	MessagesDropped      metric.Int64Counter
	ConnectsTotal        metric.Int64Counter
	ReconnectsTotal      metric.Int64Counter
	ConnectionState      metric.Int64ObservableGauge
	DispatchLatency      metric.Float64Histogram
	HandlerPanics        metric.Int64Counter
	RefreshesTotal       metric.Int64Counter
	RefreshFailures      metric.Int64Counter
	SlicesStale          metric.Int64ObservableGauge
	NotificationsTotal   metric.Int64Counter
	NotificationsUnread  metric.Int64ObservableGauge
	HeartbeatsSentTotal  metric.Int64Counter
	HeartbeatRepliesSent metric.Int64Counter

	// State for observable gauges
	mu            sync.RWMutex
	connState     int64
	staleSlices   map[string]int64
	unreadCounter int64
}

var (
	globalMetrics *MetricsHolder
	initOnce      sync.Once
)

// GetGlobalMetrics returns the singleton metrics holder
func GetGlobalMetrics() *MetricsHolder {
	initOnce.Do(func() {
		globalMetrics = &MetricsHolder{
			staleSlices: make(map[string]int64),
		}
		// Instruments are created in InitMetrics
	})
	return globalMetrics
}

// InitMetrics initializes instruments using the meter
func (m *MetricsHolder) InitMetrics(meter metric.Meter) error {
	var err error

	if m.MessagesTotal, err = meter.Int64Counter(MetricMessagesTotal,
		metric.WithDescription("Inbound push messages received")); err != nil {
		return err
	}
	if m.MessagesDropped, err = meter.Int64Counter(MetricMessagesDropped,
		metric.WithDescription("Inbound messages dropped as unparseable")); err != nil {
		return err
	}
	if m.ConnectsTotal, err = meter.Int64Counter(MetricConnectsTotal,
		metric.WithDescription("Push connection attempts")); err != nil {
		return err
	}
	if m.ReconnectsTotal, err = meter.Int64Counter(MetricReconnectsTotal,
		metric.WithDescription("Automatic reconnect attempts scheduled")); err != nil {
		return err
	}
	if m.DispatchLatency, err = meter.Float64Histogram(MetricDispatchLatency,
		metric.WithDescription("Latency of routing one inbound message through all handlers")); err != nil {
		return err
	}
	if m.HandlerPanics, err = meter.Int64Counter(MetricHandlerPanics,
		metric.WithDescription("Recovered panics in event handlers")); err != nil {
		return err
	}
	if m.RefreshesTotal, err = meter.Int64Counter(MetricRefreshesTotal,
		metric.WithDescription("Cache slice refreshes executed")); err != nil {
		return err
	}
	if m.RefreshFailures, err = meter.Int64Counter(MetricRefreshFailures,
		metric.WithDescription("Cache slice refreshes that failed")); err != nil {
		return err
	}
	if m.NotificationsTotal, err = meter.Int64Counter(MetricNotificationsTotal,
		metric.WithDescription("Notifications added to the inbox")); err != nil {
		return err
	}
	if m.HeartbeatsSentTotal, err = meter.Int64Counter(MetricHeartbeatsSentTotal,
		metric.WithDescription("Client heartbeats sent")); err != nil {
		return err
	}
	if m.HeartbeatRepliesSent, err = meter.Int64Counter(MetricHeartbeatRepliesSent,
		metric.WithDescription("Replies to server-initiated heartbeats")); err != nil {
		return err
	}

	m.ConnectionState, err = meter.Int64ObservableGauge(MetricConnectionState,
		metric.WithDescription("Current connection state (0=disconnected..4=closing)"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			o.Observe(m.connState)
			return nil
		}))
	if err != nil {
		return err
	}

	m.SlicesStale, err = meter.Int64ObservableGauge(MetricSlicesStale,
		metric.WithDescription("Whether a cache slice is stale (1) or fresh (0)"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for slice, v := range m.staleSlices {
				o.Observe(v, metric.WithAttributes(attribute.String("slice", slice)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	m.NotificationsUnread, err = meter.Int64ObservableGauge(MetricNotificationsUnread,
		metric.WithDescription("Unread notifications in the inbox"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			o.Observe(m.unreadCounter)
			return nil
		}))
	return err
}

// SetConnectionState records the connection state for the gauge
func (m *MetricsHolder) SetConnectionState(state int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connState = state
}

// SetSliceStale records the stale flag for a slice
func (m *MetricsHolder) SetSliceStale(slice string, stale bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if stale {
		m.staleSlices[slice] = 1
	} else {
		m.staleSlices[slice] = 0
	}
}

// SetUnreadCount records the unread notification count
func (m *MetricsHolder) SetUnreadCount(n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unreadCounter = n
}
