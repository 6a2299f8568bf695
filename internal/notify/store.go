package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"dashboard_sync/internal/core"
	"dashboard_sync/pkg/telemetry"
)

// Input is the caller-supplied part of a notification; the store assigns id,
// timestamp, and the unread flag.
type Input struct {
	Type     Type
	Title    string
	Message  string
	Data     json.RawMessage
	Action   *Action
	Duration time.Duration
}

// StoreConfig bounds the inbox
type StoreConfig struct {
	MaxEntries      int
	DefaultDuration time.Duration
}

// Store is the notification inbox. All mutation goes through the reducer so
// the unread counter can never drift from the entries.
type Store struct {
	logger  core.ILogger
	metrics *telemetry.MetricsHolder
	cfg     StoreConfig

	mu         sync.RWMutex
	state      State
	nextID     int64
	presenters presenterSet
}

// NewStore creates an empty inbox
func NewStore(cfg StoreConfig, logger core.ILogger) *Store {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 500
	}
	l := logger.WithField("component", "notification_store")
	return &Store{
		logger:     l,
		metrics:    telemetry.GetGlobalMetrics(),
		cfg:        cfg,
		presenters: presenterSet{logger: l},
	}
}

// AddPresenter registers a presenter invoked once per added notification
func (s *Store) AddPresenter(p Presenter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presenters.add(p)
}

// Add assigns id and timestamp, prepends the entry (newest first), bumps the
// unread counter, and presents it exactly once.
func (s *Store) Add(in Input) Notification {
	s.mu.Lock()

	s.nextID++
	duration := in.Duration
	if duration == 0 {
		duration = s.cfg.DefaultDuration
	}
	n := Notification{
		ID:        s.nextID,
		Type:      in.Type,
		Title:     in.Title,
		Message:   in.Message,
		Timestamp: time.Now(),
		Read:      false,
		Data:      in.Data,
		Action:    in.Action,
		Duration:  duration,
	}

	s.state = Reduce(s.state, AddAction{Notification: n})
	for len(s.state.Items) > s.cfg.MaxEntries {
		s.state = Reduce(s.state, EvictOldestAction{})
	}
	s.publishGauges()
	snapshot := s.presenters.snapshot()
	s.mu.Unlock()

	if s.metrics.NotificationsTotal != nil {
		s.metrics.NotificationsTotal.Add(context.Background(), 1)
	}

	// Present outside the lock: presenters may call back into the store.
	snapshot.present(n)

	return n
}

// MarkRead marks one entry read. Unknown or already-read ids are a no-op.
func (s *Store) MarkRead(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Reduce(s.state, MarkReadAction{ID: id})
	s.publishGauges()
}

// MarkAllRead marks every entry read
func (s *Store) MarkAllRead() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Reduce(s.state, MarkAllReadAction{})
	s.publishGauges()
}

// Remove deletes one entry. Unknown ids are a no-op.
func (s *Store) Remove(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Reduce(s.state, RemoveAction{ID: id})
	s.publishGauges()
}

// Clear empties the inbox
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Reduce(s.state, ClearAction{})
	s.publishGauges()
}

// List returns a copy of the entries, newest first
func (s *Store) List() []Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyItems(s.state.Items)
}

// UnreadCount returns the number of unread entries
func (s *Store) UnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Unread
}

// Len returns the number of entries
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.state.Items)
}

func (s *Store) publishGauges() {
	s.metrics.SetUnreadCount(int64(s.state.Unread))
}
