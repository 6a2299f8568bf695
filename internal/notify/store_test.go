package notify

import (
	"sync"
	"testing"

	"dashboard_sync/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{})                     {}
func (nopLogger) Info(string, ...interface{})                      {}
func (nopLogger) Warn(string, ...interface{})                      {}
func (nopLogger) Error(string, ...interface{})                     {}
func (nopLogger) Fatal(string, ...interface{})                     {}
func (n nopLogger) WithField(string, interface{}) core.ILogger     { return n }
func (n nopLogger) WithFields(map[string]interface{}) core.ILogger { return n }

type recordingPresenter struct {
	mu   sync.Mutex
	seen []Notification
}

func (r *recordingPresenter) Name() string { return "recorder" }

func (r *recordingPresenter) Present(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, n)
}

func (r *recordingPresenter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}

func newTestStore() *Store {
	return NewStore(StoreConfig{MaxEntries: 10}, nopLogger{})
}

func TestStore_AddAssignsMonotonicIDs(t *testing.T) {
	s := newTestStore()

	first := s.Add(Input{Type: TypeSignal, Title: "one"})
	second := s.Add(Input{Type: TypeTrade, Title: "two"})

	assert.Less(t, first.ID, second.ID)
	assert.False(t, first.Timestamp.IsZero())
	assert.False(t, first.Read)
	assert.Equal(t, 2, s.UnreadCount())

	items := s.List()
	require.Len(t, items, 2)
	assert.Equal(t, "two", items[0].Title, "newest first")
}

func TestStore_PresentsExactlyOnce(t *testing.T) {
	s := newTestStore()
	rec := &recordingPresenter{}
	s.AddPresenter(rec)

	s.Add(Input{Type: TypeInfo, Title: "hello"})
	assert.Equal(t, 1, rec.count())

	// Read-state churn never re-presents
	items := s.List()
	s.MarkRead(items[0].ID)
	s.MarkAllRead()
	assert.Equal(t, 1, rec.count())
}

type panickingPresenter struct{}

func (panickingPresenter) Name() string          { return "boom" }
func (panickingPresenter) Present(Notification)  { panic("toast layer broke") }

func TestStore_PresenterPanicIsContained(t *testing.T) {
	s := newTestStore()
	s.AddPresenter(panickingPresenter{})
	rec := &recordingPresenter{}
	s.AddPresenter(rec)

	assert.NotPanics(t, func() {
		s.Add(Input{Type: TypeError, Title: "still delivered"})
	})
	assert.Equal(t, 1, rec.count(), "later presenters still run")
	assert.Equal(t, 1, s.Len(), "the entry is stored regardless")
}

func TestStore_MarkReadUnknownIDIsNoop(t *testing.T) {
	s := newTestStore()
	s.Add(Input{Type: TypeInfo, Title: "a"})

	before := s.List()
	s.MarkRead(9999)
	assert.Equal(t, before, s.List())
	assert.Equal(t, 1, s.UnreadCount())
}

func TestStore_RemoveAndClear(t *testing.T) {
	s := newTestStore()
	a := s.Add(Input{Type: TypeInfo, Title: "a"})
	s.Add(Input{Type: TypeInfo, Title: "b"})

	s.Remove(a.ID)
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 1, s.UnreadCount())

	s.Remove(a.ID) // already gone, no-op
	assert.Equal(t, 1, s.Len())

	s.Clear()
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, 0, s.UnreadCount())
}

func TestStore_CapEvictsOldest(t *testing.T) {
	s := NewStore(StoreConfig{MaxEntries: 3}, nopLogger{})

	for i := 0; i < 5; i++ {
		s.Add(Input{Type: TypeInfo, Title: "n"})
	}

	assert.Equal(t, 3, s.Len())
	assert.Equal(t, 3, s.UnreadCount(), "evicted unread entries must release their count")

	items := s.List()
	assert.Equal(t, int64(5), items[0].ID)
	assert.Equal(t, int64(3), items[len(items)-1].ID)
}

func TestStore_DefaultDuration(t *testing.T) {
	s := NewStore(StoreConfig{MaxEntries: 10, DefaultDuration: 5e9}, nopLogger{})

	n := s.Add(Input{Type: TypeInfo, Title: "uses default"})
	assert.Equal(t, int64(5e9), int64(n.Duration))

	n = s.Add(Input{Type: TypeInfo, Title: "explicit", Duration: 1e9})
	assert.Equal(t, int64(1e9), int64(n.Duration))
}
