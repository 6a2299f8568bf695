// Package notify implements the ordered notification inbox with read/unread
// bookkeeping and presenter fan-out.
package notify

import (
	"encoding/json"
	"time"
)

// Type classifies a notification for the UI
type Type string

const (
	TypeSignal    Type = "signal"
	TypeTrade     Type = "trade"
	TypePortfolio Type = "portfolio"
	TypeAlert     Type = "alert"
	TypeSuccess   Type = "success"
	TypeError     Type = "error"
	TypeInfo      Type = "info"
)

// Action is an optional callback attached to a notification
type Action struct {
	Label string
	Fn    func()
}

// Notification is one inbox entry
type Notification struct {
	ID        int64
	Type      Type
	Title     string
	Message   string
	Timestamp time.Time
	Read      bool
	Data      json.RawMessage
	Action    *Action
	Duration  time.Duration
}

// State is the complete inbox state: entries newest-first plus the derived
// unread counter.
type State struct {
	Items  []Notification
	Unread int
}

// StoreAction is a state transition applied by Reduce
type StoreAction interface{ isStoreAction() }

// AddAction prepends a notification
type AddAction struct{ Notification Notification }

// MarkReadAction marks one entry read
type MarkReadAction struct{ ID int64 }

// MarkAllReadAction marks every entry read
type MarkAllReadAction struct{}

// RemoveAction deletes one entry
type RemoveAction struct{ ID int64 }

// ClearAction empties the inbox
type ClearAction struct{}

// EvictOldestAction drops the oldest entry, used to enforce the inbox cap
type EvictOldestAction struct{}

func (AddAction) isStoreAction()         {}
func (MarkReadAction) isStoreAction()    {}
func (MarkAllReadAction) isStoreAction() {}
func (RemoveAction) isStoreAction()      {}
func (ClearAction) isStoreAction()       {}
func (EvictOldestAction) isStoreAction() {}

// Reduce applies one action and returns the next state. It never mutates its
// input, so Unread == count(read=false) and the newest-first ordering can be
// checked after every step. Unknown ids are a no-op, never an error.
func Reduce(state State, action StoreAction) State {
	switch a := action.(type) {
	case AddAction:
		items := make([]Notification, 0, len(state.Items)+1)
		items = append(items, a.Notification)
		items = append(items, state.Items...)
		unread := state.Unread
		if !a.Notification.Read {
			unread++
		}
		return State{Items: items, Unread: unread}

	case MarkReadAction:
		for i, n := range state.Items {
			if n.ID == a.ID && !n.Read {
				items := copyItems(state.Items)
				items[i].Read = true
				return State{Items: items, Unread: state.Unread - 1}
			}
		}
		return state

	case MarkAllReadAction:
		if state.Unread == 0 {
			return state
		}
		items := copyItems(state.Items)
		for i := range items {
			items[i].Read = true
		}
		return State{Items: items, Unread: 0}

	case RemoveAction:
		for i, n := range state.Items {
			if n.ID == a.ID {
				items := make([]Notification, 0, len(state.Items)-1)
				items = append(items, state.Items[:i]...)
				items = append(items, state.Items[i+1:]...)
				unread := state.Unread
				if !n.Read {
					unread--
				}
				return State{Items: items, Unread: unread}
			}
		}
		return state

	case ClearAction:
		return State{}

	case EvictOldestAction:
		if len(state.Items) == 0 {
			return state
		}
		oldest := state.Items[len(state.Items)-1]
		items := copyItems(state.Items[:len(state.Items)-1])
		unread := state.Unread
		if !oldest.Read {
			unread--
		}
		return State{Items: items, Unread: unread}
	}

	return state
}

func copyItems(items []Notification) []Notification {
	out := make([]Notification, len(items))
	copy(out, items)
	return out
}
