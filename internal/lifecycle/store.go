package lifecycle

import (
	"sync"
)

// Key names one slot of shared lifecycle state.
type Key string

const (
	KeyDepositState     Key = "depositState"
	KeySignalState      Key = "signalState"
	KeyFulfillmentState Key = "fulfillmentState"
	KeyMaintenanceState Key = "maintenanceState"
	KeyDepositViews     Key = "depositViews"
	KeyAccountIntent    Key = "accountIntent"
)

// Store is an explicit state container with subscriber fan-out. Values stored
// here are treated as immutable snapshots: writers always Set a fresh value,
// never mutate one in place, so readers can hold what they got indefinitely.
type Store struct {
	mu    sync.RWMutex
	state map[Key]interface{}
	subs  map[Key]map[int]chan interface{}
	next  int
}

// NewStore creates an empty state container. One store is shared per account
// session and injected into every machine; there are no package globals.
func NewStore() *Store {
	return &Store{
		state: make(map[Key]interface{}),
		subs:  make(map[Key]map[int]chan interface{}),
	}
}

// GetState returns the current snapshot for key, nil when unset.
func (s *Store) GetState(key Key) interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state[key]
}

// Set replaces the snapshot for key and notifies subscribers. Notification is
// non-blocking: a subscriber that has not drained its channel misses the
// intermediate value and will observe the latest on its next receive.
func (s *Store) Set(key Key, value interface{}) {
	s.mu.Lock()
	s.state[key] = value
	subs := s.subs[key]
	channels := make([]chan interface{}, 0, len(subs))
	for _, ch := range subs {
		channels = append(channels, ch)
	}
	s.mu.Unlock()

	for _, ch := range channels {
		select {
		case ch <- value:
		default:
			// Drop and let the subscriber catch up from GetState.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- value:
			default:
			}
		}
	}
}

// Subscribe registers for updates to key. The returned cancel func must be
// called to release the subscription.
func (s *Store) Subscribe(key Key) (<-chan interface{}, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.next
	s.next++
	ch := make(chan interface{}, 1)
	if s.subs[key] == nil {
		s.subs[key] = make(map[int]chan interface{})
	}
	s.subs[key][id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs[key], id)
	}
	return ch, cancel
}
