package dashboard

import (
	"fmt"
	"log/slog"
	"sync"
)

// Store serializes every transition, so the order in which inputs are
// applied is the order in which they completed.
type Store struct {
	reducer Reducer

	mu     sync.Mutex
	state  State
	subs   map[int]chan State
	nextID int
}

func NewStore(r Reducer) *Store {
	return &Store{
		reducer: r,
		state:   InitialState(),
		subs:    make(map[int]chan State),
	}
}

// Apply runs one transition and publishes the result. A panicking
// transition leaves the previous state in place.
func (s *Store) Apply(in any) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, ok := s.reduce(in)
	if !ok {
		return s.state
	}
	s.state = next
	for _, ch := range s.subs {
		publish(ch, next)
	}
	return next
}

func (s *Store) reduce(in any) (next State, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("dashboard transition failed", "input", fmt.Sprintf("%T", in), "panic", r)
			ok = false
		}
	}()
	return s.reducer.Apply(s.state, in), true
}

func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe returns a channel that always holds the latest state; slow
// readers skip intermediate states rather than block the store. The current
// state is delivered immediately.
func (s *Store) Subscribe() (<-chan State, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	ch := make(chan State, 1)
	ch <- s.state
	s.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
	return ch, cancel
}

// publish replaces whatever the subscriber has not read yet. Only the store
// sends, under its lock, so the second send cannot block.
func publish(ch chan State, st State) {
	select {
	case ch <- st:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	ch <- st
}
