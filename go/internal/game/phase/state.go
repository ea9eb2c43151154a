package phase

import (
	"sync"
	"time"
)

// State is a client's local view of the room's phase, fed exclusively by
// received phase events. There is no lock shared across clients; safety comes
// from single-writer election on the emit side and the monotonic supersede
// rule on the apply side.
type State struct {
	mu      sync.RWMutex
	current *Event
}

// NewState returns an empty phase state awaiting its first event.
func NewState() *State {
	return &State{}
}

// Apply installs the event as the current phase state. Events ranked equal or
// lower than the applied one are stale (out-of-order or duplicate delivery)
// and are discarded; Apply reports whether the event took effect.
func (s *State) Apply(event Event) bool {
	if !event.Valid() {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil && event.Rank() <= s.current.Rank() {
		return false
	}
	s.current = &event
	return true
}

// Current returns the applied phase event, or false if none has arrived yet.
func (s *State) Current() (Event, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == nil {
		return Event{}, false
	}
	return *s.current, true
}

// Remaining returns the time left in the current phase at now, zero when the
// deadline has passed or no event has been applied.
func (s *State) Remaining(now time.Time) time.Duration {
	current, ok := s.Current()
	if !ok {
		return 0
	}
	return current.Remaining(now)
}

// Reset clears the applied state, e.g. when leaving a room.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
}
