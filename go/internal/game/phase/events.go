package phase

import (
	"encoding/json"
	"time"

	"github.com/mcdev12/hoot/go/internal/transport"
)

// Name identifies one of the three stages of a question cycle.
type Name string

const (
	PhaseQuestion  Name = "question"
	PhaseResults   Name = "results"
	PhaseCountdown Name = "countdown"
)

// phaseOrdinals orders phases within one question cycle for supersede ranking.
var phaseOrdinals = map[Name]int{
	PhaseQuestion:  0,
	PhaseResults:   1,
	PhaseCountdown: 2,
}

const phasesPerQuestion = 3

// Event is a phase transition broadcast by the room's driver. Immutable once
// emitted; each event fully replaces the previous phase state on receivers.
//
// PhaseEndsAt is an absolute wall-clock deadline in epoch milliseconds so a
// late-joining or reconnecting client can compute remaining time without
// replaying missed events.
type Event struct {
	Phase         Name   `json:"phase"`
	QuestionIndex int    `json:"question_index"`
	PhaseEndsAt   int64  `json:"phase_ends_at"`
	EmittedBy     string `json:"emitted_by,omitempty"`
}

// Valid reports whether the event names a known phase and a usable index.
func (e Event) Valid() bool {
	_, known := phaseOrdinals[e.Phase]
	return known && e.QuestionIndex >= 0 && e.PhaseEndsAt > 0
}

// Rank totally orders events across the game's phase progression. A received
// event supersedes the applied one only when its rank is strictly higher.
func (e Event) Rank() int {
	return e.QuestionIndex*phasesPerQuestion + phaseOrdinals[e.Phase]
}

// Deadline returns PhaseEndsAt as a time.Time.
func (e Event) Deadline() time.Time {
	return time.UnixMilli(e.PhaseEndsAt)
}

// Remaining returns the time left until the deadline, clamped at zero so an
// expired historical event renders as "time's up" rather than negative.
func (e Event) Remaining(now time.Time) time.Duration {
	remaining := e.Deadline().Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// CompletedPayload announces the end of the game after the final question's
// results phase expires.
type CompletedPayload struct {
	QuestionCount int       `json:"question_count"`
	CompletedAt   time.Time `json:"completed_at"`
}

// DecodeEvent extracts a phase Event from a broadcast envelope. The second
// return is false for envelopes of other types or malformed payloads; such
// traffic is dropped by callers, never treated as an error.
func DecodeEvent(env *transport.Envelope) (Event, bool) {
	if env == nil || env.Type != transport.EventTypePhaseChanged {
		return Event{}, false
	}
	var event Event
	if err := json.Unmarshal(env.Data, &event); err != nil {
		return Event{}, false
	}
	if !event.Valid() {
		return Event{}, false
	}
	return event, true
}
