package phase

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/hoot/go/internal/transport"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultResultsDuration is how long the correctness/leaderboard view
	// stays up between a question closing and the next countdown.
	DefaultResultsDuration = 8 * time.Second
	// DefaultCountdownDuration is the pause before the next question opens.
	DefaultCountdownDuration = 5 * time.Second
)

// Schedule holds the fixed timing for one game: a per-question answer window
// plus the shared results and countdown durations.
type Schedule struct {
	QuestionDurations []time.Duration
	ResultsDuration   time.Duration
	CountdownDuration time.Duration
}

// NewSchedule builds a Schedule from per-question time limits, applying the
// default results/countdown durations.
func NewSchedule(questionDurations []time.Duration) Schedule {
	return Schedule{
		QuestionDurations: questionDurations,
		ResultsDuration:   DefaultResultsDuration,
		CountdownDuration: DefaultCountdownDuration,
	}
}

// QuestionCount returns the number of questions in the game.
func (s Schedule) QuestionCount() int {
	return len(s.QuestionDurations)
}

// Clock owns phase transitions for a room while this client is the elected
// driver. Exactly one pending one-shot timer exists at a time; it is replaced
// on every transition and cancelled on demotion so a client that loses the
// driver role can never double-broadcast against its successor.
//
// All clients, the driver included, render countdowns from the broadcast
// deadline in State — the Clock only decides when transitions happen.
type Clock struct {
	roomID    string
	sessionID string
	schedule  Schedule
	bus       transport.BroadcastTransport
	state     *State
	clock     clockwork.Clock

	mu     sync.Mutex
	active bool
	timer  clockwork.Timer
	gen    int

	onComplete func()
}

// ClockConfig wires a Clock's collaborators.
type ClockConfig struct {
	RoomID    string
	SessionID string
	Schedule  Schedule
	Bus       transport.BroadcastTransport
	State     *State
	Clock     clockwork.Clock
	// OnComplete fires once when the final question's results phase expires.
	OnComplete func()
}

// NewClock creates a phase clock for one room.
func NewClock(cfg ClockConfig) (*Clock, error) {
	if cfg.RoomID == "" {
		return nil, fmt.Errorf("phase clock requires a room ID")
	}
	if cfg.Bus == nil {
		return nil, fmt.Errorf("phase clock requires a broadcast transport")
	}
	if cfg.State == nil {
		return nil, fmt.Errorf("phase clock requires a shared phase state")
	}
	if cfg.Schedule.QuestionCount() == 0 {
		return nil, fmt.Errorf("phase clock requires at least one question")
	}
	if cfg.Schedule.ResultsDuration <= 0 {
		cfg.Schedule.ResultsDuration = DefaultResultsDuration
	}
	if cfg.Schedule.CountdownDuration <= 0 {
		cfg.Schedule.CountdownDuration = DefaultCountdownDuration
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}

	return &Clock{
		roomID:     cfg.RoomID,
		sessionID:  cfg.SessionID,
		schedule:   cfg.Schedule,
		bus:        cfg.Bus,
		state:      cfg.State,
		clock:      cfg.Clock,
		onComplete: cfg.OnComplete,
	}, nil
}

// Promote makes this client the room's driver and resumes scheduling from the
// currently-applied phase state. A freshly-started game has no applied state;
// the caller starts it with StartGame, or recovers state first and calls
// Promote again.
func (c *Clock) Promote(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active {
		return
	}
	c.active = true

	current, ok := c.state.Current()
	if !ok {
		log.Debug().Str("room_id", c.roomID).Msg("promoted with no phase state; awaiting start or recovery")
		return
	}

	// Resume from the known deadline rather than restarting the phase, so a
	// driver handover does not stretch the question window.
	c.scheduleLocked(ctx, current, current.Remaining(c.clock.Now()))
	log.Info().
		Str("room_id", c.roomID).
		Str("phase", string(current.Phase)).
		Int("question_index", current.QuestionIndex).
		Msg("promoted to driver; resumed phase scheduling")
}

// Demote strips the driver role, cancelling any pending transition.
func (c *Clock) Demote() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.active {
		return
	}
	c.active = false
	c.cancelTimerLocked()
	log.Info().Str("room_id", c.roomID).Msg("demoted from driver; pending transition cancelled")
}

// IsDriving reports whether this clock currently owns transitions.
func (c *Clock) IsDriving() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// StartGame opens the first question. Driver only; a no-op when the game
// already has phase state.
func (c *Clock) StartGame(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.active {
		return ErrNotDriving
	}
	if _, ok := c.state.Current(); ok {
		return nil
	}
	return c.transitionLocked(ctx, Event{Phase: PhaseQuestion, QuestionIndex: 0}, c.schedule.QuestionDurations[0])
}

// AllAnswersIn closes the current question early once every expected answer
// has been received. Outside the question phase it is a no-op.
func (c *Clock) AllAnswersIn(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.active {
		return ErrNotDriving
	}
	current, ok := c.state.Current()
	if !ok || current.Phase != PhaseQuestion {
		return nil
	}
	return c.transitionLocked(ctx, Event{Phase: PhaseResults, QuestionIndex: current.QuestionIndex}, c.schedule.ResultsDuration)
}

// Resync realigns the pending timer with the currently-applied phase state.
// The coordinator calls this when the driver applies an event it did not emit
// itself, e.g. one broadcast by a predecessor during a handover race.
func (c *Clock) Resync(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.active {
		return
	}
	current, ok := c.state.Current()
	if !ok {
		return
	}
	c.scheduleLocked(ctx, current, current.Remaining(c.clock.Now()))
}

// Stop tears the clock down, cancelling any pending timer.
func (c *Clock) Stop() {
	c.Demote()
}

// advance runs when the pending timer fires: it moves the room to the phase
// that follows the currently-applied one.
func (c *Clock) advance(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.active {
		return
	}
	current, ok := c.state.Current()
	if !ok {
		return
	}

	var err error
	switch current.Phase {
	case PhaseQuestion:
		err = c.transitionLocked(ctx, Event{Phase: PhaseResults, QuestionIndex: current.QuestionIndex}, c.schedule.ResultsDuration)

	case PhaseResults:
		if current.QuestionIndex >= c.schedule.QuestionCount()-1 {
			err = c.completeLocked(ctx)
		} else {
			err = c.transitionLocked(ctx, Event{Phase: PhaseCountdown, QuestionIndex: current.QuestionIndex}, c.schedule.CountdownDuration)
		}

	case PhaseCountdown:
		next := current.QuestionIndex + 1
		if next >= c.schedule.QuestionCount() {
			// A received countdown can carry an index at or past the final
			// question. There is no question to open, so the game ends.
			err = c.completeLocked(ctx)
		} else {
			err = c.transitionLocked(ctx, Event{Phase: PhaseQuestion, QuestionIndex: next}, c.schedule.QuestionDurations[next])
		}
	}

	if err != nil {
		log.Error().
			Err(err).
			Str("room_id", c.roomID).
			Str("phase", string(current.Phase)).
			Msg("phase transition failed")
	}
}

// transitionLocked stamps the event with its deadline, applies it locally and
// broadcasts it, then schedules the follow-up transition. Callers hold c.mu.
func (c *Clock) transitionLocked(ctx context.Context, event Event, duration time.Duration) error {
	event.PhaseEndsAt = c.clock.Now().Add(duration).UnixMilli()
	event.EmittedBy = c.sessionID

	if !c.state.Apply(event) {
		// A higher-ranked event arrived between the timer firing and now;
		// whoever emitted it owns the room. Do not fight it.
		return nil
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal phase event: %w", err)
	}
	env := &transport.Envelope{
		ID:        uuid.New().String(),
		RoomID:    c.roomID,
		Type:      transport.EventTypePhaseChanged,
		Timestamp: c.clock.Now(),
		Data:      data,
	}
	if err := c.bus.Publish(ctx, c.roomID, env); err != nil {
		// Fire-and-forget: receivers self-heal from the next event's
		// deadline, so a dropped broadcast is not fatal.
		log.Warn().
			Err(err).
			Str("room_id", c.roomID).
			Str("phase", string(event.Phase)).
			Msg("phase broadcast failed")
	}

	log.Debug().
		Str("room_id", c.roomID).
		Str("phase", string(event.Phase)).
		Int("question_index", event.QuestionIndex).
		Time("phase_ends_at", event.Deadline()).
		Msg("phase transition emitted")

	c.scheduleLocked(ctx, event, duration)
	return nil
}

// completeLocked ends the game after the final results phase. Callers hold c.mu.
func (c *Clock) completeLocked(ctx context.Context) error {
	c.cancelTimerLocked()
	c.active = false

	payload := CompletedPayload{
		QuestionCount: c.schedule.QuestionCount(),
		CompletedAt:   c.clock.Now(),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal completion payload: %w", err)
	}
	env := &transport.Envelope{
		ID:        uuid.New().String(),
		RoomID:    c.roomID,
		Type:      transport.EventTypeGameCompleted,
		Timestamp: c.clock.Now(),
		Data:      data,
	}
	if err := c.bus.Publish(ctx, c.roomID, env); err != nil {
		log.Warn().Err(err).Str("room_id", c.roomID).Msg("completion broadcast failed")
	}

	log.Info().
		Str("room_id", c.roomID).
		Int("question_count", payload.QuestionCount).
		Msg("game completed")

	if c.onComplete != nil {
		go c.onComplete()
	}
	return nil
}

// scheduleLocked replaces the pending timer with one firing when the given
// event's phase expires. Callers hold c.mu.
func (c *Clock) scheduleLocked(ctx context.Context, event Event, wait time.Duration) {
	c.cancelTimerLocked()

	if wait < 0 {
		wait = 0
	}
	c.gen++
	gen := c.gen
	timer := c.clock.NewTimer(wait)
	c.timer = timer

	go func() {
		select {
		case <-timer.Chan():
			c.mu.Lock()
			live := c.active && c.gen == gen
			c.mu.Unlock()
			if live {
				c.advance(ctx)
			}
		case <-ctx.Done():
			stopAndDrainTimer(timer)
		}
	}()
}

// cancelTimerLocked stops the pending timer, if any. Callers hold c.mu.
func (c *Clock) cancelTimerLocked() {
	c.gen++
	if c.timer != nil {
		stopAndDrainTimer(c.timer)
		c.timer = nil
	}
}

// stopAndDrainTimer stops a timer and drains its channel so the waiting
// goroutine cannot leak a spurious fire.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
