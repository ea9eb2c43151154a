package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/hoot/go/internal/game/answers"
	"github.com/mcdev12/hoot/go/internal/game/election"
	"github.com/mcdev12/hoot/go/internal/game/phase"
	"github.com/mcdev12/hoot/go/internal/game/presence"
	"github.com/mcdev12/hoot/go/internal/models"
	"github.com/mcdev12/hoot/go/internal/transport"
	"github.com/rs/zerolog/log"
)

// tickInterval drives the locally-rendered countdown. Remaining time is
// always recomputed from the broadcast deadline, never decremented, so tick
// cadence only affects render smoothness.
const tickInterval = time.Second

// Recoverer fetches the authoritative last phase event for a room, letting a
// freshly-promoted driver with no local state resume mid-game.
type Recoverer interface {
	LastPhaseEvent(ctx context.Context, roomID string) (*phase.Event, bool, error)
}

// Callbacks are the UI-facing hooks a client registers with its coordinator.
// All are optional.
type Callbacks struct {
	// OnPhase fires once per applied phase transition.
	OnPhase func(event phase.Event)
	// OnTick fires every second with the remaining time in the current phase.
	OnTick func(remaining time.Duration, event phase.Event)
	// OnRoster fires with the full participant list on membership changes.
	OnRoster func(roster []models.Participant)
	// OnDriverChange fires when this client's driver role flips.
	OnDriverChange func(isDriver bool)
	// OnComplete fires when the game ends.
	OnComplete func()
	// OnFault fires on unrecoverable transport faults.
	OnFault func(err error)
}

// Config wires a Coordinator.
type Config struct {
	RoomID            string
	SessionID         string
	PreferredDriverID string
	Bus               transport.Bus
	Schedule          phase.Schedule
	// QuestionIDs maps question index to question ID for answer submission.
	QuestionIDs []string
	Scorer      answers.Scorer
	Clock       clockwork.Clock
	Recoverer   Recoverer
	Callbacks   Callbacks
	Presence    presence.Config
}

// Coordinator runs the synchronization protocol for one client in one room:
// presence in, election on every roster change, driver-only phase scheduling
// out, and idempotent application of whatever the room broadcasts back.
type Coordinator struct {
	roomID            string
	sessionID         string
	preferredDriverID string
	bus               transport.Bus
	clock             clockwork.Clock
	recoverer         Recoverer
	callbacks         Callbacks
	questionIDs       []string
	schedule          phase.Schedule

	tracker    *presence.Tracker
	state      *phase.State
	phaseClock *phase.Clock
	reconciler *answers.Reconciler
	status     *answers.Status

	mu           sync.Mutex
	joined       bool
	isDriver     bool
	roster       []models.Participant
	completed    bool
	broadcastSub transport.Subscription
	cancelLoops  context.CancelFunc
}

// New creates a coordinator for one client session.
func New(cfg Config) (*Coordinator, error) {
	if cfg.RoomID == "" || cfg.SessionID == "" {
		return nil, fmt.Errorf("coordinator requires room and session IDs")
	}
	if cfg.Bus == nil {
		return nil, fmt.Errorf("coordinator requires a transport bus")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}

	c := &Coordinator{
		roomID:            cfg.RoomID,
		sessionID:         cfg.SessionID,
		preferredDriverID: cfg.PreferredDriverID,
		bus:               cfg.Bus,
		clock:             cfg.Clock,
		recoverer:         cfg.Recoverer,
		callbacks:         cfg.Callbacks,
		questionIDs:       cfg.QuestionIDs,
		schedule:          cfg.Schedule,
		state:             phase.NewState(),
		status:            answers.NewStatus(),
	}

	presenceCfg := cfg.Presence
	presenceCfg.Bus = cfg.Bus
	presenceCfg.RoomID = cfg.RoomID
	if presenceCfg.Clock == nil {
		presenceCfg.Clock = cfg.Clock
	}
	tracker, err := presence.NewTracker(presenceCfg)
	if err != nil {
		return nil, fmt.Errorf("create presence tracker: %w", err)
	}
	c.tracker = tracker
	tracker.OnChange(c.handleRoster)
	tracker.OnFault(func(err error) {
		if c.callbacks.OnFault != nil {
			c.callbacks.OnFault(err)
		}
	})

	phaseClock, err := phase.NewClock(phase.ClockConfig{
		RoomID:     cfg.RoomID,
		SessionID:  cfg.SessionID,
		Schedule:   cfg.Schedule,
		Bus:        cfg.Bus,
		State:      c.state,
		Clock:      cfg.Clock,
		OnComplete: c.handleComplete,
	})
	if err != nil {
		return nil, fmt.Errorf("create phase clock: %w", err)
	}
	c.phaseClock = phaseClock

	if cfg.Scorer != nil {
		reconciler, err := answers.NewReconciler(answers.ReconcilerConfig{
			RoomID:    cfg.RoomID,
			SessionID: cfg.SessionID,
			Scorer:    cfg.Scorer,
			Bus:       cfg.Bus,
			Clock:     cfg.Clock,
		})
		if err != nil {
			return nil, fmt.Errorf("create answer reconciler: %w", err)
		}
		c.reconciler = reconciler
	}

	return c, nil
}

// Join connects the client to the room: broadcast subscription first so no
// phase event is missed, then presence, which triggers the first election.
func (c *Coordinator) Join(ctx context.Context) error {
	c.mu.Lock()
	if c.joined {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	sub, err := c.bus.Subscribe(ctx, c.roomID, func(env *transport.Envelope) {
		c.handleEnvelope(ctx, env)
	})
	if err != nil {
		return fmt.Errorf("subscribe room broadcasts: %w", err)
	}

	loopCtx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	c.joined = true
	c.broadcastSub = sub
	c.cancelLoops = cancel
	c.mu.Unlock()

	if err := c.tracker.Join(ctx, c.sessionID); err != nil {
		cancel()
		_ = sub.Unsubscribe()
		c.mu.Lock()
		c.joined = false
		c.broadcastSub = nil
		c.cancelLoops = nil
		c.mu.Unlock()
		return fmt.Errorf("join presence: %w", err)
	}

	go c.tickLoop(loopCtx)
	return nil
}

// Leave disconnects the client, cancelling local countdown timers and any
// pending driver transition before unsubscribing.
func (c *Coordinator) Leave(ctx context.Context) error {
	c.mu.Lock()
	if !c.joined {
		c.mu.Unlock()
		return nil
	}
	c.joined = false
	c.isDriver = false
	sub := c.broadcastSub
	cancel := c.cancelLoops
	c.broadcastSub = nil
	c.cancelLoops = nil
	c.mu.Unlock()

	c.phaseClock.Stop()
	if cancel != nil {
		cancel()
	}
	if err := c.tracker.Leave(ctx, c.sessionID); err != nil {
		log.Warn().Err(err).Str("room_id", c.roomID).Msg("presence leave failed")
	}
	if sub != nil {
		if err := sub.Unsubscribe(); err != nil {
			log.Warn().Err(err).Str("room_id", c.roomID).Msg("broadcast unsubscribe failed")
		}
	}
	c.state.Reset()
	return nil
}

// StartGame opens the first question. Only the current driver may start.
func (c *Coordinator) StartGame(ctx context.Context) error {
	c.mu.Lock()
	joined := c.joined
	c.mu.Unlock()
	if !joined {
		return ErrNotJoined
	}
	return c.phaseClock.StartGame(ctx)
}

// IsDriver reports whether this client currently owns phase transitions.
func (c *Coordinator) IsDriver() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isDriver
}

// Phase returns the currently-applied phase event, if any.
func (c *Coordinator) Phase() (phase.Event, bool) {
	return c.state.Current()
}

// Remaining returns the time left in the current phase.
func (c *Coordinator) Remaining() time.Duration {
	return c.state.Remaining(c.clock.Now())
}

// AnswerStatus exposes the driver's read-only "who has answered" view.
func (c *Coordinator) AnswerStatus() *answers.Status {
	return c.status
}

// Submit sends this participant's answer for the current question. Elapsed
// time is derived from the broadcast deadline, so it is consistent across
// clients regardless of when each one rendered the question.
func (c *Coordinator) Submit(ctx context.Context, answerIndex int) (*answers.Result, error) {
	c.mu.Lock()
	joined := c.joined
	c.mu.Unlock()
	if !joined {
		return nil, ErrNotJoined
	}
	if c.reconciler == nil {
		return nil, fmt.Errorf("no scorer configured")
	}
	if c.sessionID == c.preferredDriverID {
		return nil, ErrSpectator
	}

	current, ok := c.state.Current()
	if !ok || current.Phase != phase.PhaseQuestion {
		return nil, fmt.Errorf("no question is currently open")
	}
	if current.QuestionIndex >= len(c.questionIDs) {
		return nil, fmt.Errorf("question index %d out of range", current.QuestionIndex)
	}
	questionID := c.questionIDs[current.QuestionIndex]

	limit := c.schedule.QuestionDurations[current.QuestionIndex]
	elapsed := limit - current.Remaining(c.clock.Now())
	if elapsed < 0 {
		elapsed = 0
	}

	return c.reconciler.Submit(ctx, questionID, answerIndex, elapsed)
}

// handleRoster reacts to every presence change: re-elect, flip roles.
func (c *Coordinator) handleRoster(roster []models.Participant) {
	driverID, ok := election.Elect(roster, c.preferredDriverID)

	c.mu.Lock()
	c.roster = roster
	wasDriver := c.isDriver
	c.isDriver = ok && driverID == c.sessionID
	isDriver := c.isDriver
	joined := c.joined
	c.mu.Unlock()

	if c.callbacks.OnRoster != nil {
		c.callbacks.OnRoster(roster)
	}
	if !joined {
		return
	}

	if !ok {
		log.Debug().Str("room_id", c.roomID).Msg("presence set empty; no driver elected")
		return
	}

	switch {
	case isDriver && !wasDriver:
		c.promote()
	case !isDriver && wasDriver:
		c.phaseClock.Demote()
	}

	if isDriver != wasDriver && c.callbacks.OnDriverChange != nil {
		c.callbacks.OnDriverChange(isDriver)
	}
}

// promote assumes the driver role. With no local phase state (e.g. this
// client just reconnected) it first recovers the authoritative last event;
// failing that, the clock waits for the next broadcast or an explicit start.
func (c *Coordinator) promote() {
	ctx := context.Background()

	if _, ok := c.state.Current(); !ok && c.recoverer != nil {
		event, found, err := c.recoverer.LastPhaseEvent(ctx, c.roomID)
		if err != nil {
			log.Warn().Err(err).Str("room_id", c.roomID).Msg("phase state recovery failed")
		} else if found && c.state.Apply(*event) {
			log.Info().
				Str("room_id", c.roomID).
				Str("phase", string(event.Phase)).
				Int("question_index", event.QuestionIndex).
				Msg("recovered phase state for promotion")
			if c.callbacks.OnPhase != nil {
				c.callbacks.OnPhase(*event)
			}
		}
	}

	c.phaseClock.Promote(ctx)
}

// handleEnvelope applies one room broadcast idempotently.
func (c *Coordinator) handleEnvelope(ctx context.Context, env *transport.Envelope) {
	if env == nil {
		return
	}

	switch env.Type {
	case transport.EventTypePhaseChanged:
		event, ok := phase.DecodeEvent(env)
		if !ok {
			// Malformed or unknown payload: drop rather than crash.
			log.Debug().Str("room_id", c.roomID).Msg("dropped malformed phase event")
			return
		}
		if !c.state.Apply(event) {
			// Stale rank: out-of-order or duplicate delivery, or our own
			// echo. Silently discarded.
			return
		}
		if c.callbacks.OnPhase != nil {
			c.callbacks.OnPhase(event)
		}
		// A driver applying someone else's event lost a handover race;
		// realign its pending timer with the accepted state.
		if c.IsDriver() && event.EmittedBy != c.sessionID {
			c.phaseClock.Resync(ctx)
		}

	case transport.EventTypeAnswerSubmitted:
		if !c.status.Apply(env) {
			return
		}
		c.maybeCloseQuestion(ctx)

	case transport.EventTypeGameCompleted:
		c.handleComplete()

	default:
		log.Debug().
			Str("room_id", c.roomID).
			Str("type", string(env.Type)).
			Msg("dropped unknown envelope type")
	}
}

// maybeCloseQuestion advances question → results early once every expected
// participant has answered. Driver only; the creator is excluded from the
// expected count since it does not answer.
func (c *Coordinator) maybeCloseQuestion(ctx context.Context) {
	if !c.IsDriver() {
		return
	}
	current, ok := c.state.Current()
	if !ok || current.Phase != phase.PhaseQuestion {
		return
	}
	if current.QuestionIndex >= len(c.questionIDs) {
		return
	}
	questionID := c.questionIDs[current.QuestionIndex]

	c.mu.Lock()
	expected := 0
	for _, p := range c.roster {
		if p.SessionID != c.preferredDriverID {
			expected++
		}
	}
	c.mu.Unlock()

	if expected > 0 && c.status.Count(questionID) >= expected {
		if err := c.phaseClock.AllAnswersIn(ctx); err != nil {
			log.Warn().Err(err).Str("room_id", c.roomID).Msg("early question close failed")
		}
	}
}

// handleComplete fires the completion callback exactly once.
func (c *Coordinator) handleComplete() {
	c.mu.Lock()
	if c.completed {
		c.mu.Unlock()
		return
	}
	c.completed = true
	c.mu.Unlock()

	c.phaseClock.Demote()
	if c.callbacks.OnComplete != nil {
		c.callbacks.OnComplete()
	}
}

// tickLoop renders the countdown: once per second it recomputes remaining
// time from the last broadcast deadline. It never self-transitions phases.
func (c *Coordinator) tickLoop(ctx context.Context) {
	if c.callbacks.OnTick == nil {
		return
	}
	ticker := c.clock.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			current, ok := c.state.Current()
			if !ok {
				continue
			}
			c.callbacks.OnTick(current.Remaining(c.clock.Now()), current)
		}
	}
}
