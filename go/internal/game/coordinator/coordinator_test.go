package coordinator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mcdev12/hoot/go/internal/game/answers"
	"github.com/mcdev12/hoot/go/internal/game/phase"
	"github.com/mcdev12/hoot/go/internal/game/presence"
	"github.com/mcdev12/hoot/go/internal/transport"
	"github.com/mcdev12/hoot/go/internal/transport/membus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeScorer struct {
	mu    sync.Mutex
	calls int
}

func (s *fakeScorer) SubmitAnswer(_ context.Context, _ answers.SubmitAnswerRequest) (*answers.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return &answers.Result{IsCorrect: true, PointsEarned: 100, NewTotalScore: 100 * s.calls}, nil
}

type fakeRecoverer struct {
	event *phase.Event
}

func (r *fakeRecoverer) LastPhaseEvent(_ context.Context, _ string) (*phase.Event, bool, error) {
	if r.event == nil {
		return nil, false, nil
	}
	return r.event, true, nil
}

// phaseLog collects applied phase transitions in order.
type phaseLog struct {
	mu     sync.Mutex
	events []phase.Event
}

func (l *phaseLog) record(event phase.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *phaseLog) snapshot() []phase.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]phase.Event(nil), l.events...)
}

func testSchedule(questions int) phase.Schedule {
	durations := make([]time.Duration, questions)
	for i := range durations {
		durations[i] = 250 * time.Millisecond
	}
	return phase.Schedule{
		QuestionDurations: durations,
		ResultsDuration:   120 * time.Millisecond,
		CountdownDuration: 80 * time.Millisecond,
	}
}

func testPresence() presence.Config {
	return presence.Config{
		HeartbeatInterval: 20 * time.Millisecond,
		PresenceTTL:       400 * time.Millisecond,
		SyncTimeout:       2 * time.Second,
	}
}

func newTestCoordinator(t *testing.T, bus transport.Bus, sessionID, preferred string, cfg Config) *Coordinator {
	t.Helper()
	cfg.RoomID = "room-1"
	cfg.SessionID = sessionID
	cfg.PreferredDriverID = preferred
	cfg.Bus = bus
	if cfg.Schedule.QuestionCount() == 0 {
		cfg.Schedule = testSchedule(2)
	}
	if cfg.QuestionIDs == nil {
		cfg.QuestionIDs = []string{"q-1", "q-2"}
	}
	cfg.Presence = testPresence()

	c, err := New(cfg)
	require.NoError(t, err)
	return c
}

func TestCoordinatorElectsPreferredDriver(t *testing.T) {
	bus := membus.New()
	defer bus.Close()
	ctx := context.Background()

	creator := newTestCoordinator(t, bus, "creator", "creator", Config{})
	player := newTestCoordinator(t, bus, "player", "creator", Config{})

	require.NoError(t, creator.Join(ctx))
	require.NoError(t, player.Join(ctx))
	defer creator.Leave(ctx)
	defer player.Leave(ctx)

	// The creator drives whenever present, regardless of join order.
	assert.Eventually(t, func() bool {
		return creator.IsDriver() && !player.IsDriver()
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCoordinatorFullGame(t *testing.T) {
	bus := membus.New()
	defer bus.Close()
	ctx := context.Background()
	scorer := &fakeScorer{}

	var creatorLog, playerLog phaseLog
	creatorDone := make(chan struct{})
	playerDone := make(chan struct{})

	creator := newTestCoordinator(t, bus, "creator", "creator", Config{
		Scorer: scorer,
		Callbacks: Callbacks{
			OnPhase:    creatorLog.record,
			OnComplete: func() { close(creatorDone) },
		},
	})
	player := newTestCoordinator(t, bus, "player", "creator", Config{
		Scorer: scorer,
		Callbacks: Callbacks{
			OnPhase:    playerLog.record,
			OnComplete: func() { close(playerDone) },
		},
	})

	require.NoError(t, creator.Join(ctx))
	require.NoError(t, player.Join(ctx))
	defer creator.Leave(ctx)
	defer player.Leave(ctx)

	require.Eventually(t, creator.IsDriver, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, creator.StartGame(ctx))

	// The player answers question 0 as soon as it opens.
	require.Eventually(t, func() bool {
		current, ok := player.Phase()
		return ok && current.Phase == phase.PhaseQuestion && current.QuestionIndex == 0
	}, 2*time.Second, 10*time.Millisecond)

	result, err := player.Submit(ctx, 1)
	require.NoError(t, err)
	assert.True(t, result.IsCorrect)
	assert.Equal(t, 100, result.NewTotalScore)

	// Answering twice never reaches the scorer again.
	_, err = player.Submit(ctx, 2)
	assert.ErrorIs(t, err, answers.ErrAlreadyAnswered)

	// The creator never answers.
	_, err = creator.Submit(ctx, 0)
	assert.ErrorIs(t, err, ErrSpectator)

	for _, done := range []chan struct{}{creatorDone, playerDone} {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("game never completed")
		}
	}

	// Both clients applied the same ordered progression through both
	// questions, ending on the final results phase.
	for _, events := range [][]phase.Event{creatorLog.snapshot(), playerLog.snapshot()} {
		require.NotEmpty(t, events)
		last := 0
		for i, event := range events {
			require.True(t, event.Rank() > last || i == 0, "phase ranks must be strictly increasing")
			last = event.Rank()
		}
		final := events[len(events)-1]
		assert.Equal(t, phase.PhaseResults, final.Phase)
		assert.Equal(t, 1, final.QuestionIndex)
	}

	scorer.mu.Lock()
	calls := scorer.calls
	scorer.mu.Unlock()
	assert.Equal(t, 1, calls)
}

func TestCoordinatorDriverHandover(t *testing.T) {
	bus := membus.New()
	defer bus.Close()
	ctx := context.Background()

	a := newTestCoordinator(t, bus, "session-a", "", Config{})
	require.NoError(t, a.Join(ctx))

	// Let A establish the earlier join time before B appears.
	require.Eventually(t, a.IsDriver, 2*time.Second, 10*time.Millisecond)

	b := newTestCoordinator(t, bus, "session-b", "", Config{})
	require.NoError(t, b.Join(ctx))
	defer b.Leave(ctx)

	// The earliest joiner keeps the role while present.
	require.Eventually(t, func() bool {
		return a.IsDriver() && !b.IsDriver()
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, a.Leave(ctx))

	assert.Eventually(t, b.IsDriver, 2*time.Second, 10*time.Millisecond)
}

func TestCoordinatorPromotionRecoversPhaseState(t *testing.T) {
	bus := membus.New()
	defer bus.Close()
	ctx := context.Background()

	recovered := phase.Event{
		Phase:         phase.PhaseQuestion,
		QuestionIndex: 1,
		PhaseEndsAt:   time.Now().Add(150 * time.Millisecond).UnixMilli(),
		EmittedBy:     "departed-driver",
	}

	var log phaseLog
	c := newTestCoordinator(t, bus, "session-a", "", Config{
		Recoverer: &fakeRecoverer{event: &recovered},
		Callbacks: Callbacks{OnPhase: log.record},
	})

	require.NoError(t, c.Join(ctx))
	defer c.Leave(ctx)

	// Promotion with no local state pulls the authoritative last event and
	// resumes mid-game rather than restarting from question 0.
	require.Eventually(t, func() bool {
		current, ok := c.Phase()
		return ok && current.QuestionIndex == 1 && current.Phase == phase.PhaseQuestion
	}, 2*time.Second, 10*time.Millisecond)

	// The recovered deadline expires and the new driver emits results.
	assert.Eventually(t, func() bool {
		current, ok := c.Phase()
		return ok && current.Phase == phase.PhaseResults && current.QuestionIndex == 1
	}, 2*time.Second, 10*time.Millisecond)

	events := log.snapshot()
	require.NotEmpty(t, events)
	assert.Equal(t, recovered, events[0])
}

func TestCoordinatorStartGameRequiresJoin(t *testing.T) {
	bus := membus.New()
	defer bus.Close()

	c := newTestCoordinator(t, bus, "session-a", "", Config{})
	assert.ErrorIs(t, c.StartGame(context.Background()), ErrNotJoined)

	_, err := c.Submit(context.Background(), 0)
	assert.ErrorIs(t, err, ErrNotJoined)
}
