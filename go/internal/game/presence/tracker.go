package presence

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/hoot/go/internal/models"
	"github.com/mcdev12/hoot/go/internal/transport"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultHeartbeatInterval is how often a tracker re-announces its own
	// presence. The announcement doubles as the transport liveness probe:
	// our own heartbeat must echo back through the subscription.
	DefaultHeartbeatInterval = 10 * time.Second
	// DefaultPresenceTTL is how long a member survives without a heartbeat
	// before it is reaped from the roster.
	DefaultPresenceTTL = 30 * time.Second
	// DefaultSyncTimeout is how long total channel silence is tolerated
	// before the tracker treats the subscription as broken and resubscribes.
	DefaultSyncTimeout = 30 * time.Second
	// DefaultMaxResubscribes bounds resubscription attempts before the fault
	// is surfaced to the caller.
	DefaultMaxResubscribes = 5
)

// Config wires a Tracker's collaborators and tuning.
type Config struct {
	Bus               transport.PresenceTransport
	RoomID            string
	Clock             clockwork.Clock
	HeartbeatInterval time.Duration
	PresenceTTL       time.Duration
	SyncTimeout       time.Duration
	MaxResubscribes   int
}

type memberState struct {
	participant models.Participant
	lastSeen    time.Time
}

// Tracker maintains the live participant set for one room. It announces the
// local session's presence over the pub/sub transport, folds everyone's
// join/leave/sync signals into a roster, and notifies listeners on every
// membership change.
//
// A member's JoinedAt is the first-seen timestamp and is never refreshed by
// later announcements, keeping driver election stable across reconnects.
type Tracker struct {
	bus    transport.PresenceTransport
	roomID string
	clock  clockwork.Clock

	heartbeatInterval time.Duration
	presenceTTL       time.Duration
	syncTimeout       time.Duration
	maxResubscribes   int

	mu        sync.Mutex
	members   map[string]*memberState
	self      *models.Participant
	sub       transport.Subscription
	cancel    context.CancelFunc
	lastEvent time.Time
	onChange  []func([]models.Participant)
	onFault   []func(error)
}

// NewTracker creates a presence tracker for one room.
func NewTracker(cfg Config) (*Tracker, error) {
	if cfg.Bus == nil {
		return nil, fmt.Errorf("presence tracker requires a transport")
	}
	if cfg.RoomID == "" {
		return nil, fmt.Errorf("presence tracker requires a room ID")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.PresenceTTL <= 0 {
		cfg.PresenceTTL = DefaultPresenceTTL
	}
	if cfg.SyncTimeout <= 0 {
		cfg.SyncTimeout = DefaultSyncTimeout
	}
	if cfg.MaxResubscribes <= 0 {
		cfg.MaxResubscribes = DefaultMaxResubscribes
	}

	return &Tracker{
		bus:               cfg.Bus,
		roomID:            cfg.RoomID,
		clock:             cfg.Clock,
		heartbeatInterval: cfg.HeartbeatInterval,
		presenceTTL:       cfg.PresenceTTL,
		syncTimeout:       cfg.SyncTimeout,
		maxResubscribes:   cfg.MaxResubscribes,
		members:           make(map[string]*memberState),
	}, nil
}

// OnChange registers a callback invoked with the full participant list on
// every membership change. Register before Join.
func (t *Tracker) OnChange(fn func([]models.Participant)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onChange = append(t.onChange, fn)
}

// OnFault registers a callback for unrecoverable transport faults.
func (t *Tracker) OnFault(fn func(error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onFault = append(t.onFault, fn)
}

// Join registers the local session's presence in the room and starts the
// heartbeat loop. Calling Join again with the same session ID is a no-op; the
// original JoinedAt is retained.
func (t *Tracker) Join(ctx context.Context, sessionID string) error {
	t.mu.Lock()
	if t.self != nil {
		already := t.self.SessionID
		t.mu.Unlock()
		if already == sessionID {
			return nil
		}
		return ErrAlreadyJoined
	}

	self := models.Participant{SessionID: sessionID, JoinedAt: t.clock.Now()}
	t.self = &self
	t.lastEvent = t.clock.Now()
	t.mu.Unlock()

	sub, err := t.bus.SubscribePresence(ctx, t.roomID, t.handleEvent)
	if err != nil {
		t.mu.Lock()
		t.self = nil
		t.mu.Unlock()
		return fmt.Errorf("subscribe presence: %w", err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	t.mu.Lock()
	t.sub = sub
	t.cancel = cancel
	t.mu.Unlock()

	if err := t.bus.Announce(ctx, t.roomID, transport.PresenceEvent{
		Type:      transport.PresenceJoin,
		SessionID: self.SessionID,
		JoinedAt:  self.JoinedAt,
	}); err != nil {
		// The heartbeat loop re-announces shortly; joining still succeeds.
		log.Warn().Err(err).Str("room_id", t.roomID).Msg("join announcement failed")
	}

	go t.run(loopCtx)

	log.Info().
		Str("room_id", t.roomID).
		Str("session_id", sessionID).
		Msg("joined room presence")
	return nil
}

// Leave withdraws the session from the room, stopping heartbeats and the
// subscription. Unknown session IDs are a no-op.
func (t *Tracker) Leave(ctx context.Context, sessionID string) error {
	t.mu.Lock()
	if t.self == nil || t.self.SessionID != sessionID {
		t.mu.Unlock()
		return nil
	}
	self := *t.self
	sub := t.sub
	cancel := t.cancel
	t.self = nil
	t.sub = nil
	t.cancel = nil
	delete(t.members, sessionID)
	t.mu.Unlock()

	if err := t.bus.Announce(ctx, t.roomID, transport.PresenceEvent{
		Type:      transport.PresenceLeave,
		SessionID: self.SessionID,
		JoinedAt:  self.JoinedAt,
	}); err != nil {
		log.Warn().Err(err).Str("room_id", t.roomID).Msg("leave announcement failed")
	}

	if cancel != nil {
		cancel()
	}
	if sub != nil {
		if err := sub.Unsubscribe(); err != nil {
			log.Warn().Err(err).Str("room_id", t.roomID).Msg("presence unsubscribe failed")
		}
	}

	log.Info().
		Str("room_id", t.roomID).
		Str("session_id", sessionID).
		Msg("left room presence")
	return nil
}

// Participants returns the current roster ordered by join time, then session
// ID — the same ordering driver election uses.
func (t *Tracker) Participants() []models.Participant {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rosterLocked()
}

func (t *Tracker) rosterLocked() []models.Participant {
	roster := make([]models.Participant, 0, len(t.members))
	for _, m := range t.members {
		roster = append(roster, m.participant)
	}
	sort.Slice(roster, func(i, j int) bool {
		if !roster[i].JoinedAt.Equal(roster[j].JoinedAt) {
			return roster[i].JoinedAt.Before(roster[j].JoinedAt)
		}
		return roster[i].SessionID < roster[j].SessionID
	})
	return roster
}

// handleEvent folds one presence signal into the roster.
func (t *Tracker) handleEvent(event transport.PresenceEvent) {
	t.mu.Lock()
	now := t.clock.Now()
	t.lastEvent = now

	changed := false
	switch event.Type {
	case transport.PresenceJoin, transport.PresenceSync:
		if event.SessionID == "" {
			t.mu.Unlock()
			return
		}
		if existing, ok := t.members[event.SessionID]; ok {
			// Known member: refresh liveness only. First-seen JoinedAt is
			// retained so election order never shifts under heartbeats.
			existing.lastSeen = now
		} else {
			joinedAt := event.JoinedAt
			if joinedAt.IsZero() {
				joinedAt = now
			}
			t.members[event.SessionID] = &memberState{
				participant: models.Participant{SessionID: event.SessionID, JoinedAt: joinedAt},
				lastSeen:    now,
			}
			changed = true
		}

	case transport.PresenceLeave:
		if _, ok := t.members[event.SessionID]; ok {
			delete(t.members, event.SessionID)
			changed = true
		}

	default:
		// Unknown signal type: drop.
	}

	var roster []models.Participant
	var callbacks []func([]models.Participant)
	if changed {
		roster = t.rosterLocked()
		callbacks = append(callbacks, t.onChange...)
	}
	t.mu.Unlock()

	for _, fn := range callbacks {
		fn(roster)
	}
}

// run drives heartbeats, roster reaping and silence detection until the
// tracker leaves the room or its context ends.
func (t *Tracker) run(ctx context.Context) {
	ticker := t.clock.NewTicker(t.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			t.heartbeat(ctx)
			t.reap()
			t.checkSilence(ctx)
		}
	}
}

// heartbeat re-announces the local session with its original join time.
func (t *Tracker) heartbeat(ctx context.Context) {
	t.mu.Lock()
	if t.self == nil {
		t.mu.Unlock()
		return
	}
	self := *t.self
	t.mu.Unlock()

	if err := t.bus.Announce(ctx, t.roomID, transport.PresenceEvent{
		Type:      transport.PresenceSync,
		SessionID: self.SessionID,
		JoinedAt:  self.JoinedAt,
	}); err != nil {
		log.Warn().Err(err).Str("room_id", t.roomID).Msg("presence heartbeat failed")
	}
}

// reap drops members whose heartbeats stopped, firing OnChange if the roster
// shrank. A transport-level disconnect drops presence silently; this is how
// the rest of the room eventually observes it.
func (t *Tracker) reap() {
	t.mu.Lock()
	now := t.clock.Now()
	changed := false
	for id, m := range t.members {
		if now.Sub(m.lastSeen) > t.presenceTTL {
			delete(t.members, id)
			changed = true
			log.Debug().
				Str("room_id", t.roomID).
				Str("session_id", id).
				Msg("reaped silent participant")
		}
	}

	var roster []models.Participant
	var callbacks []func([]models.Participant)
	if changed {
		roster = t.rosterLocked()
		callbacks = append(callbacks, t.onChange...)
	}
	t.mu.Unlock()

	for _, fn := range callbacks {
		fn(roster)
	}
}

// checkSilence resubscribes when nothing — not even our own heartbeat echo —
// has arrived within the sync timeout, backing off between attempts and
// surfacing ErrChannelDisconnected once attempts are exhausted.
func (t *Tracker) checkSilence(ctx context.Context) {
	t.mu.Lock()
	if t.self == nil || t.clock.Now().Sub(t.lastEvent) <= t.syncTimeout {
		t.mu.Unlock()
		return
	}
	oldSub := t.sub
	t.sub = nil
	t.mu.Unlock()

	log.Warn().
		Str("room_id", t.roomID).
		Dur("silence", t.syncTimeout).
		Msg("presence channel silent; resubscribing")

	if oldSub != nil {
		_ = oldSub.Unsubscribe()
	}

	for attempt := 1; attempt <= t.maxResubscribes; attempt++ {
		sub, err := t.bus.SubscribePresence(ctx, t.roomID, t.handleEvent)
		if err == nil {
			t.mu.Lock()
			t.sub = sub
			t.lastEvent = t.clock.Now()
			t.mu.Unlock()
			t.heartbeat(ctx)
			log.Info().
				Str("room_id", t.roomID).
				Int("attempt", attempt).
				Msg("presence channel resubscribed")
			return
		}

		log.Warn().
			Err(err).
			Str("room_id", t.roomID).
			Int("attempt", attempt).
			Msg("presence resubscribe failed")

		select {
		case <-ctx.Done():
			return
		case <-t.clock.After(time.Duration(attempt) * time.Second):
		}
	}

	t.mu.Lock()
	callbacks := append([]func(error){}, t.onFault...)
	t.mu.Unlock()
	for _, fn := range callbacks {
		fn(ErrChannelDisconnected)
	}
}
