package transport

import (
	"context"
	"encoding/json"
	"time"
)

// EventType identifies the payload carried by an Envelope.
type EventType string

const (
	EventTypePhaseChanged    EventType = "PhaseChanged"
	EventTypeGameCompleted   EventType = "GameCompleted"
	EventTypeAnswerSubmitted EventType = "AnswerSubmitted"
)

// Envelope is the wire frame for all room broadcast traffic. Data holds the
// event-specific payload; receivers that do not recognize Type drop the
// envelope rather than failing.
type Envelope struct {
	ID        string          `json:"id"`
	RoomID    string          `json:"room_id"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// PresenceEventType identifies membership signals on the presence channel.
type PresenceEventType string

const (
	PresenceJoin  PresenceEventType = "join"
	PresenceLeave PresenceEventType = "leave"
	// PresenceSync is a periodic re-announcement of an existing member. It
	// carries the member's original join time so receivers keep first-seen
	// ordering, and doubles as the liveness heartbeat.
	PresenceSync PresenceEventType = "sync"
)

// PresenceEvent is one membership signal for a room.
type PresenceEvent struct {
	Type      PresenceEventType `json:"type"`
	SessionID string            `json:"session_id"`
	JoinedAt  time.Time         `json:"joined_at"`
}

// Subscription is a handle to an active channel subscription.
type Subscription interface {
	Unsubscribe() error
}

// PresenceTransport carries membership signals for a room.
type PresenceTransport interface {
	// Announce publishes a presence event for the caller's own session.
	Announce(ctx context.Context, roomID string, event PresenceEvent) error
	// SubscribePresence delivers every presence event published to the room,
	// including the caller's own announcements.
	SubscribePresence(ctx context.Context, roomID string, handler func(PresenceEvent)) (Subscription, error)
}

// BroadcastTransport carries room-scoped event envelopes. Publish is
// fire-and-forget; delivery is best-effort-ordered and not exactly-once, so
// consumers must apply envelopes idempotently.
type BroadcastTransport interface {
	Publish(ctx context.Context, roomID string, env *Envelope) error
	Subscribe(ctx context.Context, roomID string, handler func(*Envelope)) (Subscription, error)
}

// Bus combines both channels of a room transport.
type Bus interface {
	PresenceTransport
	BroadcastTransport
}
