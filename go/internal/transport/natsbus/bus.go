package natsbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mcdev12/hoot/go/internal/game/phase"
	"github.com/mcdev12/hoot/go/internal/transport"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// Config holds NATS connection and stream settings for the room bus.
type Config struct {
	URL           string
	StreamName    string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
	MaxAge        time.Duration
}

// DefaultConfig returns the default room bus configuration.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		StreamName:    "HOOT_EVENTS",
		SubjectPrefix: "hoot.room",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		MaxAge:        24 * time.Hour,
	}
}

// Bus is the production transport.Bus: presence and broadcast traffic ride
// core NATS subjects per room, while a JetStream stream retains the last
// phase event per room so a promoted or late-joining driver can recover
// authoritative phase state without event replay.
type Bus struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config Config
}

// New connects to NATS and ensures the phase retention stream exists.
func New(cfg Config) (*Bus, error) {
	if cfg.URL == "" {
		cfg = DefaultConfig()
	}

	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	b := &Bus{nc: nc, js: js, config: cfg}
	if err := b.ensureStream(context.Background()); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}
	return b, nil
}

// ensureStream creates the phase retention stream if it does not exist. One
// message per phase subject is enough: only the latest event matters.
func (b *Bus) ensureStream(ctx context.Context) error {
	sc := jetstream.StreamConfig{
		Name:              b.config.StreamName,
		Description:       "Last phase event per room for driver recovery",
		Subjects:          []string{fmt.Sprintf("%s.*.events.phase", b.config.SubjectPrefix)},
		Retention:         jetstream.LimitsPolicy,
		MaxMsgsPerSubject: 1,
		MaxAge:            b.config.MaxAge,
		Storage:           jetstream.FileStorage,
	}

	if _, err := b.js.Stream(ctx, b.config.StreamName); err != nil {
		if _, err = b.js.CreateStream(ctx, sc); err != nil {
			return fmt.Errorf("create stream: %w", err)
		}
		log.Info().Str("stream", b.config.StreamName).Msg("created JetStream stream")
	}
	return nil
}

func (b *Bus) presenceSubject(roomID string) string {
	return fmt.Sprintf("%s.%s.presence", b.config.SubjectPrefix, roomID)
}

func (b *Bus) eventSubject(roomID string, eventType transport.EventType) string {
	suffix := "misc"
	switch eventType {
	case transport.EventTypePhaseChanged:
		suffix = "phase"
	case transport.EventTypeAnswerSubmitted:
		suffix = "answers"
	case transport.EventTypeGameCompleted:
		suffix = "completed"
	}
	return fmt.Sprintf("%s.%s.events.%s", b.config.SubjectPrefix, roomID, suffix)
}

func (b *Bus) eventWildcard(roomID string) string {
	return fmt.Sprintf("%s.%s.events.>", b.config.SubjectPrefix, roomID)
}

// Announce publishes a presence event for the room.
func (b *Bus) Announce(_ context.Context, roomID string, event transport.PresenceEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal presence event: %w", err)
	}
	if err := b.nc.Publish(b.presenceSubject(roomID), data); err != nil {
		return fmt.Errorf("publish presence event: %w", err)
	}
	return nil
}

// SubscribePresence delivers the room's presence events to the handler.
// Malformed messages are dropped.
func (b *Bus) SubscribePresence(_ context.Context, roomID string, handler func(transport.PresenceEvent)) (transport.Subscription, error) {
	sub, err := b.nc.Subscribe(b.presenceSubject(roomID), func(msg *nats.Msg) {
		var event transport.PresenceEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			log.Debug().Err(err).Str("subject", msg.Subject).Msg("dropped malformed presence message")
			return
		}
		handler(event)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe presence: %w", err)
	}
	return natsSubscription{sub: sub}, nil
}

// Publish broadcasts an envelope to the room, fire-and-forget. Phase events
// land on the JetStream-retained subject; everything else is ephemeral.
func (b *Bus) Publish(_ context.Context, roomID string, env *transport.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := b.nc.Publish(b.eventSubject(roomID, env.Type), data); err != nil {
		return fmt.Errorf("publish envelope: %w", err)
	}
	return nil
}

// Subscribe delivers all of the room's broadcast envelopes to the handler.
func (b *Bus) Subscribe(_ context.Context, roomID string, handler func(*transport.Envelope)) (transport.Subscription, error) {
	sub, err := b.nc.Subscribe(b.eventWildcard(roomID), func(msg *nats.Msg) {
		var env transport.Envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			log.Debug().Err(err).Str("subject", msg.Subject).Msg("dropped malformed envelope")
			return
		}
		handler(&env)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe room events: %w", err)
	}
	return natsSubscription{sub: sub}, nil
}

// SubscribeAllEvents delivers every room's broadcast envelopes, for fanout
// gateways bridging room traffic to WebSocket clients. The envelope's RoomID
// identifies the room.
func (b *Bus) SubscribeAllEvents(_ context.Context, handler func(*transport.Envelope)) (transport.Subscription, error) {
	subject := fmt.Sprintf("%s.*.events.>", b.config.SubjectPrefix)
	sub, err := b.nc.Subscribe(subject, func(msg *nats.Msg) {
		var env transport.Envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			log.Debug().Err(err).Str("subject", msg.Subject).Msg("dropped malformed envelope")
			return
		}
		handler(&env)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe all room events: %w", err)
	}
	return natsSubscription{sub: sub}, nil
}

// LastPhaseEvent fetches the retained last phase event for a room, if any.
// Implements the coordinator's Recoverer.
func (b *Bus) LastPhaseEvent(ctx context.Context, roomID string) (*phase.Event, bool, error) {
	stream, err := b.js.Stream(ctx, b.config.StreamName)
	if err != nil {
		return nil, false, fmt.Errorf("get stream: %w", err)
	}

	raw, err := stream.GetLastMsgForSubject(ctx, b.eventSubject(roomID, transport.EventTypePhaseChanged))
	if err != nil {
		if errors.Is(err, jetstream.ErrMsgNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get last phase message: %w", err)
	}

	var env transport.Envelope
	if err := json.Unmarshal(raw.Data, &env); err != nil {
		return nil, false, fmt.Errorf("unmarshal retained envelope: %w", err)
	}
	event, ok := phase.DecodeEvent(&env)
	if !ok {
		return nil, false, nil
	}
	return &event, true, nil
}

// Close drains the NATS connection.
func (b *Bus) Close() {
	if b.nc != nil {
		b.nc.Close()
	}
}

type natsSubscription struct {
	sub *nats.Subscription
}

func (s natsSubscription) Unsubscribe() error {
	return s.sub.Unsubscribe()
}
