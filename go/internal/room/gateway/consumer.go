package gateway

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcdev12/hoot/go/internal/transport"
	"github.com/rs/zerolog/log"
)

// EventSource is the firehose of all rooms' broadcast envelopes, implemented
// by the NATS bus.
type EventSource interface {
	SubscribeAllEvents(ctx context.Context, handler func(*transport.Envelope)) (transport.Subscription, error)
}

// EventConsumer bridges room bus traffic to WebSocket clients: every envelope
// published to any room is fanned out to that room's connections.
type EventConsumer struct {
	connectionManager *ConnectionManager
	source            EventSource
	sub               transport.Subscription
}

// NewEventConsumer creates the bus-to-WebSocket bridge.
func NewEventConsumer(cm *ConnectionManager, source EventSource) *EventConsumer {
	return &EventConsumer{connectionManager: cm, source: source}
}

// Start begins consuming room events and blocks until the context ends.
func (ec *EventConsumer) Start(ctx context.Context) error {
	sub, err := ec.source.SubscribeAllEvents(ctx, ec.handleEnvelope)
	if err != nil {
		return fmt.Errorf("subscribe room firehose: %w", err)
	}
	ec.sub = sub

	log.Info().Msg("room event consumer started")
	<-ctx.Done()

	log.Info().Msg("room event consumer shutting down")
	return ec.Stop()
}

// Stop tears down the firehose subscription.
func (ec *EventConsumer) Stop() error {
	if ec.sub != nil {
		if err := ec.sub.Unsubscribe(); err != nil {
			return fmt.Errorf("unsubscribe room firehose: %w", err)
		}
		ec.sub = nil
	}
	return nil
}

func (ec *EventConsumer) handleEnvelope(env *transport.Envelope) {
	roomID, err := uuid.Parse(env.RoomID)
	if err != nil {
		log.Debug().Str("room_id", env.RoomID).Msg("dropped envelope with bad room ID")
		return
	}
	ec.connectionManager.BroadcastToRoom(roomID, env)
}
