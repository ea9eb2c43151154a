package gateway

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/hoot/go/internal/transport"
	"github.com/rs/zerolog/log"
)

// Bridge is everything the gateway needs from the room bus: the event
// firehose plus retained phase state.
type Bridge interface {
	EventSource
	PhaseProvider
}

// Service is the room gateway: it accepts WebSocket connections from clients
// and relays every room broadcast to them.
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	eventConsumer     *EventConsumer
	stateHandler      *StateHandler
}

// NewService creates a room gateway service.
func NewService(config ConnectionConfig, bridge Bridge, clock clockwork.Clock) *Service {
	cm := NewConnectionManager(config)
	return &Service{
		connectionManager: cm,
		wsHandler:         NewWebSocketHandler(cm),
		eventConsumer:     NewEventConsumer(cm, bridge),
		stateHandler:      NewStateHandler(bridge, clock),
	}
}

// Start runs the gateway until the context ends.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting room gateway service")

	go s.connectionManager.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.eventConsumer.Start(ctx)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	log.Info().Msg("room gateway service shutting down")
	return nil
}

// RegisterRoutes registers the gateway's HTTP routes.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)
	log.Info().Msg("room gateway routes registered")
}

// BroadcastEvent pushes an envelope to a room's WebSocket clients directly,
// bypassing the bus. Useful in tests.
func (s *Service) BroadcastEvent(roomID uuid.UUID, env *transport.Envelope) {
	s.connectionManager.BroadcastToRoom(roomID, env)
}

// GetStats returns connection statistics.
func (s *Service) GetStats() Stats {
	return s.connectionManager.GetConnectionStats()
}
