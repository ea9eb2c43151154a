package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/hoot/go/internal/game/phase"
	"github.com/rs/zerolog/log"
)

// PhaseProvider fetches the authoritative last phase event for a room,
// implemented by the NATS bus's retained stream.
type PhaseProvider interface {
	LastPhaseEvent(ctx context.Context, roomID string) (*phase.Event, bool, error)
}

// RoomStateResponse is what a reconnecting client needs to resume rendering:
// the current phase and the remaining time derived from its deadline.
type RoomStateResponse struct {
	RoomID        string `json:"room_id"`
	Phase         string `json:"phase,omitempty"`
	QuestionIndex int    `json:"question_index"`
	PhaseEndsAt   int64  `json:"phase_ends_at,omitempty"`
	RemainingSec  int    `json:"remaining_sec"`
	HasState      bool   `json:"has_state"`
}

// StateHandler serves room phase state over HTTP for reconnecting clients.
type StateHandler struct {
	provider PhaseProvider
	clock    clockwork.Clock
}

// NewStateHandler creates a state handler.
func NewStateHandler(provider PhaseProvider, clock clockwork.Clock) *StateHandler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &StateHandler{provider: provider, clock: clock}
}

// HandleRoomState returns the room's current phase and remaining seconds.
func (h *StateHandler) HandleRoomState(w http.ResponseWriter, r *http.Request) {
	roomIDStr := r.URL.Query().Get("room_id")
	if roomIDStr == "" {
		http.Error(w, "room_id is required", http.StatusBadRequest)
		return
	}
	roomID, err := uuid.Parse(roomIDStr)
	if err != nil {
		http.Error(w, "invalid room_id format", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := RoomStateResponse{RoomID: roomID.String()}
	event, found, err := h.provider.LastPhaseEvent(ctx, roomID.String())
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID.String()).Msg("failed to fetch room phase state")
		http.Error(w, "failed to fetch room state", http.StatusInternalServerError)
		return
	}
	if found {
		resp.HasState = true
		resp.Phase = string(event.Phase)
		resp.QuestionIndex = event.QuestionIndex
		resp.PhaseEndsAt = event.PhaseEndsAt
		resp.RemainingSec = int(event.Remaining(h.clock.Now()).Seconds())
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error().Err(err).Msg("failed to encode room state response")
	}
}

// RegisterStateRoutes registers the state endpoint with an HTTP mux.
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/rooms/state", h.HandleRoomState)
}
