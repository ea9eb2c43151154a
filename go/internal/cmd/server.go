package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/hoot/go/internal/quiz"
	"github.com/mcdev12/hoot/go/internal/room"
	"github.com/mcdev12/hoot/go/internal/room/gateway"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
)

func setupServer(config *Config, services *Services, gatewayService *gateway.Service) *http.Server {
	mux := http.NewServeMux()

	// Setup CORS middleware
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	registerRoomRoutes(mux, services)

	// WebSocket and room state routes
	gatewayService.RegisterRoutes(mux)

	setupHealthCheck(mux)

	handler := c.Handler(mux)

	return &http.Server{
		Addr:         fmt.Sprintf(":%s", config.port()),
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

func registerRoomRoutes(mux *http.ServeMux, services *Services) {
	mux.HandleFunc("/api/rooms", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		handleCreateRoom(w, r, services)
	})

	mux.HandleFunc("/api/rooms/resolve", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		handleResolveCode(w, r, services)
	})

	mux.HandleFunc("/api/rooms/start", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		handleStartRoom(w, r, services)
	})
}

type createRoomRequest struct {
	QuizID string `json:"quiz_id"`
	HostID string `json:"host_id"`
}

func handleCreateRoom(w http.ResponseWriter, r *http.Request, services *Services) {
	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	quizID, err := uuid.Parse(req.QuizID)
	if err != nil {
		http.Error(w, "invalid quiz_id", http.StatusBadRequest)
		return
	}

	// The quiz must exist and be playable before a room opens on it.
	if _, err := services.Quizzes.BuildGamePlan(r.Context(), quizID); err != nil {
		writeRoomError(w, err)
		return
	}

	created, err := services.Rooms.CreateRoom(r.Context(), quizID, req.HostID)
	if err != nil {
		writeRoomError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func handleResolveCode(w http.ResponseWriter, r *http.Request, services *Services) {
	code := r.URL.Query().Get("code")
	found, err := services.Rooms.ResolveCode(r.Context(), code)
	if err != nil {
		writeRoomError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, found)
}

type startRoomRequest struct {
	RoomID string `json:"room_id"`
}

func handleStartRoom(w http.ResponseWriter, r *http.Request, services *Services) {
	var req startRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	roomID, err := uuid.Parse(req.RoomID)
	if err != nil {
		http.Error(w, "invalid room_id", http.StatusBadRequest)
		return
	}

	started, err := services.Rooms.StartRoom(r.Context(), roomID)
	if err != nil {
		writeRoomError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, started)
}

func writeRoomError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, room.ErrRoomNotFound), errors.Is(err, room.ErrCodeNotFound), errors.Is(err, quiz.ErrQuizNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, room.ErrRoomNotJoinable), errors.Is(err, room.ErrRoomNotWaiting), errors.Is(err, quiz.ErrNoQuestions):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		log.Error().Err(err).Msg("room request failed")
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}

func setupHealthCheck(mux *http.ServeMux) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})
}
