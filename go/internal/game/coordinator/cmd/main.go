package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/hoot/go/clients/scoring_client"
	"github.com/mcdev12/hoot/go/internal/dbconfig"
	"github.com/mcdev12/hoot/go/internal/game/answers"
	"github.com/mcdev12/hoot/go/internal/game/coordinator"
	"github.com/mcdev12/hoot/go/internal/game/phase"
	"github.com/mcdev12/hoot/go/internal/models"
	"github.com/mcdev12/hoot/go/internal/quiz"
	"github.com/mcdev12/hoot/go/internal/room"
	"github.com/mcdev12/hoot/go/internal/transport/natsbus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Headless room runner: joins a room as the creator session, drives the game
// to completion, and marks the room completed. Player clients join the same
// room with their own session IDs and a scoring client.
func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	roomID, err := uuid.Parse(os.Getenv("ROOM_ID"))
	if err != nil {
		log.Fatal().Err(err).Msg("ROOM_ID environment variable is required")
	}
	natsURL := getEnv("NATS_URL", "nats://localhost:4222")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database configuration
	dbCfg := dbconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(ctx, dbCfg.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}

	roomApp := room.NewApp(room.NewRepository(pool), clockwork.NewRealClock())
	quizApp := quiz.NewApp(quiz.NewRepository(pool))

	current, err := roomApp.GetRoom(ctx, roomID)
	if err != nil {
		log.Fatal().Err(err).Str("room_id", roomID.String()).Msg("failed to load room")
	}
	if current.Status == models.RoomStatusCompleted {
		log.Fatal().Str("room_id", roomID.String()).Msg("room already completed")
	}

	plan, err := quizApp.BuildGamePlan(ctx, current.QuizID)
	if err != nil {
		log.Fatal().Err(err).Str("quiz_id", current.QuizID.String()).Msg("failed to build game plan")
	}

	busCfg := natsbus.DefaultConfig()
	busCfg.URL = natsURL
	bus, err := natsbus.New(busCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to NATS")
	}
	defer bus.Close()

	log.Info().
		Str("room_id", roomID.String()).
		Str("quiz", plan.Quiz.Title).
		Int("questions", len(plan.Questions)).
		Str("nats_url", natsURL).
		Msg("starting room runner")

	// The runner authenticates as the room's host, which makes it the
	// preferred driver and a non-answering spectator.
	sessionID := current.HostID

	var scorer answers.Scorer
	if baseURL := os.Getenv("SCORING_BASE_URL"); baseURL != "" {
		scorer = scoring_client.NewScoringClient(baseURL, os.Getenv("SCORING_API_KEY"))
	}

	done := make(chan struct{})
	promoted := make(chan struct{}, 1)
	coord, err := coordinator.New(coordinator.Config{
		RoomID:            roomID.String(),
		SessionID:         sessionID,
		PreferredDriverID: current.HostID,
		Bus:               bus,
		Schedule:          plan.Schedule,
		QuestionIDs:       plan.QuestionIDs,
		Scorer:            scorer,
		Recoverer:         bus,
		Callbacks: coordinator.Callbacks{
			OnPhase: func(event phase.Event) {
				log.Info().
					Str("phase", string(event.Phase)).
					Int("question_index", event.QuestionIndex).
					Time("ends_at", event.Deadline()).
					Msg("phase applied")
			},
			OnRoster: func(roster []models.Participant) {
				log.Info().Int("participants", len(roster)).Msg("roster changed")
			},
			OnDriverChange: func(isDriver bool) {
				log.Info().Bool("is_driver", isDriver).Msg("driver role changed")
				if isDriver {
					select {
					case promoted <- struct{}{}:
					default:
					}
				}
			},
			OnComplete: func() { close(done) },
			OnFault: func(err error) {
				log.Error().Err(err).Msg("room channel fault")
			},
		},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create coordinator")
	}

	if err := coord.Join(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to join room")
	}

	// Election runs off the first presence echo; wait for promotion before
	// opening the game.
	select {
	case <-promoted:
	case <-time.After(30 * time.Second):
		log.Fatal().Msg("never promoted to driver; is another host session present?")
	}

	if current.Status == models.RoomStatusWaiting {
		if _, err := roomApp.StartRoom(ctx, roomID); err != nil {
			log.Fatal().Err(err).Msg("failed to start room")
		}
	}
	if err := coord.StartGame(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start game")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-done:
		if _, err := roomApp.CompleteRoom(ctx, roomID); err != nil {
			log.Error().Err(err).Msg("failed to mark room completed")
		}
		log.Info().Str("room_id", roomID.String()).Msg("game completed")
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	}

	if err := coord.Leave(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to leave room cleanly")
	}
	log.Info().Msg("room runner shutdown complete")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
