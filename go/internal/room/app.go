package room

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/hoot/go/internal/models"
	"github.com/rs/zerolog/log"
)

// RoomRepository defines what the app layer needs from the repository.
type RoomRepository interface {
	CreateRoom(ctx context.Context, req CreateRoomRequest) (*models.Room, error)
	GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error)
	GetRoomByCode(ctx context.Context, code string) (*models.Room, error)
	MarkStarted(ctx context.Context, id uuid.UUID, startedAt time.Time) (*models.Room, error)
	MarkCompleted(ctx context.Context, id uuid.UUID, completedAt time.Time) (*models.Room, error)
}

// App handles room lifecycle business logic.
type App struct {
	repo  RoomRepository
	clock clockwork.Clock
}

// NewApp creates a new room App.
func NewApp(repo RoomRepository, clock clockwork.Clock) *App {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &App{repo: repo, clock: clock}
}

// maxCodeAttempts bounds retries on join-code collisions.
const maxCodeAttempts = 5

// CreateRoom opens a new room for a quiz with a fresh join code.
func (a *App) CreateRoom(ctx context.Context, quizID uuid.UUID, hostID string) (*models.Room, error) {
	if hostID == "" {
		return nil, fmt.Errorf("host ID is required")
	}

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := GenerateCode()
		if err != nil {
			return nil, err
		}

		// A live room may already hold this code; regenerate instead of
		// colliding two concurrent games on one code.
		if _, err := a.repo.GetRoomByCode(ctx, code); err == nil {
			continue
		} else if !errors.Is(err, ErrCodeNotFound) {
			return nil, fmt.Errorf("failed to check room code: %w", err)
		}

		created, err := a.repo.CreateRoom(ctx, CreateRoomRequest{
			QuizID: quizID,
			Code:   code,
			HostID: hostID,
		})
		if err != nil {
			return nil, err
		}

		log.Info().
			Str("room_id", created.ID.String()).
			Str("code", created.Code).
			Str("host_id", hostID).
			Msg("room created")
		return created, nil
	}

	return nil, fmt.Errorf("could not allocate a unique room code after %d attempts", maxCodeAttempts)
}

// ResolveCode finds the live room for a join code. Codes are case-insensitive
// since players type them by hand.
func (a *App) ResolveCode(ctx context.Context, code string) (*models.Room, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != CodeLength {
		return nil, ErrCodeNotFound
	}

	found, err := a.repo.GetRoomByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if found.Status == models.RoomStatusCompleted {
		return nil, ErrRoomNotJoinable
	}
	return found, nil
}

// GetRoom retrieves a room by ID.
func (a *App) GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	return a.repo.GetRoom(ctx, id)
}

// StartRoom transitions a waiting room into play.
func (a *App) StartRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	current, err := a.repo.GetRoom(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != models.RoomStatusWaiting {
		return nil, ErrRoomNotWaiting
	}

	started, err := a.repo.MarkStarted(ctx, id, a.clock.Now())
	if err != nil {
		return nil, err
	}
	log.Info().Str("room_id", id.String()).Msg("room started")
	return started, nil
}

// CompleteRoom closes a room after its game ends. Idempotent: completing an
// already-completed room returns it unchanged.
func (a *App) CompleteRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	current, err := a.repo.GetRoom(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == models.RoomStatusCompleted {
		return current, nil
	}

	completed, err := a.repo.MarkCompleted(ctx, id, a.clock.Now())
	if err != nil {
		return nil, err
	}
	log.Info().Str("room_id", id.String()).Msg("room completed")
	return completed, nil
}
