package room

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/hoot/go/internal/models"
)

// CreateRoomRequest holds the fields needed to persist a new room.
type CreateRoomRequest struct {
	QuizID uuid.UUID
	Code   string
	HostID string
}

// Repository implements room data access over Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new room repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const roomColumns = `id, quiz_id, code, host_id, status, started_at, completed_at, created_at, updated_at`

func scanRoom(row pgx.Row) (*models.Room, error) {
	var r models.Room
	err := row.Scan(&r.ID, &r.QuizID, &r.Code, &r.HostID, &r.Status,
		&r.StartedAt, &r.CompletedAt, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateRoom inserts a room in WAITING status.
func (r *Repository) CreateRoom(ctx context.Context, req CreateRoomRequest) (*models.Room, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO rooms (id, quiz_id, code, host_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		RETURNING `+roomColumns,
		uuid.New(), req.QuizID, req.Code, req.HostID, models.RoomStatusWaiting)

	room, err := scanRoom(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create room: %w", err)
	}
	return room, nil
}

// GetRoom retrieves a room by ID.
func (r *Repository) GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = $1`, id)
	room, err := scanRoom(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("failed to get room: %w", err)
	}
	return room, nil
}

// GetRoomByCode retrieves a room by its join code. Completed rooms release
// their code for reuse, so only live rooms match.
func (r *Repository) GetRoomByCode(ctx context.Context, code string) (*models.Room, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+roomColumns+` FROM rooms
		WHERE code = $1 AND status != $2
		ORDER BY created_at DESC
		LIMIT 1`, code, models.RoomStatusCompleted)

	room, err := scanRoom(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCodeNotFound
		}
		return nil, fmt.Errorf("failed to get room by code: %w", err)
	}
	return room, nil
}

// MarkStarted transitions a room to IN_PROGRESS with its start time.
func (r *Repository) MarkStarted(ctx context.Context, id uuid.UUID, startedAt time.Time) (*models.Room, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE rooms
		SET status = $2, started_at = $3, updated_at = now()
		WHERE id = $1
		RETURNING `+roomColumns,
		id, models.RoomStatusInProgress, startedAt)

	room, err := scanRoom(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("failed to mark room started: %w", err)
	}
	return room, nil
}

// MarkCompleted transitions a room to COMPLETED with its completion time.
func (r *Repository) MarkCompleted(ctx context.Context, id uuid.UUID, completedAt time.Time) (*models.Room, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE rooms
		SET status = $2, completed_at = $3, updated_at = now()
		WHERE id = $1
		RETURNING `+roomColumns,
		id, models.RoomStatusCompleted, completedAt)

	room, err := scanRoom(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("failed to mark room completed: %w", err)
	}
	return room, nil
}
