package room

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/hoot/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRoomRepo is an in-memory RoomRepository.
type fakeRoomRepo struct {
	rooms  map[uuid.UUID]*models.Room
	byCode map[string]uuid.UUID
}

func newFakeRoomRepo() *fakeRoomRepo {
	return &fakeRoomRepo{
		rooms:  make(map[uuid.UUID]*models.Room),
		byCode: make(map[string]uuid.UUID),
	}
}

func (r *fakeRoomRepo) CreateRoom(_ context.Context, req CreateRoomRequest) (*models.Room, error) {
	created := &models.Room{
		ID:     uuid.New(),
		QuizID: req.QuizID,
		Code:   req.Code,
		HostID: req.HostID,
		Status: models.RoomStatusWaiting,
	}
	r.rooms[created.ID] = created
	r.byCode[created.Code] = created.ID
	return created, nil
}

func (r *fakeRoomRepo) GetRoom(_ context.Context, id uuid.UUID) (*models.Room, error) {
	found, ok := r.rooms[id]
	if !ok {
		return nil, ErrRoomNotFound
	}
	copied := *found
	return &copied, nil
}

func (r *fakeRoomRepo) GetRoomByCode(_ context.Context, code string) (*models.Room, error) {
	id, ok := r.byCode[code]
	if !ok {
		return nil, ErrCodeNotFound
	}
	found := r.rooms[id]
	if found.Status == models.RoomStatusCompleted {
		return nil, ErrCodeNotFound
	}
	copied := *found
	return &copied, nil
}

func (r *fakeRoomRepo) MarkStarted(_ context.Context, id uuid.UUID, startedAt time.Time) (*models.Room, error) {
	found, ok := r.rooms[id]
	if !ok {
		return nil, ErrRoomNotFound
	}
	found.Status = models.RoomStatusInProgress
	found.StartedAt = &startedAt
	copied := *found
	return &copied, nil
}

func (r *fakeRoomRepo) MarkCompleted(_ context.Context, id uuid.UUID, completedAt time.Time) (*models.Room, error) {
	found, ok := r.rooms[id]
	if !ok {
		return nil, ErrRoomNotFound
	}
	found.Status = models.RoomStatusCompleted
	found.CompletedAt = &completedAt
	copied := *found
	return &copied, nil
}

func TestCreateRoom(t *testing.T) {
	repo := newFakeRoomRepo()
	app := NewApp(repo, clockwork.NewFakeClock())

	created, err := app.CreateRoom(context.Background(), uuid.New(), "host-1")
	require.NoError(t, err)
	assert.Len(t, created.Code, CodeLength)
	assert.Equal(t, models.RoomStatusWaiting, created.Status)
	assert.Equal(t, "host-1", created.HostID)

	_, err = app.CreateRoom(context.Background(), uuid.New(), "")
	assert.Error(t, err)
}

func TestResolveCode(t *testing.T) {
	repo := newFakeRoomRepo()
	app := NewApp(repo, clockwork.NewFakeClock())
	ctx := context.Background()

	created, err := app.CreateRoom(ctx, uuid.New(), "host-1")
	require.NoError(t, err)

	// Codes are typed by hand; case and padding are forgiven.
	found, err := app.ResolveCode(ctx, "  "+created.Code+" ")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	_, err = app.ResolveCode(ctx, "ZZZZZZ")
	assert.ErrorIs(t, err, ErrCodeNotFound)

	_, err = app.ResolveCode(ctx, "TOOLONGCODE")
	assert.ErrorIs(t, err, ErrCodeNotFound)
}

func TestStartRoom(t *testing.T) {
	repo := newFakeRoomRepo()
	fc := clockwork.NewFakeClock()
	app := NewApp(repo, fc)
	ctx := context.Background()

	created, err := app.CreateRoom(ctx, uuid.New(), "host-1")
	require.NoError(t, err)

	started, err := app.StartRoom(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoomStatusInProgress, started.Status)
	require.NotNil(t, started.StartedAt)
	assert.True(t, started.StartedAt.Equal(fc.Now()))

	// Starting twice is rejected.
	_, err = app.StartRoom(ctx, created.ID)
	assert.ErrorIs(t, err, ErrRoomNotWaiting)

	_, err = app.StartRoom(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestCompleteRoomIdempotent(t *testing.T) {
	repo := newFakeRoomRepo()
	app := NewApp(repo, clockwork.NewFakeClock())
	ctx := context.Background()

	created, err := app.CreateRoom(ctx, uuid.New(), "host-1")
	require.NoError(t, err)
	_, err = app.StartRoom(ctx, created.ID)
	require.NoError(t, err)

	completed, err := app.CompleteRoom(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoomStatusCompleted, completed.Status)

	again, err := app.CompleteRoom(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoomStatusCompleted, again.Status)

	// A completed room's code is no longer joinable.
	_, err = app.ResolveCode(ctx, created.Code)
	assert.Error(t, err)
}

func TestGenerateCode(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		code, err := GenerateCode()
		require.NoError(t, err)
		assert.Len(t, code, CodeLength)
		for _, r := range code {
			assert.Contains(t, codeAlphabet, string(r))
		}
		seen[code] = struct{}{}
	}
	// Collisions across 50 draws from a 31^6 space would mean a broken RNG.
	assert.Len(t, seen, 50)
}
