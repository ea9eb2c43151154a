package models

import (
	"time"

	"github.com/google/uuid"
)

// RoomStatus defines the lifecycle status of a game room.
type RoomStatus string

const (
	RoomStatusWaiting    RoomStatus = "WAITING"
	RoomStatusInProgress RoomStatus = "IN_PROGRESS"
	RoomStatusCompleted  RoomStatus = "COMPLETED"
)

// Room scopes one game instance: presence, phase events and answer
// announcements for a room are isolated from other concurrent games.
type Room struct {
	ID          uuid.UUID  `json:"id"`
	QuizID      uuid.UUID  `json:"quiz_id"`
	Code        string     `json:"code"`
	HostID      string     `json:"host_id"`
	Status      RoomStatus `json:"status"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
