package models

import "time"

// Participant is one live member of a room's presence set.
type Participant struct {
	SessionID string    `json:"session_id"`
	JoinedAt  time.Time `json:"joined_at"`
}
