package answers

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/hoot/go/internal/transport"
	"github.com/rs/zerolog/log"
)

// Result is the scoring collaborator's verdict for one submission. The
// collaborator is the sole authority on correctness and points; nothing in
// this package computes a score.
type Result struct {
	IsCorrect     bool `json:"is_correct"`
	PointsEarned  int  `json:"points_earned"`
	NewTotalScore int  `json:"new_total_score"`
}

// SubmitAnswerRequest is what the scoring collaborator needs for one answer.
type SubmitAnswerRequest struct {
	RoomID      string `json:"room_id"`
	SessionID   string `json:"session_id"`
	QuestionID  string `json:"question_id"`
	AnswerIndex int    `json:"answer_index"`
	ElapsedMs   int64  `json:"elapsed_ms"`
}

// Scorer is the external scoring collaborator.
type Scorer interface {
	SubmitAnswer(ctx context.Context, req SubmitAnswerRequest) (*Result, error)
}

// SubmittedPayload announces on the room channel that a participant has
// answered a question. It carries no correctness or score: the announcement
// only feeds the driver's "who has answered" view.
type SubmittedPayload struct {
	QuestionID string    `json:"question_id"`
	SessionID  string    `json:"session_id"`
	AnsweredAt time.Time `json:"answered_at"`
}

// Reconciler enforces exactly-one submission per question for the local
// participant, forwards accepted answers to the scoring collaborator, and
// announces accepted submissions to the room.
type Reconciler struct {
	roomID    string
	sessionID string
	scorer    Scorer
	bus       transport.BroadcastTransport
	clock     clockwork.Clock

	mu        sync.Mutex
	submitted map[string]bool
}

// ReconcilerConfig wires a Reconciler's collaborators.
type ReconcilerConfig struct {
	RoomID    string
	SessionID string
	Scorer    Scorer
	Bus       transport.BroadcastTransport
	Clock     clockwork.Clock
}

// NewReconciler creates an answer reconciler for one participant in one room.
func NewReconciler(cfg ReconcilerConfig) (*Reconciler, error) {
	if cfg.RoomID == "" || cfg.SessionID == "" {
		return nil, fmt.Errorf("answer reconciler requires room and session IDs")
	}
	if cfg.Scorer == nil {
		return nil, fmt.Errorf("answer reconciler requires a scorer")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}

	return &Reconciler{
		roomID:    cfg.RoomID,
		sessionID: cfg.SessionID,
		scorer:    cfg.Scorer,
		bus:       cfg.Bus,
		clock:     cfg.Clock,
		submitted: make(map[string]bool),
	}, nil
}

// Submit sends the participant's answer for a question to the scoring
// collaborator, exactly once. A second call for the same question returns
// ErrAlreadyAnswered without touching the score. A failed scoring call does
// not consume the attempt.
func (r *Reconciler) Submit(ctx context.Context, questionID string, answerIndex int, elapsed time.Duration) (*Result, error) {
	r.mu.Lock()
	if r.submitted[questionID] {
		r.mu.Unlock()
		return nil, ErrAlreadyAnswered
	}
	// Claim the slot before the scoring round-trip so a concurrent duplicate
	// cannot race past the check.
	r.submitted[questionID] = true
	r.mu.Unlock()

	result, err := r.scorer.SubmitAnswer(ctx, SubmitAnswerRequest{
		RoomID:      r.roomID,
		SessionID:   r.sessionID,
		QuestionID:  questionID,
		AnswerIndex: answerIndex,
		ElapsedMs:   elapsed.Milliseconds(),
	})
	if err != nil {
		r.mu.Lock()
		delete(r.submitted, questionID)
		r.mu.Unlock()
		return nil, fmt.Errorf("submit answer: %w", err)
	}

	r.announce(ctx, questionID)
	return result, nil
}

// HasAnswered reports whether the local participant already answered the
// question.
func (r *Reconciler) HasAnswered(questionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.submitted[questionID]
}

// announce publishes the submission to the room, fire-and-forget.
func (r *Reconciler) announce(ctx context.Context, questionID string) {
	if r.bus == nil {
		return
	}
	payload := SubmittedPayload{
		QuestionID: questionID,
		SessionID:  r.sessionID,
		AnsweredAt: r.clock.Now(),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		log.Warn().Err(err).Str("room_id", r.roomID).Msg("marshal answer announcement failed")
		return
	}
	env := &transport.Envelope{
		ID:        uuid.New().String(),
		RoomID:    r.roomID,
		Type:      transport.EventTypeAnswerSubmitted,
		Timestamp: r.clock.Now(),
		Data:      data,
	}
	if err := r.bus.Publish(ctx, r.roomID, env); err != nil {
		log.Warn().Err(err).Str("room_id", r.roomID).Msg("answer announcement failed")
	}
}
