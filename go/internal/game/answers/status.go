package answers

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/mcdev12/hoot/go/internal/transport"
)

// Status is the driver's read-only view of who has answered each question,
// fed by AnswerSubmitted announcements. It renders live answer progress and
// lets the driver close a question early; it never influences scoring.
type Status struct {
	mu       sync.RWMutex
	answered map[string]map[string]struct{}
}

// NewStatus returns an empty answer status view.
func NewStatus() *Status {
	return &Status{answered: make(map[string]map[string]struct{})}
}

// Apply folds an envelope into the view, reporting whether it was an answer
// announcement. Duplicate announcements are absorbed; malformed ones dropped.
func (s *Status) Apply(env *transport.Envelope) bool {
	if env == nil || env.Type != transport.EventTypeAnswerSubmitted {
		return false
	}
	var payload SubmittedPayload
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		return false
	}
	if payload.QuestionID == "" || payload.SessionID == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.answered[payload.QuestionID] == nil {
		s.answered[payload.QuestionID] = make(map[string]struct{})
	}
	s.answered[payload.QuestionID][payload.SessionID] = struct{}{}
	return true
}

// Count returns how many distinct participants answered the question.
func (s *Status) Count(questionID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.answered[questionID])
}

// HasAnswered reports whether the participant answered the question.
func (s *Status) HasAnswered(questionID, sessionID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.answered[questionID][sessionID]
	return ok
}

// Answered returns the session IDs that answered the question, sorted.
func (s *Status) Answered(questionID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.answered[questionID]))
	for id := range s.answered[questionID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
