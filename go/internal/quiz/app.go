package quiz

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/hoot/go/internal/game/phase"
	"github.com/mcdev12/hoot/go/internal/models"
)

// QuizRepository defines what the app layer needs from the repository.
type QuizRepository interface {
	GetQuiz(ctx context.Context, id uuid.UUID) (*models.Quiz, error)
	ListQuestions(ctx context.Context, quizID uuid.UUID) ([]models.Question, error)
}

// GamePlan is everything a coordinator needs to run one quiz: question
// identity in play order plus the phase timing schedule derived from each
// question's time limit.
type GamePlan struct {
	Quiz        *models.Quiz
	Questions   []models.Question
	QuestionIDs []string
	Schedule    phase.Schedule
}

// App handles quiz read logic for active rooms.
type App struct {
	repo QuizRepository
}

// NewApp creates a new quiz App.
func NewApp(repo QuizRepository) *App {
	return &App{repo: repo}
}

// GetQuiz retrieves a quiz by ID.
func (a *App) GetQuiz(ctx context.Context, id uuid.UUID) (*models.Quiz, error) {
	return a.repo.GetQuiz(ctx, id)
}

// BuildGamePlan assembles the play-order questions and phase schedule for a
// quiz. A quiz with no questions cannot be played.
func (a *App) BuildGamePlan(ctx context.Context, quizID uuid.UUID) (*GamePlan, error) {
	q, err := a.repo.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}

	questions, err := a.repo.ListQuestions(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}

	ids := make([]string, len(questions))
	durations := make([]time.Duration, len(questions))
	for i, question := range questions {
		if question.TimeLimitSec <= 0 {
			return nil, fmt.Errorf("question %s has no time limit", question.ID)
		}
		ids[i] = question.ID.String()
		durations[i] = question.TimeLimit()
	}

	return &GamePlan{
		Quiz:        q,
		Questions:   questions,
		QuestionIDs: ids,
		Schedule:    phase.NewSchedule(durations),
	}, nil
}
