package quiz

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/hoot/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQuizRepo struct {
	quizzes   map[uuid.UUID]*models.Quiz
	questions map[uuid.UUID][]models.Question
}

func newFakeQuizRepo() *fakeQuizRepo {
	return &fakeQuizRepo{
		quizzes:   make(map[uuid.UUID]*models.Quiz),
		questions: make(map[uuid.UUID][]models.Question),
	}
}

func (r *fakeQuizRepo) GetQuiz(_ context.Context, id uuid.UUID) (*models.Quiz, error) {
	found, ok := r.quizzes[id]
	if !ok {
		return nil, ErrQuizNotFound
	}
	return found, nil
}

func (r *fakeQuizRepo) ListQuestions(_ context.Context, quizID uuid.UUID) ([]models.Question, error) {
	return r.questions[quizID], nil
}

func seedQuiz(repo *fakeQuizRepo, limits ...int) *models.Quiz {
	q := &models.Quiz{ID: uuid.New(), CreatorID: "creator-1", Title: "Capitals"}
	repo.quizzes[q.ID] = q
	for i, limit := range limits {
		repo.questions[q.ID] = append(repo.questions[q.ID], models.Question{
			ID:           uuid.New(),
			QuizID:       q.ID,
			Position:     i,
			Text:         "question",
			Options:      []string{"a", "b", "c", "d"},
			TimeLimitSec: limit,
		})
	}
	return q
}

func TestBuildGamePlan(t *testing.T) {
	repo := newFakeQuizRepo()
	q := seedQuiz(repo, 20, 30, 15)
	app := NewApp(repo)

	plan, err := app.BuildGamePlan(context.Background(), q.ID)
	require.NoError(t, err)

	assert.Equal(t, q.ID, plan.Quiz.ID)
	require.Len(t, plan.Questions, 3)
	require.Len(t, plan.QuestionIDs, 3)
	for i, question := range plan.Questions {
		assert.Equal(t, question.ID.String(), plan.QuestionIDs[i])
	}

	require.Equal(t, 3, plan.Schedule.QuestionCount())
	assert.Equal(t, 20*time.Second, plan.Schedule.QuestionDurations[0])
	assert.Equal(t, 30*time.Second, plan.Schedule.QuestionDurations[1])
	assert.Equal(t, 15*time.Second, plan.Schedule.QuestionDurations[2])
	assert.Positive(t, plan.Schedule.ResultsDuration)
	assert.Positive(t, plan.Schedule.CountdownDuration)
}

func TestBuildGamePlanRejectsEmptyQuiz(t *testing.T) {
	repo := newFakeQuizRepo()
	q := seedQuiz(repo)
	app := NewApp(repo)

	_, err := app.BuildGamePlan(context.Background(), q.ID)
	assert.ErrorIs(t, err, ErrNoQuestions)
}

func TestBuildGamePlanRejectsMissingTimeLimit(t *testing.T) {
	repo := newFakeQuizRepo()
	q := seedQuiz(repo, 20, 0)
	app := NewApp(repo)

	_, err := app.BuildGamePlan(context.Background(), q.ID)
	assert.Error(t, err)
}

func TestBuildGamePlanUnknownQuiz(t *testing.T) {
	app := NewApp(newFakeQuizRepo())

	_, err := app.BuildGamePlan(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrQuizNotFound)
}
