package quiz

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/hoot/go/internal/models"
)

// Repository implements read-only quiz data access over Postgres. Quiz
// authoring lives in the external platform; this service only reads what a
// room needs to run its game.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new quiz repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetQuiz retrieves a quiz without its questions.
func (r *Repository) GetQuiz(ctx context.Context, id uuid.UUID) (*models.Quiz, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, creator_id, title, description, created_at, updated_at
		FROM quizzes WHERE id = $1`, id)

	var q models.Quiz
	err := row.Scan(&q.ID, &q.CreatorID, &q.Title, &q.Description, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("failed to get quiz: %w", err)
	}
	return &q, nil
}

// ListQuestions retrieves a quiz's questions in play order.
func (r *Repository) ListQuestions(ctx context.Context, quizID uuid.UUID) ([]models.Question, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, quiz_id, position, text, options, correct_answer_index, time_limit_sec
		FROM questions
		WHERE quiz_id = $1
		ORDER BY position`, quizID)
	if err != nil {
		return nil, fmt.Errorf("failed to list questions: %w", err)
	}
	defer rows.Close()

	var questions []models.Question
	for rows.Next() {
		var q models.Question
		if err := rows.Scan(&q.ID, &q.QuizID, &q.Position, &q.Text, &q.Options,
			&q.CorrectAnswerIndex, &q.TimeLimitSec); err != nil {
			return nil, fmt.Errorf("failed to scan question: %w", err)
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read questions: %w", err)
	}
	return questions, nil
}
