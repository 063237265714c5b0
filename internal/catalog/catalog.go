// Package catalog is the quiz catalog collaborator: the game core only reads
// a quiz by identifier; the REST surface additionally lists and creates them.
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"live-quiz-service/internal/game"
	"live-quiz-service/internal/models"
)

type QuizCatalog struct {
	db *sql.DB
}

func NewQuizCatalog(db *sql.DB) *QuizCatalog {
	return &QuizCatalog{db: db}
}

func (c *QuizCatalog) GetQuiz(ctx context.Context, quizID string) (*models.Quiz, error) {
	if _, err := uuid.Parse(quizID); err != nil {
		return nil, fmt.Errorf("%w: %q", game.ErrQuizNotFound, quizID)
	}

	query := `
		SELECT id, title, questions, created_at
		FROM quizzes
		WHERE id = $1
	`
	var (
		quiz          models.Quiz
		questionsJSON []byte
	)
	err := c.db.QueryRowContext(ctx, query, quizID).Scan(
		&quiz.ID,
		&quiz.Title,
		&questionsJSON,
		&quiz.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", game.ErrQuizNotFound, quizID)
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(questionsJSON, &quiz.Questions); err != nil {
		return nil, fmt.Errorf("decode quiz questions: %w", err)
	}
	return &quiz, nil
}

func (c *QuizCatalog) CreateQuiz(ctx context.Context, quiz *models.Quiz) error {
	quiz.ID = uuid.New().String()
	quiz.CreatedAt = time.Now()

	questionsJSON, err := json.Marshal(quiz.Questions)
	if err != nil {
		return fmt.Errorf("encode quiz questions: %w", err)
	}

	query := `
		INSERT INTO quizzes (id, title, questions, created_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err = c.db.ExecContext(ctx, query, quiz.ID, quiz.Title, questionsJSON, quiz.CreatedAt)
	return err
}

func (c *QuizCatalog) ListQuizzes(ctx context.Context) ([]*models.Quiz, error) {
	query := `
		SELECT id, title, questions, created_at
		FROM quizzes
		ORDER BY created_at DESC
	`
	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var quizzes []*models.Quiz
	for rows.Next() {
		var (
			quiz          models.Quiz
			questionsJSON []byte
		)
		if err := rows.Scan(&quiz.ID, &quiz.Title, &questionsJSON, &quiz.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(questionsJSON, &quiz.Questions); err != nil {
			return nil, fmt.Errorf("decode quiz questions: %w", err)
		}
		quizzes = append(quizzes, &quiz)
	}
	return quizzes, rows.Err()
}
