package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"live-quiz-service/internal/game"
	"live-quiz-service/internal/models"
)

// SessionRepository is the durable session store. Every write is idempotent:
// inserts dedup on their primary key, updates set absolute values, so the
// room actor can blindly re-issue a write after a transient failure.
type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) CreateSession(ctx context.Context, rec *models.SessionRecord) error {
	query := `
		INSERT INTO game_sessions (id, room_id, quiz_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, query,
		rec.ID,
		rec.RoomID,
		rec.QuizID,
		rec.Status,
		rec.CreatedAt,
	)
	return err
}

func (r *SessionRepository) AddPlayer(ctx context.Context, sessionID string, p models.PlayerRecord) error {
	query := `
		INSERT INTO session_players (session_id, connection_id, name, join_order, score)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id, connection_id) DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, query,
		sessionID,
		p.ConnectionID,
		p.Name,
		p.JoinOrder,
		p.Score,
	)
	return err
}

func (r *SessionRepository) AddResponse(ctx context.Context, sessionID string, resp models.ResponseRecord) error {
	query := `
		INSERT INTO session_responses (session_id, connection_id, question_index, option_index, is_correct, score_awarded, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (session_id, connection_id, question_index) DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, query,
		sessionID,
		resp.ConnectionID,
		resp.QuestionIndex,
		resp.OptionIndex,
		resp.IsCorrect,
		resp.ScoreAwarded,
		resp.SubmittedAt,
	)
	return err
}

func (r *SessionRepository) SetQuestionStart(ctx context.Context, sessionID string, questionIndex int, startedAt time.Time) error {
	query := `
		INSERT INTO session_question_starts (session_id, question_index, started_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id, question_index) DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, query, sessionID, questionIndex, startedAt)
	return err
}

func (r *SessionRepository) UpdateStatus(ctx context.Context, sessionID, status string) error {
	query := `UPDATE game_sessions SET status = $1 WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, status, sessionID)
	return err
}

func (r *SessionRepository) UpdatePlayerScore(ctx context.Context, sessionID, connectionID string, score int) error {
	query := `UPDATE session_players SET score = $1 WHERE session_id = $2 AND connection_id = $3`
	_, err := r.db.ExecContext(ctx, query, score, sessionID, connectionID)
	return err
}

// GetSessionByRoom reads back the most recent session for a room code, with
// its full roster, response log, and question start times. Room codes are
// reused across games, so "most recent" is the one export cares about.
func (r *SessionRepository) GetSessionByRoom(ctx context.Context, roomID string) (*models.SessionRecord, error) {
	query := `
		SELECT id, room_id, quiz_id, status, created_at
		FROM game_sessions
		WHERE room_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	rec := &models.SessionRecord{}
	err := r.db.QueryRowContext(ctx, query, roomID).Scan(
		&rec.ID,
		&rec.RoomID,
		&rec.QuizID,
		&rec.Status,
		&rec.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no session for room %q", game.ErrRoomNotFound, roomID)
	}
	if err != nil {
		return nil, err
	}

	if rec.Players, err = r.sessionPlayers(ctx, rec.ID); err != nil {
		return nil, err
	}
	if rec.Responses, err = r.sessionResponses(ctx, rec.ID); err != nil {
		return nil, err
	}
	if rec.QuestionStarts, err = r.sessionQuestionStarts(ctx, rec.ID); err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *SessionRepository) sessionPlayers(ctx context.Context, sessionID string) ([]models.PlayerRecord, error) {
	query := `
		SELECT connection_id, name, join_order, score
		FROM session_players
		WHERE session_id = $1
		ORDER BY join_order ASC
	`
	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var players []models.PlayerRecord
	for rows.Next() {
		var p models.PlayerRecord
		if err := rows.Scan(&p.ConnectionID, &p.Name, &p.JoinOrder, &p.Score); err != nil {
			return nil, err
		}
		players = append(players, p)
	}
	return players, rows.Err()
}

func (r *SessionRepository) sessionResponses(ctx context.Context, sessionID string) ([]models.ResponseRecord, error) {
	query := `
		SELECT connection_id, question_index, option_index, is_correct, score_awarded, submitted_at
		FROM session_responses
		WHERE session_id = $1
		ORDER BY submitted_at ASC
	`
	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var responses []models.ResponseRecord
	for rows.Next() {
		var resp models.ResponseRecord
		if err := rows.Scan(&resp.ConnectionID, &resp.QuestionIndex, &resp.OptionIndex, &resp.IsCorrect, &resp.ScoreAwarded, &resp.SubmittedAt); err != nil {
			return nil, err
		}
		responses = append(responses, resp)
	}
	return responses, rows.Err()
}

func (r *SessionRepository) sessionQuestionStarts(ctx context.Context, sessionID string) (map[int]time.Time, error) {
	query := `
		SELECT question_index, started_at
		FROM session_question_starts
		WHERE session_id = $1
	`
	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	starts := make(map[int]time.Time)
	for rows.Next() {
		var index int
		var startedAt time.Time
		if err := rows.Scan(&index, &startedAt); err != nil {
			return nil, err
		}
		starts[index] = startedAt
	}
	return starts, rows.Err()
}
