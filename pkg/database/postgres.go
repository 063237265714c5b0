package database

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"live-quiz-service/config"
)

type PostgresClient struct {
	db     *sql.DB
	config *config.DBConfig
}

func NewPostgresClient(cfg *config.DBConfig) (*PostgresClient, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresClient{
		db:     db,
		config: cfg,
	}, nil
}

func (c *PostgresClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

func (c *PostgresClient) GetDB() *sql.DB {
	return c.db
}

// InitSchema creates the quiz catalog and session audit tables. Primary keys
// double as the dedup guard for retried writes.
func (c *PostgresClient) InitSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS quizzes (
			id UUID PRIMARY KEY,
			title VARCHAR(255) NOT NULL,
			questions JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS game_sessions (
			id UUID PRIMARY KEY,
			room_id VARCHAR(16) NOT NULL,
			quiz_id UUID NOT NULL,
			status VARCHAR(32) NOT NULL DEFAULT 'CREATED',
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_game_sessions_room_id ON game_sessions(room_id, created_at DESC);

		CREATE TABLE IF NOT EXISTS session_players (
			session_id UUID NOT NULL REFERENCES game_sessions(id),
			connection_id VARCHAR(64) NOT NULL,
			name VARCHAR(64) NOT NULL,
			join_order INTEGER NOT NULL,
			score INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (session_id, connection_id)
		);

		CREATE TABLE IF NOT EXISTS session_responses (
			session_id UUID NOT NULL REFERENCES game_sessions(id),
			connection_id VARCHAR(64) NOT NULL,
			question_index INTEGER NOT NULL,
			option_index INTEGER NOT NULL,
			is_correct BOOLEAN NOT NULL,
			score_awarded INTEGER NOT NULL,
			submitted_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (session_id, connection_id, question_index)
		);

		CREATE TABLE IF NOT EXISTS session_question_starts (
			session_id UUID NOT NULL REFERENCES game_sessions(id),
			question_index INTEGER NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (session_id, question_index)
		);
	`

	if _, err := c.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}
