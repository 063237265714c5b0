package models

import "time"

// Question is one multiple-choice question. Options always has exactly four
// entries; CorrectOption indexes into it.
type Question struct {
	Title         string   `json:"title"`
	Options       []string `json:"options"`
	CorrectOption int      `json:"correctOption"`
	TimeLimitSec  int      `json:"timeLimit"`
}

// Quiz is immutable once a game has been created from it.
type Quiz struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
	CreatedAt time.Time  `json:"created_at"`
}

// SessionRecord is the durable shape of one game session as stored and read
// back for export. The live room actor is the source of truth while the game
// runs; this record trails it by at most a retried write.
type SessionRecord struct {
	ID             string
	RoomID         string
	QuizID         string
	Status         string
	CreatedAt      time.Time
	Players        []PlayerRecord
	Responses      []ResponseRecord
	QuestionStarts map[int]time.Time
}

type PlayerRecord struct {
	ConnectionID string
	Name         string
	JoinOrder    int
	Score        int
}

type ResponseRecord struct {
	ConnectionID  string
	QuestionIndex int
	OptionIndex   int
	IsCorrect     bool
	ScoreAwarded  int
	SubmittedAt   time.Time
}
