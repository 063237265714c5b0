package protocol

import "encoding/json"

type EventType string

const (
	// Client -> Server
	EventHostJoin     EventType = "host_join"
	EventCreateGame   EventType = "create_game"
	EventStartGame    EventType = "start_game"
	EventJoinGame     EventType = "join_game"
	EventSubmitAnswer EventType = "submit_answer"
	EventShowResults  EventType = "show_results"
	EventNextQuestion EventType = "next_question"

	// Server -> Client
	EventGameCreated    EventType = "game_created"
	EventGameJoined     EventType = "game_joined"
	EventPlayerJoined   EventType = "player_joined"
	EventPlayerLeft     EventType = "player_left"
	EventGameState      EventType = "game_state"
	EventNewQuestion    EventType = "new_question"
	EventAnswerReceived EventType = "answer_received"
	EventQuestionResult EventType = "question_result"
	EventGameOver       EventType = "game_over"
	EventError          EventType = "error"
)

// Message is the inbound envelope. Payload stays raw until the event type is
// known.
type Message struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Outgoing is the outbound envelope.
type Outgoing struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload,omitempty"`
}

type HostJoinPayload struct {
	RoomID    string `json:"roomId"`
	HostToken string `json:"hostToken,omitempty"`
}

type CreateGamePayload struct {
	QuizID string `json:"quizId"`
}

type StartGamePayload struct {
	RoomID string `json:"roomId"`
}

type JoinGamePayload struct {
	RoomID string `json:"roomId"`
	Name   string `json:"name"`
}

type SubmitAnswerPayload struct {
	RoomID      string `json:"roomId"`
	AnswerIndex int    `json:"answerIndex"`
}

type ShowResultsPayload struct {
	RoomID string `json:"roomId"`
}

type NextQuestionPayload struct {
	RoomID string `json:"roomId"`
}

type GameCreatedPayload struct {
	RoomID string `json:"roomId"`
	// HostToken lets the creating connection (re-)bind as host via host_join.
	HostToken string `json:"hostToken"`
}

type GameJoinedPayload struct {
	RoomID string `json:"roomId"`
	Name   string `json:"name"`
}

type PlayerJoinedPayload struct {
	ConnectionID string `json:"connectionId"`
	Name         string `json:"name"`
}

type PlayerLeftPayload struct {
	ConnectionID string `json:"connectionId"`
}

type GameStatePayload struct {
	Status string `json:"status"`
}

// NewQuestionPayload deliberately omits the correct option index.
type NewQuestionPayload struct {
	Title     string   `json:"title"`
	Options   []string `json:"options"`
	TimeLimit int      `json:"timeLimit"`
}

type QuestionResultPayload struct {
	CorrectOptionIndex int         `json:"correctOptionIndex"`
	Tally              map[int]int `json:"tally"`
}

type LeaderboardEntry struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}

type GameOverPayload struct {
	Leaderboard []LeaderboardEntry `json:"leaderboard"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
