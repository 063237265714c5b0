package constants

// Session statuses, persisted verbatim and broadcast in game_state events.
const (
	StatusCreated        = "CREATED"
	StatusCountdown      = "COUNTDOWN"
	StatusQuestion       = "QUESTION"
	StatusShowingResults = "SHOWING_RESULTS"
	StatusFinished       = "FINISHED"
)

const (
	// CountdownSeconds is the fixed delay between start_game and the first question.
	CountdownSeconds = 3

	// ScoreAward is the flat score for a correct answer. No time-based bonus.
	ScoreAward = 1000

	// OptionsPerQuestion is fixed: every question carries exactly four choices.
	OptionsPerQuestion = 4
)

const (
	RoomCodeLength   = 6
	RoomCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// SessionFinishedQueue receives one message per finished game when RabbitMQ
// is configured.
const SessionFinishedQueue = "session.finished"
