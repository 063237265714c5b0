// Package game holds the per-room session actor: the authoritative state
// machine for one running quiz, its answer collector, and its broadcast path.
// All mutations to a room's state go through a single goroutine, so the
// transition logic is the only arbiter of event ordering.
package game

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"live-quiz-service/internal/constants"
	"live-quiz-service/internal/models"
	"live-quiz-service/internal/protocol"
)

// Sender is one live connection bound to the room, host or player.
type Sender interface {
	ConnID() string
	Send(msg protocol.Outgoing)
}

// Player is a participant in the live roster. Owned exclusively by the room
// actor; removed on disconnect and at game end.
type Player struct {
	ConnID    string
	Name      string
	JoinOrder int
	Score     int

	sender Sender
}

type response struct {
	optionIndex  int
	isCorrect    bool
	scoreAwarded int
	submittedAt  time.Time
}

type Config struct {
	RoomID    string
	SessionID string
	Quiz      *models.Quiz
	Clock     clockwork.Clock
	Store     Store

	// Persist serializes this session's durable writes. Left nil, the room
	// starts its own.
	Persist *Persister

	// VerifyHostToken reports whether a presented token grants host control
	// of this room.
	VerifyHostToken func(token string) bool

	// OnFinished runs inside the actor goroutine right before it exits.
	OnFinished func(roomID, sessionID string, leaderboard []protocol.LeaderboardEntry)
}

// Room is one live game session. Public methods may be called from any
// goroutine; they hand work to the Run loop and, where an error is returned,
// wait for the verdict.
type Room struct {
	id        string
	sessionID string
	quiz      *models.Quiz
	clock     clockwork.Clock
	store     Store
	persist   *Persister

	verifyHostToken func(string) bool
	onFinished      func(string, string, []protocol.LeaderboardEntry)

	cmds chan func()
	done chan struct{}

	// Everything below is owned by the Run goroutine.
	status         string
	host           Sender
	players        map[string]*Player
	joinSeq        int
	current        int
	responses      map[int]map[string]response
	questionStarts map[int]time.Time
	countdownTimer clockwork.Timer
	questionTimer  clockwork.Timer
}

func NewRoom(cfg Config) *Room {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	verify := cfg.VerifyHostToken
	if verify == nil {
		verify = func(string) bool { return false }
	}
	persist := cfg.Persist
	if persist == nil {
		persist = NewPersister(cfg.SessionID)
	}
	return &Room{
		id:              cfg.RoomID,
		sessionID:       cfg.SessionID,
		quiz:            cfg.Quiz,
		clock:           clock,
		store:           cfg.Store,
		persist:         persist,
		verifyHostToken: verify,
		onFinished:      cfg.OnFinished,
		cmds:            make(chan func()),
		done:            make(chan struct{}),
		status:          constants.StatusCreated,
		players:         make(map[string]*Player),
		current:         -1,
		responses:       make(map[int]map[string]response),
		questionStarts:  make(map[int]time.Time),
	}
}

func (r *Room) ID() string        { return r.id }
func (r *Room) SessionID() string { return r.sessionID }

// Run processes room events until the game finishes.
func (r *Room) Run() {
	for {
		select {
		case fn := <-r.cmds:
			fn()
		case <-r.done:
			return
		}
	}
}

func (r *Room) do(fn func() error) error {
	errc := make(chan error, 1)
	select {
	case r.cmds <- func() { errc <- fn() }:
		return <-errc
	case <-r.done:
		return fmt.Errorf("%w: game already finished", ErrRoomNotFound)
	}
}

func (r *Room) async(fn func()) {
	select {
	case r.cmds <- fn:
	case <-r.done:
	}
}

// BindHost associates a connection as the room's host. An unclaimed room in
// CREATED accepts the first host freely; once a host is bound or the game is
// underway, a valid host token is required to (re-)bind, which replaces the
// previous binding.
func (r *Room) BindHost(s Sender, hostToken string) error {
	return r.do(func() error {
		switch {
		case r.verifyHostToken(hostToken):
			// Token always wins, covers host reconnects mid-game.
		case r.host != nil && r.host.ConnID() != s.ConnID():
			return fmt.Errorf("%w: room already has a host", ErrUnauthorized)
		case r.host == nil && r.status != constants.StatusCreated:
			return fmt.Errorf("%w: host token required to rejoin a running game", ErrUnauthorized)
		}

		r.host = s
		s.Send(protocol.Outgoing{
			Type:    protocol.EventGameState,
			Payload: protocol.GameStatePayload{Status: r.status},
		})
		log.Info().Str("room_id", r.id).Str("conn_id", s.ConnID()).Msg("host bound")
		return nil
	})
}

// Join adds a player to the roster. Joins are admitted in CREATED and during
// the countdown; from the first question onward they are refused.
func (r *Room) Join(s Sender, name string) error {
	return r.do(func() error {
		if r.status != constants.StatusCreated && r.status != constants.StatusCountdown {
			return fmt.Errorf("%w: game no longer accepts joins", ErrInvalidState)
		}

		name = strings.TrimSpace(name)
		if name == "" {
			return fmt.Errorf("%w: player name is empty", ErrValidation)
		}

		if existing, ok := r.players[s.ConnID()]; ok {
			// Re-delivered join from the same connection: repeat the ack.
			s.Send(protocol.Outgoing{
				Type:    protocol.EventGameJoined,
				Payload: protocol.GameJoinedPayload{RoomID: r.id, Name: existing.Name},
			})
			return nil
		}

		for _, p := range r.players {
			if strings.EqualFold(p.Name, name) {
				return fmt.Errorf("%w: %q", ErrNameTaken, name)
			}
		}

		p := &Player{
			ConnID:    s.ConnID(),
			Name:      name,
			JoinOrder: r.joinSeq,
			sender:    s,
		}
		r.joinSeq++
		r.players[p.ConnID] = p

		rec := models.PlayerRecord{
			ConnectionID: p.ConnID,
			Name:         p.Name,
			JoinOrder:    p.JoinOrder,
		}
		r.persist.Enqueue("add_player", func(ctx context.Context) error {
			return r.store.AddPlayer(ctx, r.sessionID, rec)
		})

		s.Send(protocol.Outgoing{
			Type:    protocol.EventGameJoined,
			Payload: protocol.GameJoinedPayload{RoomID: r.id, Name: p.Name},
		})
		r.broadcast(protocol.Outgoing{
			Type:    protocol.EventPlayerJoined,
			Payload: protocol.PlayerJoinedPayload{ConnectionID: p.ConnID, Name: p.Name},
		})
		log.Info().Str("room_id", r.id).Str("player", p.Name).Msg("player joined")
		return nil
	})
}

// Leave removes a connection's binding. A leaving player drops off the
// roster; a leaving host leaves the room running and rejoinable by token.
func (r *Room) Leave(connID string) {
	r.async(func() {
		if r.host != nil && r.host.ConnID() == connID {
			r.host = nil
			log.Info().Str("room_id", r.id).Msg("host disconnected, room stays open")
			return
		}
		p, ok := r.players[connID]
		if !ok {
			return
		}
		delete(r.players, connID)
		r.broadcast(protocol.Outgoing{
			Type:    protocol.EventPlayerLeft,
			Payload: protocol.PlayerLeftPayload{ConnectionID: connID},
		})
		log.Info().Str("room_id", r.id).Str("player", p.Name).Msg("player left")
	})
}

// Start moves CREATED -> COUNTDOWN and schedules the first question.
func (r *Room) Start(connID string) error {
	return r.do(func() error {
		if err := r.requireHost(connID); err != nil {
			return err
		}
		if r.status != constants.StatusCreated {
			return fmt.Errorf("%w: game already started", ErrInvalidState)
		}
		if len(r.players) == 0 {
			return fmt.Errorf("%w: no players have joined", ErrInvalidState)
		}

		r.status = constants.StatusCountdown
		r.persistStatus()
		r.broadcast(protocol.Outgoing{
			Type:    protocol.EventGameState,
			Payload: protocol.GameStatePayload{Status: r.status},
		})

		r.countdownTimer = r.clock.AfterFunc(constants.CountdownSeconds*time.Second, func() {
			r.async(func() { r.beginQuestion(0) })
		})
		log.Info().Str("room_id", r.id).Int("players", len(r.players)).Msg("game starting")
		return nil
	})
}

// Submit records a player's answer for the open question. A duplicate for an
// already-answered question is a no-op that repeats the original ack.
func (r *Room) Submit(connID string, optionIndex int) error {
	return r.do(func() error {
		p, ok := r.players[connID]
		if !ok {
			return fmt.Errorf("%w: not a player in this room", ErrUnauthorized)
		}
		if r.status != constants.StatusQuestion {
			return fmt.Errorf("%w: no question is open", ErrInvalidState)
		}
		if optionIndex < 0 || optionIndex >= constants.OptionsPerQuestion {
			return fmt.Errorf("%w: answer index %d out of range", ErrValidation, optionIndex)
		}

		byPlayer := r.responses[r.current]
		if byPlayer == nil {
			byPlayer = make(map[string]response)
			r.responses[r.current] = byPlayer
		}
		if _, dup := byPlayer[connID]; dup {
			p.sender.Send(protocol.Outgoing{Type: protocol.EventAnswerReceived})
			return nil
		}

		question := r.quiz.Questions[r.current]
		isCorrect := optionIndex == question.CorrectOption
		award := 0
		if isCorrect {
			award = constants.ScoreAward
		}

		byPlayer[connID] = response{
			optionIndex:  optionIndex,
			isCorrect:    isCorrect,
			scoreAwarded: award,
			submittedAt:  r.clock.Now(),
		}
		p.Score += award

		rec := models.ResponseRecord{
			ConnectionID:  connID,
			QuestionIndex: r.current,
			OptionIndex:   optionIndex,
			IsCorrect:     isCorrect,
			ScoreAwarded:  award,
			SubmittedAt:   byPlayer[connID].submittedAt,
		}
		score := p.Score
		r.persist.Enqueue("add_response", func(ctx context.Context) error {
			if err := r.store.AddResponse(ctx, r.sessionID, rec); err != nil {
				return err
			}
			return r.store.UpdatePlayerScore(ctx, r.sessionID, connID, score)
		})

		p.sender.Send(protocol.Outgoing{Type: protocol.EventAnswerReceived})
		return nil
	})
}

// ShowResults is the host-driven half of the question-close race. The timer
// is the other half; whichever reaches the actor first wins.
func (r *Room) ShowResults(connID string) error {
	return r.do(func() error {
		if err := r.requireHost(connID); err != nil {
			return err
		}
		if r.status != constants.StatusQuestion {
			return fmt.Errorf("%w: no question is open", ErrInvalidState)
		}
		r.closeQuestion(r.current)
		return nil
	})
}

// Next advances SHOWING_RESULTS to the next question, or finishes the game
// when none remain.
func (r *Room) Next(connID string) error {
	return r.do(func() error {
		if err := r.requireHost(connID); err != nil {
			return err
		}
		if r.status != constants.StatusShowingResults {
			return fmt.Errorf("%w: results are not being shown", ErrInvalidState)
		}
		next := r.current + 1
		if next < len(r.quiz.Questions) {
			r.beginQuestion(next)
		} else {
			r.finish()
		}
		return nil
	})
}

// Status reports the current state machine status.
func (r *Room) Status() string {
	status := constants.StatusFinished
	_ = r.do(func() error {
		status = r.status
		return nil
	})
	return status
}

// Scores reports each rostered player's cumulative score by name.
func (r *Room) Scores() map[string]int {
	scores := make(map[string]int)
	_ = r.do(func() error {
		for _, p := range r.players {
			scores[p.Name] = p.Score
		}
		return nil
	})
	return scores
}

func (r *Room) requireHost(connID string) error {
	if r.host == nil || r.host.ConnID() != connID {
		return fmt.Errorf("%w: only the host can do that", ErrUnauthorized)
	}
	return nil
}

func (r *Room) beginQuestion(index int) {
	if r.status != constants.StatusCountdown && r.status != constants.StatusShowingResults {
		return // stale countdown timer
	}

	r.status = constants.StatusQuestion
	r.current = index
	startedAt := r.clock.Now()
	r.questionStarts[index] = startedAt
	r.persistStatus()
	r.persist.Enqueue("set_question_start", func(ctx context.Context) error {
		return r.store.SetQuestionStart(ctx, r.sessionID, index, startedAt)
	})

	question := r.quiz.Questions[index]
	r.broadcast(protocol.Outgoing{
		Type: protocol.EventNewQuestion,
		Payload: protocol.NewQuestionPayload{
			Title:     question.Title,
			Options:   question.Options,
			TimeLimit: question.TimeLimitSec,
		},
	})

	r.questionTimer = r.clock.AfterFunc(time.Duration(question.TimeLimitSec)*time.Second, func() {
		r.async(func() { r.closeQuestion(index) })
	})
	log.Info().Str("room_id", r.id).Int("question", index).Msg("question open")
}

// closeQuestion is idempotent: the host request and the countdown timer race
// for it, and only the first arrival for the open question index applies.
func (r *Room) closeQuestion(index int) {
	if r.status != constants.StatusQuestion || r.current != index {
		return
	}
	if r.questionTimer != nil {
		r.questionTimer.Stop()
		r.questionTimer = nil
	}

	r.status = constants.StatusShowingResults
	r.persistStatus()

	tally := make(map[int]int)
	for _, resp := range r.responses[index] {
		tally[resp.optionIndex]++
	}
	r.broadcast(protocol.Outgoing{
		Type: protocol.EventQuestionResult,
		Payload: protocol.QuestionResultPayload{
			CorrectOptionIndex: r.quiz.Questions[index].CorrectOption,
			Tally:              tally,
		},
	})
	log.Info().Str("room_id", r.id).Int("question", index).Int("answers", len(r.responses[index])).Msg("question closed")
}

func (r *Room) finish() {
	r.status = constants.StatusFinished
	r.persistStatus()
	r.stopTimers()

	leaderboard := Leaderboard(r.players)
	r.broadcast(protocol.Outgoing{
		Type:    protocol.EventGameOver,
		Payload: protocol.GameOverPayload{Leaderboard: leaderboard},
	})
	log.Info().Str("room_id", r.id).Int("players", len(r.players)).Msg("game over")

	if r.onFinished != nil {
		r.onFinished(r.id, r.sessionID, leaderboard)
	}
	r.persist.Close()
	close(r.done)
}

func (r *Room) stopTimers() {
	if r.countdownTimer != nil {
		r.countdownTimer.Stop()
		r.countdownTimer = nil
	}
	if r.questionTimer != nil {
		r.questionTimer.Stop()
		r.questionTimer = nil
	}
}

func (r *Room) persistStatus() {
	status := r.status
	r.persist.Enqueue("update_status", func(ctx context.Context) error {
		return r.store.UpdateStatus(ctx, r.sessionID, status)
	})
}

func (r *Room) broadcast(msg protocol.Outgoing) {
	if r.host != nil {
		r.host.Send(msg)
	}
	for _, p := range r.players {
		p.sender.Send(msg)
	}
}
