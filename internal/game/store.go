package game

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"live-quiz-service/internal/models"
)

// Store is the durable session record the room writes through to. Every
// operation must tolerate duplicate delivery: a write is re-issued after a
// transient failure without checking whether the first attempt landed.
type Store interface {
	CreateSession(ctx context.Context, rec *models.SessionRecord) error
	AddPlayer(ctx context.Context, sessionID string, p models.PlayerRecord) error
	AddResponse(ctx context.Context, sessionID string, r models.ResponseRecord) error
	SetQuestionStart(ctx context.Context, sessionID string, questionIndex int, startedAt time.Time) error
	UpdateStatus(ctx context.Context, sessionID, status string) error
	UpdatePlayerScore(ctx context.Context, sessionID, connectionID string, score int) error
}

const (
	persistAttempts = 3
	persistTimeout  = 5 * time.Second
	persistBackoff  = 500 * time.Millisecond
	persistQueueLen = 64
)

type persistOp struct {
	name string
	fn   func(ctx context.Context) error
}

// Persister applies one session's durable writes in submission order on a
// single background goroutine. The in-memory state has already been
// broadcast; a failed write retries in place, so an older write can never
// land after a newer one. A write that exhausts its attempts is dropped and
// logged, never rolled back into the game.
type Persister struct {
	sessionID string
	ops       chan persistOp
}

func NewPersister(sessionID string) *Persister {
	p := &Persister{
		sessionID: sessionID,
		ops:       make(chan persistOp, persistQueueLen),
	}
	go p.run()
	return p
}

// Enqueue hands a durable write to the session's writer goroutine.
func (p *Persister) Enqueue(name string, fn func(ctx context.Context) error) {
	p.ops <- persistOp{name: name, fn: fn}
}

// Close lets the writer drain its queue and exit. No Enqueue may follow.
func (p *Persister) Close() {
	close(p.ops)
}

func (p *Persister) run() {
	for op := range p.ops {
		p.apply(op)
	}
}

func (p *Persister) apply(op persistOp) {
	var err error
	for attempt := 1; attempt <= persistAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		err = op.fn(ctx)
		cancel()
		if err == nil {
			return
		}
		log.Warn().
			Err(err).
			Str("op", op.name).
			Str("session_id", p.sessionID).
			Int("attempt", attempt).
			Msg("session store write failed")
		time.Sleep(time.Duration(attempt) * persistBackoff)
	}
	log.Error().
		Err(err).
		Str("op", op.name).
		Str("session_id", p.sessionID).
		Msg("session store write dropped after retries")
}
