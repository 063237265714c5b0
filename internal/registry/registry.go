// Package registry owns the mapping from live room codes to session actors.
package registry

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"live-quiz-service/internal/constants"
	"live-quiz-service/internal/game"
	"live-quiz-service/internal/models"
	"live-quiz-service/internal/protocol"
	"live-quiz-service/pkg/cache"
	"live-quiz-service/pkg/token"
)

// QuizCatalog is the narrow read interface the registry needs from quiz
// storage.
type QuizCatalog interface {
	GetQuiz(ctx context.Context, quizID string) (*models.Quiz, error)
}

// Publisher delivers finished-session events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, queue string, body []byte) error
}

type Config struct {
	Catalog QuizCatalog
	Store   game.Store
	Clock   clockwork.Clock

	// Cache and Publisher are optional collaborators; nil disables them.
	Cache     *cache.RedisClient
	Publisher Publisher

	HostTokenSecret string
}

type Registry struct {
	catalog   QuizCatalog
	store     game.Store
	clock     clockwork.Clock
	cache     *cache.RedisClient
	publisher Publisher
	secret    string

	mu    sync.RWMutex
	rooms map[string]*game.Room
}

func New(cfg Config) *Registry {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Registry{
		catalog:   cfg.Catalog,
		store:     cfg.Store,
		clock:     clock,
		cache:     cfg.Cache,
		publisher: cfg.Publisher,
		secret:    cfg.HostTokenSecret,
		rooms:     make(map[string]*game.Room),
	}
}

// Create allocates a fresh room code for the given quiz, persists the
// initial session record, and starts the room actor. The returned host token
// lets the creating connection bind (and later re-bind) as host.
func (g *Registry) Create(ctx context.Context, quizID string) (roomID, hostToken string, err error) {
	quiz, err := g.catalog.GetQuiz(ctx, quizID)
	if err != nil {
		return "", "", err
	}
	if err := game.ValidateQuiz(quiz); err != nil {
		return "", "", err
	}

	sessionID := uuid.New().String()

	g.mu.Lock()
	roomID, err = g.unusedRoomCode()
	if err != nil {
		g.mu.Unlock()
		return "", "", err
	}

	hostToken, err = token.GenerateHostToken(roomID, sessionID, g.secret)
	if err != nil {
		g.mu.Unlock()
		return "", "", fmt.Errorf("mint host token: %w", err)
	}

	// The session row goes first on the persister queue so every later write
	// lands on an existing session.
	rec := &models.SessionRecord{
		ID:        sessionID,
		RoomID:    roomID,
		QuizID:    quiz.ID,
		Status:    constants.StatusCreated,
		CreatedAt: g.clock.Now(),
	}
	persist := game.NewPersister(sessionID)
	persist.Enqueue("create_session", func(ctx context.Context) error {
		return g.store.CreateSession(ctx, rec)
	})

	room := game.NewRoom(game.Config{
		RoomID:    roomID,
		SessionID: sessionID,
		Quiz:      quiz,
		Clock:     g.clock,
		Store:     g.store,
		Persist:   persist,
		VerifyHostToken: func(t string) bool {
			claims, err := token.ValidateHostToken(t, g.secret)
			return err == nil && claims.RoomID == roomID && claims.SessionID == sessionID
		},
		OnFinished: g.onFinished,
	})
	g.rooms[roomID] = room
	g.mu.Unlock()

	go room.Run()

	if g.cache != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := g.cache.CacheQuizSnapshot(ctx, roomID, quiz); err != nil {
				log.Warn().Err(err).Str("room_id", roomID).Msg("quiz snapshot cache write failed")
			}
		}()
	}

	log.Info().Str("room_id", roomID).Str("quiz_id", quiz.ID).Str("session_id", sessionID).Msg("game created")
	return roomID, hostToken, nil
}

// Resolve returns the live room for a code.
func (g *Registry) Resolve(roomID string) (*game.Room, error) {
	g.mu.RLock()
	room, ok := g.rooms[normalizeCode(roomID)]
	g.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", game.ErrRoomNotFound, roomID)
	}
	return room, nil
}

// Retire removes a finished room's actor from the registry. The durable
// session record stays queryable; the code becomes reusable.
func (g *Registry) Retire(roomID string) {
	g.mu.Lock()
	delete(g.rooms, normalizeCode(roomID))
	g.mu.Unlock()

	if g.cache != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := g.cache.DropQuizSnapshot(ctx, roomID); err != nil {
				log.Warn().Err(err).Str("room_id", roomID).Msg("quiz snapshot cache drop failed")
			}
		}()
	}
}

// ActiveRooms reports how many games are currently live.
func (g *Registry) ActiveRooms() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rooms)
}

type sessionFinishedEvent struct {
	RoomID      string                     `json:"roomId"`
	SessionID   string                     `json:"sessionId"`
	Leaderboard []protocol.LeaderboardEntry `json:"leaderboard"`
	FinishedAt  time.Time                  `json:"finishedAt"`
}

// onFinished runs inside the finishing room's actor goroutine.
func (g *Registry) onFinished(roomID, sessionID string, leaderboard []protocol.LeaderboardEntry) {
	g.Retire(roomID)

	if g.publisher == nil {
		return
	}
	event := sessionFinishedEvent{
		RoomID:      roomID,
		SessionID:   sessionID,
		Leaderboard: leaderboard,
		FinishedAt:  g.clock.Now(),
	}
	go func() {
		body, err := json.Marshal(event)
		if err != nil {
			log.Error().Err(err).Str("room_id", roomID).Msg("marshal session finished event")
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := g.publisher.Publish(ctx, constants.SessionFinishedQueue, body); err != nil {
			log.Warn().Err(err).Str("room_id", roomID).Msg("session finished event publish failed")
		}
	}()
}

// unusedRoomCode draws short codes until one is free among live rooms.
// Callers must hold g.mu.
func (g *Registry) unusedRoomCode() (string, error) {
	for {
		code, err := randomCode(constants.RoomCodeLength)
		if err != nil {
			return "", fmt.Errorf("generate room code: %w", err)
		}
		if _, taken := g.rooms[code]; !taken {
			return code, nil
		}
	}
}

func randomCode(length int) (string, error) {
	alphabet := constants.RoomCodeAlphabet
	buf := make([]byte, length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
		if err != nil {
			return "", err
		}
		buf[i] = alphabet[n.Int64()]
	}
	return string(buf), nil
}

func normalizeCode(roomID string) string {
	return strings.ToUpper(strings.TrimSpace(roomID))
}
