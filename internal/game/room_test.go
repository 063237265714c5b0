package game

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"live-quiz-service/internal/constants"
	"live-quiz-service/internal/models"
	"live-quiz-service/internal/protocol"
)

type fakeSender struct {
	id string

	mu   sync.Mutex
	msgs []protocol.Outgoing
}

func (f *fakeSender) ConnID() string { return f.id }

func (f *fakeSender) Send(msg protocol.Outgoing) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
}

func (f *fakeSender) count(t protocol.EventType) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.msgs {
		if m.Type == t {
			n++
		}
	}
	return n
}

func (f *fakeSender) last(t protocol.EventType) (protocol.Outgoing, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.msgs) - 1; i >= 0; i-- {
		if f.msgs[i].Type == t {
			return f.msgs[i], true
		}
	}
	return protocol.Outgoing{}, false
}

type memStore struct {
	mu        sync.Mutex
	statuses  []string
	players   int
	responses int
}

func (s *memStore) CreateSession(_ context.Context, _ *models.SessionRecord) error { return nil }

func (s *memStore) AddPlayer(_ context.Context, _ string, _ models.PlayerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.players++
	return nil
}

func (s *memStore) AddResponse(_ context.Context, _ string, _ models.ResponseRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses++
	return nil
}

func (s *memStore) SetQuestionStart(_ context.Context, _ string, _ int, _ time.Time) error { return nil }

func (s *memStore) UpdateStatus(_ context.Context, _ string, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, status)
	return nil
}

func (s *memStore) UpdatePlayerScore(_ context.Context, _, _ string, _ int) error { return nil }

func testQuiz(questions int) *models.Quiz {
	qs := make([]models.Question, questions)
	for i := range qs {
		qs[i] = models.Question{
			Title:         fmt.Sprintf("Question %d", i+1),
			Options:       []string{"A", "B", "C", "D"},
			CorrectOption: i % constants.OptionsPerQuestion,
			TimeLimitSec:  20,
		}
	}
	return &models.Quiz{
		ID:        "quiz-1",
		Title:     "General Knowledge",
		Questions: qs,
	}
}

func newRunningRoom(t *testing.T, quiz *models.Quiz, clock clockwork.Clock) *Room {
	t.Helper()
	r := NewRoom(Config{
		RoomID:    "ROOM42",
		SessionID: "session-1",
		Quiz:      quiz,
		Clock:     clock,
		Store:     &memStore{},
		VerifyHostToken: func(tok string) bool {
			return tok == "valid-token"
		},
	})
	go r.Run()
	return r
}

func waitForStatus(t *testing.T, r *Room, want string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return r.Status() == want
	}, time.Second, 5*time.Millisecond, "room never reached status %s", want)
}

func TestStartRequiresHost(t *testing.T) {
	r := newRunningRoom(t, testQuiz(1), clockwork.NewFakeClock())
	player := &fakeSender{id: "p1"}
	require.NoError(t, r.Join(player, "Alice"))

	err := r.Start("p1")
	require.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, constants.StatusCreated, r.Status())
}

func TestStartRequiresAtLeastOnePlayer(t *testing.T) {
	r := newRunningRoom(t, testQuiz(1), clockwork.NewFakeClock())
	host := &fakeSender{id: "h1"}
	require.NoError(t, r.BindHost(host, ""))

	err := r.Start("h1")
	require.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, constants.StatusCreated, r.Status())
}

func TestStartOnlyOnce(t *testing.T) {
	r := newRunningRoom(t, testQuiz(1), clockwork.NewFakeClock())
	host := &fakeSender{id: "h1"}
	require.NoError(t, r.BindHost(host, ""))
	require.NoError(t, r.Join(&fakeSender{id: "p1"}, "Alice"))

	require.NoError(t, r.Start("h1"))
	require.ErrorIs(t, r.Start("h1"), ErrInvalidState)
}

func TestCountdownAdvancesToFirstQuestion(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := newRunningRoom(t, testQuiz(2), clock)
	host := &fakeSender{id: "h1"}
	player := &fakeSender{id: "p1"}
	require.NoError(t, r.BindHost(host, ""))
	require.NoError(t, r.Join(player, "Alice"))

	require.NoError(t, r.Start("h1"))
	assert.Equal(t, constants.StatusCountdown, r.Status())

	clock.Advance(constants.CountdownSeconds * time.Second)
	waitForStatus(t, r, constants.StatusQuestion)

	msg, ok := player.last(protocol.EventNewQuestion)
	require.True(t, ok, "player never received the first question")
	payload := msg.Payload.(protocol.NewQuestionPayload)
	assert.Equal(t, "Question 1", payload.Title)
	assert.Equal(t, []string{"A", "B", "C", "D"}, payload.Options)
	assert.Equal(t, 20, payload.TimeLimit)
}

func TestJoinWindowClosesAtFirstQuestion(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := newRunningRoom(t, testQuiz(1), clock)
	host := &fakeSender{id: "h1"}
	require.NoError(t, r.BindHost(host, ""))
	require.NoError(t, r.Join(&fakeSender{id: "p1"}, "Alice"))

	require.NoError(t, r.Start("h1"))
	// Countdown is still open for late joiners.
	require.NoError(t, r.Join(&fakeSender{id: "p2"}, "Bob"))

	clock.Advance(constants.CountdownSeconds * time.Second)
	waitForStatus(t, r, constants.StatusQuestion)

	err := r.Join(&fakeSender{id: "p3"}, "Carol")
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestJoinRejectsDuplicateNames(t *testing.T) {
	r := newRunningRoom(t, testQuiz(1), clockwork.NewFakeClock())
	require.NoError(t, r.Join(&fakeSender{id: "p1"}, "Alice"))

	err := r.Join(&fakeSender{id: "p2"}, "alice")
	require.ErrorIs(t, err, ErrNameTaken)
}

func TestJoinRejectsEmptyName(t *testing.T) {
	r := newRunningRoom(t, testQuiz(1), clockwork.NewFakeClock())
	require.ErrorIs(t, r.Join(&fakeSender{id: "p1"}, "   "), ErrValidation)
}

func TestJoinSameConnectionRepeatsAck(t *testing.T) {
	r := newRunningRoom(t, testQuiz(1), clockwork.NewFakeClock())
	player := &fakeSender{id: "p1"}
	require.NoError(t, r.Join(player, "Alice"))
	require.NoError(t, r.Join(player, "Alice"))

	assert.Equal(t, 2, player.count(protocol.EventGameJoined))
	assert.Len(t, r.Scores(), 1)
}

func TestSubmitScoresCorrectAnswer(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := newRunningRoom(t, testQuiz(1), clock)
	host := &fakeSender{id: "h1"}
	alice := &fakeSender{id: "p1"}
	bob := &fakeSender{id: "p2"}
	require.NoError(t, r.BindHost(host, ""))
	require.NoError(t, r.Join(alice, "Alice"))
	require.NoError(t, r.Join(bob, "Bob"))

	require.NoError(t, r.Start("h1"))
	clock.Advance(constants.CountdownSeconds * time.Second)
	waitForStatus(t, r, constants.StatusQuestion)

	require.NoError(t, r.Submit("p1", 0)) // correct for question 0
	require.NoError(t, r.Submit("p2", 1)) // wrong

	assert.Equal(t, 1, alice.count(protocol.EventAnswerReceived))
	assert.Equal(t, map[string]int{"Alice": constants.ScoreAward, "Bob": 0}, r.Scores())
}

func TestSubmitDuplicateIsNoOp(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := newRunningRoom(t, testQuiz(1), clock)
	host := &fakeSender{id: "h1"}
	alice := &fakeSender{id: "p1"}
	require.NoError(t, r.BindHost(host, ""))
	require.NoError(t, r.Join(alice, "Alice"))

	require.NoError(t, r.Start("h1"))
	clock.Advance(constants.CountdownSeconds * time.Second)
	waitForStatus(t, r, constants.StatusQuestion)

	require.NoError(t, r.Submit("p1", 0))
	require.NoError(t, r.Submit("p1", 2))

	assert.Equal(t, 2, alice.count(protocol.EventAnswerReceived))
	assert.Equal(t, map[string]int{"Alice": constants.ScoreAward}, r.Scores())
}

func TestSubmitValidation(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := newRunningRoom(t, testQuiz(1), clock)
	host := &fakeSender{id: "h1"}
	require.NoError(t, r.BindHost(host, ""))
	require.NoError(t, r.Join(&fakeSender{id: "p1"}, "Alice"))

	// No question open yet.
	require.ErrorIs(t, r.Submit("p1", 0), ErrInvalidState)

	require.NoError(t, r.Start("h1"))
	clock.Advance(constants.CountdownSeconds * time.Second)
	waitForStatus(t, r, constants.StatusQuestion)

	require.ErrorIs(t, r.Submit("stranger", 0), ErrUnauthorized)
	require.ErrorIs(t, r.Submit("p1", -1), ErrValidation)
	require.ErrorIs(t, r.Submit("p1", 4), ErrValidation)
}

func TestQuestionTimerClosesQuestion(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := newRunningRoom(t, testQuiz(1), clock)
	host := &fakeSender{id: "h1"}
	alice := &fakeSender{id: "p1"}
	require.NoError(t, r.BindHost(host, ""))
	require.NoError(t, r.Join(alice, "Alice"))

	require.NoError(t, r.Start("h1"))
	clock.Advance(constants.CountdownSeconds * time.Second)
	waitForStatus(t, r, constants.StatusQuestion)

	require.NoError(t, r.Submit("p1", 0))

	clock.Advance(20 * time.Second)
	waitForStatus(t, r, constants.StatusShowingResults)

	msg, ok := alice.last(protocol.EventQuestionResult)
	require.True(t, ok)
	payload := msg.Payload.(protocol.QuestionResultPayload)
	assert.Equal(t, 0, payload.CorrectOptionIndex)
	assert.Equal(t, map[int]int{0: 1}, payload.Tally)
}

func TestHostCloseAndTimerRaceDeliverOneResult(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := newRunningRoom(t, testQuiz(1), clock)
	host := &fakeSender{id: "h1"}
	alice := &fakeSender{id: "p1"}
	require.NoError(t, r.BindHost(host, ""))
	require.NoError(t, r.Join(alice, "Alice"))

	require.NoError(t, r.Start("h1"))
	clock.Advance(constants.CountdownSeconds * time.Second)
	waitForStatus(t, r, constants.StatusQuestion)

	require.NoError(t, r.ShowResults("h1"))
	clock.Advance(20 * time.Second)

	// The stale timer must not re-close the question.
	assert.Never(t, func() bool {
		return alice.count(protocol.EventQuestionResult) > 1
	}, 100*time.Millisecond, 10*time.Millisecond)
	assert.Equal(t, 1, alice.count(protocol.EventQuestionResult))
	assert.Equal(t, 1, host.count(protocol.EventQuestionResult))
}

func TestShowResultsRequiresOpenQuestion(t *testing.T) {
	r := newRunningRoom(t, testQuiz(1), clockwork.NewFakeClock())
	host := &fakeSender{id: "h1"}
	require.NoError(t, r.BindHost(host, ""))
	require.ErrorIs(t, r.ShowResults("h1"), ErrInvalidState)
}

func TestNextAdvancesAndFinishes(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := newRunningRoom(t, testQuiz(2), clock)
	host := &fakeSender{id: "h1"}
	alice := &fakeSender{id: "p1"}
	require.NoError(t, r.BindHost(host, ""))
	require.NoError(t, r.Join(alice, "Alice"))

	require.NoError(t, r.Start("h1"))
	clock.Advance(constants.CountdownSeconds * time.Second)
	waitForStatus(t, r, constants.StatusQuestion)

	require.ErrorIs(t, r.Next("h1"), ErrInvalidState)

	require.NoError(t, r.ShowResults("h1"))
	require.NoError(t, r.Next("h1"))
	assert.Equal(t, constants.StatusQuestion, r.Status())

	msg, ok := alice.last(protocol.EventNewQuestion)
	require.True(t, ok)
	assert.Equal(t, "Question 2", msg.Payload.(protocol.NewQuestionPayload).Title)

	require.NoError(t, r.ShowResults("h1"))
	require.NoError(t, r.Next("h1"))

	over, ok := alice.last(protocol.EventGameOver)
	require.True(t, ok, "player never received game over")
	assert.NotEmpty(t, over.Payload.(protocol.GameOverPayload).Leaderboard)

	// The actor has exited; further commands report the room as gone.
	require.ErrorIs(t, r.Submit("p1", 0), ErrRoomNotFound)
}

func TestHostRebindNeedsToken(t *testing.T) {
	r := newRunningRoom(t, testQuiz(1), clockwork.NewFakeClock())
	first := &fakeSender{id: "h1"}
	require.NoError(t, r.BindHost(first, ""))

	intruder := &fakeSender{id: "h2"}
	require.ErrorIs(t, r.BindHost(intruder, ""), ErrUnauthorized)
	require.ErrorIs(t, r.BindHost(intruder, "forged"), ErrUnauthorized)

	replacement := &fakeSender{id: "h3"}
	require.NoError(t, r.BindHost(replacement, "valid-token"))
	require.NoError(t, r.Join(&fakeSender{id: "p1"}, "Alice"))
	require.NoError(t, r.Start("h3"))
	require.ErrorIs(t, r.Start("h1"), ErrUnauthorized)
}

func TestHostDisconnectKeepsRoomOpen(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := newRunningRoom(t, testQuiz(1), clock)
	host := &fakeSender{id: "h1"}
	alice := &fakeSender{id: "p1"}
	require.NoError(t, r.BindHost(host, ""))
	require.NoError(t, r.Join(alice, "Alice"))
	require.NoError(t, r.Start("h1"))
	clock.Advance(constants.CountdownSeconds * time.Second)
	waitForStatus(t, r, constants.StatusQuestion)

	r.Leave("h1")
	require.Eventually(t, func() bool {
		return r.Start("h1") != nil
	}, time.Second, 5*time.Millisecond)

	// Answers keep flowing while the host seat is vacant.
	require.NoError(t, r.Submit("p1", 0))

	rejoined := &fakeSender{id: "h2"}
	require.NoError(t, r.BindHost(rejoined, "valid-token"))
	require.NoError(t, r.ShowResults("h2"))
	assert.Equal(t, constants.StatusShowingResults, r.Status())
}

func TestPlayerLeaveBroadcasts(t *testing.T) {
	r := newRunningRoom(t, testQuiz(1), clockwork.NewFakeClock())
	alice := &fakeSender{id: "p1"}
	bob := &fakeSender{id: "p2"}
	require.NoError(t, r.Join(alice, "Alice"))
	require.NoError(t, r.Join(bob, "Bob"))

	r.Leave("p1")
	require.Eventually(t, func() bool {
		return bob.count(protocol.EventPlayerLeft) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Len(t, r.Scores(), 1)
}

func TestFullGameFlow(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var finished struct {
		mu          sync.Mutex
		called      bool
		leaderboard []protocol.LeaderboardEntry
	}
	r := NewRoom(Config{
		RoomID:    "ROOM42",
		SessionID: "session-1",
		Quiz:      testQuiz(2),
		Clock:     clock,
		Store:     &memStore{},
		OnFinished: func(roomID, sessionID string, lb []protocol.LeaderboardEntry) {
			finished.mu.Lock()
			defer finished.mu.Unlock()
			finished.called = true
			finished.leaderboard = lb
		},
	})
	go r.Run()

	host := &fakeSender{id: "h1"}
	alice := &fakeSender{id: "p1"}
	bob := &fakeSender{id: "p2"}
	carol := &fakeSender{id: "p3"}
	require.NoError(t, r.BindHost(host, ""))
	require.NoError(t, r.Join(alice, "Alice"))
	require.NoError(t, r.Join(bob, "Bob"))
	require.NoError(t, r.Join(carol, "Carol"))

	require.NoError(t, r.Start("h1"))
	clock.Advance(constants.CountdownSeconds * time.Second)
	waitForStatus(t, r, constants.StatusQuestion)

	// Question 1: correct option 0. Alice and Bob score, Carol misses.
	require.NoError(t, r.Submit("p1", 0))
	require.NoError(t, r.Submit("p2", 0))
	require.NoError(t, r.Submit("p3", 3))
	require.NoError(t, r.ShowResults("h1"))
	require.NoError(t, r.Next("h1"))
	waitForStatus(t, r, constants.StatusQuestion)

	// Question 2: correct option 1. Only Alice scores; Carol never answers.
	require.NoError(t, r.Submit("p1", 1))
	require.NoError(t, r.Submit("p2", 2))
	require.NoError(t, r.ShowResults("h1"))
	require.NoError(t, r.Next("h1"))

	require.Eventually(t, func() bool {
		finished.mu.Lock()
		defer finished.mu.Unlock()
		return finished.called
	}, time.Second, 5*time.Millisecond)

	finished.mu.Lock()
	defer finished.mu.Unlock()
	require.Len(t, finished.leaderboard, 3)
	assert.Equal(t, protocol.LeaderboardEntry{Name: "Alice", Score: 2 * constants.ScoreAward}, finished.leaderboard[0])
	assert.Equal(t, protocol.LeaderboardEntry{Name: "Bob", Score: constants.ScoreAward}, finished.leaderboard[1])
	assert.Equal(t, protocol.LeaderboardEntry{Name: "Carol", Score: 0}, finished.leaderboard[2])

	for _, p := range []*fakeSender{alice, bob, carol} {
		assert.Equal(t, 2, p.count(protocol.EventNewQuestion))
		assert.Equal(t, 2, p.count(protocol.EventQuestionResult))
		assert.Equal(t, 1, p.count(protocol.EventGameOver))
	}
}

// flakyStatusStore fails the first write of one chosen status, then behaves.
type flakyStatusStore struct {
	memStore
	failOnce string
}

func (s *flakyStatusStore) UpdateStatus(ctx context.Context, sessionID, status string) error {
	s.mu.Lock()
	if status == s.failOnce {
		s.failOnce = ""
		s.mu.Unlock()
		return fmt.Errorf("connection reset by peer")
	}
	s.mu.Unlock()
	return s.memStore.UpdateStatus(ctx, sessionID, status)
}

func (s *flakyStatusStore) recorded() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.statuses...)
}

func TestStatusWritesKeepOrderUnderRetry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := &flakyStatusStore{failOnce: constants.StatusShowingResults}
	r := NewRoom(Config{
		RoomID:    "ROOM42",
		SessionID: "session-1",
		Quiz:      testQuiz(1),
		Clock:     clock,
		Store:     store,
	})
	go r.Run()

	host := &fakeSender{id: "h1"}
	require.NoError(t, r.BindHost(host, ""))
	require.NoError(t, r.Join(&fakeSender{id: "p1"}, "Alice"))
	require.NoError(t, r.Start("h1"))
	clock.Advance(constants.CountdownSeconds * time.Second)
	waitForStatus(t, r, constants.StatusQuestion)

	require.NoError(t, r.ShowResults("h1"))
	require.NoError(t, r.Next("h1"))

	// The retried SHOWING_RESULTS write must land before FINISHED, so the
	// final durable status matches the final room status.
	require.Eventually(t, func() bool {
		got := store.recorded()
		return len(got) > 0 && got[len(got)-1] == constants.StatusFinished
	}, 3*time.Second, 10*time.Millisecond, "final persisted status never became FINISHED")
	assert.Equal(t, []string{
		constants.StatusCountdown,
		constants.StatusQuestion,
		constants.StatusShowingResults,
		constants.StatusFinished,
	}, store.recorded())
}

func TestPlayerLeaveDuringQuestion(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := newRunningRoom(t, testQuiz(1), clock)
	host := &fakeSender{id: "h1"}
	alice := &fakeSender{id: "p1"}
	bob := &fakeSender{id: "p2"}
	require.NoError(t, r.BindHost(host, ""))
	require.NoError(t, r.Join(alice, "Alice"))
	require.NoError(t, r.Join(bob, "Bob"))

	require.NoError(t, r.Start("h1"))
	clock.Advance(constants.CountdownSeconds * time.Second)
	waitForStatus(t, r, constants.StatusQuestion)

	r.Leave("p1")
	require.Eventually(t, func() bool {
		return len(r.Scores()) == 1
	}, time.Second, 5*time.Millisecond)

	clock.Advance(20 * time.Second)
	waitForStatus(t, r, constants.StatusShowingResults)

	assert.Equal(t, 1, bob.count(protocol.EventQuestionResult))
	assert.Equal(t, 0, alice.count(protocol.EventQuestionResult))

	require.NoError(t, r.Next("h1"))
	over, ok := bob.last(protocol.EventGameOver)
	require.True(t, ok)
	leaderboard := over.Payload.(protocol.GameOverPayload).Leaderboard
	require.Len(t, leaderboard, 1)
	assert.Equal(t, "Bob", leaderboard[0].Name)
}
