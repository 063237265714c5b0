package handlers

import (
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"live-quiz-service/internal/models"
	"live-quiz-service/pkg/cache"
)

// SessionReader reads back a persisted session for reporting.
type SessionReader interface {
	GetSessionByRoom(ctx context.Context, roomID string) (*models.SessionRecord, error)
}

// QuizSource resolves the quiz a session was played from.
type QuizSource interface {
	GetQuiz(ctx context.Context, quizID string) (*models.Quiz, error)
}

type ExportHandler struct {
	sessions SessionReader
	quizzes  QuizSource
	cache    *cache.RedisClient // optional
}

func NewExportHandler(sessions SessionReader, quizzes QuizSource, redisCache *cache.RedisClient) *ExportHandler {
	return &ExportHandler{
		sessions: sessions,
		quizzes:  quizzes,
		cache:    redisCache,
	}
}

var exportHeader = []string{
	"Player Name",
	"Question Index",
	"Question Title",
	"Answer Selected",
	"Correct Answer",
	"Is Correct",
	"Time Taken (s)",
	"Score Awarded",
}

// HandleExport renders the persisted response log of a room's latest session
// as CSV, one row per recorded response.
func (h *ExportHandler) HandleExport(c *gin.Context) {
	roomID := strings.ToUpper(strings.TrimSpace(c.Param("roomID")))

	rec, err := h.sessions.GetSessionByRoom(c.Request.Context(), roomID)
	if err != nil {
		c.JSON(httpStatusFor(err), gin.H{"error": err.Error()})
		return
	}

	quiz, err := h.lookupQuiz(c.Request.Context(), rec)
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msg("export: quiz lookup failed")
		c.JSON(httpStatusFor(err), gin.H{"error": "Failed to resolve quiz for session"})
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename=results_%s.csv`, roomID))

	w := csv.NewWriter(c.Writer)
	w.Write(exportHeader)
	for _, row := range exportRows(rec, quiz) {
		w.Write(row)
	}
	w.Flush()
}

// lookupQuiz prefers the Redis snapshot taken when the game was created and
// falls back to the catalog.
func (h *ExportHandler) lookupQuiz(ctx context.Context, rec *models.SessionRecord) (*models.Quiz, error) {
	if h.cache != nil {
		if quiz, err := h.cache.GetQuizSnapshot(ctx, rec.RoomID); err == nil && quiz.ID == rec.QuizID {
			return quiz, nil
		}
	}
	return h.quizzes.GetQuiz(ctx, rec.QuizID)
}

func exportRows(rec *models.SessionRecord, quiz *models.Quiz) [][]string {
	players := lo.KeyBy(rec.Players, func(p models.PlayerRecord) string {
		return p.ConnectionID
	})

	rows := make([][]string, 0, len(rec.Responses))
	for _, resp := range rec.Responses {
		name := "Unknown"
		if p, ok := players[resp.ConnectionID]; ok {
			name = p.Name
		}

		title, selected, correct := "", strconv.Itoa(resp.OptionIndex), ""
		if resp.QuestionIndex < len(quiz.Questions) {
			q := quiz.Questions[resp.QuestionIndex]
			title = q.Title
			if resp.OptionIndex < len(q.Options) {
				selected = q.Options[resp.OptionIndex]
			}
			correct = q.Options[q.CorrectOption]
		}

		timeTaken := "N/A"
		if start, ok := rec.QuestionStarts[resp.QuestionIndex]; ok && resp.SubmittedAt.After(start) {
			timeTaken = strconv.FormatFloat(resp.SubmittedAt.Sub(start).Seconds(), 'f', 2, 64)
		}

		isCorrect := "No"
		if resp.IsCorrect {
			isCorrect = "Yes"
		}

		rows = append(rows, []string{
			name,
			strconv.Itoa(resp.QuestionIndex + 1),
			title,
			selected,
			correct,
			isCorrect,
			timeTaken,
			strconv.Itoa(resp.ScoreAwarded),
		})
	}
	return rows
}
