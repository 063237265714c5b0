package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"live-quiz-service/internal/game"
	"live-quiz-service/internal/models"
)

// QuizStore is what the REST surface needs from the quiz catalog.
type QuizStore interface {
	CreateQuiz(ctx context.Context, quiz *models.Quiz) error
	ListQuizzes(ctx context.Context) ([]*models.Quiz, error)
}

type QuizHandler struct {
	quizzes QuizStore
}

func NewQuizHandler(quizzes QuizStore) *QuizHandler {
	return &QuizHandler{quizzes: quizzes}
}

type createQuizRequest struct {
	Title     string            `json:"title"`
	Questions []models.Question `json:"questions"`
}

func (h *QuizHandler) CreateQuiz(c *gin.Context) {
	var req createQuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid quiz payload"})
		return
	}

	quiz := &models.Quiz{
		Title:     req.Title,
		Questions: req.Questions,
	}
	if err := game.ValidateQuiz(quiz); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.quizzes.CreateQuiz(c.Request.Context(), quiz); err != nil {
		log.Error().Err(err).Msg("create quiz failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create quiz"})
		return
	}

	c.JSON(http.StatusCreated, quiz)
}

func (h *QuizHandler) ListQuizzes(c *gin.Context) {
	quizzes, err := h.quizzes.ListQuizzes(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("list quizzes failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list quizzes"})
		return
	}
	if quizzes == nil {
		quizzes = []*models.Quiz{}
	}

	c.JSON(http.StatusOK, gin.H{"quizzes": quizzes})
}

func httpStatusFor(err error) int {
	switch {
	case errors.Is(err, game.ErrRoomNotFound), errors.Is(err, game.ErrQuizNotFound):
		return http.StatusNotFound
	case errors.Is(err, game.ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
