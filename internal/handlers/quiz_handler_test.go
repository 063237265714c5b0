package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"live-quiz-service/internal/models"
)

type memQuizStore struct {
	created []*models.Quiz
}

func (m *memQuizStore) CreateQuiz(_ context.Context, quiz *models.Quiz) error {
	quiz.ID = uuid.New().String()
	m.created = append(m.created, quiz)
	return nil
}

func (m *memQuizStore) ListQuizzes(_ context.Context) ([]*models.Quiz, error) {
	return m.created, nil
}

func quizRouter(store QuizStore) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	h := NewQuizHandler(store)
	router.POST("/quizzes", h.CreateQuiz)
	router.GET("/quizzes", h.ListQuizzes)
	return router
}

const validQuizJSON = `{
	"title": "Capitals",
	"questions": [
		{
			"title": "Capital of France?",
			"options": ["Paris", "Lyon", "Nice", "Lille"],
			"correctOption": 0,
			"timeLimit": 30
		}
	]
}`

func TestCreateQuiz(t *testing.T) {
	store := &memQuizStore{}
	router := quizRouter(store)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/quizzes", strings.NewReader(validQuizJSON))
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, store.created, 1)

	var created models.Quiz
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Capitals", created.Title)
}

func TestCreateQuizRejectsMalformedQuestions(t *testing.T) {
	store := &memQuizStore{}
	router := quizRouter(store)

	body := `{"title": "Capitals", "questions": [{"title": "Q", "options": ["A", "B"], "correctOption": 0, "timeLimit": 30}]}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/quizzes", strings.NewReader(body))
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, store.created)
}

func TestListQuizzesEmpty(t *testing.T) {
	router := quizRouter(&memQuizStore{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/quizzes", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"quizzes": []}`, w.Body.String())
}
