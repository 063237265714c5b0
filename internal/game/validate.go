package game

import (
	"fmt"
	"strings"

	"live-quiz-service/internal/constants"
	"live-quiz-service/internal/models"
)

// ValidateQuiz checks the shape a quiz must have before a game can be created
// from it: a title, at least one question, exactly four options per question,
// a correct index inside the options, and a positive whole-second time limit.
func ValidateQuiz(q *models.Quiz) error {
	if strings.TrimSpace(q.Title) == "" {
		return fmt.Errorf("%w: quiz title is empty", ErrValidation)
	}
	if len(q.Questions) == 0 {
		return fmt.Errorf("%w: quiz has no questions", ErrValidation)
	}
	for i, question := range q.Questions {
		if strings.TrimSpace(question.Title) == "" {
			return fmt.Errorf("%w: question %d has no title", ErrValidation, i)
		}
		if len(question.Options) != constants.OptionsPerQuestion {
			return fmt.Errorf("%w: question %d has %d options, want %d",
				ErrValidation, i, len(question.Options), constants.OptionsPerQuestion)
		}
		if question.CorrectOption < 0 || question.CorrectOption >= constants.OptionsPerQuestion {
			return fmt.Errorf("%w: question %d correct option %d out of range",
				ErrValidation, i, question.CorrectOption)
		}
		if question.TimeLimitSec <= 0 {
			return fmt.Errorf("%w: question %d time limit must be positive", ErrValidation, i)
		}
	}
	return nil
}
