package domain

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// ValidateDefinition checks a quiz definition before any attempt is started.
// Every failure wraps ErrInvalidQuiz.
func ValidateDefinition(def QuizDefinition) error {
	if err := structValidator().Struct(def); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			fields := make([]string, 0, len(ve))
			for _, fe := range ve {
				fields = append(fields, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidQuiz, strings.Join(fields, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidQuiz, err)
	}

	seen := make(map[string]int, len(def.Questions))
	for i, q := range def.Questions {
		if prev, ok := seen[q.ID]; ok {
			return fmt.Errorf("%w: question %d reuses id %q of question %d", ErrInvalidQuiz, i, q.ID, prev)
		}
		seen[q.ID] = i
		if err := validateQuestion(q); err != nil {
			return fmt.Errorf("%w: question %d (%s): %v", ErrInvalidQuiz, i, q.ID, err)
		}
	}
	return nil
}

func validateQuestion(q Question) error {
	switch q.Type {
	case QuestionSingleChoice, QuestionTrueFalse:
		if q.Type == QuestionTrueFalse && len(q.Options) != 2 {
			return fmt.Errorf("true-false needs exactly 2 options, got %d", len(q.Options))
		}
		if len(q.Options) < 2 {
			return fmt.Errorf("needs at least 2 options, got %d", len(q.Options))
		}
		if len(q.AnswerKey) != 1 {
			return fmt.Errorf("answer key must hold exactly one index, got %d", len(q.AnswerKey))
		}
		return checkKeyRange(q)
	case QuestionMultiSelect:
		if len(q.Options) < 2 {
			return fmt.Errorf("needs at least 2 options, got %d", len(q.Options))
		}
		if len(q.AnswerKey) == 0 {
			return errors.New("answer key must not be empty")
		}
		dup := make(map[int]struct{}, len(q.AnswerKey))
		for _, k := range q.AnswerKey {
			if _, ok := dup[k]; ok {
				return fmt.Errorf("answer key repeats index %d", k)
			}
			dup[k] = struct{}{}
		}
		return checkKeyRange(q)
	case QuestionFreeText:
		if len(q.Options) > 0 {
			return errors.New("free-text questions take no options")
		}
		if len(q.AnswerKey) > 0 {
			return errors.New("free-text questions are graded manually and take no answer key")
		}
		return nil
	default:
		return fmt.Errorf("unknown question type %q", q.Type)
	}
}

func checkKeyRange(q Question) error {
	for _, k := range q.AnswerKey {
		if k < 0 || k >= len(q.Options) {
			return fmt.Errorf("answer key index %d out of range [0,%d)", k, len(q.Options))
		}
	}
	return nil
}
