package grading

import (
	"fmt"
	"strings"

	"inclusion-quiz-service/internal/domain"
)

// IsAnswered reports whether a slot counts as answered for its question.
// An empty selection or whitespace-only text is the same as no answer.
func IsAnswered(q domain.Question, a domain.Answer) bool {
	switch q.Type {
	case domain.QuestionSingleChoice, domain.QuestionTrueFalse:
		idx, ok := a.ChoiceIndex()
		return ok && idx >= 0 && idx < len(q.Options)
	case domain.QuestionMultiSelect:
		set, ok := a.SelectionSet()
		return ok && len(set) > 0
	case domain.QuestionFreeText:
		text, ok := a.TextValue()
		return ok && strings.TrimSpace(text) != ""
	default:
		return false
	}
}

// CheckShape rejects answers whose kind does not fit the question type, and
// option indices outside the question. The unanswered sentinel always fits.
func CheckShape(q domain.Question, a domain.Answer) error {
	if a.IsNone() {
		return nil
	}
	switch q.Type {
	case domain.QuestionSingleChoice, domain.QuestionTrueFalse:
		idx, ok := a.ChoiceIndex()
		if !ok {
			return fmt.Errorf("%w: %s question %s takes a single option, got %s", domain.ErrAnswerShape, q.Type, q.ID, a)
		}
		if idx < 0 || idx >= len(q.Options) {
			return fmt.Errorf("%w: option %d out of range for question %s", domain.ErrAnswerShape, idx, q.ID)
		}
	case domain.QuestionMultiSelect:
		set, ok := a.SelectionSet()
		if !ok {
			return fmt.Errorf("%w: multi-select question %s takes a set of options, got %s", domain.ErrAnswerShape, q.ID, a)
		}
		for _, idx := range set {
			if idx < 0 || idx >= len(q.Options) {
				return fmt.Errorf("%w: option %d out of range for question %s", domain.ErrAnswerShape, idx, q.ID)
			}
		}
	case domain.QuestionFreeText:
		if _, ok := a.TextValue(); !ok {
			return fmt.Errorf("%w: free-text question %s takes text, got %s", domain.ErrAnswerShape, q.ID, a)
		}
	default:
		return fmt.Errorf("%w: unknown question type %q", domain.ErrAnswerShape, q.Type)
	}
	return nil
}

// WordCount counts whitespace-delimited tokens.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

// MeetsMinWordCount is an advisory hint for free-text questions. It never
// gates answering, navigation or submission.
func MeetsMinWordCount(q domain.Question, a domain.Answer) bool {
	if q.Type != domain.QuestionFreeText || q.MinWordCount <= 0 {
		return true
	}
	text, _ := a.TextValue()
	return WordCount(text) >= q.MinWordCount
}
