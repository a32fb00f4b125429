package domain

import "errors"

var (
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrInvalidQuiz is returned when a definition fails validation.
	ErrInvalidQuiz = errors.New("invalid quiz definition")
	// ErrAttemptNotFound is returned for unknown or discarded attempts.
	ErrAttemptNotFound = errors.New("attempt not found")
	// ErrQuestionIndex indicates a command addressed a question outside the quiz.
	ErrQuestionIndex = errors.New("question index out of range")
	// ErrAnswerShape indicates an answer value does not fit the question's type.
	ErrAnswerShape = errors.New("answer does not match question type")
	// ErrNotSubmitted is returned when waiting on an attempt that has not been submitted.
	ErrNotSubmitted = errors.New("attempt not submitted")
	// ErrGradingFailed wraps the failure of a grading attempt; the attempt stays submitting.
	ErrGradingFailed = errors.New("grading failed")
)
