package domain

import "time"

// QuestionType selects how a question is answered and graded.
type QuestionType string

const (
	QuestionSingleChoice QuestionType = "single-choice"
	QuestionTrueFalse    QuestionType = "true-false"
	QuestionMultiSelect  QuestionType = "multi-select"
	QuestionFreeText     QuestionType = "free-text"
)

// AutoGradable reports whether answers can be checked against a stored key.
func (t QuestionType) AutoGradable() bool {
	switch t {
	case QuestionSingleChoice, QuestionTrueFalse, QuestionMultiSelect:
		return true
	default:
		return false
	}
}

// Question is a single item of a quiz.
// AnswerKey holds one option index for single-choice/true-false and a set of
// indices for multi-select. Free-text questions carry no key.
type Question struct {
	ID           string       `json:"id" yaml:"id" validate:"required"`
	Type         QuestionType `json:"type" yaml:"type" validate:"required,oneof=single-choice true-false multi-select free-text"`
	Prompt       string       `json:"prompt" yaml:"prompt" validate:"required"`
	Options      []string     `json:"options,omitempty" yaml:"options,omitempty"`
	AnswerKey    []int        `json:"answerKey,omitempty" yaml:"answerKey,omitempty"`
	MinWordCount int          `json:"minWordCount,omitempty" yaml:"minWordCount,omitempty" validate:"gte=0"`
}

// QuizDefinition is loaded once and never changes for the life of an attempt.
type QuizDefinition struct {
	ID                  string     `json:"id" yaml:"id" validate:"required"`
	Title               string     `json:"title,omitempty" yaml:"title,omitempty"`
	TimeLimitSeconds    int        `json:"timeLimitSeconds" yaml:"timeLimitSeconds" validate:"gt=0"`
	PassingScorePercent int        `json:"passingScorePercent" yaml:"passingScorePercent" validate:"gte=0,lte=100"`
	AllowUnansweredNext bool       `json:"allowUnansweredNext,omitempty" yaml:"allowUnansweredNext,omitempty"`
	Questions           []Question `json:"questions" yaml:"questions" validate:"required,min=1,dive"`
}

// Phase is the coarse lifecycle state of an attempt.
type Phase string

const (
	PhaseInProgress Phase = "in-progress"
	PhaseSubmitting Phase = "submitting"
	PhaseGraded     Phase = "graded"
)

// Outcome is the per-question grading verdict.
type Outcome string

const (
	OutcomeCorrect       Outcome = "correct"
	OutcomeIncorrect     Outcome = "incorrect"
	OutcomePendingReview Outcome = "pending-review"
)

// Verdict is the attempt-level pass/fail decision.
type Verdict string

const (
	VerdictPassed Verdict = "passed"
	VerdictFailed Verdict = "failed"
	// VerdictUndecided is used when no question could be auto-graded.
	VerdictUndecided Verdict = "undecided"
)

// Result is produced once per attempt and is read-only afterwards.
type Result struct {
	QuizID string `json:"quizId"`
	// ScorePercent is nil when the quiz has no auto-gradable questions.
	ScorePercent      *int      `json:"autoGradedScorePercent"`
	Passed            bool      `json:"passed"`
	Verdict           Verdict   `json:"verdict"`
	Outcomes          []Outcome `json:"perQuestionOutcome"`
	CorrectCount      int       `json:"correctCount"`
	AutoGradableCount int       `json:"autoGradableCount"`
	AnsweredCount     int       `json:"answeredCount"`
	FlaggedCount      int       `json:"flaggedCount"`
	UnansweredCount   int       `json:"unansweredCount"`
	Forced            bool      `json:"forced"`
	Answers           []Answer  `json:"answers"`
	GradedAt          time.Time `json:"gradedAt"`
}

// Decidable reports whether pass/fail could be determined automatically.
func (r Result) Decidable() bool {
	return r.ScorePercent != nil
}

// Clone returns a deep copy so callers cannot mutate a stored result.
func (r Result) Clone() Result {
	out := r
	if r.ScorePercent != nil {
		score := *r.ScorePercent
		out.ScorePercent = &score
	}
	out.Outcomes = append([]Outcome(nil), r.Outcomes...)
	out.Answers = make([]Answer, len(r.Answers))
	for i, a := range r.Answers {
		out.Answers[i] = a.clone()
	}
	return out
}

// ResultRecord is what a hosting application persists for an attempt.
type ResultRecord struct {
	AttemptID string `json:"attemptId"`
	LearnerID string `json:"learnerId"`
	Result    Result `json:"result"`
}
