package app

import (
	"fmt"

	"inclusion-quiz-service/internal/domain"
	"inclusion-quiz-service/internal/grading"
)

// QuestionView is a question as shown to the learner, without its answer key.
type QuestionView struct {
	Index        int                 `json:"index"`
	ID           string              `json:"id"`
	Type         domain.QuestionType `json:"type"`
	Prompt       string              `json:"prompt"`
	Options      []string            `json:"options,omitempty"`
	MinWordCount int                 `json:"minWordCount,omitempty"`
}

// SubmitSummary is shown on the confirmation step. It never blocks confirming.
type SubmitSummary struct {
	Answered   int `json:"answered"`
	Flagged    int `json:"flagged"`
	Unanswered int `json:"unanswered"`
}

// View is the snapshot a presentation layer renders.
type View struct {
	AttemptID            string         `json:"attemptId"`
	QuizID               string         `json:"quizId"`
	Phase                domain.Phase   `json:"phase"`
	Closed               bool           `json:"closed"`
	CurrentIndex         int            `json:"currentIndex"`
	QuestionCount        int            `json:"questionCount"`
	Question             QuestionView   `json:"question"`
	Answer               domain.Answer  `json:"answer"`
	Answered             bool           `json:"answered"`
	WordCount            int            `json:"wordCount,omitempty"`
	MeetsMinWordCount    bool           `json:"meetsMinWordCount"`
	Flagged              []int          `json:"flagged"`
	AnsweredIndices      []int          `json:"answeredIndices"`
	ProgressPercent      int            `json:"progressPercent"`
	RemainingSeconds     int            `json:"remainingSeconds"`
	RemainingClock       string         `json:"remainingClock"`
	CanGoNext            bool           `json:"canGoNext"`
	CanGoPrev            bool           `json:"canGoPrev"`
	IsLastQuestion       bool           `json:"isLastQuestion"`
	AwaitingConfirmation bool           `json:"awaitingConfirmation"`
	Summary              SubmitSummary  `json:"summary"`
	GradingError         string         `json:"gradingError,omitempty"`
	Result               *domain.Result `json:"result,omitempty"`
}

func (s *Session) viewLocked() View {
	q := s.def.Questions[s.current]
	a := s.answers[s.current]

	answered := make([]int, 0, len(s.answers))
	for i, ans := range s.answers {
		if grading.IsAnswered(s.def.Questions[i], ans) {
			answered = append(answered, i)
		}
	}

	v := View{
		AttemptID:     s.id,
		QuizID:        s.def.ID,
		Phase:         s.phase,
		Closed:        s.closed,
		CurrentIndex:  s.current,
		QuestionCount: len(s.answers),
		Question: QuestionView{
			Index:        s.current,
			ID:           q.ID,
			Type:         q.Type,
			Prompt:       q.Prompt,
			Options:      append([]string(nil), q.Options...),
			MinWordCount: q.MinWordCount,
		},
		Answer:               a,
		Answered:             grading.IsAnswered(q, a),
		MeetsMinWordCount:    grading.MeetsMinWordCount(q, a),
		Flagged:              s.flaggedLocked(),
		AnsweredIndices:      answered,
		ProgressPercent:      len(answered) * 100 / len(s.answers),
		RemainingSeconds:     s.remaining,
		RemainingClock:       FormatClock(s.remaining),
		CanGoNext:            s.canGoNextLocked(),
		CanGoPrev:            s.canGoPrevLocked(),
		IsLastQuestion:       s.current == len(s.answers)-1,
		AwaitingConfirmation: s.confirming,
		Summary: SubmitSummary{
			Answered:   len(answered),
			Flagged:    len(s.flagged),
			Unanswered: len(s.answers) - len(answered),
		},
	}
	if text, ok := a.TextValue(); ok {
		v.WordCount = grading.WordCount(text)
	}
	if s.gradeErr != nil {
		v.GradingError = s.gradeErr.Error()
	}
	if s.result != nil {
		res := s.result.Clone()
		v.Result = &res
	}
	return v
}

// FormatClock renders seconds as minutes:seconds with zero-padded seconds.
func FormatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
