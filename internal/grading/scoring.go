package grading

import (
	"inclusion-quiz-service/internal/domain"
)

// Grade scores answers against the definition's keys.
//
// Free-text questions are left for manual review and stay out of both the
// numerator and the denominator. Unanswered auto-gradable questions count as
// incorrect. Multi-select is all-or-nothing on exact set equality.
func Grade(def domain.QuizDefinition, answers []domain.Answer, flagged []int) domain.Result {
	res := domain.Result{
		QuizID:   def.ID,
		Outcomes: make([]domain.Outcome, len(def.Questions)),
		Answers:  make([]domain.Answer, len(def.Questions)),
	}

	for i, q := range def.Questions {
		a := domain.Unanswered()
		if i < len(answers) {
			a = answers[i]
		}
		res.Answers[i] = a

		if IsAnswered(q, a) {
			res.AnsweredCount++
		} else {
			res.UnansweredCount++
		}

		if !q.Type.AutoGradable() {
			res.Outcomes[i] = domain.OutcomePendingReview
			continue
		}
		res.AutoGradableCount++
		if isCorrect(q, a) {
			res.CorrectCount++
			res.Outcomes[i] = domain.OutcomeCorrect
		} else {
			res.Outcomes[i] = domain.OutcomeIncorrect
		}
	}
	res.FlaggedCount = countFlagged(flagged, len(def.Questions))
	res = res.Clone()

	if res.AutoGradableCount == 0 {
		res.Verdict = domain.VerdictUndecided
		return res
	}
	score := roundPercent(res.CorrectCount, res.AutoGradableCount)
	res.ScorePercent = &score
	res.Passed = score >= def.PassingScorePercent
	if res.Passed {
		res.Verdict = domain.VerdictPassed
	} else {
		res.Verdict = domain.VerdictFailed
	}
	return res
}

func isCorrect(q domain.Question, a domain.Answer) bool {
	if !IsAnswered(q, a) {
		return false
	}
	switch q.Type {
	case domain.QuestionSingleChoice, domain.QuestionTrueFalse:
		idx, _ := a.ChoiceIndex()
		return len(q.AnswerKey) == 1 && idx == q.AnswerKey[0]
	case domain.QuestionMultiSelect:
		set, _ := a.SelectionSet()
		return setEqual(toSet(set), toSet(q.AnswerKey))
	default:
		return false
	}
}

// roundPercent is round-half-up of 100*num/den, in integers.
func roundPercent(num, den int) int {
	return (200*num + den) / (2 * den)
}

func countFlagged(flagged []int, questionCount int) int {
	seen := make(map[int]struct{}, len(flagged))
	for _, i := range flagged {
		if i >= 0 && i < questionCount {
			seen[i] = struct{}{}
		}
	}
	return len(seen)
}

func toSet(arr []int) map[int]struct{} {
	m := make(map[int]struct{}, len(arr))
	for _, v := range arr {
		m[v] = struct{}{}
	}
	return m
}

func setEqual(a, b map[int]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
