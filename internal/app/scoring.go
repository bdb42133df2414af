package app

import (
	"strings"

	"competition-service/internal/domain"
)

// evaluateAnswer checks a submission against the question's correct-answer
// set. Choice questions require exact set equality between the selected and
// correct sets unless partialCredit is on, in which case a non-empty subset
// of the correct set also counts. Short answers match any correct answer
// case-insensitively after trimming.
func evaluateAnswer(q domain.Question, sub domain.AnswerSubmission, partialCredit bool) bool {
	switch q.Type {
	case domain.QuestionMultipleChoice, domain.QuestionTrueFalse:
		if partialCredit && q.Type == domain.QuestionMultipleChoice {
			return answerSubset(sub.SelectedAnswers, q.CorrectAnswers)
		}
		return answerSetsEqual(sub.SelectedAnswers, q.CorrectAnswers)
	case domain.QuestionShortAnswer:
		given := normalizeAnswer(sub.UserAnswer)
		if given == "" {
			return false
		}
		for _, correct := range q.CorrectAnswers {
			if given == normalizeAnswer(correct) {
				return true
			}
		}
		return false
	}
	return false
}

func answerSetsEqual(selected, correct []string) bool {
	if len(selected) == 0 || len(correct) == 0 {
		return false
	}
	want := make(map[string]struct{}, len(correct))
	for _, answer := range correct {
		want[normalizeAnswer(answer)] = struct{}{}
	}
	seen := make(map[string]struct{}, len(selected))
	for _, answer := range selected {
		key := normalizeAnswer(answer)
		if _, ok := want[key]; !ok {
			return false
		}
		seen[key] = struct{}{}
	}
	return len(seen) == len(want)
}

// answerSubset reports whether every selected answer is correct and at least
// one was selected.
func answerSubset(selected, correct []string) bool {
	if len(selected) == 0 || len(correct) == 0 {
		return false
	}
	want := make(map[string]struct{}, len(correct))
	for _, answer := range correct {
		want[normalizeAnswer(answer)] = struct{}{}
	}
	for _, answer := range selected {
		if _, ok := want[normalizeAnswer(answer)]; !ok {
			return false
		}
	}
	return true
}

func normalizeAnswer(answer string) string {
	return strings.ToLower(strings.TrimSpace(answer))
}
