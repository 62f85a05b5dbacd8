package attempt

import (
	"fmt"
	"sort"
	"strings"

	"quizlms/internal/content"
)

// ValidationError carries every violation found in a payload or quiz
// configuration. A submission failing any rule is rejected wholesale; nothing
// is persisted.
type ValidationError struct {
	Problems []string `json:"problems"`
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 0 {
		return "validation failed"
	}
	return "validation failed: " + strings.Join(e.Problems, "; ")
}

// validateQuizStructure gates attempt admission: a quiz with no questions, a
// question with fewer than two choices, or a question without exactly one
// correct choice can never be attempted.
func validateQuizStructure(questions []content.Question) *ValidationError {
	if len(questions) == 0 {
		return &ValidationError{Problems: []string{"no questions"}}
	}
	for i := range questions {
		q := &questions[i]
		correct := 0
		for _, c := range q.Choices {
			if c.Correct {
				correct++
			}
		}
		if len(q.Choices) < 2 || correct != 1 {
			return &ValidationError{Problems: []string{
				fmt.Sprintf("invalid answer configuration for question %d", q.ID),
			}}
		}
	}
	return nil
}

// ValidateSubmission structurally checks a response set against the quiz's
// question set. All violations are collected, not just the first. Returns nil
// when the submission is valid.
func ValidateSubmission(responses []ResponseInput, questions []content.Question) *ValidationError {
	known := make(map[int64]*content.Question, len(questions))
	for i := range questions {
		known[questions[i].ID] = &questions[i]
	}

	problems := make([]string, 0)
	seen := make(map[int64]int, len(responses))
	for _, resp := range responses {
		seen[resp.QuestionID]++
		q, ok := known[resp.QuestionID]
		if !ok {
			problems = append(problems, fmt.Sprintf("question %d is not part of this quiz", resp.QuestionID))
			continue
		}
		if _, ok := q.ChoiceByID(resp.ChoiceID); !ok {
			problems = append(problems, fmt.Sprintf("choice %d does not belong to question %d", resp.ChoiceID, resp.QuestionID))
		}
	}

	missing := make([]int64, 0)
	for id := range known {
		if seen[id] == 0 {
			missing = append(missing, id)
		}
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
	for _, id := range missing {
		problems = append(problems, fmt.Sprintf("question %d has no response", id))
	}

	duplicated := make([]int64, 0)
	for id, n := range seen {
		if n > 1 {
			duplicated = append(duplicated, id)
		}
	}
	sort.Slice(duplicated, func(i, j int) bool { return duplicated[i] < duplicated[j] })
	for _, id := range duplicated {
		problems = append(problems, fmt.Sprintf("question %d answered more than once", id))
	}

	if len(problems) == 0 {
		return nil
	}
	return &ValidationError{Problems: problems}
}
