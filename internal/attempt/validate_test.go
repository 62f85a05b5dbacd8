package attempt

import (
	"strings"
	"testing"

	"quizlms/internal/content"
)

func TestValidateSubmission(t *testing.T) {
	questions := []content.Question{
		testQuestion(1, 0, 4),
		testQuestion(2, 1, 4),
	}

	tests := []struct {
		name      string
		responses []ResponseInput
		wantValid bool
		wantParts []string
	}{
		{
			name: "valid full set",
			responses: []ResponseInput{
				{QuestionID: 1, ChoiceID: choiceID(1, 0)},
				{QuestionID: 2, ChoiceID: choiceID(2, 3)},
			},
			wantValid: true,
		},
		{
			name: "missing question",
			responses: []ResponseInput{
				{QuestionID: 1, ChoiceID: choiceID(1, 0)},
			},
			wantParts: []string{"question 2 has no response"},
		},
		{
			name:      "empty submission reports every question",
			responses: nil,
			wantParts: []string{"question 1 has no response", "question 2 has no response"},
		},
		{
			name: "duplicate question",
			responses: []ResponseInput{
				{QuestionID: 1, ChoiceID: choiceID(1, 0)},
				{QuestionID: 1, ChoiceID: choiceID(1, 1)},
				{QuestionID: 2, ChoiceID: choiceID(2, 0)},
			},
			wantParts: []string{"question 1 answered more than once"},
		},
		{
			name: "foreign question",
			responses: []ResponseInput{
				{QuestionID: 1, ChoiceID: choiceID(1, 0)},
				{QuestionID: 2, ChoiceID: choiceID(2, 0)},
				{QuestionID: 99, ChoiceID: 5},
			},
			wantParts: []string{"question 99 is not part of this quiz"},
		},
		{
			name: "choice from another question",
			responses: []ResponseInput{
				{QuestionID: 1, ChoiceID: choiceID(2, 0)},
				{QuestionID: 2, ChoiceID: choiceID(2, 0)},
			},
			wantParts: []string{"choice 20 does not belong to question 1"},
		},
		{
			name: "multiple violations collected",
			responses: []ResponseInput{
				{QuestionID: 99, ChoiceID: 5},
				{QuestionID: 2, ChoiceID: 12345},
			},
			wantParts: []string{
				"question 99 is not part of this quiz",
				"choice 12345 does not belong to question 2",
				"question 1 has no response",
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			verr := ValidateSubmission(tc.responses, questions)
			if tc.wantValid {
				if verr != nil {
					t.Fatalf("expected valid, got %v", verr)
				}
				return
			}
			if verr == nil {
				t.Fatalf("expected validation error")
			}
			for _, part := range tc.wantParts {
				found := false
				for _, p := range verr.Problems {
					if p == part {
						found = true
						break
					}
				}
				if !found {
					t.Fatalf("expected problem %q in %v", part, verr.Problems)
				}
			}
		})
	}
}

func TestValidateQuizStructure(t *testing.T) {
	valid := []content.Question{testQuestion(1, 0, 2)}
	if verr := validateQuizStructure(valid); verr != nil {
		t.Fatalf("expected valid structure, got %v", verr)
	}

	if verr := validateQuizStructure(nil); verr == nil || verr.Problems[0] != "no questions" {
		t.Fatalf("expected no-questions error, got %v", verr)
	}

	single := content.Question{ID: 7, Choices: []content.Choice{{ID: 70, Label: "A", Correct: true}}}
	if verr := validateQuizStructure([]content.Question{single}); verr == nil ||
		!strings.Contains(verr.Problems[0], "invalid answer configuration") {
		t.Fatalf("expected answer-configuration error, got %v", verr)
	}

	twoCorrect := content.Question{ID: 8, Choices: []content.Choice{
		{ID: 80, Label: "A", Correct: true},
		{ID: 81, Label: "B", Correct: true},
	}}
	if verr := validateQuizStructure([]content.Question{twoCorrect}); verr == nil {
		t.Fatalf("expected error for two correct choices")
	}

	noCorrect := content.Question{ID: 9, Choices: []content.Choice{
		{ID: 90, Label: "A"},
		{ID: 91, Label: "B"},
	}}
	if verr := validateQuizStructure([]content.Question{noCorrect}); verr == nil {
		t.Fatalf("expected error for no correct choice")
	}
}
