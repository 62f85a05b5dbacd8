package attempt

import (
	"testing"
)

func TestIntegrityFlags(t *testing.T) {
	tests := []struct {
		name      string
		sample    IntegritySample
		wantFlags []string
	}{
		{
			name: "clean submission",
			sample: IntegritySample{
				ElapsedSecs:   300,
				QuestionCount: 5,
				ChoiceLabels:  []string{"B", "A", "D", "A", "C"},
			},
			wantFlags: []string{},
		},
		{
			name: "fast completion",
			sample: IntegritySample{
				ElapsedSecs:   10,
				QuestionCount: 5,
				ChoiceLabels:  []string{"B", "A", "D", "A", "C"},
			},
			wantFlags: []string{"fast completion"},
		},
		{
			name: "boundary elapsed equals threshold is not fast",
			sample: IntegritySample{
				ElapsedSecs:   25,
				QuestionCount: 5,
				ChoiceLabels:  []string{"B", "A", "D", "A", "C"},
			},
			wantFlags: []string{},
		},
		{
			name: "uniform pattern",
			sample: IntegritySample{
				ElapsedSecs:   200,
				QuestionCount: 4,
				ChoiceLabels:  []string{"C", "C", "C", "C"},
			},
			wantFlags: []string{"uniform answer pattern"},
		},
		{
			name: "uniform ignored for short quizzes",
			sample: IntegritySample{
				ElapsedSecs:   200,
				QuestionCount: 3,
				ChoiceLabels:  []string{"C", "C", "C"},
			},
			wantFlags: []string{},
		},
		{
			name: "sequential rotation",
			sample: IntegritySample{
				ElapsedSecs:   400,
				QuestionCount: 6,
				ChoiceLabels:  []string{"A", "B", "C", "D", "E", "A"},
			},
			wantFlags: []string{"sequential answer pattern"},
		},
		{
			name: "rotation starting mid-alphabet",
			sample: IntegritySample{
				ElapsedSecs:   400,
				QuestionCount: 5,
				ChoiceLabels:  []string{"C", "D", "E", "A", "B"},
			},
			wantFlags: []string{"sequential answer pattern"},
		},
		{
			name: "sequential ignored for short quizzes",
			sample: IntegritySample{
				ElapsedSecs:   400,
				QuestionCount: 4,
				ChoiceLabels:  []string{"A", "B", "C", "D"},
			},
			wantFlags: []string{},
		},
		{
			name: "broken rotation not flagged",
			sample: IntegritySample{
				ElapsedSecs:   400,
				QuestionCount: 5,
				ChoiceLabels:  []string{"A", "B", "C", "D", "D"},
			},
			wantFlags: []string{},
		},
		{
			name: "fast and uniform together",
			sample: IntegritySample{
				ElapsedSecs:   5,
				QuestionCount: 6,
				ChoiceLabels:  []string{"A", "A", "A", "A", "A", "A"},
			},
			wantFlags: []string{"fast completion", "uniform answer pattern"},
		},
		{
			name: "no questions yields nothing",
			sample: IntegritySample{
				ElapsedSecs:   0,
				QuestionCount: 0,
			},
			wantFlags: []string{},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := IntegrityFlags(tc.sample)
			if len(got) != len(tc.wantFlags) {
				t.Fatalf("expected flags %v, got %v", tc.wantFlags, got)
			}
			for i := range got {
				if got[i] != tc.wantFlags[i] {
					t.Fatalf("expected flags %v, got %v", tc.wantFlags, got)
				}
			}
		})
	}
}
