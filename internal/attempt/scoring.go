package attempt

import (
	"math"

	"quizlms/internal/content"
)

// ScoreSummary is the deterministic outcome of grading one attempt.
type ScoreSummary struct {
	Score          float64 `json:"score"`
	CorrectCount   int     `json:"correct_count"`
	TotalQuestions int     `json:"total_questions"`
}

// ScoreResponses grades the selected choices against the quiz's full question
// set. TotalQuestions is always the quiz's question count, never the number of
// responses, so a partial (expiry-forced) set scores against everything the
// student was asked. Both the normal submission path and expiry reconciliation
// go through this one function.
func ScoreResponses(selected map[int64]int64, questions []content.Question) ScoreSummary {
	total := len(questions)
	correct := 0
	for i := range questions {
		q := &questions[i]
		choiceID, answered := selected[q.ID]
		if !answered {
			continue
		}
		choice, ok := q.ChoiceByID(choiceID)
		if ok && choice.Correct {
			correct++
		}
	}

	score := 0.0
	if total > 0 {
		score = round2(float64(correct) / float64(total) * 100)
	}
	return ScoreSummary{
		Score:          score,
		CorrectCount:   correct,
		TotalQuestions: total,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
