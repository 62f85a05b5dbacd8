// Package content reads quiz structure owned by the authoring subsystem.
// Everything here is read-only: quizzes, questions and choices are never
// written by the attempt engine.
package content

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var ErrQuizNotFound = errors.New("quiz not found")

type Quiz struct {
	ID              int64  `json:"id"`
	Title           string `json:"title"`
	CourseID        int64  `json:"course_id"`
	DurationSecs    *int64 `json:"duration_secs,omitempty"`
	AttemptsAllowed int    `json:"attempts_allowed"`
}

type Question struct {
	ID      int64    `json:"id"`
	QuizID  int64    `json:"quiz_id"`
	Text    string   `json:"text"`
	Order   int      `json:"order"`
	Choices []Choice `json:"choices"`
}

type Choice struct {
	ID         int64  `json:"id"`
	QuestionID int64  `json:"question_id"`
	Label      string `json:"label"`
	Text       string `json:"text"`
	Correct    bool   `json:"-"`
}

// QuizContent bundles a quiz with its questions in display order.
type QuizContent struct {
	Quiz      Quiz
	Questions []Question
}

func (qc *QuizContent) QuestionByID(id int64) (*Question, bool) {
	for i := range qc.Questions {
		if qc.Questions[i].ID == id {
			return &qc.Questions[i], true
		}
	}
	return nil, false
}

func (q *Question) ChoiceByID(id int64) (*Choice, bool) {
	for i := range q.Choices {
		if q.Choices[i].ID == id {
			return &q.Choices[i], true
		}
	}
	return nil, false
}

func (q *Question) CorrectChoiceID() int64 {
	for _, c := range q.Choices {
		if c.Correct {
			return c.ID
		}
	}
	return 0
}

// Reader is the narrow interface the attempt engine depends on.
type Reader interface {
	QuizWithQuestions(ctx context.Context, quizID int64) (*QuizContent, error)
}

type SQLReader struct {
	db *sql.DB
}

func NewSQLReader(db *sql.DB) *SQLReader {
	return &SQLReader{db: db}
}

func (r *SQLReader) QuizWithQuestions(ctx context.Context, quizID int64) (*QuizContent, error) {
	var quiz Quiz
	var duration sql.NullInt64
	err := r.db.QueryRowContext(ctx, `
		SELECT id, title, course_id, duration_secs, attempts_allowed
		FROM quizzes
		WHERE id = $1
	`, quizID).Scan(&quiz.ID, &quiz.Title, &quiz.CourseID, &duration, &quiz.AttemptsAllowed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("load quiz: %w", err)
	}
	if duration.Valid {
		quiz.DurationSecs = &duration.Int64
	}

	questions, err := r.loadQuestions(ctx, quizID)
	if err != nil {
		return nil, err
	}

	return &QuizContent{Quiz: quiz, Questions: questions}, nil
}

func (r *SQLReader) loadQuestions(ctx context.Context, quizID int64) ([]Question, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, quiz_id, text, ord
		FROM questions
		WHERE quiz_id = $1
		ORDER BY ord, id
	`, quizID)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()

	questions := make([]Question, 0)
	index := map[int64]int{}
	for rows.Next() {
		var q Question
		if err := rows.Scan(&q.ID, &q.QuizID, &q.Text, &q.Order); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		index[q.ID] = len(questions)
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}
	if len(questions) == 0 {
		return questions, nil
	}

	choiceRows, err := r.db.QueryContext(ctx, `
		SELECT c.id, c.question_id, c.label, c.text, c.is_correct
		FROM choices c
		JOIN questions q ON q.id = c.question_id
		WHERE q.quiz_id = $1
		ORDER BY c.question_id, c.label, c.id
	`, quizID)
	if err != nil {
		return nil, fmt.Errorf("query choices: %w", err)
	}
	defer choiceRows.Close()

	for choiceRows.Next() {
		var c Choice
		if err := choiceRows.Scan(&c.ID, &c.QuestionID, &c.Label, &c.Text, &c.Correct); err != nil {
			return nil, fmt.Errorf("scan choice: %w", err)
		}
		if i, ok := index[c.QuestionID]; ok {
			questions[i].Choices = append(questions[i].Choices, c)
		}
	}
	if err := choiceRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate choices: %w", err)
	}

	return questions, nil
}
