package report

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
)

var ErrQuizNotFound = errors.New("quiz not found")

type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

type QuizSummary struct {
	QuizID           int64    `json:"quiz_id"`
	QuizTitle        string   `json:"quiz_title"`
	Participants     int      `json:"participants"`
	FinishedAttempts int      `json:"finished_attempts"`
	ActiveAttempts   int      `json:"active_attempts"`
	AverageScore     *float64 `json:"average_score,omitempty"`
	HighestScore     *float64 `json:"highest_score,omitempty"`
	LowestScore      *float64 `json:"lowest_score,omitempty"`
}

type ResultRow struct {
	AttemptID  int64
	StudentID  int64
	Score      sql.NullFloat64
	StartedAt  time.Time
	FinishedAt sql.NullTime
}

func (s *Service) SummaryByQuiz(ctx context.Context, quizID int64) (*QuizSummary, error) {
	summary := &QuizSummary{QuizID: quizID}
	err := s.db.QueryRowContext(ctx, `
		SELECT title FROM quizzes WHERE id = $1
	`, quizID).Scan(&summary.QuizTitle)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("load quiz: %w", err)
	}

	var avg, high, low sql.NullFloat64
	err = s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(DISTINCT student_id),
			COUNT(*) FILTER (WHERE finished_at IS NOT NULL),
			COUNT(*) FILTER (WHERE finished_at IS NULL),
			AVG(score) FILTER (WHERE finished_at IS NOT NULL),
			MAX(score) FILTER (WHERE finished_at IS NOT NULL),
			MIN(score) FILTER (WHERE finished_at IS NOT NULL)
		FROM attempts
		WHERE quiz_id = $1
	`, quizID).Scan(
		&summary.Participants,
		&summary.FinishedAttempts,
		&summary.ActiveAttempts,
		&avg, &high, &low,
	)
	if err != nil {
		return nil, fmt.Errorf("aggregate attempts: %w", err)
	}

	if avg.Valid {
		v := avg.Float64
		summary.AverageScore = &v
	}
	if high.Valid {
		v := high.Float64
		summary.HighestScore = &v
	}
	if low.Valid {
		v := low.Float64
		summary.LowestScore = &v
	}
	return summary, nil
}

func (s *Service) resultRows(ctx context.Context, quizID int64) ([]ResultRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, student_id, score, started_at, finished_at
		FROM attempts
		WHERE quiz_id = $1
		ORDER BY started_at, id
	`, quizID)
	if err != nil {
		return nil, fmt.Errorf("query quiz attempts: %w", err)
	}
	defer rows.Close()

	out := make([]ResultRow, 0)
	for rows.Next() {
		var r ResultRow
		if err := rows.Scan(&r.AttemptID, &r.StudentID, &r.Score, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan quiz attempt: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quiz attempts: %w", err)
	}
	return out, nil
}

// ExportResultsExcel renders every attempt for one quiz as an xlsx workbook
// for teachers who grade offline.
func (s *Service) ExportResultsExcel(ctx context.Context, quizID int64) ([]byte, error) {
	summary, err := s.SummaryByQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	items, err := s.resultRows(ctx, quizID)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	headers := []string{"attempt_id", "student_id", "status", "score", "started_at", "finished_at"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	for i, it := range items {
		row := i + 2
		status := "in_progress"
		score := any("")
		finishedAt := ""
		if it.FinishedAt.Valid {
			status = "completed"
			finishedAt = it.FinishedAt.Time.Format("2006-01-02 15:04:05")
		}
		if it.Score.Valid {
			score = it.Score.Float64
		}
		values := []any{
			it.AttemptID,
			it.StudentID,
			status,
			score,
			it.StartedAt.Format("2006-01-02 15:04:05"),
			finishedAt,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}
	_ = f.SetColWidth(sheet, "A", "F", 20)
	_ = f.SetSheetName(sheet, fmt.Sprintf("quiz-%d", summary.QuizID))

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write excel: %w", err)
	}
	return buf.Bytes(), nil
}
