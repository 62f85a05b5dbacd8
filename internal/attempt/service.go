package attempt

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"quizlms/internal/content"
	"quizlms/internal/enrollment"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrQuizNotFound       = errors.New("quiz not found")
	ErrAttemptNotFound    = errors.New("attempt not found")
	ErrNotEnrolled        = errors.New("student not enrolled in this course")
	ErrActiveAttempt      = errors.New("active attempt exists")
	ErrMaxAttempts        = errors.New("maximum attempts reached")
	ErrAlreadySubmitted   = errors.New("attempt already submitted")
	ErrAttemptNotFinished = errors.New("attempt not finished")
	ErrNotAttemptOwner    = errors.New("attempt owned by another student")
	ErrResultForbidden    = errors.New("result access forbidden")
)

const (
	// The start-side gate tolerates more drift than the submit path so a slow
	// page load never strands a student behind their own stale attempt.
	defaultStartGrace  = 60 * time.Second
	defaultSubmitGrace = 30 * time.Second
)

type Service struct {
	db          *sql.DB
	content     content.Reader
	enrollment  enrollment.Checker
	startGrace  time.Duration
	submitGrace time.Duration
	now         func() time.Time
}

type ServiceConfig struct {
	StartGrace  time.Duration
	SubmitGrace time.Duration
}

func NewService(db *sql.DB, reader content.Reader, checker enrollment.Checker, cfg ServiceConfig) *Service {
	if cfg.StartGrace <= 0 {
		cfg.StartGrace = defaultStartGrace
	}
	if cfg.SubmitGrace <= 0 {
		cfg.SubmitGrace = defaultSubmitGrace
	}
	return &Service{
		db:          db,
		content:     reader,
		enrollment:  checker,
		startGrace:  cfg.StartGrace,
		submitGrace: cfg.SubmitGrace,
		now:         time.Now,
	}
}

type ResponseInput struct {
	QuestionID int64 `json:"question_id"`
	ChoiceID   int64 `json:"choice_id"`
}

type AttemptView struct {
	ID              int64      `json:"id"`
	QuizID          int64      `json:"quiz_id"`
	StudentID       int64      `json:"student_id"`
	StartedAt       time.Time  `json:"started_at"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	AttemptsUsed    int        `json:"attempts_used"`
	AttemptsAllowed int        `json:"attempts_allowed"`
}

type QuestionResult struct {
	QuestionID       int64  `json:"question_id"`
	SelectedChoiceID *int64 `json:"selected_choice_id,omitempty"`
	CorrectChoiceID  int64  `json:"correct_choice_id"`
	IsCorrect        bool   `json:"is_correct"`
}

type QuizResult struct {
	AttemptID       int64            `json:"attempt_id"`
	QuizID          int64            `json:"quiz_id"`
	QuizTitle       string           `json:"quiz_title"`
	StudentID       int64            `json:"student_id"`
	Score           float64          `json:"score"`
	TotalQuestions  int              `json:"total_questions"`
	CorrectAnswers  int              `json:"correct_answers"`
	StartedAt       time.Time        `json:"started_at"`
	FinishedAt      time.Time        `json:"finished_at"`
	DurationSeconds int64            `json:"duration_seconds"`
	Questions       []QuestionResult `json:"questions"`
}

type AttemptProgress struct {
	ID         int64      `json:"id"`
	Score      *float64   `json:"score,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Status     string     `json:"status"`
}

type StudentProgress struct {
	QuizID          int64             `json:"quiz_id"`
	StudentID       int64             `json:"student_id"`
	AttemptsUsed    int               `json:"attempts_used"`
	AttemptsAllowed int               `json:"attempts_allowed"`
	BestScore       *float64          `json:"best_score,omitempty"`
	CanTakeQuiz     bool              `json:"can_take_quiz"`
	Attempts        []AttemptProgress `json:"attempts"`
}

type attemptRow struct {
	ID         int64
	QuizID     int64
	StudentID  int64
	StartedAt  time.Time
	FinishedAt sql.NullTime
	Score      sql.NullFloat64
}

// StartAttempt admits a student into a new timed attempt. Preconditions are
// checked in order, first failure wins: quiz exists, quiz structure is sound,
// student is enrolled, attempt budget remains, no live active attempt. The
// active-attempt check and the insert run inside one transaction; the partial
// unique index on (student_id, quiz_id) WHERE finished_at IS NULL closes the
// window between two first-ever starts that have no rows to lock.
func (s *Service) StartAttempt(ctx context.Context, quizID, studentID int64) (*AttemptView, error) {
	qc, err := s.loadQuizContent(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if verr := validateQuizStructure(qc.Questions); verr != nil {
		return nil, verr
	}

	enrolled, err := s.enrollment.IsStudentEnrolled(ctx, studentID, qc.Quiz.CourseID)
	if err != nil {
		return nil, fmt.Errorf("check enrollment: %w", err)
	}
	if !enrolled {
		return nil, ErrNotEnrolled
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin start tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := s.lockAttemptsForPair(ctx, tx, studentID, quizID)
	if err != nil {
		return nil, err
	}

	if len(existing) >= qc.Quiz.AttemptsAllowed {
		return nil, ErrMaxAttempts
	}

	for i := range existing {
		row := &existing[i]
		if row.FinishedAt.Valid {
			continue
		}
		if !s.pastDeadline(row, &qc.Quiz, s.startGrace) {
			return nil, ErrActiveAttempt
		}
		if err := s.reconcileExpired(ctx, tx, row, qc); err != nil {
			return nil, err
		}
	}

	startedAt := s.now().UTC()
	var attemptID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO attempts (quiz_id, student_id, started_at)
		VALUES ($1, $2, $3)
		RETURNING id
	`, quizID, studentID, startedAt).Scan(&attemptID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrActiveAttempt
		}
		return nil, fmt.Errorf("insert attempt: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit start tx: %w", err)
	}

	view := &AttemptView{
		ID:              attemptID,
		QuizID:          quizID,
		StudentID:       studentID,
		StartedAt:       startedAt,
		AttemptsUsed:    len(existing) + 1,
		AttemptsAllowed: qc.Quiz.AttemptsAllowed,
	}
	if qc.Quiz.DurationSecs != nil {
		expires := startedAt.Add(time.Duration(*qc.Quiz.DurationSecs) * time.Second)
		view.ExpiresAt = &expires
	}
	return view, nil
}

// SubmitAttempt validates, persists and scores a response set. Only the
// attempt's own student or an admin may submit; the check lives here, not in
// the HTTP layer, so every caller gets it. A submission arriving past
// duration+grace is silently handed to expiry reconciliation: the request
// body is ignored and only previously persisted responses count.
func (s *Service) SubmitAttempt(ctx context.Context, attemptID, viewerID int64, viewerRole string, responses []ResponseInput) (*QuizResult, error) {
	row, err := s.loadAttemptRow(ctx, s.db, attemptID)
	if err != nil {
		return nil, err
	}
	if viewerRole != "admin" && viewerID != row.StudentID {
		return nil, ErrNotAttemptOwner
	}
	if row.FinishedAt.Valid {
		return nil, ErrAlreadySubmitted
	}

	qc, err := s.loadQuizContent(ctx, row.QuizID)
	if err != nil {
		return nil, err
	}

	if s.pastDeadline(row, &qc.Quiz, s.submitGrace) {
		return s.finalizeExpired(ctx, row.ID, qc)
	}

	if verr := ValidateSubmission(responses, qc.Questions); verr != nil {
		return nil, verr
	}

	selected := make(map[int64]int64, len(responses))
	for _, resp := range responses {
		selected[resp.QuestionID] = resp.ChoiceID
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin submit tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row, err = s.loadAttemptRowForUpdate(ctx, tx, attemptID)
	if err != nil {
		return nil, err
	}
	if row.FinishedAt.Valid {
		return nil, ErrAlreadySubmitted
	}

	var hasResponses bool
	if err := tx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM responses WHERE attempt_id = $1)
	`, attemptID).Scan(&hasResponses); err != nil {
		return nil, fmt.Errorf("check existing responses: %w", err)
	}
	if hasResponses {
		return nil, ErrAlreadySubmitted
	}

	for _, resp := range responses {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO responses (attempt_id, question_id, choice_id)
			VALUES ($1, $2, $3)
		`, attemptID, resp.QuestionID, resp.ChoiceID); err != nil {
			return nil, fmt.Errorf("insert response: %w", err)
		}
	}

	summary := ScoreResponses(selected, qc.Questions)
	finishedAt := s.now().UTC()
	if _, err := tx.ExecContext(ctx, `
		UPDATE attempts
		SET finished_at = $2,
			score = $3
		WHERE id = $1
	`, attemptID, finishedAt, summary.Score); err != nil {
		return nil, fmt.Errorf("finalize attempt: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit submit tx: %w", err)
	}

	row.FinishedAt = sql.NullTime{Time: finishedAt, Valid: true}
	row.Score = sql.NullFloat64{Float64: summary.Score, Valid: true}
	result := buildResult(row, qc, selected, summary)

	s.logIntegrityFlags(row, qc, selected, result.DurationSeconds)

	return result, nil
}

// Reconcile forcibly finalizes an attempt past its deadline, scoring whatever
// responses already exist. It is also the entry point for an external sweep.
func (s *Service) Reconcile(ctx context.Context, attemptID int64) (*QuizResult, error) {
	row, err := s.loadAttemptRow(ctx, s.db, attemptID)
	if err != nil {
		return nil, err
	}
	qc, err := s.loadQuizContent(ctx, row.QuizID)
	if err != nil {
		return nil, err
	}
	return s.finalizeExpired(ctx, attemptID, qc)
}

// GetResult returns the finalized result, reconciling an attempt whose window
// has closed. Visible to the attempt's own student, the course's teacher, an
// admin, or a parent of the student.
func (s *Service) GetResult(ctx context.Context, attemptID, viewerID int64, viewerRole string) (*QuizResult, error) {
	row, err := s.loadAttemptRow(ctx, s.db, attemptID)
	if err != nil {
		return nil, err
	}
	qc, err := s.loadQuizContent(ctx, row.QuizID)
	if err != nil {
		return nil, err
	}

	if err := s.authorizeResultViewer(ctx, row, &qc.Quiz, viewerID, viewerRole); err != nil {
		return nil, err
	}

	if !row.FinishedAt.Valid {
		if !s.pastDeadline(row, &qc.Quiz, s.submitGrace) {
			return nil, ErrAttemptNotFinished
		}
		return s.finalizeExpired(ctx, attemptID, qc)
	}

	selected, err := s.loadResponses(ctx, s.db, attemptID)
	if err != nil {
		return nil, err
	}
	return buildResult(row, qc, selected, ScoreResponses(selected, qc.Questions)), nil
}

// GetStudentProgress reports attempt usage for one (student, quiz) pair. An
// active attempt that has outlived its window is reconciled on the way, so
// can_take_quiz reflects reality rather than a stale open row.
func (s *Service) GetStudentProgress(ctx context.Context, quizID, studentID int64) (*StudentProgress, error) {
	qc, err := s.loadQuizContent(ctx, quizID)
	if err != nil {
		return nil, err
	}

	rows, err := s.loadAttemptsForPair(ctx, studentID, quizID)
	if err != nil {
		return nil, err
	}

	for i := range rows {
		row := &rows[i]
		if !row.FinishedAt.Valid && s.pastDeadline(row, &qc.Quiz, s.startGrace) {
			if _, err := s.finalizeExpired(ctx, row.ID, qc); err != nil {
				return nil, err
			}
			reloaded, err := s.loadAttemptRow(ctx, s.db, row.ID)
			if err != nil {
				return nil, err
			}
			*row = *reloaded
		}
	}

	progress := &StudentProgress{
		QuizID:          quizID,
		StudentID:       studentID,
		AttemptsUsed:    len(rows),
		AttemptsAllowed: qc.Quiz.AttemptsAllowed,
		Attempts:        make([]AttemptProgress, 0, len(rows)),
	}

	hasActive := false
	for i := range rows {
		row := &rows[i]
		item := AttemptProgress{
			ID:        row.ID,
			StartedAt: row.StartedAt,
			Status:    "in_progress",
		}
		if row.FinishedAt.Valid {
			finished := row.FinishedAt.Time
			item.FinishedAt = &finished
			item.Status = "completed"
		} else {
			hasActive = true
		}
		if row.Score.Valid {
			score := row.Score.Float64
			item.Score = &score
			if progress.BestScore == nil || score > *progress.BestScore {
				progress.BestScore = &score
			}
		}
		progress.Attempts = append(progress.Attempts, item)
	}

	progress.CanTakeQuiz = progress.AttemptsUsed < progress.AttemptsAllowed && !hasActive
	return progress, nil
}

func (s *Service) authorizeResultViewer(ctx context.Context, row *attemptRow, quiz *content.Quiz, viewerID int64, viewerRole string) error {
	switch viewerRole {
	case "admin":
		return nil
	case "student":
		if viewerID == row.StudentID {
			return nil
		}
	case "teacher":
		ok, err := s.enrollment.IsCourseTeacher(ctx, viewerID, quiz.CourseID)
		if err != nil {
			return fmt.Errorf("check course teacher: %w", err)
		}
		if ok {
			return nil
		}
	case "parent":
		ok, err := s.enrollment.IsParentOf(ctx, viewerID, row.StudentID)
		if err != nil {
			return fmt.Errorf("check parent link: %w", err)
		}
		if ok {
			return nil
		}
	}
	return ErrResultForbidden
}

// finalizeExpired runs reconciliation in its own transaction. A concurrent
// finalizer winning the row lock first is not an error; the stored outcome is
// returned either way.
func (s *Service) finalizeExpired(ctx context.Context, attemptID int64, qc *content.QuizContent) (*QuizResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin reconcile tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row, err := s.loadAttemptRowForUpdate(ctx, tx, attemptID)
	if err != nil {
		return nil, err
	}
	if !row.FinishedAt.Valid {
		if err := s.reconcileExpired(ctx, tx, row, qc); err != nil {
			return nil, err
		}
	}

	selected, err := s.loadResponses(ctx, tx, attemptID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit reconcile tx: %w", err)
	}

	return buildResult(row, qc, selected, ScoreResponses(selected, qc.Questions)), nil
}

// reconcileExpired finalizes an in-progress attempt inside the caller's
// transaction using whatever response rows exist, possibly none. Unanswered
// questions simply score zero; expiry is not an error condition.
func (s *Service) reconcileExpired(ctx context.Context, tx *sql.Tx, row *attemptRow, qc *content.QuizContent) error {
	selected, err := s.loadResponses(ctx, tx, row.ID)
	if err != nil {
		return err
	}
	summary := ScoreResponses(selected, qc.Questions)
	finishedAt := s.now().UTC()

	res, err := tx.ExecContext(ctx, `
		UPDATE attempts
		SET finished_at = $2,
			score = $3
		WHERE id = $1 AND finished_at IS NULL
	`, row.ID, finishedAt, summary.Score)
	if err != nil {
		return fmt.Errorf("reconcile attempt: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// Lost the race to another finalizer; reload the stored outcome.
		reloaded, err := s.loadAttemptRow(ctx, tx, row.ID)
		if err != nil {
			return err
		}
		*row = *reloaded
		return nil
	}

	row.FinishedAt = sql.NullTime{Time: finishedAt, Valid: true}
	row.Score = sql.NullFloat64{Float64: summary.Score, Valid: true}
	return nil
}

func (s *Service) loadQuizContent(ctx context.Context, quizID int64) (*content.QuizContent, error) {
	qc, err := s.content.QuizWithQuestions(ctx, quizID)
	if err != nil {
		if errors.Is(err, content.ErrQuizNotFound) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("load quiz content: %w", err)
	}
	return qc, nil
}

func (s *Service) pastDeadline(row *attemptRow, quiz *content.Quiz, grace time.Duration) bool {
	if quiz.DurationSecs == nil {
		return false
	}
	deadline := row.StartedAt.Add(time.Duration(*quiz.DurationSecs)*time.Second + grace)
	return s.now().After(deadline)
}

func (s *Service) lockAttemptsForPair(ctx context.Context, tx *sql.Tx, studentID, quizID int64) ([]attemptRow, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, quiz_id, student_id, started_at, finished_at, score
		FROM attempts
		WHERE student_id = $1 AND quiz_id = $2
		ORDER BY id
		FOR UPDATE
	`, studentID, quizID)
	if err != nil {
		return nil, fmt.Errorf("lock attempts: %w", err)
	}
	defer rows.Close()
	return scanAttemptRows(rows)
}

func (s *Service) loadAttemptsForPair(ctx context.Context, studentID, quizID int64) ([]attemptRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, quiz_id, student_id, started_at, finished_at, score
		FROM attempts
		WHERE student_id = $1 AND quiz_id = $2
		ORDER BY started_at, id
	`, studentID, quizID)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()
	return scanAttemptRows(rows)
}

func scanAttemptRows(rows *sql.Rows) ([]attemptRow, error) {
	out := make([]attemptRow, 0)
	for rows.Next() {
		var r attemptRow
		if err := rows.Scan(&r.ID, &r.QuizID, &r.StudentID, &r.StartedAt, &r.FinishedAt, &r.Score); err != nil {
			return nil, fmt.Errorf("scan attempt row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempt rows: %w", err)
	}
	return out, nil
}

func (s *Service) loadAttemptRow(ctx context.Context, q queryable, attemptID int64) (*attemptRow, error) {
	row := &attemptRow{}
	err := q.QueryRowContext(ctx, `
		SELECT id, quiz_id, student_id, started_at, finished_at, score
		FROM attempts
		WHERE id = $1
	`, attemptID).Scan(&row.ID, &row.QuizID, &row.StudentID, &row.StartedAt, &row.FinishedAt, &row.Score)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("load attempt: %w", err)
	}
	return row, nil
}

func (s *Service) loadAttemptRowForUpdate(ctx context.Context, tx *sql.Tx, attemptID int64) (*attemptRow, error) {
	row := &attemptRow{}
	err := tx.QueryRowContext(ctx, `
		SELECT id, quiz_id, student_id, started_at, finished_at, score
		FROM attempts
		WHERE id = $1
		FOR UPDATE
	`, attemptID).Scan(&row.ID, &row.QuizID, &row.StudentID, &row.StartedAt, &row.FinishedAt, &row.Score)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("load attempt for update: %w", err)
	}
	return row, nil
}

func (s *Service) loadResponses(ctx context.Context, q queryable, attemptID int64) (map[int64]int64, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT question_id, choice_id
		FROM responses
		WHERE attempt_id = $1
	`, attemptID)
	if err != nil {
		return nil, fmt.Errorf("query responses: %w", err)
	}
	defer rows.Close()

	selected := make(map[int64]int64)
	for rows.Next() {
		var questionID, choiceID int64
		if err := rows.Scan(&questionID, &choiceID); err != nil {
			return nil, fmt.Errorf("scan response: %w", err)
		}
		selected[questionID] = choiceID
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate responses: %w", err)
	}
	return selected, nil
}

func buildResult(row *attemptRow, qc *content.QuizContent, selected map[int64]int64, summary ScoreSummary) *QuizResult {
	result := &QuizResult{
		AttemptID:      row.ID,
		QuizID:         qc.Quiz.ID,
		QuizTitle:      qc.Quiz.Title,
		StudentID:      row.StudentID,
		Score:          summary.Score,
		TotalQuestions: summary.TotalQuestions,
		CorrectAnswers: summary.CorrectCount,
		StartedAt:      row.StartedAt,
		Questions:      make([]QuestionResult, 0, len(qc.Questions)),
	}
	if row.FinishedAt.Valid {
		result.FinishedAt = row.FinishedAt.Time
		result.DurationSeconds = int64(row.FinishedAt.Time.Sub(row.StartedAt).Seconds())
	}

	for i := range qc.Questions {
		q := &qc.Questions[i]
		item := QuestionResult{
			QuestionID:      q.ID,
			CorrectChoiceID: q.CorrectChoiceID(),
		}
		if choiceID, ok := selected[q.ID]; ok {
			id := choiceID
			item.SelectedChoiceID = &id
			if choice, ok := q.ChoiceByID(choiceID); ok && choice.Correct {
				item.IsCorrect = true
			}
		}
		result.Questions = append(result.Questions, item)
	}
	return result
}

func (s *Service) logIntegrityFlags(row *attemptRow, qc *content.QuizContent, selected map[int64]int64, elapsedSecs int64) {
	labels := make([]string, 0, len(selected))
	for i := range qc.Questions {
		q := &qc.Questions[i]
		choiceID, ok := selected[q.ID]
		if !ok {
			continue
		}
		if choice, ok := q.ChoiceByID(choiceID); ok {
			labels = append(labels, choice.Label)
		}
	}

	flags := IntegrityFlags(IntegritySample{
		ElapsedSecs:   elapsedSecs,
		QuestionCount: len(qc.Questions),
		ChoiceLabels:  labels,
	})
	if len(flags) == 0 {
		return
	}

	entry := map[string]any{
		"event":        "integrity_flags",
		"attempt_id":   row.ID,
		"quiz_id":      qc.Quiz.ID,
		"student_id":   row.StudentID,
		"elapsed_secs": elapsedSecs,
		"flags":        flags,
	}
	b, _ := json.Marshal(entry)
	log.Printf("%s", string(b))
}

type queryable interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
