// Package enrollment answers access questions owned by the registration
// subsystem: which students belong to a course, who teaches it, and which
// parents are linked to which students. The attempt engine only ever reads.
package enrollment

import (
	"context"
	"database/sql"
	"fmt"
)

type Checker interface {
	IsStudentEnrolled(ctx context.Context, studentID, courseID int64) (bool, error)
	IsCourseTeacher(ctx context.Context, teacherID, courseID int64) (bool, error)
	IsParentOf(ctx context.Context, parentID, studentID int64) (bool, error)
}

type SQLChecker struct {
	db *sql.DB
}

func NewSQLChecker(db *sql.DB) *SQLChecker {
	return &SQLChecker{db: db}
}

func (c *SQLChecker) IsStudentEnrolled(ctx context.Context, studentID, courseID int64) (bool, error) {
	var exists bool
	err := c.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM enrollments
			WHERE student_id = $1 AND course_id = $2
		)
	`, studentID, courseID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check enrollment: %w", err)
	}
	return exists, nil
}

func (c *SQLChecker) IsCourseTeacher(ctx context.Context, teacherID, courseID int64) (bool, error) {
	var exists bool
	err := c.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM courses
			WHERE id = $1 AND teacher_id = $2
		)
	`, courseID, teacherID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check course teacher: %w", err)
	}
	return exists, nil
}

func (c *SQLChecker) IsParentOf(ctx context.Context, parentID, studentID int64) (bool, error) {
	var exists bool
	err := c.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM parent_students
			WHERE parent_id = $1 AND student_id = $2
		)
	`, parentID, studentID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check parent link: %w", err)
	}
	return exists, nil
}
