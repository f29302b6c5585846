package track

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// errors
	ErrNotFound        = errors.New("record not found")
	ErrAlreadyEnrolled = errors.New("student is already enrolled in this course")
	ErrNameTaken       = errors.New("a student with this name is already registered")
)

// PersistenceError indicates that a data-access call failed (backend unavailable,
// constraint violation). It is always surfaced to the caller unmodified so the
// presentation layer can revert any optimistic state.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	if e.Err == nil {
		return e.Op + " failed"
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Cause supports pkg/errors.Cause chains.
func (e *PersistenceError) Cause() error { return e.Err }

func NewPersistenceError(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}

// IsPersistenceError reports whether any error in err's chain is a PersistenceError.
func IsPersistenceError(err error) bool {
	var perr *PersistenceError
	return errors.As(err, &perr)
}

type (
	// User is a registered student.
	User struct {
		ID         string    `json:"id"`
		Name       string    `json:"name"`
		Department string    `json:"department"`
		CreatedAt  time.Time `json:"created_at"` // UTC
	}

	// Course is a unit of study offered by a department.
	// LessonCount is a display hint used to seed lesson generation; the actual
	// Lesson rows are the ground truth for all percentage math.
	Course struct {
		ID          string    `json:"id"`
		Code        string    `json:"course_code"`
		Name        string    `json:"course_name"`
		Department  string    `json:"department"`
		Grade       int       `json:"grade"`
		LessonCount int       `json:"lesson_count"`
		CreatedAt   time.Time `json:"created_at"` // UTC
	}

	// Lesson is one unit of a Course, Position is 1-based and unique per course.
	Lesson struct {
		ID       string `json:"id"`
		CourseID string `json:"course_id"`
		Name     string `json:"lesson_name"`
		Position int    `json:"lesson_order"`
	}

	// Enrollment makes a Course count toward a User's aggregate progress.
	Enrollment struct {
		ID         string    `json:"id"`
		UserID     string    `json:"user_id"`
		CourseID   string    `json:"course_id"`
		EnrolledAt time.Time `json:"enrolled_at"` // UTC
	}

	// ProgressRecord marks a (user, lesson) pair complete or incomplete.
	// Absence of a record is equivalent to Completed = false.
	// CompletedAt is set iff Completed.
	ProgressRecord struct {
		ID          string     `json:"id"`
		UserID      string     `json:"user_id"`
		LessonID    string     `json:"lesson_id"`
		Completed   bool       `json:"completed"`
		CompletedAt *time.Time `json:"completed_at"` // UTC
	}
)

type (
	CourseProgress struct {
		CourseID   string `json:"courseId"`
		CourseCode string `json:"courseCode"`
		CourseName string `json:"courseName"`
		Progress   int    `json:"progress"` // 0..100
	}

	// StudentSummary is one user's aggregate line on the dashboard.
	StudentSummary struct {
		UserID          string           `json:"userId"`
		UserName        string           `json:"userName"`
		Department      string           `json:"department"`
		OverallProgress int              `json:"overallProgress"` // 0..100
		CourseProgress  []CourseProgress `json:"courseProgress"`
	}

	// DashboardSnapshot is the fully computed dashboard for a single point in time.
	// ProgressSummary is sorted descending by OverallProgress; ties keep the
	// relative order of Users.
	DashboardSnapshot struct {
		Users           []User           `json:"users"`
		ProgressSummary []StudentSummary `json:"progressSummary"`
		Warnings        []string         `json:"-"`
	}

	// DashboardStats are the headline numbers on the admin dashboard.
	DashboardStats struct {
		TotalStudents   int `json:"total_students"`
		TotalCourses    int `json:"total_courses"`
		AverageProgress int `json:"average_progress"` // 0..100
	}

	// ToggleResult reports the state after a lesson completion toggle, with
	// enough information for the caller to patch or revert its display.
	ToggleResult struct {
		Record          ProgressRecord   `json:"record"`
		OverallProgress int              `json:"overall_progress"`
		CourseProgress  []CourseProgress `json:"course_progress"`
	}
)

// Repository is the data-access contract consumed by the tracking core.
// Implementations normalize backend field naming into these shapes once at the
// boundary; the core never branches on naming variants. All mutations fail with
// a *PersistenceError on backend unavailability or constraint violation.
type Repository interface {
	ListUsers(ctx context.Context) ([]User, error)
	GetUser(ctx context.Context, id string) (User, error)
	CreateUser(ctx context.Context, usr User) (User, error)
	// DeleteUser cascades: it removes the user's enrollments and progress records.
	DeleteUser(ctx context.Context, id string) error

	ListCourses(ctx context.Context) ([]Course, error)
	ListCoursesByDepartment(ctx context.Context, department string) ([]Course, error)
	CreateCourse(ctx context.Context, crs Course) (Course, error)

	ListLessonsByCourse(ctx context.Context, courseID string) ([]Lesson, error)
	CreateLesson(ctx context.Context, les Lesson) (Lesson, error)

	// ListEnrollments returns all enrollments, or only userID's when provided.
	ListEnrollments(ctx context.Context, userID ...string) ([]Enrollment, error)
	Enroll(ctx context.Context, userID, courseID string) (Enrollment, error)
	// Unenroll cascades: it removes the enrollment and the user's progress records
	// for lessons in that course.
	Unenroll(ctx context.Context, userID, courseID string) error

	// ListProgress returns all progress records, or only userID's when provided.
	ListProgress(ctx context.Context, userID ...string) ([]ProgressRecord, error)
	// UpsertProgress inserts or updates the (userID, lessonID) record.
	// CompletedAt is set iff completed; re-completing an already completed lesson
	// keeps the original timestamp.
	UpsertProgress(ctx context.Context, userID, lessonID string, completed bool) (ProgressRecord, error)
}
