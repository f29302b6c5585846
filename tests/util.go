package testutil

import (
	"context"
	"fmt"
	"testing"

	"github.com/jindoapp/jindo/core"
	"github.com/jindoapp/jindo/core/track"
)

// Logger is a no-op core.Logger for tests.
type Logger struct{}

var _ core.Logger = (*Logger)(nil)

func (Logger) Enable(enabled bool)                   {}
func (Logger) Debug(msg string, args ...interface{}) {}
func (Logger) Info(msg string, args ...interface{})  {}
func (Logger) Warn(msg string, args ...interface{})  {}
func (Logger) Error(msg string, args ...interface{}) {}
func (Logger) Fatal(msg string, args ...interface{}) {}

func CreateStudent(t *testing.T, repo track.Repository, name, department string) track.User {
	t.Helper()

	usr, err := repo.CreateUser(context.Background(), track.User{Name: name, Department: department})
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// CreateCourse creates a course with lessonCount auto-named lessons and returns both.
func CreateCourse(t *testing.T, repo track.Repository, code, name, department string, grade, lessonCount int) (track.Course, []track.Lesson) {
	t.Helper()
	ctx := context.Background()

	crs, err := repo.CreateCourse(ctx, track.Course{
		Code:        code,
		Name:        name,
		Department:  department,
		Grade:       grade,
		LessonCount: lessonCount,
	})
	if err != nil {
		t.Fatalf("CreateCourse() failed: %v", err)
	}

	lessons := make([]track.Lesson, 0, lessonCount)
	for i := 1; i <= lessonCount; i++ {
		les, err := repo.CreateLesson(ctx, track.Lesson{
			CourseID: crs.ID,
			Name:     fmt.Sprintf("%d강: %s 강의 %d", i, name, i),
			Position: i,
		})
		if err != nil {
			t.Fatalf("CreateLesson() failed: %v", err)
		}
		lessons = append(lessons, les)
	}
	return crs, lessons
}

func Enroll(t *testing.T, repo track.Repository, userID, courseID string) track.Enrollment {
	t.Helper()

	enr, err := repo.Enroll(context.Background(), userID, courseID)
	if err != nil {
		t.Fatalf("Enroll() failed: %v", err)
	}
	return enr
}

// CompleteLessons marks the first n lessons complete for userID.
func CompleteLessons(t *testing.T, repo track.Repository, userID string, lessons []track.Lesson, n int) {
	t.Helper()

	for i := 0; i < n && i < len(lessons); i++ {
		if _, err := repo.UpsertProgress(context.Background(), userID, lessons[i].ID, true); err != nil {
			t.Fatalf("UpsertProgress() failed: %v", err)
		}
	}
}
