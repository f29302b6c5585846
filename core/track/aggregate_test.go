package track

import (
	"fmt"
	"reflect"
	"testing"
	"time"
)

func makeLessons(courseID string, n int) []Lesson {
	lessons := make([]Lesson, 0, n)
	for i := 1; i <= n; i++ {
		lessons = append(lessons, Lesson{
			ID:       fmt.Sprintf("%s-l%d", courseID, i),
			CourseID: courseID,
			Name:     fmt.Sprintf("%d강", i),
			Position: i,
		})
	}
	return lessons
}

func completeLessons(userID string, lessons []Lesson, n int) []ProgressRecord {
	now := time.Now().UTC()
	records := make([]ProgressRecord, 0, n)
	for i := 0; i < n && i < len(lessons); i++ {
		records = append(records, ProgressRecord{
			ID:          fmt.Sprintf("%s-%s", userID, lessons[i].ID),
			UserID:      userID,
			LessonID:    lessons[i].ID,
			Completed:   true,
			CompletedAt: &now,
		})
	}
	return records
}

func TestComputeDashboard(t *testing.T) {
	u1 := User{ID: "u1", Name: "User One", Department: "통계·데이터"}
	u2 := User{ID: "u2", Name: "User Two", Department: "컴퓨터"}

	c1 := Course{ID: "c1", Code: "STAT101", Name: "통계학개론", Department: "통계·데이터", Grade: 1, LessonCount: 15}
	c2 := Course{ID: "c2", Code: "COMP102", Name: "컴퓨터과학개론", Department: "컴퓨터", Grade: 1, LessonCount: 5}
	c1Lessons := makeLessons("c1", 15)
	c2Lessons := makeLessons("c2", 5)

	e1 := Enrollment{ID: "e1", UserID: "u1", CourseID: "c1"}
	e2 := Enrollment{ID: "e2", UserID: "u2", CourseID: "c1"}
	e3 := Enrollment{ID: "e3", UserID: "u2", CourseID: "c2"}

	tests := []struct {
		name         string
		users        []User
		courses      []Course
		lessons      []Lesson
		enrollments  []Enrollment
		records      []ProgressRecord
		wantOverall  map[string]int
		wantCourse   map[string]map[string]int // userID -> courseID -> progress
		wantWarnings int
	}{
		{
			name:        "single course 9 of 15 completed",
			users:       []User{u1},
			courses:     []Course{c1},
			lessons:     c1Lessons,
			enrollments: []Enrollment{e1},
			records:     completeLessons("u1", c1Lessons, 9),
			wantOverall: map[string]int{"u1": 60},
			wantCourse:  map[string]map[string]int{"u1": {"c1": 60}},
		},
		{
			name:        "two courses aggregate by lesson count",
			users:       []User{u2},
			courses:     []Course{c1, c2},
			lessons:     append(append([]Lesson{}, c1Lessons...), c2Lessons...),
			enrollments: []Enrollment{e2, e3},
			records:     completeLessons("u2", c2Lessons, 5),
			// 5 of 20 lessons -> 25%, not the per-course average
			wantOverall: map[string]int{"u2": 25},
			wantCourse:  map[string]map[string]int{"u2": {"c1": 0, "c2": 100}},
		},
		{
			name:        "no enrollments",
			users:       []User{u1},
			courses:     []Course{c1},
			lessons:     c1Lessons,
			wantOverall: map[string]int{"u1": 0},
			wantCourse:  map[string]map[string]int{"u1": {}},
		},
		{
			name:        "course without lessons",
			users:       []User{u1},
			courses:     []Course{{ID: "c9", Code: "EMPTY", Name: "빈 과목", LessonCount: 15}},
			enrollments: []Enrollment{{ID: "e9", UserID: "u1", CourseID: "c9"}},
			wantOverall: map[string]int{"u1": 0},
			wantCourse:  map[string]map[string]int{"u1": {"c9": 0}},
		},
		{
			name:        "incomplete records do not count",
			users:       []User{u1},
			courses:     []Course{c1},
			lessons:     c1Lessons,
			enrollments: []Enrollment{e1},
			records: []ProgressRecord{
				{ID: "p1", UserID: "u1", LessonID: "c1-l1", Completed: false},
			},
			wantOverall: map[string]int{"u1": 0},
			wantCourse:  map[string]map[string]int{"u1": {"c1": 0}},
		},
		{
			name:        "other users' records are ignored",
			users:       []User{u1, u2},
			courses:     []Course{c1},
			lessons:     c1Lessons,
			enrollments: []Enrollment{e1, e2},
			records:     completeLessons("u2", c1Lessons, 15),
			wantOverall: map[string]int{"u1": 0, "u2": 100},
			wantCourse:  map[string]map[string]int{"u1": {"c1": 0}, "u2": {"c1": 100}},
		},
		{
			name:        "orphaned records are skipped with warnings",
			users:       []User{u1},
			courses:     []Course{c1},
			lessons:     c1Lessons,
			enrollments: []Enrollment{e1, {ID: "e8", UserID: "u1", CourseID: "gone"}},
			records: append(completeLessons("u1", c1Lessons, 3),
				ProgressRecord{ID: "p9", UserID: "u1", LessonID: "gone", Completed: true}),
			wantOverall:  map[string]int{"u1": 20},
			wantCourse:   map[string]map[string]int{"u1": {"c1": 20}},
			wantWarnings: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := ComputeDashboard(tt.users, tt.courses, tt.lessons, tt.enrollments, tt.records)

			if len(snap.ProgressSummary) != len(tt.users) {
				t.Fatalf("ComputeDashboard() summaries = %d, want %d", len(snap.ProgressSummary), len(tt.users))
			}
			for _, sum := range snap.ProgressSummary {
				if sum.OverallProgress < 0 || sum.OverallProgress > 100 {
					t.Errorf("overallProgress out of bounds: %d", sum.OverallProgress)
				}
				if want := tt.wantOverall[sum.UserID]; sum.OverallProgress != want {
					t.Errorf("overallProgress(%s) = %d, want %d", sum.UserID, sum.OverallProgress, want)
				}
				wantCourses := tt.wantCourse[sum.UserID]
				if len(sum.CourseProgress) != len(wantCourses) {
					t.Errorf("courseProgress(%s) len = %d, want %d", sum.UserID, len(sum.CourseProgress), len(wantCourses))
				}
				for _, cp := range sum.CourseProgress {
					if cp.Progress < 0 || cp.Progress > 100 {
						t.Errorf("courseProgress out of bounds: %d", cp.Progress)
					}
					if want, ok := wantCourses[cp.CourseID]; !ok || cp.Progress != want {
						t.Errorf("courseProgress(%s, %s) = %d, want %d", sum.UserID, cp.CourseID, cp.Progress, want)
					}
				}
			}
			if len(snap.Warnings) != tt.wantWarnings {
				t.Errorf("warnings = %v, want %d", snap.Warnings, tt.wantWarnings)
			}
		})
	}
}

func TestComputeDashboard_ordering(t *testing.T) {
	users := []User{
		{ID: "u1", Name: "A"},
		{ID: "u2", Name: "B"},
		{ID: "u3", Name: "C"},
		{ID: "u4", Name: "D"},
	}
	crs := Course{ID: "c1", Code: "STAT101", Name: "통계학개론"}
	lessons := makeLessons("c1", 10)
	enrollments := []Enrollment{
		{ID: "e1", UserID: "u1", CourseID: "c1"},
		{ID: "e2", UserID: "u2", CourseID: "c1"},
		{ID: "e3", UserID: "u3", CourseID: "c1"},
		{ID: "e4", UserID: "u4", CourseID: "c1"},
	}
	// u1: 50%, u2: 100%, u3: 50%, u4: 0%
	var records []ProgressRecord
	records = append(records, completeLessons("u1", lessons, 5)...)
	records = append(records, completeLessons("u2", lessons, 10)...)
	records = append(records, completeLessons("u3", lessons, 5)...)

	snap := ComputeDashboard(users, []Course{crs}, lessons, enrollments, records)

	gotOrder := make([]string, 0, len(snap.ProgressSummary))
	for _, sum := range snap.ProgressSummary {
		gotOrder = append(gotOrder, sum.UserID)
	}
	// descending; the 50% tie keeps input order (u1 before u3)
	wantOrder := []string{"u2", "u1", "u3", "u4"}
	if !reflect.DeepEqual(gotOrder, wantOrder) {
		t.Errorf("ProgressSummary order = %v, want %v", gotOrder, wantOrder)
	}
}

func TestSummaryFor(t *testing.T) {
	snap := DashboardSnapshot{
		ProgressSummary: []StudentSummary{
			{UserID: "u1", OverallProgress: 40},
			{UserID: "u2", OverallProgress: 20},
		},
	}

	sum, err := SummaryFor(snap, "u2")
	if err != nil {
		t.Fatalf("SummaryFor() error = %v", err)
	}
	if sum.OverallProgress != 20 {
		t.Errorf("SummaryFor() overallProgress = %d, want 20", sum.OverallProgress)
	}

	if _, err = SummaryFor(snap, "nope"); err != ErrNotFound {
		t.Errorf("SummaryFor() error = %v, wantErr %v", err, ErrNotFound)
	}
}

func TestStats(t *testing.T) {
	tests := []struct {
		name      string
		overall   []int
		wantAvg   int
		wantTotal int
	}{
		{name: "empty", overall: nil, wantAvg: 0, wantTotal: 0},
		{name: "average rounds half up", overall: []int{60, 25}, wantAvg: 43, wantTotal: 2},
		{name: "single", overall: []int{100}, wantAvg: 100, wantTotal: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := DashboardSnapshot{}
			for i, p := range tt.overall {
				id := fmt.Sprintf("u%d", i)
				snap.Users = append(snap.Users, User{ID: id})
				snap.ProgressSummary = append(snap.ProgressSummary, StudentSummary{UserID: id, OverallProgress: p})
			}

			stats := Stats(snap, 3)
			if stats.AverageProgress != tt.wantAvg {
				t.Errorf("Stats() averageProgress = %d, want %d", stats.AverageProgress, tt.wantAvg)
			}
			if stats.TotalStudents != tt.wantTotal {
				t.Errorf("Stats() totalStudents = %d, want %d", stats.TotalStudents, tt.wantTotal)
			}
			if stats.TotalCourses != 3 {
				t.Errorf("Stats() totalCourses = %d, want 3", stats.TotalCourses)
			}
		})
	}
}

func Test_percent(t *testing.T) {
	tests := []struct {
		completed, total, want int
	}{
		{0, 0, 0},
		{0, 15, 0},
		{9, 15, 60},
		{5, 20, 25},
		{1, 3, 33},
		{2, 3, 67},
		{1, 200, 1}, // 0.5 rounds up
		{15, 15, 100},
	}
	for _, tt := range tests {
		if got := percent(tt.completed, tt.total); got != tt.want {
			t.Errorf("percent(%d, %d) = %d, want %d", tt.completed, tt.total, got, tt.want)
		}
	}
}
