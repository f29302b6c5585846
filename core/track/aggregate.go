package track

import (
	"fmt"
	"math"
	"sort"
)

// percent rounds half-up, 0 when total is 0.
func percent(completed, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(100 * float64(completed) / float64(total)))
}

// ComputeDashboard aggregates raw collections into a DashboardSnapshot.
// It is pure: no I/O, no error return. Orphaned records (progress pointing at a
// missing lesson, enrollment pointing at a missing course) are skipped and
// reported in Warnings. The denominator for every percentage is the count of
// actual Lesson rows, never Course.LessonCount.
func ComputeDashboard(
	users []User,
	courses []Course,
	lessons []Lesson,
	enrollments []Enrollment,
	records []ProgressRecord,
) DashboardSnapshot {
	var warnings []string

	courseByID := make(map[string]Course, len(courses))
	for _, crs := range courses {
		courseByID[crs.ID] = crs
	}

	lessonCourse := make(map[string]string, len(lessons))
	lessonCount := make(map[string]int, len(courses))
	for _, les := range lessons {
		lessonCourse[les.ID] = les.CourseID
		lessonCount[les.CourseID]++
	}

	// completed lessons per user, keyed by course
	completed := make(map[string]map[string]int)
	for _, rec := range records {
		if !rec.Completed {
			continue
		}
		courseID, ok := lessonCourse[rec.LessonID]
		if !ok {
			warnings = append(warnings, fmt.Sprintf("progress record %s references missing lesson %s", rec.ID, rec.LessonID))
			continue
		}
		byCourse, ok := completed[rec.UserID]
		if !ok {
			byCourse = make(map[string]int)
			completed[rec.UserID] = byCourse
		}
		byCourse[courseID]++
	}

	enrolled := make(map[string][]string, len(users)) // userID -> courseIDs, input order
	for _, enr := range enrollments {
		if _, ok := courseByID[enr.CourseID]; !ok {
			warnings = append(warnings, fmt.Sprintf("enrollment %s references missing course %s", enr.ID, enr.CourseID))
			continue
		}
		enrolled[enr.UserID] = append(enrolled[enr.UserID], enr.CourseID)
	}

	summaries := make([]StudentSummary, 0, len(users))
	for _, usr := range users {
		courseIDs := enrolled[usr.ID]
		courseProgress := make([]CourseProgress, 0, len(courseIDs))
		var totalLessons, totalCompleted int

		for _, courseID := range courseIDs {
			crs := courseByID[courseID]
			total := lessonCount[courseID]
			done := completed[usr.ID][courseID]

			courseProgress = append(courseProgress, CourseProgress{
				CourseID:   crs.ID,
				CourseCode: crs.Code,
				CourseName: crs.Name,
				Progress:   percent(done, total),
			})
			totalLessons += total
			totalCompleted += done
		}

		summaries = append(summaries, StudentSummary{
			UserID:          usr.ID,
			UserName:        usr.Name,
			Department:      usr.Department,
			OverallProgress: percent(totalCompleted, totalLessons),
			CourseProgress:  courseProgress,
		})
	}

	// descending by overall progress; ties keep input user order
	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].OverallProgress > summaries[j].OverallProgress
	})

	return DashboardSnapshot{
		Users:           users,
		ProgressSummary: summaries,
		Warnings:        warnings,
	}
}

// SummaryFor extracts userID's summary from a snapshot.
func SummaryFor(snapshot DashboardSnapshot, userID string) (StudentSummary, error) {
	for _, sum := range snapshot.ProgressSummary {
		if sum.UserID == userID {
			return sum, nil
		}
	}
	return StudentSummary{}, ErrNotFound
}

// Stats computes the dashboard headline numbers from a snapshot.
func Stats(snapshot DashboardSnapshot, totalCourses int) DashboardStats {
	var sum int
	for _, s := range snapshot.ProgressSummary {
		sum += s.OverallProgress
	}
	var avg int
	if n := len(snapshot.ProgressSummary); n > 0 {
		avg = int(math.Round(float64(sum) / float64(n)))
	}
	return DashboardStats{
		TotalStudents:   len(snapshot.Users),
		TotalCourses:    totalCourses,
		AverageProgress: avg,
	}
}
