package track

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/jindoapp/jindo/core"
)

// Departments selectable at registration.
var Departments = []string{"통계·데이터", "컴퓨터"}

const defaultLessonCount = 15

// keyedMutex serializes operations per key; different keys proceed independently.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	sync.Mutex
	refs int
}

func (km *keyedMutex) lock(key string) func() {
	km.mu.Lock()
	if km.locks == nil {
		km.locks = make(map[string]*keyedLock)
	}
	kl, ok := km.locks[key]
	if !ok {
		kl = &keyedLock{}
		km.locks[key] = kl
	}
	kl.refs++
	km.mu.Unlock()

	kl.Lock()
	return func() {
		kl.Unlock()
		km.mu.Lock()
		kl.refs--
		if kl.refs == 0 {
			delete(km.locks, key)
		}
		km.mu.Unlock()
	}
}

type Service struct {
	repo   Repository
	cache  *DashboardCache
	logger core.Logger

	toggles keyedMutex
}

func NewService(repo Repository, cache *DashboardCache, logger core.Logger) *Service {
	return &Service{
		repo:   repo,
		cache:  cache,
		logger: logger,
	}
}

// Dashboard returns the (cache-aware) dashboard snapshot.
func (svc *Service) Dashboard(ctx context.Context) (DashboardSnapshot, error) {
	snap, err := svc.cache.Get(ctx)
	if err != nil {
		return DashboardSnapshot{}, errors.Wrap(err, "getting dashboard snapshot")
	}
	for _, w := range snap.Warnings {
		svc.logger.Warn("inconsistent data: " + w)
	}
	return snap, nil
}

// Summary returns one student's aggregate line from the current snapshot.
func (svc *Service) Summary(ctx context.Context, userID string) (StudentSummary, error) {
	snap, err := svc.Dashboard(ctx)
	if err != nil {
		return StudentSummary{}, err
	}
	return SummaryFor(snap, userID)
}

// Stats returns the dashboard headline numbers.
func (svc *Service) Stats(ctx context.Context) (DashboardStats, error) {
	snap, err := svc.Dashboard(ctx)
	if err != nil {
		return DashboardStats{}, err
	}
	courses, err := svc.repo.ListCourses(ctx)
	if err != nil {
		return DashboardStats{}, errors.Wrap(err, "listing courses")
	}
	return Stats(snap, len(courses)), nil
}

func (svc *Service) InvalidateDashboard() {
	svc.cache.Invalidate()
}

func (svc *Service) CacheStats() CacheStats {
	return svc.cache.Stats()
}

// CourseLessons returns courseID's lessons, ordered by position (secondary-cache-aware).
func (svc *Service) CourseLessons(ctx context.Context, courseID string) ([]Lesson, error) {
	return svc.cache.Lessons(ctx, courseID)
}

// ToggleLesson performs a single lesson-completion toggle:
// persist, invalidate the dashboard cache, recompute, report the new state.
// On persistence failure the cache is left untouched and the failure is returned
// for the caller to revert any optimistic state. Single attempt, no retry.
// Toggles for the same (user, lesson) pair are serialized.
func (svc *Service) ToggleLesson(ctx context.Context, userID, lessonID string, completed bool) (ToggleResult, error) {
	unlock := svc.toggles.lock(userID + "\x00" + lessonID)
	defer unlock()

	rec, err := svc.repo.UpsertProgress(ctx, userID, lessonID, completed)
	if err != nil {
		return ToggleResult{}, errors.Wrap(err, "persisting progress toggle")
	}

	svc.cache.Invalidate()

	snap, err := svc.cache.Get(ctx)
	if err != nil {
		return ToggleResult{}, errors.Wrap(err, "recomputing dashboard")
	}
	sum, err := SummaryFor(snap, userID)
	if err != nil {
		return ToggleResult{}, errors.Wrapf(err, "summarizing user %s", userID)
	}

	svc.logger.Debug(fmt.Sprintf("lesson %s toggled to %t for user %s", lessonID, completed, userID))

	return ToggleResult{
		Record:          rec,
		OverallProgress: sum.OverallProgress,
		CourseProgress:  sum.CourseProgress,
	}, nil
}

// NewStudent contains information needed to register a student.
type NewStudent struct {
	Name       string   `json:"name" validate:"required,max=20"`
	Department string   `json:"department" validate:"required,department"`
	CourseIDs  []string `json:"course_ids"`
}

// checkNameUniqueness rejects a name already held by a registered student,
// case-insensitively.
func (svc *Service) checkNameUniqueness(ctx context.Context, name string) error {
	users, err := svc.repo.ListUsers(ctx)
	if err != nil {
		return errors.Wrap(err, "listing users")
	}
	for _, usr := range users {
		if strings.EqualFold(usr.Name, name) {
			return core.NewValidationError(ErrNameTaken, core.FieldError{Field: "name", Error: ErrNameTaken.Error()})
		}
	}
	return nil
}

// RegisterStudent creates the user and enrolls them in the selected courses.
func (svc *Service) RegisterStudent(ctx context.Context, ns NewStudent) (User, error) {
	usr := User{
		Name:       core.CleanString(ns.Name),
		Department: ns.Department,
		CreatedAt:  time.Now().UTC(),
	}
	if err := svc.checkNameUniqueness(ctx, usr.Name); err != nil {
		return User{}, err
	}
	usr, err := svc.repo.CreateUser(ctx, usr)
	if err != nil {
		return User{}, errors.Wrap(err, "creating user")
	}

	for _, courseID := range ns.CourseIDs {
		if _, err := svc.repo.Enroll(ctx, usr.ID, courseID); err != nil {
			svc.cache.Invalidate()
			return User{}, errors.Wrapf(err, "enrolling user %s in course %s", usr.ID, courseID)
		}
	}

	svc.cache.Invalidate()
	return usr, nil
}

// DeleteStudent removes the student; the repository cascades enrollments and
// progress records.
func (svc *Service) DeleteStudent(ctx context.Context, userID string) error {
	if err := svc.repo.DeleteUser(ctx, userID); err != nil {
		return errors.Wrapf(err, "deleting user %s", userID)
	}
	svc.cache.Invalidate()
	return nil
}

func (svc *Service) Students(ctx context.Context) ([]User, error) {
	return svc.repo.ListUsers(ctx)
}

func (svc *Service) EnrollStudent(ctx context.Context, userID, courseID string) (Enrollment, error) {
	enr, err := svc.repo.Enroll(ctx, userID, courseID)
	if err != nil {
		return Enrollment{}, errors.Wrap(err, "enrolling")
	}
	svc.cache.Invalidate()
	return enr, nil
}

func (svc *Service) UnenrollStudent(ctx context.Context, userID, courseID string) error {
	if err := svc.repo.Unenroll(ctx, userID, courseID); err != nil {
		return errors.Wrap(err, "unenrolling")
	}
	svc.cache.Invalidate()
	return nil
}

// StudentProgress returns all of userID's progress records.
func (svc *Service) StudentProgress(ctx context.Context, userID string) ([]ProgressRecord, error) {
	if _, err := svc.repo.GetUser(ctx, userID); err != nil {
		return nil, errors.Wrapf(err, "getting user %s", userID)
	}
	return svc.repo.ListProgress(ctx, userID)
}

// StudentCourses returns the courses userID is enrolled in, in enrollment order.
func (svc *Service) StudentCourses(ctx context.Context, userID string) ([]Course, error) {
	enrollments, err := svc.repo.ListEnrollments(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "listing enrollments")
	}
	courses, err := svc.repo.ListCourses(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "listing courses")
	}
	byID := make(map[string]Course, len(courses))
	for _, crs := range courses {
		byID[crs.ID] = crs
	}

	enrolled := make([]Course, 0, len(enrollments))
	for _, enr := range enrollments {
		if crs, ok := byID[enr.CourseID]; ok {
			enrolled = append(enrolled, crs)
		}
	}
	return enrolled, nil
}

// NewCourse contains information needed to create a course.
type NewCourse struct {
	Code        string `json:"course_code" validate:"required"`
	Name        string `json:"course_name" validate:"required"`
	Department  string `json:"department" validate:"required,department"`
	Grade       int    `json:"grade" validate:"required,min=1,max=4"`
	LessonCount int    `json:"lesson_count" validate:"omitempty,min=1"`
}

// AddCourse creates the course and auto-generates its lessons.
func (svc *Service) AddCourse(ctx context.Context, nc NewCourse) (Course, error) {
	lessonCount := nc.LessonCount
	if lessonCount == 0 {
		lessonCount = defaultLessonCount
	}

	crs := Course{
		Code:        core.CleanString(nc.Code),
		Name:        core.CleanString(nc.Name),
		Department:  nc.Department,
		Grade:       nc.Grade,
		LessonCount: lessonCount,
		CreatedAt:   time.Now().UTC(),
	}
	crs, err := svc.repo.CreateCourse(ctx, crs)
	if err != nil {
		return Course{}, errors.Wrap(err, "creating course")
	}

	for i := 1; i <= lessonCount; i++ {
		les := Lesson{
			CourseID: crs.ID,
			Name:     fmt.Sprintf("%d강: %s 강의 %d", i, crs.Name, i),
			Position: i,
		}
		if _, err := svc.repo.CreateLesson(ctx, les); err != nil {
			return Course{}, errors.Wrapf(err, "creating lesson %d for course %s", i, crs.ID)
		}
	}

	svc.cache.Invalidate()
	return crs, nil
}

// AddLesson appends a lesson at the next position of courseID.
func (svc *Service) AddLesson(ctx context.Context, courseID, name string) (Lesson, error) {
	existing, err := svc.repo.ListLessonsByCourse(ctx, courseID)
	if err != nil {
		return Lesson{}, errors.Wrap(err, "listing lessons")
	}
	next := 0
	for _, les := range existing {
		if les.Position > next {
			next = les.Position
		}
	}

	les, err := svc.repo.CreateLesson(ctx, Lesson{
		CourseID: courseID,
		Name:     core.CleanString(name),
		Position: next + 1,
	})
	if err != nil {
		return Lesson{}, errors.Wrap(err, "creating lesson")
	}
	svc.cache.Invalidate()
	return les, nil
}

func (svc *Service) Courses(ctx context.Context) ([]Course, error) {
	return svc.repo.ListCourses(ctx)
}

func (svc *Service) CoursesByDepartment(ctx context.Context, department string) ([]Course, error) {
	return svc.repo.ListCoursesByDepartment(ctx, department)
}
