package dummydb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jindoapp/jindo/core/track"
)

type trackRepository struct {
	db *DB
}

var _ track.Repository = (*trackRepository)(nil) // interface compliance check

func NewTrackRepository(db *DB) track.Repository {
	return &trackRepository{db: db}
}

func (repo *trackRepository) fail(op string) error {
	if err := repo.db.takeFailure(); err != nil {
		return track.NewPersistenceError(op, err)
	}
	return nil
}

func (repo *trackRepository) ListUsers(_ context.Context) ([]track.User, error) {
	if err := repo.fail("ListUsers"); err != nil {
		return nil, err
	}
	repo.db.RLock()
	defer repo.db.RUnlock()
	return append([]track.User(nil), repo.db.users...), nil
}

func (repo *trackRepository) GetUser(_ context.Context, id string) (track.User, error) {
	if err := repo.fail("GetUser"); err != nil {
		return track.User{}, err
	}
	repo.db.RLock()
	defer repo.db.RUnlock()
	for _, usr := range repo.db.users {
		if usr.ID == id {
			return usr, nil
		}
	}
	return track.User{}, track.ErrNotFound
}

func (repo *trackRepository) CreateUser(_ context.Context, usr track.User) (track.User, error) {
	if err := repo.fail("CreateUser"); err != nil {
		return track.User{}, err
	}
	repo.db.Lock()
	defer repo.db.Unlock()

	usr.ID = uuid.New().String()
	if usr.CreatedAt.IsZero() {
		usr.CreatedAt = time.Now().UTC()
	}
	repo.db.users = append(repo.db.users, usr)
	return usr, nil
}

func (repo *trackRepository) DeleteUser(_ context.Context, id string) error {
	if err := repo.fail("DeleteUser"); err != nil {
		return err
	}
	repo.db.Lock()
	defer repo.db.Unlock()

	found := false
	users := repo.db.users[:0]
	for _, usr := range repo.db.users {
		if usr.ID == id {
			found = true
			continue
		}
		users = append(users, usr)
	}
	if !found {
		return track.ErrNotFound
	}
	repo.db.users = users

	enrollments := repo.db.enrollments[:0]
	for _, enr := range repo.db.enrollments {
		if enr.UserID != id {
			enrollments = append(enrollments, enr)
		}
	}
	repo.db.enrollments = enrollments

	progress := repo.db.progress[:0]
	for _, rec := range repo.db.progress {
		if rec.UserID != id {
			progress = append(progress, rec)
		}
	}
	repo.db.progress = progress
	return nil
}

func (repo *trackRepository) ListCourses(_ context.Context) ([]track.Course, error) {
	if err := repo.fail("ListCourses"); err != nil {
		return nil, err
	}
	repo.db.RLock()
	defer repo.db.RUnlock()
	return append([]track.Course(nil), repo.db.courses...), nil
}

func (repo *trackRepository) ListCoursesByDepartment(_ context.Context, department string) ([]track.Course, error) {
	if err := repo.fail("ListCoursesByDepartment"); err != nil {
		return nil, err
	}
	repo.db.RLock()
	defer repo.db.RUnlock()

	var courses []track.Course
	for _, crs := range repo.db.courses {
		if crs.Department == department {
			courses = append(courses, crs)
		}
	}
	return courses, nil
}

func (repo *trackRepository) CreateCourse(_ context.Context, crs track.Course) (track.Course, error) {
	if err := repo.fail("CreateCourse"); err != nil {
		return track.Course{}, err
	}
	repo.db.Lock()
	defer repo.db.Unlock()

	crs.ID = uuid.New().String()
	if crs.CreatedAt.IsZero() {
		crs.CreatedAt = time.Now().UTC()
	}
	repo.db.courses = append(repo.db.courses, crs)
	return crs, nil
}

func (repo *trackRepository) ListLessonsByCourse(_ context.Context, courseID string) ([]track.Lesson, error) {
	if err := repo.fail("ListLessonsByCourse"); err != nil {
		return nil, err
	}
	repo.db.RLock()
	defer repo.db.RUnlock()

	var lessons []track.Lesson
	for _, les := range repo.db.lessons {
		if les.CourseID == courseID {
			lessons = append(lessons, les)
		}
	}
	sort.Slice(lessons, func(i, j int) bool { return lessons[i].Position < lessons[j].Position })
	return lessons, nil
}

func (repo *trackRepository) CreateLesson(_ context.Context, les track.Lesson) (track.Lesson, error) {
	if err := repo.fail("CreateLesson"); err != nil {
		return track.Lesson{}, err
	}
	repo.db.Lock()
	defer repo.db.Unlock()

	les.ID = uuid.New().String()
	repo.db.lessons = append(repo.db.lessons, les)
	return les, nil
}

func (repo *trackRepository) ListEnrollments(_ context.Context, userID ...string) ([]track.Enrollment, error) {
	if err := repo.fail("ListEnrollments"); err != nil {
		return nil, err
	}
	repo.db.RLock()
	defer repo.db.RUnlock()

	if len(userID) == 0 {
		return append([]track.Enrollment(nil), repo.db.enrollments...), nil
	}
	var enrollments []track.Enrollment
	for _, enr := range repo.db.enrollments {
		if enr.UserID == userID[0] {
			enrollments = append(enrollments, enr)
		}
	}
	return enrollments, nil
}

func (repo *trackRepository) Enroll(_ context.Context, userID, courseID string) (track.Enrollment, error) {
	if err := repo.fail("Enroll"); err != nil {
		return track.Enrollment{}, err
	}
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, enr := range repo.db.enrollments {
		if enr.UserID == userID && enr.CourseID == courseID {
			return track.Enrollment{}, track.ErrAlreadyEnrolled
		}
	}

	enr := track.Enrollment{
		ID:         uuid.New().String(),
		UserID:     userID,
		CourseID:   courseID,
		EnrolledAt: time.Now().UTC(),
	}
	repo.db.enrollments = append(repo.db.enrollments, enr)
	return enr, nil
}

func (repo *trackRepository) Unenroll(_ context.Context, userID, courseID string) error {
	if err := repo.fail("Unenroll"); err != nil {
		return err
	}
	repo.db.Lock()
	defer repo.db.Unlock()

	found := false
	enrollments := repo.db.enrollments[:0]
	for _, enr := range repo.db.enrollments {
		if enr.UserID == userID && enr.CourseID == courseID {
			found = true
			continue
		}
		enrollments = append(enrollments, enr)
	}
	if !found {
		return track.ErrNotFound
	}
	repo.db.enrollments = enrollments

	courseLessons := make(map[string]bool)
	for _, les := range repo.db.lessons {
		if les.CourseID == courseID {
			courseLessons[les.ID] = true
		}
	}

	progress := repo.db.progress[:0]
	for _, rec := range repo.db.progress {
		if rec.UserID == userID && courseLessons[rec.LessonID] {
			continue
		}
		progress = append(progress, rec)
	}
	repo.db.progress = progress
	return nil
}

func (repo *trackRepository) ListProgress(_ context.Context, userID ...string) ([]track.ProgressRecord, error) {
	if err := repo.fail("ListProgress"); err != nil {
		return nil, err
	}
	repo.db.RLock()
	defer repo.db.RUnlock()

	if len(userID) == 0 {
		return append([]track.ProgressRecord(nil), repo.db.progress...), nil
	}
	var records []track.ProgressRecord
	for _, rec := range repo.db.progress {
		if rec.UserID == userID[0] {
			records = append(records, rec)
		}
	}
	return records, nil
}

func (repo *trackRepository) UpsertProgress(_ context.Context, userID, lessonID string, completed bool) (track.ProgressRecord, error) {
	if err := repo.fail("UpsertProgress"); err != nil {
		return track.ProgressRecord{}, err
	}
	repo.db.Lock()
	defer repo.db.Unlock()

	// same contract as the SQL schema's foreign keys
	userOK := false
	for _, usr := range repo.db.users {
		if usr.ID == userID {
			userOK = true
			break
		}
	}
	lessonOK := false
	for _, les := range repo.db.lessons {
		if les.ID == lessonID {
			lessonOK = true
			break
		}
	}
	if !userOK || !lessonOK {
		return track.ProgressRecord{}, track.ErrNotFound
	}

	for i := range repo.db.progress {
		rec := &repo.db.progress[i]
		if rec.UserID != userID || rec.LessonID != lessonID {
			continue
		}
		switch {
		case completed && rec.Completed:
			// no-op write, keep the original timestamp
		case completed:
			now := time.Now().UTC()
			rec.CompletedAt = &now
		default:
			rec.CompletedAt = nil
		}
		rec.Completed = completed
		return *rec, nil
	}

	rec := track.ProgressRecord{
		ID:        uuid.New().String(),
		UserID:    userID,
		LessonID:  lessonID,
		Completed: completed,
	}
	if completed {
		now := time.Now().UTC()
		rec.CompletedAt = &now
	}
	repo.db.progress = append(repo.db.progress, rec)
	return rec, nil
}
