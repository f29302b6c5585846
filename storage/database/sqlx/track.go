package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/volatiletech/null/v8"

	"github.com/jindoapp/jindo/core/track"
)

const (
	pqUniqueViolation = "23505"
	pqFKViolation     = "23503"
)

type trackRepository struct {
	db *sqlx.DB
}

var _ track.Repository = (*trackRepository)(nil) // interface compliance check

func NewTrackRepository(db *sql.DB) track.Repository {
	return &trackRepository{db: sqlx.NewDb(db, "postgres")}
}

func pqCode(err error) pq.ErrorCode {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code
	}
	return ""
}

type (
	dbUser struct {
		ID         string    `db:"id"`
		Name       string    `db:"name"`
		Department string    `db:"department"`
		CreatedAt  time.Time `db:"created_at"`
	}

	dbCourse struct {
		ID          string    `db:"id"`
		Code        string    `db:"course_code"`
		Name        string    `db:"course_name"`
		Department  string    `db:"department"`
		Grade       int       `db:"grade"`
		LessonCount int       `db:"lesson_count"`
		CreatedAt   time.Time `db:"created_at"`
	}

	dbLesson struct {
		ID       string `db:"id"`
		CourseID string `db:"course_id"`
		Name     string `db:"lesson_name"`
		Position int    `db:"lesson_order"`
	}

	dbEnrollment struct {
		ID         string    `db:"id"`
		UserID     string    `db:"user_id"`
		CourseID   string    `db:"course_id"`
		EnrolledAt time.Time `db:"enrolled_at"`
	}

	dbProgress struct {
		ID          string    `db:"id"`
		UserID      string    `db:"user_id"`
		LessonID    string    `db:"lesson_id"`
		Completed   bool      `db:"completed"`
		CompletedAt null.Time `db:"completed_at"`
	}
)

func (u dbUser) toDomain() track.User {
	return track.User{ID: u.ID, Name: u.Name, Department: u.Department, CreatedAt: u.CreatedAt.UTC()}
}

func (c dbCourse) toDomain() track.Course {
	return track.Course{
		ID:          c.ID,
		Code:        c.Code,
		Name:        c.Name,
		Department:  c.Department,
		Grade:       c.Grade,
		LessonCount: c.LessonCount,
		CreatedAt:   c.CreatedAt.UTC(),
	}
}

func (l dbLesson) toDomain() track.Lesson {
	return track.Lesson{ID: l.ID, CourseID: l.CourseID, Name: l.Name, Position: l.Position}
}

func (e dbEnrollment) toDomain() track.Enrollment {
	return track.Enrollment{ID: e.ID, UserID: e.UserID, CourseID: e.CourseID, EnrolledAt: e.EnrolledAt.UTC()}
}

func (p dbProgress) toDomain() track.ProgressRecord {
	rec := track.ProgressRecord{
		ID:        p.ID,
		UserID:    p.UserID,
		LessonID:  p.LessonID,
		Completed: p.Completed,
	}
	if p.CompletedAt.Valid {
		t := p.CompletedAt.Time.UTC()
		rec.CompletedAt = &t
	}
	return rec
}

func (repo *trackRepository) ListUsers(ctx context.Context) ([]track.User, error) {
	var rows []dbUser
	q := `SELECT id, name, department, created_at FROM users ORDER BY created_at, id`
	if err := repo.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, track.NewPersistenceError("ListUsers", err)
	}
	users := make([]track.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.toDomain())
	}
	return users, nil
}

func (repo *trackRepository) GetUser(ctx context.Context, id string) (track.User, error) {
	var row dbUser
	q := `SELECT id, name, department, created_at FROM users WHERE id = $1`
	if err := repo.db.GetContext(ctx, &row, q, id); err != nil {
		if err == sql.ErrNoRows {
			return track.User{}, track.ErrNotFound
		}
		return track.User{}, track.NewPersistenceError("GetUser", err)
	}
	return row.toDomain(), nil
}

func (repo *trackRepository) CreateUser(ctx context.Context, usr track.User) (track.User, error) {
	usr.ID = uuid.New().String()
	if usr.CreatedAt.IsZero() {
		usr.CreatedAt = time.Now().UTC()
	}
	q := `INSERT INTO users (id, name, department, created_at) VALUES ($1, $2, $3, $4)`
	if _, err := repo.db.ExecContext(ctx, q, usr.ID, usr.Name, usr.Department, usr.CreatedAt); err != nil {
		return track.User{}, track.NewPersistenceError("CreateUser", err)
	}
	return usr, nil
}

func (repo *trackRepository) DeleteUser(ctx context.Context, id string) error {
	// enrollments and progress go with the user via ON DELETE CASCADE
	res, err := repo.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return track.NewPersistenceError("DeleteUser", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return track.ErrNotFound
	}
	return nil
}

func (repo *trackRepository) ListCourses(ctx context.Context) ([]track.Course, error) {
	var rows []dbCourse
	q := `SELECT id, course_code, course_name, department, grade, lesson_count, created_at
		FROM courses ORDER BY department, grade, course_code`
	if err := repo.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, track.NewPersistenceError("ListCourses", err)
	}
	courses := make([]track.Course, 0, len(rows))
	for _, r := range rows {
		courses = append(courses, r.toDomain())
	}
	return courses, nil
}

func (repo *trackRepository) ListCoursesByDepartment(ctx context.Context, department string) ([]track.Course, error) {
	var rows []dbCourse
	q := `SELECT id, course_code, course_name, department, grade, lesson_count, created_at
		FROM courses WHERE department = $1 ORDER BY grade, course_code`
	if err := repo.db.SelectContext(ctx, &rows, q, department); err != nil {
		return nil, track.NewPersistenceError("ListCoursesByDepartment", err)
	}
	courses := make([]track.Course, 0, len(rows))
	for _, r := range rows {
		courses = append(courses, r.toDomain())
	}
	return courses, nil
}

func (repo *trackRepository) CreateCourse(ctx context.Context, crs track.Course) (track.Course, error) {
	crs.ID = uuid.New().String()
	if crs.CreatedAt.IsZero() {
		crs.CreatedAt = time.Now().UTC()
	}
	q := `INSERT INTO courses (id, course_code, course_name, department, grade, lesson_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := repo.db.ExecContext(ctx, q, crs.ID, crs.Code, crs.Name, crs.Department, crs.Grade, crs.LessonCount, crs.CreatedAt)
	if err != nil {
		return track.Course{}, track.NewPersistenceError("CreateCourse", err)
	}
	return crs, nil
}

func (repo *trackRepository) ListLessonsByCourse(ctx context.Context, courseID string) ([]track.Lesson, error) {
	var rows []dbLesson
	q := `SELECT id, course_id, lesson_name, lesson_order FROM lessons WHERE course_id = $1 ORDER BY lesson_order`
	if err := repo.db.SelectContext(ctx, &rows, q, courseID); err != nil {
		return nil, track.NewPersistenceError("ListLessonsByCourse", err)
	}
	lessons := make([]track.Lesson, 0, len(rows))
	for _, r := range rows {
		lessons = append(lessons, r.toDomain())
	}
	return lessons, nil
}

func (repo *trackRepository) CreateLesson(ctx context.Context, les track.Lesson) (track.Lesson, error) {
	les.ID = uuid.New().String()
	q := `INSERT INTO lessons (id, course_id, lesson_name, lesson_order) VALUES ($1, $2, $3, $4)`
	if _, err := repo.db.ExecContext(ctx, q, les.ID, les.CourseID, les.Name, les.Position); err != nil {
		return track.Lesson{}, track.NewPersistenceError("CreateLesson", err)
	}
	return les, nil
}

func (repo *trackRepository) ListEnrollments(ctx context.Context, userID ...string) ([]track.Enrollment, error) {
	var rows []dbEnrollment
	var err error
	if len(userID) > 0 {
		q := `SELECT id, user_id, course_id, enrolled_at FROM user_courses WHERE user_id = $1 ORDER BY enrolled_at, id`
		err = repo.db.SelectContext(ctx, &rows, q, userID[0])
	} else {
		q := `SELECT id, user_id, course_id, enrolled_at FROM user_courses ORDER BY enrolled_at, id`
		err = repo.db.SelectContext(ctx, &rows, q)
	}
	if err != nil {
		return nil, track.NewPersistenceError("ListEnrollments", err)
	}
	enrollments := make([]track.Enrollment, 0, len(rows))
	for _, r := range rows {
		enrollments = append(enrollments, r.toDomain())
	}
	return enrollments, nil
}

func (repo *trackRepository) Enroll(ctx context.Context, userID, courseID string) (track.Enrollment, error) {
	enr := track.Enrollment{
		ID:         uuid.New().String(),
		UserID:     userID,
		CourseID:   courseID,
		EnrolledAt: time.Now().UTC(),
	}
	q := `INSERT INTO user_courses (id, user_id, course_id, enrolled_at) VALUES ($1, $2, $3, $4)`
	if _, err := repo.db.ExecContext(ctx, q, enr.ID, enr.UserID, enr.CourseID, enr.EnrolledAt); err != nil {
		switch pqCode(err) {
		case pqUniqueViolation:
			return track.Enrollment{}, track.ErrAlreadyEnrolled
		case pqFKViolation:
			return track.Enrollment{}, track.ErrNotFound
		}
		return track.Enrollment{}, track.NewPersistenceError("Enroll", err)
	}
	return enr, nil
}

func (repo *trackRepository) Unenroll(ctx context.Context, userID, courseID string) error {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return track.NewPersistenceError("Unenroll", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM user_courses WHERE user_id = $1 AND course_id = $2`, userID, courseID)
	if err != nil {
		return track.NewPersistenceError("Unenroll", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return track.ErrNotFound
	}

	q := `DELETE FROM user_progress USING lessons
		WHERE user_progress.lesson_id = lessons.id AND user_progress.user_id = $1 AND lessons.course_id = $2`
	if _, err = tx.ExecContext(ctx, q, userID, courseID); err != nil {
		return track.NewPersistenceError("Unenroll", err)
	}

	if err = tx.Commit(); err != nil {
		return track.NewPersistenceError("Unenroll", err)
	}
	return nil
}

func (repo *trackRepository) ListProgress(ctx context.Context, userID ...string) ([]track.ProgressRecord, error) {
	var rows []dbProgress
	var err error
	if len(userID) > 0 {
		q := `SELECT id, user_id, lesson_id, completed, completed_at FROM user_progress WHERE user_id = $1`
		err = repo.db.SelectContext(ctx, &rows, q, userID[0])
	} else {
		q := `SELECT id, user_id, lesson_id, completed, completed_at FROM user_progress`
		err = repo.db.SelectContext(ctx, &rows, q)
	}
	if err != nil {
		return nil, track.NewPersistenceError("ListProgress", err)
	}
	records := make([]track.ProgressRecord, 0, len(rows))
	for _, r := range rows {
		records = append(records, r.toDomain())
	}
	return records, nil
}

func (repo *trackRepository) UpsertProgress(ctx context.Context, userID, lessonID string, completed bool) (track.ProgressRecord, error) {
	var row dbProgress
	// re-completing keeps the original completion timestamp
	q := `INSERT INTO user_progress (id, user_id, lesson_id, completed, completed_at)
		VALUES ($1, $2, $3, $4, CASE WHEN $4 THEN now() END)
		ON CONFLICT (user_id, lesson_id) DO UPDATE
		SET completed = EXCLUDED.completed,
			completed_at = CASE WHEN EXCLUDED.completed THEN COALESCE(user_progress.completed_at, now()) END
		RETURNING id, user_id, lesson_id, completed, completed_at`
	if err := repo.db.GetContext(ctx, &row, q, uuid.New().String(), userID, lessonID, completed); err != nil {
		if pqCode(err) == pqFKViolation {
			return track.ProgressRecord{}, track.ErrNotFound
		}
		return track.ProgressRecord{}, track.NewPersistenceError("UpsertProgress", err)
	}
	return row.toDomain(), nil
}
