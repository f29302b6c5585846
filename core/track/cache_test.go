package track

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// stubRepo is a minimal in-test Repository that counts list calls and can
// block fetches to exercise the single-flight behaviour.
type stubRepo struct {
	users       []User
	courses     []Course
	lessons     map[string][]Lesson
	enrollments []Enrollment

	rmu     sync.RWMutex
	records []ProgressRecord

	err error

	listUsersCalls   uint64
	listLessonsCalls uint64

	fetchGate   chan struct{} // when set, ListUsers blocks until closed
	lessonsGate chan struct{} // when set, ListLessonsByCourse blocks until closed
}

var _ Repository = (*stubRepo)(nil)

func (r *stubRepo) ListUsers(ctx context.Context) ([]User, error) {
	atomic.AddUint64(&r.listUsersCalls, 1)
	if r.fetchGate != nil {
		<-r.fetchGate
	}
	return r.users, r.err
}

func (r *stubRepo) GetUser(ctx context.Context, id string) (User, error) {
	for _, usr := range r.users {
		if usr.ID == id {
			return usr, nil
		}
	}
	return User{}, ErrNotFound
}

func (r *stubRepo) CreateUser(ctx context.Context, usr User) (User, error) { return usr, r.err }
func (r *stubRepo) DeleteUser(ctx context.Context, id string) error        { return r.err }

func (r *stubRepo) ListCourses(ctx context.Context) ([]Course, error) { return r.courses, r.err }
func (r *stubRepo) ListCoursesByDepartment(ctx context.Context, department string) ([]Course, error) {
	return r.courses, r.err
}
func (r *stubRepo) CreateCourse(ctx context.Context, crs Course) (Course, error) { return crs, r.err }

func (r *stubRepo) ListLessonsByCourse(ctx context.Context, courseID string) ([]Lesson, error) {
	atomic.AddUint64(&r.listLessonsCalls, 1)
	if r.lessonsGate != nil {
		<-r.lessonsGate
	}
	return r.lessons[courseID], r.err
}
func (r *stubRepo) CreateLesson(ctx context.Context, les Lesson) (Lesson, error) { return les, r.err }

func (r *stubRepo) ListEnrollments(ctx context.Context, userID ...string) ([]Enrollment, error) {
	return r.enrollments, r.err
}
func (r *stubRepo) Enroll(ctx context.Context, userID, courseID string) (Enrollment, error) {
	return Enrollment{UserID: userID, CourseID: courseID}, r.err
}
func (r *stubRepo) Unenroll(ctx context.Context, userID, courseID string) error { return r.err }

func (r *stubRepo) ListProgress(ctx context.Context, userID ...string) ([]ProgressRecord, error) {
	r.rmu.RLock()
	defer r.rmu.RUnlock()
	return r.records, r.err
}

func (r *stubRepo) setRecords(records []ProgressRecord) {
	r.rmu.Lock()
	r.records = records
	r.rmu.Unlock()
}
func (r *stubRepo) UpsertProgress(ctx context.Context, userID, lessonID string, completed bool) (ProgressRecord, error) {
	return ProgressRecord{UserID: userID, LessonID: lessonID, Completed: completed}, r.err
}

func newStubRepo() *stubRepo {
	lessons := makeLessons("c1", 10)
	return &stubRepo{
		users:       []User{{ID: "u1", Name: "User One", Department: "통계·데이터"}},
		courses:     []Course{{ID: "c1", Code: "STAT101", Name: "통계학개론", LessonCount: 10}},
		lessons:     map[string][]Lesson{"c1": lessons},
		enrollments: []Enrollment{{ID: "e1", UserID: "u1", CourseID: "c1"}},
		records:     completeLessons("u1", lessons, 6),
	}
}

func TestDashboardCache_Get(t *testing.T) {
	ctx := context.Background()
	repo := newStubRepo()

	now := time.Date(2023, 3, 1, 9, 0, 0, 0, time.UTC)
	cache := NewDashboardCache(repo, time.Minute)
	cache.nowFunc = func() time.Time { return now }

	// first call misses and fetches
	snap, err := cache.Get(ctx)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(snap.ProgressSummary) != 1 || snap.ProgressSummary[0].OverallProgress != 60 {
		t.Errorf("Get() summary = %+v, want one entry at 60%%", snap.ProgressSummary)
	}
	if got := atomic.LoadUint64(&repo.listUsersCalls); got != 1 {
		t.Errorf("backend fetches = %d, want 1", got)
	}

	// second call within the TTL is a hit, no backend call
	if _, err = cache.Get(ctx); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got := atomic.LoadUint64(&repo.listUsersCalls); got != 1 {
		t.Errorf("backend fetches = %d, want 1", got)
	}

	if stats := cache.Stats(); stats.Requests != 2 || stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("Stats() = %+v, want {Requests:2 Hits:1 Misses:1}", stats)
	}

	// one nanosecond short of expiry is still a hit
	now = now.Add(time.Minute - time.Nanosecond)
	if _, err = cache.Get(ctx); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got := atomic.LoadUint64(&repo.listUsersCalls); got != 1 {
		t.Errorf("backend fetches = %d, want 1", got)
	}

	// at expiry the entry is stale and refetched
	now = now.Add(time.Nanosecond)
	if _, err = cache.Get(ctx); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got := atomic.LoadUint64(&repo.listUsersCalls); got != 2 {
		t.Errorf("backend fetches = %d, want 2", got)
	}

	if stats := cache.Stats(); stats.Requests != 4 || stats.Hits != 2 || stats.Misses != 2 {
		t.Errorf("Stats() = %+v, want {Requests:4 Hits:2 Misses:2}", stats)
	}
}

func TestDashboardCache_Invalidate(t *testing.T) {
	ctx := context.Background()
	repo := newStubRepo()
	cache := NewDashboardCache(repo, time.Minute)

	snap, err := cache.Get(ctx)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if snap.ProgressSummary[0].OverallProgress != 60 {
		t.Fatalf("Get() overallProgress = %d, want 60", snap.ProgressSummary[0].OverallProgress)
	}

	// mutate the backend, then invalidate: next Get must see the new state
	// even though the TTL has not elapsed
	repo.setRecords(completeLessons("u1", repo.lessons["c1"], 10))
	cache.Invalidate()

	snap, err = cache.Get(ctx)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if snap.ProgressSummary[0].OverallProgress != 100 {
		t.Errorf("Get() after Invalidate() overallProgress = %d, want 100", snap.ProgressSummary[0].OverallProgress)
	}
	if stats := cache.Stats(); stats.Misses != 2 {
		t.Errorf("Stats() misses = %d, want 2", stats.Misses)
	}
}

func TestDashboardCache_invalidateDuringFetch(t *testing.T) {
	ctx := context.Background()
	repo := newStubRepo()
	repo.lessonsGate = make(chan struct{})
	cache := NewDashboardCache(repo, time.Minute)

	// the stale flight reads 6/10-complete progress, then blocks on the gate
	stale := make(chan DashboardSnapshot, 1)
	go func() {
		snap, err := cache.Get(ctx)
		if err != nil {
			t.Errorf("Get() error = %v", err)
		}
		stale <- snap
	}()
	for atomic.LoadUint64(&repo.listLessonsCalls) == 0 {
		time.Sleep(time.Millisecond)
	}

	// backend mutates to 10/10 and the cache is invalidated while the first
	// fetch is still in flight
	repo.setRecords(completeLessons("u1", repo.lessons["c1"], 10))
	cache.Invalidate()

	// a caller arriving after the invalidation must not join the stale flight
	fresh := make(chan DashboardSnapshot, 1)
	go func() {
		snap, err := cache.Get(ctx)
		if err != nil {
			t.Errorf("Get() error = %v", err)
		}
		fresh <- snap
	}()

	close(repo.lessonsGate)

	staleSnap := <-stale
	if got := staleSnap.ProgressSummary[0].OverallProgress; got != 60 {
		t.Errorf("pre-invalidate Get() overallProgress = %d, want 60", got)
	}
	freshSnap := <-fresh
	if got := freshSnap.ProgressSummary[0].OverallProgress; got != 100 {
		t.Errorf("Get() after Invalidate() overallProgress = %d, want 100", got)
	}

	// and the stale flight must not have repopulated the cache
	snap, err := cache.Get(ctx)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got := snap.ProgressSummary[0].OverallProgress; got != 100 {
		t.Errorf("subsequent Get() overallProgress = %d, want 100", got)
	}
}

func TestDashboardCache_errorLeavesCacheEmpty(t *testing.T) {
	ctx := context.Background()
	repo := newStubRepo()
	repo.err = NewPersistenceError("stub", nil)
	cache := NewDashboardCache(repo, time.Minute)

	if _, err := cache.Get(ctx); !IsPersistenceError(err) {
		t.Fatalf("Get() error = %v, want a persistence error", err)
	}

	// recovery: the failed fetch cached nothing, so the next call hits the backend
	repo.err = nil
	snap, err := cache.Get(ctx)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(snap.ProgressSummary) != 1 {
		t.Errorf("Get() summaries = %d, want 1", len(snap.ProgressSummary))
	}
}

func TestDashboardCache_singleFlight(t *testing.T) {
	ctx := context.Background()
	repo := newStubRepo()
	repo.fetchGate = make(chan struct{})
	cache := NewDashboardCache(repo, time.Minute)

	const callers = 10
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cache.Get(ctx)
			errs <- err
		}()
	}

	// wait for the first flight to reach the backend, then release everyone
	for atomic.LoadUint64(&repo.listUsersCalls) == 0 {
		time.Sleep(time.Millisecond)
	}
	close(repo.fetchGate)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
	}
	if got := atomic.LoadUint64(&repo.listUsersCalls); got != 1 {
		t.Errorf("backend fetches = %d, want 1 for %d concurrent callers", got, callers)
	}
	if stats := cache.Stats(); stats.Requests != callers || stats.Misses != 1 {
		t.Errorf("Stats() = %+v, want {Requests:%d Misses:1}", stats, callers)
	}
}

func TestDashboardCache_Lessons(t *testing.T) {
	ctx := context.Background()
	repo := newStubRepo()
	cache := NewDashboardCache(repo, time.Minute)

	ls, err := cache.Lessons(ctx, "c1")
	if err != nil {
		t.Fatalf("Lessons() error = %v", err)
	}
	if len(ls) != 10 {
		t.Fatalf("Lessons() len = %d, want 10", len(ls))
	}

	// memoized: no second backend call
	if _, err = cache.Lessons(ctx, "c1"); err != nil {
		t.Fatalf("Lessons() error = %v", err)
	}
	if got := atomic.LoadUint64(&repo.listLessonsCalls); got != 1 {
		t.Errorf("lesson fetches = %d, want 1", got)
	}

	// Invalidate clears the lesson cache too
	cache.Invalidate()
	if _, err = cache.Lessons(ctx, "c1"); err != nil {
		t.Fatalf("Lessons() error = %v", err)
	}
	if got := atomic.LoadUint64(&repo.listLessonsCalls); got != 2 {
		t.Errorf("lesson fetches after Invalidate() = %d, want 2", got)
	}
}
