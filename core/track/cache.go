package track

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jindoapp/jindo/core"
)

// CacheStats is a read-only snapshot of the dashboard cache counters.
// Hits counts requests served from a fresh snapshot; Misses counts backend
// fetches. Requests joining an in-flight fetch count toward neither.
type CacheStats struct {
	Requests uint64 `json:"requests"`
	Hits     uint64 `json:"hits"`
	Misses   uint64 `json:"misses"`
}

func (s CacheStats) HitRate() float64 {
	if s.Requests == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Requests)
}

// DashboardCache memoizes the aggregation engine's output for a bounded time.
// Concurrent misses collapse into a single backend fetch. A secondary cache
// keyed by courseID memoizes lesson lists with no TTL; it is cleared whenever
// the dashboard snapshot is invalidated.
type DashboardCache struct {
	repo Repository
	ttl  time.Duration

	group singleflight.Group

	mu        sync.RWMutex
	snapshot  *DashboardSnapshot
	expiresAt time.Time

	lmu     sync.RWMutex
	lessons map[string][]Lesson

	// gen is bumped by Invalidate; a fetch begun under an older generation
	// must not repopulate the cache.
	gen uint64

	requests uint64
	hits     uint64
	misses   uint64

	nowFunc func() time.Time
}

func NewDashboardCache(repo Repository, ttl time.Duration) *DashboardCache {
	return &DashboardCache{
		repo:    repo,
		ttl:     ttl,
		lessons: make(map[string][]Lesson),
		nowFunc: time.Now,
	}
}

func (c *DashboardCache) cached() (DashboardSnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snapshot != nil && c.nowFunc().Before(c.expiresAt) {
		return *c.snapshot, true
	}
	return DashboardSnapshot{}, false
}

// Get returns the cached snapshot when fresh, otherwise fetches the current
// collections from the repository, recomputes and caches the result.
// Repository errors propagate unchanged and leave the cache state untouched.
func (c *DashboardCache) Get(ctx context.Context) (DashboardSnapshot, error) {
	atomic.AddUint64(&c.requests, 1)

	if snap, ok := c.cached(); ok {
		atomic.AddUint64(&c.hits, 1)
		return snap, nil
	}

	v, err, _ := c.group.Do("dashboard", func() (interface{}, error) {
		// the flight we waited on may have just refreshed the snapshot
		if snap, ok := c.cached(); ok {
			return snap, nil
		}
		atomic.AddUint64(&c.misses, 1)

		gen := atomic.LoadUint64(&c.gen)

		snap, err := c.fetch(ctx)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		// an Invalidate during the fetch makes this snapshot stale: serve it
		// to the callers already in this flight, but do not store it
		if atomic.LoadUint64(&c.gen) == gen {
			c.snapshot = &snap
			c.expiresAt = c.nowFunc().Add(c.ttl)
		}
		c.mu.Unlock()
		return snap, nil
	})
	if err != nil {
		return DashboardSnapshot{}, err
	}
	snap, ok := v.(DashboardSnapshot)
	if !ok {
		return DashboardSnapshot{}, core.NewShutdownError(fmt.Sprintf("unexpected dashboard cache payload %T", v))
	}
	return snap, nil
}

func (c *DashboardCache) fetch(ctx context.Context) (DashboardSnapshot, error) {
	users, err := c.repo.ListUsers(ctx)
	if err != nil {
		return DashboardSnapshot{}, err
	}
	courses, err := c.repo.ListCourses(ctx)
	if err != nil {
		return DashboardSnapshot{}, err
	}
	enrollments, err := c.repo.ListEnrollments(ctx)
	if err != nil {
		return DashboardSnapshot{}, err
	}
	records, err := c.repo.ListProgress(ctx)
	if err != nil {
		return DashboardSnapshot{}, err
	}

	// lessons only for enrolled courses, through the per-course cache
	var lessons []Lesson
	seen := make(map[string]bool, len(courses))
	for _, enr := range enrollments {
		if seen[enr.CourseID] {
			continue
		}
		seen[enr.CourseID] = true
		ls, err := c.Lessons(ctx, enr.CourseID)
		if err != nil {
			return DashboardSnapshot{}, err
		}
		lessons = append(lessons, ls...)
	}

	return ComputeDashboard(users, courses, lessons, enrollments, records), nil
}

// Lessons returns courseID's lessons, memoized until the next Invalidate.
func (c *DashboardCache) Lessons(ctx context.Context, courseID string) ([]Lesson, error) {
	c.lmu.RLock()
	ls, ok := c.lessons[courseID]
	c.lmu.RUnlock()
	if ok {
		return ls, nil
	}

	// the flight key is generation-scoped so a caller arriving after an
	// Invalidate never joins a fetch that started before it
	gen := atomic.LoadUint64(&c.gen)
	v, err, _ := c.group.Do(fmt.Sprintf("lessons.%d:%s", gen, courseID), func() (interface{}, error) {
		c.lmu.RLock()
		ls, ok := c.lessons[courseID]
		c.lmu.RUnlock()
		if ok {
			return ls, nil
		}

		ls, err := c.repo.ListLessonsByCourse(ctx, courseID)
		if err != nil {
			return nil, err
		}
		c.lmu.Lock()
		if atomic.LoadUint64(&c.gen) == gen {
			c.lessons[courseID] = ls
		}
		c.lmu.Unlock()
		return ls, nil
	})
	if err != nil {
		return nil, err
	}
	ls, ok = v.([]Lesson)
	if !ok {
		return nil, core.NewShutdownError(fmt.Sprintf("unexpected lesson cache payload %T", v))
	}
	return ls, nil
}

// Invalidate forces the next Get to fetch and recompute, and clears the
// per-course lesson cache. In-flight fetches are fenced out: they still answer
// their own callers but no longer repopulate the cache, and callers arriving
// after Invalidate start a fresh fetch instead of joining them.
func (c *DashboardCache) Invalidate() {
	atomic.AddUint64(&c.gen, 1)

	c.mu.Lock()
	c.snapshot = nil
	c.expiresAt = time.Time{}
	c.mu.Unlock()

	c.group.Forget("dashboard")

	c.lmu.Lock()
	c.lessons = make(map[string][]Lesson)
	c.lmu.Unlock()
}

func (c *DashboardCache) Stats() CacheStats {
	return CacheStats{
		Requests: atomic.LoadUint64(&c.requests),
		Hits:     atomic.LoadUint64(&c.hits),
		Misses:   atomic.LoadUint64(&c.misses),
	}
}
