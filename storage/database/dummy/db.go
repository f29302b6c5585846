package dummydb

import (
	"sync"

	"github.com/jindoapp/jindo/core/track"
)

// DB is an in-memory store for tests and DEV mode. Slices keep insertion order
// so listing is deterministic.
type DB struct {
	sync.RWMutex
	users       []track.User
	courses     []track.Course
	lessons     []track.Lesson
	enrollments []track.Enrollment
	progress    []track.ProgressRecord

	failNext error
}

func Open() (*DB, error) {
	return &DB{}, nil
}

// FailNext makes the next repository call fail with a *track.PersistenceError
// wrapping err.
func (db *DB) FailNext(err error) {
	db.Lock()
	db.failNext = err
	db.Unlock()
}

// takeFailure consumes a pending injected failure.
func (db *DB) takeFailure() error {
	db.Lock()
	defer db.Unlock()
	err := db.failNext
	db.failNext = nil
	return err
}
