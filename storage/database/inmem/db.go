package inmemdb

import (
	"sync"

	"github.com/trezcool/roster/core/roster"
)

type (
	DB struct {
		student    *studentTable
		enrollment *enrollmentTable
		preference *preferenceTable
	}

	studentTable struct {
		table map[string]*roster.Student
		mutex sync.RWMutex
	}

	enrollmentTable struct {
		table map[string]*roster.Enrollment
		mutex sync.RWMutex
	}

	preferenceTable struct {
		table map[prefKey]string
		mutex sync.RWMutex
	}

	prefKey struct {
		userID string
		key    string
	}
)

func Open() *DB {
	return &DB{
		student:    &studentTable{table: make(map[string]*roster.Student)},
		enrollment: &enrollmentTable{table: make(map[string]*roster.Enrollment)},
		preference: &preferenceTable{table: make(map[prefKey]string)},
	}
}
