// Package testutil holds the helpers shared by the packages' tests.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/trezcool/roster/core"
	"github.com/trezcool/roster/core/roster"
	"github.com/trezcool/roster/storage/database"
)

// NewConfig loads the TEST configuration without throttling nor size limits.
func NewConfig(t *testing.T) *core.Config {
	t.Helper()
	t.Setenv("ENV", "TEST")
	conf := core.NewConfig()
	conf.Import.ThrottleDelay = 0
	conf.Import.MaxBytes = 0
	return conf
}

// PrepareDB opens a migrated in-memory SQLite database, closed when the test ends.
func PrepareDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := database.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(db); err != nil {
		t.Fatalf("PrepareDB() failed to migrate: %v", err)
	}
	return db
}

func CreateStudent(
	t *testing.T,
	repo roster.Store,
	schoolID, name, email, pwd string,
	createdAt ...time.Time,
) roster.Student {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	st := roster.Student{
		SchoolID:  schoolID,
		FullName:  name,
		Email:     email,
		Phone:     roster.DefaultPhone,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := st.SetPassword(pwd); err != nil {
			t.Fatalf("CreateStudent() failed: %v", err)
		}
	}
	st, err := repo.CreateStudent(context.Background(), st)
	if err != nil {
		t.Fatalf("CreateStudent() failed: %v", err)
	}
	return st
}

func Enroll(t *testing.T, repo roster.Store, schoolID, classID, studentID string) roster.Enrollment {
	t.Helper()
	e, err := repo.CreateEnrollment(context.Background(), roster.Enrollment{
		SchoolID:  schoolID,
		ClassID:   classID,
		StudentID: studentID,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("Enroll() failed: %v", err)
	}
	return e
}
