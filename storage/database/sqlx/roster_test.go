package sqlxrepos_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/roster/core/roster"
	logsvc "github.com/trezcool/roster/services/logger"
	sqlxrepos "github.com/trezcool/roster/storage/database/sqlx"
	"github.com/trezcool/roster/tests"
)

func TestRosterRepository(t *testing.T) {
	db := testutil.PrepareDB(t)
	testutil.TestRepository(t, sqlxrepos.NewRosterRepository(db))
}

func TestRosterRepository_nullEmail(t *testing.T) {
	db := testutil.PrepareDB(t)
	repo := sqlxrepos.NewRosterRepository(db)

	st := testutil.CreateStudent(t, repo, "school-1", "محمد خالد", "", "")

	var email *string
	require.NoError(t, db.Get(&email, "SELECT email FROM students WHERE id = ?", st.ID))
	assert.Nil(t, email)

	found, err := repo.FindStudent(context.Background(), "school-1", "محمد خالد", "")
	require.NoError(t, err)
	assert.Equal(t, st.ID, found.ID)
	assert.Empty(t, found.Email)
}

func TestRosterRepository_foreignKeys(t *testing.T) {
	db := testutil.PrepareDB(t)
	repo := sqlxrepos.NewRosterRepository(db)

	_, err := repo.CreateEnrollment(context.Background(), roster.Enrollment{
		SchoolID:  "school-1",
		ClassID:   "class-1",
		StudentID: "missing",
		CreatedAt: time.Now(),
	})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, roster.ErrAlreadyLinked)
}

// Scenario: importing the same file twice creates nothing the second time.
func TestRosterRepository_reimport(t *testing.T) {
	db := testutil.PrepareDB(t)
	repo := sqlxrepos.NewRosterRepository(db)
	r := roster.NewReconciler(repo, roster.PasswordGenerator{}, 0, logsvc.NewNopLogger())
	records := []roster.ImportedStudent{
		{Row: 2, FullName: "Ahmad Ali", Email: "ahmad@example.com", Phone: roster.DefaultPhone},
		{Row: 3, FullName: "محمد خالد", Phone: roster.DefaultPhone},
	}

	first := r.Reconcile(context.Background(), "school-1", "class-1", records)
	assert.Equal(t, 2, first.Created)
	assert.Equal(t, 2, first.Linked)

	second := r.Reconcile(context.Background(), "school-1", "class-1", records)
	assert.Equal(t, 2, second.SuccessCount)
	assert.Equal(t, 2, second.Reused)
	assert.Equal(t, 2, second.AlreadyLinked)

	var students, enrollments int
	require.NoError(t, db.Get(&students, "SELECT COUNT(*) FROM students"))
	require.NoError(t, db.Get(&enrollments, "SELECT COUNT(*) FROM enrollments"))
	assert.Equal(t, 2, students)
	assert.Equal(t, 2, enrollments)
}
