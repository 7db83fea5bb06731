package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/roster/core"
	"github.com/trezcool/roster/core/roster"
)

// TestRepository checks the behaviour every roster.Repository implementation must share.
func TestRepository(t *testing.T, repo roster.Repository) {
	ctx := context.Background()
	const (
		school  = "school-1"
		class   = "class-1"
		noClass = "class-2"
	)
	base := time.Date(2024, 9, 1, 8, 0, 0, 0, time.UTC)

	ahmad := CreateStudent(t, repo, school, "Ahmad Ali", "ahmad@example.com", "secret", base)
	sara := CreateStudent(t, repo, school, "Sara Cohen", "", "", base.Add(time.Minute))
	twin := CreateStudent(t, repo, school, "Sara Cohen", "sara2@example.com", "", base.Add(2*time.Minute))
	CreateStudent(t, repo, "school-2", "Lina Haddad", "lina@example.com", "")

	t.Run("identities are generated", func(t *testing.T) {
		assert.NotEmpty(t, ahmad.ID)
		assert.NotEqual(t, ahmad.ID, sara.ID)
		assert.Equal(t, base, ahmad.CreatedAt)
	})

	t.Run("FindStudent", func(t *testing.T) {
		tests := []struct {
			name     string
			school   string
			fullName string
			email    string
			wantID   string
			wantErr  error
		}{
			{name: "by email", school: school, fullName: "Someone Else", email: ahmad.Email, wantID: ahmad.ID},
			{name: "email miss falls back to name", school: school, fullName: ahmad.FullName, email: "new@example.com", wantID: ahmad.ID},
			{name: "by name: oldest wins", school: school, fullName: "Sara Cohen", wantID: sara.ID},
			{name: "by email over name", school: school, fullName: "Sara Cohen", email: twin.Email, wantID: twin.ID},
			{name: "other school", school: "school-2", fullName: ahmad.FullName, email: ahmad.Email, wantErr: roster.ErrNotFound},
			{name: "not found", school: school, fullName: "Nobody", wantErr: roster.ErrNotFound},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				st, err := repo.FindStudent(ctx, tt.school, tt.fullName, tt.email)
				if tt.wantErr != nil {
					assert.ErrorIs(t, err, tt.wantErr)
					return
				}
				require.NoError(t, err)
				assert.Equal(t, tt.wantID, st.ID)
			})
		}
	})

	t.Run("GetStudentByEmail", func(t *testing.T) {
		st, err := repo.GetStudentByEmail(ctx, school, ahmad.Email)
		require.NoError(t, err)
		assert.Equal(t, ahmad.ID, st.ID)
		assert.NoError(t, st.CheckPassword("secret"))

		_, err = repo.GetStudentByEmail(ctx, school, "")
		assert.ErrorIs(t, err, roster.ErrNotFound)
		_, err = repo.GetStudentByEmail(ctx, "school-2", ahmad.Email)
		assert.ErrorIs(t, err, roster.ErrNotFound)
	})

	t.Run("UpdateStudentPassword", func(t *testing.T) {
		st := ahmad
		require.NoError(t, st.SetPassword("n3w-pass"))
		st.MustChangePassword = true
		st.UpdatedAt = base.Add(time.Hour)

		updated, err := repo.UpdateStudentPassword(ctx, st)
		require.NoError(t, err)
		assert.NoError(t, updated.CheckPassword("n3w-pass"))
		assert.True(t, updated.MustChangePassword)
		assert.Equal(t, ahmad.FullName, updated.FullName)

		st.ID = "missing"
		_, err = repo.UpdateStudentPassword(ctx, st)
		assert.ErrorIs(t, err, roster.ErrNotFound)
	})

	t.Run("enrollments", func(t *testing.T) {
		exists, err := repo.EnrollmentExists(ctx, class, ahmad.ID)
		require.NoError(t, err)
		assert.False(t, exists)

		e := Enroll(t, repo, school, class, ahmad.ID)
		assert.NotEmpty(t, e.ID)
		Enroll(t, repo, school, class, sara.ID)
		Enroll(t, repo, school, noClass, twin.ID)

		exists, err = repo.EnrollmentExists(ctx, class, ahmad.ID)
		require.NoError(t, err)
		assert.True(t, exists)

		_, err = repo.CreateEnrollment(ctx, roster.Enrollment{SchoolID: school, ClassID: class, StudentID: ahmad.ID, CreatedAt: base})
		assert.ErrorIs(t, err, roster.ErrAlreadyLinked)
	})

	t.Run("ListClassStudents", func(t *testing.T) {
		tests := []struct {
			name     string
			ordering []core.DBOrdering
			want     []string
		}{
			{name: "by name", ordering: []core.DBOrdering{{Field: "full_name", Ascending: true}}, want: []string{ahmad.ID, sara.ID}},
			{name: "newest first", ordering: []core.DBOrdering{{Field: "created_at"}}, want: []string{sara.ID, ahmad.ID}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				students, err := repo.ListClassStudents(ctx, school, class, tt.ordering)
				require.NoError(t, err)
				got := make([]string, 0, len(students))
				for _, st := range students {
					got = append(got, st.ID)
				}
				assert.Equal(t, tt.want, got)
			})
		}

		students, err := repo.ListClassStudents(ctx, school, "class-3", nil)
		require.NoError(t, err)
		assert.Empty(t, students)
	})

	t.Run("preferences", func(t *testing.T) {
		_, err := repo.GetPreference(ctx, "teacher-1", roster.PrefInstructionsSeen)
		assert.ErrorIs(t, err, roster.ErrNotFound)

		require.NoError(t, repo.SetPreference(ctx, "teacher-1", roster.PrefInstructionsSeen, "true"))
		require.NoError(t, repo.SetPreference(ctx, "teacher-1", roster.PrefInstructionsSeen, "false"))

		val, err := repo.GetPreference(ctx, "teacher-1", roster.PrefInstructionsSeen)
		require.NoError(t, err)
		assert.Equal(t, "false", val)

		_, err = repo.GetPreference(ctx, "teacher-2", roster.PrefInstructionsSeen)
		assert.ErrorIs(t, err, roster.ErrNotFound)
	})
}
