package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/trezcool/roster/core"
	"github.com/trezcool/roster/core/roster"
)

type rosterRepository struct {
	db *DB
}

var _ roster.Repository = (*rosterRepository)(nil)

func NewRosterRepository(db *DB) roster.Repository {
	return &rosterRepository{db: db}
}

func (repo *rosterRepository) students() []roster.Student {
	students := make([]roster.Student, 0, len(repo.db.student.table))
	for _, s := range repo.db.student.table {
		students = append(students, *s)
	}
	// oldest first, like the SQL store
	sort.Slice(students, func(i, j int) bool {
		if students[i].CreatedAt.Equal(students[j].CreatedAt) {
			return students[i].ID < students[j].ID
		}
		return students[i].CreatedAt.Before(students[j].CreatedAt)
	})
	return students
}

func (repo *rosterRepository) FindStudent(_ context.Context, schoolID, fullName, email string) (roster.Student, error) {
	repo.db.student.mutex.RLock()
	defer repo.db.student.mutex.RUnlock()

	students := repo.students()
	if email != "" {
		for _, s := range students {
			if s.SchoolID == schoolID && s.Email == email {
				return s, nil
			}
		}
	}
	for _, s := range students {
		if s.SchoolID == schoolID && s.FullName == fullName {
			return s, nil
		}
	}
	return roster.Student{}, roster.ErrNotFound
}

func (repo *rosterRepository) GetStudentByEmail(_ context.Context, schoolID, email string) (roster.Student, error) {
	repo.db.student.mutex.RLock()
	defer repo.db.student.mutex.RUnlock()

	for _, s := range repo.students() {
		if s.SchoolID == schoolID && email != "" && s.Email == email {
			return s, nil
		}
	}
	return roster.Student{}, roster.ErrNotFound
}

func (repo *rosterRepository) CreateStudent(_ context.Context, s roster.Student) (roster.Student, error) {
	repo.db.student.mutex.Lock()
	defer repo.db.student.mutex.Unlock()

	s.ID = uuid.NewString()
	repo.db.student.table[s.ID] = &s
	return s, nil
}

func (repo *rosterRepository) UpdateStudentPassword(_ context.Context, s roster.Student) (roster.Student, error) {
	repo.db.student.mutex.Lock()
	defer repo.db.student.mutex.Unlock()

	// only save password fields
	orig, ok := repo.db.student.table[s.ID]
	if !ok {
		return roster.Student{}, roster.ErrNotFound
	}
	orig.PasswordHash = s.PasswordHash
	orig.MustChangePassword = s.MustChangePassword
	orig.UpdatedAt = s.UpdatedAt
	return *orig, nil
}

func (repo *rosterRepository) EnrollmentExists(_ context.Context, classID, studentID string) (bool, error) {
	repo.db.enrollment.mutex.RLock()
	defer repo.db.enrollment.mutex.RUnlock()

	for _, e := range repo.db.enrollment.table {
		if e.ClassID == classID && e.StudentID == studentID {
			return true, nil
		}
	}
	return false, nil
}

func (repo *rosterRepository) CreateEnrollment(_ context.Context, e roster.Enrollment) (roster.Enrollment, error) {
	repo.db.enrollment.mutex.Lock()
	defer repo.db.enrollment.mutex.Unlock()

	for _, existing := range repo.db.enrollment.table {
		if existing.ClassID == e.ClassID && existing.StudentID == e.StudentID {
			return roster.Enrollment{}, roster.ErrAlreadyLinked
		}
	}
	e.ID = uuid.NewString()
	repo.db.enrollment.table[e.ID] = &e
	return e, nil
}

func (repo *rosterRepository) ListClassStudents(_ context.Context, schoolID, classID string, ordering []core.DBOrdering) ([]roster.Student, error) {
	repo.db.enrollment.mutex.RLock()
	ids := make(map[string]bool)
	for _, e := range repo.db.enrollment.table {
		if e.SchoolID == schoolID && e.ClassID == classID {
			ids[e.StudentID] = true
		}
	}
	repo.db.enrollment.mutex.RUnlock()

	repo.db.student.mutex.RLock()
	defer repo.db.student.mutex.RUnlock()

	students := make([]roster.Student, 0, len(ids))
	for _, s := range repo.students() {
		if ids[s.ID] {
			students = append(students, s)
		}
	}
	sort.SliceStable(students, func(i, j int) bool {
		for _, ord := range ordering {
			c := compareStudents(students[i], students[j], ord.Field)
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return false
	})
	return students, nil
}

func compareStudents(a, b roster.Student, field string) int {
	switch field {
	case "full_name":
		return strings.Compare(a.FullName, b.FullName)
	case "email":
		return strings.Compare(a.Email, b.Email)
	case "phone":
		return strings.Compare(a.Phone, b.Phone)
	case "created_at":
		return a.CreatedAt.Compare(b.CreatedAt)
	}
	return 0
}

func (repo *rosterRepository) GetPreference(_ context.Context, userID, key string) (string, error) {
	repo.db.preference.mutex.RLock()
	defer repo.db.preference.mutex.RUnlock()

	if val, ok := repo.db.preference.table[prefKey{userID: userID, key: key}]; ok {
		return val, nil
	}
	return "", roster.ErrNotFound
}

func (repo *rosterRepository) SetPreference(_ context.Context, userID, key, value string) error {
	repo.db.preference.mutex.Lock()
	defer repo.db.preference.mutex.Unlock()

	repo.db.preference.table[prefKey{userID: userID, key: key}] = value
	return nil
}
