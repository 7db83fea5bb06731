package roster

import (
	"context"
	"errors"

	"github.com/trezcool/roster/core"
)

var (
	// errors
	ErrNotFound       = errors.New("not found")
	ErrAlreadyLinked  = errors.New("student already enrolled in this class")
	ErrEmailExists    = errors.New("a student with this email already exists")
	ErrInvalidOrderBy = errors.New("invalid ordering field")
)

type (
	// Store holds the collaborator operations reconciliation relies on.
	// Stores generate the identities of the records they create.
	Store interface {
		// FindStudent matches a student of the school by email (when not empty) or else by full name.
		// Returns ErrNotFound when neither matches.
		FindStudent(ctx context.Context, schoolID, fullName, email string) (Student, error)
		CreateStudent(ctx context.Context, s Student) (Student, error)
		EnrollmentExists(ctx context.Context, classID, studentID string) (bool, error)
		// CreateEnrollment returns ErrAlreadyLinked when the link already exists.
		CreateEnrollment(ctx context.Context, e Enrollment) (Enrollment, error)
	}

	Repository interface {
		Store

		GetStudentByEmail(ctx context.Context, schoolID, email string) (Student, error)
		UpdateStudentPassword(ctx context.Context, s Student) (Student, error)
		// ListClassStudents returns the students enrolled in a class, ordered by the given (cleaned) orderings.
		ListClassStudents(ctx context.Context, schoolID, classID string, ordering []core.DBOrdering) ([]Student, error)
		GetPreference(ctx context.Context, userID, key string) (string, error)
		SetPreference(ctx context.Context, userID, key, value string) error
	}
)

// orderableFields are the Student fields class rosters can be ordered by.
var orderableFields = map[string]bool{
	"full_name":  true,
	"email":      true,
	"phone":      true,
	"created_at": true,
}

// CleanOrdering checks the requested orderings and defaults to full_name ascending.
func CleanOrdering(ordering []core.DBOrdering) ([]core.DBOrdering, error) {
	if len(ordering) == 0 {
		return []core.DBOrdering{{Field: "full_name", Ascending: true}}, nil
	}
	for _, ord := range ordering {
		if !orderableFields[ord.Field] {
			return nil, core.NewValidationError(ErrInvalidOrderBy, core.FieldError{
				Field: "ordering",
				Error: "cannot order by " + ord.Field,
			})
		}
	}
	return ordering, nil
}
