package roster

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/roster/core"
)

var NowFunc = time.Now // mockable

// Field is a canonical roster column.
type Field string

const (
	FieldFullName Field = "full_name"
	FieldEmail    Field = "email"
	FieldPhone    Field = "phone"
	FieldPassword Field = "password"

	// FieldGeneral attributes an error to the whole row.
	FieldGeneral Field = "general"
	// FieldIgnore marks a column with an unknown header.
	FieldIgnore Field = ""
)

// CanonicalFields lists the roster columns in template order.
var CanonicalFields = []Field{FieldFullName, FieldEmail, FieldPhone, FieldPassword}

// ImportedStudent is a validated roster row, ready for reconciliation.
type ImportedStudent struct {
	Row      int    `json:"row"`
	FullName string `json:"full_name"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone"`
	Password string `json:"password,omitempty"`
}

// ImportError reports a structural or field problem of one input row.
type ImportError struct {
	Row     int    `json:"row"`
	Field   Field  `json:"field"`
	Message string `json:"message"`
}

func (e ImportError) Error() string {
	return fmt.Sprintf("row %d: %s: %s", e.Row, e.Field, e.Message)
}

// Summary is recomputed for every parse.
// Total counts every non-blank data line; Invalid counts error entries.
type Summary struct {
	Total       int `json:"total"`
	Valid       int `json:"valid"`
	Invalid     int `json:"invalid"`
	InvalidRows int `json:"invalid_rows"`
	Skipped     int `json:"skipped"`
}

type Student struct {
	ID                 string    `json:"id"`
	SchoolID           string    `json:"school_id"`
	FullName           string    `json:"full_name"`
	Email              string    `json:"email"`
	Phone              string    `json:"phone"`
	PasswordHash       []byte    `json:"-"`
	MustChangePassword bool      `json:"must_change_password"`
	CreatedAt          time.Time `json:"created_at"` // UTC
	UpdatedAt          time.Time `json:"updated_at"` // UTC
}

func (s *Student) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	s.PasswordHash = hash
	return nil
}

func (s *Student) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(s.PasswordHash, []byte(pwd))
}

type Enrollment struct {
	ID        string    `json:"id"`
	SchoolID  string    `json:"school_id"`
	ClassID   string    `json:"class_id"`
	StudentID string    `json:"student_id"`
	CreatedAt time.Time `json:"created_at"` // UTC
}

// NewStudent contains information needed to add a single student by hand.
// Unlike bulk imports, email is mandatory here.
type NewStudent struct {
	FullName string `json:"full_name" validate:"required"`
	Email    string `json:"email" validate:"required,roster_email"`
	Phone    string `json:"phone"`
	Password string `json:"password" validate:"omitempty,roster_password"`
	ClassID  string `json:"class_id"`
}

func (ns *NewStudent) Validate(ctx context.Context, validate *validator.Validate, svc *Service, schoolID string) error {
	ns.FullName = core.CleanString(ns.FullName)
	ns.Email = core.CleanString(ns.Email, true /* lower */)
	ns.Phone = core.CleanString(ns.Phone)
	ns.ClassID = core.CleanString(ns.ClassID)

	if err := validate.Struct(ns); err != nil {
		return err
	}
	return svc.checkEmailUniqueness(ctx, schoolID, ns.Email)
}

// Credential is a generated password kept in memory until the welcome email is sent.
type Credential struct {
	StudentID string
	FullName  string
	Email     string
	Password  string
}
