package roster

import (
	"regexp"
	"unicode/utf8"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/roster/core"
)

const (
	DefaultPhone = "+972"

	// MinPasswordLength applies to passwords chosen by hand, not to imported ones.
	MinPasswordLength = 6
)

// row-level messages
const (
	MsgColumnMismatch   = "column count mismatch"
	MsgFullNameRequired = "full name required"
	MsgInvalidEmail     = "invalid email format"
	MsgEmailRequired    = "email required"
)

var (
	emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

	emailTag  = "roster_email"
	emailText = MsgInvalidEmail

	passwordTag  = "roster_password"
	passwordText = "{0} must be at least 6 characters in length"

	ErrPasswordTooShort = errors.New("password must be at least 6 characters in length")
)

// InitValidators registers the roster validation tags.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(emailTag, emailValidation)
	core.RegisterCustomTranslation(validate, translator, emailTag, emailText)
	_ = validate.RegisterValidation(passwordTag, passwordValidation)
	core.RegisterCustomTranslation(validate, translator, passwordTag, passwordText)
}

func passwordValidation(fl validator.FieldLevel) bool {
	return IsValidPassword(fl.Field().String())
}

// IsValidPassword checks a hand-chosen password: single-add form and admin resets.
func IsValidPassword(pwd string) bool {
	return utf8.RuneCountInString(pwd) >= MinPasswordLength
}

func emailValidation(fl validator.FieldLevel) bool {
	return IsValidEmail(fl.Field().String())
}

// IsValidEmail applies the simple local@domain.tld check shared by bulk imports and the single-add form.
func IsValidEmail(email string) bool {
	return emailRegex.MatchString(email)
}

// RecordValidator turns a parsed row into an ImportedStudent or row-scoped errors.
type RecordValidator struct {
	// RequireEmail rejects rows without email. Bulk imports are lenient by default.
	RequireEmail bool
	// DefaultPhone is used when the phone cell is empty or missing.
	DefaultPhone string
}

// Validate builds the candidate record by iterating the mapped columns. The record is valid
// if and only if no error is returned.
func (v RecordValidator) Validate(row RawRow, mapping HeaderMap) (ImportedStudent, []ImportError) {
	var errs []ImportError
	fail := func(fld Field, msg string) {
		errs = append(errs, ImportError{Row: row.Line, Field: fld, Message: msg})
	}

	rec := ImportedStudent{Row: row.Line}
	for i, fld := range mapping {
		if i >= len(row.Cells) {
			break
		}
		val := row.Cells[i]
		switch fld {
		case FieldFullName:
			rec.FullName = val
			if val == "" {
				fail(FieldFullName, MsgFullNameRequired)
			}
		case FieldEmail:
			rec.Email = core.CleanString(val, true /* lower */)
			if rec.Email == "" {
				if v.RequireEmail {
					fail(FieldEmail, MsgEmailRequired)
				}
			} else if !IsValidEmail(rec.Email) {
				fail(FieldEmail, MsgInvalidEmail)
			}
		case FieldPhone:
			rec.Phone = val
		case FieldPassword:
			rec.Password = val
		}
	}

	// columns missing from the header altogether
	if !mapping.Has(FieldFullName) {
		fail(FieldFullName, MsgFullNameRequired)
	}
	if v.RequireEmail && !mapping.Has(FieldEmail) {
		fail(FieldEmail, MsgEmailRequired)
	}

	if rec.Phone == "" {
		rec.Phone = v.defaultPhone()
	}
	if len(errs) > 0 {
		return ImportedStudent{}, errs
	}
	return rec, nil
}

func (v RecordValidator) defaultPhone() string {
	if v.DefaultPhone == "" {
		return DefaultPhone
	}
	return v.DefaultPhone
}
