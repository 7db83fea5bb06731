package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/trezcool/roster/core"
	"github.com/trezcool/roster/core/roster"
)

const (
	studentColumns = "s.id, s.school_id, s.full_name, s.email, s.phone, s.password_hash, s.must_change_password, s.created_at, s.updated_at"

	pgUniqueViolation = "23505"
)

type studentRow struct {
	ID                 string      `db:"id"`
	SchoolID           string      `db:"school_id"`
	FullName           string      `db:"full_name"`
	Email              null.String `db:"email"`
	Phone              string      `db:"phone"`
	PasswordHash       string      `db:"password_hash"`
	MustChangePassword bool        `db:"must_change_password"`
	CreatedAt          time.Time   `db:"created_at"`
	UpdatedAt          time.Time   `db:"updated_at"`
}

func boilStudent(s roster.Student) studentRow {
	return studentRow{
		ID:                 s.ID,
		SchoolID:           s.SchoolID,
		FullName:           s.FullName,
		Email:              null.NewString(s.Email, s.Email != ""),
		Phone:              s.Phone,
		PasswordHash:       string(s.PasswordHash),
		MustChangePassword: s.MustChangePassword,
		CreatedAt:          s.CreatedAt.UTC(),
		UpdatedAt:          s.UpdatedAt.UTC(),
	}
}

func (r studentRow) unboil() roster.Student {
	return roster.Student{
		ID:                 r.ID,
		SchoolID:           r.SchoolID,
		FullName:           r.FullName,
		Email:              r.Email.String,
		Phone:              r.Phone,
		PasswordHash:       []byte(r.PasswordHash),
		MustChangePassword: r.MustChangePassword,
		CreatedAt:          r.CreatedAt.UTC(),
		UpdatedAt:          r.UpdatedAt.UTC(),
	}
}

type rosterRepository struct {
	db *sqlx.DB
}

var _ roster.Repository = (*rosterRepository)(nil)

func NewRosterRepository(db *sqlx.DB) roster.Repository {
	return &rosterRepository{db: db}
}

func (repo *rosterRepository) getStudent(ctx context.Context, where string, args ...interface{}) (roster.Student, error) {
	q := repo.db.Rebind("SELECT " + studentColumns + " FROM students s WHERE " + where + " ORDER BY s.created_at, s.id LIMIT 1")
	var row studentRow
	if err := repo.db.GetContext(ctx, &row, q, args...); err != nil {
		return roster.Student{}, trapErr(err)
	}
	return row.unboil(), nil
}

func (repo *rosterRepository) FindStudent(ctx context.Context, schoolID, fullName, email string) (roster.Student, error) {
	if email != "" {
		s, err := repo.getStudent(ctx, "s.school_id = ? AND s.email = ?", schoolID, email)
		if !errors.Is(err, roster.ErrNotFound) {
			return s, err
		}
	}
	return repo.getStudent(ctx, "s.school_id = ? AND s.full_name = ?", schoolID, fullName)
}

func (repo *rosterRepository) GetStudentByEmail(ctx context.Context, schoolID, email string) (roster.Student, error) {
	if email == "" {
		return roster.Student{}, roster.ErrNotFound
	}
	return repo.getStudent(ctx, "s.school_id = ? AND s.email = ?", schoolID, email)
}

func (repo *rosterRepository) CreateStudent(ctx context.Context, s roster.Student) (roster.Student, error) {
	s.ID = uuid.NewString()
	row := boilStudent(s)
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO students (id, school_id, full_name, email, phone, password_hash, must_change_password, created_at, updated_at)
		VALUES (:id, :school_id, :full_name, :email, :phone, :password_hash, :must_change_password, :created_at, :updated_at)`,
		row,
	)
	if err != nil {
		return roster.Student{}, errors.Wrap(trapErr(err), "inserting student")
	}
	return row.unboil(), nil
}

func (repo *rosterRepository) UpdateStudentPassword(ctx context.Context, s roster.Student) (roster.Student, error) {
	row := boilStudent(s)
	res, err := repo.db.NamedExecContext(ctx, `
		UPDATE students
		SET password_hash = :password_hash, must_change_password = :must_change_password, updated_at = :updated_at
		WHERE id = :id`,
		row,
	)
	if err != nil {
		return roster.Student{}, errors.Wrap(trapErr(err), "updating student password")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return roster.Student{}, roster.ErrNotFound
	}
	return repo.getStudent(ctx, "s.id = ?", s.ID)
}

func (repo *rosterRepository) EnrollmentExists(ctx context.Context, classID, studentID string) (bool, error) {
	q := repo.db.Rebind("SELECT COUNT(*) FROM enrollments WHERE class_id = ? AND student_id = ?")
	var n int
	if err := repo.db.GetContext(ctx, &n, q, classID, studentID); err != nil {
		return false, errors.Wrap(trapErr(err), "checking enrollment")
	}
	return n > 0, nil
}

func (repo *rosterRepository) CreateEnrollment(ctx context.Context, e roster.Enrollment) (roster.Enrollment, error) {
	e.ID = uuid.NewString()
	e.CreatedAt = e.CreatedAt.UTC()
	q := repo.db.Rebind("INSERT INTO enrollments (id, school_id, class_id, student_id, created_at) VALUES (?, ?, ?, ?, ?)")
	if _, err := repo.db.ExecContext(ctx, q, e.ID, e.SchoolID, e.ClassID, e.StudentID, e.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return roster.Enrollment{}, roster.ErrAlreadyLinked
		}
		return roster.Enrollment{}, errors.Wrap(trapErr(err), "inserting enrollment")
	}
	return e, nil
}

func (repo *rosterRepository) ListClassStudents(ctx context.Context, schoolID, classID string, ordering []core.DBOrdering) ([]roster.Student, error) {
	orderBy := make([]string, 0, len(ordering)+1)
	for _, ord := range ordering {
		orderBy = append(orderBy, "s."+ord.String()) // fields are whitelisted by roster.CleanOrdering
	}
	orderBy = append(orderBy, "s.id ASC")

	q := repo.db.Rebind(
		"SELECT " + studentColumns + " FROM students s" +
			" JOIN enrollments e ON e.student_id = s.id" +
			" WHERE e.school_id = ? AND e.class_id = ?" +
			" ORDER BY " + strings.Join(orderBy, ", "),
	)
	var rows []studentRow
	if err := repo.db.SelectContext(ctx, &rows, q, schoolID, classID); err != nil {
		return nil, errors.Wrap(trapErr(err), "listing class students")
	}

	students := make([]roster.Student, 0, len(rows))
	for _, r := range rows {
		students = append(students, r.unboil())
	}
	return students, nil
}

func (repo *rosterRepository) GetPreference(ctx context.Context, userID, key string) (string, error) {
	q := repo.db.Rebind("SELECT pref_value FROM user_preferences WHERE user_id = ? AND pref_key = ?")
	var val string
	if err := repo.db.GetContext(ctx, &val, q, userID, key); err != nil {
		return "", trapErr(err)
	}
	return val, nil
}

func (repo *rosterRepository) SetPreference(ctx context.Context, userID, key, value string) error {
	q := repo.db.Rebind(`
		INSERT INTO user_preferences (user_id, pref_key, pref_value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, pref_key) DO UPDATE SET pref_value = excluded.pref_value, updated_at = excluded.updated_at`)
	if _, err := repo.db.ExecContext(ctx, q, userID, key, value, roster.NowFunc().UTC()); err != nil {
		return errors.Wrap(trapErr(err), "saving preference")
	}
	return nil
}

// trapErr maps driver errors to domain errors.
func trapErr(err error) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return roster.ErrNotFound
	case errors.Is(err, sql.ErrConnDone):
		return core.NewShutdownError("database connection closed")
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pq.Error
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		// primary code; extended codes may not be enabled on the connection
		return liteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(liteErr.Error(), "UNIQUE")
	}
	return false
}
