// Package postgrest stores rosters in a hosted PostgREST backend (e.g. Supabase)
// with the same tables as the SQL migrations.
package postgrest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sendgrid/rest"

	"github.com/trezcool/roster/core"
	"github.com/trezcool/roster/core/roster"
)

const (
	studentsTable    = "students"
	enrollmentsTable = "enrollments"
	prefsTable       = "user_preferences"

	studentSelect = "id,school_id,full_name,email,phone,password_hash,must_change_password,created_at,updated_at"

	pgUniqueViolation = "23505"
)

// APIError is a non-2xx PostgREST response.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("postgrest: status %d: %s %s", e.StatusCode, e.Code, e.Message)
}

type Client struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	send    func(ctx context.Context, req rest.Request) (*rest.Response, error) // mockable
}

func NewClient(conf *core.Config) *Client {
	return &Client{
		baseURL: conf.PostgREST.URL + "/rest/v1/",
		apiKey:  conf.PostgREST.APIKey,
		timeout: conf.PostgREST.Timeout,
		send:    rest.SendWithContext,
	}
}

func (c *Client) do(ctx context.Context, method rest.Method, table string, query url.Values, body interface{}, prefer string, out interface{}) error {
	req := rest.Request{
		Method:      method,
		BaseURL:     c.baseURL + table,
		Headers:     map[string]string{"apikey": c.apiKey, "Authorization": "Bearer " + c.apiKey, "Accept": "application/json"},
		QueryParams: make(map[string]string, len(query)),
	}
	for k := range query {
		req.QueryParams[k] = query.Get(k)
	}
	if prefer != "" {
		req.Headers["Prefer"] = prefer
	}
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encoding request body")
		}
		req.Body = data
		req.Headers["Content-Type"] = "application/json"
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	res, err := c.send(ctx, req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, table)
	}
	if res.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{StatusCode: res.StatusCode}
		_ = json.Unmarshal([]byte(res.Body), apiErr)
		return apiErr
	}
	if out != nil && res.Body != "" {
		if err = json.Unmarshal([]byte(res.Body), out); err != nil {
			return errors.Wrapf(err, "decoding %s response", table)
		}
	}
	return nil
}

// layouts accepted from PostgREST; `timestamp without time zone` columns come without offset
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// timestamp decodes both RFC 3339 and zone-less values; zone-less values are UTC.
type timestamp time.Time

func (ts timestamp) Time() time.Time { return time.Time(ts).UTC() }

func (ts timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(ts.Time().Format(time.RFC3339Nano))
}

func (ts *timestamp) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*ts = timestamp{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return errors.Wrap(err, "decoding timestamp")
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			*ts = timestamp(t.UTC())
			return nil
		}
	}
	return errors.Errorf("decoding timestamp: unknown layout %q", s)
}

type studentRow struct {
	ID                 string    `json:"id,omitempty"`
	SchoolID           string    `json:"school_id"`
	FullName           string    `json:"full_name"`
	Email              *string   `json:"email"`
	Phone              string    `json:"phone"`
	PasswordHash       string    `json:"password_hash"`
	MustChangePassword bool      `json:"must_change_password"`
	CreatedAt          timestamp `json:"created_at"`
	UpdatedAt          timestamp `json:"updated_at"`
}

func toRow(s roster.Student) studentRow {
	row := studentRow{
		ID:                 s.ID,
		SchoolID:           s.SchoolID,
		FullName:           s.FullName,
		Phone:              s.Phone,
		PasswordHash:       string(s.PasswordHash),
		MustChangePassword: s.MustChangePassword,
		CreatedAt:          timestamp(s.CreatedAt),
		UpdatedAt:          timestamp(s.UpdatedAt),
	}
	if s.Email != "" {
		email := s.Email
		row.Email = &email
	}
	return row
}

func (r studentRow) toStudent() roster.Student {
	s := roster.Student{
		ID:                 r.ID,
		SchoolID:           r.SchoolID,
		FullName:           r.FullName,
		Phone:              r.Phone,
		PasswordHash:       []byte(r.PasswordHash),
		MustChangePassword: r.MustChangePassword,
		CreatedAt:          r.CreatedAt.Time(),
		UpdatedAt:          r.UpdatedAt.Time(),
	}
	if r.Email != nil {
		s.Email = *r.Email
	}
	return s
}

type enrollmentRow struct {
	ID        string    `json:"id,omitempty"`
	SchoolID  string    `json:"school_id"`
	ClassID   string    `json:"class_id"`
	StudentID string    `json:"student_id"`
	CreatedAt timestamp `json:"created_at"`
}

type rosterRepository struct {
	client *Client
}

var _ roster.Repository = (*rosterRepository)(nil)

func NewRosterRepository(client *Client) roster.Repository {
	return &rosterRepository{client: client}
}

// eq builds a PostgREST equality filter.
func eq(val string) string { return "eq." + val }

func (repo *rosterRepository) getStudent(ctx context.Context, filters map[string]string) (roster.Student, error) {
	q := url.Values{}
	q.Set("select", studentSelect)
	q.Set("order", "created_at.asc,id.asc")
	q.Set("limit", "1")
	for col, val := range filters {
		q.Set(col, eq(val))
	}
	var rows []studentRow
	if err := repo.client.do(ctx, rest.Get, studentsTable, q, nil, "", &rows); err != nil {
		return roster.Student{}, err
	}
	if len(rows) == 0 {
		return roster.Student{}, roster.ErrNotFound
	}
	return rows[0].toStudent(), nil
}

func (repo *rosterRepository) FindStudent(ctx context.Context, schoolID, fullName, email string) (roster.Student, error) {
	if email != "" {
		s, err := repo.getStudent(ctx, map[string]string{"school_id": schoolID, "email": email})
		if !errors.Is(err, roster.ErrNotFound) {
			return s, err
		}
	}
	return repo.getStudent(ctx, map[string]string{"school_id": schoolID, "full_name": fullName})
}

func (repo *rosterRepository) GetStudentByEmail(ctx context.Context, schoolID, email string) (roster.Student, error) {
	if email == "" {
		return roster.Student{}, roster.ErrNotFound
	}
	return repo.getStudent(ctx, map[string]string{"school_id": schoolID, "email": email})
}

func (repo *rosterRepository) CreateStudent(ctx context.Context, s roster.Student) (roster.Student, error) {
	s.ID = uuid.NewString() // the id column has no default
	row := toRow(s)
	var created []studentRow
	if err := repo.client.do(ctx, rest.Post, studentsTable, nil, row, "return=representation", &created); err != nil {
		return roster.Student{}, errors.Wrap(err, "inserting student")
	}
	if len(created) == 0 {
		return roster.Student{}, errors.New("inserting student: empty representation")
	}
	return created[0].toStudent(), nil
}

func (repo *rosterRepository) UpdateStudentPassword(ctx context.Context, s roster.Student) (roster.Student, error) {
	q := url.Values{}
	q.Set("id", eq(s.ID))
	body := map[string]interface{}{
		"password_hash":        string(s.PasswordHash),
		"must_change_password": s.MustChangePassword,
		"updated_at":           timestamp(s.UpdatedAt),
	}
	var updated []studentRow
	if err := repo.client.do(ctx, rest.Patch, studentsTable, q, body, "return=representation", &updated); err != nil {
		return roster.Student{}, errors.Wrap(err, "updating student password")
	}
	if len(updated) == 0 {
		return roster.Student{}, roster.ErrNotFound
	}
	return updated[0].toStudent(), nil
}

func (repo *rosterRepository) EnrollmentExists(ctx context.Context, classID, studentID string) (bool, error) {
	q := url.Values{}
	q.Set("select", "id")
	q.Set("class_id", eq(classID))
	q.Set("student_id", eq(studentID))
	q.Set("limit", "1")
	var rows []enrollmentRow
	if err := repo.client.do(ctx, rest.Get, enrollmentsTable, q, nil, "", &rows); err != nil {
		return false, errors.Wrap(err, "checking enrollment")
	}
	return len(rows) > 0, nil
}

func (repo *rosterRepository) CreateEnrollment(ctx context.Context, e roster.Enrollment) (roster.Enrollment, error) {
	e.ID = uuid.NewString()
	e.CreatedAt = e.CreatedAt.UTC()
	row := enrollmentRow{ID: e.ID, SchoolID: e.SchoolID, ClassID: e.ClassID, StudentID: e.StudentID, CreatedAt: timestamp(e.CreatedAt)}
	var created []enrollmentRow
	if err := repo.client.do(ctx, rest.Post, enrollmentsTable, nil, row, "return=representation", &created); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Code == pgUniqueViolation {
			return roster.Enrollment{}, roster.ErrAlreadyLinked
		}
		return roster.Enrollment{}, errors.Wrap(err, "inserting enrollment")
	}
	if len(created) > 0 {
		e.ID = created[0].ID
	}
	return e, nil
}

func (repo *rosterRepository) ListClassStudents(ctx context.Context, schoolID, classID string, ordering []core.DBOrdering) ([]roster.Student, error) {
	order := make([]string, 0, len(ordering)+1)
	for _, ord := range ordering {
		direction := "desc"
		if ord.Ascending {
			direction = "asc"
		}
		order = append(order, ord.Field+"."+direction)
	}
	order = append(order, "id.asc")

	// embedded resource filter: only students with an enrollment in the class
	q := url.Values{}
	q.Set("select", studentSelect+",enrollments!inner(class_id)")
	q.Set("school_id", eq(schoolID))
	q.Set("enrollments.class_id", eq(classID))
	q.Set("order", strings.Join(order, ","))

	var rows []studentRow
	if err := repo.client.do(ctx, rest.Get, studentsTable, q, nil, "", &rows); err != nil {
		return nil, errors.Wrap(err, "listing class students")
	}
	students := make([]roster.Student, 0, len(rows))
	for _, r := range rows {
		students = append(students, r.toStudent())
	}
	return students, nil
}

func (repo *rosterRepository) GetPreference(ctx context.Context, userID, key string) (string, error) {
	q := url.Values{}
	q.Set("select", "pref_value")
	q.Set("user_id", eq(userID))
	q.Set("pref_key", eq(key))
	var rows []struct {
		Value string `json:"pref_value"`
	}
	if err := repo.client.do(ctx, rest.Get, prefsTable, q, nil, "", &rows); err != nil {
		return "", errors.Wrap(err, "getting preference")
	}
	if len(rows) == 0 {
		return "", roster.ErrNotFound
	}
	return rows[0].Value, nil
}

func (repo *rosterRepository) SetPreference(ctx context.Context, userID, key, value string) error {
	body := map[string]interface{}{
		"user_id":    userID,
		"pref_key":   key,
		"pref_value": value,
		"updated_at": timestamp(roster.NowFunc()),
	}
	q := url.Values{}
	q.Set("on_conflict", "user_id,pref_key")
	if err := repo.client.do(ctx, rest.Post, prefsTable, q, body, "resolution=merge-duplicates", nil); err != nil {
		return errors.Wrap(err, "saving preference")
	}
	return nil
}
