package echoapi

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/trezcool/roster/core"
	"github.com/trezcool/roster/core/roster"
	emailsvc "github.com/trezcool/roster/services/email"
	logsvc "github.com/trezcool/roster/services/logger"
	inmemdb "github.com/trezcool/roster/storage/database/inmem"
	"github.com/trezcool/roster/tests"
)

const (
	schoolID = "school-1"
	classID  = "class-1"
)

type testApp struct {
	server  *Server
	repo    roster.Repository
	mailSvc *emailsvc.ConsoleServiceMock
}

func setup(t *testing.T, configure ...func(*core.Config)) testApp {
	conf := testutil.NewConfig(t)
	for _, fn := range configure {
		fn(conf)
	}
	logger := logsvc.NewNopLogger()

	// set up store & services
	repo := inmemdb.NewRosterRepository(inmemdb.Open())
	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)
	opts, err := roster.OptionsFromConfig(conf)
	require.NoError(t, err)
	rosterSvc := roster.NewService(repo, mailSvc, logger, opts)

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	roster.InitValidators(validate, translator)

	// set up server
	server := NewServer(ServerDeps{
		Conf:       conf,
		Logger:     logger,
		RosterSvc:  rosterSvc,
		Validate:   validate,
		Translator: translator,
	})
	return testApp{server: server, repo: repo, mailSvc: mailSvc}
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	wantCode int
	wantData []byte
	extra    interface{}
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set(echo.HeaderContentType, "application/json")
	return req, httptest.NewRecorder()
}

func newUploadRequest(t *testing.T, path, filename string, data []byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile(fileField, filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	return req, httptest.NewRecorder()
}

func marshalObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshalObj() failed: %v", err)
	}
	return data
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	assert.Equal(t, tt.wantCode, rec.Code)
	if tt.wantData != nil {
		assert.JSONEq(t, string(tt.wantData), rec.Body.String())
	}
}

func Test_home(t *testing.T) {
	app := setup(t)
	req, rec := newRequest(http.MethodGet, "/")
	app.server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Welcome to")
}

func Test_rosterApi_template(t *testing.T) {
	app := setup(t)
	req, rec := newRequest(http.MethodGet, "/v1/roster/template/")
	app.server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), roster.TemplateFilename)
	assert.Equal(t, roster.Template(), rec.Body.Bytes())
}

func Test_rosterApi_preview(t *testing.T) {
	app := setup(t)
	path := "/v1/schools/" + schoolID + "/roster/preview"

	tests := []httpTest{
		{
			name:     "empty body",
			body:     []byte(""),
			wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, httpErr{Error: roster.ErrEmptyInput.Error()}),
		},
		{
			name:     "unknown format",
			path:     path + "?format=pdf",
			body:     []byte("full_name\nAhmad Ali"),
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "bad require_email",
			path:     path + "?require_email=lol",
			body:     []byte("full_name\nAhmad Ali"),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"require_email": "must be a boolean"}`),
		},
		{
			name:     "valid row",
			body:     []byte("full_name,email\nAhmad Ali,ahmad@example.com"),
			wantCode: http.StatusOK,
			wantData: []byte(`{
				"students": [{"row": 2, "full_name": "Ahmad Ali", "email": "ahmad@example.com", "phone": "+972"}],
				"errors": [],
				"warnings": [],
				"summary": {"total": 1, "valid": 1, "invalid": 0, "invalid_rows": 0, "skipped": 0}
			}`),
		},
		{
			name:     "two errors on one row",
			body:     []byte("full_name,email\n,bad-email"),
			wantCode: http.StatusOK,
			wantData: []byte(`{
				"students": [],
				"errors": [
					{"row": 2, "field": "full_name", "message": "full name required"},
					{"row": 2, "field": "email", "message": "invalid email format"}
				],
				"warnings": [],
				"summary": {"total": 1, "valid": 0, "invalid": 2, "invalid_rows": 1, "skipped": 0}
			}`),
		},
		{
			name:     "require email",
			path:     path + "?require_email=true",
			body:     []byte("full_name,email\nAhmad Ali,"),
			wantCode: http.StatusOK,
			wantData: []byte(`{
				"students": [],
				"errors": [{"row": 2, "field": "email", "message": "email required"}],
				"warnings": [],
				"summary": {"total": 1, "valid": 0, "invalid": 1, "invalid_rows": 1, "skipped": 0}
			}`),
		},
	}
	for _, tt := range tests {
		if tt.path == "" {
			tt.path = path
		}
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodPost, tt.path, tt.body)
			req.Header.Set(echo.HeaderContentType, "text/csv")
			app.server.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_rosterApi_preview_xlsxUpload(t *testing.T) {
	app := setup(t)

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]interface{}{"الاسم الكامل", "البريد الإلكتروني"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]interface{}{"محمد خالد", "Mohammad@Example.com"}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	req, rec := newUploadRequest(t, "/v1/schools/"+schoolID+"/roster/preview", "roster.xlsx", buf.Bytes())
	app.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res roster.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	if assert.Len(t, res.Students, 1) {
		assert.Equal(t, "محمد خالد", res.Students[0].FullName)
		assert.Equal(t, "mohammad@example.com", res.Students[0].Email)
	}
	assert.Empty(t, res.Errors)
}

func Test_rosterApi_import(t *testing.T) {
	app := setup(t)
	path := "/v1/schools/" + schoolID + "/classes/" + classID + "/roster/import"
	data := []byte("full_name,email\nAhmad Ali,ahmad@example.com\n,bad-email\n")

	importOnce := func(t *testing.T) roster.ImportResult {
		req, rec := newUploadRequest(t, path, "roster.csv", data)
		app.server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var res roster.ImportResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		return res
	}

	first := importOnce(t)
	assert.Equal(t, 1, first.SuccessCount)
	assert.Equal(t, 1, first.Created)
	assert.Equal(t, 1, first.Linked)
	assert.Len(t, first.Errors, 2)
	assert.Equal(t, 1, first.Summary.InvalidRows)

	second := importOnce(t)
	assert.Equal(t, 1, second.SuccessCount)
	assert.Equal(t, 1, second.Reused)
	assert.Equal(t, 1, second.AlreadyLinked)
	assert.Zero(t, second.Created)

	// welcome email only for the created student
	sent := app.mailSvc.SentMessages()
	if assert.Len(t, sent, 1) {
		assert.Equal(t, "ahmad@example.com", sent[0].To[0].Address)
		assert.Contains(t, sent[0].TextContent, "Ahmad Ali")
	}

	req, rec := newRequest(http.MethodGet, "/v1/schools/"+schoolID+"/classes/"+classID+"/students")
	app.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var students []roster.Student
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &students))
	assert.Len(t, students, 1)
}

func Test_rosterApi_import_tooLarge(t *testing.T) {
	app := setup(t, func(conf *core.Config) { conf.Import.MaxBytes = 16 })

	req, rec := newRequest(
		http.MethodPost,
		"/v1/schools/"+schoolID+"/classes/"+classID+"/roster/import",
		[]byte("full_name,email\nAhmad Ali,ahmad@example.com\n"),
	)
	req.Header.Set(echo.HeaderContentType, "text/csv")
	app.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), roster.ErrInputTooLarge.Error())
}

func Test_rosterApi_addStudent(t *testing.T) {
	app := setup(t)
	path := "/v1/schools/" + schoolID + "/students"
	existing := testutil.CreateStudent(t, app.repo, schoolID, "Sara Cohen", "sara@example.com", "secret")

	tests := []httpTest{
		{
			name:     "empty",
			body:     []byte(`{}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"full_name": "this field is required", "email": "this field is required"}`),
		},
		{
			name:     "invalid email",
			body:     []byte(`{"full_name": "Lina Haddad", "email": "lina@"}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"email": "invalid email format"}`),
		},
		{
			name:     "email taken",
			body:     []byte(`{"full_name": "Sara C", "email": "` + existing.Email + `"}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"email": "` + roster.ErrEmailExists.Error() + `"}`),
		},
		{
			name:     "created",
			body:     []byte(`{"full_name": " Lina Haddad ", "email": "Lina@Example.com", "class_id": "` + classID + `"}`),
			wantCode: http.StatusCreated,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodPost, path, tt.body)
			app.server.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)

			if tt.wantCode == http.StatusCreated {
				var st roster.Student
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
				assert.NotEmpty(t, st.ID)
				assert.Equal(t, "Lina Haddad", st.FullName)
				assert.Equal(t, "lina@example.com", st.Email)
				assert.True(t, st.MustChangePassword)
			}
		})
	}
}

func Test_rosterApi_classStudents(t *testing.T) {
	app := setup(t)
	zed := testutil.CreateStudent(t, app.repo, schoolID, "Zed", "zed@example.com", "")
	amy := testutil.CreateStudent(t, app.repo, schoolID, "Amy", "amy@example.com", "")
	other := testutil.CreateStudent(t, app.repo, schoolID, "Bob", "bob@example.com", "")
	testutil.Enroll(t, app.repo, schoolID, classID, zed.ID)
	testutil.Enroll(t, app.repo, schoolID, classID, amy.ID)
	testutil.Enroll(t, app.repo, schoolID, "class-2", other.ID)

	path := "/v1/schools/" + schoolID + "/classes/" + classID + "/students"
	tests := []httpTest{
		{name: "default ordering", path: path, wantCode: http.StatusOK, extra: []string{"Amy", "Zed"}},
		{name: "descending", path: path + "?ordering=-full_name", wantCode: http.StatusOK, extra: []string{"Zed", "Amy"}},
		{name: "unknown field", path: path + "?ordering=password_hash", wantCode: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodGet, tt.path)
			app.server.ServeHTTP(rec, req)
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())

			if names, ok := tt.extra.([]string); ok {
				var students []roster.Student
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &students))
				got := make([]string, 0, len(students))
				for _, st := range students {
					got = append(got, st.FullName)
				}
				assert.Equal(t, names, got)
			}
		})
	}
}

func Test_rosterApi_instructions(t *testing.T) {
	app := setup(t)
	path := "/v1/users/teacher-1/preferences/roster-instructions"

	get := func(t *testing.T) roster.Instructions {
		req, rec := newRequest(http.MethodGet, path)
		app.server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		var ins roster.Instructions
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ins))
		return ins
	}

	ins := get(t)
	assert.False(t, ins.Seen)
	assert.True(t, ins.ShowInstructions)
	assert.Contains(t, ins.Headers[roster.FieldFullName], "full_name")
	assert.Equal(t, []roster.Field{roster.FieldFullName}, ins.Required)

	tests := []httpTest{
		{name: "missing seen", body: []byte(`{}`), wantCode: http.StatusBadRequest, wantData: []byte(`{"seen": "this field is required"}`)},
		{name: "seen", body: []byte(`{"seen": true}`), wantCode: http.StatusOK, extra: true},
		{name: "unseen", body: []byte(`{"seen": false}`), wantCode: http.StatusOK, extra: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodPut, path, tt.body)
			app.server.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)

			if seen, ok := tt.extra.(bool); ok {
				ins := get(t)
				assert.Equal(t, seen, ins.Seen)
				assert.Equal(t, !seen, ins.ShowInstructions)
			}
		})
	}
}
