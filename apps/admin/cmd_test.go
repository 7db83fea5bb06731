package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/roster/core/roster"
	logsvc "github.com/trezcool/roster/services/logger"
	sqlxrepos "github.com/trezcool/roster/storage/database/sqlx"
	"github.com/trezcool/roster/tests"
)

const (
	schoolID = "school-1"
	classID  = "class-1"
)

var repo roster.Repository

func setup(t *testing.T) (*commandLine, *bytes.Buffer) {
	// set up DB & repos
	db := testutil.PrepareDB(t)
	repo = sqlxrepos.NewRosterRepository(db)

	conf := testutil.NewConfig(t)
	opts, err := roster.OptionsFromConfig(conf)
	require.NoError(t, err)
	opts.Notify = false

	// start CLI
	var out bytes.Buffer
	return &commandLine{
		db:        db,
		rosterSvc: roster.NewService(repo, nil, logsvc.NewNopLogger(), opts),
		out:       &out,
	}, &out
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func checkErr(t *testing.T, tt cliTest, err error) {
	t.Helper()
	switch {
	case tt.wantErr != nil:
		assert.ErrorIs(t, err, tt.wantErr)
	case tt.wantErrStr != "":
		if assert.Error(t, err) {
			assert.Equal(t, tt.wantErrStr, err.Error())
		}
	default:
		assert.NoError(t, err)
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _ := setup(t)

	origRun := gooseRunFunc
	t.Cleanup(func() { gooseRunFunc = origRun })
	gooseRunFunc = func(command string, db *sql.DB, dir string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "create", args: []string{"migrate", "create", "guardians", "sql"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			checkErr(t, tt, cli.run(args))
		})
	}

	t.Run("needs the sql store", func(t *testing.T) {
		noDB := &commandLine{out: cli.out}
		assert.ErrorIs(t, noDB.run([]string{"admin", "migrate", "up"}), errNoSQL)
	})
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli, _ := setup(t)

	st := testutil.CreateStudent(t, repo, schoolID, "Sara Cohen", "sara@example.com", "temporary")

	origRead := readPasswordFunc
	t.Cleanup(func() { readPasswordFunc = origRead })

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "no school", args: []string{"resetpassword", "-student", st.Email}, extra: extra{pwd: "lol"}, wantErr: errHelp},
		{name: "student but no password", args: []string{"resetpassword", "-school", schoolID, "-student", st.Email}, wantErr: errHelp},
		{name: "student not found", args: []string{"resetpassword", "-school", schoolID, "-student", "nobody@example.com"}, extra: extra{pwd: "n3w-pass"}, wantErr: roster.ErrNotFound},
		{name: "other school", args: []string{"resetpassword", "-school", "school-2", "-student", st.Email}, extra: extra{pwd: "n3w-pass"}, wantErr: roster.ErrNotFound},
		{name: "short password", args: []string{"resetpassword", "-school", schoolID, "-student", st.Email}, extra: extra{pwd: "lol"}, wantErr: roster.ErrPasswordTooShort},
		{name: "reset", args: []string{"resetpassword", "-school", schoolID, "-student", "  SARA@example.com "}, extra: extra{pwd: "n3w-pass"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		readPasswordFunc = func(fd int) ([]byte, error) {
			if extra, ok := tt.extra.(extra); ok {
				return []byte(extra.pwd), nil
			}
			return nil, nil
		}

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			checkErr(t, tt, err)
			if err == nil {
				refreshed, err := repo.GetStudentByEmail(context.Background(), schoolID, st.Email)
				require.NoError(t, err)
				assert.NoError(t, refreshed.CheckPassword(tt.extra.(extra).pwd))
				assert.False(t, refreshed.MustChangePassword)
			}
		})
	}
}

func Test_commandLine_import(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "roster.csv")
	data := "full_name,email,phone\n" +
		"أحمد علي,ahmad@example.com,\n" +
		",missing@example.com,\n" +
		"Sara Cohen,sara@example.com,+972521112233\n"
	require.NoError(t, os.WriteFile(file, []byte(data), 0o600))

	tests := []cliTest{
		{name: "no flags", args: []string{"import"}, wantErr: errHelp},
		{name: "no class", args: []string{"import", "-school", schoolID, "-file", file}, wantErr: errHelp},
		{name: "missing file", args: []string{"import", "-school", schoolID, "-class", classID, "-file", filepath.Join(dir, "nope.csv")}, wantErr: roster.ErrUnreadableFile},
		{name: "bad format", args: []string{"import", "-school", schoolID, "-class", classID, "-file", file, "-format", "pdf"}, wantErr: roster.ErrUnsupportedFormat},
		{name: "dry run", args: []string{"import", "-school", schoolID, "-file", file, "-dry-run"}, extra: 0},
		{name: "import", args: []string{"import", "-school", schoolID, "-class", classID, "-file", file}, extra: 2},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			cli, out := setup(t)
			err := cli.run(args)
			checkErr(t, tt, err)
			if err != nil {
				return
			}

			assert.Contains(t, out.String(), `"full name required"`)
			students, err := repo.ListClassStudents(context.Background(), schoolID, classID, nil)
			require.NoError(t, err)
			assert.Len(t, students, tt.extra.(int))
			if tt.extra.(int) > 0 {
				assert.Contains(t, out.String(), `"credentials"`)
				assert.Contains(t, out.String(), `"email": "sara@example.com"`)
			}
		})
	}
}

func Test_commandLine_template(t *testing.T) {
	t.Run("stdout", func(t *testing.T) {
		cli, out := setup(t)
		require.NoError(t, cli.run([]string{"admin", "template"}))
		assert.Equal(t, roster.Template(), out.Bytes())
	})

	t.Run("file", func(t *testing.T) {
		cli, _ := setup(t)
		path := filepath.Join(t.TempDir(), roster.TemplateFilename)
		require.NoError(t, cli.run([]string{"admin", "template", "-o", path}))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, roster.Template(), data)
	})
}
