package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/pkg/errors"

	"github.com/trezcool/roster/core/roster"
)

type importArgs struct {
	schoolID     string
	classID      string
	file         string
	format       string
	requireEmail *bool
	dryRun       bool
}

// importRoster imports a roster file and prints the report as JSON.
func (cli *commandLine) importRoster(args importArgs) error {
	format, err := roster.ParseFormat(args.format, "")
	if err != nil {
		return err
	}

	f, err := os.Open(args.file)
	if err != nil {
		return errors.Wrap(roster.ErrUnreadableFile, err.Error())
	}
	defer func() { _ = f.Close() }()

	in, err := cli.rosterSvc.ReadInput(f, args.file, format)
	if err != nil {
		return err
	}
	in.RequireEmail = args.requireEmail

	var report interface{}
	if args.dryRun {
		report, err = cli.rosterSvc.Preview(in)
	} else {
		var res roster.ImportResult
		res, err = cli.rosterSvc.Import(context.Background(), args.schoolID, args.classID, in)
		report = importReport{ImportResult: res, Credentials: credentialLines(res.Credentials)}
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cli.out)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// importReport adds the generated passwords, since the CLI sends no welcome emails.
type importReport struct {
	roster.ImportResult
	Credentials []credentialLine `json:"credentials"`
}

type credentialLine struct {
	FullName string `json:"full_name"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password"`
}

func credentialLines(creds []roster.Credential) []credentialLine {
	lines := make([]credentialLine, 0, len(creds))
	for _, c := range creds {
		lines = append(lines, credentialLine{FullName: c.FullName, Email: c.Email, Password: c.Password})
	}
	return lines
}

func (cli *commandLine) writeTemplate(path string) error {
	if path == "" {
		_, err := cli.out.Write(roster.Template())
		return err
	}
	if err := os.WriteFile(path, roster.Template(), 0o644); err != nil {
		return errors.Wrap(err, "writing template")
	}
	return nil
}
