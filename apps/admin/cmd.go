package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"syscall"

	"github.com/jmoiron/sqlx"
	"golang.org/x/term"

	"github.com/trezcool/roster/core/roster"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp  = errors.New("help provided")
	errNoSQL = errors.New("migrate needs the sql store")
)

type commandLine struct {
	db        *sqlx.DB // nil unless the store is sql
	rosterSvc *roster.Service
	out       io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  import -school SCHOOL -class CLASS -file FILE [-format naive|csv|xlsx] [-require-email] [-dry-run] - import a roster file")
	fmt.Fprintln(cli.out, "  template [-o FILE] - write the roster template")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run goose migration commands")
	fmt.Fprintln(cli.out, "  resetpassword -school SCHOOL -student EMAIL - reset a student's password")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	importCmd := flag.NewFlagSet("import", flag.ContinueOnError)
	importCmd.SetOutput(cli.out)
	importSchool := importCmd.String("school", "", "The school the students belong to.")
	importClass := importCmd.String("class", "", "The class to enroll the students in.")
	importFile := importCmd.String("file", "", "The roster file (.csv, .txt or .xlsx).")
	importFormat := importCmd.String("format", "", "Force the file format: naive, csv or xlsx.")
	importRequireEmail := importCmd.Bool("require-email", false, "Reject rows without an email.")
	importDryRun := importCmd.Bool("dry-run", false, "Only validate the file.")

	templateCmd := flag.NewFlagSet("template", flag.ContinueOnError)
	templateCmd.SetOutput(cli.out)
	templateOut := templateCmd.String("o", "", "Output file. Defaults to stdout.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordCmd.SetOutput(cli.out)
	resetPasswordSchool := resetPasswordCmd.String("school", "", "The student's school.")
	resetPasswordStudent := resetPasswordCmd.String("student", "", "The student's email. The password will be prompted next.")

	switch args[1] {
	case "import":
		if err := importCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *importSchool == "" || *importFile == "" || (*importClass == "" && !*importDryRun) {
			importCmd.Usage()
			return errHelp
		}
		var requireEmail *bool
		importCmd.Visit(func(f *flag.Flag) {
			if f.Name == "require-email" {
				requireEmail = importRequireEmail
			}
		})
		return cli.importRoster(importArgs{
			schoolID:     *importSchool,
			classID:      *importClass,
			file:         *importFile,
			format:       *importFormat,
			requireEmail: requireEmail,
			dryRun:       *importDryRun,
		})
	case "template":
		if err := templateCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		return cli.writeTemplate(*templateOut)
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *resetPasswordStudent == "" || *resetPasswordSchool == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		fmt.Fprint(cli.out, "Enter password:")
		pwd, err := readPasswordFunc(int(syscall.Stdin))
		fmt.Fprintln(cli.out)
		if err != nil {
			return err
		}
		if len(pwd) == 0 {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(*resetPasswordSchool, *resetPasswordStudent, string(pwd))
	default:
		cli.printUsage()
		return errHelp
	}
}
