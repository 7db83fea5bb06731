package main

import (
	"fmt"
	"os"

	"github.com/jmoiron/sqlx"

	"github.com/trezcool/roster/core"
	"github.com/trezcool/roster/core/roster"
	logsvc "github.com/trezcool/roster/services/logger"
	"github.com/trezcool/roster/storage/database"
	inmemdb "github.com/trezcool/roster/storage/database/inmem"
	sqlxrepos "github.com/trezcool/roster/storage/database/sqlx"
	"github.com/trezcool/roster/storage/postgrest"
)

func main() {
	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(logsvc.NewZerolog(conf, "admin"), conf)
	logger.Enable(!conf.Debug)

	var (
		db   *sqlx.DB
		repo roster.Repository
		err  error
	)
	switch conf.Store.Driver {
	case "inmem":
		repo = inmemdb.NewRosterRepository(inmemdb.Open())
	case "postgrest":
		repo = postgrest.NewRosterRepository(postgrest.NewClient(conf))
	default:
		if db, err = database.Open(conf); err != nil {
			logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
		}
		defer func() { _ = db.Close() }()
		repo = sqlxrepos.NewRosterRepository(db)
	}

	// emails are sent asynchronously; the process would exit before they are
	opts, err := roster.OptionsFromConfig(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("reading import options: %v", err), err)
	}
	opts.Notify = false

	// start CLI
	cli := commandLine{
		db:        db,
		rosterSvc: roster.NewService(repo, nil, logger, opts),
		out:       os.Stdout,
	}
	if err = cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("error: %s", err), err)
		}
		if db != nil {
			_ = db.Close()
		}
		os.Exit(1)
	}
}
