package main

import (
	"fmt"
	"log"
	"os"

	"github.com/jmoiron/sqlx"

	"github.com/trezcool/feedback/core"
	"github.com/trezcool/feedback/core/feedback"
	logsvc "github.com/trezcool/feedback/services/logger"
	"github.com/trezcool/feedback/storage/database"
	boiledrepos "github.com/trezcool/feedback/storage/database/sqlboiler"
	sqlxrepos "github.com/trezcool/feedback/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()

	out, err := logsvc.NewZap("ADMIN", conf.Debug)
	if err != nil {
		log.Fatalf("setting up logger: %v", err)
	}
	logger := logsvc.NewRollbarLogger(out, conf)
	logger.Enable(!conf.Debug)
	defer logger.Sync()

	// set up DB
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}

	// start CLI
	identity := boiledrepos.NewIdentityRepository(db)
	cli := commandLine{
		conf:  conf,
		db:    db,
		users: identity,
		feedbackSvc: feedback.NewService(
			sqlxrepos.NewFeedbackRepository(sqlx.NewDb(db, conf.Database.Engine)),
			identity,
			logger,
		),
		out: os.Stdout,
	}
	err = cli.run(os.Args)
	_ = db.Close()
	if err != nil {
		if err != errHelp {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}
