package main

import (
	"log"
	"os"

	"github.com/trezcool/studyplanner/core"
	"github.com/trezcool/studyplanner/core/user"
	"github.com/trezcool/studyplanner/storage/database"
	"github.com/trezcool/studyplanner/storage/database/sqlxdb"
)

var logger *log.Logger

func main() {
	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	conf := core.NewConfig()

	// set up DB
	if conf.Database.Engine == "memory" {
		logger.Fatal("the admin CLI needs a persistent database engine (postgres or sqlite)")
	}
	errAndDie(database.CreateIfNotExist(conf.Database))
	db, err := database.Open(conf.Database)
	errAndDie(err)
	errAndDie(database.Ping(db.DB))

	// start CLI
	cli := commandLine{
		db:     db.DB,
		engine: conf.Database.Engine,
		usrSvc: user.NewService(sqlxdb.NewUserRepository(db)),
		out:    os.Stdout,
	}
	err = cli.run(os.Args)
	_ = db.Close()
	if err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
