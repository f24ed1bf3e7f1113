package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"

	"github.com/trezcool/studyplanner/apps/api/echo"
	"github.com/trezcool/studyplanner/core"
	"github.com/trezcool/studyplanner/core/auth"
	"github.com/trezcool/studyplanner/core/records"
	"github.com/trezcool/studyplanner/core/user"
	"github.com/trezcool/studyplanner/services/email"
	"github.com/trezcool/studyplanner/services/logger"
	"github.com/trezcool/studyplanner/storage/database"
	"github.com/trezcool/studyplanner/storage/database/inmem"
	"github.com/trezcool/studyplanner/storage/database/sqlxdb"
)

// engineMemory keeps everything in process memory; nothing survives a restart.
const engineMemory = "memory"

type repositories struct {
	users   user.Repository
	tokens  auth.TokenRepository
	records records.Repository
}

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	// set up DB
	repos, closeDB, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = closeDB(); err != nil {
			logger.Error("closing database", err)
		}
	}()

	// set up services
	mailSvc := emailsvc.NewService(conf, logger)
	authSvc := auth.NewService(user.NewService(repos.users), repos.tokens, mailSvc, logger, auth.Options{
		AppName:                  conf.AppName,
		SecretKey:                []byte(conf.SecretKey),
		ExternalURL:              conf.Server.ExternalURL,
		AccessTTL:                conf.Server.JWTExpirationDelta,
		RefreshTTL:               conf.Server.JWTRefreshExpirationDelta,
		RequireEmailConfirmation: conf.Server.RequireEmailConfirmation,
		ConfirmTTL:               conf.Server.EmailConfirmTimeoutDelta,
		Google: auth.GoogleConfig(
			conf.Server.GoogleClientID,
			conf.Server.GoogleClientSecret,
			conf.Server.OAuthCallbackURL,
		),
	})

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	if conf.Server.AnonKey == "" {
		logger.Warn("server.anonKey is empty; api key checks are disabled")
	}

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	server := echoapi.NewServer(&echoapi.Options{
		Address:   conf.Server.Address,
		Debug:     conf.Debug,
		AnonKey:   conf.Server.AnonKey,
		SiteURL:   conf.FrontendBaseURL,
		AuthSvc:   authSvc,
		RecordSvc: records.NewService(repos.records),
		Logger:    logger,
		SignalShutdown: func() {
			select {
			case shutdown <- syscall.SIGTERM:
			default:
			}
		},
	})

	go server.Start()

	// =========================================================================
	// Shutdown

	sig := <-shutdown
	logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

	// give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
	defer cancel()

	// asking listener to shutdown and shed load
	if err = server.Stop(ctx); err != nil {
		logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)
	}
}

func setUpDB(conf *core.Config) (repositories, func() error, error) {
	if conf.Database.Engine == engineMemory {
		db := inmemdb.Open()
		return repositories{
			users:   inmemdb.NewUserRepository(db),
			tokens:  inmemdb.NewTokenRepository(db),
			records: inmemdb.NewRecordRepository(db),
		}, func() error { return nil }, nil
	}

	if err := database.CreateIfNotExist(conf.Database); err != nil {
		return repositories{}, nil, err
	}
	db, err := database.Open(conf.Database)
	if err != nil {
		return repositories{}, nil, err
	}
	if err = database.Migrate(db.DB, conf.Database.Engine); err != nil {
		_ = db.Close()
		return repositories{}, nil, err
	}
	return sqlRepositories(db), db.Close, nil
}

func sqlRepositories(db *sqlx.DB) repositories {
	return repositories{
		users:   sqlxdb.NewUserRepository(db),
		tokens:  sqlxdb.NewTokenRepository(db),
		records: sqlxdb.NewRecordRepository(db),
	}
}
