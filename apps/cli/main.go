package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/trezcool/studyplanner/core"
	"github.com/trezcool/studyplanner/services/logger"
	"github.com/trezcool/studyplanner/storage/kv"
)

func main() {
	conf := core.NewConfig()

	// set up loggers
	std := log.New(io.Discard, "", 0)
	if conf.Debug {
		std = log.New(os.Stderr, "PLANNER : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	}
	logger := logsvc.NewRollbarLogger(std, conf)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	// set up session storage
	store, closeStore, err := openStore(ctx, conf.Client)
	if err != nil {
		fail(err)
	}

	p, err := newPlanner(conf.Client, store, logger, nil)
	if err != nil {
		fail(err)
	}

	// start CLI
	cli := commandLine{p: p, out: os.Stdout, now: time.Now}
	err = cli.run(ctx, os.Args)
	closeStore()
	stop()
	if err != nil {
		if err != errHelp {
			fmt.Fprintln(os.Stderr, errorStyle.Render("error: "+describe(err, p.store)))
		}
		os.Exit(1)
	}
}

// openStore picks redis when configured, the local session file otherwise.
func openStore(ctx context.Context, conf core.ClientConfig) (kv.Store, func(), error) {
	if conf.RedisAddr != "" {
		st := kv.NewRedis(conf.RedisAddr, conf.RedisPassword, conf.RedisDB)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := st.Ping(pingCtx); err != nil {
			_ = st.Close()
			return nil, nil, core.NewConfigurationError("cannot reach redis at " + conf.RedisAddr + ": " + err.Error())
		}
		return st, func() { _ = st.Close() }, nil
	}

	st, err := kv.NewFile(filepath.Join(conf.StorageDir, "session.json"))
	if err != nil {
		return nil, nil, err
	}
	return st, func() {}, nil
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, errorStyle.Render("error: "+describe(err, nil)))
	os.Exit(1)
}
