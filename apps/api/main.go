package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof" // register the /debug/pprof handlers
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"

	echoapi "github.com/internly/internly/apps/api/echo"
	"github.com/internly/internly/core"
	"github.com/internly/internly/core/review"
	"github.com/internly/internly/core/user"
	attachmentsvc "github.com/internly/internly/services/attachment"
	emailsvc "github.com/internly/internly/services/email"
	logsvc "github.com/internly/internly/services/logger"
	notifysvc "github.com/internly/internly/services/notify"
	"github.com/internly/internly/storage/database"
	inmemdb "github.com/internly/internly/storage/database/inmem"
	mongorepos "github.com/internly/internly/storage/database/mongo"
	sqlxrepos "github.com/internly/internly/storage/database/sqlx"
)

type repositories struct {
	users       user.Repository
	submissions review.Repository
	close       func() error
}

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.Conf

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)

	// set up storage
	repos, err := setUpStorage(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up %s storage: %v", conf.Database.Engine, err), err)
	}
	defer func() {
		if err := repos.close(); err != nil {
			logger.Error(fmt.Sprintf("closing storage: %v", err), err)
		}
	}()

	// set up services
	mailSvc := emailsvc.New(conf, logger)
	usrSvc := user.NewService(repos.users)
	attachments, err := attachmentsvc.New(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up attachments: %v", err), err)
	}
	notifier := notifysvc.Multi{
		notifysvc.NewLogNotifier(logger),
		notifysvc.NewMailNotifier(usrSvc, mailSvc),
	}
	reviewSvc := review.NewService(repos.submissions, usrSvc, notifier, attachments, logger)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q (%s storage)", conf.Build, conf.Database.Engine))
	defer logger.Info("Application stopped")

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	expvar.NewString("storage").Set(conf.Database.Engine)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugAddress, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	server := echoapi.NewServer(&echoapi.Options{
		Address:        conf.Server.Address,
		DisableReqLogs: !conf.Debug,
		Conf:           conf,
		Logger:         logger,
		SignalShutdown: func() { shutdown <- syscall.SIGTERM },
		UserSvc:        usrSvc,
		ReviewSvc:      reviewSvc,
	})

	go server.Start()

	// =========================================================================
	// Shutdown

	sig := <-shutdown
	logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

	// give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)
	}
}

// setUpStorage opens the database selected by conf.Database.Engine.
func setUpStorage(conf *core.Config) (repositories, error) {
	switch conf.Database.Engine {
	case "memory":
		db := inmemdb.Open()
		return repositories{
			users:       inmemdb.NewUserRepository(db),
			submissions: inmemdb.NewSubmissionRepository(db),
			close:       func() error { return nil },
		}, nil

	case "mongo":
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()
		db, err := mongorepos.Connect(ctx, conf)
		if err != nil {
			return repositories{}, err
		}
		return repositories{
			users:       mongorepos.NewUserRepository(db),
			submissions: mongorepos.NewSubmissionRepository(db),
			close:       func() error { return db.Client().Disconnect(context.Background()) },
		}, nil

	case "postgres", "":
		if err := database.CreateIfNotExist(conf); err != nil {
			return repositories{}, err
		}
		db, err := database.OpenX(conf)
		if err != nil {
			return repositories{}, err
		}
		if err = database.Migrate(db.DB, "up"); err != nil {
			_ = db.Close()
			return repositories{}, err
		}
		return repositories{
			users:       sqlxrepos.NewUserRepository(db),
			submissions: sqlxrepos.NewSubmissionRepository(db),
			close:       db.Close,
		}, nil
	}
	return repositories{}, errors.Errorf("unknown database engine %q", conf.Database.Engine)
}
