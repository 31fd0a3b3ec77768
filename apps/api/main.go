package main

import (
	"context"
	"database/sql"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	echoapi "github.com/trezcool/feedback/apps/api/echo"
	"github.com/trezcool/feedback/core"
	"github.com/trezcool/feedback/core/feedback"
	appfs "github.com/trezcool/feedback/fs"
	emailsvc "github.com/trezcool/feedback/services/email"
	logsvc "github.com/trezcool/feedback/services/logger"
	"github.com/trezcool/feedback/services/metrics"
	"github.com/trezcool/feedback/storage/cache"
	"github.com/trezcool/feedback/storage/database"
	boiledrepos "github.com/trezcool/feedback/storage/database/sqlboiler"
	sqlxrepos "github.com/trezcool/feedback/storage/database/sqlx"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	apiOut, err := logsvc.NewZap("API", conf.Debug)
	if err != nil {
		log.Fatalf("setting up logger: %v", err)
	}
	logger := logsvc.NewRollbarLogger(apiOut, conf)
	logger.Enable(!conf.Debug)
	defer logger.Sync()

	dbOut, err := logsvc.NewZap("DB", conf.Debug)
	if err != nil {
		log.Fatalf("setting up logger: %v", err)
	}
	dbLogger := logsvc.NewRollbarLogger(dbOut, conf)
	dbLogger.Enable(!conf.Debug)

	// set up DB
	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			dbLogger.Fatal("Failed to close", err)
		}
	}()

	// set up services
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewDBStatsCollector(db, conf.Database.Name),
	)

	opts := []feedback.Option{feedback.WithRecorder(metrics.NewRecorder(reg))}
	if conf.Redis.Enabled {
		rdb := cache.NewClient(conf)
		defer func() { _ = rdb.Close() }()
		opts = append(opts, feedback.WithLocker(cache.NewLocker(rdb, conf, logger)))
	}
	if conf.Feedback.NotifyOnAssign {
		var mailSvc core.EmailService
		if conf.Debug {
			mailSvc = emailsvc.NewConsoleService(conf, logger)
		} else {
			mailSvc = emailsvc.NewSendgridService(conf, logger)
		}
		opts = append(opts, feedback.WithNotifier(feedback.NewMailNotifier(mailSvc, logger, conf)))
	}

	identity := boiledrepos.NewIdentityRepository(db)
	feedbackSvc := feedback.NewService(
		sqlxrepos.NewFeedbackRepository(sqlx.NewDb(db, conf.Database.Engine)),
		identity,
		logger,
		opts...,
	)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, conf, logger)

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

	server := echoapi.NewServer(conf.Server.Host, shutdown, &echoapi.Deps{
		Conf:        conf,
		Logger:      logger,
		DB:          db,
		FeedbackSvc: feedbackSvc,
		Users:       identity,
		Gatherer:    reg,
	})

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info(fmt.Sprintf("API listening on %s", conf.Server.Host))
		serverErrors <- server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-serverErrors:
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-shutdown:
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func setUpDB(conf *core.Config) (*sql.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
