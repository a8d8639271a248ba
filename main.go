// main.go - Entry point and dependency injection
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sstent/stridetrack-go/internal/config"
	"github.com/sstent/stridetrack-go/internal/database"
	"github.com/sstent/stridetrack-go/internal/replay"
	"github.com/sstent/stridetrack-go/internal/schedule"
	"github.com/sstent/stridetrack-go/internal/tracking"
	"github.com/sstent/stridetrack-go/internal/web"
)

type App struct {
	cfg       config.Config
	log       *logrus.Logger
	db        *database.SQLiteDB
	scheduler *schedule.CronScheduler
	tracker   *tracking.Tracker
	web       *web.WebHandler
	server    *http.Server
	shutdown  chan os.Signal
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Invalid configuration")
	}

	app := &App{
		cfg:      cfg,
		log:      cfg.Logger(),
		shutdown: make(chan os.Signal, 1),
	}

	// Initialize components
	if err := app.init(); err != nil {
		app.log.WithError(err).Fatal("Failed to initialize app")
	}

	// Start services
	app.start()

	// Wait for shutdown signal
	signal.Notify(app.shutdown, os.Interrupt, syscall.SIGTERM)
	<-app.shutdown

	// Graceful shutdown
	app.stop()
}

func (app *App) init() error {
	if err := app.cfg.EnsureDataDir(); err != nil {
		return err
	}

	db, err := database.NewSQLiteDB(app.cfg.DBPath)
	if err != nil {
		return err
	}
	app.db = db

	app.scheduler = schedule.NewCronScheduler(app.log)

	location, steps, err := app.replaySources()
	if err != nil {
		return err
	}

	app.tracker = tracking.New(tracking.Deps{
		Location:  location,
		Steps:     steps,
		Store:     app.db,
		History:   app.db,
		Scheduler: app.scheduler,
		Logger:    app.log,
	}, tracking.Options{StepLength: app.cfg.StepLength})

	// Pick up a session interrupted by a previous shutdown or crash
	if err := app.tracker.Restore(context.Background()); err != nil {
		app.log.WithError(err).Warn("Restored session could not resume")
	}

	app.web = web.NewWebHandler(app.tracker, app.db, web.Defaults{
		ActivityType: app.cfg.ActivityType,
		Unit:         app.cfg.Unit,
	}, app.log)

	app.server = &http.Server{
		Addr:              app.cfg.HTTPAddr,
		Handler:           app.web.NewRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return nil
}

// replaySources builds the location and step sources from REPLAY_FILE.
// Without a track the tracker has no location source and Start reports it
// as unavailable.
func (app *App) replaySources() (tracking.LocationSource, tracking.StepSource, error) {
	if app.cfg.ReplayFile == "" {
		app.log.Warn("REPLAY_FILE not set; sessions cannot be started")
		return nil, nil, nil
	}

	samples, err := replay.Load(app.cfg.ReplayFile)
	if err != nil {
		return nil, nil, err
	}
	app.log.WithFields(logrus.Fields{
		"file":    app.cfg.ReplayFile,
		"samples": len(samples),
		"speed":   app.cfg.ReplaySpeed,
	}).Info("Loaded replay track")

	location := replay.NewSource(samples, replay.SourceOptions{
		Speed:     app.cfg.ReplaySpeed,
		Scheduler: app.scheduler,
		Logger:    app.log,
	})
	steps := replay.NewPedometer(app.cfg.ReplayCadence, app.cfg.ReplaySpeed, app.scheduler, nil)
	return location, steps, nil
}

func (app *App) start() {
	// Start cron scheduler
	if _, err := app.scheduler.AddFunc("@hourly", app.logHistory); err != nil {
		app.log.WithError(err).Error("Failed to schedule history summary")
	}
	app.scheduler.Start()

	// Start web server
	go func() {
		app.log.WithField("addr", app.server.Addr).Info("Server starting")
		if err := app.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			app.log.WithError(err).Error("Server error")
		}
	}()
}

// logHistory writes a summary of the archived activities.
func (app *App) logHistory() {
	stats, err := app.db.GetStats(context.Background())
	if err != nil {
		app.log.WithError(err).Warn("History summary failed")
		return
	}
	app.log.WithFields(logrus.Fields{
		"activities": stats.Total,
		"failed":     stats.Failed,
		"distance_m": stats.TotalDistance,
		"duration_s": stats.TotalDuration,
	}).Info("History summary")
}

func (app *App) stop() {
	app.log.Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Stop web server
	app.web.Close()
	if err := app.server.Shutdown(ctx); err != nil {
		app.log.WithError(err).Error("Server shutdown error")
	}

	// An active session stays in the snapshot store for the next start
	if err := app.tracker.Close(ctx); err != nil {
		app.log.WithError(err).Warn("Tracker close error")
	}

	// Stop cron
	app.scheduler.Stop()

	// Close database
	if app.db != nil {
		app.db.Close()
	}

	app.log.Info("Shutdown complete")
}
