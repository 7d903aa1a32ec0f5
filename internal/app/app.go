// Package app wires configuration, storage, the scan orchestrator, the cron
// loop and the HTTP API into runnable commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/duewatch/duewatch/internal/config"
	"github.com/duewatch/duewatch/internal/db"
	"github.com/duewatch/duewatch/internal/httpapi"
	"github.com/duewatch/duewatch/internal/mail"
	"github.com/duewatch/duewatch/internal/notify"
	"github.com/duewatch/duewatch/internal/profile"
	"github.com/duewatch/duewatch/internal/scan"
	"github.com/duewatch/duewatch/internal/store"
)

// Migrate opens the database and applies the schema.
func Migrate(cfg *config.Config) error {
	conn, errOpen := db.Open(cfg.Database)
	if errOpen != nil {
		return errOpen
	}
	defer closeDB(conn)
	return db.Migrate(conn)
}

// RunScan executes exactly one scan cycle and returns its summary.
func RunScan(ctx context.Context, cfg *config.Config) (scan.Summary, error) {
	if errMail := cfg.ValidateMail(); errMail != nil {
		return scan.Summary{}, errMail
	}
	conn, errOpen := db.Open(cfg.Database)
	if errOpen != nil {
		return scan.Summary{}, errOpen
	}
	defer closeDB(conn)
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return scan.Summary{}, errMigrate
	}
	return buildOrchestrator(conn, cfg).Cycle(ctx)
}

// RunServer starts the periodic scan loop and the observation API, and
// blocks until ctx is cancelled.
func RunServer(ctx context.Context, cfg *config.Config) error {
	if errMail := cfg.ValidateMail(); errMail != nil {
		return errMail
	}
	conn, errOpen := db.Open(cfg.Database)
	if errOpen != nil {
		return errOpen
	}
	defer closeDB(conn)
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}

	st := store.New(conn, cfg.ReminderDays)
	orch := buildOrchestrator(conn, cfg)

	runCycle := func() {
		cycleCtx, cancel := context.WithTimeout(ctx, 15*time.Minute)
		defer cancel()
		if _, errCycle := orch.Cycle(cycleCtx); errCycle != nil {
			if errors.Is(errCycle, scan.ErrCycleRunning) {
				log.Warn("scheduled scan skipped: previous cycle still running")
				return
			}
			log.WithError(errCycle).Error("scan cycle failed")
		}
	}

	scheduler := cron.New()
	spec := cfg.ScanCron
	if spec == "" {
		spec = fmt.Sprintf("@every %dh", cfg.ScanFrequencyHours)
	}
	if _, errAdd := scheduler.AddFunc(spec, runCycle); errAdd != nil {
		return fmt.Errorf("app: schedule %q: %w", spec, errAdd)
	}
	scheduler.Start()
	defer scheduler.Stop()
	log.Infof("scan loop started (schedule %s)", spec)

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: httpapi.NewRouter(conn, st, orch)}
	serverErr := make(chan error, 1)
	go func() {
		log.Infof("http api listening on %s", cfg.HTTPAddr)
		if errServe := server.ListenAndServe(); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			serverErr <- errServe
		}
	}()

	// Initial cycle so a fresh start does not wait a full interval.
	go runCycle()

	select {
	case <-ctx.Done():
	case errServe := <-serverErr:
		return fmt.Errorf("app: http server: %w", errServe)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
		return fmt.Errorf("app: shutdown: %w", errShutdown)
	}
	return nil
}

func buildOrchestrator(conn *gorm.DB, cfg *config.Config) *scan.Orchestrator {
	st := store.New(conn, cfg.ReminderDays)
	source := mail.NewSource(cfg.IMAP)
	notifier := notify.NewMailer(cfg.SMTP)
	return scan.New(source, notifier, st, profile.NewRegistry())
}

func closeDB(conn *gorm.DB) {
	sqlDB, err := conn.DB()
	if err != nil {
		return
	}
	_ = sqlDB.Close()
}
