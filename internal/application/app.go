// Package application assembles the store, engines, dispatcher and retention
// scheduler from configuration. Both the HTTP server and the dtctl CLI start
// from an App.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/JonMunkholm/dynatable/internal/config"
	"github.com/JonMunkholm/dynatable/internal/core"
	"github.com/JonMunkholm/dynatable/internal/ident"
	"github.com/JonMunkholm/dynatable/internal/notify"
	"github.com/JonMunkholm/dynatable/internal/store"
)

// App holds every long-lived component.
type App struct {
	Config     *config.Config
	Store      *store.Store
	Schema     *core.SchemaManager
	Records    *core.RecordEngine
	Importer   *core.Importer
	Jobs       *core.JobStore
	Dispatcher *core.Dispatcher
	Retention  *core.RetentionScheduler
}

// New opens and migrates the store and wires the engines on top of it.
// The retention scheduler is created but not started.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	st, err := store.Open(ctx, store.Config{
		Driver:          cfg.Database.Driver,
		URL:             cfg.Database.URL,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := st.Migrate(); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}

	idents := ident.NewValidator(cfg.Identifier.ReservedWords...)
	importer := core.NewImporter(st.DB, st.Dialect, idents, core.ImporterConfig{
		BatchSize:    cfg.Import.BatchSize,
		MaxFileSize:  cfg.Import.MaxFileSize,
		UniqueFields: cfg.Import.UniqueFields,
	})
	jobs := core.NewJobStore(st.DB, st.Dialect)

	dispatcher := core.NewDispatcher(importer, jobs, NewNotifier(cfg.Notify), idents, core.DispatcherConfig{
		MaxConcurrent: cfg.Import.MaxConcurrent,
		MaxWait:       cfg.Import.MaxWaitTime,
		JobTimeout:    cfg.Import.Timeout,
		Retry:         RetryPolicy(cfg.Retry),
	})

	retention, err := core.NewRetentionScheduler(jobs, dispatcher, core.RetentionConfig{
		Days:     cfg.Jobs.RetentionDays,
		Schedule: cfg.Jobs.RetentionSchedule,
	}, slog.Default())
	if err != nil {
		st.Close()
		return nil, err
	}

	return &App{
		Config:     cfg,
		Store:      st,
		Schema:     core.NewSchemaManager(st.DB, st.Dialect, idents),
		Records:    core.NewRecordEngine(st.DB, st.Dialect, idents),
		Importer:   importer,
		Jobs:       jobs,
		Dispatcher: dispatcher,
		Retention:  retention,
	}, nil
}

// NewNotifier builds the configured sink: log, smtp or both.
func NewNotifier(cfg config.NotifyConfig) notify.Notifier {
	logSink := notify.NewLogNotifier(slog.Default())
	smtpSink := func() notify.Notifier {
		return notify.NewSMTPNotifier(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			User:     cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
	}

	switch strings.ToLower(cfg.Sink) {
	case "smtp":
		return smtpSink()
	case "both":
		return notify.Multi{logSink, smtpSink()}
	default:
		return logSink
	}
}

// RetryPolicy turns the retry settings into a policy; one attempt means no retry.
func RetryPolicy(cfg config.RetryConfig) core.RetryPolicy {
	if cfg.Attempts <= 1 {
		return core.NoRetry{}
	}
	return core.FixedRetry{
		Attempts:     cfg.Attempts,
		Delay:        cfg.Delay,
		OnlyDatabase: cfg.OnlyDatabase,
	}
}

// Close drains running imports, stops the scheduler and closes the store.
// Every step runs even when an earlier one fails.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if err := a.Dispatcher.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("drain imports: %w", err))
	}
	a.Retention.Stop(ctx)
	if err := a.Store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	return errors.Join(errs...)
}
