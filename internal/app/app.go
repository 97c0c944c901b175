package app

import (
	"context"
	"errors"
	"fmt"

	"grocery-planner/internal/backend"
	"grocery-planner/internal/cart"
	"grocery-planner/internal/config"
	"grocery-planner/internal/database"
	"grocery-planner/internal/history"
	"grocery-planner/internal/llm"
	"grocery-planner/internal/metrics"
	"grocery-planner/internal/planner"
	"grocery-planner/internal/report"
	"grocery-planner/internal/session"
	"grocery-planner/internal/stores"
	"grocery-planner/internal/workflow"

	"github.com/sirupsen/logrus"
)

// App holds the application's dependencies.
type App struct {
	Config  *config.Config
	Logger  logrus.FieldLogger
	DB      *database.DB
	Metrics *metrics.Store
	History *history.Repository
	Backend *backend.Client
	Core    *workflow.Core

	closers []func() error
}

// New wires the database, backend client, plan source and workflow core.
func New(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	db, err := database.NewDB(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	a.DB = db
	logger.WithFields(logrus.Fields{"path": cfg.DatabasePath, "schema_version": db.SchemaVersion}).Debug("Database ready")
	a.closers = append(a.closers, db.Close)

	a.Metrics = metrics.NewStore(db.SQL)
	a.History = history.NewRepository(db.SQL)

	client, err := backend.NewClient(cfg, a.Metrics, logger.WithField("component", "backend"))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create backend client: %w", err)
	}
	a.Backend = client

	source, err := a.planSource(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	saver, err := report.NewSaver(cfg.DownloadDir)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Core = workflow.New(workflow.Deps{
		Session:   session.NewTracker(client, cfg.AuthReturnPath, logger.WithField("component", "session")),
		Locator:   stores.NewLocator(client),
		Generator: planner.NewGenerator(source, logger.WithField("component", "planner")),
		Stager:    cart.NewStager(client, logger.WithField("component", "cart")),
		Requester: report.NewRequester(client, logger.WithField("component", "report")),
		Saver:     saver,
	}, logger.WithField("component", "workflow"), workflow.WithJournal(a.History))

	return a, nil
}

// planSource picks the backend's /plan endpoint or Gemini.
func (a *App) planSource(ctx context.Context) (planner.Source, error) {
	if a.Config.PlanSource != "gemini" {
		return a.Backend, nil
	}

	gemini, err := llm.NewGeminiClient(ctx, a.Config.GeminiAPIKey, a.Config.GeminiModel)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	a.closers = append(a.closers, gemini.Close)
	a.Logger.WithField("model", a.Config.GeminiModel).Info("Using Gemini plan source")
	return planner.NewGeminiSource(gemini), nil
}

// Close releases everything New opened, newest first.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
