// Package app wires the shared services every front-end needs.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"gorm.io/gorm"

	"promptmaster-nano/internal/analyzer"
	"promptmaster-nano/internal/config"
	"promptmaster-nano/internal/gemini"
	"promptmaster-nano/internal/httpclient"
	"promptmaster-nano/internal/media"
	"promptmaster-nano/internal/prompt"
	"promptmaster-nano/internal/retention"
	"promptmaster-nano/internal/session"
	"promptmaster-nano/internal/store"
	"promptmaster-nano/internal/workshop"
)

type App struct {
	Config     config.Config
	Logger     *slog.Logger
	HTTPClient *http.Client

	DB       *gorm.DB
	Users    store.UserRepository
	History  store.HistoryRepository
	Analyzer *analyzer.Service
	Sessions *session.Manager
	Workshop *workshop.Service

	retention *retention.Task
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	httpClient := httpclient.New(httpclient.Options{
		PreferIPv4: cfg.PreferIPv4,
		Timeout:    cfg.HTTPTimeout,
	})

	gen, err := NewGenerator(ctx, cfg, httpClient, logger)
	if err != nil {
		return nil, err
	}

	db, err := store.Open(store.Options{Driver: cfg.DBDriver, DSN: cfg.DBDSN, Debug: cfg.Debug})
	if err != nil {
		return nil, err
	}
	users := store.NewUserRepository(db)
	history := store.NewHistoryRepository(db)

	limits := Limits(cfg)
	az := analyzer.New(analyzer.Options{
		Generator:     gen,
		Prompts:       prompt.Default(),
		Limits:        limits,
		RatePerMinute: cfg.Gemini.RatePerMinute,
		Logger:        logger,
	})

	a := &App{
		Config:     cfg,
		Logger:     logger,
		HTTPClient: httpClient,
		DB:         db,
		Users:      users,
		History:    history,
		Analyzer:   az,
		Sessions: session.NewManager(session.Options{
			Users:    users,
			History:  history,
			Secret:   []byte(cfg.AuthSecret),
			TokenTTL: cfg.TokenTTL,
			Delay:    cfg.LoginDelay,
			Logger:   logger,
		}),
		Workshop: workshop.New(workshop.Options{
			Analyzer:     az,
			History:      history,
			HistoryLimit: cfg.HistoryLimit,
			Logger:       logger,
		}),
	}

	if cfg.HistoryRetentionDays > 0 {
		a.retention, err = retention.New(retention.Options{
			Purger:   history,
			Days:     cfg.HistoryRetentionDays,
			Schedule: cfg.HistoryCleanupCron,
			Logger:   logger,
		})
		if err != nil {
			_ = store.Close(db)
			return nil, err
		}
	}

	return a, nil
}

// NewGenerator picks the model backend named by GEMINI_BACKEND.
func NewGenerator(ctx context.Context, cfg config.Config, httpClient *http.Client, logger *slog.Logger) (gemini.Generator, error) {
	switch cfg.Gemini.Backend {
	case config.BackendSDK, config.BackendVertex:
		c, err := gemini.NewSDK(ctx, gemini.SDKOptions{
			APIKey:     cfg.Gemini.APIKey,
			Model:      cfg.Gemini.Model,
			Vertex:     cfg.Gemini.Backend == config.BackendVertex,
			Project:    cfg.Gemini.Project,
			Location:   cfg.Gemini.Location,
			HTTPClient: httpClient,
			Logger:     logger,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	case config.BackendREST, "":
		return gemini.New(gemini.Options{
			APIKey:     cfg.Gemini.APIKey,
			BaseURL:    cfg.Gemini.BaseURL,
			APIVersion: cfg.Gemini.APIVersion,
			Model:      cfg.Gemini.Model,
			HTTPClient: httpClient,
			Logger:     logger,
		}), nil
	default:
		return nil, fmt.Errorf("unknown gemini backend %q", cfg.Gemini.Backend)
	}
}

func Limits(cfg config.Config) media.Limits {
	return media.Limits{MaxItems: cfg.MaxMediaItems, MaxBytes: cfg.MaxUploadBytes()}
}

// StartBackground launches the retention job when one is configured.
func (a *App) StartBackground() {
	if a.retention != nil {
		a.retention.Start()
	}
}

func (a *App) Close() error {
	if a.retention != nil {
		a.retention.Stop()
	}
	return store.Close(a.DB)
}
