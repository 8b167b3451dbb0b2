// Package app wires the server components from a Config.
package app

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/wadjakorntonsri/go-photo-wall/pkg/adapters/feed"
	"github.com/wadjakorntonsri/go-photo-wall/pkg/adapters/handler"
	"github.com/wadjakorntonsri/go-photo-wall/pkg/adapters/moderation"
	"github.com/wadjakorntonsri/go-photo-wall/pkg/adapters/repository/sqlite"
	"github.com/wadjakorntonsri/go-photo-wall/pkg/config"
	"github.com/wadjakorntonsri/go-photo-wall/pkg/core/services"
	"github.com/wadjakorntonsri/go-photo-wall/pkg/core/slug"
	"github.com/wadjakorntonsri/go-photo-wall/pkg/observability"
	"github.com/wadjakorntonsri/go-photo-wall/pkg/ports"
)

type App struct {
	Handler     http.Handler
	Repo        *sqlite.SQLiteRepository
	Hub         *feed.Hub
	Collections *services.CollectionService
	Photos      *services.PhotoService
	Settings    *services.SettingsService
	Registry    *prometheus.Registry
	Metrics     *observability.Metrics
}

func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	logger = observability.OrDefault(logger)
	repo, err := sqlite.NewSQLiteRepository(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(reg)

	alloc, err := slug.New(slug.Config{
		Probe:       repo,
		MaxAttempts: cfg.SlugMaxAttempts,
		Logger:      logger,
		Metrics:     metrics,
	})
	if err != nil {
		repo.Close()
		return nil, err
	}

	var moderator ports.Moderator
	if cfg.ModerationEnabled() {
		m, err := moderation.NewSightengine(moderation.Config{
			URL:       cfg.ModerationURL,
			APIUser:   cfg.ModerationAPIUser,
			APISecret: cfg.ModerationAPISecret,
		})
		if err != nil {
			repo.Close()
			return nil, err
		}
		moderator = m
	} else {
		logger.Info("moderation disabled, no Sightengine credentials")
	}

	hub := feed.NewHub(logger, metrics)
	collections := services.NewCollectionService(repo, alloc, services.CollectionOptions{
		BaseURL:     cfg.BaseURL,
		RaceRetries: cfg.SlugRaceRetries,
		Logger:      logger,
	})
	photos := services.NewPhotoService(repo, repo, hub, moderator, logger)
	settings := services.NewSettingsService(repo, cfg.DefaultRotationInterval)
	feedServer := feed.NewServer(hub, cfg.FeedBuffer, logger, metrics)

	return &App{
		Handler:     handler.NewRouter(cfg, collections, photos, settings, feedServer, reg),
		Repo:        repo,
		Hub:         hub,
		Collections: collections,
		Photos:      photos,
		Settings:    settings,
		Registry:    reg,
		Metrics:     metrics,
	}, nil
}

func (a *App) Close() error {
	return a.Repo.Close()
}
