// Package app wires configuration, storage and services for the binaries.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"comictracker/internal/auth"
	"comictracker/internal/comicvine"
	"comictracker/internal/events"
	"comictracker/internal/importer"
	"comictracker/internal/issues"
	"comictracker/internal/jobs"
	"comictracker/internal/logging"
	"comictracker/internal/merge"
	"comictracker/internal/readingorder"
	"comictracker/internal/settings"
	"comictracker/internal/storyblock"
	"comictracker/pkg/database"
	"comictracker/pkg/models"
	"comictracker/pkg/utils"
)

type App struct {
	Config utils.Config
	Logger *slog.Logger
	DB     *sql.DB
	Hub    *events.Hub
	Tokens auth.TokenService

	ComicVine   *comicvine.Client
	Settings    *settings.Repo
	Jobs        *jobs.Store
	StoryBlocks *storyblock.Service
	Issues      *issues.Service
	Merge       *merge.Engine
}

// Open loads configuration, opens and migrates the store and builds every
// service. The caller owns Close.
func Open(ctx context.Context, configPath string) (*App, error) {
	cfg, err := utils.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewFromConfig(cfg.Log)
	if err != nil {
		return nil, err
	}

	dbCfg := database.DefaultConfig()
	dbCfg.Path = cfg.DBPath
	db, err := database.Open(ctx, dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := database.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	cv, err := comicvine.NewClient(cfg.ComicVine, logger.With("component", "comicvine"))
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	hub := events.NewHub(logger.With("component", "events"))
	a := &App{
		Config: cfg,
		Logger: logger,
		DB:     db,
		Hub:    hub,
		Tokens: auth.TokenService{
			Secret:   []byte(cfg.Auth.JWTSecret),
			Issuer:   cfg.Auth.JWTIssuer,
			Duration: cfg.Auth.JWTDuration.Std(),
		},
		ComicVine:   cv,
		Settings:    settings.NewRepo(db),
		Jobs:        jobs.NewStore(db),
		StoryBlocks: storyblock.NewService(db, hub, logger.With("component", "storyblock")),
		Issues:      issues.NewService(db, hub, logger.With("component", "issues")),
		Merge:       merge.NewEngine(db, hub, logger.With("component", "merge")),
	}
	logger.Info("store ready", "db_path", cfg.DBPath)
	return a, nil
}

func (a *App) Close() error {
	return a.DB.Close()
}

// NewWorker returns a job worker with every job type registered.
func (a *App) NewWorker() *jobs.Worker {
	log := a.Logger.With("component", "jobs")
	w := jobs.NewWorker(a.Jobs, a.Config.Worker.PollInterval.Std(), a.Hub, log)
	w.Register(models.JobTypeComicVineImport, importer.NewProcessor(a.DB, a.ComicVine, a.Settings, log))
	return w
}

// Router builds the HTTP surface. Everything except the probes and the
// websocket upgrade sits behind bearer-token verification.
func (a *App) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), a.requestLogger())
	_ = router.SetTrustedProxies([]string{"127.0.0.1"})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/ready", a.ready)
	router.GET("/ws", events.WSHandler(a.Hub, a.Tokens))

	api := router.Group("/api")
	api.Use(auth.AuthMiddleware(a.Tokens))

	merge.NewHandler(a.Merge).RegisterRoutes(api)
	storyblock.NewHandler(a.StoryBlocks).RegisterRoutes(api)
	issues.NewHandler(a.Issues).RegisterRoutes(api)
	readingorder.NewHandler(a.DB).RegisterRoutes(api)
	settings.NewHandler(a.Settings).RegisterRoutes(api)
	jobs.NewHandler(a.Jobs).RegisterRoutes(api)
	importer.NewHandler(a.Jobs, a.ComicVine, a.Settings).RegisterRoutes(api)

	return router
}

func (a *App) ready(c *gin.Context) {
	stats := a.Hub.Stats()
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := a.DB.PingContext(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":     "not_ready",
			"db_error":   err.Error(),
			"ws_clients": stats.Clients,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":     "ready",
		"db":         "ok",
		"ws_clients": stats.Clients,
	})
}

func (a *App) requestLogger() gin.HandlerFunc {
	log := a.Logger.With("component", "http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
