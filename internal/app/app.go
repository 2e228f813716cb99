// Package app wires the configuration, upstream client, view layer and
// proxy into one HTTP application.
package app

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/imsunorg/blog-front/internal/config"
	"github.com/imsunorg/blog-front/internal/proxy"
	"github.com/imsunorg/blog-front/internal/render"
	"github.com/imsunorg/blog-front/internal/upstream"

	pkgredis "github.com/imsunorg/blog-front/internal/pkg/redis"
)

// App holds all application dependencies.
type App struct {
	cfg    *config.AppConfig
	router *gin.Engine
	logger *zap.Logger
	redis  *pkgredis.Client
}

// New initializes the application: upstream client → optional Redis → routes.
func New(logger *zap.Logger, cfg *config.AppConfig) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	client, err := upstream.New(upstream.Options{
		BaseURL: cfg.Upstream.BaseURL,
		Timeout: cfg.UpstreamTimeout(),
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("upstream: %w", err)
	}

	// Redis is an optional accelerator. When it is configured but down the
	// app still starts, just without the page cache.
	var rc *pkgredis.Client
	if cfg.Redis.Enabled && !cfg.Cache.Disable {
		rc, err = pkgredis.Connect(cfg.RedisURL)
		if err != nil {
			logger.Warn("redis unavailable, page cache disabled", zap.Error(err))
			rc = nil
		}
	}

	if cfg.IsDev() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Recovery())

	renderer, err := render.NewRenderer()
	if err != nil {
		return nil, fmt.Errorf("templates: %w", err)
	}

	app := &App{cfg: cfg, router: router, logger: logger, redis: rc}

	pages := render.NewHandler(client, renderer, logger)
	apiProxy := proxy.New(client.BaseURL(), cfg.AllowedOrigins, logger)
	app.registerRoutes(pages, apiProxy)

	return app, nil
}

// Addr returns the listen address.
func (a *App) Addr() string { return fmt.Sprintf(":%d", a.cfg.Port) }

// Router returns the HTTP handler.
func (a *App) Router() http.Handler { return a.router }

// Shutdown releases background resources.
func (a *App) Shutdown() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("redis close failed", zap.Error(err))
		}
	}
}
