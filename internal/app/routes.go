package app

import (
	"github.com/gin-contrib/cors"

	"github.com/imsunorg/blog-front/internal/middleware"
	"github.com/imsunorg/blog-front/internal/proxy"
	"github.com/imsunorg/blog-front/internal/render"
)

// registerRoutes mounts the page routes and the /api proxy. The proxy sits
// outside the CORS and cache middleware: it injects its own CORS headers and
// must never serve cached responses.
func (a *App) registerRoutes(pages *render.Handler, apiProxy *proxy.Handler) {
	a.router.Use(middleware.RequestID())
	a.router.Use(middleware.Logger(a.logger))

	a.router.GET("/healthz", a.healthz)

	apiProxy.RegisterRoutes(a.router)

	group := a.router.Group("/")
	group.Use(cors.New(a.corsConfig()))

	if a.redis != nil {
		group.Use(middleware.PageCache(a.redis.Raw(), middleware.PageCacheOptions{
			TTL:     a.cfg.CacheTTL(),
			Disable: a.cfg.Cache.Disable,
			SkipPaths: []string{
				"/api/*",
				"/static/*",
			},
		}))
	}

	pages.RegisterRoutes(group)

	a.router.NoRoute(pages.NotFound)
}

func (a *App) corsConfig() cors.Config {
	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length", "x-blog-cache"},
		AllowCredentials: true,
	}
	if len(a.cfg.AllowedOrigins) > 0 && !a.cfg.IsDev() {
		// Config entries may be full origins or bare host patterns.
		patterns := make([]string, 0, len(a.cfg.AllowedOrigins))
		for _, entry := range a.cfg.AllowedOrigins {
			patterns = append(patterns, extractOriginHost(entry))
		}
		corsConfig.AllowOriginFunc = func(origin string) bool {
			host := extractOriginHost(origin)
			for _, pattern := range patterns {
				if matchOriginPattern(pattern, host) {
					return true
				}
			}
			return false
		}
	} else {
		corsConfig.AllowOriginFunc = func(origin string) bool { return true }
	}
	return corsConfig
}
