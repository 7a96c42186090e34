// Package router assembles the gin engine from the application modules.
package router

import (
	"context"
	"net/http"
	"time"

	apphttp "marketplace_backend/internal/http"
	"marketplace_backend/platform/httpkit"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

const healthTimeout = 2 * time.Second

// New builds the engine: global middleware, /health, the versioned API groups,
// every module's routes and a JSON 404.
func New(app *apphttp.App) *gin.Engine {
	cfg := app.Config
	log := app.Logger

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(httpkit.RequestID())
	engine.Use(httpkit.RequestLogger(log))
	engine.Use(httpkit.SecurityHeaders())
	engine.Use(cors.New(corsConfig(cfg)))
	engine.Use(httpkit.BodyLimit(cfg.GetMaxBodyBytes()))

	engine.GET("/health", healthHandler(app))

	limiter := httpkit.NewWindowRateLimiter(cfg.GetRateLimitWindow(), cfg.GetRateLimitMax(), log)
	api := engine.Group("/api", limiter.RateLimit())
	v1 := api.Group("/" + cfg.GetAPIVersion())

	authMiddleware := httpkit.AuthRequired(cfg, app.Users)
	protected := v1.Group("", authMiddleware)
	admin := v1.Group("/admin", authMiddleware, httpkit.RequireRole("admin"))

	rc := &apphttp.RouterContext{
		Engine:          engine,
		V1:              v1,
		Protected:       protected,
		Admin:           admin,
		Config:          cfg,
		AuthMiddleware:  authMiddleware,
		AuthRateLimiter: httpkit.NewAuthRateLimiter(log),
	}

	for _, module := range app.Modules {
		module.RegisterRoutes(rc)
		log.Debug("module registered", "module", module.Name())
	}

	engine.NoRoute(func(c *gin.Context) {
		httpkit.Error(c, http.StatusNotFound, "Route "+c.Request.URL.RequestURI()+" not found", nil)
	})

	return engine
}

func corsConfig(cfg apphttp.RouterConfig) cors.Config {
	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: cfg.GetCORSAllowCreds(),
		MaxAge:           12 * time.Hour,
	}
	if cfg.GetCORSAllowAll() {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.GetCORSOrigins()
	}
	return corsCfg
}

func healthHandler(app *apphttp.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		if app.Health != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
			defer cancel()
			if err := app.Health.Ping(ctx); err != nil {
				app.Logger.Error("health check failed", "error", err)
				httpkit.Error(c, http.StatusServiceUnavailable, "Database unavailable", nil)
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"status":      "success",
			"message":     "Server is healthy",
			"timestamp":   time.Now().UTC().Format(time.RFC3339),
			"environment": app.Config.GetEnv(),
			"version":     app.Config.GetAPIVersion(),
		})
	}
}
