package api

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/nutrimama/nutrimama/internal/api/handlers"
	mw "github.com/nutrimama/nutrimama/internal/api/middleware"
	"github.com/nutrimama/nutrimama/internal/buildconfig"
	"github.com/nutrimama/nutrimama/internal/config"
	"github.com/nutrimama/nutrimama/internal/domain"
	"github.com/nutrimama/nutrimama/internal/service"
	"go.uber.org/zap"
)

// Options configures the HTTP surface.
type Options struct {
	APIKey         string
	RateLimitRPS   float64
	RateLimitBurst int

	// Ping reports backend health for /health. Nil means always healthy.
	Ping func(ctx context.Context) error
}

// OptionsFromEnv reads Options from the environment.
func OptionsFromEnv() Options {
	return Options{
		APIKey:         config.APIKey(),
		RateLimitRPS:   config.RateLimitRPS(),
		RateLimitBurst: config.RateLimitBurst(),
	}
}

// App holds the router and background services for lifecycle management.
type App struct {
	Router       *chi.Mux
	Sweeper      *service.SymptomSweeper
	RateLimiter  *mw.RateLimiter
	metrics      *mw.MetricsCollector
	startTime    time.Time
	requestCount atomic.Int64
	errorCount   atomic.Int64
}

func NewApp(engine *service.Engine, profiles domain.ProfileStore, opts Options, logger *zap.Logger) *App {
	userHandler := handlers.NewUserHandler(engine)
	decisionHandler := handlers.NewDecisionHandler(engine)

	r := chi.NewRouter()

	app := &App{
		Router:      r,
		Sweeper:     service.NewSymptomSweeper(engine, profiles, logger),
		RateLimiter: mw.NewRateLimiter(opts.RateLimitRPS, opts.RateLimitBurst),
		startTime:   time.Now(),
	}

	app.metrics = mw.NewMetricsCollector(&app.requestCount, &app.errorCount)

	// Global middleware (order matters)
	r.Use(mw.RequestID)                 // Generate/extract request ID first
	r.Use(middleware.RealIP)            // Extract real IP
	r.Use(app.metrics.Middleware)       // Collect metrics
	r.Use(mw.Logging(logger))           // Log all requests
	r.Use(middleware.Recoverer)         // Recover from panics
	r.Use(app.RateLimiter.Middleware()) // Rate limiting

	// No auth
	r.Get("/health", healthHandler(opts.Ping))
	r.Get("/metrics", app.metricsHandler())
	r.Get("/version", versionHandler)

	r.Route("/v1/users/{userID}", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(opts.APIKey))

		// Belief updates
		r.Post("/signals", userHandler.ApplySignal)
		r.Post("/predictions", userHandler.ApplyPrediction)
		r.Post("/perceptions", userHandler.ApplyPerception)
		r.Post("/symptoms", userHandler.ReportSymptom)
		r.Put("/profile", userHandler.SetProfile)

		// Food preferences and restrictions
		r.Post("/allergies", userHandler.AddAllergy)
		r.Post("/dislikes", userHandler.AddDislike)
		r.Post("/contraindications", userHandler.AddContraindication)

		// Decisions and the action log
		r.Post("/decide", decisionHandler.Decide)
		r.Post("/actions", decisionHandler.RecordAction)
		r.Post("/actions/{actionID}/outcome", decisionHandler.RecordOutcome)

		// Read-only views
		r.Get("/summary", userHandler.Summary)
		r.Get("/insights", userHandler.Insights)
		r.Get("/patterns/{food}", userHandler.Pattern)
	})

	return app
}

func healthHandler(ping func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if ping != nil {
			if err := ping(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": err.Error()})
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

func versionHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(buildconfig.VersionInfo())
}

func (app *App) metricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		uptime := time.Since(app.startTime)

		response := map[string]any{
			"uptime_seconds":     uptime.Seconds(),
			"uptime_human":       uptime.Round(time.Second).String(),
			"request_count":      app.requestCount.Load(),
			"error_count":        app.errorCount.Load(),
			"server_error_count": app.metrics.ServerErrors(),
			"decisions":          app.metrics.Decisions(),
			"rate_limited_ips":   app.RateLimiter.Len(),
			"goroutines":         runtime.NumGoroutine(),
			"memory": map[string]any{
				"alloc_mb":       float64(memStats.Alloc) / 1024 / 1024,
				"total_alloc_mb": float64(memStats.TotalAlloc) / 1024 / 1024,
				"sys_mb":         float64(memStats.Sys) / 1024 / 1024,
				"num_gc":         memStats.NumGC,
			},
			"go_version": runtime.Version(),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(response)
	}
}
