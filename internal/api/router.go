// Package api exposes card reconciliation over HTTP.
package api

import (
	"net/http"
	"time"

	"card-reconciliation-service/pkg/logger"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/cors"
)

// RouterConfig configures the HTTP surface.
type RouterConfig struct {
	AllowedOrigins []string
}

// NewRouter creates the chi router with all routes mounted.
func NewRouter(runner Runner, config RouterConfig, log logger.Logger) http.Handler {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	log = log.WithComponent("api")

	h := &Handlers{
		runner:   runner,
		validate: validator.New(),
		logger:   log,
	}

	origins := config.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	for _, o := range origins {
		if o == "*" {
			h.anyOrigin = true
		}
	}
	c := cors.New(cors.Options{
		AllowedOrigins:     origins,
		AllowedMethods:     []string{http.MethodPost, http.MethodOptions},
		AllowedHeaders:     []string{"Content-Type", "Authorization"},
		OptionsPassthrough: true,
	})

	r := chi.NewRouter()

	// Middleware.
	r.Use(middleware.RequestID)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(c.Handler)

	r.Post("/reconcile-card", h.ReconcileCard)
	r.Options("/reconcile-card", h.Preflight)
	r.Get("/healthz", h.Health)

	return r
}

// requestLogger logs one line per request through the service logger.
func requestLogger(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			defer func() {
				fields := logger.Fields{
					"method":      r.Method,
					"path":        r.URL.Path,
					"status":      ww.Status(),
					"bytes":       ww.BytesWritten(),
					"duration_ms": time.Since(start).Milliseconds(),
					"request_id":  middleware.GetReqID(r.Context()),
				}
				entry := log.WithFields(fields)
				if ww.Status() >= http.StatusInternalServerError {
					entry.Warn("Request failed")
					return
				}
				entry.Info("Request served")
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
