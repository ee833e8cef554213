// Package web serves the upload form, the CSV upload endpoint and read-only
// JSON views of the policy tables.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/ulule/limiter/v3"
	limitermw "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/JonMunkholm/policyimport/internal/config"
	"github.com/JonMunkholm/policyimport/internal/core"
	"github.com/JonMunkholm/policyimport/internal/metrics"
	"github.com/JonMunkholm/policyimport/internal/store"
	"github.com/JonMunkholm/policyimport/internal/web/middleware"
)

// Importer runs one CSV import into the store at storePath.
type Importer interface {
	Import(ctx context.Context, storePath, sourcePath string) (*core.Result, error)
}

// Server is the HTTP server of the policy import service.
type Server struct {
	cfg      *config.Config
	store    store.Store
	importer Importer
	limiter  *core.ImportLimiter
	router   *chi.Mux
	server   *http.Server
}

// NewServer wires the router. st is the process-owned handle used by the
// read routes; imports open their own connection through im.
func NewServer(cfg *config.Config, st store.Store, im Importer, limiter *core.ImportLimiter) *Server {
	s := &Server{
		cfg:      cfg,
		store:    st,
		importer: im,
		limiter:  limiter,
		router:   chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)

	s.router.Use(cors.New(cors.Options{
		AllowedOrigins: s.cfg.Security.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	}).Handler)

	s.router.Use(securityHeaders(s.cfg.Security.EnableCSP))

	if s.cfg.Rate.Enabled {
		s.router.Use(rateLimit(s.cfg.Rate.RequestsPerMinute))
	}
}

func (s *Server) setupRoutes() {
	s.router.Post("/upload-csv", s.handleUpload)

	// Uploads run to completion; only reads are bounded
	s.router.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(s.cfg.Server.RequestTimeout))

		r.Get("/", s.handleIndex)
		r.Get("/healthz", s.handleHealth)
		r.Get("/insurance_policies", s.handleListAggregate)
		r.Get("/insurance_policies/imports", s.handleListImports)
		r.Get("/insurance_policies/imports/{table}", s.handleListImport)
	})

	if s.cfg.Metrics.Enabled {
		s.router.Handle(s.cfg.Metrics.Path, metrics.Handler())
	}
}

// Start listens on the configured address until Shutdown.
func (s *Server) Start() error {
	srv := s.cfg.Server
	s.server = &http.Server{
		Addr:         srv.Addr(),
		Handler:      s.router,
		ReadTimeout:  srv.ReadTimeout,
		WriteTimeout: srv.WriteTimeout,
		IdleTimeout:  srv.IdleTimeout,
	}

	slog.Info("starting server", "addr", srv.Addr())
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

const contentSecurityPolicy = "default-src 'self'; script-src 'self' 'unsafe-inline'; style-src 'self' 'unsafe-inline'; img-src 'self' data:"

func securityHeaders(enableCSP bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			if enableCSP {
				h.Set("Content-Security-Policy", contentSecurityPolicy)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// rateLimit limits each client IP to perMinute requests per minute using an
// in-memory store.
func rateLimit(perMinute int) func(http.Handler) http.Handler {
	rate := limiter.Rate{Period: time.Minute, Limit: int64(perMinute)}
	instance := limiter.New(memory.NewStore(), rate)

	mw := limitermw.NewMiddleware(instance,
		limitermw.WithLimitReachedHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", strconv.Itoa(int(rate.Period.Seconds())))
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		}),
	)
	return mw.Handler
}

// writeError writes a {"error": message} body.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSONStatus(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

// writeJSONStatus encodes v before sending headers, so an encoding error
// becomes a 500 instead of a truncated body.
func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("json encode error", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"Internal server error","code":"ERR000"}` + "\n"))
		return
	}
	w.WriteHeader(status)
	w.Write(append(data, '\n'))
}
