// Package web provides the JSON HTTP API over the dynamic-schema data layer.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/dynatable/internal/config"
	"github.com/JonMunkholm/dynatable/internal/core"
	mw "github.com/JonMunkholm/dynatable/internal/web/middleware"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services are the engines the handlers call into.
type Services struct {
	Store      Pinger
	Schema     *core.SchemaManager
	Records    *core.RecordEngine
	Importer   *core.Importer
	Dispatcher *core.Dispatcher
}

// Server is the HTTP server for the dynatable API.
type Server struct {
	cfg    *config.Config
	svc    Services
	router *chi.Mux
	server *http.Server
}

// NewServer wires middleware and routes. cfg supplies timeouts, upload limits
// and rate limits.
func NewServer(cfg *config.Config, svc Services) *Server {
	s := &Server{
		cfg:    cfg,
		svc:    svc,
		router: chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(mw.TrustedRealIP(s.cfg.Rate.TrustedProxies))
	s.router.Use(mw.Logger)
	s.router.Use(chimw.Recoverer)
	s.router.Use(chimw.Compress(5))
	if s.cfg.Server.RequestTimeout > 0 {
		s.router.Use(chimw.Timeout(s.cfg.Server.RequestTimeout))
	}
	s.router.Use(securityHeaders)

	if s.cfg.Rate.Enabled {
		s.router.Use(mw.NewRateLimiter(s.cfg.Rate.RequestsPerMinute).Handler)
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		// Schema
		r.Post("/create-table/", s.handleCreateTable)
		r.Post("/add-column/", s.handleAddColumn)
		r.Delete("/delete-table/", s.handleDeleteTable)
		r.Get("/describe-table/", s.handleDescribeTable)

		// Records
		r.Post("/insert-record/", s.handleInsertRecord)
		r.Get("/get-records/", s.handleGetRecords)
		r.Put("/update-record/", s.handleUpdateRecord)
		r.Delete("/delete-record/", s.handleDeleteRecord)

		// Imports
		upload := r
		if s.cfg.Rate.Enabled {
			upload = r.With(mw.NewRateLimiter(s.cfg.Rate.UploadLimit).Handler)
		}
		upload.Post("/upload-csv/", s.handleUploadCSV)
		r.Get("/jobs", s.handleListJobs)
		r.Get("/jobs/{jobID}", s.handleGetJob)
	})
}

// Start listens until Shutdown is called; it then returns http.ErrServerClosed.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("starting server", "addr", s.server.Addr)
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

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

// messageResponse is the body of successful mutations.
type messageResponse struct {
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// writeJSON encodes v with the given status.
// Encoding errors are only logged since the header is already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Store.Ping(r.Context()); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
