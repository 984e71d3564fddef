// Package statusui exposes a small HTTP server for watching a harvest run.
//
// Routes:
//
//	GET /         → HTML summary of the current run
//	GET /healthz  → "ok"
//	GET /status   → run counters as JSON
//	GET /metrics  → Prometheus exposition (when a gatherer is configured)
package statusui

import (
	"context"
	"encoding/json"
	"html/template"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"csvharvest/internal/harvest"
)

// Config controls server startup.
type Config struct {
	Addr string
	// Stats returns the counters of the run being watched.
	Stats func() harvest.Stats
	// Gatherer backs /metrics; the route is not mounted when nil.
	Gatherer prometheus.Gatherer
}

// Server serves the status routes.
type Server struct {
	cfg    Config
	router *chi.Mux
	server *http.Server
	tmpl   *template.Template
}

// NewServer constructs a Server with its routes.
func NewServer(cfg Config) *Server {
	if cfg.Stats == nil {
		cfg.Stats = func() harvest.Stats { return harvest.Stats{} }
	}
	s := &Server{
		cfg:    cfg,
		router: chi.NewRouter(),
		tmpl:   template.Must(template.New("index").Parse(indexHTML)),
	}
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.routes()
	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	s.router.Get("/", s.handleIndex)
	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/status", s.handleStatus)
	if s.cfg.Gatherer != nil {
		s.router.Method(http.MethodGet, "/metrics",
			promhttp.HandlerFor(s.cfg.Gatherer, promhttp.HandlerOpts{}))
	}
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe blocks until the server stops. http.ErrServerClosed is
// returned after Shutdown, including when Shutdown ran first.
func (s *Server) ListenAndServe() error {
	log.Info().Str("addr", s.cfg.Addr).Msg("status server listening")
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.cfg.Stats()); err != nil {
		log.Warn().Err(err).Msg("encode status")
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.Execute(w, s.cfg.Stats()); err != nil {
		log.Warn().Err(err).Msg("template error")
	}
}

const indexHTML = `<!doctype html>
<html>
<head><meta charset="utf-8"><title>csvharvest {{.Job}}</title></head>
<body>
<h1>Harvest {{.Job}}</h1>
<p>run {{.RunID}}{{if .Source}} from {{.Source}}{{end}}{{if .Done}} (finished){{end}}</p>
<table>
<tr><th>rows</th><td>{{.Rows}}</td></tr>
<tr><th>stored</th><td>{{.Stored}}</td></tr>
<tr><th>rejected</th><td>{{.Rejected}}</td></tr>
<tr><th>created</th><td>{{.Created}}</td></tr>
<tr><th>unchanged</th><td>{{.Unchanged}}</td></tr>
<tr><th>batches</th><td>{{.Batches}}</td></tr>
</table>
{{if .Err}}<p>error: {{.Err}}</p>{{end}}
</body>
</html>
`
