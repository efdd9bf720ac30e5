// Package web is the HTTP side of the gateway: gRPC-Web, WebSocket push,
// uploads, classification and the operational endpoints.
package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"dermalink-api/internal/api"
	"dermalink-api/internal/blob"
	"dermalink-api/internal/inference"
	"dermalink-api/internal/middleware"
	"dermalink-api/internal/observability"
	"dermalink-api/internal/rpc"
)

type Blobs interface {
	Put(ctx context.Context, userID, filename string, r io.Reader) (*blob.Object, error)
	Handler() http.Handler
}

type Classifier interface {
	Classify(ctx context.Context, filename string, img io.Reader) (*inference.Prediction, error)
}

// History is satisfied by *handler.Handler.
type History interface {
	AddHistory(ctx context.Context, req *api.AddHistoryRequest) (*api.AddHistoryResponse, error)
}

type Config struct {
	Secret    string
	MaxUpload int64
	Log       zerolog.Logger
	Registry  *prometheus.Registry
	// TrustedProxies may set the client address through forwarding headers.
	TrustedProxies []netip.Prefix

	Ready    func(ctx context.Context) error
	Bridge   http.Handler
	Realtime http.Handler
	Blobs    Blobs
	// Classifier may be nil; /v1/classify then answers 503.
	Classifier Classifier
	History    History
}

type Server struct {
	mux *chi.Mux
	cfg Config
}

func New(cfg Config) *Server {
	if cfg.MaxUpload <= 0 {
		cfg.MaxUpload = 10 << 20
	}
	m := chi.NewRouter()
	m.Use(RealIP(cfg.TrustedProxies))
	m.Use(chimw.RequestID)
	m.Use(chimw.Recoverer)
	m.Use(Observe(cfg.Log))

	s := &Server{mux: m, cfg: cfg}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) routes() {
	m := s.mux
	m.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	m.Get("/readyz", s.ready)
	if s.cfg.Registry != nil {
		m.Handle("/metrics", observability.MetricsHandler(s.cfg.Registry))
	}

	if s.cfg.Bridge != nil {
		m.Handle("/"+rpc.ServiceName+"/*", s.cfg.Bridge)
	}
	if s.cfg.Blobs != nil {
		m.Handle("/files/*", http.StripPrefix("/files/", s.cfg.Blobs.Handler()))
	}

	authed := middleware.HTTPAuth(s.cfg.Secret)
	if s.cfg.Realtime != nil {
		m.With(authed).Get("/ws", s.cfg.Realtime.ServeHTTP)
	}
	m.Group(func(r chi.Router) {
		r.Use(authed)
		r.Use(Timeout(60 * time.Second))
		r.Post("/v1/uploads", s.upload)
		r.Post("/v1/classify", s.classify)
	})
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.cfg.Ready(ctx); err != nil {
			s.cfg.Log.Warn().Err(err).Msg("readiness check failed")
			writeProblem(w, r, http.StatusServiceUnavailable, "Service Unavailable", "dependencies not ready")
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
