package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"shareonair/internal/metrics"
	"shareonair/internal/share"
)

type Config struct {
	Addr           string   // e.g. ":5000"
	BasePath       string   // every route is also served under this prefix, e.g. "/api"
	CORSOrigins    []string // allowed origins
	MaxUploadBytes int64    // largest accepted file
	RateLimit      int      // requests per minute per client IP, 0 disables
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	StoreName      string // reported by the root banner
	Version        string
}

// Deps are the collaborators the handlers call into.
type Deps struct {
	Manager  *share.Manager
	Store    share.Store
	Blobs    share.BlobStore
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer // source for /metrics, prometheus.DefaultGatherer when nil
}

type Server struct {
	cfg        Config
	manager    *share.Manager
	store      share.Store
	blobs      share.BlobStore
	log        *zap.Logger
	metrics    *metrics.Metrics
	validate   *validator.Validate
	limiter    *rateLimiter
	started    time.Time
	handler    http.Handler
	httpServer *http.Server
}

func New(cfg Config, deps Deps) *Server {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	cfg.BasePath = strings.TrimSuffix(cfg.BasePath, "/")
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		cfg:      cfg,
		manager:  deps.Manager,
		store:    deps.Store,
		blobs:    deps.Blobs,
		log:      deps.Logger.With(zap.String("service", "http")),
		metrics:  deps.Metrics,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		started:  time.Now(),
	}
	if cfg.RateLimit > 0 {
		s.limiter = newRateLimiter(cfg.RateLimit, time.Minute)
	}
	s.handler = s.routes(deps.Gatherer)

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) routes(gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Content-Disposition", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))
	r.Use(middleware.RealIP)
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(securityHeadersMiddleware)

	r.Get("/health", s.HandleHealth)
	r.Get("/ready", s.HandleReady)
	r.Get("/live", s.HandleLive)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Group(s.shareRoutes)
	if s.cfg.BasePath != "" {
		r.Route(s.cfg.BasePath, s.shareRoutes)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Endpoint not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
	return r
}

func (s *Server) shareRoutes(r chi.Router) {
	if s.limiter != nil {
		r.Use(s.limiter.middleware)
	}
	r.Get("/", s.handleRoot)
	r.Post("/upload", s.handleUpload)
	r.Get("/retrieve/{code}", s.handleRetrieve)
	r.Get("/download/{code}", s.handleDownload)
	r.Get("/stats", s.handleStats)
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	s.log.Info("listening", zap.String("addr", ln.Addr().String()))
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.limiter != nil {
		s.limiter.stop()
	}
	return s.httpServer.Shutdown(ctx)
}
