package server

import (
	"context"
	"embed"
	"io/fs"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"kbdash/internal/auth"
	"kbdash/internal/dashboard"
	"kbdash/internal/logger"
	"kbdash/internal/monitor"
)

//go:embed static/*
var embeddedStatic embed.FS

// Dependencies are the components the HTTP surface exposes.
type Dependencies struct {
	Monitor   *monitor.Monitor
	Gateway   *auth.Gateway
	Dashboard *dashboard.Service
	Logger    *logger.Logger
}

// Server wraps HTTP serving of the dashboard page and its API.
type Server struct {
	httpServer *http.Server
	router     chi.Router
	staticFS   fs.FS
	monitor    *monitor.Monitor
	gateway    *auth.Gateway
	dashboard  *dashboard.Service
	log        *logger.Logger
}

// New creates a configured HTTP server.
func New(addr string, deps Dependencies) *Server {
	staticFS, err := fs.Sub(embeddedStatic, "static")
	if err != nil {
		panic("static assets missing: " + err.Error())
	}
	log := deps.Logger
	if log == nil {
		log = logger.NewNop()
	}

	s := &Server{
		staticFS:  staticFS,
		monitor:   deps.Monitor,
		gateway:   deps.Gateway,
		dashboard: deps.Dashboard,
		log:       log.With("component", "server"),
	}
	s.router = s.routes()
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run blocks and serves HTTP traffic.
func (s *Server) Run() error {
	s.log.Info("dashboard listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts the server down.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	fileServer := http.FileServer(http.FS(s.staticFS))
	r.Get("/", s.handleIndex)
	r.Handle("/static/*", http.StripPrefix("/static/", fileServer))
	r.Get("/favicon.ico", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/connectivity", func(r chi.Router) {
			r.Get("/", Middleware(s.handleConnectivity))
			r.Post("/reconnect", Middleware(s.handleReconnect))
			r.Get("/ws", s.handleConnectivityWS)
		})

		r.Get("/session", Middleware(s.handleSession))
		r.Delete("/session", Middleware(s.handleLogout))
		r.Post("/auth/login", Middleware(s.handleLogin))
		r.Post("/auth/register", Middleware(s.handleRegister))

		r.Get("/overview", Middleware(s.handleOverview))
		r.Get("/status", Middleware(s.handleStatus))
		r.Route("/documents", func(r chi.Router) {
			r.Get("/", Middleware(s.handleDocuments))
			r.Post("/", Middleware(s.handleUpload))
			r.Delete("/{id}", Middleware(s.handleDeleteDocument))
		})

		r.Post("/query", Middleware(s.handleQuery))
		r.Post("/query-with-speech", Middleware(s.handleQueryWithSpeech))
		r.Post("/speech", Middleware(s.handleSpeech))
		r.Get("/voices", Middleware(s.handleVoices))

		r.Route("/models", func(r chi.Router) {
			r.Get("/", Middleware(s.handleModels))
			r.Post("/", Middleware(s.handleAddModel))
			r.Delete("/{id}", Middleware(s.handleDeleteModel))
		})
		r.Route("/preferences", func(r chi.Router) {
			r.Get("/", Middleware(s.handlePreferences))
			r.Post("/", Middleware(s.handleSavePreference))
			r.Get("/default", Middleware(s.handleDefaultModel))
			r.Put("/{id}", Middleware(s.handleSavePreference))
			r.Delete("/{id}", Middleware(s.handleDeletePreference))
		})
	})
	return r
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	data, err := fs.ReadFile(s.staticFS, "index.html")
	if err != nil {
		http.Error(w, "index missing", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(data)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(started),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
