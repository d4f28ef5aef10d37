package api

import (
	"context"
	"net/http"
	"time"

	"github.com/cuemby/warren/pkg/auth"
	"github.com/cuemby/warren/pkg/config"
	"github.com/cuemby/warren/pkg/log"
	"github.com/cuemby/warren/pkg/metrics"
	"github.com/cuemby/warren/pkg/packager"
	"github.com/cuemby/warren/pkg/scheduler"
	"github.com/cuemby/warren/pkg/storage"
	"github.com/cuemby/warren/pkg/submission"
	"github.com/cuemby/warren/pkg/validator"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// basePath is the fixed prefix every endpoint in this package is mounted
// under.
const basePath = "/api/v1"

// Server wires the HTTP surface to the persistence, validation, dispatch
// and packaging components the rest of the service already built.
type Server struct {
	router     *mux.Router
	httpServer *http.Server

	store      storage.Store
	registry   *validator.Registry
	dispatcher *scheduler.Dispatcher
	submission *submission.Controller
	packager   *packager.Packager
	accStore   storage.AccountingStore
	verifier   auth.Verifier

	cfg    *config.Config
	logger zerolog.Logger
}

// Deps bundles every component the API needs.
type Deps struct {
	Store      storage.Store
	Registry   *validator.Registry
	Dispatcher *scheduler.Dispatcher
	Submission *submission.Controller
	Packager   *packager.Packager
	Verifier   auth.Verifier
}

// New constructs a Server and registers every route.
func New(cfg *config.Config, deps Deps) *Server {
	s := &Server{
		store:      deps.Store,
		registry:   deps.Registry,
		dispatcher: deps.Dispatcher,
		submission: deps.Submission,
		packager:   deps.Packager,
		accStore:   deps.Store,
		verifier:   deps.Verifier,
		cfg:        cfg,
		logger:     log.WithComponent("api"),
	}
	s.router = s.newRouter()
	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Router exposes the underlying handler, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// ListenAndServe starts the HTTP server; it blocks until the server stops
// or returns an error other than http.ErrServerClosed.
func (s *Server) ListenAndServe() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("api server listening")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) newRouter() *mux.Router {
	root := mux.NewRouter().StrictSlash(true)
	root.Handle("/metrics", metrics.Handler())
	root.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)

	api := root.PathPrefix(basePath).Subrouter()
	api.Use(s.recoverMiddleware)
	api.Use(s.loggingMiddleware)
	api.Use(s.metricsMiddleware)
	api.Use(s.authMiddleware)

	api.HandleFunc("/upload", s.handleUpload).Methods(http.MethodPost)
	api.HandleFunc("/fileids", s.handleFileIDs).Methods(http.MethodGet)
	api.HandleFunc("/download/{id}", s.handleDownload).Methods(http.MethodGet)
	api.HandleFunc("/delete/{id}", s.handleDeleteFile).Methods(http.MethodGet)

	api.HandleFunc("/apps", s.handleApps).Methods(http.MethodGet)
	api.HandleFunc("/app/{name}/describe", s.handleDescribeApp).Methods(http.MethodGet)

	api.HandleFunc("/job", s.handleSubmitJob).Methods(http.MethodPost)
	api.HandleFunc("/jobs", s.handleListJobs).Methods(http.MethodGet)
	api.HandleFunc("/job/{id}/status", s.handleJobStatus).Methods(http.MethodGet)
	api.HandleFunc("/job/{id}/cancel", s.handleJobCancel).Methods(http.MethodGet)
	api.HandleFunc("/job/{id}/output", s.handleJobOutput).Methods(http.MethodGet)
	api.HandleFunc("/job/{id}/sources", s.handleJobSources).Methods(http.MethodGet)
	api.HandleFunc("/job/{id}/output-sources", s.handleJobOutputSources).Methods(http.MethodGet)
	api.HandleFunc("/job/{id}/source-components", s.handleJobSourceComponents).Methods(http.MethodGet)
	api.HandleFunc("/job/{id}/output-components", s.handleJobOutputComponents).Methods(http.MethodGet)
	api.HandleFunc("/job/{id}/preview", s.handleJobPreview).Methods(http.MethodGet)
	api.HandleFunc("/job/{id}/output-plot", s.handleJobOutputPlot).Methods(http.MethodGet)

	api.HandleFunc("/accounting", s.handleAccounting).Methods(http.MethodGet)
	api.HandleFunc("/appstats", s.handleAppStats).Methods(http.MethodGet)

	return root
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, "", map[string]any{"ok": true})
}
