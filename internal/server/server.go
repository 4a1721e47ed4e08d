// Package server exposes the resource service over HTTP.
//
//	GET    /healthz
//	GET    /schema                       summary of every table
//	POST   /schema/refresh               drop every cached description
//	GET    /schema/snapshots             archived summaries, newest first
//	POST   /schema/snapshots             archive the current summary
//	GET    /schema/snapshots/{id}
//	GET    /tables
//	GET    /tables/{table}
//	POST   /tables/{table}/refresh
//	GET    /tables/{table}/records       ?sort=&order=&limit=&offset=&col=v&col[op]=v
//	POST   /tables/{table}/records
//	GET    /tables/{table}/records/{key} composite keys are comma separated
//	PATCH  /tables/{table}/records/{key}
//	DELETE /tables/{table}/records/{key}
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/koustreak/rowgate/internal/logger"
	"github.com/koustreak/rowgate/internal/resource"
	"github.com/koustreak/rowgate/internal/snapshot"
)

// Config holds the HTTP listener settings.
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// MaxBodyBytes caps request bodies.
	MaxBodyBytes int64
}

func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    60 * time.Second,
		IdleTimeout:     2 * time.Minute,
		ShutdownTimeout: 15 * time.Second,
		MaxBodyBytes:    1 << 20,
	}
}

// Pinger reports whether the database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Snapshots is the archive behind /schema/snapshots. *snapshot.Archiver
// implements it.
type Snapshots interface {
	Save(ctx context.Context) (snapshot.Info, error)
	List(ctx context.Context) ([]snapshot.Info, error)
	Load(ctx context.Context, id string) (*snapshot.Document, error)
}

// Server routes HTTP requests to the resource service.
type Server struct {
	cfg       Config
	svc       *resource.Service
	db        Pinger
	snapshots Snapshots
	log       *logger.Logger
	router    chi.Router
}

// New builds the router. snapshots may be nil, in which case the snapshot
// routes answer 404.
func New(cfg Config, svc *resource.Service, db Pinger, snapshots Snapshots, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultConfig().MaxBodyBytes
	}
	s := &Server{
		cfg:       cfg,
		svc:       svc,
		db:        db,
		snapshots: snapshots,
		log:       log.Component("server"),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(recoverer)

	r.Get("/healthz", s.health)

	r.Route("/schema", func(r chi.Router) {
		r.Get("/", s.summary)
		r.Post("/refresh", s.refreshAll)
		r.Get("/snapshots", s.listSnapshots)
		r.Post("/snapshots", s.saveSnapshot)
		r.Get("/snapshots/{id}", s.loadSnapshot)
	})

	r.Route("/tables", func(r chi.Router) {
		r.Get("/", s.listTables)
		r.Route("/{table}", func(r chi.Router) {
			r.Get("/", s.describe)
			r.Post("/refresh", s.refresh)
			r.Get("/records", s.listRecords)
			r.Post("/records", s.createRecord)
			r.Get("/records/{key}", s.getRecord)
			r.Patch("/records/{key}", s.updateRecord)
			r.Delete("/records/{key}", s.deleteRecord)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: errorDetail{Kind: "not_found", Message: "no such route"}})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: errorDetail{Kind: "method_not_allowed", Message: "method not allowed"}})
	})
	return r
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves until ctx is done, then drains in-flight requests for up to
// ShutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return s.log.WithContext(context.Background()) },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.InfoEvent().Str("addr", s.cfg.Addr).Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
