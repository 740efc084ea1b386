package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"mislaka/internal/consolidate"
	"mislaka/internal/extract"
	"mislaka/internal/importer"
	mislakamiddleware "mislaka/internal/server/middleware"
	"mislaka/internal/storage"
)

// BatchRunner imports documents; *importer.Runner implements it.
type BatchRunner interface {
	Run(ctx context.Context, docs []extract.Document) (*importer.Batch, error)
}

// Inspector exposes the consolidated field set of one document;
// *extract.Extractor implements it.
type Inspector interface {
	Inspect(doc extract.Document) (*consolidate.FieldSet, error)
}

// ClientLookup reads persisted clients; any storage.ClientRepository
// implements it.
type ClientLookup interface {
	GetClient(ctx context.Context, idNumber string) (storage.ClientRow, error)
}

type Dependencies struct {
	Runner    BatchRunner
	Inspector Inspector
	Clients   ClientLookup // optional; nil disables GET /clients/{id}
}

type Config struct {
	Addr            string
	ShutdownTimeout time.Duration
	MaxUploadBytes  int64
	Dependencies    Dependencies
}

type WebAPI struct {
	router *chi.Mux
	logger *zerolog.Logger
	server *http.Server

	shutdownTimeout time.Duration
}

func NewWebAPI(logger zerolog.Logger, config Config) *WebAPI {
	h := &handler{
		runner:    config.Dependencies.Runner,
		inspector: config.Dependencies.Inspector,
		clients:   config.Dependencies.Clients,
		maxUpload: config.MaxUploadBytes,
	}
	if h.maxUpload <= 0 {
		h.maxUpload = defaultMaxUpload
	}

	router := chi.NewRouter()

	router.Use(mislakamiddleware.Logger(&logger))
	router.Use(middleware.Recoverer)
	router.Use(mislakamiddleware.Metrics)

	router.Get("/healthz", h.health)
	router.Route("/api/v1", func(r chi.Router) {
		r.Post("/imports", h.importBatch)
		r.Post("/inspect", h.inspect)
		if h.clients != nil {
			r.Get("/clients/{id}", h.getClient)
		}
	})

	timeout := config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &WebAPI{
		router: router,
		logger: &logger,
		server: &http.Server{
			Addr:              config.Addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		shutdownTimeout: timeout,
	}
}

// Handler exposes the router, mainly for tests.
func (w *WebAPI) Handler() http.Handler { return w.router }

// Start serves until ctx is cancelled, then shuts down gracefully.
func (w *WebAPI) Start(ctx context.Context) error {
	serverErrors := make(chan error, 1)

	go func() {
		w.logger.Info().Str("addr", w.server.Addr).Msg("starting server")
		serverErrors <- w.server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		w.logger.Info().Msg("shutdown initiated")

		// Give outstanding requests a deadline for completion.
		sctx, cancel := context.WithTimeout(context.Background(), w.shutdownTimeout)
		defer cancel()

		err := w.server.Shutdown(sctx)
		if err != nil {
			w.logger.Error().Err(err).Msg("graceful shutdown failed")
			err = w.server.Close()
		}
		return err
	}
}
