// Package api is the full-stack HTTP surface: uploads stream into object
// storage through the form coordinator, metadata goes to Postgres, and
// extraction jobs go to the queue.
package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dharsanguruparan/StreamDrop/internal/config"
	"github.com/dharsanguruparan/StreamDrop/internal/events"
	"github.com/dharsanguruparan/StreamDrop/internal/formstream"
	"github.com/dharsanguruparan/StreamDrop/internal/queue"
	"github.com/dharsanguruparan/StreamDrop/internal/repository"
	"github.com/dharsanguruparan/StreamDrop/internal/s3storage"
)

// ObjectStore is the object storage used by the API.
type ObjectStore interface {
	PutStream(ctx context.Context, key string, r io.Reader, contentType string) (s3storage.Object, error)
	RemoveRaw(ctx context.Context, key string) error
	RemoveProcessed(ctx context.Context, key string) error
	PresignProcessedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

type UploadStore interface {
	Create(ctx context.Context, up *repository.Upload, docs []*repository.Document) error
	Get(ctx context.Context, id string) (*repository.Upload, error)
}

type DocumentStore interface {
	Get(ctx context.Context, id string) (*repository.Document, error)
	ListByUpload(ctx context.Context, uploadID string) ([]repository.Document, error)
	Delete(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, msg string) error
}

type Enqueuer interface {
	EnqueueExtract(ctx context.Context, payload queue.ExtractPayload) error
}

// Deps are the collaborators of a Server. Events may be nil.
type Deps struct {
	Uploads   UploadStore
	Documents DocumentStore
	Objects   ObjectStore
	Queue     Enqueuer
	Events    events.Publisher
	Logger    logrus.FieldLogger
}

// Server exposes upload and document endpoints.
type Server struct {
	cfg         *config.Config
	uploads     UploadStore
	docs        DocumentStore
	objects     ObjectStore
	queue       Enqueuer
	events      events.Publisher
	log         logrus.FieldLogger
	coordinator *formstream.Coordinator[StoredObject]
}

func New(cfg *config.Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	pub := deps.Events
	if pub == nil {
		pub = events.Nop{}
	}
	s := &Server{
		cfg:     cfg,
		uploads: deps.Uploads,
		docs:    deps.Documents,
		objects: deps.Objects,
		queue:   deps.Queue,
		events:  pub,
		log:     logger.WithField("component", "api"),
	}
	// Per-request state reaches the handler through the context; see storeFile.
	s.coordinator = formstream.NewCoordinator[StoredObject](cfg.Form(), s.storeFile, logger)
	return s
}

// Handler returns the routed handler wrapped in middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/uploads", s.handleUploads)
	mux.HandleFunc("/uploads/", s.handleUploadRoute)
	mux.HandleFunc("/documents/", s.handleDocumentRoute)
	return recoveryMiddleware(s.log, requestIDMiddleware(loggingMiddleware(s.log, corsMiddleware(mux))))
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	s.log.WithField("addr", s.cfg.Address).Info("api listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleUploads(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.handleUpload(w, r)
}

func (s *Server) handleUploadRoute(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/uploads/"), "/")
	if id == "" || strings.Contains(id, "/") {
		respondError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.handleGetUpload(w, r, id)
}

func (s *Server) handleDocumentRoute(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/documents/"), "/"), "/")
	id := parts[0]
	if id == "" || len(parts) > 2 {
		respondError(w, http.StatusNotFound, "not found")
		return
	}
	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			s.handleDocument(w, r, id)
		case http.MethodDelete:
			s.handleDeleteDocument(w, r, id)
		default:
			respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
		return
	}
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	switch parts[1] {
	case "text":
		s.handleDocumentText(w, r, id)
	case "processed-url":
		s.handleProcessedURL(w, r, id)
	default:
		respondError(w, http.StatusNotFound, "not found")
	}
}
