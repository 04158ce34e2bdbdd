// Package server is the single-process local mode: uploads land on disk,
// metadata lives in memory and downloads go through signed links.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dharsanguruparan/StreamDrop/internal/config"
	"github.com/dharsanguruparan/StreamDrop/internal/formstream"
	"github.com/dharsanguruparan/StreamDrop/internal/processing"
	"github.com/dharsanguruparan/StreamDrop/internal/signing"
	"github.com/dharsanguruparan/StreamDrop/internal/storage"
)

// Server hosts the local-mode HTTP handlers.
type Server struct {
	cfg       *config.Config
	form      formstream.Config
	store     *storage.MemoryStore
	processor *processing.Processor
	signer    *signing.Signer
	uploadDir string
	scan      func(path string) error
	log       logrus.FieldLogger
	once      sync.Once
}

// New creates the upload directory and returns a configured server.
func New(cfg *config.Config, store *storage.MemoryStore, processor *processing.Processor, signer *signing.Signer, logger logrus.FieldLogger) (*Server, error) {
	if err := os.MkdirAll(cfg.UploadDir, 0o750); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Server{
		cfg:       cfg,
		form:      cfg.Form(),
		store:     store,
		processor: processor,
		signer:    signer,
		uploadDir: cfg.UploadDir,
		scan:      signatureScan,
		log:       logger.WithField("component", "server"),
	}, nil
}

// Serve starts the processing workers and the HTTP server and blocks until
// ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	s.once.Do(func() {
		s.processor.Start(ctx)
	})
	httpServer := &http.Server{
		Addr:              s.cfg.Address,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()
	s.log.WithField("addr", s.cfg.Address).Info("local server listening")
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/upload", s.handleUpload)
	mux.HandleFunc("/download", s.handleDownload)
	mux.HandleFunc("/files/", s.handleFileRoute)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleFileRoute(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/files/"), "/"), "/")
	if parts[0] == "" || len(parts) > 2 {
		http.NotFound(w, r)
		return
	}
	id := parts[0]
	if len(parts) == 1 {
		s.handleFileInfo(w, r, id)
		return
	}
	if parts[1] == "signed-url" {
		s.handleSignedURL(w, r, id)
		return
	}
	http.NotFound(w, r)
}

func (s *Server) handleFileInfo(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	record, err := s.store.Get(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "file not found")
		return
	}
	respondJSON(w, http.StatusOK, record)
}

func (s *Server) handleSignedURL(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	if _, err := s.store.Get(id); err != nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "file not found")
		return
	}
	link, expires := s.signer.Link("/download", id, s.cfg.SignedURLTTL)
	respondJSON(w, http.StatusOK, map[string]string{
		"url":     link,
		"expires": strconv.FormatInt(expires.Unix(), 10),
	})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	id, err := s.signer.Verify(r.URL.Query())
	switch {
	case errors.Is(err, signing.ErrMissingParams):
		respondError(w, http.StatusBadRequest, "BAD_LINK", err.Error())
		return
	case err != nil:
		respondError(w, http.StatusUnauthorized, "BAD_LINK", err.Error())
		return
	}
	record, err := s.store.Get(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "file not found")
		return
	}
	f, err := os.Open(record.Path)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL", "file unavailable")
		return
	}
	defer f.Close()
	w.Header().Set("Content-Type", record.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+strings.ReplaceAll(record.Name, `"`, "")+`"`)
	http.ServeContent(w, r, record.Name, record.UpdatedAt, f)
}

func (s *Server) allowedType(contentType string) bool {
	mediaType := strings.TrimSpace(strings.Split(contentType, ";")[0])
	for _, allowed := range s.cfg.AllowedTypes {
		if strings.EqualFold(allowed, mediaType) {
			return true
		}
	}
	return false
}

// signatureScan rejects files containing the test signature "virus".
func signatureScan(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if strings.Contains(strings.ToLower(string(data)), "virus") {
		return errors.New("malware signature detected")
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(payload); err != nil {
		logrus.WithError(err).Warn("encode json failed")
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]map[string]string{
		"error": {"code": code, "message": message},
	})
}

// uploadDirFor is where one upload's files are written.
func (s *Server) uploadDirFor(uploadID string) string {
	return filepath.Join(s.uploadDir, uploadID)
}
