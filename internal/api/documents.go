package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/dharsanguruparan/StreamDrop/internal/events"
	"github.com/dharsanguruparan/StreamDrop/internal/repository"
)

// UploadView is an upload with its documents.
type UploadView struct {
	*repository.Upload
	Documents []repository.Document `json:"documents"`
}

func (s *Server) handleGetUpload(w http.ResponseWriter, r *http.Request, id string) {
	up, err := s.uploads.Get(r.Context(), id)
	if err != nil {
		s.respondLookupError(w, err, "upload")
		return
	}
	docs, err := s.docs.ListByUpload(r.Context(), id)
	if err != nil {
		s.log.WithError(err).Error("list documents")
		respondError(w, http.StatusInternalServerError, "failed to list documents")
		return
	}
	respondJSON(w, http.StatusOK, UploadView{Upload: up, Documents: docs})
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request, id string) {
	doc, err := s.docs.Get(r.Context(), id)
	if err != nil {
		s.respondLookupError(w, err, "document")
		return
	}
	respondJSON(w, http.StatusOK, doc)
}

func (s *Server) handleDocumentText(w http.ResponseWriter, r *http.Request, id string) {
	doc, err := s.docs.Get(r.Context(), id)
	if err != nil {
		s.respondLookupError(w, err, "document")
		return
	}
	if doc.Status != repository.StatusCompleted {
		respondJSON(w, http.StatusAccepted, map[string]string{"status": string(doc.Status)})
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, doc.Content)
}

func (s *Server) handleProcessedURL(w http.ResponseWriter, r *http.Request, id string) {
	doc, err := s.docs.Get(r.Context(), id)
	if err != nil {
		s.respondLookupError(w, err, "document")
		return
	}
	if doc.ProcessedKey == nil {
		respondError(w, http.StatusNotFound, "processed artifact unavailable")
		return
	}
	url, err := s.objects.PresignProcessedURL(r.Context(), *doc.ProcessedKey, s.cfg.SignedURLTTL)
	if err != nil {
		s.log.WithError(err).Error("presign")
		respondError(w, http.StatusInternalServerError, "failed to generate url")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"url": url})
}

// handleDeleteDocument removes the stored objects before the row so a
// failed removal can be retried.
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request, id string) {
	doc, err := s.docs.Get(r.Context(), id)
	if err != nil {
		s.respondLookupError(w, err, "document")
		return
	}
	if err := s.objects.RemoveRaw(r.Context(), doc.ObjectKey); err != nil {
		s.log.WithError(err).Error("remove raw object")
		respondError(w, http.StatusBadGateway, "failed to remove object")
		return
	}
	if doc.ProcessedKey != nil {
		if err := s.objects.RemoveProcessed(r.Context(), *doc.ProcessedKey); err != nil {
			s.log.WithError(err).Error("remove processed object")
			respondError(w, http.StatusBadGateway, "failed to remove object")
			return
		}
	}
	if err := s.docs.Delete(r.Context(), id); err != nil {
		s.respondLookupError(w, err, "document")
		return
	}
	s.publish(r.Context(), doc.UploadID, events.NewEvent(events.DocumentDeleted, "api", map[string]interface{}{
		"documentId": id,
		"uploadId":   doc.UploadID,
	}))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) respondLookupError(w http.ResponseWriter, err error, what string) {
	if errors.Is(err, repository.ErrNotFound) {
		respondError(w, http.StatusNotFound, what+" not found")
		return
	}
	s.log.WithError(err).Errorf("load %s", what)
	respondError(w, http.StatusInternalServerError, "failed to load "+what)
}
