package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dharsanguruparan/StreamDrop/internal/events"
	"github.com/dharsanguruparan/StreamDrop/internal/formstream"
	"github.com/dharsanguruparan/StreamDrop/internal/queue"
	"github.com/dharsanguruparan/StreamDrop/internal/repository"
)

// StoredObject is the per-file result of streaming a part into storage.
type StoredObject struct {
	DocumentID string `json:"documentId"`
	ObjectKey  string `json:"objectKey"`
	ETag       string `json:"etag"`
}

// FileStatus is one file in the upload response.
type FileStatus struct {
	FieldName   string `json:"fieldName"`
	FileName    string `json:"fileName"`
	Encoding    string `json:"encoding"`
	ContentType string `json:"contentType"`
	SizeInBytes int64  `json:"sizeInBytes"`
	DocumentID  string `json:"documentId,omitempty"`
	ObjectKey   string `json:"objectKey,omitempty"`
	ETag        string `json:"etag,omitempty"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
}

// UploadResponse is returned for a settled, successful upload.
type UploadResponse struct {
	UploadID string                  `json:"uploadId"`
	Fields   []formstream.FieldEntry `json:"fields"`
	Files    []FileStatus            `json:"files"`
	Dropped  int                     `json:"dropped,omitempty"`
}

const (
	fileStatusQueued = "queued"
	fileStatusFailed = "failed"
)

// written tracks objects stored for one upload so they can be removed when
// the upload fails. Once sealed, add refuses and the caller removes its
// object itself.
type written struct {
	mu     sync.Mutex
	keys   []string
	sealed bool
}

func (w *written) add(key string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.sealed {
		return false
	}
	w.keys = append(w.keys, key)
	return true
}

func (w *written) seal() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sealed = true
	return w.keys
}

type scope struct {
	uploadID string
	written  *written
}

type scopeKey struct{}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxRequestBytes())
	uploadID := uuid.NewString()
	log := s.log.WithFields(logrus.Fields{"upload_id": uploadID, "request_id": requestID(r.Context())})

	tok, err := formstream.NewFormTokenizer(r.Header, r.Body, s.coordinator.Config())
	if err != nil {
		var fe *formstream.Error
		if !errors.As(err, &fe) {
			fe = &formstream.Error{Code: formstream.CodeRequest, Message: err.Error()}
		}
		s.respondFailure(w, r, uploadID, fe)
		return
	}

	sc := &scope{uploadID: uploadID, written: &written{}}
	ctx := context.WithValue(r.Context(), scopeKey{}, sc)
	outcome := s.coordinator.Upload(ctx, tok)
	if !outcome.OK() {
		s.cleanup(r.Context(), sc.written.seal(), log)
		s.respondFailure(w, r, uploadID, outcome.Err)
		return
	}
	keys := sc.written.seal()

	resp, docs := s.buildResponse(uploadID, outcome.Result)
	up := &repository.Upload{
		ID:      uploadID,
		Fields:  resp.Fields,
		Files:   len(docs),
		Failed:  len(resp.Files) - len(docs),
		Dropped: resp.Dropped,
	}
	if err := s.uploads.Create(r.Context(), up, docs); err != nil {
		log.WithError(err).Error("record upload")
		s.cleanup(r.Context(), keys, log)
		respondError(w, http.StatusInternalServerError, "failed to store metadata")
		return
	}
	s.enqueue(r.Context(), resp, docs, log)
	s.publish(r.Context(), uploadID, events.NewEvent(events.UploadCompleted, "api", map[string]interface{}{
		"uploadId": uploadID,
		"files":    up.Files,
		"failed":   up.Failed,
		"dropped":  up.Dropped,
	}))
	respondJSON(w, http.StatusOK, resp)
}

// storeFile streams one part into the raw bucket.
func (s *Server) storeFile(ctx context.Context, part formstream.FilePart) (StoredObject, error) {
	sc, ok := ctx.Value(scopeKey{}).(*scope)
	if !ok {
		return StoredObject{}, errors.New("upload scope missing from context")
	}
	docID := uuid.NewString()
	key := ObjectKey(sc.uploadID, docID, part.FileName)
	obj, err := s.objects.PutStream(ctx, key, part.Stream, part.ContentType)
	if err != nil {
		return StoredObject{}, err
	}
	if !sc.written.add(key) {
		// The upload settled while this object was being written.
		_ = s.objects.RemoveRaw(context.Background(), key)
		return StoredObject{}, errors.New("upload already settled")
	}
	return StoredObject{DocumentID: docID, ObjectKey: key, ETag: obj.ETag}, nil
}

// ObjectKey is the raw object key of one stored file.
func ObjectKey(uploadID, docID, fileName string) string {
	name := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "file"
	}
	return fmt.Sprintf("uploads/%s/%s/%s", uploadID, docID, name)
}

func (s *Server) buildResponse(uploadID string, res *formstream.Result[StoredObject]) (UploadResponse, []*repository.Document) {
	resp := UploadResponse{
		UploadID: uploadID,
		Fields:   res.Fields,
		Files:    make([]FileStatus, 0, len(res.Files)),
		Dropped:  res.Dropped,
	}
	var docs []*repository.Document
	for _, f := range res.Files {
		fs := FileStatus{
			FieldName:   f.FieldName,
			FileName:    f.FileName,
			Encoding:    f.Encoding,
			ContentType: f.ContentType,
			SizeInBytes: f.SizeInBytes,
		}
		if f.Failed() {
			fs.Status = fileStatusFailed
			fs.Error = f.Err.Error()
			resp.Files = append(resp.Files, fs)
			continue
		}
		fs.DocumentID = f.Data.DocumentID
		fs.ObjectKey = f.Data.ObjectKey
		fs.ETag = f.Data.ETag
		fs.Status = fileStatusQueued
		resp.Files = append(resp.Files, fs)
		docs = append(docs, &repository.Document{
			ID:          f.Data.DocumentID,
			FieldName:   f.FieldName,
			FileName:    f.FileName,
			ContentType: f.ContentType,
			SizeBytes:   f.SizeInBytes,
			ObjectKey:   f.Data.ObjectKey,
		})
	}
	return resp, docs
}

// enqueue schedules extraction; a document whose job cannot be queued is
// marked failed rather than failing the upload.
func (s *Server) enqueue(ctx context.Context, resp UploadResponse, docs []*repository.Document, log logrus.FieldLogger) {
	byID := make(map[string]*FileStatus, len(resp.Files))
	for i := range resp.Files {
		byID[resp.Files[i].DocumentID] = &resp.Files[i]
	}
	for _, doc := range docs {
		err := s.queue.EnqueueExtract(ctx, queue.ExtractPayload{
			DocumentID:  doc.ID,
			UploadID:    resp.UploadID,
			ObjectKey:   doc.ObjectKey,
			FileName:    doc.FileName,
			ContentType: doc.ContentType,
		})
		if err == nil {
			continue
		}
		log.WithError(err).WithField("document", doc.ID).Warn("enqueue extract")
		msg := fmt.Sprintf("enqueue extract: %v", err)
		if markErr := s.docs.MarkFailed(ctx, doc.ID, msg); markErr != nil {
			log.WithError(markErr).Error("mark document failed")
		}
		if fs := byID[doc.ID]; fs != nil {
			fs.Status = fileStatusFailed
			fs.Error = msg
		}
	}
}

func (s *Server) cleanup(ctx context.Context, keys []string, log logrus.FieldLogger) {
	ctx = context.WithoutCancel(ctx)
	for _, key := range keys {
		if err := s.objects.RemoveRaw(ctx, key); err != nil {
			log.WithError(err).WithField("object", key).Warn("remove object")
		}
	}
}

func (s *Server) publish(ctx context.Context, key string, ev events.Event) {
	if err := s.events.Publish(context.WithoutCancel(ctx), key, ev); err != nil {
		s.log.WithError(err).WithField("type", ev.Type).Warn("publish event")
	}
}

func (s *Server) respondFailure(w http.ResponseWriter, r *http.Request, uploadID string, err *formstream.Error) {
	s.publish(r.Context(), uploadID, events.NewEvent(events.UploadFailed, "api", map[string]interface{}{
		"uploadId": uploadID,
		"code":     string(err.Code),
		"message":  err.Message,
	}))
	respondJSON(w, formstream.HTTPStatus(err), errorBody{Error: errorDetail{Code: string(err.Code), Message: err.Error()}})
}
