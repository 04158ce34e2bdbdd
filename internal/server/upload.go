package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dharsanguruparan/StreamDrop/internal/formstream"
	"github.com/dharsanguruparan/StreamDrop/internal/model"
	pdfutil "github.com/dharsanguruparan/StreamDrop/internal/pdf"
	"github.com/dharsanguruparan/StreamDrop/internal/processing"
	"github.com/dharsanguruparan/StreamDrop/internal/storage"
)

var (
	ErrEmptyFile      = errors.New("empty file")
	ErrTypeNotAllowed = errors.New("file type not allowed")
)

// sniffLen is what http.DetectContentType looks at.
const sniffLen = 512

type sniffer struct {
	buf []byte
}

func (s *sniffer) Write(p []byte) (int, error) {
	if room := sniffLen - len(s.buf); room > 0 {
		if len(p) < room {
			room = len(p)
		}
		s.buf = append(s.buf, p[:room]...)
	}
	return len(p), nil
}

// FileResult is one file in the upload response.
type FileResult struct {
	ID          string           `json:"id,omitempty"`
	FieldName   string           `json:"fieldName"`
	Name        string           `json:"name"`
	Size        int64            `json:"size"`
	ContentType string           `json:"contentType"`
	Status      model.FileStatus `json:"status"`
	Error       string           `json:"error,omitempty"`
}

type uploadResponse struct {
	UploadID string                  `json:"uploadId"`
	Fields   []formstream.FieldEntry `json:"fields"`
	Files    []FileResult            `json:"files"`
	Dropped  int                     `json:"dropped,omitempty"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxRequestBytes())
	tok, err := formstream.NewFormTokenizer(r.Header, r.Body, s.form)
	if err != nil {
		var fe *formstream.Error
		if !errors.As(err, &fe) {
			fe = &formstream.Error{Code: formstream.CodeRequest, Message: err.Error()}
		}
		respondFailure(w, fe)
		return
	}

	uploadID := uuid.NewString()
	dir := s.uploadDirFor(uploadID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL", "cannot create upload directory")
		return
	}
	log := s.log.WithField("upload_id", uploadID)
	coord := formstream.NewCoordinator[*model.FileRecord](s.form, s.saveTo(uploadID, dir), log)
	outcome := coord.Upload(r.Context(), tok)
	if !outcome.OK() {
		// Handlers still running find the directory gone and fail.
		if err := os.RemoveAll(dir); err != nil {
			log.WithError(err).Warn("remove upload directory")
		}
		respondFailure(w, outcome.Err)
		return
	}

	resp := uploadResponse{
		UploadID: uploadID,
		Fields:   outcome.Result.Fields,
		Files:    make([]FileResult, 0, len(outcome.Result.Files)),
		Dropped:  outcome.Result.Dropped,
	}
	for _, f := range outcome.Result.Files {
		resp.Files = append(resp.Files, s.accept(f, log))
	}
	respondJSON(w, http.StatusAccepted, resp)
}

// saveTo streams each part into dir, sniffing its type on the way.
func (s *Server) saveTo(uploadID, dir string) formstream.Handler[*model.FileRecord] {
	return func(ctx context.Context, part formstream.FilePart) (*model.FileRecord, error) {
		fileID := uuid.NewString()
		path := filepath.Join(dir, fileID)
		dst, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
		if err != nil {
			return nil, err
		}
		sniff := &sniffer{}
		n, err := io.Copy(io.MultiWriter(dst, sniff), part.Stream)
		if closeErr := dst.Close(); err == nil {
			err = closeErr
		}
		contentType := http.DetectContentType(sniff.buf)
		switch {
		case err != nil:
		case n == 0:
			err = ErrEmptyFile
		case !s.allowedType(contentType):
			err = fmt.Errorf("%w: %s", ErrTypeNotAllowed, contentType)
		case ctx.Err() != nil:
			err = ctx.Err()
		}
		if err != nil {
			_ = os.Remove(path)
			return nil, err
		}
		return &model.FileRecord{
			ID:          fileID,
			UploadID:    uploadID,
			FieldName:   part.FieldName,
			Name:        filepath.Base(strings.ReplaceAll(part.FileName, `\`, "/")),
			Size:        n,
			ContentType: contentType,
			Path:        path,
			Status:      model.StatusUploaded,
		}, nil
	}
}

// accept records a stored file, scans it and queues it for processing.
func (s *Server) accept(f formstream.PartResult[*model.FileRecord], log logrus.FieldLogger) FileResult {
	res := FileResult{
		FieldName:   f.FieldName,
		Name:        f.FileName,
		Size:        f.SizeInBytes,
		ContentType: f.ContentType,
	}
	if f.Failed() {
		res.Status = model.StatusFailed
		res.Error = f.Err.Error()
		return res
	}
	rec := f.Data
	s.store.Save(rec)
	res.ID, res.ContentType = rec.ID, rec.ContentType

	if err := s.scan(rec.Path); err != nil {
		_ = os.Remove(rec.Path)
		_ = s.store.UpdateStatus(rec.ID, model.StatusRejected, err.Error())
		log.WithError(err).WithField("file", rec.ID).Warn("file rejected")
		res.Status, res.Error = model.StatusRejected, err.Error()
		return res
	}
	_ = s.store.UpdateStatus(rec.ID, model.StatusScanned, "scan clean")
	_ = s.store.UpdateStatus(rec.ID, model.StatusQueued, "queued for processing")
	res.Status = model.StatusQueued
	if !s.processor.Submit(processing.Job{FileID: rec.ID}) {
		res.Status, res.Error = model.StatusFailed, "processing queue full"
	}
	return res
}

func respondFailure(w http.ResponseWriter, err *formstream.Error) {
	respondError(w, formstream.HTTPStatus(err), string(err.Code), err.Error())
}

// TextStep extracts text from PDFs and plain text files next to the
// original as <path>.txt. Other types complete without extraction.
func TextStep(store *storage.MemoryStore) processing.Step {
	return func(ctx context.Context, rec *model.FileRecord) (string, error) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		data, err := os.ReadFile(rec.Path)
		if err != nil {
			return "", fmt.Errorf("read stored file: %w", err)
		}
		var text string
		switch {
		case pdfutil.IsPDF(data):
			if text, err = pdfutil.ExtractText(data); err != nil {
				return "", err
			}
		case strings.HasPrefix(rec.ContentType, "text/"):
			text = string(data)
		default:
			return "stored without text extraction", nil
		}
		if err := os.WriteFile(rec.Path+".txt", []byte(text), 0o640); err != nil {
			return "", fmt.Errorf("write text: %w", err)
		}
		_ = store.Update(rec.ID, func(r *model.FileRecord) { r.TextBytes = int64(len(text)) })
		return fmt.Sprintf("extracted %s of text", humanize.Bytes(uint64(len(text)))), nil
	}
}
