package worker

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	pdfutil "github.com/dharsanguruparan/StreamDrop/internal/pdf"
	"github.com/dharsanguruparan/StreamDrop/internal/queue"
)

// Documents is the slice of the document repository the worker needs.
type Documents interface {
	MarkProcessing(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, msg string) error
	MarkCompleted(ctx context.Context, id, processedKey, content string) error
}

// Objects is the slice of object storage the worker needs.
type Objects interface {
	DownloadRaw(ctx context.Context, key string) ([]byte, error)
	UploadProcessed(ctx context.Context, key string, text []byte) error
}

// Processor handles extract jobs.
type Processor struct {
	docs    Documents
	objects Objects
	log     logrus.FieldLogger
}

func NewProcessor(docs Documents, objects Objects, logger logrus.FieldLogger) *Processor {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Processor{docs: docs, objects: objects, log: logger.WithField("component", "worker")}
}

// Handler registers the extract job handler.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.ExtractDocumentTask, p.HandleExtract)
	return mux
}

// HandleExtract moves one document through processing to completed or
// failed. Unsupported content is failed without retry.
func (p *Processor) HandleExtract(ctx context.Context, task *asynq.Task) error {
	payload, err := queue.ParseExtract(task)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	log := p.log.WithFields(logrus.Fields{"document": payload.DocumentID, "object": payload.ObjectKey})
	failure := func(err error) error {
		log.WithError(err).Warn("extract failed")
		if markErr := p.docs.MarkFailed(ctx, payload.DocumentID, err.Error()); markErr != nil {
			log.WithError(markErr).Error("mark failed")
		}
		return err
	}

	if err := p.docs.MarkProcessing(ctx, payload.DocumentID); err != nil {
		return failure(err)
	}
	data, err := p.objects.DownloadRaw(ctx, payload.ObjectKey)
	if err != nil {
		return failure(err)
	}
	text, err := extract(payload.ContentType, data)
	if err != nil {
		return failure(err)
	}
	processedKey := ProcessedKey(payload.ObjectKey)
	if err := p.objects.UploadProcessed(ctx, processedKey, []byte(text)); err != nil {
		return failure(err)
	}
	if err := p.docs.MarkCompleted(ctx, payload.DocumentID, processedKey, text); err != nil {
		return failure(err)
	}
	log.WithField("text", humanize.Bytes(uint64(len(text)))).Info("document processed")
	return nil
}

func extract(contentType string, data []byte) (string, error) {
	mediaType := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	switch {
	case mediaType == "application/pdf" || pdfutil.IsPDF(data):
		text, err := pdfutil.ExtractText(data)
		if err != nil {
			return "", err
		}
		return storableText(text), nil
	case strings.HasPrefix(mediaType, "text/"):
		return storableText(string(data)), nil
	default:
		return "", fmt.Errorf("no extractor for %q: %w", contentType, asynq.SkipRetry)
	}
}

// storableText makes text acceptable to a Postgres TEXT column: invalid
// UTF-8 becomes U+FFFD and NUL bytes are dropped.
func storableText(text string) string {
	return strings.ReplaceAll(strings.ToValidUTF8(text, "\uFFFD"), "\x00", "")
}

// ProcessedKey maps a raw object key to its processed artifact key.
func ProcessedKey(objectKey string) string {
	base := strings.TrimSuffix(objectKey, path.Ext(objectKey))
	return "processed/" + strings.TrimPrefix(base, "uploads/") + ".txt.gz"
}
