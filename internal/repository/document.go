package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// DocumentStatus is the extraction lifecycle of a stored file.
type DocumentStatus string

const (
	StatusQueued     DocumentStatus = "queued"
	StatusProcessing DocumentStatus = "processing"
	StatusCompleted  DocumentStatus = "completed"
	StatusFailed     DocumentStatus = "failed"
)

// Document is one stored file of an upload.
type Document struct {
	ID           string         `json:"id"`
	UploadID     string         `json:"uploadId"`
	FieldName    string         `json:"fieldName"`
	FileName     string         `json:"fileName"`
	ContentType  string         `json:"contentType"`
	SizeBytes    int64          `json:"sizeBytes"`
	ObjectKey    string         `json:"objectKey"`
	ProcessedKey *string        `json:"processedKey,omitempty"`
	Status       DocumentStatus `json:"status"`
	Content      string         `json:"-"`
	ErrorMessage *string        `json:"errorMessage,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

const documentColumns = `id, COALESCE(upload_id,''), field_name, file_name, content_type, size_bytes,
	object_key, processed_key, status, COALESCE(content,''), error_message, created_at, updated_at`

// DocumentRepository holds the document SQL used by the API and worker.
type DocumentRepository struct {
	pool *pgxpool.Pool
}

func NewDocumentRepository(pool *pgxpool.Pool) *DocumentRepository {
	return &DocumentRepository{pool: pool}
}

// Get returns a document by id.
func (r *DocumentRepository) Get(ctx context.Context, id string) (*Document, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id=$1`, id)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("select document: %w", err)
	}
	return doc, nil
}

// ListByUpload returns the documents of an upload in insertion order.
func (r *DocumentRepository) ListByUpload(ctx context.Context, uploadID string) ([]Document, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+documentColumns+` FROM documents WHERE upload_id=$1 ORDER BY created_at, id`, uploadID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()
	docs := []Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

// Delete removes a document row.
func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM documents WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	return nil
}

func (r *DocumentRepository) MarkProcessing(ctx context.Context, id string) error {
	return r.updateStatus(ctx, id, StatusProcessing, nil, nil, nil)
}

// MarkFailed records the failure message.
func (r *DocumentRepository) MarkFailed(ctx context.Context, id string, msg string) error {
	return r.updateStatus(ctx, id, StatusFailed, nil, nil, &msg)
}

// MarkCompleted stores the processed artifact key and extracted text.
func (r *DocumentRepository) MarkCompleted(ctx context.Context, id, processedKey, content string) error {
	return r.updateStatus(ctx, id, StatusCompleted, &processedKey, &content, nil)
}

func (r *DocumentRepository) updateStatus(ctx context.Context, id string, status DocumentStatus, processedKey, content, errorMsg *string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE documents
		SET status=$1,
			processed_key = COALESCE($2, processed_key),
			content = COALESCE($3, content),
			error_message = $4,
			updated_at=$5
		WHERE id=$6
	`, status, processedKey, content, errorMsg, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	return nil
}

func scanDocument(row pgx.Row) (*Document, error) {
	var (
		doc          Document
		processedKey sql.NullString
		errorMsg     sql.NullString
	)
	if err := row.Scan(&doc.ID, &doc.UploadID, &doc.FieldName, &doc.FileName, &doc.ContentType, &doc.SizeBytes,
		&doc.ObjectKey, &processedKey, &doc.Status, &doc.Content, &errorMsg, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return nil, err
	}
	if processedKey.Valid {
		key := processedKey.String
		doc.ProcessedKey = &key
	}
	if errorMsg.Valid {
		msg := errorMsg.String
		doc.ErrorMessage = &msg
	}
	return &doc, nil
}
