package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dharsanguruparan/StreamDrop/internal/formstream"
)

// Upload is one settled multipart request.
type Upload struct {
	ID        string                  `json:"id"`
	Fields    []formstream.FieldEntry `json:"fields"`
	Files     int                     `json:"files"`
	Failed    int                     `json:"failed"`
	Dropped   int                     `json:"dropped"`
	CreatedAt time.Time               `json:"createdAt"`
}

type UploadRepository struct {
	pool *pgxpool.Pool
}

func NewUploadRepository(pool *pgxpool.Pool) *UploadRepository {
	return &UploadRepository{pool: pool}
}

// Create inserts the upload and its queued documents in one transaction.
func (r *UploadRepository) Create(ctx context.Context, up *Upload, docs []*Document) error {
	fields, err := json.Marshal(up.Fields)
	if err != nil {
		return fmt.Errorf("encode fields: %w", err)
	}
	now := time.Now().UTC()
	up.CreatedAt = now
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO uploads (id, fields, file_count, failed_count, dropped_count, created_at)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, up.ID, fields, up.Files, up.Failed, up.Dropped, now); err != nil {
			return fmt.Errorf("insert upload: %w", err)
		}
		for _, doc := range docs {
			doc.UploadID = up.ID
			doc.Status = StatusQueued
			doc.CreatedAt = now
			doc.UpdatedAt = now
			if _, err := tx.Exec(ctx, `
				INSERT INTO documents (id, upload_id, field_name, file_name, content_type, size_bytes, object_key, status, content, created_at, updated_at)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,'',$9,$10)
			`, doc.ID, doc.UploadID, doc.FieldName, doc.FileName, doc.ContentType, doc.SizeBytes, doc.ObjectKey, doc.Status, now, now); err != nil {
				return fmt.Errorf("insert document %s: %w", doc.ID, err)
			}
		}
		return nil
	})
}

// Get returns an upload without its documents.
func (r *UploadRepository) Get(ctx context.Context, id string) (*Upload, error) {
	var (
		up     Upload
		fields []byte
	)
	err := r.pool.QueryRow(ctx, `
		SELECT id, fields, file_count, failed_count, dropped_count, created_at FROM uploads WHERE id=$1
	`, id).Scan(&up.ID, &fields, &up.Files, &up.Failed, &up.Dropped, &up.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("upload %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("select upload: %w", err)
	}
	if err := json.Unmarshal(fields, &up.Fields); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}
	return &up, nil
}
