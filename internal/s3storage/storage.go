// Package s3storage keeps raw uploads and processed artifacts in MinIO/S3.
package s3storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/dharsanguruparan/StreamDrop/internal/config"
)

// streamPartSize is the multipart chunk used when the object size is unknown.
const streamPartSize = 16 << 20

// Object describes a stored object.
type Object struct {
	Key  string
	ETag string
	Size int64
}

// Storage wraps the raw and processed buckets.
type Storage struct {
	client          *minio.Client
	rawBucket       string
	processedBucket string
	region          string
}

// New creates a MinIO client.
func New(cfg config.S3Config) (*Storage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	return &Storage{
		client:          client,
		rawBucket:       cfg.RawBucket,
		processedBucket: cfg.ProcessedBucket,
		region:          cfg.Region,
	}, nil
}

// EnsureBuckets creates the raw and processed buckets when missing.
func (s *Storage) EnsureBuckets(ctx context.Context) error {
	for _, bucket := range []string{s.rawBucket, s.processedBucket} {
		exists, err := s.client.BucketExists(ctx, bucket)
		if err != nil {
			return fmt.Errorf("check bucket %s: %w", bucket, err)
		}
		if exists {
			continue
		}
		if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return fmt.Errorf("make bucket %s: %w", bucket, err)
		}
	}
	return nil
}

// PutStream writes r into the raw bucket without knowing its length up
// front. It returns once r reaches EOF or fails.
func (s *Storage) PutStream(ctx context.Context, key string, r io.Reader, contentType string) (Object, error) {
	info, err := s.client.PutObject(ctx, s.rawBucket, key, r, -1, minio.PutObjectOptions{
		ContentType: contentType,
		PartSize:    streamPartSize,
	})
	if err != nil {
		return Object{}, fmt.Errorf("put raw object %s: %w", key, err)
	}
	return Object{Key: key, ETag: info.ETag, Size: info.Size}, nil
}

// RemoveRaw deletes a raw object. Missing objects are not an error.
func (s *Storage) RemoveRaw(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.rawBucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove raw object %s: %w", key, err)
	}
	return nil
}

// RemoveProcessed deletes a processed artifact.
func (s *Storage) RemoveProcessed(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.processedBucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove processed object %s: %w", key, err)
	}
	return nil
}

// DownloadRaw fetches a raw object fully into memory.
func (s *Storage) DownloadRaw(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.rawBucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get raw object: %w", err)
	}
	defer obj.Close()
	buf, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read raw object: %w", err)
	}
	return buf, nil
}

// UploadProcessed stores extracted text gzip-encoded.
func (s *Storage) UploadProcessed(ctx context.Context, key string, text []byte) error {
	data, err := Compress(text)
	if err != nil {
		return err
	}
	opts := minio.PutObjectOptions{
		ContentType:     "text/plain; charset=utf-8",
		ContentEncoding: "gzip",
	}
	if _, err := s.client.PutObject(ctx, s.processedBucket, key, bytes.NewReader(data), int64(len(data)), opts); err != nil {
		return fmt.Errorf("upload processed object: %w", err)
	}
	return nil
}

// PresignProcessedURL returns a signed GET URL for a processed artifact.
func (s *Storage) PresignProcessedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.processedBucket, key, ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign processed object: %w", err)
	}
	return u.String(), nil
}

// Compress gzips data at the default level.
func Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, fmt.Errorf("gzip write: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("gzip close: %w", err)
	}
	return buf.Bytes(), nil
}

// Decompress reverses Compress.
func Decompress(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gzip open: %w", err)
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("gzip read: %w", err)
	}
	return out, nil
}
