package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/StreamDrop/internal/config"
)

const (
	// ExtractDocumentTask is scheduled for every stored file of a settled upload.
	ExtractDocumentTask = "document:extract"

	extractMaxRetry = 5
	extractTimeout  = 2 * time.Minute
)

// ExtractPayload tells the worker which object to fetch.
type ExtractPayload struct {
	DocumentID  string `json:"document_id"`
	UploadID    string `json:"upload_id"`
	ObjectKey   string `json:"object_key"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
}

// NewExtractTask encodes payload into an asynq task.
func NewExtractTask(payload ExtractPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(ExtractDocumentTask, data,
		asynq.MaxRetry(extractMaxRetry),
		asynq.Timeout(extractTimeout),
	), nil
}

// ParseExtract decodes the payload of an extract task.
func ParseExtract(task *asynq.Task) (ExtractPayload, error) {
	var payload ExtractPayload
	if task.Type() != ExtractDocumentTask {
		return payload, fmt.Errorf("unexpected task type %q", task.Type())
	}
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return payload, fmt.Errorf("decode payload: %w", err)
	}
	if payload.DocumentID == "" || payload.ObjectKey == "" {
		return payload, fmt.Errorf("payload missing document id or object key")
	}
	return payload, nil
}

// RedisOpt converts the redis settings for asynq clients and servers.
func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}
}

// Client enqueues extraction jobs.
type Client struct {
	client *asynq.Client
}

func NewClient(cfg config.RedisConfig) *Client {
	return &Client{client: asynq.NewClient(RedisOpt(cfg))}
}

// EnqueueExtract schedules one extraction job.
func (c *Client) EnqueueExtract(ctx context.Context, payload ExtractPayload) error {
	task, err := NewExtractTask(payload)
	if err != nil {
		return err
	}
	if _, err := c.client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("enqueue extract task: %w", err)
	}
	return nil
}

func (c *Client) Close() error {
	return c.client.Close()
}
