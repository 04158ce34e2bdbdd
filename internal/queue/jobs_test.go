package queue

import (
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/StreamDrop/internal/config"
)

func TestExtractTask(t *testing.T) {
	in := ExtractPayload{
		DocumentID:  "doc-1",
		UploadID:    "up-1",
		ObjectKey:   "uploads/up-1/doc-1/report.pdf",
		FileName:    "report.pdf",
		ContentType: "application/pdf",
	}
	task, err := NewExtractTask(in)
	require.NoError(t, err)
	assert.Equal(t, ExtractDocumentTask, task.Type())

	out, err := ParseExtract(task)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestParseExtractRejects(t *testing.T) {
	_, err := ParseExtract(asynq.NewTask("other:task", []byte(`{}`)))
	assert.Error(t, err)

	_, err = ParseExtract(asynq.NewTask(ExtractDocumentTask, []byte(`{bad`)))
	assert.Error(t, err)

	_, err = ParseExtract(asynq.NewTask(ExtractDocumentTask, []byte(`{"document_id":"d"}`)))
	assert.Error(t, err)
}

func TestRedisOpt(t *testing.T) {
	opt := RedisOpt(config.RedisConfig{Addr: "redis:6379", Password: "pw", DB: 2})
	assert.Equal(t, "redis:6379", opt.Addr)
	assert.Equal(t, "pw", opt.Password)
	assert.Equal(t, 2, opt.DB)
}
