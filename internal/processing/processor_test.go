package processing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dharsanguruparan/StreamDrop/internal/model"
	"github.com/dharsanguruparan/StreamDrop/internal/storage"
)

func statusOf(store *storage.MemoryStore, id string) model.FileStatus {
	rec, err := store.Get(id)
	if err != nil {
		return ""
	}
	return rec.Status
}

func TestProcessorCompletesAndFails(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := storage.NewMemoryStore()
	store.Save(&model.FileRecord{ID: "ok", Status: model.StatusQueued})
	store.Save(&model.FileRecord{ID: "bad", Status: model.StatusQueued})

	step := func(_ context.Context, rec *model.FileRecord) (string, error) {
		if rec.ID == "bad" {
			return "", errors.New("cannot parse")
		}
		return "extracted 3 bytes", nil
	}
	logger, _ := test.NewNullLogger()
	p := New(store, 2, step, logger)
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)

	require.True(t, p.Submit(Job{FileID: "ok"}))
	require.True(t, p.Submit(Job{FileID: "bad"}))

	assert.Eventually(t, func() bool {
		return statusOf(store, "ok") == model.StatusComplete && statusOf(store, "bad") == model.StatusFailed
	}, time.Second, 5*time.Millisecond)

	rec, _ := store.Get("bad")
	assert.Equal(t, "cannot parse", rec.Message)

	cancel()
	p.Wait()
}

func TestSubmitFullQueueFailsFile(t *testing.T) {
	store := storage.NewMemoryStore()
	logger, _ := test.NewNullLogger()
	p := New(store, 1, nil, logger)
	for i := 0; i < 4; i++ {
		require.True(t, p.Submit(Job{FileID: "queued"}))
	}
	store.Save(&model.FileRecord{ID: "late"})

	assert.False(t, p.Submit(Job{FileID: "late"}))
	assert.Equal(t, model.StatusFailed, statusOf(store, "late"))
}
