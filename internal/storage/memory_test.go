package storage

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/StreamDrop/internal/model"
)

func TestSaveGetCopies(t *testing.T) {
	m := NewMemoryStore()
	rec := &model.FileRecord{ID: "a", UploadID: "u", Status: model.StatusUploaded}
	m.Save(rec)
	rec.Status = model.StatusFailed

	got, err := m.Get("a")
	require.NoError(t, err)
	assert.Equal(t, model.StatusUploaded, got.Status)
	assert.False(t, got.CreatedAt.IsZero())

	got.Status = model.StatusComplete
	again, _ := m.Get("a")
	assert.Equal(t, model.StatusUploaded, again.Status)
}

func TestUpdateStatus(t *testing.T) {
	m := NewMemoryStore()
	m.Save(&model.FileRecord{ID: "a"})

	require.NoError(t, m.UpdateStatus("a", model.StatusQueued, "queued"))
	got, _ := m.Get("a")
	assert.Equal(t, model.StatusQueued, got.Status)
	assert.Equal(t, "queued", got.Message)

	assert.ErrorIs(t, m.UpdateStatus("missing", model.StatusQueued, ""), ErrNotFound)
	_, err := m.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListByUpload(t *testing.T) {
	m := NewMemoryStore()
	m.Save(&model.FileRecord{ID: "b", UploadID: "u1"})
	m.Save(&model.FileRecord{ID: "a", UploadID: "u1"})
	m.Save(&model.FileRecord{ID: "c", UploadID: "u2"})

	recs := m.ListByUpload("u1")
	require.Len(t, recs, 2)
	for _, r := range recs {
		assert.Equal(t, "u1", r.UploadID)
	}
	assert.Empty(t, m.ListByUpload("none"))
}

func TestConcurrentUpdates(t *testing.T) {
	m := NewMemoryStore()
	m.Save(&model.FileRecord{ID: "a"})
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.Update("a", func(r *model.FileRecord) { r.TextBytes++ })
		}()
	}
	wg.Wait()
	got, _ := m.Get("a")
	assert.Equal(t, int64(50), got.TextBytes)
}
