// Package storage is the in-memory metadata store used in local mode.
package storage

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/dharsanguruparan/StreamDrop/internal/model"
)

var ErrNotFound = errors.New("file not found")

// MemoryStore keeps file records behind an RWMutex. Records handed out are
// copies.
type MemoryStore struct {
	mu    sync.RWMutex
	files map[string]*model.FileRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		files: make(map[string]*model.FileRecord),
	}
}

// Save inserts or replaces a record.
func (m *MemoryStore) Save(record *model.FileRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	stored := *record
	m.files[record.ID] = &stored
}

// Update applies fn to the stored record under the write lock.
func (m *MemoryStore) Update(id string, fn func(*model.FileRecord)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.files[id]
	if !ok {
		return ErrNotFound
	}
	fn(rec)
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

// UpdateStatus sets status and message.
func (m *MemoryStore) UpdateStatus(id string, status model.FileStatus, msg string) error {
	return m.Update(id, func(rec *model.FileRecord) {
		rec.Status = status
		rec.Message = msg
	})
}

func (m *MemoryStore) Get(id string) (*model.FileRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.files[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

// ListByUpload returns the records of one upload, oldest first.
func (m *MemoryStore) ListByUpload(uploadID string) []model.FileRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.FileRecord
	for _, rec := range m.files {
		if rec.UploadID == uploadID {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
