// Package model holds the local-mode file metadata.
package model

import (
	"time"
)

// FileStatus is the lifecycle of a locally stored file.
type FileStatus string

const (
	StatusUploaded   FileStatus = "uploaded"
	StatusScanned    FileStatus = "scanned"
	StatusQueued     FileStatus = "queued"
	StatusProcessing FileStatus = "processing"
	StatusComplete   FileStatus = "complete"
	StatusRejected   FileStatus = "rejected"
	StatusFailed     FileStatus = "failed"
)

// Terminal reports whether no further transition is expected.
func (s FileStatus) Terminal() bool {
	switch s {
	case StatusComplete, StatusRejected, StatusFailed:
		return true
	}
	return false
}

// FileRecord is one file written by a local upload.
type FileRecord struct {
	ID          string     `json:"id"`
	UploadID    string     `json:"uploadId"`
	FieldName   string     `json:"fieldName"`
	Name        string     `json:"name"`
	Size        int64      `json:"size"`
	ContentType string     `json:"contentType"`
	Path        string     `json:"-"`
	Status      FileStatus `json:"status"`
	Message     string     `json:"message,omitempty"`
	TextBytes   int64      `json:"textBytes,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}
