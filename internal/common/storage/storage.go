// Package storage defines the attachment store used for submission
// source code, test-case files, and execution output capture.
package storage

import (
	"context"
	"time"
)

// AttachmentRef points at one stored object.
type AttachmentRef struct {
	Bucket      string `json:"bucket"`
	Key         string `json:"key"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
}

// AttachmentStore is the minimal object storage surface the judge core
// needs. Implementations can be swapped (MinIO, S3) without touching
// business logic.
type AttachmentStore interface {
	// Upload stores bytes under the ref's bucket/key.
	Upload(ctx context.Context, ref AttachmentRef, data []byte) error

	// Download fetches the full object.
	Download(ctx context.Context, ref AttachmentRef) ([]byte, error)

	// Stat returns size and content type, for pre-judging validation.
	Stat(ctx context.Context, ref AttachmentRef) (AttachmentStat, error)
}

// AttachmentStat contains object metadata used for validation.
type AttachmentStat struct {
	SizeBytes    int64
	ContentType  string
	LastModified time.Time
}
