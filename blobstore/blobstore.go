package blobstore

import (
	"context"
	"time"
)

// Blobstore is the content-addressed blob collaborator. Implementations key
// blobs by CID; pinning marks content that must survive garbage collection.
type Blobstore interface {
	Add(ctx context.Context, data []byte) (string, error)
	Get(ctx context.Context, contentID string) ([]byte, error)
	Pin(ctx context.Context, contentID string) error
	Unpin(ctx context.Context, contentID string) error
	Pins() map[string]PinInfo
}

// PinInfo records when and how large a pinned blob is.
type PinInfo struct {
	PinnedAt  time.Time `json:"pinned_at"`
	SizeBytes int64     `json:"size_bytes"`
}
