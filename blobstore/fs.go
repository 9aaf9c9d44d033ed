package blobstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// FSBlobstore is a local filesystem Blobstore. Blobs are stored one file per
// CID (CIDv1, raw codec, sha2-256), so the path itself is content-derived and
// a second Add of identical bytes is a no-op.
type FSBlobstore struct {
	basePath string

	mu   sync.Mutex
	pins map[string]PinInfo
}

func NewFSBlobstore(config map[string]interface{}) (*FSBlobstore, error) {
	basePath, ok := config["base_path"].(string)
	if !ok || basePath == "" {
		return nil, fmt.Errorf("base_path must be specified")
	}

	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create blobstore directory: %w", err)
	}

	return &FSBlobstore{
		basePath: basePath,
		pins:     make(map[string]PinInfo),
	}, nil
}

// Add writes data under its CID and returns the CID string.
func (b *FSBlobstore) Add(ctx context.Context, data []byte) (string, error) {
	contentID, err := contentIDFor(data)
	if err != nil {
		return "", err
	}

	blobPath := filepath.Join(b.basePath, contentID)
	if _, err := os.Stat(blobPath); err == nil {
		return contentID, nil
	}

	if err := os.WriteFile(blobPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write blob %s: %w", contentID, err)
	}
	return contentID, nil
}

func (b *FSBlobstore) Get(ctx context.Context, contentID string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(b.basePath, contentID))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("blob %s not found", contentID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read blob %s: %w", contentID, err)
	}
	return data, nil
}

// Pin marks a blob as retained. Pinning an unknown CID is an error.
func (b *FSBlobstore) Pin(ctx context.Context, contentID string) error {
	info, err := os.Stat(filepath.Join(b.basePath, contentID))
	if err != nil {
		return fmt.Errorf("cannot pin %s: %w", contentID, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.pins[contentID]; !ok {
		b.pins[contentID] = PinInfo{PinnedAt: time.Now().UTC(), SizeBytes: info.Size()}
	}
	return nil
}

// Unpin drops the retention mark. The blob itself stays on disk until a
// future garbage collection pass; unpinning only makes it eligible.
func (b *FSBlobstore) Unpin(ctx context.Context, contentID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.pins[contentID]; !ok {
		return fmt.Errorf("blob %s is not pinned", contentID)
	}
	delete(b.pins, contentID)
	return nil
}

// Pins returns a snapshot of the pin list.
func (b *FSBlobstore) Pins() map[string]PinInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]PinInfo, len(b.pins))
	for k, v := range b.pins {
		out[k] = v
	}
	return out
}

func contentIDFor(data []byte) (string, error) {
	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return "", fmt.Errorf("failed to hash blob: %w", err)
	}
	return cid.NewCidV1(cid.Raw, mh).String(), nil
}
