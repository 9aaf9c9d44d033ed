package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Journal is an append-only log of marketplace records backed by a single
// JSON array file. Appends are read-modify-write, so they are serialized by
// an internal mutex; the rewrite itself is atomic (write temp, sync, rename),
// so a crash mid-append never corrupts entries already journaled.
type Journal struct {
	path string
	mu   sync.Mutex
}

func New(path string) *Journal {
	return &Journal{path: path}
}

// Append marshals record and appends it to the journal file. A missing file
// is treated as an empty journal.
func (j *Journal) Append(record interface{}) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	entries, err := j.readEntries()
	if err != nil {
		return err
	}

	entry, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal journal record: %w", err)
	}
	entries = append(entries, entry)

	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to marshal journal: %w", err)
	}

	if err := writeAtomic(j.path, data); err != nil {
		return fmt.Errorf("failed to write journal: %w", err)
	}

	return nil
}

// writeAtomic replaces the journal file via a synced temp file and rename, so
// a crash mid-write never corrupts previously journaled entries.
func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create journal directory: %w", err)
	}

	tmpPath := path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := f.Write(data); err == nil {
		err = f.Sync()
	}
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// Read unmarshals the whole journal, in append order, into dest (a pointer to
// a slice). A missing journal file reads as empty.
func (j *Journal) Read(dest interface{}) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	data, err := os.ReadFile(j.path)
	if os.IsNotExist(err) {
		data = []byte("[]")
	} else if err != nil {
		return fmt.Errorf("failed to read journal: %w", err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to decode journal: %w", err)
	}
	return nil
}

// Len returns the number of journaled records.
func (j *Journal) Len() (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	entries, err := j.readEntries()
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

func (j *Journal) readEntries() ([]json.RawMessage, error) {
	data, err := os.ReadFile(j.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode journal: %w", err)
	}
	return entries, nil
}
