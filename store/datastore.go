package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/datanovaai/marketplace-backend/blobstore"
	"github.com/datanovaai/marketplace-backend/pkg/journal"
	"github.com/datanovaai/marketplace-backend/processor"
)

const hashChunkSize = 4096

// DataStore persists raw dataset bytes plus metadata records under generated
// dataset identifiers. Two related records are written per dataset: an
// <id>.data file holding the raw bytes and an <id>.meta file holding the
// structured metadata as JSON. Raw-byte persistence can optionally be
// delegated to an attached content-addressed blobstore, in which case the
// metadata record carries the blob CID instead of a local data file.
type DataStore struct {
	storagePath string
	journal     *journal.Journal
	blobs       blobstore.Blobstore
	processors  []processor.Processor

	// Guards all mutations of the storage directory and the journal.
	// Reads only take the read lock.
	mu sync.RWMutex
}

// metadataRecord is the on-disk shape of an <id>.meta file. The embedded
// Metadata fields stay at the top level so listing filters see them directly.
type metadataRecord struct {
	Metadata
	BlobCID string `json:"blob_cid,omitempty"`
}

func NewDataStore(config map[string]interface{}) (*DataStore, error) {
	storagePath, ok := config["storage_path"].(string)
	if !ok || storagePath == "" {
		storagePath = "data"
	}

	if err := os.MkdirAll(storagePath, 0755); err != nil {
		return nil, &StorageError{Op: "init", Err: err}
	}

	journalPath, ok := config["journal_path"].(string)
	if !ok || journalPath == "" {
		journalPath = filepath.Join(storagePath, "transactions.json")
	}

	return &DataStore{
		storagePath: storagePath,
		journal:     journal.New(journalPath),
	}, nil
}

// AttachBlobstore delegates raw-byte persistence to bs. Must be called before
// the first Store; datasets written earlier keep their local data files.
func (d *DataStore) AttachBlobstore(bs blobstore.Blobstore) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.blobs = bs
}

func (d *DataStore) Subscribe(p processor.Processor) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.processors = append(d.processors, p)
}

// Store streams the dataset bytes from r, computing the SHA-256 content hash
// in fixed-size chunks, and persists both records under a freshly generated
// dataset ID. The returned ID is unique across concurrent calls: the suffix
// is derived from a random UUID rather than anything path- or time-derived.
func (d *DataStore) Store(ctx context.Context, r io.Reader, meta Metadata) (string, error) {
	if !meta.DataType.Valid() {
		return "", fmt.Errorf("invalid data_type %q", meta.DataType)
	}

	datasetID := generateDatasetID()

	d.mu.Lock()
	defer d.mu.Unlock()

	record := metadataRecord{Metadata: meta}

	if d.blobs != nil {
		data, err := io.ReadAll(r)
		if err != nil {
			return "", &StorageError{Op: "read source", Err: err}
		}
		hashSum := sha256.Sum256(data)
		record.FileHash = hex.EncodeToString(hashSum[:])
		record.SizeBytes = int64(len(data))

		cid, err := d.blobs.Add(ctx, data)
		if err != nil {
			return "", &StorageError{Op: "blobstore add", Err: err}
		}
		if err := d.blobs.Pin(ctx, cid); err != nil {
			return "", &StorageError{Op: "blobstore pin", Err: err}
		}
		record.BlobCID = cid
	} else {
		hash, size, err := d.writeDataFile(datasetID, r)
		if err != nil {
			return "", err
		}
		record.FileHash = hash
		record.SizeBytes = size
	}

	if err := d.writeMetadata(datasetID, record); err != nil {
		// Don't leave an orphaned data file or pinned blob behind a failed
		// metadata write.
		if record.BlobCID != "" {
			if unpinErr := d.blobs.Unpin(ctx, record.BlobCID); unpinErr != nil {
				log.Printf("Warning: failed to unpin blob %s after metadata write failure: %v",
					record.BlobCID, unpinErr)
			}
		} else {
			os.Remove(d.dataPath(datasetID))
		}
		return "", err
	}

	if err := processor.ForwardToProcessors(ctx, processor.DatasetStoredEvent{
		Type:        processor.EventTypeDatasetStored,
		DatasetID:   datasetID,
		Title:       record.Title,
		DataType:    string(record.DataType),
		FileHash:    record.FileHash,
		SizeBytes:   record.SizeBytes,
		PriceTokens: record.PriceTokens,
		Authors:     record.Authors,
		Keywords:    record.Keywords,
		License:     record.License,
		Description: record.Description,
		StoredAt:    time.Now().UTC(),
	}, d.processors); err != nil {
		log.Printf("Warning: error forwarding dataset stored event: %v", err)
	}

	return datasetID, nil
}

func (d *DataStore) writeDataFile(datasetID string, r io.Reader) (string, int64, error) {
	dataPath := d.dataPath(datasetID)
	f, err := os.OpenFile(dataPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return "", 0, &StorageError{Op: "create data file", Err: err}
	}

	hasher := sha256.New()
	buf := make([]byte, hashChunkSize)
	size, err := io.CopyBuffer(io.MultiWriter(f, hasher), r, buf)
	if err != nil {
		f.Close()
		os.Remove(dataPath)
		return "", 0, &StorageError{Op: "write data file", Err: err}
	}
	if err := f.Close(); err != nil {
		os.Remove(dataPath)
		return "", 0, &StorageError{Op: "close data file", Err: err}
	}

	return hex.EncodeToString(hasher.Sum(nil)), size, nil
}

func (d *DataStore) writeMetadata(datasetID string, record metadataRecord) error {
	metaBytes, err := json.Marshal(record)
	if err != nil {
		return &StorageError{Op: "marshal metadata", Err: err}
	}
	if err := os.WriteFile(d.metaPath(datasetID), metaBytes, 0644); err != nil {
		return &StorageError{Op: "write metadata", Err: err}
	}
	return nil
}

// Retrieve returns the raw bytes and metadata for a dataset. A missing data
// or metadata record yields a NotFoundError.
func (d *DataStore) Retrieve(ctx context.Context, datasetID string) ([]byte, Metadata, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.retrieveLocked(ctx, datasetID)
}

func (d *DataStore) retrieveLocked(ctx context.Context, datasetID string) ([]byte, Metadata, error) {
	record, err := d.readMetadata(datasetID)
	if err != nil {
		return nil, Metadata{}, err
	}

	var data []byte
	if record.BlobCID != "" {
		if d.blobs == nil {
			return nil, Metadata{}, &StorageError{Op: "retrieve blob",
				Err: fmt.Errorf("dataset %s is blob-backed but no blobstore is attached", datasetID)}
		}
		data, err = d.blobs.Get(ctx, record.BlobCID)
		if err != nil {
			return nil, Metadata{}, &NotFoundError{Kind: "dataset data", ID: datasetID}
		}
	} else {
		data, err = os.ReadFile(d.dataPath(datasetID))
		if os.IsNotExist(err) {
			return nil, Metadata{}, &NotFoundError{Kind: "dataset data", ID: datasetID}
		}
		if err != nil {
			return nil, Metadata{}, &StorageError{Op: "read data file", Err: err}
		}
	}

	return data, record.Metadata, nil
}

func (d *DataStore) readMetadata(datasetID string) (metadataRecord, error) {
	metaBytes, err := os.ReadFile(d.metaPath(datasetID))
	if os.IsNotExist(err) {
		return metadataRecord{}, &NotFoundError{Kind: "dataset metadata", ID: datasetID}
	}
	if err != nil {
		return metadataRecord{}, &StorageError{Op: "read metadata", Err: err}
	}

	var record metadataRecord
	if err := json.Unmarshal(metaBytes, &record); err != nil {
		return metadataRecord{}, &StorageError{Op: "decode metadata", Err: err}
	}
	return record, nil
}

// VerifyIntegrity recomputes the content hash of the stored bytes and compares
// it to the recorded file hash. It is side-effect free and never returns an
// error: any retrieval failure reads as false.
func (d *DataStore) VerifyIntegrity(ctx context.Context, datasetID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	data, meta, err := d.retrieveLocked(ctx, datasetID)
	if err != nil {
		return false
	}

	hashSum := sha256.Sum256(data)
	return hex.EncodeToString(hashSum[:]) == meta.FileHash
}

// List returns the metadata of every stored dataset matching the filters. A
// record matches only if every filter key names a metadata field whose value
// equals the filter value; a missing field is a non-match, not an error.
// Result order is not guaranteed.
func (d *DataStore) List(filters map[string]interface{}) ([]Metadata, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	entries, err := os.ReadDir(d.storagePath)
	if err != nil {
		return nil, &StorageError{Op: "list storage", Err: err}
	}

	var datasets []Metadata
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".meta") {
			continue
		}
		datasetID := strings.TrimSuffix(entry.Name(), ".meta")
		record, err := d.readMetadata(datasetID)
		if err != nil {
			log.Printf("Warning: skipping unreadable metadata for %s: %v", datasetID, err)
			continue
		}
		if matchesFilters(record, filters) {
			datasets = append(datasets, record.Metadata)
		}
	}

	return datasets, nil
}

// RecordTransaction appends a completed transfer to the transaction journal.
func (d *DataStore) RecordTransaction(ctx context.Context, tx Transaction) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.journal.Append(tx); err != nil {
		return &StorageError{Op: "record transaction", Err: err}
	}

	if err := processor.ForwardToProcessors(ctx, processor.TransactionRecordedEvent{
		Type:          processor.EventTypeTransactionRecorded,
		TransactionID: tx.TransactionID,
		SellerAddress: tx.SellerAddress,
		BuyerAddress:  tx.BuyerAddress,
		DatasetID:     tx.DatasetID,
		Amount:        tx.Amount,
		Timestamp:     tx.Timestamp,
		Status:        tx.Status,
	}, d.processors); err != nil {
		log.Printf("Warning: error forwarding transaction recorded event: %v", err)
	}

	return nil
}

// Transactions returns the journal contents in append order.
func (d *DataStore) Transactions() ([]Transaction, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var txs []Transaction
	if err := d.journal.Read(&txs); err != nil {
		return nil, &StorageError{Op: "read journal", Err: err}
	}
	return txs, nil
}

func (d *DataStore) dataPath(datasetID string) string {
	return filepath.Join(d.storagePath, datasetID+".data")
}

func (d *DataStore) metaPath(datasetID string) string {
	return filepath.Join(d.storagePath, datasetID+".meta")
}

// generateDatasetID builds a timestamp-prefixed identifier with a random
// suffix. The suffix is a full 128-bit UUID: anything shorter makes birthday
// collisions within a same-second burst of stores a real possibility, and a
// colliding ID silently overwrites the earlier dataset's metadata record.
func generateDatasetID() string {
	timestamp := time.Now().UTC().Format("20060102150405")
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("dataset_%s_%s", timestamp, suffix)
}

// matchesFilters compares filter values against the JSON form of the record so
// filter keys use the same field names as the on-disk metadata.
func matchesFilters(record metadataRecord, filters map[string]interface{}) bool {
	if len(filters) == 0 {
		return true
	}

	raw, err := json.Marshal(record)
	if err != nil {
		return false
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return false
	}

	for key, want := range filters {
		have, ok := fields[key]
		if !ok {
			return false
		}
		if !reflect.DeepEqual(have, normalizeJSON(want)) {
			return false
		}
	}
	return true
}

// normalizeJSON round-trips a filter value through JSON so e.g. int filters
// compare equal to the float64 values json.Unmarshal produces.
func normalizeJSON(v interface{}) interface{} {
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}
