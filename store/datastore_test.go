package store

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datanovaai/marketplace-backend/blobstore"
	"github.com/datanovaai/marketplace-backend/processor"
)

// MockProcessor records forwarded messages for assertions.
type MockProcessor struct {
	mu       sync.Mutex
	messages []processor.Message
}

func (m *MockProcessor) Process(ctx context.Context, msg processor.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

func (m *MockProcessor) Subscribe(p processor.Processor) {}

func (m *MockProcessor) Messages() []processor.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]processor.Message{}, m.messages...)
}

func newTestStore(t *testing.T) *DataStore {
	t.Helper()
	ds, err := NewDataStore(map[string]interface{}{
		"storage_path": t.TempDir(),
	})
	require.NoError(t, err)
	return ds
}

func testMetadata(title string, dataType DataType) Metadata {
	return Metadata{
		Title:        title,
		Description:  "test dataset",
		DataType:     dataType,
		Keywords:     []string{"physics", "test"},
		Authors:      []string{"Ada Lovelace"},
		CreationDate: time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC),
		License:      "CC-BY-4.0",
		PriceTokens:  2.5,
	}
}

func TestStoreAndRetrieveRoundTrip(t *testing.T) {
	ds := newTestStore(t)
	ctx := context.Background()
	payload := []byte("temperature,pressure\n21.5,101.2\n22.1,100.9\n")

	datasetID, err := ds.Store(ctx, bytes.NewReader(payload), testMetadata("climate", DataTypeObservational))
	require.NoError(t, err)
	assert.Contains(t, datasetID, "dataset_")

	data, meta, err := ds.Retrieve(ctx, datasetID)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
	assert.Equal(t, int64(len(payload)), meta.SizeBytes)

	expectedHash := sha256.Sum256(payload)
	assert.Equal(t, hex.EncodeToString(expectedHash[:]), meta.FileHash)

	assert.True(t, ds.VerifyIntegrity(ctx, datasetID))
}

func TestStoreRejectsInvalidDataType(t *testing.T) {
	ds := newTestStore(t)

	_, err := ds.Store(context.Background(), bytes.NewReader([]byte("x")), Metadata{
		Title:    "bad",
		DataType: "anecdotal",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "data_type")
}

func TestRetrieveNotFound(t *testing.T) {
	ds := newTestStore(t)

	_, _, err := ds.Retrieve(context.Background(), "dataset_missing")
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestVerifyIntegrityDetectsCorruption(t *testing.T) {
	ds := newTestStore(t)
	ctx := context.Background()

	datasetID, err := ds.Store(ctx, bytes.NewReader([]byte("original bytes")), testMetadata("c", DataTypeExperimental))
	require.NoError(t, err)
	require.True(t, ds.VerifyIntegrity(ctx, datasetID))

	// Mutate the persisted bytes out-of-band
	require.NoError(t, os.WriteFile(ds.dataPath(datasetID), []byte("tampered bytes"), 0644))

	assert.False(t, ds.VerifyIntegrity(ctx, datasetID))
}

func TestVerifyIntegrityNeverErrorsOnMissing(t *testing.T) {
	ds := newTestStore(t)
	assert.False(t, ds.VerifyIntegrity(context.Background(), "dataset_nonexistent"))
}

func TestListFilters(t *testing.T) {
	ds := newTestStore(t)
	ctx := context.Background()

	_, err := ds.Store(ctx, bytes.NewReader([]byte("a")), testMetadata("exp1", DataTypeExperimental))
	require.NoError(t, err)
	_, err = ds.Store(ctx, bytes.NewReader([]byte("b")), testMetadata("exp2", DataTypeExperimental))
	require.NoError(t, err)
	_, err = ds.Store(ctx, bytes.NewReader([]byte("c")), testMetadata("survey1", DataTypeSurvey))
	require.NoError(t, err)

	tests := []struct {
		name    string
		filters map[string]interface{}
		want    int
	}{
		{"no filters returns all", nil, 3},
		{"empty filters returns all", map[string]interface{}{}, 3},
		{"match data_type", map[string]interface{}{"data_type": "experimental"}, 2},
		{"match title", map[string]interface{}{"title": "survey1"}, 1},
		{"combined filters", map[string]interface{}{"data_type": "survey", "title": "survey1"}, 1},
		{"no match", map[string]interface{}{"data_type": "computational"}, 0},
		{"unknown field never matches", map[string]interface{}{"no_such_field": "x"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ds.List(tt.filters)
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
		})
	}
}

func TestConcurrentStoreIDsAreUnique(t *testing.T) {
	ds := newTestStore(t)
	ctx := context.Background()

	const stores = 200
	ids := make(chan string, stores)
	var wg sync.WaitGroup
	for i := 0; i < stores; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := ds.Store(ctx, bytes.NewReader([]byte(fmt.Sprintf("payload %d", i))),
				testMetadata(fmt.Sprintf("ds%d", i), DataTypeComputational))
			assert.NoError(t, err)
			ids <- id
		}(i)
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		assert.False(t, seen[id], "duplicate dataset ID %s", id)
		seen[id] = true
	}
	assert.Len(t, seen, stores)
}

func TestRecordTransactionConcurrent(t *testing.T) {
	ds := newTestStore(t)
	ctx := context.Background()

	const writers = 25
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, ds.RecordTransaction(ctx, Transaction{
				TransactionID: fmt.Sprintf("tx_%d", i),
				SellerAddress: "seller",
				BuyerAddress:  "buyer",
				DatasetID:     "dataset_x",
				Amount:        1.0,
				Timestamp:     time.Now().UTC(),
				Status:        "completed",
			}))
		}(i)
	}
	wg.Wait()

	txs, err := ds.Transactions()
	require.NoError(t, err)
	require.Len(t, txs, writers)

	seen := make(map[string]bool)
	for _, tx := range txs {
		assert.False(t, seen[tx.TransactionID])
		seen[tx.TransactionID] = true
	}
}

func TestStoreEmitsEvents(t *testing.T) {
	ds := newTestStore(t)
	mock := &MockProcessor{}
	ds.Subscribe(mock)
	ctx := context.Background()

	datasetID, err := ds.Store(ctx, bytes.NewReader([]byte("event payload")), testMetadata("evt", DataTypeSurvey))
	require.NoError(t, err)

	require.NoError(t, ds.RecordTransaction(ctx, Transaction{
		TransactionID: "tx_1",
		DatasetID:     datasetID,
		Timestamp:     time.Now().UTC(),
		Status:        "completed",
	}))

	messages := mock.Messages()
	require.Len(t, messages, 2)

	eventType, err := processor.EventType(messages[0].Payload.([]byte))
	require.NoError(t, err)
	assert.Equal(t, processor.EventTypeDatasetStored, eventType)

	eventType, err = processor.EventType(messages[1].Payload.([]byte))
	require.NoError(t, err)
	assert.Equal(t, processor.EventTypeTransactionRecorded, eventType)
}

func TestGeneratedDatasetIDsDoNotCollide(t *testing.T) {
	const generations = 50000
	seen := make(map[string]bool, generations)
	for i := 0; i < generations; i++ {
		id := generateDatasetID()
		require.False(t, seen[id], "duplicate dataset ID after %d generations: %s", i, id)
		seen[id] = true
	}
}

func TestSubscribeDuringStores(t *testing.T) {
	ds := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, err := ds.Store(ctx, bytes.NewReader([]byte(fmt.Sprintf("payload %d", i))),
				testMetadata(fmt.Sprintf("ds%d", i), DataTypeExperimental))
			assert.NoError(t, err)
		}(i)
		go func() {
			defer wg.Done()
			ds.Subscribe(&MockProcessor{})
		}()
	}
	wg.Wait()
}

func newBlobBackedStore(t *testing.T) (*DataStore, *blobstore.FSBlobstore, string) {
	t.Helper()
	ds := newTestStore(t)
	blobDir := t.TempDir()
	bs, err := blobstore.NewFSBlobstore(map[string]interface{}{
		"base_path": blobDir,
	})
	require.NoError(t, err)
	ds.AttachBlobstore(bs)
	return ds, bs, blobDir
}

func TestBlobBackedRoundTrip(t *testing.T) {
	ds, bs, _ := newBlobBackedStore(t)
	ctx := context.Background()
	payload := []byte("temperature,pressure\n21.5,101.2\n")

	datasetID, err := ds.Store(ctx, bytes.NewReader(payload), testMetadata("blob", DataTypeObservational))
	require.NoError(t, err)

	data, meta, err := ds.Retrieve(ctx, datasetID)
	require.NoError(t, err)
	assert.Equal(t, payload, data)

	expectedHash := sha256.Sum256(payload)
	assert.Equal(t, hex.EncodeToString(expectedHash[:]), meta.FileHash)
	assert.True(t, ds.VerifyIntegrity(ctx, datasetID))

	// The blob is pinned on store
	assert.Len(t, bs.Pins(), 1)
}

func TestBlobBackedVerifyIntegrityDetectsCorruption(t *testing.T) {
	ds, _, blobDir := newBlobBackedStore(t)
	ctx := context.Background()

	datasetID, err := ds.Store(ctx, bytes.NewReader([]byte("original bytes")), testMetadata("blob", DataTypeExperimental))
	require.NoError(t, err)
	require.True(t, ds.VerifyIntegrity(ctx, datasetID))

	record, err := ds.readMetadata(datasetID)
	require.NoError(t, err)
	require.NotEmpty(t, record.BlobCID)

	// Mutate the blob out-of-band
	require.NoError(t, os.WriteFile(filepath.Join(blobDir, record.BlobCID), []byte("tampered bytes"), 0644))

	assert.False(t, ds.VerifyIntegrity(ctx, datasetID))
}

func TestBlobBackedMissingBlobNotFound(t *testing.T) {
	ds, _, blobDir := newBlobBackedStore(t)
	ctx := context.Background()

	datasetID, err := ds.Store(ctx, bytes.NewReader([]byte("blob bytes")), testMetadata("blob", DataTypeSurvey))
	require.NoError(t, err)

	record, err := ds.readMetadata(datasetID)
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(blobDir, record.BlobCID)))

	_, _, err = ds.Retrieve(ctx, datasetID)
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.False(t, ds.VerifyIntegrity(ctx, datasetID))
}

func TestBlobBackedDatasetWithoutBlobstore(t *testing.T) {
	ds, _, _ := newBlobBackedStore(t)
	ctx := context.Background()

	datasetID, err := ds.Store(ctx, bytes.NewReader([]byte("blob bytes")), testMetadata("blob", DataTypeSurvey))
	require.NoError(t, err)

	// A second store over the same directory without an attached blobstore
	// cannot resolve the blob reference.
	detached, err := NewDataStore(map[string]interface{}{
		"storage_path": ds.storagePath,
	})
	require.NoError(t, err)

	_, _, err = detached.Retrieve(ctx, datasetID)
	var storageErr *StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.Contains(t, err.Error(), "no blobstore")
}

func TestFailedMetadataWriteUnpinsBlob(t *testing.T) {
	ds, bs, _ := newBlobBackedStore(t)
	ctx := context.Background()

	// Remove the metadata directory so the metadata write fails after the
	// blob has been added and pinned.
	require.NoError(t, os.RemoveAll(ds.storagePath))

	_, err := ds.Store(ctx, bytes.NewReader([]byte("doomed bytes")), testMetadata("blob", DataTypeExperimental))
	require.Error(t, err)

	assert.Empty(t, bs.Pins())
}
