package consumer

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datanovaai/marketplace-backend/processor"
)

func newSQLiteConsumer(t *testing.T) *SaveDatasetsToSQLite {
	t.Helper()
	c, err := NewSaveDatasetsToSQLite(map[string]interface{}{
		"db_path": filepath.Join(t.TempDir(), "catalog.sqlite"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func datasetEventMessage(t *testing.T, event processor.DatasetStoredEvent) processor.Message {
	t.Helper()
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	return processor.Message{Payload: payload}
}

func TestSQLiteConsumerCatalogsDataset(t *testing.T) {
	c := newSQLiteConsumer(t)
	ctx := context.Background()

	event := processor.DatasetStoredEvent{
		Type:        processor.EventTypeDatasetStored,
		DatasetID:   "dataset_20260101000000_abcd1234",
		Title:       "Ocean temperature readings",
		DataType:    "observational",
		FileHash:    "deadbeef",
		SizeBytes:   1024,
		PriceTokens: 2.5,
		Authors:     []string{"rivera", "chen"},
		Keywords:    []string{"ocean", "climate"},
		License:     "CC-BY-4.0",
		StoredAt:    time.Now().UTC(),
	}
	require.NoError(t, c.Process(ctx, datasetEventMessage(t, event)))

	var title, keywords string
	var price float64
	row := c.db.QueryRow(
		"SELECT title, keywords, price_tokens FROM datasets WHERE dataset_id = ?",
		event.DatasetID)
	require.NoError(t, row.Scan(&title, &keywords, &price))
	assert.Equal(t, "Ocean temperature readings", title)
	assert.Equal(t, "ocean,climate", keywords)
	assert.Equal(t, 2.5, price)
}

func TestSQLiteConsumerUpsertsOnReplay(t *testing.T) {
	c := newSQLiteConsumer(t)
	ctx := context.Background()

	event := processor.DatasetStoredEvent{
		Type:      processor.EventTypeDatasetStored,
		DatasetID: "dataset_20260101000000_abcd1234",
		Title:     "First title",
		DataType:  "survey",
		FileHash:  "deadbeef",
		StoredAt:  time.Now().UTC(),
	}
	require.NoError(t, c.Process(ctx, datasetEventMessage(t, event)))

	event.Title = "Corrected title"
	event.PriceTokens = 9.0
	require.NoError(t, c.Process(ctx, datasetEventMessage(t, event)))

	var count int
	require.NoError(t, c.db.QueryRow("SELECT COUNT(*) FROM datasets").Scan(&count))
	assert.Equal(t, 1, count)

	var title string
	var price float64
	row := c.db.QueryRow(
		"SELECT title, price_tokens FROM datasets WHERE dataset_id = ?", event.DatasetID)
	require.NoError(t, row.Scan(&title, &price))
	assert.Equal(t, "Corrected title", title)
	assert.Equal(t, 9.0, price)
}

func TestSQLiteConsumerIgnoresOtherEvents(t *testing.T) {
	c := newSQLiteConsumer(t)

	payload, err := json.Marshal(processor.TransactionRecordedEvent{
		Type:          processor.EventTypeTransactionRecorded,
		TransactionID: "txn_1",
	})
	require.NoError(t, err)
	require.NoError(t, c.Process(context.Background(), processor.Message{Payload: payload}))

	var count int
	require.NoError(t, c.db.QueryRow("SELECT COUNT(*) FROM datasets").Scan(&count))
	assert.Equal(t, 0, count)
}

func TestSQLiteConsumerRejectsIncompleteEvent(t *testing.T) {
	c := newSQLiteConsumer(t)

	event := processor.DatasetStoredEvent{
		Type:      processor.EventTypeDatasetStored,
		DatasetID: "dataset_missing_hash",
	}
	err := c.Process(context.Background(), datasetEventMessage(t, event))
	assert.Error(t, err)
}

func TestSQLiteConsumerRejectsNonBytesPayload(t *testing.T) {
	c := newSQLiteConsumer(t)
	err := c.Process(context.Background(), processor.Message{Payload: 42})
	assert.Error(t, err)
}
