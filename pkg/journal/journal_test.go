package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRecord struct {
	ID     string  `json:"id"`
	Amount float64 `json:"amount"`
}

func TestJournalAppendAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.json")
	j := New(path)

	for i := 0; i < 5; i++ {
		err := j.Append(testRecord{ID: fmt.Sprintf("tx_%d", i), Amount: float64(i)})
		require.NoError(t, err)
	}

	var records []testRecord
	require.NoError(t, j.Read(&records))
	require.Len(t, records, 5)

	// Append order is preserved
	for i, record := range records {
		assert.Equal(t, fmt.Sprintf("tx_%d", i), record.ID)
	}
}

func TestJournalReadMissingFile(t *testing.T) {
	j := New(filepath.Join(t.TempDir(), "missing.json"))

	var records []testRecord
	require.NoError(t, j.Read(&records))
	assert.Empty(t, records)

	n, err := j.Len()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestJournalConcurrentAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.json")
	j := New(path)

	const writers = 50
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, j.Append(testRecord{ID: fmt.Sprintf("tx_%d", i)}))
		}(i)
	}
	wg.Wait()

	var records []testRecord
	require.NoError(t, j.Read(&records))
	require.Len(t, records, writers)

	// Every distinct record made it, none lost or duplicated
	seen := make(map[string]bool)
	for _, record := range records {
		assert.False(t, seen[record.ID], "duplicate record %s", record.ID)
		seen[record.ID] = true
	}
}

func TestJournalLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "journal.json")
	j := New(path)

	require.NoError(t, j.Append(testRecord{ID: "tx_0"}))

	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestJournalCreatesParentDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deep", "journal.json")
	j := New(path)

	require.NoError(t, j.Append(testRecord{ID: "tx_0"}))

	var records []testRecord
	require.NoError(t, j.Read(&records))
	assert.Len(t, records, 1)
}
