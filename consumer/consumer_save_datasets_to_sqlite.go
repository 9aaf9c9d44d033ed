package consumer

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/datanovaai/marketplace-backend/processor"
)

// SaveDatasetsToSQLite maintains a queryable catalog of stored dataset
// metadata, upserted from dataset_stored events.
type SaveDatasetsToSQLite struct {
	db         *sql.DB
	processors []processor.Processor
}

func NewSaveDatasetsToSQLite(config map[string]interface{}) (*SaveDatasetsToSQLite, error) {
	dbPath, ok := config["db_path"].(string)
	if !ok {
		dbPath = "dataset_catalog.sqlite"
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %v", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping SQLite: %v", err)
	}

	// Set pragmas for better performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		return nil, fmt.Errorf("failed to set SQLite pragmas: %v", err)
	}

	_, err = db.Exec(`
        CREATE TABLE IF NOT EXISTS datasets (
            dataset_id TEXT NOT NULL PRIMARY KEY,
            title TEXT NOT NULL,
            description TEXT,
            data_type TEXT NOT NULL,
            keywords TEXT,
            authors TEXT,
            license TEXT,
            file_hash TEXT NOT NULL,
            size_bytes INTEGER NOT NULL,
            price_tokens REAL NOT NULL DEFAULT 0,
            stored_at TIMESTAMP NOT NULL,

            CHECK (length(dataset_id) > 0),
            CHECK (length(file_hash) > 0)
        );

        CREATE INDEX IF NOT EXISTS idx_datasets_data_type ON datasets(data_type);
    `)
	if err != nil {
		return nil, fmt.Errorf("failed to create datasets table: %v", err)
	}

	return &SaveDatasetsToSQLite{
		db:         db,
		processors: make([]processor.Processor, 0),
	}, nil
}

func (d *SaveDatasetsToSQLite) Subscribe(processor processor.Processor) {
	d.processors = append(d.processors, processor)
}

func (d *SaveDatasetsToSQLite) Process(ctx context.Context, msg processor.Message) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	jsonBytes, ok := msg.Payload.([]byte)
	if !ok {
		return fmt.Errorf("expected []byte, got %T", msg.Payload)
	}

	eventType, err := processor.EventType(jsonBytes)
	if err != nil {
		return err
	}
	if eventType != processor.EventTypeDatasetStored {
		// Not ours; ignore so mixed chains can share consumers.
		return nil
	}

	var event processor.DatasetStoredEvent
	if err := json.Unmarshal(jsonBytes, &event); err != nil {
		return fmt.Errorf("error decoding dataset stored event: %w", err)
	}

	if event.DatasetID == "" || event.FileHash == "" {
		return fmt.Errorf("invalid dataset stored event: missing required fields")
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback() // Will be ignored if transaction is committed

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO datasets (
            dataset_id, title, description, data_type, keywords, authors,
            license, file_hash, size_bytes, price_tokens, stored_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT (dataset_id) DO UPDATE SET
            title = excluded.title,
            description = excluded.description,
            price_tokens = excluded.price_tokens
    `)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %v", err)
	}
	defer stmt.Close()

	_, err = stmt.ExecContext(ctx,
		event.DatasetID,
		event.Title,
		event.Description,
		event.DataType,
		strings.Join(event.Keywords, ","),
		strings.Join(event.Authors, ","),
		event.License,
		event.FileHash,
		event.SizeBytes,
		event.PriceTokens,
		event.StoredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert dataset: %v", err)
	}

	log.Printf("Cataloged dataset %s (%s)", event.DatasetID, event.Title)

	return tx.Commit()
}

func (d *SaveDatasetsToSQLite) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}
