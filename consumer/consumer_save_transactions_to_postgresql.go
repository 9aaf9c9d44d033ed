package consumer

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq"

	"github.com/datanovaai/marketplace-backend/processor"
)

// SaveTransactionsToPostgreSQL mirrors the transaction journal into a
// PostgreSQL table for auditing and reporting queries.
type SaveTransactionsToPostgreSQL struct {
	db         *sql.DB
	processors []processor.Processor
	stats      struct {
		messagesReceived int64
		lastProcessedAt  time.Time
	}
}

type TransactionsPostgreSQLConfig struct {
	ConnectionString string
}

func parseTransactionsPostgreSQLConfig(config map[string]interface{}) (TransactionsPostgreSQLConfig, error) {
	var pgConfig TransactionsPostgreSQLConfig

	connStr, ok := config["connection_string"].(string)
	if !ok || connStr == "" {
		return pgConfig, fmt.Errorf("missing or empty connection_string in config")
	}
	pgConfig.ConnectionString = connStr

	return pgConfig, nil
}

func NewSaveTransactionsToPostgreSQL(config map[string]interface{}) (*SaveTransactionsToPostgreSQL, error) {
	pgConfig, err := parseTransactionsPostgreSQLConfig(config)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("postgres", pgConfig.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %v", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping PostgreSQL: %v", err)
	}

	if err := initializeTransactionsTable(db); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %v", err)
	}

	return &SaveTransactionsToPostgreSQL{db: db}, nil
}

func initializeTransactionsTable(db *sql.DB) error {
	_, err := db.Exec(`
        CREATE TABLE IF NOT EXISTS marketplace_transactions (
            transaction_id TEXT PRIMARY KEY,
            seller_address TEXT NOT NULL,
            buyer_address TEXT NOT NULL,
            dataset_id TEXT NOT NULL,
            amount DOUBLE PRECISION NOT NULL,
            timestamp TIMESTAMPTZ NOT NULL,
            status TEXT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT now()
        );

        CREATE INDEX IF NOT EXISTS idx_tx_dataset ON marketplace_transactions(dataset_id);
        CREATE INDEX IF NOT EXISTS idx_tx_buyer ON marketplace_transactions(buyer_address);
    `)
	return err
}

func (s *SaveTransactionsToPostgreSQL) Subscribe(processor processor.Processor) {
	s.processors = append(s.processors, processor)
}

func (s *SaveTransactionsToPostgreSQL) Process(ctx context.Context, msg processor.Message) error {
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
	if eventType != processor.EventTypeTransactionRecorded {
		return nil
	}

	var event processor.TransactionRecordedEvent
	if err := json.Unmarshal(jsonBytes, &event); err != nil {
		return fmt.Errorf("error decoding transaction event: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
        INSERT INTO marketplace_transactions (
            transaction_id, seller_address, buyer_address, dataset_id,
            amount, timestamp, status
        ) VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (transaction_id) DO NOTHING
    `,
		event.TransactionID,
		event.SellerAddress,
		event.BuyerAddress,
		event.DatasetID,
		event.Amount,
		event.Timestamp,
		event.Status,
	)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %v", err)
	}

	s.stats.messagesReceived++
	s.stats.lastProcessedAt = time.Now()
	log.Printf("Recorded transaction %s for dataset %s", event.TransactionID, event.DatasetID)

	return nil
}

func (s *SaveTransactionsToPostgreSQL) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
