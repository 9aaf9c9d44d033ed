package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Processor defines the interface for processing messages.
type Processor interface {
	Process(context.Context, Message) error
	Subscribe(Processor)
}

type ProcessorConfig struct {
	Type   string                 `yaml:"type"`
	Config map[string]interface{} `yaml:"config"`
}

// Message encapsulates the payload to be processed with optional metadata.
type Message struct {
	Payload  interface{}            `json:"payload"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Event type markers carried in the "type" field of every marketplace event
// payload, so consumers can dispatch without decoding the full body.
const (
	EventTypeDatasetStored       = "dataset_stored"
	EventTypeTransactionRecorded = "transaction_recorded"
	EventTypeAgreementStatus     = "agreement_status"
)

// DatasetStoredEvent is emitted after a dataset and its metadata have been
// durably written to the content store.
type DatasetStoredEvent struct {
	Type        string    `json:"type"`
	DatasetID   string    `json:"dataset_id"`
	Title       string    `json:"title"`
	DataType    string    `json:"data_type"`
	FileHash    string    `json:"file_hash"`
	SizeBytes   int64     `json:"size_bytes"`
	PriceTokens float64   `json:"price_tokens"`
	Authors     []string  `json:"authors"`
	Keywords    []string  `json:"keywords"`
	License     string    `json:"license"`
	Description string    `json:"description"`
	StoredAt    time.Time `json:"stored_at"`
}

// TransactionRecordedEvent is emitted after a completed transfer has been
// appended to the transaction journal.
type TransactionRecordedEvent struct {
	Type          string    `json:"type"`
	TransactionID string    `json:"transaction_id"`
	SellerAddress string    `json:"seller_address"`
	BuyerAddress  string    `json:"buyer_address"`
	DatasetID     string    `json:"dataset_id"`
	Amount        float64   `json:"amount"`
	Timestamp     time.Time `json:"timestamp"`
	Status        string    `json:"status"`
}

// AgreementStatusEvent is emitted when an on-chain agreement changes status.
type AgreementStatusEvent struct {
	Type             string    `json:"type"`
	AgreementAddress string    `json:"agreement_address"`
	DatasetID        string    `json:"dataset_id"`
	Status           string    `json:"status"`
	Timestamp        time.Time `json:"timestamp"`
}

// ForwardToProcessors marshals the payload and forwards it to all downstream processors
func ForwardToProcessors(ctx context.Context, payload interface{}, processors []Processor) error {
	jsonBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("error marshaling payload: %w", err)
	}

	for _, processor := range processors {
		if err := processor.Process(ctx, Message{Payload: jsonBytes}); err != nil {
			return fmt.Errorf("error in processor chain: %w", err)
		}
	}

	return nil
}

// EventType peeks at the "type" field of a JSON event payload.
func EventType(payload []byte) (string, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return "", fmt.Errorf("error decoding event type: %w", err)
	}
	return probe.Type, nil
}
