package consumer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/datanovaai/marketplace-backend/processor"
	"github.com/datanovaai/marketplace-backend/utils"
)

// SaveTransactionsToExcel appends completed transfers to an .xlsx audit
// sheet, one row per transaction_recorded event.
type SaveTransactionsToExcel struct {
	filePath   string
	writer     *utils.ExcelWriter
	processors []processor.Processor
}

func NewSaveTransactionsToExcel(config map[string]interface{}) (*SaveTransactionsToExcel, error) {
	filePath, ok := config["file_path"].(string)
	if !ok {
		return nil, fmt.Errorf("invalid configuration: missing 'file_path'")
	}

	headers := []string{"Timestamp", "TransactionId", "BuyerAddress", "SellerAddress", "DatasetId", "Amount", "Status"}
	writer, err := utils.NewExcelWriter(filePath, "Transactions", headers)
	if err != nil {
		return nil, fmt.Errorf("failed to create Excel writer: %w", err)
	}

	return &SaveTransactionsToExcel{
		filePath: filePath,
		writer:   writer,
	}, nil
}

func (c *SaveTransactionsToExcel) Subscribe(processor processor.Processor) {
	c.processors = append(c.processors, processor)
}

func (c *SaveTransactionsToExcel) Process(ctx context.Context, msg processor.Message) error {
	payloadBytes, ok := msg.Payload.([]byte)
	if !ok {
		return fmt.Errorf("expected []byte type for message.Payload, got %T", msg.Payload)
	}

	eventType, err := processor.EventType(payloadBytes)
	if err != nil {
		return err
	}
	if eventType != processor.EventTypeTransactionRecorded {
		return nil
	}

	var event processor.TransactionRecordedEvent
	if err := json.Unmarshal(payloadBytes, &event); err != nil {
		return err
	}

	values := []interface{}{
		event.Timestamp.UTC().Format("2006-01-02 15:04:05"),
		event.TransactionID,
		event.BuyerAddress,
		event.SellerAddress,
		event.DatasetID,
		event.Amount,
		event.Status,
	}

	if err := c.writer.AppendRow(values); err != nil {
		return fmt.Errorf("failed to append row: %w", err)
	}

	if err := c.writer.Save(); err != nil {
		return fmt.Errorf("failed to save Excel file: %w", err)
	}

	return nil
}

func (c *SaveTransactionsToExcel) Close() error {
	if c.writer != nil {
		return c.writer.Close()
	}
	return nil
}
