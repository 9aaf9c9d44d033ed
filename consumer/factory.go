package consumer

import (
	"fmt"

	"github.com/datanovaai/marketplace-backend/processor"
)

// ConsumerConfig selects and configures one consumer in the event chain.
type ConsumerConfig struct {
	Type   string                 `yaml:"type"`
	Config map[string]interface{} `yaml:"config"`
}

// Consumer is a processor that also owns external resources.
type Consumer interface {
	processor.Processor
	Close() error
}

// NewConsumer instantiates a consumer by its configured type name.
func NewConsumer(config ConsumerConfig) (Consumer, error) {
	switch config.Type {
	case "SaveDatasetsToSQLite":
		return NewSaveDatasetsToSQLite(config.Config)
	case "SaveTransactionsToPostgreSQL":
		return NewSaveTransactionsToPostgreSQL(config.Config)
	case "SaveLatestDatasetToRedis":
		return NewSaveLatestDatasetToRedis(config.Config)
	case "SaveTransactionsToExcel":
		return NewSaveTransactionsToExcel(config.Config)
	case "DebugLogger":
		return NewDebugLogger(config.Config)
	default:
		return nil, fmt.Errorf("unsupported consumer type: %s", config.Type)
	}
}
