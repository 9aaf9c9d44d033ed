package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/datanovaai/marketplace-backend/processor"
)

// SaveLatestDatasetToRedis keeps the most recently stored dataset in a hash
// and a bounded upload history in a sorted set, for dashboard queries.
type SaveLatestDatasetToRedis struct {
	client     *redis.Client
	processors []processor.Processor
	keyPrefix  string
	historyMax int64
}

func NewSaveLatestDatasetToRedis(config map[string]interface{}) (*SaveLatestDatasetToRedis, error) {
	address, ok := config["redis_address"].(string)
	if !ok {
		return nil, fmt.Errorf("missing redis_address in config")
	}

	password, _ := config["redis_password"].(string)
	dbNum, _ := config["redis_db"].(int)
	keyPrefix, _ := config["key_prefix"].(string)
	if keyPrefix == "" {
		keyPrefix = "marketplace:dataset:"
	}

	historyMax := int64(1000)
	if m, ok := config["history_max"].(int); ok && m > 0 {
		historyMax = int64(m)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     address,
		Password: password,
		DB:       dbNum,
	})

	// Test connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %v", err)
	}

	return &SaveLatestDatasetToRedis{
		client:     client,
		keyPrefix:  keyPrefix,
		historyMax: historyMax,
	}, nil
}

func (s *SaveLatestDatasetToRedis) Subscribe(processor processor.Processor) {
	s.processors = append(s.processors, processor)
}

func (s *SaveLatestDatasetToRedis) Process(ctx context.Context, msg processor.Message) error {
	jsonBytes, ok := msg.Payload.([]byte)
	if !ok {
		return fmt.Errorf("expected []byte, got %T", msg.Payload)
	}

	eventType, err := processor.EventType(jsonBytes)
	if err != nil {
		return err
	}
	if eventType != processor.EventTypeDatasetStored {
		return nil
	}

	var event processor.DatasetStoredEvent
	if err := json.Unmarshal(jsonBytes, &event); err != nil {
		return fmt.Errorf("error unmarshaling dataset event: %w", err)
	}

	pipe := s.client.Pipeline()

	key := s.keyPrefix + "latest"
	data := map[string]interface{}{
		"dataset_id": event.DatasetID,
		"title":      event.Title,
		"data_type":  event.DataType,
		"file_hash":  event.FileHash,
		"size_bytes": event.SizeBytes,
		"price":      event.PriceTokens,
		"updated_at": time.Now().UTC().Format(time.RFC3339),
	}

	pipe.HSet(ctx, key, data)

	// Also store in a sorted set for upload history
	historyKey := s.keyPrefix + "history"
	pipe.ZAdd(ctx, historyKey, redis.Z{
		Score:  float64(event.StoredAt.Unix()),
		Member: event.DatasetID,
	})

	// Trim history to the configured bound
	pipe.ZRemRangeByRank(ctx, historyKey, 0, -(s.historyMax + 1))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("error executing Redis pipeline: %w", err)
	}

	log.Printf("Stored latest dataset %s with hash %s", event.DatasetID, event.FileHash)
	return nil
}

func (s *SaveLatestDatasetToRedis) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
