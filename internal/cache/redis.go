// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/timebid/internal/config"
	"github.com/redis/go-redis/v9"
)

// Rdb is the global Redis client. Connect it once at application startup.
var Rdb *redis.Client

// QueueName is the Redis list (queue) name for game action logs.
var QueueName = "timebid_actions"

// GameActionRecord holds the minimal info needed by the historian service.
type GameActionRecord struct {
	GameID        uuid.UUID              `json:"game_id"`
	ActionIndex   int                    `json:"action_index"`
	ActorSeat     string                 `json:"actor_seat,omitempty"` // empty for table-level actions
	ActionType    string                 `json:"action_type"`
	ActionPayload map[string]interface{} `json:"action_payload"`
	Timestamp     int64                  `json:"timestamp"`
}

// NewClient builds a client for cfg without connecting.
func NewClient(cfg config.Redis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: cfg.Addr,
		DB:   cfg.DB,
	})
}

// ConnectRedis initializes the global Redis client and checks the connection.
func ConnectRedis(ctx context.Context, cfg config.Redis) error {
	client := NewClient(cfg)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr, err)
	}
	Rdb = client
	if cfg.QueueName != "" {
		QueueName = cfg.QueueName
	}
	return nil
}

// Close disconnects the global client.
func Close() error {
	if Rdb == nil {
		return nil
	}
	err := Rdb.Close()
	Rdb = nil
	return err
}

// PublishGameAction serializes the given record to JSON, then pushes it to the Redis queue.
func PublishGameAction(ctx context.Context, record GameActionRecord) error {
	if Rdb == nil {
		return fmt.Errorf("redis client is not connected")
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal GameActionRecord: %w", err)
	}
	if err := Rdb.RPush(ctx, QueueName, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", QueueName, err)
	}
	return nil
}

// DecodeGameAction parses a queued record.
func DecodeGameAction(data []byte) (GameActionRecord, error) {
	var rec GameActionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return GameActionRecord{}, fmt.Errorf("invalid action record: %w", err)
	}
	if rec.GameID == uuid.Nil {
		return GameActionRecord{}, fmt.Errorf("invalid action record: missing game_id")
	}
	return rec, nil
}
