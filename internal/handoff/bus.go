// Package handoff carries status records from the monitor process to the
// buyer process over a Redis stream, replacing the latency window of plain
// file polling. The file store stays as the default transport; the bus is an
// additive channel the buyer can block on.
package handoff

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aryanr/restock-watcher/internal/status"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultStream is the stream key both processes agree on.
const DefaultStream = "stream:product_status"

// RedisClient is the slice of go-redis the bus needs. Kept narrow for tests.
type RedisClient interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
	XRead(ctx context.Context, args *redis.XReadArgs) *redis.XStreamSliceCmd
	Close() error
}

// Entry is one consumed status record plus its stream position.
type Entry struct {
	ID     string
	Record *status.Record
}

type Bus struct {
	redis  RedisClient
	stream string
	logger *slog.Logger
}

func NewBus(client RedisClient, stream string, logger *slog.Logger) *Bus {
	if stream == "" {
		stream = DefaultStream
	}
	return &Bus{
		redis:  client,
		stream: stream,
		logger: logger.With("component", "handoff"),
	}
}

// Publish appends the record to the stream. The record JSON rides in a single
// field; the flat fields alongside it let consumers filter without decoding.
func (b *Bus) Publish(ctx context.Context, rec *status.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: b.stream,
		MaxLen: 1000,
		Approx: true,
		Values: map[string]interface{}{
			"event_id":      uuid.New().String(),
			"record":        string(payload),
			"status":        string(rec.Status),
			"product_id":    rec.ProductID,
			"action_needed": fmt.Sprintf("%t", rec.ActionNeeded),
			"timestamp":     fmt.Sprintf("%d", rec.Timestamp.UnixNano()),
		},
	}

	if _, err := b.redis.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to publish to stream: %w", err)
	}

	b.logger.Debug("record published",
		"stream", b.stream,
		"status", rec.Status,
		"query_count", rec.QueryCount)
	return nil
}

// Read blocks up to `block` for entries after lastID. Use "$" to read only
// records published after this call, "0" to replay the stream.
func (b *Bus) Read(ctx context.Context, lastID string, block time.Duration) ([]Entry, error) {
	if lastID == "" {
		lastID = "$"
	}

	streams, err := b.redis.XRead(ctx, &redis.XReadArgs{
		Streams: []string{b.stream, lastID},
		Block:   block,
		Count:   100,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read stream: %w", err)
	}

	var entries []Entry
	for _, s := range streams {
		for _, msg := range s.Messages {
			raw, ok := msg.Values["record"].(string)
			if !ok {
				b.logger.Warn("stream entry missing record field", "id", msg.ID)
				continue
			}
			var rec status.Record
			if err := json.Unmarshal([]byte(raw), &rec); err != nil {
				b.logger.Warn("undecodable stream entry", "id", msg.ID, "error", err)
				continue
			}
			entries = append(entries, Entry{ID: msg.ID, Record: &rec})
		}
	}
	return entries, nil
}
