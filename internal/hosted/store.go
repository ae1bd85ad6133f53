// Package hosted implements the hosted-store message channel and presence
// tracker. Messages live in per-room Redis sorted sets scored by creation
// timestamp; change notifications fan out over NATS so subscribers re-fetch
// and re-sort the room window instead of trusting delivery order.
package hosted

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/murmur/chat/internal/chat"
)

const (
	roomKeyPrefix = "room:"
	roomKeySuffix = ":messages"

	// DefaultWindow is the bounded number of recent messages kept per room
	// and delivered in every subscription snapshot.
	DefaultWindow = 200
)

func roomKey(roomID string) string {
	return roomKeyPrefix + roomID + roomKeySuffix
}

// Store manages per-room message collections in Redis.
type Store struct {
	rdb    *redis.Client
	window int
}

// NewStore creates a message store backed by the given Redis client. A
// window <= 0 falls back to DefaultWindow.
func NewStore(rdb *redis.Client, window int) *Store {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Store{rdb: rdb, window: window}
}

// Connect dials Redis at addr and verifies the connection. A failure here is
// the "configuration absent" case: callers degrade to an inert channel
// rather than aborting.
func Connect(addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("hosted: redis connection failed: %w", err)
	}
	return client, nil
}

// Window returns the most recent bounded window of a room's messages,
// ordered by score (creation timestamp) ascending.
func (s *Store) Window(ctx context.Context, roomID string) ([]chat.Message, error) {
	raw, err := s.rdb.ZRange(ctx, roomKey(roomID), int64(-s.window), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("hosted: fetch window for %s: %w", roomID, err)
	}

	msgs := make([]chat.Message, 0, len(raw))
	for _, entry := range raw {
		var msg chat.Message
		if err := json.Unmarshal([]byte(entry), &msg); err != nil {
			log.Printf("[hosted] skipping malformed entry in %s: %v", roomID, err)
			continue
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// Append adds a message to its room's collection scored by creation
// timestamp, trimming the collection to the window cap.
func (s *Store) Append(ctx context.Context, msg chat.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("hosted: marshal message: %w", err)
	}

	key := roomKey(msg.Room)
	pipe := s.rdb.Pipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(msg.Ts), Member: string(data)})
	pipe.ZRemRangeByRank(ctx, key, 0, int64(-s.window-1))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("hosted: append to %s: %w", msg.Room, err)
	}
	return nil
}
