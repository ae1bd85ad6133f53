package hosted

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/murmur/chat/internal/messaging"
	"github.com/murmur/chat/internal/metrics"
)

const (
	// presenceKey is the deadline-scored sorted set of online records. Each
	// member's score is its expiry time; readers prune expired members, so a
	// client that disconnects stops refreshing and falls out of the set
	// without any explicit removal.
	presenceKey = "presence:online"

	// PresenceTTL is how long a record stays valid without a refresh.
	PresenceTTL = 30 * time.Second
)

// Record is one published presence entry.
type Record struct {
	Sender string `json:"sender"`
	Name   string `json:"name"`
}

// Tracker publishes the local client's presence and reports the complete
// current set on every change.
type Tracker struct {
	rdb *redis.Client
	nc  *messaging.Client
	ttl time.Duration

	mu     sync.Mutex
	record Record
	member []byte // serialized record as stored, needed for removal

	stopOnce sync.Once
	done     chan struct{}
}

// NewTracker creates a presence tracker for the given local record. Both
// dependencies must be non-nil; the hosted session only constructs a tracker
// when the channel itself is not degraded.
func NewTracker(rdb *redis.Client, nc *messaging.Client, record Record) *Tracker {
	return &Tracker{
		rdb:    rdb,
		nc:     nc,
		ttl:    PresenceTTL,
		record: record,
		done:   make(chan struct{}),
	}
}

// Start writes the local presence record and begins refreshing it on an
// interval well inside the TTL. It returns after the first announce.
func (t *Tracker) Start(ctx context.Context) error {
	if err := t.announce(ctx); err != nil {
		return err
	}

	go func() {
		ticker := time.NewTicker(t.ttl / 3)
		defer ticker.Stop()
		for {
			select {
			case <-t.done:
				return
			case <-ticker.C:
				refreshCtx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
				if err := t.announce(refreshCtx); err != nil {
					log.Printf("[presence] refresh: %v", err)
				}
				cancel()
			}
		}
	}()
	return nil
}

// announce writes (or refreshes) the local record with a fresh deadline and
// notifies subscribers.
func (t *Tracker) announce(ctx context.Context) error {
	t.mu.Lock()
	data, err := json.Marshal(t.record)
	if err != nil {
		t.mu.Unlock()
		return fmt.Errorf("presence: marshal record: %w", err)
	}
	t.member = data
	t.mu.Unlock()

	deadline := float64(time.Now().Add(t.ttl).Unix())
	if err := t.rdb.ZAdd(ctx, presenceKey, redis.Z{Score: deadline, Member: string(data)}).Err(); err != nil {
		return fmt.Errorf("presence: announce: %w", err)
	}
	if err := t.nc.PublishPresence(data); err != nil {
		log.Printf("[presence] notify: %v", err)
	}
	return nil
}

// SetName replaces the display name in the published record. The old record
// is cleared proactively so the set never shows both names at once.
func (t *Tracker) SetName(ctx context.Context, name string) error {
	t.mu.Lock()
	old := t.member
	t.record.Name = name
	t.mu.Unlock()

	if old != nil {
		if err := t.rdb.ZRem(ctx, presenceKey, string(old)).Err(); err != nil {
			log.Printf("[presence] remove old record: %v", err)
		}
	}
	return t.announce(ctx)
}

// Snapshot returns the complete current presence set, pruning expired
// records first.
func (t *Tracker) Snapshot(ctx context.Context) ([]Record, error) {
	now := strconv.FormatInt(time.Now().Unix(), 10)

	pipe := t.rdb.Pipeline()
	pipe.ZRemRangeByScore(ctx, presenceKey, "-inf", now)
	members := pipe.ZRange(ctx, presenceKey, 0, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("presence: snapshot: %w", err)
	}

	raw, err := members.Result()
	if err != nil {
		return nil, fmt.Errorf("presence: snapshot: %w", err)
	}

	records := make([]Record, 0, len(raw))
	for _, entry := range raw {
		var rec Record
		if err := json.Unmarshal([]byte(entry), &rec); err != nil {
			log.Printf("[presence] skipping malformed record: %v", err)
			continue
		}
		records = append(records, rec)
	}
	metrics.OnlineUsers.Set(float64(len(records)))
	return records, nil
}

// Subscribe reports the complete current set immediately and again on every
// presence change.
func (t *Tracker) Subscribe(ctx context.Context, owner string, onChange func([]Record)) error {
	records, err := t.Snapshot(ctx)
	if err != nil {
		return err
	}
	onChange(records)

	return t.nc.SubscribePresence(owner, func(_ []byte) {
		snapCtx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		records, err := t.Snapshot(snapCtx)
		if err != nil {
			log.Printf("[presence] snapshot on change: %v", err)
			return
		}
		onChange(records)
	})
}

// Clear proactively removes the local record (leaving, or replacing it on a
// name change) instead of waiting for the deadline to lapse. Idempotent.
func (t *Tracker) Clear(ctx context.Context) {
	t.mu.Lock()
	member := t.member
	t.member = nil
	t.mu.Unlock()

	if member == nil {
		return
	}
	if err := t.rdb.ZRem(ctx, presenceKey, string(member)).Err(); err != nil {
		log.Printf("[presence] clear: %v", err)
		return
	}
	if err := t.nc.PublishPresence(member); err != nil {
		log.Printf("[presence] clear notify: %v", err)
	}
}

// Close stops the refresh loop and clears the local record.
func (t *Tracker) Close() {
	t.stopOnce.Do(func() {
		close(t.done)
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		t.Clear(ctx)
	})
}
