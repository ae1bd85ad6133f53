package hosted

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/murmur/chat/internal/chat"
	"github.com/murmur/chat/internal/messaging"
	"github.com/murmur/chat/internal/metrics"
)

// ErrDegraded is returned when the backing store or fan-out is unconfigured
// or unreachable. The channel is inert in this state: subscriptions never
// fire and publishes are dropped. It is never fatal.
var ErrDegraded = errors.New("hosted: channel degraded, backing services unavailable")

// fetchTimeout bounds snapshot fetches triggered from NATS callbacks.
const fetchTimeout = 3 * time.Second

// Channel is the hosted-store message channel. Publish appends to Redis and
// notifies NATS; Subscribe delivers the full re-sorted room window on every
// notification.
type Channel struct {
	store *Store
	nc    *messaging.Client
	owner string // subscription registry key, typically the client identity

	mu     sync.Mutex
	roomID string // currently subscribed room, empty if none
}

// NewChannel creates a hosted channel. Either dependency may be nil, in
// which case the channel is created degraded rather than failing: the caller
// stays interactive, just without realtime delivery.
func NewChannel(store *Store, nc *messaging.Client, owner string) *Channel {
	c := &Channel{store: store, nc: nc, owner: owner}
	if c.Degraded() {
		log.Printf("[hosted] channel degraded: store or fan-out unconfigured")
	}
	return c
}

// Degraded reports whether the channel is inert.
func (c *Channel) Degraded() bool {
	return c.store == nil || c.nc == nil
}

// Subscribe registers a live subscription to roomID's bounded message
// window. Any previous room subscription is unconditionally removed first,
// so switching rooms never leaks callbacks across rooms or fires duplicates.
// onSnapshot receives the full current ordered window immediately and again
// on every remote change.
func (c *Channel) Subscribe(ctx context.Context, roomID string, onSnapshot func([]chat.Message)) error {
	if c.Degraded() {
		return ErrDegraded
	}

	// Retire the previous room before touching the new one.
	c.Unsubscribe()

	c.mu.Lock()
	c.roomID = roomID
	c.mu.Unlock()

	// Initial snapshot.
	msgs, err := c.store.Window(ctx, roomID)
	if err != nil {
		return err
	}
	onSnapshot(msgs)

	return c.nc.SubscribeRoom(roomID, c.owner, func(_ []byte) {
		// Ignore notifications that arrive after the room was retired.
		c.mu.Lock()
		current := c.roomID
		c.mu.Unlock()
		if current != roomID {
			return
		}

		fetchCtx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		msgs, err := c.store.Window(fetchCtx, roomID)
		if err != nil {
			log.Printf("[hosted] snapshot fetch for %s: %v", roomID, err)
			return
		}
		metrics.MessagesReceived.WithLabelValues("hosted").Inc()
		onSnapshot(msgs)
	})
}

// Unsubscribe removes the current room subscription, if any. Calling it with
// no active subscription has no effect.
func (c *Channel) Unsubscribe() {
	c.mu.Lock()
	c.roomID = ""
	c.mu.Unlock()

	if c.nc == nil {
		return
	}
	if err := c.nc.UnsubscribeRoom(c.owner); err != nil {
		log.Printf("[hosted] unsubscribe: %v", err)
	}
}

// Publish appends a new message with a channel-assigned id and client-stamped
// creation time, then notifies subscribers. Fire-and-forget: errors are
// reported to the caller but never retried.
func (c *Channel) Publish(ctx context.Context, roomID, sender, name, text string) (chat.Message, error) {
	if c.Degraded() {
		return chat.Message{}, ErrDegraded
	}

	msg := chat.NewMessage(roomID, sender, name, text)

	start := time.Now()
	if err := c.store.Append(ctx, msg); err != nil {
		return chat.Message{}, err
	}
	if err := c.nc.PublishRoom(roomID, []byte(msg.ID)); err != nil {
		// The message is stored; subscribers will pick it up on the next
		// notification for this room.
		log.Printf("[hosted] notify %s: %v", roomID, err)
	}
	metrics.PublishLatency.Observe(time.Since(start).Seconds())
	metrics.MessagesPublished.WithLabelValues("hosted").Inc()

	return msg, nil
}

// Close retires the subscription. The store and fan-out clients are owned by
// the session, not the channel, and are closed there.
func (c *Channel) Close() {
	c.Unsubscribe()
}
