// Package messaging provides a NATS client wrapper for change fan-out in the
// hosted-store variant. It handles connection lifecycle, subject-based
// subscriptions, and convenience methods for room and presence channels.
package messaging

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS subject patterns.
const (
	SubjectRoom     = "room"     // + .<room_id>: a message was appended to the room
	SubjectPresence = "presence" // presence set changed
)

// Client wraps the NATS connection with helper methods for pub/sub.
type Client struct {
	conn *nats.Conn
	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

// Config holds NATS connection settings.
type Config struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		Name:          "murmur",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1,
	}
}

// Connect connects to NATS with the given config and returns a ready client.
// It returns an error if the initial connection fails.
func Connect(config Config) (*Client, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[nats] disconnected: %v", err)
			} else {
				log.Printf("[nats] disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[nats] reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("[nats] connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	log.Printf("[nats] connected to %s", nc.ConnectedUrl())

	return &Client{
		conn: nc,
		subs: make(map[string]*nats.Subscription),
	}, nil
}

// PublishRoom notifies subscribers that the given room's collection changed.
func (c *Client) PublishRoom(roomID string, data []byte) error {
	return c.conn.Publish(SubjectRoom+"."+roomID, data)
}

// SubscribeRoom subscribes to change notifications for a room. The
// subscription is keyed by owner so several sessions in one process can
// watch the same room without overwriting each other.
func (c *Client) SubscribeRoom(roomID, owner string, handler func(data []byte)) error {
	subject := SubjectRoom + "." + roomID
	key := "roomsub:" + owner
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	c.mu.Lock()
	c.subs[key] = sub
	c.mu.Unlock()
	return nil
}

// UnsubscribeRoom removes an owner's room subscription. Unsubscribing an
// owner that has no subscription is a no-op.
func (c *Client) UnsubscribeRoom(owner string) error {
	return c.unsubscribe("roomsub:" + owner)
}

// PublishPresence notifies subscribers that the presence set changed.
func (c *Client) PublishPresence(data []byte) error {
	return c.conn.Publish(SubjectPresence, data)
}

// SubscribePresence subscribes to presence change notifications, keyed by
// owner.
func (c *Client) SubscribePresence(owner string, handler func(data []byte)) error {
	key := "presencesub:" + owner
	sub, err := c.conn.Subscribe(SubjectPresence, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", SubjectPresence, err)
	}

	c.mu.Lock()
	c.subs[key] = sub
	c.mu.Unlock()
	return nil
}

// UnsubscribePresence removes an owner's presence subscription.
func (c *Client) UnsubscribePresence(owner string) error {
	return c.unsubscribe("presencesub:" + owner)
}

// Close drains all active subscriptions and closes the NATS connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, sub := range c.subs {
		if err := sub.Drain(); err != nil {
			log.Printf("[nats] drain %s: %v", key, err)
		}
	}
	c.subs = make(map[string]*nats.Subscription)

	if err := c.conn.Drain(); err != nil {
		log.Printf("[nats] connection drain: %v", err)
	}

	log.Printf("[nats] client closed")
}

// unsubscribe removes and unsubscribes a registry entry. A missing entry is
// not an error: teardown must be idempotent.
func (c *Client) unsubscribe(key string) error {
	c.mu.Lock()
	sub, ok := c.subs[key]
	if ok {
		delete(c.subs, key)
	}
	c.mu.Unlock()

	if !ok {
		return nil
	}
	if err := sub.Unsubscribe(); err != nil {
		return fmt.Errorf("nats unsubscribe %s: %w", key, err)
	}
	return nil
}
