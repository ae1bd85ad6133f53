// Package chat defines the message model shared by both channel variants and
// the timestamp-ordered timeline the view renders from.
package chat

import (
	"time"

	"github.com/google/uuid"
)

// Message is a single immutable chat message. The ID is assigned by the
// channel at publish time and is unique within a room. Name is the free-text
// display name chosen by the sender; Sender is the stable client identity.
type Message struct {
	ID     string `json:"id"`
	Room   string `json:"room"`
	Sender string `json:"sender"`
	Name   string `json:"name"`
	Text   string `json:"text"`
	Ts     int64  `json:"ts"` // creation time, unix milliseconds, client-stamped
}

// NewMessage stamps a new message with a fresh id and the current time.
func NewMessage(roomID, sender, name, text string) Message {
	return Message{
		ID:     uuid.New().String(),
		Room:   roomID,
		Sender: sender,
		Name:   name,
		Text:   text,
		Ts:     time.Now().UnixMilli(),
	}
}

// SystemSender is the pseudo-identity used for locally generated system
// messages (peer joined/left, degraded mode notices).
const SystemSender = "system"

// SystemMessage builds a locally generated system notice for the given room.
func SystemMessage(roomID, text string) Message {
	return Message{
		ID:     uuid.New().String(),
		Room:   roomID,
		Sender: SystemSender,
		Name:   "*",
		Text:   text,
		Ts:     time.Now().UnixMilli(),
	}
}
