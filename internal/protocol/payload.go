// Package protocol defines the tagged payloads exchanged over direct peer
// connections in the mesh variant. All payloads are serialized as JSON and
// follow a consistent envelope format with a type discriminator.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/murmur/chat/internal/chat"
)

// Payload kinds carried between peers.
const (
	KindChat     = "chat"
	KindPresence = "presence"
)

// Envelope holds the payload kind and the raw JSON for deferred parsing into
// a concrete struct.
type Envelope struct {
	Kind string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON captures the full raw bytes and extracts only the "type"
// field so the rest of the payload can be decoded later into the appropriate
// concrete struct.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	var partial struct {
		Kind string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Kind == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Kind = partial.Kind
	return nil
}

// ChatPayload carries a chat message to a peer.
type ChatPayload struct {
	Kind    string       `json:"type"`
	Message chat.Message `json:"message"`
}

// PresencePayload announces the sender's presence on a freshly opened
// connection (or its departure when Online is false).
type PresencePayload struct {
	Kind   string `json:"type"`
	Sender string `json:"sender"`
	Name   string `json:"name"`
	Online bool   `json:"online"`
}

// EncodeChat serializes a chat message as a tagged payload.
func EncodeChat(msg chat.Message) ([]byte, error) {
	data, err := json.Marshal(ChatPayload{Kind: KindChat, Message: msg})
	if err != nil {
		return nil, fmt.Errorf("protocol: encode chat payload: %w", err)
	}
	return data, nil
}

// EncodePresence serializes a presence announcement as a tagged payload.
func EncodePresence(sender, name string, online bool) ([]byte, error) {
	data, err := json.Marshal(PresencePayload{
		Kind:   KindPresence,
		Sender: sender,
		Name:   name,
		Online: online,
	})
	if err != nil {
		return nil, fmt.Errorf("protocol: encode presence payload: %w", err)
	}
	return data, nil
}

// Parse decodes raw peer bytes into a typed payload. It returns the payload
// kind, the decoded struct, and any error encountered during parsing. An
// error is returned for unknown kinds.
func Parse(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse payload: %w", err)
	}

	var (
		payload interface{}
		err     error
	)

	switch env.Kind {
	case KindChat:
		var p ChatPayload
		err = json.Unmarshal(env.Raw, &p)
		payload = p
	case KindPresence:
		var p PresencePayload
		err = json.Unmarshal(env.Raw, &p)
		payload = p
	default:
		return env.Kind, nil, fmt.Errorf("protocol: unknown payload kind: %q", env.Kind)
	}

	if err != nil {
		return env.Kind, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Kind, err)
	}
	return env.Kind, payload, nil
}
