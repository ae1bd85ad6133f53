package protocol

import (
	"testing"

	"github.com/murmur/chat/internal/chat"
)

func TestParse_ChatRoundTrip(t *testing.T) {
	msg := chat.Message{
		ID:     "m1",
		Room:   "lobby",
		Sender: "sender-id",
		Name:   "Alice",
		Text:   "hi",
		Ts:     1234,
	}
	data, err := EncodeChat(msg)
	if err != nil {
		t.Fatalf("EncodeChat: %v", err)
	}

	kind, payload, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if kind != KindChat {
		t.Fatalf("expected kind %q, got %q", KindChat, kind)
	}

	p, ok := payload.(ChatPayload)
	if !ok {
		t.Fatalf("expected ChatPayload, got %T", payload)
	}
	if p.Message != msg {
		t.Errorf("message mangled in transit: %+v", p.Message)
	}
}

func TestParse_PresenceRoundTrip(t *testing.T) {
	data, err := EncodePresence("sender-id", "Alice", true)
	if err != nil {
		t.Fatalf("EncodePresence: %v", err)
	}

	kind, payload, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if kind != KindPresence {
		t.Fatalf("expected kind %q, got %q", KindPresence, kind)
	}

	p := payload.(PresencePayload)
	if p.Sender != "sender-id" || p.Name != "Alice" || !p.Online {
		t.Errorf("unexpected presence payload: %+v", p)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", "{{{"},
		{"missing type", `{"message":{"text":"hi"}}`},
		{"empty type", `{"type":""}`},
		{"unknown kind", `{"type":"dance"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := Parse([]byte(tt.data)); err == nil {
				t.Errorf("expected error for %q", tt.data)
			}
		})
	}
}
