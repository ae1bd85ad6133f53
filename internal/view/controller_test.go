package view

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/murmur/chat/internal/chat"
	"github.com/murmur/chat/internal/room"
)

// hubChannel is a fake channel shared by several controllers: Publish
// stamps a message and delivers it synchronously to every subscriber, like
// the mesh variant with local echo.
type hubChannel struct {
	mu     sync.Mutex
	subs   map[*Controller]string // controller -> identity
	leaves int
}

func newHub() *hubChannel {
	return &hubChannel{subs: make(map[*Controller]string)}
}

type hubSession struct {
	hub        *hubChannel
	controller *Controller
	identity   string
	name       string
	leaves     int
}

func (s *hubSession) Join(_ context.Context, roomID string) error {
	s.hub.mu.Lock()
	s.hub.subs[s.controller] = s.identity
	s.hub.mu.Unlock()
	return nil
}

func (s *hubSession) Publish(_ context.Context, roomID, text string) error {
	msg := chat.NewMessage(roomID, s.identity, s.name, text)
	s.hub.mu.Lock()
	targets := make([]*Controller, 0, len(s.hub.subs))
	for c := range s.hub.subs {
		targets = append(targets, c)
	}
	s.hub.mu.Unlock()
	for _, c := range targets {
		c.OnMessage(msg)
	}
	return nil
}

func (s *hubSession) SetName(name string) {
	s.name = name
}

func (s *hubSession) Leave() {
	s.leaves++
	s.hub.mu.Lock()
	s.hub.leaves++
	s.hub.mu.Unlock()
}

// drain applies all queued events on the caller's goroutine, standing in
// for the Run loop in tests.
func drain(ctx context.Context, cs ...*Controller) {
	for _, c := range cs {
		for len(c.events) > 0 {
			c.apply(ctx, <-c.events)
		}
	}
}

func newPair(hub *hubChannel) (a, b *Controller, sa, sb *hubSession) {
	sa = &hubSession{hub: hub, identity: "identity-a"}
	sb = &hubSession{hub: hub, identity: "identity-b"}
	a = NewController(sa, &bytes.Buffer{}, "identity-a", "")
	b = NewController(sb, &bytes.Buffer{}, "identity-b", "Bob")
	sa.controller, sb.controller = a, b
	return a, b, sa, sb
}

func TestEndToEnd_LobbyMessageOrderedLast(t *testing.T) {
	ctx := context.Background()
	hub := newHub()
	a, b, _, _ := newPair(hub)

	a.join(ctx, room.Lobby)
	b.join(ctx, room.Lobby)

	// B already has some history.
	b.OnMessage(chat.Message{ID: "h1", Room: room.Lobby, Sender: "x", Name: "Old", Text: "earlier", Ts: 1})
	drain(ctx, b)

	// A sets a name and sends.
	a.SetName("Alice")
	drain(ctx, a)
	a.Send("hi")
	drain(ctx, a, b)

	msgs := b.Timeline()
	if len(msgs) != 2 {
		t.Fatalf("expected history + 1 new message, got %d: %+v", len(msgs), msgs)
	}
	last := msgs[len(msgs)-1]
	if last.Name != "Alice" || last.Text != "hi" {
		t.Errorf("expected {Alice, hi} appended last, got {%s, %s}", last.Name, last.Text)
	}

	// Exactly one copy arrived.
	count := 0
	for _, m := range msgs {
		if m.Text == "hi" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected exactly one copy of the message, got %d", count)
	}

	// The sender saw its own message too (local echo via the hub).
	if own := a.Timeline(); len(own) == 0 || own[len(own)-1].Text != "hi" {
		t.Errorf("sender timeline missing own message: %+v", own)
	}
}

func TestSend_RequiresName(t *testing.T) {
	ctx := context.Background()
	hub := newHub()
	a, _, _, _ := newPair(hub)
	a.join(ctx, room.Lobby)

	a.Send("hello")
	drain(ctx, a)

	if len(a.Timeline()) != 0 {
		t.Error("message should not be published without a display name")
	}
}

func TestRoomSwitch_DropsStaleMessages(t *testing.T) {
	ctx := context.Background()
	hub := newHub()
	a, _, _, _ := newPair(hub)
	a.join(ctx, room.Lobby)

	a.OpenDM("identity-b")
	drain(ctx, a)

	// A lobby message straggles in after the switch.
	a.OnMessage(chat.Message{ID: "s1", Room: room.Lobby, Sender: "x", Name: "Old", Text: "stale", Ts: 5})
	drain(ctx, a)

	if len(a.Timeline()) != 0 {
		t.Errorf("stale lobby message leaked into the DM room: %+v", a.Timeline())
	}

	// A message for the DM room lands normally.
	dm := room.Resolve("identity-a", "identity-b")
	a.OnMessage(chat.Message{ID: "d1", Room: dm, Sender: "identity-b", Name: "Bob", Text: "psst", Ts: 6})
	drain(ctx, a)
	if len(a.Timeline()) != 1 {
		t.Errorf("DM message not delivered: %+v", a.Timeline())
	}
}

func TestRoomSwitch_LeavesBeforeJoining(t *testing.T) {
	ctx := context.Background()
	hub := newHub()
	a, _, sa, _ := newPair(hub)
	a.join(ctx, room.Lobby)
	leavesAfterJoin := sa.leaves

	a.OpenDM("identity-b")
	drain(ctx, a)

	if sa.leaves != leavesAfterJoin+1 {
		t.Errorf("expected exactly one leave on room switch, got %d", sa.leaves-leavesAfterJoin)
	}
}

func TestSnapshot_ReplacesAndSorts(t *testing.T) {
	ctx := context.Background()
	hub := newHub()
	a, _, _, _ := newPair(hub)
	a.join(ctx, room.Lobby)

	a.OnSnapshot([]chat.Message{
		{ID: "c", Room: room.Lobby, Name: "n", Text: "third", Ts: 3},
		{ID: "a", Room: room.Lobby, Name: "n", Text: "first", Ts: 1},
		{ID: "b", Room: room.Lobby, Name: "n", Text: "second", Ts: 2},
		{ID: "x", Room: "other", Name: "n", Text: "leak", Ts: 4},
	})
	drain(ctx, a)

	msgs := a.Timeline()
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages (cross-room entry dropped), got %d", len(msgs))
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i].Ts < msgs[i-1].Ts {
			t.Fatalf("snapshot not sorted at %d: %+v", i, msgs)
		}
	}
	for _, m := range msgs {
		if m.Text == "leak" {
			t.Error("cross-room message leaked into snapshot")
		}
	}
}

func TestQuit_Idempotent(t *testing.T) {
	hub := newHub()
	a, _, sa, _ := newPair(hub)
	a.join(context.Background(), room.Lobby)
	leaves := sa.leaves

	a.Quit()
	a.Quit()

	if sa.leaves != leaves+1 {
		t.Errorf("expected exactly one leave on quit, got %d", sa.leaves-leaves)
	}
}

func TestPeerPresence_TracksOnlineSet(t *testing.T) {
	ctx := context.Background()
	hub := newHub()
	a, _, _, _ := newPair(hub)
	a.join(ctx, room.Lobby)

	a.OnPeerPresence("identity-b", "Bob", true)
	a.OnPeerPresence("identity-c", "Carol", true)
	drain(ctx, a)
	if got := len(a.OnlineUsers()); got != 2 {
		t.Fatalf("expected 2 online, got %d", got)
	}

	a.OnPeerPresence("identity-b", "Bob", false)
	drain(ctx, a)

	users := a.OnlineUsers()
	if len(users) != 1 || users[0].Name != "Carol" {
		t.Errorf("unexpected online set: %+v", users)
	}
}

func TestRender_SystemAndMessages(t *testing.T) {
	ctx := context.Background()
	hub := newHub()
	out := &bytes.Buffer{}
	s := &hubSession{hub: hub, identity: "identity-a"}
	c := NewController(s, out, "identity-a", "Alice")
	s.controller = c
	c.join(ctx, room.Lobby)

	c.OnMessage(chat.Message{ID: "m", Room: room.Lobby, Name: "Bob", Text: "hello", Ts: 1})
	c.OnSystem("peer left: lobby__x")
	drain(ctx, c)

	rendered := out.String()
	if !strings.Contains(rendered, "Bob: hello") {
		t.Errorf("message not rendered: %q", rendered)
	}
	if !strings.Contains(rendered, "* peer left: lobby__x") {
		t.Errorf("system notice not rendered: %q", rendered)
	}
}
