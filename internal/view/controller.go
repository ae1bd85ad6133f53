// Package view implements the terminal view/controller. All mutable state
// (the timeline, the online set, the current room) is owned by a single
// event-loop goroutine; user input and channel callbacks post events into it
// and every event produces at most one state update. Cancellation is
// deterministic: a room is always left before the next one is joined.
package view

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/murmur/chat/internal/chat"
	"github.com/murmur/chat/internal/room"
)

// Channel is the controller's handle on a message channel, satisfied by
// thin adapters over both the hosted and mesh variants.
type Channel interface {
	// Join (re)subscribes or (re)connects to a room. Implementations must
	// retire any previous room first.
	Join(ctx context.Context, roomID string) error

	// Publish sends text to the room. Fire-and-forget.
	Publish(ctx context.Context, roomID, text string) error

	// SetName updates the display name carried in published messages and
	// presence records.
	SetName(name string)

	// Leave retires the current room. Must be idempotent.
	Leave()
}

// Online is one entry in the rendered online-user list.
type Online struct {
	Sender string
	Name   string
}

// Controller drives the chat UI for one session.
type Controller struct {
	ch       Channel
	out      io.Writer
	identity string

	events chan event
	done   chan struct{}
	quit   sync.Once

	// Event-loop-owned state. Never touched outside apply().
	name     string
	roomID   string
	dmTarget string
	timeline *chat.Timeline
	online   map[string]string // sender -> display name
}

// NewController creates a controller rendering to out. The initial display
// name may be empty; sends are rejected until one is set.
func NewController(ch Channel, out io.Writer, identity, name string) *Controller {
	return &Controller{
		ch:       ch,
		out:      out,
		identity: identity,
		name:     name,
		events:   make(chan event, 64),
		done:     make(chan struct{}),
		timeline: chat.NewTimeline(0),
		online:   make(map[string]string),
	}
}

type event interface{}

type (
	evSetName  struct{ name string }
	evSend     struct{ text string }
	evOpenDM   struct{ target string }
	evLobby    struct{}
	evWho      struct{}
	evSnapshot struct{ msgs []chat.Message }
	evMessage  struct{ msg chat.Message }
	evSystem   struct{ text string }
	evPresence struct{ records []Online }
)

type evPeerOnline struct {
	sender, name string
	online       bool
}

// post delivers an event to the loop, dropping it if the session has ended.
func (c *Controller) post(ev event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

// SetName changes the display name.
func (c *Controller) SetName(name string) { c.post(evSetName{name}) }

// Send publishes a chat message to the current room.
func (c *Controller) Send(text string) { c.post(evSend{text}) }

// OpenDM switches to the private room shared with the target identity.
func (c *Controller) OpenDM(target string) { c.post(evOpenDM{target}) }

// Lobby returns to the shared lobby room.
func (c *Controller) Lobby() { c.post(evLobby{}) }

// Who renders the current online-user list.
func (c *Controller) Who() { c.post(evWho{}) }

// OnSnapshot replaces the timeline with a full room snapshot (hosted
// variant). The snapshot is re-sorted on receipt.
func (c *Controller) OnSnapshot(msgs []chat.Message) { c.post(evSnapshot{msgs}) }

// OnMessage appends a single received message (mesh variant, and local
// echo).
func (c *Controller) OnMessage(msg chat.Message) { c.post(evMessage{msg}) }

// OnSystem renders a system notice inline.
func (c *Controller) OnSystem(text string) { c.post(evSystem{text}) }

// OnPresenceSet replaces the online set (hosted variant).
func (c *Controller) OnPresenceSet(records []Online) { c.post(evPresence{records}) }

// OnPeerPresence applies a single peer's presence change (mesh variant).
func (c *Controller) OnPeerPresence(sender, name string, online bool) {
	c.post(evPeerOnline{sender, name, online})
}

// Quit ends the session. Idempotent.
func (c *Controller) Quit() {
	c.quit.Do(func() {
		c.ch.Leave()
		close(c.done)
	})
}

// Run joins the lobby and processes events until Quit or context
// cancellation. It blocks; the caller owns the goroutine.
func (c *Controller) Run(ctx context.Context) {
	c.join(ctx, room.Lobby)

	for {
		select {
		case <-ctx.Done():
			c.Quit()
			return
		case <-c.done:
			return
		case ev := <-c.events:
			c.apply(ctx, ev)
		}
	}
}

// join leaves the current room (unconditionally, before anything else) and
// joins the next one with a cleared timeline.
func (c *Controller) join(ctx context.Context, roomID string) {
	c.ch.Leave()
	c.timeline.Clear()
	c.roomID = roomID

	if err := c.ch.Join(ctx, roomID); err != nil {
		c.renderSystem(fmt.Sprintf("offline: %v", err))
	}
	c.renderSystem("joined " + roomID)
}

// apply executes one state update. It runs exclusively on the Run goroutine.
func (c *Controller) apply(ctx context.Context, ev event) {
	switch ev := ev.(type) {
	case evSetName:
		if err := chat.ValidateName(ev.name); err != nil {
			c.renderSystem(err.Error())
			return
		}
		c.name = ev.name
		c.ch.SetName(ev.name)
		c.renderSystem("you are now " + ev.name)

	case evSend:
		if c.name == "" {
			c.renderSystem("set a name first (/name <name>)")
			return
		}
		if err := chat.ValidateMessage(ev.text); err != nil {
			c.renderSystem(err.Error())
			return
		}
		if err := c.ch.Publish(ctx, c.roomID, ev.text); err != nil {
			c.renderSystem(fmt.Sprintf("send failed: %v", err))
		}

	case evOpenDM:
		if ev.target == c.identity {
			c.renderSystem("cannot open a DM with yourself")
			return
		}
		c.dmTarget = ev.target
		c.join(ctx, room.Resolve(c.identity, ev.target))

	case evLobby:
		c.dmTarget = ""
		c.join(ctx, room.Lobby)

	case evWho:
		c.renderOnline()

	case evSnapshot:
		c.timeline.Replace(filterRoom(ev.msgs, c.roomID))
		c.renderTimeline()

	case evMessage:
		// Drop stragglers from a retired room.
		if ev.msg.Room != c.roomID {
			return
		}
		c.timeline.Insert(ev.msg)
		c.renderMessage(ev.msg)

	case evSystem:
		c.renderSystem(ev.text)

	case evPresence:
		c.online = make(map[string]string, len(ev.records))
		for _, r := range ev.records {
			c.online[r.Sender] = r.Name
		}

	case evPeerOnline:
		if ev.online {
			if _, known := c.online[ev.sender]; !known {
				c.renderSystem(ev.name + " is online")
			}
			c.online[ev.sender] = ev.name
		} else {
			delete(c.online, ev.sender)
		}

	default:
		log.Printf("[view] unhandled event %T", ev)
	}
}

// Timeline returns the current ordered messages. Intended for tests and for
// rendering after the loop has stopped; while the loop runs the renderer is
// the consumer.
func (c *Controller) Timeline() []chat.Message {
	return c.timeline.Messages()
}

// OnlineUsers returns the current online set.
func (c *Controller) OnlineUsers() []Online {
	out := make([]Online, 0, len(c.online))
	for sender, name := range c.online {
		out = append(out, Online{Sender: sender, Name: name})
	}
	return out
}

// filterRoom drops snapshot entries that do not belong to the given room.
// The hosted store keys collections by room already; this guards against
// cross-room leakage if a stale snapshot lands after a room switch.
func filterRoom(msgs []chat.Message, roomID string) []chat.Message {
	out := msgs[:0:0]
	for _, m := range msgs {
		if m.Room == roomID {
			out = append(out, m)
		}
	}
	return out
}
