package chat

import "sort"

// DefaultTimelineCap bounds how many messages a timeline retains. It matches
// the hosted store's subscription window.
const DefaultTimelineCap = 200

// Timeline is a bounded, timestamp-ordered list of messages. Messages are
// kept sorted ascending by creation timestamp with arrival order breaking
// ties, so out-of-order delivery from the store or from peers never produces
// a decreasing rendering.
//
// Timeline is not goroutine-safe: it is owned by the view's single
// event-handling goroutine.
type Timeline struct {
	msgs []Message
	cap  int
}

// NewTimeline creates an empty timeline holding at most capacity messages.
// A capacity <= 0 falls back to DefaultTimelineCap.
func NewTimeline(capacity int) *Timeline {
	if capacity <= 0 {
		capacity = DefaultTimelineCap
	}
	return &Timeline{cap: capacity}
}

// Insert places a message at its timestamp position. A message older than
// everything present is inserted at the front; equal timestamps keep arrival
// order. If the timeline exceeds capacity the oldest message is dropped.
func (t *Timeline) Insert(msg Message) {
	// Common case: append in order.
	i := len(t.msgs)
	for i > 0 && t.msgs[i-1].Ts > msg.Ts {
		i--
	}
	t.msgs = append(t.msgs, Message{})
	copy(t.msgs[i+1:], t.msgs[i:])
	t.msgs[i] = msg

	if len(t.msgs) > t.cap {
		t.msgs = t.msgs[len(t.msgs)-t.cap:]
	}
}

// Replace swaps the timeline contents for a full snapshot, re-sorting by
// timestamp. The hosted store does not guarantee delivery order, so every
// snapshot is re-sorted on receipt. The sort is stable: ties keep the
// snapshot's own order.
func (t *Timeline) Replace(snapshot []Message) {
	msgs := make([]Message, len(snapshot))
	copy(msgs, snapshot)
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Ts < msgs[j].Ts
	})
	if len(msgs) > t.cap {
		msgs = msgs[len(msgs)-t.cap:]
	}
	t.msgs = msgs
}

// Messages returns the current ordered contents. The returned slice is a
// copy and safe to hand to a renderer.
func (t *Timeline) Messages() []Message {
	out := make([]Message, len(t.msgs))
	copy(out, t.msgs)
	return out
}

// Len returns the number of retained messages.
func (t *Timeline) Len() int {
	return len(t.msgs)
}

// Clear empties the timeline (used on room change).
func (t *Timeline) Clear() {
	t.msgs = t.msgs[:0]
}

// Last returns the most recent message and true, or a zero message and false
// when the timeline is empty.
func (t *Timeline) Last() (Message, bool) {
	if len(t.msgs) == 0 {
		return Message{}, false
	}
	return t.msgs[len(t.msgs)-1], true
}
