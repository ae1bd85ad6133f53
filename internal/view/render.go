package view

import (
	"fmt"
	"sort"
	"time"

	"github.com/murmur/chat/internal/chat"
)

// renderMessage prints one appended message.
func (c *Controller) renderMessage(msg chat.Message) {
	fmt.Fprintf(c.out, "[%s] %s: %s\n", stamp(msg.Ts), msg.Name, msg.Text)
}

// renderTimeline redraws the full ordered message list, used after a
// snapshot replaces the timeline.
func (c *Controller) renderTimeline() {
	fmt.Fprintf(c.out, "--- %s ---\n", c.roomID)
	for _, m := range c.timeline.Messages() {
		fmt.Fprintf(c.out, "[%s] %s: %s\n", stamp(m.Ts), m.Name, m.Text)
	}
}

// renderSystem prints a system notice.
func (c *Controller) renderSystem(text string) {
	fmt.Fprintf(c.out, "* %s\n", text)
}

// renderOnline prints the current online-user list, sorted by name for a
// stable display.
func (c *Controller) renderOnline() {
	users := c.OnlineUsers()
	sort.Slice(users, func(i, j int) bool { return users[i].Name < users[j].Name })

	fmt.Fprintf(c.out, "* %d online\n", len(users))
	for _, u := range users {
		fmt.Fprintf(c.out, "*   %s (%s)\n", u.Name, u.Sender)
	}
}

func stamp(tsMillis int64) string {
	return time.UnixMilli(tsMillis).Format("15:04:05")
}
