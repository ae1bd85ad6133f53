package mesh

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"

	"github.com/murmur/chat/internal/chat"
	"github.com/murmur/chat/internal/directory"
	"github.com/murmur/chat/internal/metrics"
	"github.com/murmur/chat/internal/protocol"
	"github.com/murmur/chat/internal/room"
)

// Session states for the mesh channel. READY persists for the session's
// lifetime, periodically re-entering a discovery scan: the directory has no
// push notifications, so late joiners are only found by rescanning.
const (
	SessionInit        = "init"
	SessionDiscovering = "discovering"
	SessionReady       = "ready"
)

// DefaultRefreshInterval is how often discovery rescans the directory.
const DefaultRefreshInterval = 10 * time.Second

// Dialer establishes a WebSocket connection to a peer at addr, announcing
// localPeerID. Injectable for tests.
type Dialer func(ctx context.Context, addr, localPeerID string) (net.Conn, error)

// WSDial is the production dialer built on gobwas/ws.
func WSDial(ctx context.Context, addr, localPeerID string) (net.Conn, error) {
	conn, _, _, err := ws.Dial(ctx, DialURL(addr, localPeerID))
	if err != nil {
		return nil, fmt.Errorf("mesh: dial %s: %w", addr, err)
	}
	return conn, nil
}

// Config holds mesh channel tuning parameters.
type Config struct {
	ListenAddr      string        // local accept endpoint, e.g. ":9000"
	AdvertiseAddr   string        // address registered in the directory; defaults to ListenAddr's bound address
	RefreshInterval time.Duration // directory rescan interval
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr:      ":0",
		RefreshInterval: DefaultRefreshInterval,
	}
}

// Handlers are the channel's callbacks into the view. All of them are
// invoked from channel-internal goroutines; the view is expected to funnel
// them into its single event loop.
type Handlers struct {
	OnMessage  func(msg chat.Message)
	OnSystem   func(text string)
	OnPresence func(sender, name string, online bool)
}

// Channel is the peer-mesh message channel for one room.
type Channel struct {
	dir      directory.Directory
	dial     Dialer
	config   Config
	handlers Handlers

	roomID      string
	localPeerID string
	identity    string

	mu    sync.Mutex
	name  string
	state string
	peers map[string]*Peer // remote peer id -> connection

	listener *Listener
	done     chan struct{}
	stopOnce sync.Once
}

// NewChannel creates a mesh channel for roomID. The display name is carried
// in presence announcements and may change later via SetName.
func NewChannel(dir directory.Directory, dial Dialer, config Config, roomID, identity, name string, handlers Handlers) *Channel {
	if dial == nil {
		dial = WSDial
	}
	if config.RefreshInterval <= 0 {
		config.RefreshInterval = DefaultRefreshInterval
	}
	return &Channel{
		dir:         dir,
		dial:        dial,
		config:      config,
		handlers:    handlers,
		roomID:      roomID,
		localPeerID: room.PeerID(roomID),
		identity:    identity,
		name:        name,
		state:       SessionInit,
		peers:       make(map[string]*Peer),
		done:        make(chan struct{}),
	}
}

// State returns the current session state.
func (c *Channel) State() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// PeerID returns the local peer identifier registered in the directory.
func (c *Channel) PeerID() string {
	return c.localPeerID
}

// Start binds the local listener, registers with the directory, runs the
// first discovery scan, and launches the periodic rescan loop. It returns
// after the first scan; peers connect in the background.
func (c *Channel) Start(ctx context.Context) error {
	ln, err := Listen(c.config.ListenAddr)
	if err != nil {
		return err
	}
	c.listener = ln
	go ln.Serve(c.acceptPeer)

	advertise := c.config.AdvertiseAddr
	if advertise == "" {
		advertise = ln.Addr()
	}

	c.setState(SessionDiscovering)
	if err := c.dir.Register(ctx, directory.Entry{ID: c.localPeerID, Addr: advertise}); err != nil {
		// Registration failure is transient: retried on every rescan.
		log.Printf("[mesh] directory register: %v", err)
	}
	c.scan(ctx)
	c.setState(SessionReady)

	go c.refreshLoop(advertise)

	log.Printf("[mesh] session ready room=%s peer=%s listen=%s", c.roomID, c.localPeerID, ln.Addr())
	return nil
}

func (c *Channel) setState(state string) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

// refreshLoop re-registers and rescans on a fixed interval so peers that
// joined after the initial scan are eventually connected.
func (c *Channel) refreshLoop(advertise string) {
	ticker := time.NewTicker(c.config.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), c.config.RefreshInterval)
			c.setState(SessionDiscovering)
			if err := c.dir.Register(ctx, directory.Entry{ID: c.localPeerID, Addr: advertise}); err != nil {
				log.Printf("[mesh] directory refresh: %v", err)
			}
			c.scan(ctx)
			c.setState(SessionReady)
			cancel()
		}
	}
}

// scan lists the directory, filters to peers sharing the local room prefix,
// and connects to each not already connected. A failed list is logged and
// retried on the next interval, never fatal.
func (c *Channel) scan(ctx context.Context) {
	entries, err := c.dir.List(ctx)
	if err != nil {
		metrics.DirectoryScans.WithLabelValues("error").Inc()
		log.Printf("[mesh] directory list: %v", err)
		return
	}
	metrics.DirectoryScans.WithLabelValues("ok").Inc()

	for _, entry := range entries {
		if entry.ID == c.localPeerID {
			continue
		}
		if !room.InRoom(entry.ID, c.roomID) {
			continue
		}
		c.mu.Lock()
		_, connected := c.peers[entry.ID]
		c.mu.Unlock()
		if connected {
			continue
		}
		c.connect(ctx, entry)
	}
}

// connect dials a discovered peer and registers the connection. A failed
// dial is dropped; the next scan will try again if the peer is still listed.
func (c *Channel) connect(ctx context.Context, entry directory.Entry) {
	conn, err := c.dial(ctx, entry.Addr, c.localPeerID)
	if err != nil {
		log.Printf("[mesh] connect peer=%s: %v", entry.ID, err)
		return
	}
	c.addPeer(entry.ID, conn, true)
}

// acceptPeer registers an inbound connection from a peer that dialed us.
func (c *Channel) acceptPeer(peerID string, conn net.Conn) {
	if !room.InRoom(peerID, c.roomID) {
		log.Printf("[mesh] rejecting peer=%s: wrong room", peerID)
		conn.Close()
		return
	}
	c.addPeer(peerID, conn, false)
}

// addPeer wires up a new peer connection, announces local presence on it,
// and starts its read loop. A duplicate connection to an already-connected
// peer is dropped.
func (c *Channel) addPeer(peerID string, conn net.Conn, dialed bool) {
	peer := NewPeer(peerID, conn, dialed, c.handlePayload, c.handleClosed)

	c.mu.Lock()
	if _, exists := c.peers[peerID]; exists {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.peers[peerID] = peer
	count := len(c.peers)
	name := c.name
	c.mu.Unlock()

	metrics.PeersConnected.Set(float64(count))
	peer.Start()

	// Presence announcement on reaching OPEN.
	if data, err := protocol.EncodePresence(c.identity, name, true); err == nil {
		if err := peer.Send(data); err != nil {
			log.Printf("[mesh] presence announce to peer=%s: %v", peerID, err)
		}
	}

	log.Printf("[mesh] peer connected peer=%s dialed=%v (total=%d)", peerID, dialed, count)
}

// handlePayload decodes a frame from a peer and routes it to the view.
func (c *Channel) handlePayload(p *Peer, data []byte) {
	kind, payload, err := protocol.Parse(data)
	if err != nil {
		log.Printf("[mesh] bad payload from peer=%s: %v", p.ID, err)
		return
	}

	switch kind {
	case protocol.KindChat:
		msg := payload.(protocol.ChatPayload).Message
		metrics.MessagesReceived.WithLabelValues("mesh").Inc()
		if c.handlers.OnMessage != nil {
			c.handlers.OnMessage(msg)
		}
	case protocol.KindPresence:
		pr := payload.(protocol.PresencePayload)
		if c.handlers.OnPresence != nil {
			c.handlers.OnPresence(pr.Sender, pr.Name, pr.Online)
		}
	}
}

// handleClosed removes a dead connection from the active set and reports the
// departure as a system message. It fires at most once per peer; a second
// close of the same connection has no observable effect.
func (c *Channel) handleClosed(p *Peer) {
	c.mu.Lock()
	current, ok := c.peers[p.ID]
	if ok && current == p {
		delete(c.peers, p.ID)
	}
	count := len(c.peers)
	c.mu.Unlock()

	if !ok || current != p {
		return
	}

	metrics.PeersConnected.Set(float64(count))
	log.Printf("[mesh] peer disconnected peer=%s (total=%d)", p.ID, count)
	if c.handlers.OnSystem != nil {
		c.handlers.OnSystem("peer left: " + p.ID)
	}
}

// Publish sends a chat message to every open connection. The sender's own
// view gets the message immediately (local echo): with no central order of
// record there is nothing to wait for. No acks, no retry; peers append in
// receipt order.
func (c *Channel) Publish(text string) error {
	c.mu.Lock()
	name := c.name
	open := make([]*Peer, 0, len(c.peers))
	for _, p := range c.peers {
		open = append(open, p)
	}
	c.mu.Unlock()

	msg := chat.NewMessage(c.roomID, c.identity, name, text)

	if c.handlers.OnMessage != nil {
		c.handlers.OnMessage(msg)
	}

	data, err := protocol.EncodeChat(msg)
	if err != nil {
		return err
	}
	for _, p := range open {
		if err := p.Send(data); err != nil {
			log.Printf("[mesh] send to peer=%s: %v", p.ID, err)
		}
	}
	metrics.MessagesPublished.WithLabelValues("mesh").Inc()
	return nil
}

// SetName updates the display name and re-announces presence to every
// connected peer.
func (c *Channel) SetName(name string) {
	c.mu.Lock()
	c.name = name
	open := make([]*Peer, 0, len(c.peers))
	for _, p := range c.peers {
		open = append(open, p)
	}
	c.mu.Unlock()

	data, err := protocol.EncodePresence(c.identity, name, true)
	if err != nil {
		return
	}
	for _, p := range open {
		_ = p.Send(data)
	}
}

// Peers returns the ids of currently connected peers.
func (c *Channel) Peers() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.peers))
	for id := range c.peers {
		ids = append(ids, id)
	}
	return ids
}

// Close deregisters from the directory, announces departure, and tears down
// every connection. Idempotent.
func (c *Channel) Close() {
	c.stopOnce.Do(func() {
		close(c.done)

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := c.dir.Deregister(ctx, c.localPeerID); err != nil {
			log.Printf("[mesh] deregister: %v", err)
		}

		c.mu.Lock()
		open := make([]*Peer, 0, len(c.peers))
		for _, p := range c.peers {
			open = append(open, p)
		}
		name := c.name
		c.mu.Unlock()

		if data, err := protocol.EncodePresence(c.identity, name, false); err == nil {
			for _, p := range open {
				_ = p.Send(data)
			}
		}
		for _, p := range open {
			p.Close()
		}
		if c.listener != nil {
			c.listener.Close()
		}
		c.setState(SessionInit)
	})
}
