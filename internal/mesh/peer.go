// Package mesh implements the peer-to-peer message channel. Peers find each
// other through a shared directory, connect directly over WebSocket, and
// exchange tagged chat/presence payloads with no central order of record:
// each peer appends received messages in receipt order.
package mesh

import (
	"io"
	"log"
	"net"
	"sync"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// Peer connection states. A peer is created OPEN (the handshake already
// happened during dial or accept); the connecting phase is tracked by the
// channel's dial bookkeeping.
const (
	StateOpen   = "open"
	StateClosed = "closed"
)

// Peer is one direct connection to a remote peer. Writes are serialized by a
// mutex; reads happen on a dedicated goroutine started by Start.
type Peer struct {
	ID   string   // remote peer identifier (<roomID>__<random>)
	conn net.Conn

	// dialed is true when the local side initiated the connection, which
	// determines frame masking per RFC 6455.
	dialed bool

	mu      sync.Mutex
	state   string
	writeMu sync.Mutex

	closeOnce sync.Once
	onPayload func(p *Peer, data []byte)
	onClosed  func(p *Peer)
}

// NewPeer wraps an established WebSocket connection. onPayload is invoked
// from the read goroutine for every text frame; onClosed fires exactly once
// when the connection dies or is torn down.
func NewPeer(id string, conn net.Conn, dialed bool, onPayload func(*Peer, []byte), onClosed func(*Peer)) *Peer {
	return &Peer{
		ID:        id,
		conn:      conn,
		dialed:    dialed,
		state:     StateOpen,
		onPayload: onPayload,
		onClosed:  onClosed,
	}
}

// State returns the current connection state.
func (p *Peer) State() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Start launches the read loop. It returns immediately.
func (p *Peer) Start() {
	go p.readLoop()
}

// readLoop reads frames until the connection errors out, then closes the
// peer. A remote disconnect is a normal lifecycle event, not an error.
func (p *Peer) readLoop() {
	for {
		var (
			data []byte
			err  error
		)
		if p.dialed {
			data, err = wsutil.ReadServerText(p.conn)
		} else {
			data, err = wsutil.ReadClientText(p.conn)
		}
		if err != nil {
			if err != io.EOF && p.State() != StateClosed {
				log.Printf("[mesh] read from peer=%s: %v", p.ID, err)
			}
			p.Close()
			return
		}
		if p.onPayload != nil {
			p.onPayload(p, data)
		}
	}
}

// Send writes a text frame to the peer. Sends on a connection that is not
// open are silently dropped, per the channel's fire-and-forget contract.
func (p *Peer) Send(data []byte) error {
	if p.State() != StateOpen {
		return nil
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if p.dialed {
		return wsutil.WriteClientMessage(p.conn, ws.OpText, data)
	}
	return wsutil.WriteServerMessage(p.conn, ws.OpText, data)
}

// Close tears the connection down and fires onClosed. Closing an
// already-closed peer has no observable effect.
func (p *Peer) Close() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.state = StateClosed
		p.mu.Unlock()

		p.conn.Close()
		if p.onClosed != nil {
			p.onClosed(p)
		}
	})
}
