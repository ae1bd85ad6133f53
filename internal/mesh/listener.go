package mesh

import (
	"fmt"
	"log"
	"net"
	"net/url"
	"strings"
	"sync"

	"github.com/gobwas/ws"
)

// peerIDParam is the query parameter a dialing peer uses to identify itself.
const peerIDParam = "peer"

// Listener accepts inbound peer connections. Each client runs one so that
// peers discovered later can dial in; the advertised address is what gets
// registered in the directory.
type Listener struct {
	ln        net.Listener
	closeOnce sync.Once
}

// Listen binds the local WebSocket endpoint on addr (e.g. ":9000" for an
// OS-assigned interface, or "0" port for an ephemeral one).
func Listen(addr string) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("mesh: listen %s: %w", addr, err)
	}
	return &Listener{ln: ln}, nil
}

// Addr returns the bound address, useful when an ephemeral port was
// requested.
func (l *Listener) Addr() string {
	return l.ln.Addr().String()
}

// Serve accepts and upgrades connections until the listener is closed,
// invoking onPeer with the remote peer's self-declared identifier and the
// established connection. It blocks; run it on its own goroutine.
func (l *Listener) Serve(onPeer func(peerID string, conn net.Conn)) {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			// Closed listener: normal teardown.
			return
		}

		go func(conn net.Conn) {
			peerID, err := upgrade(conn)
			if err != nil {
				log.Printf("[mesh] upgrade failed from %s: %v", conn.RemoteAddr(), err)
				conn.Close()
				return
			}
			onPeer(peerID, conn)
		}(conn)
	}
}

// upgrade performs the server side of the WebSocket handshake and extracts
// the dialer's peer id from the request URI.
func upgrade(conn net.Conn) (string, error) {
	var peerID string
	upgrader := ws.Upgrader{
		OnRequest: func(uri []byte) error {
			u, err := url.Parse(string(uri))
			if err != nil {
				return ws.RejectConnectionError(ws.RejectionStatus(400))
			}
			peerID = u.Query().Get(peerIDParam)
			return nil
		},
	}
	if _, err := upgrader.Upgrade(conn); err != nil {
		return "", err
	}
	if peerID == "" {
		return "", fmt.Errorf("mesh: dialer did not identify itself")
	}
	return peerID, nil
}

// Close stops accepting. Idempotent.
func (l *Listener) Close() {
	l.closeOnce.Do(func() {
		l.ln.Close()
	})
}

// DialURL builds the WebSocket URL for dialing a peer at addr, announcing
// the local peer id in the query string.
func DialURL(addr, localPeerID string) string {
	if !strings.Contains(addr, "://") {
		addr = "ws://" + addr
	}
	return addr + "/peer?" + peerIDParam + "=" + url.QueryEscape(localPeerID)
}
