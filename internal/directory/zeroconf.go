package directory

import (
	"context"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
)

const (
	mdnsService = "_murmur._tcp"
	mdnsDomain  = "local."

	// browseWindow bounds how long a List blocks collecting mDNS responses.
	browseWindow = 2 * time.Second
)

// Zeroconf is a LAN directory built on mDNS service discovery. There is no
// central service: each peer announces itself and browses for the others.
// Peer id and dial address travel in TXT records.
type Zeroconf struct {
	mu     sync.Mutex
	server *zeroconf.Server // non-nil while registered
}

// NewZeroconf creates a LAN directory. Registration happens lazily on the
// first Register call.
func NewZeroconf() *Zeroconf {
	return &Zeroconf{}
}

// Register announces the local peer on the LAN. A repeated Register with the
// same id refreshes nothing (mDNS announcements are continuous) and is a
// no-op while the previous registration is live.
func (z *Zeroconf) Register(ctx context.Context, entry Entry) error {
	z.mu.Lock()
	defer z.mu.Unlock()

	if z.server != nil {
		return nil
	}

	port := dialPort(entry.Addr)
	server, err := zeroconf.Register(
		entry.ID,
		mdnsService,
		mdnsDomain,
		port,
		[]string{"id=" + entry.ID, "addr=" + entry.Addr},
		nil,
	)
	if err != nil {
		return fmt.Errorf("directory: mdns register: %w", err)
	}
	z.server = server
	log.Printf("[directory] mdns registered id=%s port=%d", entry.ID, port)
	return nil
}

// Deregister withdraws the local announcement. Safe to call when not
// registered.
func (z *Zeroconf) Deregister(ctx context.Context, id string) error {
	z.mu.Lock()
	defer z.mu.Unlock()

	if z.server != nil {
		z.server.Shutdown()
		z.server = nil
	}
	return nil
}

// List browses the LAN for peers, blocking for at most the browse window
// (or until ctx is cancelled).
func (z *Zeroconf) List(ctx context.Context) ([]Entry, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("directory: mdns resolver: %w", err)
	}

	browseCtx, cancel := context.WithTimeout(ctx, browseWindow)
	defer cancel()

	results := make(chan *zeroconf.ServiceEntry)
	var (
		mu      sync.Mutex
		entries []Entry
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for se := range results {
			if e, ok := entryFromService(se); ok {
				mu.Lock()
				entries = append(entries, e)
				mu.Unlock()
			}
		}
	}()

	if err := resolver.Browse(browseCtx, mdnsService, mdnsDomain, results); err != nil {
		return nil, fmt.Errorf("directory: mdns browse: %w", err)
	}
	<-browseCtx.Done()
	<-done

	mu.Lock()
	defer mu.Unlock()
	return entries, nil
}

// entryFromService reconstructs a directory entry from an mDNS answer,
// preferring the TXT-carried address and falling back to the resolved
// IPv4:port.
func entryFromService(se *zeroconf.ServiceEntry) (Entry, bool) {
	entry := Entry{ID: se.Instance}
	for _, txt := range se.Text {
		if v, ok := strings.CutPrefix(txt, "id="); ok {
			entry.ID = v
		}
		if v, ok := strings.CutPrefix(txt, "addr="); ok {
			entry.Addr = v
		}
	}
	if entry.Addr == "" && len(se.AddrIPv4) > 0 {
		entry.Addr = net.JoinHostPort(se.AddrIPv4[0].String(), strconv.Itoa(se.Port))
	}
	if entry.ID == "" || entry.Addr == "" {
		return Entry{}, false
	}
	return entry, true
}

// dialPort extracts the TCP port from a dial address, defaulting to 0 (let
// mDNS report whatever was announced) when none can be parsed.
func dialPort(addr string) int {
	// Addresses look like "ws://host:port" or "host:port".
	if i := strings.Index(addr, "://"); i >= 0 {
		addr = addr[i+3:]
	}
	if i := strings.Index(addr, "/"); i >= 0 {
		addr = addr[:i]
	}
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0
	}
	return port
}
