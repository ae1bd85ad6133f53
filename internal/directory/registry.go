package directory

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/murmur/chat/internal/metrics"
)

// DefaultEntryTTL is how long a registration stays valid without a refresh.
// Clients re-register on every discovery scan, so the TTL only needs to
// cover a few missed scans.
const DefaultEntryTTL = 2 * time.Minute

type leasedEntry struct {
	Entry
	deadline time.Time
}

// Registry is the in-memory store behind the directory service. Entries
// carry a lease deadline; expired entries are dropped on read and by the
// prune loop.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]leasedEntry
	ttl     time.Duration
}

// NewRegistry creates an empty registry. A ttl <= 0 falls back to
// DefaultEntryTTL.
func NewRegistry(ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = DefaultEntryTTL
	}
	return &Registry{
		entries: make(map[string]leasedEntry),
		ttl:     ttl,
	}
}

// Put registers or refreshes an entry.
func (r *Registry) Put(entry Entry) {
	r.mu.Lock()
	r.entries[entry.ID] = leasedEntry{Entry: entry, deadline: time.Now().Add(r.ttl)}
	metrics.DirectoryPeers.Set(float64(len(r.entries)))
	r.mu.Unlock()
}

// Remove deletes an entry. Removing an unknown id is a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.entries, id)
	metrics.DirectoryPeers.Set(float64(len(r.entries)))
	r.mu.Unlock()
}

// List returns all live entries, dropping any whose lease has expired.
func (r *Registry) List() []Entry {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Entry, 0, len(r.entries))
	for id, e := range r.entries {
		if now.After(e.deadline) {
			delete(r.entries, id)
			continue
		}
		out = append(out, e.Entry)
	}
	metrics.DirectoryPeers.Set(float64(len(r.entries)))
	return out
}

// Count returns the number of entries, including any not yet pruned.
func (r *Registry) Count() int {
	r.mu.RLock()
	n := len(r.entries)
	r.mu.RUnlock()
	return n
}

// StartPruneLoop removes expired entries in the background until ctx is
// cancelled, so abandoned registrations don't linger between List calls.
func (r *Registry) StartPruneLoop(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				log.Printf("[directory] prune loop stopped")
				return
			case <-ticker.C:
				r.List()
			}
		}
	}()
}
