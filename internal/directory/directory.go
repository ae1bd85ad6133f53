// Package directory implements peer discovery for the mesh variant. A
// directory is a shared registry of peer identifiers and dial addresses;
// clients register themselves and periodically list everyone else. Two
// implementations exist: an HTTP client for the hosted directory service
// (which this package also implements, see Registry and Handler), and an
// mDNS/zeroconf directory for LAN use with no central service.
package directory

import "context"

// Entry is one registered peer: its identifier (which embeds the room id as
// a prefix) and the WebSocket address other peers dial to reach it.
type Entry struct {
	ID   string `json:"id"`
	Addr string `json:"addr"`
}

// Directory is the discovery contract used by the mesh channel. All methods
// are safe to call concurrently. A failed List is reported, logged by the
// caller, and simply retried on the next scheduled scan; it is never fatal.
type Directory interface {
	// Register announces the local peer. Re-registering the same id
	// refreshes its lease.
	Register(ctx context.Context, entry Entry) error

	// Deregister removes the local peer. Removing an unknown id is a no-op.
	Deregister(ctx context.Context, id string) error

	// List returns all currently registered peers, across all rooms. The
	// caller filters by room prefix.
	List(ctx context.Context) ([]Entry, error)
}
