// Package identity produces and persists the stable pseudonymous client
// identifier used across sessions. The identifier is generated once per
// profile, stored in a local bbolt database, and returned unchanged on every
// later call. There is no uniqueness negotiation: identifiers are UUIDs and
// collisions are treated as negligible.
package identity

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketProfile = []byte("profile")
	keyClientID   = []byte("client_id")
	keyName       = []byte("display_name")
)

// Provider reads and writes the local profile database.
type Provider struct {
	db        *bolt.DB
	ephemeral string // fallback id when the profile database is unavailable
}

// Open opens (creating if needed) the profile database at path. If the
// database cannot be opened the provider degrades to an ephemeral in-memory
// identity: the session still works, it just won't survive a restart.
func Open(path string) *Provider {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		log.Printf("[identity] create profile dir: %v (using ephemeral identity)", err)
		return &Provider{ephemeral: uuid.New().String()}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		log.Printf("[identity] open profile db: %v (using ephemeral identity)", err)
		return &Provider{ephemeral: uuid.New().String()}
	}
	return &Provider{db: db}
}

// Ephemeral reports whether the provider fell back to a non-persisted
// identity.
func (p *Provider) Ephemeral() bool {
	return p.db == nil
}

// GetOrCreate returns the persisted client identifier, generating and
// storing a fresh one on first use. The write happens exactly once per
// profile.
func (p *Provider) GetOrCreate() (string, error) {
	if p.db == nil {
		return p.ephemeral, nil
	}

	var id string
	err := p.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketProfile)
		if err != nil {
			return err
		}
		if v := b.Get(keyClientID); v != nil {
			id = string(v)
			return nil
		}
		id = uuid.New().String()
		return b.Put(keyClientID, []byte(id))
	})
	if err != nil {
		return "", fmt.Errorf("identity: get or create: %w", err)
	}
	return id, nil
}

// Name returns the persisted display name, or empty if none was set.
func (p *Provider) Name() string {
	if p.db == nil {
		return ""
	}
	var name string
	_ = p.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProfile)
		if b == nil {
			return nil
		}
		if v := b.Get(keyName); v != nil {
			name = string(v)
		}
		return nil
	})
	return name
}

// SetName persists the display name for future sessions.
func (p *Provider) SetName(name string) error {
	if p.db == nil {
		return nil
	}
	err := p.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketProfile)
		if err != nil {
			return err
		}
		return b.Put(keyName, []byte(name))
	})
	if err != nil {
		return fmt.Errorf("identity: set name: %w", err)
	}
	return nil
}

// Close closes the profile database.
func (p *Provider) Close() error {
	if p.db == nil {
		return nil
	}
	return p.db.Close()
}

// DefaultProfilePath returns the default location of the profile database
// under the user's config directory.
func DefaultProfilePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "murmur", "profile.db")
}
