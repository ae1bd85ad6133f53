// Package room computes canonical room identifiers. The lobby is a fixed
// literal; a direct-message room is a deterministic symmetric combination of
// two client identities, so both participants arrive at the same id without
// any negotiation or central allocation.
package room

import (
	"strings"

	"github.com/google/uuid"
)

const (
	// Lobby is the shared default room every client joins absent a DM target.
	Lobby = "lobby"

	// dmSeparator joins the two identities of a DM room id.
	dmSeparator = "--"

	// PeerSeparator joins a room id and a random suffix into a mesh peer id.
	PeerSeparator = "__"
)

// Combine returns the room id for a private conversation between a and b.
// The pair is sorted lexicographically before joining, so Combine(a, b) and
// Combine(b, a) are identical.
func Combine(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + dmSeparator + b
}

// Resolve returns the current room id: the lobby when no DM target is set,
// otherwise the symmetric combination of the local identity and the target.
// Pure function of its inputs.
func Resolve(local, dmTarget string) string {
	if dmTarget == "" {
		return Lobby
	}
	return Combine(local, dmTarget)
}

// PeerID generates a fresh mesh peer identifier embedding the room id as a
// prefix, of the form <roomID>__<random>. Discovery filters the directory on
// this prefix.
func PeerID(roomID string) string {
	return roomID + PeerSeparator + uuid.New().String()
}

// InRoom reports whether a peer identifier belongs to the given room.
func InRoom(peerID, roomID string) bool {
	return strings.HasPrefix(peerID, roomID+PeerSeparator)
}

// RoomOf extracts the room id embedded in a peer identifier. The second
// return value is false if the identifier does not carry a room prefix.
func RoomOf(peerID string) (string, bool) {
	i := strings.LastIndex(peerID, PeerSeparator)
	if i <= 0 {
		return "", false
	}
	return peerID[:i], true
}
