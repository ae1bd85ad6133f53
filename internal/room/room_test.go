package room

import "testing"

func TestCombine_Symmetric(t *testing.T) {
	pairs := [][2]string{
		{"alice-id", "bob-id"},
		{"zzz", "aaa"},
		{"same", "same"},
		{"0f3c", "9d21"},
	}

	for _, p := range pairs {
		ab := Combine(p[0], p[1])
		ba := Combine(p[1], p[0])
		if ab != ba {
			t.Errorf("Combine(%q,%q)=%q != Combine(%q,%q)=%q", p[0], p[1], ab, p[1], p[0], ba)
		}
	}
}

func TestCombine_DiffersFromLobby(t *testing.T) {
	if got := Combine("a", "b"); got == Lobby {
		t.Errorf("DM room id %q must differ from the lobby id", got)
	}
}

func TestCombine_DistinctPairs(t *testing.T) {
	if Combine("a", "b") == Combine("a", "c") {
		t.Error("different pairs should produce different room ids")
	}
}

func TestResolve(t *testing.T) {
	if got := Resolve("me", ""); got != Lobby {
		t.Errorf("no DM target should resolve to lobby, got %q", got)
	}
	if got := Resolve("me", "them"); got != Combine("me", "them") {
		t.Errorf("unexpected DM room id %q", got)
	}
	// Both participants compute the same id independently.
	if Resolve("me", "them") != Resolve("them", "me") {
		t.Error("Resolve is not symmetric across participants")
	}
}

func TestPeerID_RoundTrip(t *testing.T) {
	id := PeerID(Lobby)
	if !InRoom(id, Lobby) {
		t.Fatalf("peer id %q should be in room %q", id, Lobby)
	}
	if InRoom(id, "other") {
		t.Errorf("peer id %q should not be in room %q", id, "other")
	}

	got, ok := RoomOf(id)
	if !ok || got != Lobby {
		t.Errorf("RoomOf(%q) = %q, %v; want %q, true", id, got, ok, Lobby)
	}
}

func TestPeerID_Unique(t *testing.T) {
	if PeerID(Lobby) == PeerID(Lobby) {
		t.Error("consecutive peer ids should differ")
	}
}

func TestRoomOf_NoPrefix(t *testing.T) {
	if _, ok := RoomOf("no-separator-here"); ok {
		t.Error("identifier without a room prefix should not resolve")
	}
}

func TestInRoom_PrefixIsNotEnough(t *testing.T) {
	// "lobby2__x" shares the string prefix "lobby" but is a different room.
	if InRoom("lobby2__x", Lobby) {
		t.Error("room prefix match must include the separator")
	}
}
