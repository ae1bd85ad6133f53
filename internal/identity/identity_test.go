package identity

import (
	"path/filepath"
	"testing"
)

func TestGetOrCreate_StableWithinProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.db")

	p := Open(path)
	defer p.Close()

	first, err := p.GetOrCreate()
	if err != nil {
		t.Fatalf("first GetOrCreate: %v", err)
	}
	if first == "" {
		t.Fatal("expected a non-empty identifier")
	}

	second, err := p.GetOrCreate()
	if err != nil {
		t.Fatalf("second GetOrCreate: %v", err)
	}
	if second != first {
		t.Errorf("identifier changed within profile: %q != %q", second, first)
	}
}

func TestGetOrCreate_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.db")

	p := Open(path)
	first, err := p.GetOrCreate()
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	p.Close()

	p2 := Open(path)
	defer p2.Close()
	second, err := p2.GetOrCreate()
	if err != nil {
		t.Fatalf("GetOrCreate after reopen: %v", err)
	}
	if second != first {
		t.Errorf("identifier not persisted across sessions: %q != %q", second, first)
	}
}

func TestGetOrCreate_FreshProfileDiffers(t *testing.T) {
	pa := Open(filepath.Join(t.TempDir(), "a.db"))
	defer pa.Close()
	pb := Open(filepath.Join(t.TempDir(), "b.db"))
	defer pb.Close()

	a, _ := pa.GetOrCreate()
	b, _ := pb.GetOrCreate()
	if a == b {
		t.Errorf("fresh profiles should yield different identifiers, both %q", a)
	}
}

func TestDisplayName_Persisted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.db")

	p := Open(path)
	if got := p.Name(); got != "" {
		t.Errorf("expected empty name on fresh profile, got %q", got)
	}
	if err := p.SetName("Alice"); err != nil {
		t.Fatalf("SetName: %v", err)
	}
	p.Close()

	p2 := Open(path)
	defer p2.Close()
	if got := p2.Name(); got != "Alice" {
		t.Errorf("expected persisted name Alice, got %q", got)
	}
}

func TestEphemeralFallback(t *testing.T) {
	// A path under an unwritable parent forces the ephemeral fallback.
	p := Open("/proc/no-such-dir/profile.db")
	defer p.Close()

	if !p.Ephemeral() {
		t.Skip("profile path unexpectedly writable in this environment")
	}

	id, err := p.GetOrCreate()
	if err != nil {
		t.Fatalf("ephemeral GetOrCreate should not error: %v", err)
	}
	if id == "" {
		t.Fatal("ephemeral identity should still be non-empty")
	}

	again, _ := p.GetOrCreate()
	if again != id {
		t.Error("ephemeral identity should be stable within the session")
	}
}
