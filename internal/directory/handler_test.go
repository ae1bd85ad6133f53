package directory

import (
	"context"
	"net/http/httptest"
	"testing"
)

// TestHTTPDirectory_AgainstHandler exercises the HTTP client against the
// real handler, covering both halves of the directory API.
func TestHTTPDirectory_AgainstHandler(t *testing.T) {
	srv := httptest.NewServer(Handler(NewRegistry(0)))
	defer srv.Close()

	dir := NewHTTP(srv.URL)
	ctx := context.Background()

	if err := dir.Register(ctx, Entry{ID: "lobby__a", Addr: "ws://10.0.0.1:9000/peer"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := dir.Register(ctx, Entry{ID: "other__c", Addr: "ws://10.0.0.3:9000/peer"}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	entries, err := dir.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d: %+v", len(entries), entries)
	}

	if err := dir.Deregister(ctx, "lobby__a"); err != nil {
		t.Fatalf("Deregister: %v", err)
	}
	entries, err = dir.List(ctx)
	if err != nil {
		t.Fatalf("List after deregister: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != "other__c" {
		t.Errorf("unexpected entries after deregister: %+v", entries)
	}

	// Deregistering again is a no-op, not an error.
	if err := dir.Deregister(ctx, "lobby__a"); err != nil {
		t.Errorf("repeated Deregister should succeed: %v", err)
	}
}

func TestHandler_RejectsInvalidEntries(t *testing.T) {
	srv := httptest.NewServer(Handler(NewRegistry(0)))
	defer srv.Close()

	dir := NewHTTP(srv.URL)
	if err := dir.Register(context.Background(), Entry{ID: "", Addr: ""}); err == nil {
		t.Error("expected error registering an empty entry")
	}
}
