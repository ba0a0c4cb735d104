package registry

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jiandong01/firebox"
)

func openTestRegistry(t *testing.T) *Registry {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "firebox.db")
	r, err := Open(dbPath, nil, nil, "firebox-sandbox", "/persistent")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { r.CloseDB() })
	return r
}

func TestOpen_RunsMigrationsAndStartsEmpty(t *testing.T) {
	r := openTestRegistry(t)

	entries, err := r.List(context.Background(), true)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("List() on a fresh registry = %d entries, want 0", len(entries))
	}
}

func TestPersistAndLoadClosedFromDB(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "firebox.db")
	r, err := Open(dbPath, nil, nil, "firebox-sandbox", "/persistent")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	sb := firebox.Adopt(nil, nil, "sandbox-1", "container-1", "", "/persistent/sandbox-1", "firebox-sandbox",
		firebox.Template{Image: "python:3.12", CWD: "/sandbox"}, firebox.StateClosed)

	if err := r.persist(context.Background(), sb, "closed"); err != nil {
		t.Fatalf("persist: %v", err)
	}
	r.CloseDB()

	// Reopen against the same DB file; loadClosedFromDB should re-hydrate
	// the closed-status row into the closed map.
	r2, err := Open(dbPath, nil, nil, "firebox-sandbox", "/persistent")
	if err != nil {
		t.Fatalf("re-Open: %v", err)
	}
	defer r2.CloseDB()

	entries, err := r2.List(context.Background(), true)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("List() after reopen = %d entries, want 1", len(entries))
	}
	if entries[0].SandboxID != "sandbox-1" {
		t.Errorf("SandboxID = %q, want sandbox-1", entries[0].SandboxID)
	}
	if entries[0].Status != "closed" {
		t.Errorf("Status = %q, want closed", entries[0].Status)
	}
	if entries[0].Metadata["container_id"] != "container-1" {
		t.Errorf("Metadata[container_id] = %q, want container-1", entries[0].Metadata["container_id"])
	}
}

func TestGet_ReturnsNilForUnknownID(t *testing.T) {
	r := openTestRegistry(t)
	if sb := r.Get("does-not-exist"); sb != nil {
		t.Errorf("Get() for an unknown ID = %v, want nil", sb)
	}
}

func TestList_ExcludesClosedUnlessRequested(t *testing.T) {
	r := openTestRegistry(t)
	sb := firebox.Adopt(nil, nil, "sandbox-2", "container-2", "", "/persistent/sandbox-2", "firebox-sandbox",
		firebox.Template{Image: "python:3.12", CWD: "/sandbox"}, firebox.StateClosed)
	if err := r.persist(context.Background(), sb, "closed"); err != nil {
		t.Fatalf("persist: %v", err)
	}
	r.mu.Lock()
	r.closed["sandbox-2"] = sb
	r.mu.Unlock()

	entries, err := r.List(context.Background(), false)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("List(includeClosed=false) = %d entries, want 0", len(entries))
	}

	entries, err = r.List(context.Background(), true)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("List(includeClosed=true) = %d entries, want 1", len(entries))
	}
}
