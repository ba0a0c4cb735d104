package rpc

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
)

func TestHandlePing(t *testing.T) {
	s := NewServer(t.TempDir(), nil)
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	w := httptest.NewRecorder()

	s.handlePing(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if body["status"] != "pong" {
		t.Errorf("status = %q, want pong", body["status"])
	}
}

func TestHandleVersion(t *testing.T) {
	s := NewServer(t.TempDir(), nil)
	req := httptest.NewRequest(http.MethodGet, "/version", nil)
	w := httptest.NewRecorder()

	s.handleVersion(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
}

func TestHandleShutdown_RejectsNonPost(t *testing.T) {
	s := NewServer(t.TempDir(), nil)
	req := httptest.NewRequest(http.MethodGet, "/shutdown", nil)
	w := httptest.NewRecorder()

	s.handleShutdown(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", w.Code)
	}
}

func TestWithID_RejectsNonPost(t *testing.T) {
	s := NewServer(t.TempDir(), nil)
	req := httptest.NewRequest(http.MethodGet, "/close", nil)
	w := httptest.NewRecorder()

	called := false
	s.withID(w, req, func(id string) error { called = true; return nil })

	if called {
		t.Error("fn should not be called for a non-POST request")
	}
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", w.Code)
	}
}

func TestWithID_RejectsMissingID(t *testing.T) {
	s := NewServer(t.TempDir(), nil)
	req := httptest.NewRequest(http.MethodPost, "/close", strings.NewReader(`{"id":""}`))
	w := httptest.NewRecorder()

	called := false
	s.withID(w, req, func(id string) error { called = true; return nil })

	if called {
		t.Error("fn should not be called when id is empty")
	}
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestWithID_CallsFnWithID(t *testing.T) {
	s := NewServer(t.TempDir(), nil)
	req := httptest.NewRequest(http.MethodPost, "/close", strings.NewReader(`{"id":"sandbox-1"}`))
	w := httptest.NewRecorder()

	var gotID string
	s.withID(w, req, func(id string) error { gotID = id; return nil })

	if gotID != "sandbox-1" {
		t.Errorf("fn called with id = %q, want sandbox-1", gotID)
	}
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestAcquireLock_SecondCallFails(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "firebox.lock")

	first, err := acquireLock(lockPath)
	if err != nil {
		t.Fatalf("first acquireLock: %v", err)
	}
	defer first.Close()

	if _, err := acquireLock(lockPath); err == nil {
		t.Error("second acquireLock on the same file should fail while the first holds it")
	}
}
