package telemetry

import (
	"context"
	"testing"
)

func TestInit_EmptyEndpointIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "firebox-test"})
	if err != nil {
		t.Fatalf("Init with no endpoint returned error: %v", err)
	}
	if shutdown == nil {
		t.Fatal("Init returned a nil shutdown func")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("no-op shutdown returned error: %v", err)
	}
}

func TestStartEndSpan_NoPanicWithoutInit(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "Test.Op", "sandbox-1")
	if ctx == nil {
		t.Fatal("StartSpan returned a nil context")
	}
	EndSpan(span, nil)
}
