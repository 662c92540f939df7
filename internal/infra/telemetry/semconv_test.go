package telemetry

import (
	"errors"
	"testing"
)

func TestOperationAttributes(t *testing.T) {
	attrs := OperationAttributes("settled_funding", errors.New("boom"))
	if len(attrs) != 3 {
		t.Fatalf("expected 3 attributes, got %d", len(attrs))
	}
	if attrs[2].Value.AsString() != ResultError {
		t.Fatalf("expected error result, got %q", attrs[2].Value.AsString())
	}
	if ResultOf(nil) != ResultSuccess {
		t.Fatalf("expected success for nil error")
	}
}

func TestPoolAttributesCarryEnvironment(t *testing.T) {
	attrs := PoolAttributes("replica")
	if attrs[0].Key != AttrEnvironment || attrs[0].Value.AsString() == "" {
		t.Fatalf("expected environment attribute first, got %v", attrs[0])
	}
	if attrs[1].Value.AsString() != "replica" {
		t.Fatalf("expected replica pool label, got %q", attrs[1].Value.AsString())
	}
}
