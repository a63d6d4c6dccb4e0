package telemetry

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestInfoWritesFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	prev := L()
	SetLogger(zap.New(core))
	defer SetLogger(prev)

	Info("tune.complete", map[string]any{"deltas": 3, "err": errors.New("boom")})

	entries := logs.FilterMessage("tune.complete").All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	ctx := entries[0].ContextMap()
	if ctx["deltas"] != int64(3) {
		t.Fatalf("unexpected deltas field: %#v", ctx["deltas"])
	}
	if ctx["err"] != "boom" {
		t.Fatalf("unexpected err field: %#v", ctx["err"])
	}
}

func TestInitRejectsUnknownLevel(t *testing.T) {
	prev := L()
	defer SetLogger(prev)

	if err := Init("dev", "loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
	if err := Init("production", "warn"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if L().Core().Enabled(zapcore.InfoLevel) {
		t.Fatal("expected info to be disabled at warn level")
	}
}
