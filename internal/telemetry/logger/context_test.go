package logger

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestWithLoggerFromContext(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: "info", Format: "json", Output: &buf})
	if err != nil {
		t.Fatal(err)
	}

	ctx := WithLogger(context.Background(), l)
	if got := FromContext(ctx); got != l {
		t.Error("FromContext did not return the stored logger")
	}

	// Missing logger falls back to the default.
	if got := FromContext(context.Background()); got == nil {
		t.Error("FromContext returned nil for empty context")
	}
}

func TestRequestIDPropagation(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-123")
	if got := RequestIDFromContext(ctx); got != "req-123" {
		t.Errorf("RequestIDFromContext = %q", got)
	}
	if got := RequestIDFromContext(context.Background()); got != "" {
		t.Errorf("empty context request ID = %q", got)
	}
}

func TestLEnrichesWithRequestID(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: "info", Format: "json", Output: &buf})
	if err != nil {
		t.Fatal(err)
	}

	ctx := WithLogger(context.Background(), l)
	ctx = WithRequestID(ctx, "req-456")

	L(ctx).Info("handling request")

	if !strings.Contains(buf.String(), "req-456") {
		t.Errorf("request_id missing from output: %s", buf.String())
	}
}

func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: "info", Format: "json", Output: &buf})
	if err != nil {
		t.Fatal(err)
	}

	l.Debug("hidden")
	if buf.Len() != 0 {
		t.Error("debug line emitted at info level")
	}

	SetLevel("debug")
	defer SetLevel("info")

	l.Debug("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Error("debug line missing after SetLevel(debug)")
	}
	if got := GetLevel(); got != "debug" {
		t.Errorf("GetLevel = %q", got)
	}
}
