package shutdown

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRunExecutesHooksInReverseOrder(t *testing.T) {
	h := NewHandler(time.Second)

	var order []string
	h.OnShutdown(func(context.Context) error {
		order = append(order, "first")
		return nil
	})
	h.OnShutdown(func(context.Context) error {
		order = append(order, "second")
		return nil
	})

	if err := h.Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(order) != 2 || order[0] != "second" || order[1] != "first" {
		t.Errorf("hook order = %v, want [second first]", order)
	}

	select {
	case <-h.Done():
	default:
		t.Error("Done() channel not closed after Run()")
	}
}

func TestRunReturnsLastError(t *testing.T) {
	h := NewHandler(time.Second)

	wantErr := errors.New("close failed")
	h.OnShutdown(func(context.Context) error { return wantErr })
	h.OnShutdown(func(context.Context) error { return nil })

	if err := h.Run(); !errors.Is(err, wantErr) {
		t.Errorf("Run() error = %v, want %v", err, wantErr)
	}
}

func TestRunHonorsTimeout(t *testing.T) {
	h := NewHandler(50 * time.Millisecond)

	var deadlineSet bool
	h.OnShutdown(func(ctx context.Context) error {
		_, deadlineSet = ctx.Deadline()
		return nil
	})

	if err := h.Run(); err != nil {
		t.Fatal(err)
	}
	if !deadlineSet {
		t.Error("hook context has no deadline")
	}
}
