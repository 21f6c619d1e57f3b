package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBackoffDoubles(t *testing.T) {
	b := New(10 * time.Millisecond)

	first := b.Next()
	second := b.Next()
	third := b.Next()

	if first != 10*time.Millisecond {
		t.Errorf("expected first delay 10ms, got %v", first)
	}
	if second != 20*time.Millisecond {
		t.Errorf("expected second delay 20ms, got %v", second)
	}
	if third != 40*time.Millisecond {
		t.Errorf("expected third delay 40ms, got %v", third)
	}
}

func TestBackoffReset(t *testing.T) {
	b := New(5 * time.Millisecond)
	b.Next()
	b.Next()
	b.Reset()

	if got := b.Next(); got != 5*time.Millisecond {
		t.Errorf("expected reset delay 5ms, got %v", got)
	}
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), 3, time.Millisecond, func(attempt int) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	wantErr := errors.New("boom")
	calls := 0
	err := Do(context.Background(), 3, time.Millisecond, func(attempt int) error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected wrapped wantErr, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDoCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Do(ctx, 3, 50*time.Millisecond, func(attempt int) error {
		calls++
		return errors.New("fail")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call before cancellation observed, got %d", calls)
	}
}
