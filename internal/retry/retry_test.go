package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	p := Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}

	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	p := Policy{MaxAttempts: 2, BaseDelay: time.Millisecond}

	wantErr := errors.New("still failing")
	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		return wantErr
	})

	if !errors.Is(err, wantErr) {
		t.Errorf("expected last error, got %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestDoStopsOnPermanentError(t *testing.T) {
	p := Policy{MaxAttempts: 5, BaseDelay: time.Millisecond}

	wantErr := errors.New("bad request")
	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		return Permanent(wantErr)
	})

	if !errors.Is(err, wantErr) {
		t.Errorf("expected unwrapped permanent error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDoRespectsContextCancellation(t *testing.T) {
	p := Policy{MaxAttempts: 10, BaseDelay: 50 * time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := p.Do(ctx, func() error {
		calls++
		return errors.New("transient")
	})

	if !errors.Is(err, context.Canceled) && err == nil {
		t.Errorf("expected cancellation to surface, got %v", err)
	}
	if calls > 2 {
		t.Errorf("expected retries to stop after cancel, got %d calls", calls)
	}
}

func TestDoWithResult(t *testing.T) {
	p := Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}

	calls := 0
	v, err := DoWithResult(context.Background(), p, func() (int, error) {
		calls++
		if calls < 2 {
			return 0, errors.New("transient")
		}
		return 42, nil
	})

	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if v != 42 {
		t.Errorf("expected 42, got %d", v)
	}
}
