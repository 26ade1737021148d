package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	errs "flowvault/pkg/errors"
	"flowvault/pkg/logger"
)

func testConfig(maxAttempts int) *Config {
	return &Config{
		MaxAttempts: maxAttempts,
		Backoff:     &ConstantBackoff{Delay: time.Millisecond},
		RetryIf:     DefaultRetryIf,
		Logger:      logger.NewNop(),
	}
}

func TestUniformBackoffWithinWindow(t *testing.T) {
	backoff := &UniformBackoff{
		MinDelay: 50 * time.Millisecond,
		MaxDelay: 150 * time.Millisecond,
	}

	for i := 0; i < 100; i++ {
		delay := backoff.NextDelay(1)
		if delay < backoff.MinDelay || delay > backoff.MaxDelay {
			t.Fatalf("delay %v outside [%v, %v]", delay, backoff.MinDelay, backoff.MaxDelay)
		}
	}
}

func TestUniformBackoffVaries(t *testing.T) {
	backoff := &UniformBackoff{
		MinDelay: 1 * time.Millisecond,
		MaxDelay: 1 * time.Second,
	}
	delays := make(map[time.Duration]bool)
	for i := 0; i < 20; i++ {
		delays[backoff.NextDelay(1)] = true
	}
	if len(delays) < 2 {
		t.Error("expected randomized delays, got a constant")
	}
}

func TestUniformBackoffDegenerateWindow(t *testing.T) {
	backoff := &UniformBackoff{MinDelay: time.Second, MaxDelay: time.Second}
	if got := backoff.NextDelay(1); got != time.Second {
		t.Errorf("expected min delay for empty window, got %v", got)
	}
}

func TestExponentialBackoffCaps(t *testing.T) {
	backoff := &ExponentialBackoff{
		BaseDelay:    100 * time.Millisecond,
		MaxDelay:     1 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.0,
	}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{5, 1 * time.Second},
		{10, 1 * time.Second},
	}
	for _, tt := range tests {
		if got := backoff.NextDelay(tt.attempt); got != tt.want {
			t.Errorf("NextDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	op := func() error {
		attempts++
		if attempts < 3 {
			return errs.Transient(nil, "temporary")
		}
		return nil
	}

	if err := Do(context.Background(), op, testConfig(5)); err != nil {
		t.Errorf("expected success after retries, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetryBoundExhausted(t *testing.T) {
	attempts := 0
	cause := errs.Transient(nil, "always failing")
	op := func() error {
		attempts++
		return cause
	}

	err := Do(context.Background(), op, testConfig(3))
	if err == nil {
		t.Fatal("expected error after exhaustion")
	}
	if attempts != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", attempts)
	}
	if !errors.Is(err, cause) {
		t.Error("exhaustion error must carry the last underlying cause")
	}
}

func TestTerminalErrorNotRetried(t *testing.T) {
	attempts := 0
	terminal := errs.TerminalFlow(nil, "permanent 404")
	op := func() error {
		attempts++
		return terminal
	}

	err := Do(context.Background(), op, testConfig(5))
	if !errors.Is(err, terminal) {
		t.Errorf("expected terminal error to propagate, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("terminal failure must not consume attempts: got %d", attempts)
	}
}

func TestFatalErrorNotRetried(t *testing.T) {
	attempts := 0
	op := func() error {
		attempts++
		return errs.Fatal(nil, "credentials rejected")
	}

	_ = Do(context.Background(), op, testConfig(5))
	if attempts != 1 {
		t.Errorf("fatal failure must not be retried: got %d attempts", attempts)
	}
}

func TestRetryCancelledByContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	op := func() error {
		attempts++
		cancel()
		return errs.Transient(nil, "temporary")
	}

	cfg := testConfig(5)
	cfg.Backoff = &ConstantBackoff{Delay: time.Minute}

	start := time.Now()
	err := Do(ctx, op, cfg)
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("cancellation must interrupt the backoff sleep")
	}
}

func TestRetryDelayWithinConfiguredWindow(t *testing.T) {
	var delays []time.Duration
	cfg := &Config{
		MaxAttempts: 3,
		Backoff:     &UniformBackoff{MinDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
		RetryIf:     DefaultRetryIf,
		Logger:      logger.NewNop(),
		OnRetry: func(attempt int, err error, delay time.Duration) {
			delays = append(delays, delay)
		},
	}

	_ = Do(context.Background(), func() error {
		return errs.Transient(nil, "nope")
	}, cfg)

	if len(delays) != 2 {
		t.Fatalf("expected 2 inter-attempt delays, got %d", len(delays))
	}
	for _, d := range delays {
		if d < time.Millisecond || d > 5*time.Millisecond {
			t.Errorf("delay %v outside configured window", d)
		}
	}
}

func TestDoWithResult(t *testing.T) {
	attempts := 0
	result, err := DoWithResult(context.Background(), func() (string, error) {
		attempts++
		if attempts < 2 {
			return "", errs.Transient(nil, "flaky")
		}
		return "done", nil
	}, testConfig(3))

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "done" {
		t.Errorf("expected result %q, got %q", "done", result)
	}
}
