package worker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/veracity-social/veracity/internal/agent"
)

func captureSleeps(t *testing.T) *[]time.Duration {
	t.Helper()
	var sleeps []time.Duration
	orig := retrySleepFunc
	retrySleepFunc = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	t.Cleanup(func() { retrySleepFunc = orig })
	return &sleeps
}

func TestRetry_SucceedsFirstAttempt(t *testing.T) {
	sleeps := captureSleeps(t)

	calls := 0
	err := Retry(context.Background(), 3, time.Second, func(ctx context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
	if len(*sleeps) != 0 {
		t.Errorf("Expected no backoff sleeps, got %v", *sleeps)
	}
}

func TestRetry_TransientBackoffDoubles(t *testing.T) {
	sleeps := captureSleeps(t)

	calls := 0
	err := Retry(context.Background(), 3, 500*time.Millisecond, func(ctx context.Context) error {
		calls++
		return fmt.Errorf("request failed: status 503")
	})
	if err == nil {
		t.Fatal("Expected error after exhausted retries")
	}
	if calls != 3 {
		t.Errorf("Expected 3 attempts, got %d", calls)
	}
	want := []time.Duration{500 * time.Millisecond, time.Second}
	if len(*sleeps) != len(want) {
		t.Fatalf("Expected %d sleeps, got %v", len(want), *sleeps)
	}
	for i, d := range *sleeps {
		if d != want[i] {
			t.Errorf("Sleep %d: expected %v, got %v", i, want[i], d)
		}
	}
}

func TestRetry_AuthNeverRetried(t *testing.T) {
	sleeps := captureSleeps(t)

	calls := 0
	err := Retry(context.Background(), 5, time.Second, func(ctx context.Context) error {
		calls++
		return fmt.Errorf("call: %w", agent.ErrAuthentication)
	})
	if !errors.Is(err, agent.ErrAuthentication) {
		t.Fatalf("Expected auth error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Auth error must fail on the first attempt, got %d calls", calls)
	}
	if len(*sleeps) != 0 {
		t.Errorf("Auth error must not back off, got %v", *sleeps)
	}
}

func TestRetry_PermanentErrorNotRetried(t *testing.T) {
	captureSleeps(t)

	calls := 0
	err := Retry(context.Background(), 3, time.Second, func(ctx context.Context) error {
		calls++
		return errors.New("schema validation failed")
	})
	if err == nil {
		t.Fatal("Expected error")
	}
	if calls != 1 {
		t.Errorf("Permanent error must not be retried, got %d calls", calls)
	}
}

func TestRetry_RecoversMidway(t *testing.T) {
	captureSleeps(t)

	calls := 0
	err := Retry(context.Background(), 3, time.Second, func(ctx context.Context) error {
		calls++
		if calls < 2 {
			return context.DeadlineExceeded
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Expected recovery, got %v", err)
	}
	if calls != 2 {
		t.Errorf("Expected 2 calls, got %d", calls)
	}
}

func TestIsTransient(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{context.DeadlineExceeded, true},
		{errors.New("request timeout"), true},
		{errors.New("rate limit exceeded"), true},
		{errors.New("status 429 Too Many Requests"), true},
		{errors.New("status 502 Bad Gateway"), true},
		{errors.New("dial tcp: connection refused"), true},
		{errors.New("invalid request body"), false},
		{errors.New("schema mismatch"), false},
	}
	for _, tc := range cases {
		if got := IsTransient(tc.err); got != tc.want {
			t.Errorf("IsTransient(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestPool_ExecutesAllJobs(t *testing.T) {
	pool := NewPool(3)
	pool.Start()

	for i := 0; i < 10; i++ {
		i := i
		pool.Submit(funcJob(func(ctx context.Context) Result {
			if i == 4 {
				return errResult{err: errors.New("job 4 failed")}
			}
			return errResult{}
		}))
	}

	results := pool.Wait()
	if len(results) != 10 {
		t.Fatalf("Expected 10 results, got %d", len(results))
	}
	failures := 0
	for _, r := range results {
		if r.GetError() != nil {
			failures++
		}
	}
	if failures != 1 {
		t.Errorf("Expected exactly 1 failure, got %d", failures)
	}
}

type funcJob func(ctx context.Context) Result

func (f funcJob) Execute(ctx context.Context) Result { return f(ctx) }

type errResult struct{ err error }

func (r errResult) GetError() error { return r.err }
