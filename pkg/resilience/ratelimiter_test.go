package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/HaulGuardAI/haulguard-mvp/pkg/fn"
)

func TestLimiterAllowsBurst(t *testing.T) {
	l := NewLimiter(LimiterOpts{Rate: 1, Burst: 3})
	for i := 0; i < 3; i++ {
		if !l.Allow() {
			t.Fatalf("burst request %d should be allowed", i)
		}
	}
	if l.Allow() {
		t.Fatal("request beyond burst should be denied")
	}
}

func TestLimiterRefills(t *testing.T) {
	now := time.Now()
	l := NewLimiter(LimiterOpts{Rate: 10, Burst: 1})
	l.now = func() time.Time { return now }

	if !l.Allow() {
		t.Fatal("first request should pass")
	}
	if l.Allow() {
		t.Fatal("bucket should be empty")
	}

	now = now.Add(200 * time.Millisecond) // 2 tokens at rate 10, capped at burst 1
	if !l.Allow() {
		t.Fatal("token should have refilled")
	}
	if l.Allow() {
		t.Fatal("refill should cap at burst")
	}
}

func TestLimiterWait(t *testing.T) {
	l := NewLimiter(LimiterOpts{Rate: 100, Burst: 1})
	ctx := context.Background()

	if err := l.Wait(ctx); err != nil {
		t.Fatalf("first wait: %v", err)
	}
	start := time.Now()
	if err := l.Wait(ctx); err != nil {
		t.Fatalf("second wait: %v", err)
	}
	if time.Since(start) < 5*time.Millisecond {
		t.Fatal("second wait should have blocked for a token")
	}
}

func TestLimiterWaitCancelled(t *testing.T) {
	l := NewLimiter(LimiterOpts{Rate: 0.001, Burst: 1})
	l.Allow() // drain

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx); err == nil {
		t.Fatal("expected context error")
	}
}

func TestCallWait(t *testing.T) {
	l := NewLimiter(LimiterOpts{Rate: 100, Burst: 1})
	called := false
	err := l.CallWait(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	if err != nil || !called {
		t.Fatal("CallWait should run f")
	}
}

func TestLimiterStageWait(t *testing.T) {
	l := NewLimiter(LimiterOpts{Rate: 100, Burst: 1})
	stage := LimiterStageWait(l, func(_ context.Context, v int) fn.Result[int] {
		return fn.Ok(v * 2)
	})
	if stage(context.Background(), 4).Must() != 8 {
		t.Fatal("LimiterStageWait should run stage")
	}
}
