package backend

import (
	"testing"
	"time"
)

func TestBreaker_closedAllowsRequests(t *testing.T) {
	b := NewBreaker(3, 2, time.Minute)

	if err := b.Allow(); err != nil {
		t.Fatalf("Allow error: %v", err)
	}
	if b.State() != BreakerClosed {
		t.Errorf("State = %v, want closed", b.State())
	}
}

func TestBreaker_opensAfterConsecutiveFailures(t *testing.T) {
	b := NewBreaker(3, 2, time.Minute)

	b.RecordFailure()
	b.RecordFailure()
	if b.State() != BreakerClosed {
		t.Fatalf("State = %v before threshold, want closed", b.State())
	}
	b.RecordFailure()
	if b.State() != BreakerOpen {
		t.Fatalf("State = %v after threshold, want open", b.State())
	}
	if err := b.Allow(); err == nil {
		t.Error("Allow should reject while open")
	}
}

func TestBreaker_successResetsFailureCount(t *testing.T) {
	b := NewBreaker(3, 2, time.Minute)

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()

	if b.State() != BreakerClosed {
		t.Errorf("State = %v, want closed (success resets the run)", b.State())
	}
}

func TestBreaker_halfOpenAfterCooldown(t *testing.T) {
	b := NewBreaker(1, 2, 10*time.Millisecond)

	b.RecordFailure()
	if b.State() != BreakerOpen {
		t.Fatalf("State = %v, want open", b.State())
	}

	time.Sleep(20 * time.Millisecond)
	if err := b.Allow(); err != nil {
		t.Fatalf("Allow after cooldown error: %v", err)
	}
	if b.State() != BreakerHalfOpen {
		t.Errorf("State = %v, want half-open", b.State())
	}
}

func TestBreaker_halfOpenClosesAfterSuccesses(t *testing.T) {
	b := NewBreaker(1, 2, 10*time.Millisecond)
	b.RecordFailure()
	time.Sleep(20 * time.Millisecond)
	_ = b.Allow()

	b.RecordSuccess()
	if b.State() != BreakerHalfOpen {
		t.Fatalf("State = %v after one success, want half-open", b.State())
	}
	b.RecordSuccess()
	if b.State() != BreakerClosed {
		t.Errorf("State = %v after two successes, want closed", b.State())
	}
}

func TestBreaker_halfOpenFailureReopens(t *testing.T) {
	b := NewBreaker(1, 2, 10*time.Millisecond)
	b.RecordFailure()
	time.Sleep(20 * time.Millisecond)
	_ = b.Allow()

	b.RecordFailure()
	if b.State() != BreakerOpen {
		t.Errorf("State = %v, want open (half-open failure reopens)", b.State())
	}
	if err := b.Allow(); err == nil {
		t.Error("Allow should reject after reopening")
	}
}

func TestBreaker_defaults(t *testing.T) {
	b := NewBreaker(0, 0, 0)
	if b.failureThreshold != 5 || b.successThreshold != 2 || b.cooldown != 30*time.Second {
		t.Errorf("defaults = (%d, %d, %v), want (5, 2, 30s)",
			b.failureThreshold, b.successThreshold, b.cooldown)
	}
}
