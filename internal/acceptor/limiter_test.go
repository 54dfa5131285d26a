package acceptor

import "testing"

func TestNilLimiterIsUnbounded(t *testing.T) {
	l := NewLimiter(0)
	if l != nil {
		t.Fatalf("expected nil limiter for max<=0, got %+v", l)
	}
}

func TestLimiterAcquireReleaseRoundTrip(t *testing.T) {
	l := NewLimiter(2)
	if !l.Acquire() {
		t.Fatalf("expected first acquire to succeed")
	}
	if !l.Acquire() {
		t.Fatalf("expected second acquire to succeed")
	}
	l.Release()
	if !l.Acquire() {
		t.Fatalf("expected acquire after release to succeed")
	}
}

func TestLimiterRejectsBeyondCapacity(t *testing.T) {
	l := NewLimiter(1)
	if !l.Acquire() {
		t.Fatalf("expected first acquire to succeed")
	}
	if l.Acquire() {
		t.Fatalf("expected second acquire to be rejected while slot is held")
	}
}
