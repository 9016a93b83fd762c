package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errQuota = errors.New("quota exceeded")

func fail(err error) func(context.Context) (int, error) {
	return func(context.Context) (int, error) { return 0, err }
}

func ok(context.Context) (int, error) { return 1, nil }

func TestBreaker_ClosedPassesThrough(t *testing.T) {
	b := NewBreaker(BreakerConfig{Name: "search"})

	v, err := Call(context.Background(), b, ok)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 1 {
		t.Errorf("expected 1, got %d", v)
	}
	if b.State() != Closed {
		t.Errorf("expected closed, got %s", b.State())
	}
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := NewBreaker(BreakerConfig{Threshold: 3, Cooldown: time.Minute})
	flaky := Transient(errors.New("503"), 503)

	for i := 0; i < 3; i++ {
		_, _ = Call(context.Background(), b, fail(flaky))
	}
	if b.State() != Open {
		t.Fatalf("expected open after 3 failures, got %s", b.State())
	}

	_, err := Call(context.Background(), b, func(context.Context) (int, error) {
		t.Error("should not be called while open")
		return 0, nil
	})
	if !errors.Is(err, ErrOpen) {
		t.Errorf("expected ErrOpen, got %v", err)
	}
}

func TestBreaker_NonCountedErrorsDoNotTrip(t *testing.T) {
	b := NewBreaker(BreakerConfig{Threshold: 2})

	for i := 0; i < 5; i++ {
		_, _ = Call(context.Background(), b, fail(errors.New("bad request")))
	}
	if b.State() != Closed {
		t.Errorf("expected closed, got %s", b.State())
	}
}

func TestBreaker_TripsImmediately(t *testing.T) {
	b := NewBreaker(BreakerConfig{
		Threshold:        10,
		Cooldown:         time.Hour,
		TripsImmediately: func(err error) bool { return errors.Is(err, errQuota) },
	})

	_, err := Call(context.Background(), b, fail(errQuota))
	if !errors.Is(err, errQuota) {
		t.Fatalf("expected quota error, got %v", err)
	}
	if b.State() != Open {
		t.Errorf("expected open after quota error, got %s", b.State())
	}
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	now := time.Now()
	b := NewBreaker(BreakerConfig{Threshold: 1, Cooldown: time.Minute})
	b.now = func() time.Time { return now }

	_, _ = Call(context.Background(), b, fail(Transient(errors.New("timeout"), 0)))
	if b.State() != Open {
		t.Fatalf("expected open, got %s", b.State())
	}

	now = now.Add(2 * time.Minute)
	if b.State() != HalfOpen {
		t.Fatalf("expected half-open after cooldown, got %s", b.State())
	}

	if _, err := Call(context.Background(), b, ok); err != nil {
		t.Fatalf("probe should pass: %v", err)
	}
	if b.State() != Closed {
		t.Errorf("expected closed after successful probe, got %s", b.State())
	}
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	now := time.Now()
	b := NewBreaker(BreakerConfig{Threshold: 3, Cooldown: time.Minute})
	b.now = func() time.Time { return now }
	flaky := Transient(errors.New("502"), 502)

	for i := 0; i < 3; i++ {
		_, _ = Call(context.Background(), b, fail(flaky))
	}
	now = now.Add(2 * time.Minute)

	_, _ = Call(context.Background(), b, fail(flaky))
	if b.State() != Open {
		t.Errorf("expected open after failed probe, got %s", b.State())
	}
}

func TestState_String(t *testing.T) {
	for s, want := range map[State]string{Closed: "closed", Open: "open", HalfOpen: "half-open", State(9): "unknown"} {
		if s.String() != want {
			t.Errorf("State(%d).String() = %q, want %q", s, s.String(), want)
		}
	}
}
