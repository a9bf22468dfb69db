package core

import (
	"errors"
	"testing"
	"time"
)

// lockInStatus walks a fresh lock along the legal edge set into the wanted
// status.
func lockInStatus(t *testing.T, s LockStatus) *Lock {
	t.Helper()

	l := NewLock("test", Writer, LockOptions{})
	var err error
	switch s {
	case StatusAcquiring:
	case StatusAcquired:
		err = l.ToAcquired()
	case StatusReleasing:
		if err = l.ToAcquired(); err == nil {
			err = l.ToReleasing()
		}
	case StatusReleased:
		if err = l.ToAcquired(); err == nil {
			err = l.ToReleased()
		}
	case StatusRejected:
		err = l.Reject(errors.New("test rejection"))
	}
	if err != nil {
		t.Fatalf("building lock in %v: %v", s, err)
	}
	if l.Status() != s {
		t.Fatalf("built lock has status %v, want %v", l.Status(), s)
	}
	return l
}

func TestNewLock(t *testing.T) {
	t.Parallel()

	l := NewLock("db", Reader, LockOptions{})

	if len(l.ID()) != 16 {
		t.Errorf("ID %q has length %d, want 16", l.ID(), len(l.ID()))
	}
	if l.Name() != "db" {
		t.Errorf("Name = %q, want %q", l.Name(), "db")
	}
	if l.Type() != Reader {
		t.Errorf("Type = %v, want Reader", l.Type())
	}
	if !l.IsAcquiring() {
		t.Errorf("Status = %v, want Acquiring", l.Status())
	}
	if l.CreatedAt().IsZero() {
		t.Error("CreatedAt is zero")
	}
	if got := l.Options().PullInterval; got != DefaultPullInterval {
		t.Errorf("PullInterval = %v, want default %v", got, DefaultPullInterval)
	}
	if got := l.Options().AcquireTimeout; got != 0 {
		t.Errorf("AcquireTimeout = %v, want 0 (disabled)", got)
	}
}

func TestNewLockPanics(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		fn   func()
	}{
		{"empty name", func() { NewLock("", Writer, LockOptions{}) }},
		{"invalid type", func() { NewLock("n", LockType(42), LockOptions{}) }},
		{"negative timeout", func() { NewLock("n", Writer, LockOptions{AcquireTimeout: -time.Second}) }},
		{"negative pull interval", func() { NewLock("n", Writer, LockOptions{PullInterval: -time.Second}) }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			defer func() {
				if recover() == nil {
					t.Error("expected panic")
				}
			}()
			tc.fn()
		})
	}
}

func TestLockTransitions(t *testing.T) {
	t.Parallel()

	transitions := map[LockStatus]func(*Lock) error{
		StatusAcquired:  (*Lock).ToAcquired,
		StatusReleasing: (*Lock).ToReleasing,
		StatusReleased:  (*Lock).ToReleased,
		StatusRejected: func(l *Lock) error {
			return l.Reject(errors.New("test rejection"))
		},
	}

	legal := map[LockStatus]map[LockStatus]bool{
		StatusAcquiring: {StatusAcquired: true, StatusRejected: true},
		StatusAcquired:  {StatusReleasing: true, StatusReleased: true},
		StatusReleasing: {StatusReleased: true},
		StatusReleased:  {},
		StatusRejected:  {},
	}

	for from, targets := range legal {
		for to, fn := range transitions {
			t.Run(from.String()+"_to_"+to.String(), func(t *testing.T) {
				t.Parallel()

				l := lockInStatus(t, from)
				err := fn(l)

				if targets[to] {
					if err != nil {
						t.Fatalf("transition %v -> %v failed: %v", from, to, err)
					}
					if l.Status() != to {
						t.Fatalf("status = %v after transition, want %v", l.Status(), to)
					}
					return
				}

				var wfErr *WorkflowError
				if !errors.As(err, &wfErr) {
					t.Fatalf("transition %v -> %v error = %v, want *WorkflowError", from, to, err)
				}
				if wfErr.From != from || wfErr.To != to {
					t.Errorf("WorkflowError = %v -> %v, want %v -> %v", wfErr.From, wfErr.To, from, to)
				}
				if l.Status() != from {
					t.Errorf("illegal transition changed status to %v, want %v unchanged", l.Status(), from)
				}
			})
		}
	}
}

func TestLockTelemetryStamps(t *testing.T) {
	t.Parallel()

	l := NewLock("n", Writer, LockOptions{})

	if _, ok := l.SettledIn(); ok {
		t.Error("SettledIn reported a value before settling")
	}
	if err := l.ToAcquired(); err != nil {
		t.Fatalf("ToAcquired: %v", err)
	}
	if l.SettledAt().IsZero() {
		t.Error("SettledAt is zero after Acquired")
	}
	if _, ok := l.SettledIn(); !ok {
		t.Error("SettledIn reported no value after settling")
	}
	if _, ok := l.AcquiredFor(); ok {
		t.Error("AcquiredFor reported a value before release")
	}

	if err := l.ToReleased(); err != nil {
		t.Fatalf("ToReleased: %v", err)
	}
	if l.ReleasedAt().IsZero() {
		t.Error("ReleasedAt is zero after Released")
	}
	if d, ok := l.AcquiredFor(); !ok || d < 0 {
		t.Errorf("AcquiredFor = (%v, %v), want non-negative duration", d, ok)
	}
}

func TestLockRejectRecordsReason(t *testing.T) {
	t.Parallel()

	l := NewLock("n", Writer, LockOptions{})
	if l.Reason() != nil {
		t.Error("Reason non-nil before rejection")
	}

	cause := errors.New("admission never came")
	if err := l.Reject(cause); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if !l.IsRejected() {
		t.Errorf("status = %v, want Rejected", l.Status())
	}
	if !errors.Is(l.Reason(), cause) {
		t.Errorf("Reason = %v, want %v", l.Reason(), cause)
	}
}

func TestLockTypeString(t *testing.T) {
	t.Parallel()

	// Adapters persist these values; they are wire format, not display.
	if got := Writer.String(); got != "writer" {
		t.Errorf("Writer.String() = %q, want %q", got, "writer")
	}
	if got := Reader.String(); got != "reader" {
		t.Errorf("Reader.String() = %q, want %q", got, "reader")
	}
}

func TestGenIDIsUnique(t *testing.T) {
	t.Parallel()

	seen := make(map[string]bool)
	for range 1000 {
		id := genID()
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}
