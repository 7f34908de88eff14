package notifier

import (
	"context"
	"errors"
	"testing"
)

type mockNotifier struct {
	name       string
	events     []Event
	shouldFail bool
}

func (m *mockNotifier) Name() string { return m.name }

func (m *mockNotifier) Notify(ctx context.Context, ev Event) error {
	m.events = append(m.events, ev)
	if m.shouldFail {
		return errors.New("send failed")
	}
	return nil
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()

	mock := &mockNotifier{name: "test"}
	err := r.Register(mock)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Duplicate registration should fail
	err = r.Register(mock)
	if err == nil {
		t.Error("expected error for duplicate registration")
	}
	if r.Len() != 1 {
		t.Errorf("expected 1 notifier, got %d", r.Len())
	}
}

func TestRegistry_NotifyAll(t *testing.T) {
	r := NewRegistry()

	ok := &mockNotifier{name: "ok"}
	bad := &mockNotifier{name: "bad", shouldFail: true}
	r.Register(ok)
	r.Register(bad)

	errs := r.NotifyAll(context.Background(), Event{Type: EventBacktestCompleted, RunID: "r1"})

	if len(errs) != 1 || errs["bad"] == nil {
		t.Errorf("expected one failure from 'bad', got %v", errs)
	}
	if len(ok.events) != 1 || ok.events[0].RunID != "r1" {
		t.Errorf("expected event delivered to 'ok', got %v", ok.events)
	}
}

func TestRegistry_NotifyAll_Empty(t *testing.T) {
	errs := NewRegistry().NotifyAll(context.Background(), Event{Type: EventBacktestFailed})
	if len(errs) != 0 {
		t.Errorf("expected no errors, got %v", errs)
	}
}
