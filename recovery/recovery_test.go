package recovery

import (
	"context"
	"errors"
	"testing"
)

func TestStrictStrategy(t *testing.T) {
	s := NewStrictStrategy()
	got := s.OnError(context.Background(), errors.New("bad token"), Location{Component: "scanner"})
	if got != ActionFail {
		t.Fatalf("OnError = %v, want ActionFail", got)
	}
}

func TestLenientStrategyAccumulates(t *testing.T) {
	s := NewLenientStrategy()
	errA := errors.New("missing dict end")
	errB := errors.New("bad xref entry")

	if got := s.OnError(context.Background(), errA, Location{ByteOffset: 42, Component: "parser"}); got != ActionWarn {
		t.Fatalf("OnError = %v, want ActionWarn", got)
	}
	if got := s.OnError(context.Background(), errB, Location{ByteOffset: 99, Component: "xref"}); got != ActionWarn {
		t.Fatalf("OnError = %v, want ActionWarn", got)
	}

	if len(s.Errors) != 2 {
		t.Fatalf("len(Errors) = %d, want 2", len(s.Errors))
	}
	if !errors.Is(s.Errors[0], errA) {
		t.Fatalf("Errors[0] does not wrap the original error: %v", s.Errors[0])
	}
}
