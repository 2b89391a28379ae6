package patch

import (
	"errors"
	"fmt"
	"testing"
)

func TestBusErrorMatchesByCode(t *testing.T) {
	err := NewBusError(ErrPermissionDenied, "component_set on app/1")
	if !errors.Is(err, &BusError{Code: ErrPermissionDenied}) {
		t.Fatalf("errors.Is failed on matching code")
	}
	if errors.Is(err, &BusError{Code: ErrChannelFull}) {
		t.Fatalf("errors.Is matched different code")
	}
}

func TestBusErrorMatchesThroughWrapping(t *testing.T) {
	err := fmt.Errorf("submit: %w", NewBusError(ErrSourceMismatch, "source %q", "other"))
	if !errors.Is(err, &BusError{Code: ErrSourceMismatch}) {
		t.Fatalf("wrapped BusError not matched")
	}
	if got := CodeOf(err); got != ErrSourceMismatch {
		t.Fatalf("CodeOf=%q want %q", got, ErrSourceMismatch)
	}
}

func TestCodeOfNonBusError(t *testing.T) {
	if got := CodeOf(errors.New("plain")); got != "" {
		t.Fatalf("CodeOf(plain)=%q want empty", got)
	}
	if got := CodeOf(nil); got != "" {
		t.Fatalf("CodeOf(nil)=%q want empty", got)
	}
}

func TestBusErrorMessageFormat(t *testing.T) {
	withMsg := NewBusError(ErrTooManyPatches, "%d patches", 300)
	if got, want := withMsg.Error(), "too_many_patches: 300 patches"; got != want {
		t.Fatalf("Error()=%q want %q", got, want)
	}
	bare := &BusError{Code: ErrChannelFull}
	if got, want := bare.Error(), "channel_full"; got != want {
		t.Fatalf("Error()=%q want %q", got, want)
	}
}
