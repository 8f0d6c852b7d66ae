package vm

import (
	"fmt"
	"testing"
)

func TestRuntimeErrorFormat(t *testing.T) {
	e := runtimeErrorf(ErrIllegalGoto, 24, "target %d out of range", 999)
	want := "vm: illegal goto at 0024: target 999 out of range"
	if got := e.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	// Errors raised outside instruction execution carry no offset.
	e = runtimeErrorf(ErrOutOfMemory, -1, "ceiling reached")
	want = "vm: out of memory: ceiling reached"
	if got := e.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestIsKind(t *testing.T) {
	e := runtimeErrorf(ErrType, 0, "want int")
	if !IsKind(e, ErrType) {
		t.Error("IsKind missed a direct RuntimeError")
	}
	if IsKind(e, ErrArgument) {
		t.Error("IsKind matched the wrong kind")
	}
	wrapped := fmt.Errorf("run failed: %w", e)
	if !IsKind(wrapped, ErrType) {
		t.Error("IsKind missed a wrapped RuntimeError")
	}
	if IsKind(fmt.Errorf("plain"), ErrType) {
		t.Error("IsKind matched a plain error")
	}
}
