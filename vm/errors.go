package vm

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Runtime errors
// ---------------------------------------------------------------------------

// ErrorKind classifies a runtime failure. Every kind is recoverable at the
// interpreter-instance boundary: execution stops, the error is returned,
// and the embedding caller decides what to do with it.
type ErrorKind uint8

const (
	ErrArgument       ErrorKind = iota // malformed opcode operand
	ErrConstIndex                      // constant-pool index out of range
	ErrIllegalGoto                     // jump target out of stream bounds
	ErrStackEmpty                      // pop on an empty operand stack
	ErrStackOverflow                   // push past the fixed capacity
	ErrType                            // operand kind mismatch
	ErrUnboundVariable                 // slot index not populated and not appendable
	ErrUnexpectedEOF                   // opcode or operand truncated at end of stream
	ErrUnknownOpcode                   // byte outside the defined enumeration
	ErrOutOfMemory                     // live set exceeds the heap ceiling after a sweep
)

var errorKindNames = [...]string{
	ErrArgument:        "argument error",
	ErrConstIndex:      "const index out of range",
	ErrIllegalGoto:     "illegal goto",
	ErrStackEmpty:      "stack empty",
	ErrStackOverflow:   "stack overflow",
	ErrType:            "type error",
	ErrUnboundVariable: "unbound variable",
	ErrUnexpectedEOF:   "unexpected end of stream",
	ErrUnknownOpcode:   "unknown opcode",
	ErrOutOfMemory:     "out of memory",
}

// String returns the display name for an error kind.
func (k ErrorKind) String() string {
	if int(k) < len(errorKindNames) {
		return errorKindNames[k]
	}
	return fmt.Sprintf("error kind %d", uint8(k))
}

// RuntimeError is the typed failure produced by the interpreter and the
// collector. IP is the byte offset of the faulting opcode within the frame
// that failed, or -1 when no instruction was executing.
type RuntimeError struct {
	Kind    ErrorKind
	IP      int
	Message string
}

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.IP < 0 {
		return fmt.Sprintf("vm: %s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("vm: %s at %04d: %s", e.Kind, e.IP, e.Message)
}

// IsKind reports whether err is (or wraps) a RuntimeError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Kind == kind
	}
	return false
}

// runtimeErrorf builds a RuntimeError with a formatted message.
func runtimeErrorf(kind ErrorKind, ip int, format string, args ...any) *RuntimeError {
	return &RuntimeError{Kind: kind, IP: ip, Message: fmt.Sprintf(format, args...)}
}
