package vm

import (
	"fmt"
	"math"
)

// ---------------------------------------------------------------------------
// Value: the tagged datum
// ---------------------------------------------------------------------------

// Kind identifies which member of the Value union is populated.
type Kind uint8

const (
	KindChar  Kind = iota // Unicode code point
	KindInt               // signed 64-bit integer
	KindWord              // unsigned 64-bit word; doubles as the boolean representation
	KindFloat             // IEEE 754 double
	KindRef               // heap object reference
)

// kindNames maps kinds to their display names.
var kindNames = [...]string{
	KindChar:  "char",
	KindInt:   "int",
	KindWord:  "word",
	KindFloat: "float",
	KindRef:   "ref",
}

// String returns the display name for a kind.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Value is a single tagged datum flowing through the operand stack, local
// slots, captured slots, and heap object fields.
//
// A Value is a kind byte plus a 64-bit payload. Integers, words, and
// characters are stored directly; floats are stored as their IEEE 754 bits;
// heap references store the arena handle. Values are freely copyable and
// comparable with ==. The only aliasing in the system is through KindRef
// values, which name storage owned by the collector.
type Value struct {
	kind Kind
	bits uint64
}

// Kind returns the kind tag of v.
func (v Value) Kind() Kind {
	return v.kind
}

// ---------------------------------------------------------------------------
// Constructors
// ---------------------------------------------------------------------------

// FromChar creates a character value.
func FromChar(r rune) Value {
	return Value{kind: KindChar, bits: uint64(uint32(r))}
}

// FromInt creates a signed integer value.
func FromInt(n int64) Value {
	return Value{kind: KindInt, bits: uint64(n)}
}

// FromWord creates an unsigned word value. Words are also the boolean
// representation: nonzero is true.
func FromWord(w uint64) Value {
	return Value{kind: KindWord, bits: w}
}

// FromBool creates a word value of 1 or 0.
func FromBool(b bool) Value {
	if b {
		return FromWord(1)
	}
	return FromWord(0)
}

// FromFloat creates a float value.
func FromFloat(f float64) Value {
	return Value{kind: KindFloat, bits: math.Float64bits(f)}
}

// FromRef creates a heap object reference value.
func FromRef(r Ref) Value {
	return Value{kind: KindRef, bits: uint64(r)}
}

// ---------------------------------------------------------------------------
// Type checking
// ---------------------------------------------------------------------------

// IsChar returns true if v is a character.
func (v Value) IsChar() bool { return v.kind == KindChar }

// IsInt returns true if v is a signed integer.
func (v Value) IsInt() bool { return v.kind == KindInt }

// IsWord returns true if v is an unsigned word.
func (v Value) IsWord() bool { return v.kind == KindWord }

// IsFloat returns true if v is a float.
func (v Value) IsFloat() bool { return v.kind == KindFloat }

// IsRef returns true if v is a heap object reference.
func (v Value) IsRef() bool { return v.kind == KindRef }

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

// Char returns v as a rune.
// Panics if v is not a character.
func (v Value) Char() rune {
	if v.kind != KindChar {
		panic("Value.Char: not a char")
	}
	return rune(uint32(v.bits))
}

// Int returns v as an int64.
// Panics if v is not an integer.
func (v Value) Int() int64 {
	if v.kind != KindInt {
		panic("Value.Int: not an int")
	}
	return int64(v.bits)
}

// Word returns v as a uint64.
// Panics if v is not a word.
func (v Value) Word() uint64 {
	if v.kind != KindWord {
		panic("Value.Word: not a word")
	}
	return v.bits
}

// Float returns v as a float64.
// Panics if v is not a float.
func (v Value) Float() float64 {
	if v.kind != KindFloat {
		panic("Value.Float: not a float")
	}
	return math.Float64frombits(v.bits)
}

// Ref returns v as a heap reference.
// Panics if v is not a reference.
func (v Value) Ref() Ref {
	if v.kind != KindRef {
		panic("Value.Ref: not a ref")
	}
	return Ref(v.bits)
}

// AsRef returns the heap reference held by v, or false when v is any other
// kind. The collector's mark pass uses this to find references without
// caring about the remaining kinds.
func (v Value) AsRef() (Ref, bool) {
	if v.kind != KindRef {
		return 0, false
	}
	return Ref(v.bits), true
}

// Truthy reports whether v is a nonzero word. Only words carry truth; the
// conditional jump rejects every other kind.
func (v Value) Truthy() bool {
	return v.kind == KindWord && v.bits != 0
}

// String implements the Stringer interface for diagnostics and traces.
func (v Value) String() string {
	switch v.kind {
	case KindChar:
		return fmt.Sprintf("char(%q)", v.Char())
	case KindInt:
		return fmt.Sprintf("int(%d)", v.Int())
	case KindWord:
		return fmt.Sprintf("word(%d)", v.Word())
	case KindFloat:
		return fmt.Sprintf("float(%g)", v.Float())
	case KindRef:
		return fmt.Sprintf("ref(%d)", v.Ref())
	default:
		return fmt.Sprintf("value(%d,%d)", v.kind, v.bits)
	}
}
