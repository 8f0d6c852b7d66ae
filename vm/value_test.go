package vm

import (
	"math"
	"testing"
)

func TestValueConstructorsRoundTrip(t *testing.T) {
	if v := FromChar('λ'); !v.IsChar() || v.Char() != 'λ' {
		t.Errorf("char round trip: %v", v)
	}
	if v := FromInt(-42); !v.IsInt() || v.Int() != -42 {
		t.Errorf("int round trip: %v", v)
	}
	if v := FromWord(math.MaxUint64); !v.IsWord() || v.Word() != math.MaxUint64 {
		t.Errorf("word round trip: %v", v)
	}
	if v := FromFloat(3.5); !v.IsFloat() || v.Float() != 3.5 {
		t.Errorf("float round trip: %v", v)
	}
	if v := FromRef(9); !v.IsRef() || v.Ref() != 9 {
		t.Errorf("ref round trip: %v", v)
	}
}

func TestValueComparable(t *testing.T) {
	if FromInt(7) != FromInt(7) {
		t.Error("equal ints compare unequal")
	}
	// Same payload, different kind: never equal.
	if FromInt(1) == FromWord(1) {
		t.Error("int(1) compares equal to word(1)")
	}
}

func TestValueTruthy(t *testing.T) {
	cases := []struct {
		v    Value
		want bool
	}{
		{FromWord(1), true},
		{FromWord(0xFFFF), true},
		{FromWord(0), false},
		{FromBool(true), true},
		{FromBool(false), false},
		// Truth lives in words only.
		{FromInt(1), false},
		{FromFloat(1.0), false},
		{FromChar('y'), false},
		{FromRef(1), false},
	}
	for _, c := range cases {
		if got := c.v.Truthy(); got != c.want {
			t.Errorf("Truthy(%s) = %v, want %v", c.v, got, c.want)
		}
	}
}

func TestValueAsRef(t *testing.T) {
	if r, ok := FromRef(5).AsRef(); !ok || r != 5 {
		t.Errorf("AsRef on a ref = (%d, %v), want (5, true)", r, ok)
	}
	if _, ok := FromInt(5).AsRef(); ok {
		t.Error("AsRef on an int reported a reference")
	}
}

func TestValueAccessorPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Int() on a word did not panic")
		}
	}()
	FromWord(1).Int()
}

func TestValueString(t *testing.T) {
	cases := []struct {
		v    Value
		want string
	}{
		{FromInt(-3), "int(-3)"},
		{FromWord(8), "word(8)"},
		{FromFloat(2.5), "float(2.5)"},
		{FromRef(4), "ref(4)"},
		{FromChar('a'), `char('a')`},
	}
	for _, c := range cases {
		if got := c.v.String(); got != c.want {
			t.Errorf("String() = %q, want %q", got, c.want)
		}
	}
}
