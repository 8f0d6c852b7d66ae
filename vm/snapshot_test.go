package vm

import (
	"bytes"
	"testing"
)

func TestTakeSnapshot(t *testing.T) {
	b := NewBytecodeBuilder()
	b.EmitInt8(OpImmByte, 3)
	b.EmitByte(OpStoreByte, 0)
	b.EmitUint16(OpLoadGlobal, 0)

	in := New(b.Bytes(), nil, nil)
	ref, err := in.Allocate(Object{Tag: 2, Fields: []Value{FromInt(9)}})
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	in.SeedGlobals([]Value{FromRef(ref)})
	if err := in.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	snap := TakeSnapshot(in)
	if snap.ID != in.ID().String() {
		t.Errorf("ID = %q, want %q", snap.ID, in.ID().String())
	}
	if !snap.Halted {
		t.Error("Halted = false after a completed run")
	}
	if len(snap.Stack) != 1 || snap.Stack[0] != (SnapshotValue{Kind: uint8(KindRef), Bits: uint64(ref)}) {
		t.Errorf("stack = %v, want the single heap reference", snap.Stack)
	}
	if len(snap.Frames) != 1 {
		t.Fatalf("frames = %d, want 1", len(snap.Frames))
	}
	f := snap.Frames[0]
	if len(f.Locals) != 1 || f.Locals[0].Bits != 3 {
		t.Errorf("locals = %v, want [int 3]", f.Locals)
	}
	if len(f.Globals) != 1 {
		t.Errorf("globals = %v, want the seeded reference", f.Globals)
	}
	if len(snap.Objects) != 1 {
		t.Fatalf("objects = %d, want 1", len(snap.Objects))
	}
	obj := snap.Objects[0]
	if obj.Ref != uint32(ref) || obj.Tag != 2 {
		t.Errorf("object = %+v, want ref %d tag 2", obj, ref)
	}
	if len(obj.Fields) != 1 || obj.Fields[0].Bits != 9 {
		t.Errorf("object fields = %v, want [int 9]", obj.Fields)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	b := NewBytecodeBuilder()
	b.EmitInt8(OpImmByte, 1)
	b.EmitUint64(OpImmWord, 2)

	in := run(t, b.Bytes())
	snap := TakeSnapshot(in)

	data, err := MarshalSnapshot(snap)
	if err != nil {
		t.Fatalf("MarshalSnapshot: %v", err)
	}
	back, err := UnmarshalSnapshot(data)
	if err != nil {
		t.Fatalf("UnmarshalSnapshot: %v", err)
	}

	if back.ID != snap.ID || back.Halted != snap.Halted || back.Sweeps != snap.Sweeps {
		t.Errorf("header = {%s %v %d}, want {%s %v %d}",
			back.ID, back.Halted, back.Sweeps, snap.ID, snap.Halted, snap.Sweeps)
	}
	if len(back.Stack) != 2 || back.Stack[0] != snap.Stack[0] || back.Stack[1] != snap.Stack[1] {
		t.Errorf("stack = %v, want %v", back.Stack, snap.Stack)
	}
	if len(back.Frames) != 1 {
		t.Errorf("frames = %d, want 1", len(back.Frames))
	}
}

// Canonical encoding: the same state marshals to the same bytes.
func TestSnapshotDeterministic(t *testing.T) {
	b := NewBytecodeBuilder()
	b.EmitInt8(OpImmByte, 4)

	in := run(t, b.Bytes())
	snap := TakeSnapshot(in)

	first, err := MarshalSnapshot(snap)
	if err != nil {
		t.Fatalf("MarshalSnapshot: %v", err)
	}
	second, err := MarshalSnapshot(snap)
	if err != nil {
		t.Fatalf("MarshalSnapshot: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("canonical encoding produced different bytes for the same snapshot")
	}
}

func TestUnmarshalSnapshotRejectsGarbage(t *testing.T) {
	if _, err := UnmarshalSnapshot([]byte{0xFF, 0x00, 0x01}); err == nil {
		t.Error("garbage bytes unmarshaled")
	}
}
