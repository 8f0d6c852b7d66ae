package vm

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ---------------------------------------------------------------------------
// State snapshots
// ---------------------------------------------------------------------------
//
// A Snapshot is a post-mortem record of one interpreter instance: operand
// stack, frames, and the live heap, in a form an inspector can decode
// without the runtime. It is a diagnostic artifact, not a program format;
// bytecode itself is never part of a snapshot.

// cborEncMode uses canonical mode for deterministic encoding.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("vm: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// SnapshotValue is the wire form of a Value: its kind tag and raw payload.
type SnapshotValue struct {
	Kind uint8  `cbor:"k"`
	Bits uint64 `cbor:"b"`
}

// SnapshotFrame records one activation.
type SnapshotFrame struct {
	IP      int             `cbor:"ip"`
	Base    int             `cbor:"base"`
	Locals  []SnapshotValue `cbor:"locals"`
	Globals []SnapshotValue `cbor:"globals"`
}

// SnapshotObject records one live heap object with its arena handle.
type SnapshotObject struct {
	Ref    uint32          `cbor:"ref"`
	Tag    uint8           `cbor:"tag"`
	Fields []SnapshotValue `cbor:"fields"`
}

// Snapshot captures the full visible state of an interpreter and its heap.
type Snapshot struct {
	ID      string           `cbor:"id"`
	Halted  bool             `cbor:"halted"`
	Stack   []SnapshotValue  `cbor:"stack"`
	Frames  []SnapshotFrame  `cbor:"frames"`
	Objects []SnapshotObject `cbor:"objects"`
	Sweeps  uint64           `cbor:"sweeps"`
}

func snapshotValues(vals []Value) []SnapshotValue {
	out := make([]SnapshotValue, len(vals))
	for i, v := range vals {
		out[i] = SnapshotValue{Kind: uint8(v.kind), Bits: v.bits}
	}
	return out
}

// TakeSnapshot records the current state of an interpreter and its heap.
func TakeSnapshot(in *Interpreter) *Snapshot {
	snap := &Snapshot{
		ID:     in.id.String(),
		Halted: in.halted,
		Stack:  snapshotValues(in.stack[:in.sp]),
		Sweeps: in.heap.SweepCount(),
	}

	snap.Frames = make([]SnapshotFrame, 0, in.fp+1)
	for fi := 0; fi <= in.fp; fi++ {
		f := &in.frames[fi]
		snap.Frames = append(snap.Frames, SnapshotFrame{
			IP:      f.ip,
			Base:    f.base,
			Locals:  snapshotValues(f.locals),
			Globals: snapshotValues(f.globals),
		})
	}

	for idx := range in.heap.cells {
		c := &in.heap.cells[idx]
		if !c.inUse {
			continue
		}
		snap.Objects = append(snap.Objects, SnapshotObject{
			Ref:    uint32(idx),
			Tag:    c.obj.Tag,
			Fields: snapshotValues(c.obj.Fields),
		})
	}

	return snap
}

// MarshalSnapshot serializes a Snapshot to CBOR bytes.
func MarshalSnapshot(s *Snapshot) ([]byte, error) {
	return cborEncMode.Marshal(s)
}

// UnmarshalSnapshot deserializes a Snapshot from CBOR bytes.
func UnmarshalSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := cbor.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("vm: unmarshal snapshot: %w", err)
	}
	return &s, nil
}
