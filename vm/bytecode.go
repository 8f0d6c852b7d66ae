package vm

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode represents a single bytecode instruction. Byte values are a stable
// closed enumeration; multi-byte operands are big-endian and immediately
// follow the opcode byte.
type Opcode byte

// Control flow and returns
const (
	OpReturn Opcode = 0 // halt the frame, yielding the top of stack
	OpGoto   Opcode = 1 // unconditional absolute jump (16-bit target)
	OpGotoIf Opcode = 2 // pop word, jump if nonzero (16-bit target)
)

// Variable operations
const (
	OpLoad  Opcode = 3 // push local slot (16-bit index)
	OpStore Opcode = 4 // pop into local slot, appending at the end (16-bit index)
)

// Immediate loads
const (
	OpImmInt   Opcode = 5 // push inline int64 (8 bytes)
	OpImmFloat Opcode = 6 // push inline float64 (8 bytes, IEEE bits)
	OpImmWord  Opcode = 7 // push inline uint64 (8 bytes)
)

// Integer arithmetic and comparisons. Binary forms pop x then y and push
// x OP y, so x is the last-pushed operand.
const (
	OpAddInt Opcode = 8
	OpSubInt Opcode = 9
	OpMulInt Opcode = 10
	OpDivInt Opcode = 11
	OpEqInt  Opcode = 12 // comparisons push a word of 1 or 0
	OpGtInt  Opcode = 13
	OpGeInt  Opcode = 14
	OpLtInt  Opcode = 15
	OpLeInt  Opcode = 16
	OpNegInt Opcode = 17
)

// Short immediates, pool and table access
const (
	OpImmByte    Opcode = 18 // push sign-extended int8 literal
	OpImmShort   Opcode = 19 // push sign-extended int16 literal
	OpConst      Opcode = 20 // push constant-pool entry (8-bit index)
	OpLoadByte   Opcode = 21 // push local slot (8-bit index)
	OpStoreByte  Opcode = 22 // pop into local slot (8-bit index)
	OpLoadGlobal Opcode = 23 // push captured/global slot (16-bit index)
	OpCall       Opcode = 24 // invoke function-table entry (8-bit index)
)

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name         string // human-readable name
	OperandBytes int    // number of operand bytes
}

// opcodeTable maps opcodes to their metadata.
var opcodeTable = map[Opcode]OpcodeInfo{
	OpReturn: {"RETURN", 0},
	OpGoto:   {"GOTO", 2},
	OpGotoIf: {"GOTO_IF", 2},

	OpLoad:  {"LOAD", 2},
	OpStore: {"STORE", 2},

	OpImmInt:   {"IMM_INT", 8},
	OpImmFloat: {"IMM_FLOAT", 8},
	OpImmWord:  {"IMM_WORD", 8},

	OpAddInt: {"ADD_INT", 0},
	OpSubInt: {"SUB_INT", 0},
	OpMulInt: {"MUL_INT", 0},
	OpDivInt: {"DIV_INT", 0},
	OpEqInt:  {"EQ_INT", 0},
	OpGtInt:  {"GT_INT", 0},
	OpGeInt:  {"GE_INT", 0},
	OpLtInt:  {"LT_INT", 0},
	OpLeInt:  {"LE_INT", 0},
	OpNegInt: {"NEG_INT", 0},

	OpImmByte:    {"IMM_BYTE", 1},
	OpImmShort:   {"IMM_SHORT", 2},
	OpConst:      {"CONST", 1},
	OpLoadByte:   {"LOAD_B", 1},
	OpStoreByte:  {"STORE_B", 1},
	OpLoadGlobal: {"LOAD_GLOBAL", 2},
	OpCall:       {"CALL", 1},
}

// Info returns the metadata for an opcode.
func (op Opcode) Info() (OpcodeInfo, bool) {
	info, ok := opcodeTable[op]
	return info, ok
}

// Name returns the human-readable name for an opcode.
func (op Opcode) Name() string {
	if info, ok := opcodeTable[op]; ok {
		return info.Name
	}
	return fmt.Sprintf("UNKNOWN_%02X", byte(op))
}

// String implements the Stringer interface.
func (op Opcode) String() string {
	return op.Name()
}

// ---------------------------------------------------------------------------
// BytecodeBuilder: Helper for constructing bytecode
// ---------------------------------------------------------------------------

// BytecodeBuilder helps construct instruction streams. Assemblers and tests
// use it; the interpreter only ever consumes the finished byte slice.
type BytecodeBuilder struct {
	bytes []byte
}

// NewBytecodeBuilder creates a new bytecode builder.
func NewBytecodeBuilder() *BytecodeBuilder {
	return &BytecodeBuilder{
		bytes: make([]byte, 0, 64),
	}
}

// Bytes returns the constructed bytecode.
func (b *BytecodeBuilder) Bytes() []byte {
	return b.bytes
}

// Len returns the current length.
func (b *BytecodeBuilder) Len() int {
	return len(b.bytes)
}

// Emit appends an opcode with no operands.
func (b *BytecodeBuilder) Emit(op Opcode) {
	b.bytes = append(b.bytes, byte(op))
}

// EmitByte appends an opcode with a single byte operand.
func (b *BytecodeBuilder) EmitByte(op Opcode, operand byte) {
	b.bytes = append(b.bytes, byte(op), operand)
}

// EmitInt8 appends an opcode with a signed 8-bit operand.
func (b *BytecodeBuilder) EmitInt8(op Opcode, operand int8) {
	b.bytes = append(b.bytes, byte(op), byte(operand))
}

// EmitUint16 appends an opcode with a 16-bit operand.
func (b *BytecodeBuilder) EmitUint16(op Opcode, operand uint16) {
	b.bytes = append(b.bytes, byte(op), byte(operand>>8), byte(operand))
}

// EmitInt16 appends an opcode with a signed 16-bit operand.
func (b *BytecodeBuilder) EmitInt16(op Opcode, operand int16) {
	b.EmitUint16(op, uint16(operand))
}

// EmitInt64 appends an opcode with a signed 64-bit operand.
func (b *BytecodeBuilder) EmitInt64(op Opcode, operand int64) {
	b.bytes = append(b.bytes, byte(op))
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(operand))
	b.bytes = append(b.bytes, buf[:]...)
}

// EmitUint64 appends an opcode with an unsigned 64-bit operand.
func (b *BytecodeBuilder) EmitUint64(op Opcode, operand uint64) {
	b.bytes = append(b.bytes, byte(op))
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], operand)
	b.bytes = append(b.bytes, buf[:]...)
}

// EmitFloat64 appends an opcode with a 64-bit float operand.
func (b *BytecodeBuilder) EmitFloat64(op Opcode, operand float64) {
	b.EmitUint64(op, math.Float64bits(operand))
}

// ---------------------------------------------------------------------------
// Label management for jumps
// ---------------------------------------------------------------------------

// Label represents a jump target that may not be emitted yet. Jump targets
// are absolute byte offsets.
type Label struct {
	resolved bool
	position int   // target offset once resolved
	refs     []int // operand positions awaiting the target
}

// NewLabel creates an unresolved label.
func (b *BytecodeBuilder) NewLabel() *Label {
	return &Label{refs: make([]int, 0, 2)}
}

// Mark resolves a label to the current position and patches every jump that
// referenced it.
func (b *BytecodeBuilder) Mark(label *Label) {
	if label.resolved {
		panic("label already resolved")
	}
	label.resolved = true
	label.position = len(b.bytes)

	for _, ref := range label.refs {
		binary.BigEndian.PutUint16(b.bytes[ref:], uint16(label.position))
	}
	label.refs = nil
}

// EmitJump emits OpGoto or OpGotoIf targeting a label.
func (b *BytecodeBuilder) EmitJump(op Opcode, label *Label) {
	b.bytes = append(b.bytes, byte(op))
	if label.resolved {
		b.bytes = append(b.bytes, byte(label.position>>8), byte(label.position))
		return
	}
	label.refs = append(label.refs, len(b.bytes))
	b.bytes = append(b.bytes, 0, 0) // placeholder
}

// ---------------------------------------------------------------------------
// Bytecode reader for disassembly
// ---------------------------------------------------------------------------

// BytecodeReader reads instruction streams for disassembly and tooling. The
// interpreter does its own bounds-checked decoding; the reader panics on
// underflow because tooling input is assumed complete.
type BytecodeReader struct {
	bytes []byte
	pos   int
}

// NewBytecodeReader creates a reader for an instruction stream.
func NewBytecodeReader(code []byte) *BytecodeReader {
	return &BytecodeReader{bytes: code}
}

// Position returns the current read position.
func (r *BytecodeReader) Position() int {
	return r.pos
}

// HasMore returns true if there are more bytes to read.
func (r *BytecodeReader) HasMore() bool {
	return r.pos < len(r.bytes)
}

// ReadOpcode reads and returns the next opcode.
func (r *BytecodeReader) ReadOpcode() Opcode {
	if r.pos >= len(r.bytes) {
		panic("bytecode underflow")
	}
	op := Opcode(r.bytes[r.pos])
	r.pos++
	return op
}

// ReadByte reads a single byte operand.
func (r *BytecodeReader) ReadByte() byte {
	if r.pos >= len(r.bytes) {
		panic("bytecode underflow")
	}
	b := r.bytes[r.pos]
	r.pos++
	return b
}

// ReadInt8 reads a signed 8-bit operand.
func (r *BytecodeReader) ReadInt8() int8 {
	return int8(r.ReadByte())
}

// ReadUint16 reads a 16-bit operand.
func (r *BytecodeReader) ReadUint16() uint16 {
	if r.pos+2 > len(r.bytes) {
		panic("bytecode underflow")
	}
	v := binary.BigEndian.Uint16(r.bytes[r.pos:])
	r.pos += 2
	return v
}

// ReadInt16 reads a signed 16-bit operand.
func (r *BytecodeReader) ReadInt16() int16 {
	return int16(r.ReadUint16())
}

// ReadUint64 reads a 64-bit operand.
func (r *BytecodeReader) ReadUint64() uint64 {
	if r.pos+8 > len(r.bytes) {
		panic("bytecode underflow")
	}
	v := binary.BigEndian.Uint64(r.bytes[r.pos:])
	r.pos += 8
	return v
}

// ReadInt64 reads a signed 64-bit operand.
func (r *BytecodeReader) ReadInt64() int64 {
	return int64(r.ReadUint64())
}

// ReadFloat64 reads a 64-bit float operand.
func (r *BytecodeReader) ReadFloat64() float64 {
	return math.Float64frombits(r.ReadUint64())
}

// Skip advances the position by n bytes.
func (r *BytecodeReader) Skip(n int) {
	r.pos += n
}

// ---------------------------------------------------------------------------
// Disassembly
// ---------------------------------------------------------------------------

// DisassembleInstruction disassembles a single instruction at the reader's
// position and advances the reader.
func DisassembleInstruction(r *BytecodeReader) string {
	pos := r.Position()
	op := r.ReadOpcode()
	info, known := op.Info()
	if !known {
		return fmt.Sprintf("%04d  %s", pos, op.Name())
	}

	switch op {
	case OpReturn, OpAddInt, OpSubInt, OpMulInt, OpDivInt, OpNegInt,
		OpEqInt, OpGtInt, OpGeInt, OpLtInt, OpLeInt:
		return fmt.Sprintf("%04d  %s", pos, info.Name)

	case OpGoto, OpGotoIf:
		target := r.ReadUint16()
		return fmt.Sprintf("%04d  %s -> %04d", pos, info.Name, target)

	case OpLoad, OpStore, OpLoadGlobal:
		idx := r.ReadUint16()
		return fmt.Sprintf("%04d  %s %d", pos, info.Name, idx)

	case OpConst, OpLoadByte, OpStoreByte, OpCall:
		idx := r.ReadByte()
		return fmt.Sprintf("%04d  %s %d", pos, info.Name, idx)

	case OpImmByte:
		v := r.ReadInt8()
		return fmt.Sprintf("%04d  %s %d", pos, info.Name, v)

	case OpImmShort:
		v := r.ReadInt16()
		return fmt.Sprintf("%04d  %s %d", pos, info.Name, v)

	case OpImmInt:
		v := r.ReadInt64()
		return fmt.Sprintf("%04d  %s %d", pos, info.Name, v)

	case OpImmWord:
		v := r.ReadUint64()
		return fmt.Sprintf("%04d  %s %d", pos, info.Name, v)

	case OpImmFloat:
		v := r.ReadFloat64()
		return fmt.Sprintf("%04d  %s %g", pos, info.Name, v)

	default:
		r.Skip(info.OperandBytes)
		return fmt.Sprintf("%04d  %s", pos, info.Name)
	}
}

// Disassemble returns a full disassembly of an instruction stream.
func Disassemble(code []byte) string {
	r := NewBytecodeReader(code)
	var sb strings.Builder
	for r.HasMore() {
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(DisassembleInstruction(r))
	}
	return sb.String()
}
