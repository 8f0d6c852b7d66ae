package vm

import (
	"encoding/binary"
	"math"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	_ "github.com/tliron/commonlog/simple"
)

// ---------------------------------------------------------------------------
// Function table
// ---------------------------------------------------------------------------

// Function describes one callable body in the function table: how many
// arguments it consumes from the caller's operand stack, and the
// instruction stream it executes.
type Function struct {
	Arity int
	Code  []byte
}

// ---------------------------------------------------------------------------
// Call frames
// ---------------------------------------------------------------------------

// frame is one activation: an instruction stream with its own pointer,
// locals, and captured slots, plus a window into the shared operand stack.
type frame struct {
	code    []byte
	ip      int
	base    int     // operand-stack base; this frame owns stack[base:]
	locals  []Value // appended to by Store at the one-past-end index
	globals []Value // the caller's locals; read-only from this frame
}

// ---------------------------------------------------------------------------
// Interpreter
// ---------------------------------------------------------------------------

// Interpreter executes one instruction stream to completion. The constant
// pool and function table are fixed at construction; calls push frames that
// share both by reference. An Interpreter is single-threaded: Run blocks
// until the stream halts or fails.
type Interpreter struct {
	consts []Value
	funcs  []Function
	heap   *Heap
	cfg    Config

	id  uuid.UUID
	log commonlog.Logger

	stack  []Value // shared operand stack, windowed per frame
	sp     int
	frames []frame // len(frames) == fp+1
	fp     int

	opIP   int // offset of the opcode being executed, for error reporting
	halted bool
}

// New creates an interpreter over an instruction stream with the default
// configuration. The constant pool and function table may be nil when the
// stream uses neither.
func New(code []byte, consts []Value, funcs []Function) *Interpreter {
	return NewWithConfig(code, consts, funcs, DefaultConfig())
}

// NewWithConfig creates an interpreter with explicit runtime tuning.
// Panics on an invalid configuration; LoadConfig-produced configurations
// are always valid.
func NewWithConfig(code []byte, consts []Value, funcs []Function, cfg Config) *Interpreter {
	if err := cfg.Validate(); err != nil {
		panic(err.Error())
	}
	return &Interpreter{
		consts: consts,
		funcs:  funcs,
		heap:   NewHeapSized(cfg.HeapThreshold, cfg.HeapCeiling),
		cfg:    cfg,
		id:     uuid.New(),
		log:    commonlog.GetLogger("ember.vm"),
		stack:  make([]Value, 0, cfg.StackCapacity),
		frames: []frame{{code: code}},
	}
}

// ID returns the instance identity used to correlate traces and snapshots.
func (in *Interpreter) ID() uuid.UUID {
	return in.id
}

// Heap returns the heap this interpreter allocates from.
func (in *Interpreter) Heap() *Heap {
	return in.heap
}

// AttachHeap replaces the interpreter's heap, allowing several interpreter
// instances to share one collector. Must be called before Run.
func (in *Interpreter) AttachHeap(h *Heap) {
	in.heap = h
}

// SeedGlobals installs the captured/global slots of the bottom frame. The
// embedding caller uses this to hand pre-resolved values (heap references
// included) to the program.
func (in *Interpreter) SeedGlobals(vals []Value) {
	in.frames[0].globals = vals
}

// Halted reports whether execution has reached end-of-stream.
func (in *Interpreter) Halted() bool {
	return in.halted
}

// Stack returns a copy of the live operand stack, every active frame's
// window included. After a completed run only the bottom frame remains, so
// this is the program's result stack for the embedding caller.
func (in *Interpreter) Stack() []Value {
	out := make([]Value, in.sp)
	copy(out, in.stack[:in.sp])
	return out
}

// Allocate creates a heap object with this interpreter's roots marked
// before any collection the allocation triggers. Embedders should allocate
// through this method rather than the heap directly whenever the
// interpreter may be holding live references.
func (in *Interpreter) Allocate(obj Object) (Ref, error) {
	return in.heap.Allocate(obj, in.MarkRoots)
}

// MarkRoots marks every heap reference reachable from the operand stack
// and from the locals and captured slots of every live frame. It satisfies
// MarkFunc, so it plugs directly into Heap.Allocate.
func (in *Interpreter) MarkRoots(h *Heap) {
	for i := 0; i < in.sp; i++ {
		if r, ok := in.stack[i].AsRef(); ok {
			h.Mark(r)
		}
	}
	for fi := 0; fi <= in.fp; fi++ {
		f := &in.frames[fi]
		for _, v := range f.locals {
			if r, ok := v.AsRef(); ok {
				h.Mark(r)
			}
		}
		for _, v := range f.globals {
			if r, ok := v.AsRef(); ok {
				h.Mark(r)
			}
		}
	}
}

// ---------------------------------------------------------------------------
// Execution
// ---------------------------------------------------------------------------

// Run executes until the bottom frame reaches end-of-stream or an
// instruction fails. On failure the typed error is returned and the
// interpreter stops where it was; there is no resume.
func (in *Interpreter) Run() error {
	if in.halted {
		return nil
	}
	for {
		f := &in.frames[in.fp]
		if f.ip >= len(f.code) {
			if in.fp == 0 {
				in.halted = true
				return nil
			}
			if err := in.finishFrame(); err != nil {
				return err
			}
			continue
		}

		in.opIP = f.ip
		op := Opcode(f.code[f.ip])
		f.ip++

		if in.cfg.Trace {
			in.log.Debugf("%s: %04d %s depth=%d sp=%d", in.id, in.opIP, op, in.fp, in.sp)
		}

		if err := in.step(op); err != nil {
			return err
		}
	}
}

// step dispatches a single decoded opcode.
func (in *Interpreter) step(op Opcode) *RuntimeError {
	switch op {
	case OpReturn:
		f := &in.frames[in.fp]
		f.ip = len(f.code)

	case OpGoto:
		target, err := in.fetchUint16()
		if err != nil {
			return err
		}
		return in.jump(int(target))

	case OpGotoIf:
		target, err := in.fetchUint16()
		if err != nil {
			return err
		}
		// Target legality is checked before the condition is popped, so a
		// failed jump leaves the operand stack as it was.
		if int(target) > len(in.frames[in.fp].code) {
			return in.illegalGoto(int(target))
		}
		cond, err := in.popWord()
		if err != nil {
			return err
		}
		if cond != 0 {
			in.frames[in.fp].ip = int(target)
		}

	case OpLoad:
		idx, err := in.fetchUint16()
		if err != nil {
			return err
		}
		return in.loadLocal(int(idx))

	case OpLoadByte:
		idx, err := in.fetchByte()
		if err != nil {
			return err
		}
		return in.loadLocal(int(idx))

	case OpStore:
		idx, err := in.fetchUint16()
		if err != nil {
			return err
		}
		return in.storeLocal(int(idx))

	case OpStoreByte:
		idx, err := in.fetchByte()
		if err != nil {
			return err
		}
		return in.storeLocal(int(idx))

	case OpLoadGlobal:
		idx, err := in.fetchUint16()
		if err != nil {
			return err
		}
		f := &in.frames[in.fp]
		if int(idx) >= len(f.globals) {
			return runtimeErrorf(ErrUnboundVariable, in.opIP, "global %d not populated", idx)
		}
		return in.push(f.globals[idx])

	case OpImmInt:
		bits, err := in.fetchUint64()
		if err != nil {
			return err
		}
		return in.push(FromInt(int64(bits)))

	case OpImmFloat:
		bits, err := in.fetchUint64()
		if err != nil {
			return err
		}
		return in.push(FromFloat(math.Float64frombits(bits)))

	case OpImmWord:
		bits, err := in.fetchUint64()
		if err != nil {
			return err
		}
		return in.push(FromWord(bits))

	case OpImmByte:
		b, err := in.fetchByte()
		if err != nil {
			return err
		}
		return in.push(FromInt(int64(int8(b))))

	case OpImmShort:
		u, err := in.fetchUint16()
		if err != nil {
			return err
		}
		return in.push(FromInt(int64(int16(u))))

	case OpConst:
		idx, err := in.fetchByte()
		if err != nil {
			return err
		}
		if int(idx) >= len(in.consts) {
			return runtimeErrorf(ErrConstIndex, in.opIP, "constant %d out of range [0, %d)", idx, len(in.consts))
		}
		return in.push(in.consts[idx])

	case OpAddInt, OpSubInt, OpMulInt, OpDivInt:
		return in.arith(op)

	case OpEqInt, OpGtInt, OpGeInt, OpLtInt, OpLeInt:
		return in.compare(op)

	case OpNegInt:
		x, err := in.popInt()
		if err != nil {
			return err
		}
		return in.push(FromInt(-x))

	case OpCall:
		return in.call()

	default:
		return runtimeErrorf(ErrUnknownOpcode, in.opIP, "byte %02X is not an opcode", byte(op))
	}
	return nil
}

// arith executes a binary integer operation. Operands pop as x then y and
// the result is x OP y, so x is the last-pushed value.
func (in *Interpreter) arith(op Opcode) *RuntimeError {
	x, err := in.popInt()
	if err != nil {
		return err
	}
	y, err := in.popInt()
	if err != nil {
		return err
	}
	switch op {
	case OpAddInt:
		return in.push(FromInt(x + y))
	case OpSubInt:
		return in.push(FromInt(x - y))
	case OpMulInt:
		return in.push(FromInt(x * y))
	default: // OpDivInt
		if y == 0 {
			return runtimeErrorf(ErrArgument, in.opIP, "integer division by zero")
		}
		return in.push(FromInt(x / y))
	}
}

// compare executes an integer comparison, pushing a word of 1 or 0.
// Operand order matches arith: the result is x OP y with x last-pushed.
func (in *Interpreter) compare(op Opcode) *RuntimeError {
	x, err := in.popInt()
	if err != nil {
		return err
	}
	y, err := in.popInt()
	if err != nil {
		return err
	}
	var res bool
	switch op {
	case OpEqInt:
		res = x == y
	case OpGtInt:
		res = x > y
	case OpGeInt:
		res = x >= y
	case OpLtInt:
		res = x < y
	default: // OpLeInt
		res = x <= y
	}
	return in.push(FromBool(res))
}

// ---------------------------------------------------------------------------
// Call mechanism
// ---------------------------------------------------------------------------

// call invokes a function-table entry: it pops the callee's arguments into
// fresh locals and pushes a frame whose captured slots alias the caller's
// locals. The callee sees exactly one level of the caller's scope; deeper
// callers are not visible.
func (in *Interpreter) call() *RuntimeError {
	idx, err := in.fetchByte()
	if err != nil {
		return err
	}
	if int(idx) >= len(in.funcs) {
		return runtimeErrorf(ErrArgument, in.opIP, "function %d out of range [0, %d)", idx, len(in.funcs))
	}
	fn := in.funcs[idx]

	if in.fp+1 >= in.cfg.MaxFrameDepth {
		return runtimeErrorf(ErrStackOverflow, in.opIP, "call depth exceeds limit %d", in.cfg.MaxFrameDepth)
	}

	// Arguments pop in reverse push order into locals 0..arity-1.
	locals := make([]Value, fn.Arity)
	for i := fn.Arity - 1; i >= 0; i-- {
		v, err := in.pop()
		if err != nil {
			return err
		}
		locals[i] = v
	}

	callerLocals := in.frames[in.fp].locals
	in.frames = append(in.frames, frame{
		code:    fn.Code,
		base:    in.sp,
		locals:  locals,
		globals: callerLocals,
	})
	in.fp++
	return nil
}

// finishFrame completes a callee: exactly one result moves from the child's
// operand window to the caller's. A child halting with nothing on its stack
// is a failure that propagates to the caller.
func (in *Interpreter) finishFrame() *RuntimeError {
	child := &in.frames[in.fp]
	if in.sp <= child.base {
		return runtimeErrorf(ErrStackEmpty, in.opIP, "callee halted with an empty operand stack")
	}
	result := in.stack[in.sp-1]
	in.sp = child.base
	in.frames = in.frames[:in.fp]
	in.fp--
	return in.push(result)
}

// ---------------------------------------------------------------------------
// Decode helpers
// ---------------------------------------------------------------------------

func (in *Interpreter) fetchByte() (byte, *RuntimeError) {
	f := &in.frames[in.fp]
	if f.ip >= len(f.code) {
		return 0, runtimeErrorf(ErrUnexpectedEOF, in.opIP, "operand truncated at end of stream")
	}
	b := f.code[f.ip]
	f.ip++
	return b, nil
}

func (in *Interpreter) fetchUint16() (uint16, *RuntimeError) {
	f := &in.frames[in.fp]
	if f.ip+2 > len(f.code) {
		return 0, runtimeErrorf(ErrUnexpectedEOF, in.opIP, "operand truncated at end of stream")
	}
	v := binary.BigEndian.Uint16(f.code[f.ip:])
	f.ip += 2
	return v, nil
}

func (in *Interpreter) fetchUint64() (uint64, *RuntimeError) {
	f := &in.frames[in.fp]
	if f.ip+8 > len(f.code) {
		return 0, runtimeErrorf(ErrUnexpectedEOF, in.opIP, "operand truncated at end of stream")
	}
	v := binary.BigEndian.Uint64(f.code[f.ip:])
	f.ip += 8
	return v, nil
}

// ---------------------------------------------------------------------------
// Stack and slot helpers
// ---------------------------------------------------------------------------

func (in *Interpreter) push(v Value) *RuntimeError {
	f := &in.frames[in.fp]
	if in.sp-f.base >= in.cfg.StackCapacity {
		return runtimeErrorf(ErrStackOverflow, in.opIP, "operand stack full at depth %d", in.cfg.StackCapacity)
	}
	if in.sp < len(in.stack) {
		in.stack[in.sp] = v
	} else {
		in.stack = append(in.stack, v)
	}
	in.sp++
	return nil
}

func (in *Interpreter) pop() (Value, *RuntimeError) {
	f := &in.frames[in.fp]
	if in.sp <= f.base {
		return Value{}, runtimeErrorf(ErrStackEmpty, in.opIP, "pop on empty operand stack")
	}
	in.sp--
	return in.stack[in.sp], nil
}

func (in *Interpreter) popInt() (int64, *RuntimeError) {
	v, err := in.pop()
	if err != nil {
		return 0, err
	}
	if !v.IsInt() {
		return 0, runtimeErrorf(ErrType, in.opIP, "want int operand, got %s", v.Kind())
	}
	return v.Int(), nil
}

func (in *Interpreter) popWord() (uint64, *RuntimeError) {
	v, err := in.pop()
	if err != nil {
		return 0, err
	}
	if !v.IsWord() {
		return 0, runtimeErrorf(ErrType, in.opIP, "want word operand, got %s", v.Kind())
	}
	return v.Word(), nil
}

func (in *Interpreter) loadLocal(idx int) *RuntimeError {
	f := &in.frames[in.fp]
	if idx >= len(f.locals) {
		return runtimeErrorf(ErrUnboundVariable, in.opIP, "local %d not populated", idx)
	}
	return in.push(f.locals[idx])
}

// storeLocal overwrites an existing slot or appends at the one-past-end
// index. Anything past that is an unbound store.
func (in *Interpreter) storeLocal(idx int) *RuntimeError {
	f := &in.frames[in.fp]
	if idx > len(f.locals) {
		return runtimeErrorf(ErrUnboundVariable, in.opIP, "store to local %d past end %d", idx, len(f.locals))
	}
	v, err := in.pop()
	if err != nil {
		return err
	}
	if idx == len(f.locals) {
		f.locals = append(f.locals, v)
	} else {
		f.locals[idx] = v
	}
	return nil
}

func (in *Interpreter) jump(target int) *RuntimeError {
	f := &in.frames[in.fp]
	if target > len(f.code) {
		return in.illegalGoto(target)
	}
	f.ip = target
	return nil
}

func (in *Interpreter) illegalGoto(target int) *RuntimeError {
	return runtimeErrorf(ErrIllegalGoto, in.opIP, "target %d out of range [0, %d]", target, len(in.frames[in.fp].code))
}
