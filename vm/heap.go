package vm

import (
	"time"

	"github.com/tliron/commonlog"
)

// ---------------------------------------------------------------------------
// Heap: arena-backed mark-and-sweep collector
// ---------------------------------------------------------------------------

// Ref is a stable handle to a heap object: the object's arena index. A Ref
// is valid exactly as long as the referenced object has not been swept;
// holders must ensure the object is reachable from a marked root across any
// collection cycle.
type Ref uint32

// Object is a collector-managed record: a small shape tag the runtime
// treats opaquely, and an ordered sequence of field Values. Fields may hold
// further references, so the object graph is arbitrarily shaped, cycles
// included.
type Object struct {
	Tag    uint8
	Fields []Value
}

// color is the two-state mark of an object.
type color uint8

const (
	colorUnmarked color = iota
	colorReachable
)

// cell is one arena slot.
type cell struct {
	obj   Object
	color color
	inUse bool
}

// MarkFunc marks every heap reference reachable from a root set. The
// interpreter's MarkRoots satisfies this signature, so allocation sites
// pass it straight through.
type MarkFunc func(*Heap)

// Heap tuning defaults.
const (
	DefaultHeapThreshold = 1024    // live count that triggers the first sweep
	DefaultHeapCeiling   = 1 << 20 // live count above which allocation fails
	minHeapThreshold     = 64      // post-sweep threshold floor
)

// SweepStats holds statistics from a single sweep pass.
type SweepStats struct {
	Live      int           // objects surviving the sweep
	Reclaimed int           // objects freed by the sweep
	Threshold int           // threshold in effect after the sweep
	Duration  time.Duration
	Timestamp time.Time
}

// Heap owns every Object in the system. It grows an arena of cells,
// recycles swept slots through a free list, and triggers a sweep whenever
// the live count crosses an adaptive threshold.
//
// The heap does not discover roots on its own: Allocate takes the root
// marker as an argument so that a collection can never run against an
// unmarked root set.
type Heap struct {
	cells     []cell
	free      []int // recycled arena indices
	live      int
	threshold int
	ceiling   int

	sweepCount uint64
	lastStats  *SweepStats

	log commonlog.Logger
}

// NewHeap creates an empty heap with default threshold and ceiling.
func NewHeap() *Heap {
	return NewHeapSized(DefaultHeapThreshold, DefaultHeapCeiling)
}

// NewHeapSized creates an empty heap with the given initial threshold and
// hard ceiling. Non-positive arguments select the defaults.
func NewHeapSized(threshold, ceiling int) *Heap {
	if threshold <= 0 {
		threshold = DefaultHeapThreshold
	}
	if ceiling <= 0 {
		ceiling = DefaultHeapCeiling
	}
	return &Heap{
		threshold: threshold,
		ceiling:   ceiling,
		log:       commonlog.GetLogger("ember.heap"),
	}
}

// Live returns the current live object count.
func (h *Heap) Live() int {
	return h.live
}

// Threshold returns the live count at which the next allocation sweeps.
func (h *Heap) Threshold() int {
	return h.threshold
}

// SweepCount returns the total number of sweeps performed.
func (h *Heap) SweepCount() uint64 {
	return h.sweepCount
}

// LastStats returns statistics from the most recent sweep, or nil if no
// sweep has run yet.
func (h *Heap) LastStats() *SweepStats {
	return h.lastStats
}

// Allocate links a new object into the heap and returns its reference.
//
// When the live count has reached the threshold, Allocate first invokes
// roots to mark the live set and then sweeps. Taking the root marker as a
// parameter makes the mark-before-sweep contract structural: a collection
// cannot be triggered without the roots being marked in the same call.
// A nil roots function is allowed only when the caller holds no references
// outside the heap itself.
//
// If the live count still meets the ceiling after sweeping, Allocate fails
// with an out-of-memory error and no object is linked; the sweep's effects
// stand, and retrying without freeing roots fails the same way.
func (h *Heap) Allocate(obj Object, roots MarkFunc) (Ref, error) {
	if h.live >= h.threshold {
		if roots != nil {
			roots(h)
		}
		h.Sweep()
		if h.live >= h.ceiling {
			return 0, runtimeErrorf(ErrOutOfMemory, -1,
				"%d objects live after sweep, ceiling is %d", h.live, h.ceiling)
		}
	}

	var idx int
	if n := len(h.free); n > 0 {
		idx = h.free[n-1]
		h.free = h.free[:n-1]
	} else {
		h.cells = append(h.cells, cell{})
		idx = len(h.cells) - 1
	}

	h.cells[idx] = cell{obj: obj, color: colorUnmarked, inUse: true}
	h.live++
	return Ref(idx), nil
}

// Get returns the object behind ref, or false if ref does not name a live
// object. The pointer is valid until the next sweep.
func (h *Heap) Get(ref Ref) (*Object, bool) {
	idx := int(ref)
	if idx >= len(h.cells) || !h.cells[idx].inUse {
		return nil, false
	}
	return &h.cells[idx].obj, true
}

// Mark colors the object behind ref reachable and descends into its
// fields. Already-reachable objects are skipped, which terminates the
// traversal on cyclic graphs.
func (h *Heap) Mark(ref Ref) {
	idx := int(ref)
	if idx >= len(h.cells) || !h.cells[idx].inUse {
		return
	}
	c := &h.cells[idx]
	if c.color == colorReachable {
		return
	}
	c.color = colorReachable

	for _, field := range c.obj.Fields {
		if r, ok := field.AsRef(); ok {
			h.Mark(r)
		}
	}
}

// Sweep walks the arena, frees every unmarked object, resets the survivors
// to unmarked, and recomputes the threshold as twice the surviving live
// count, floored at minHeapThreshold and capped at the ceiling. Returns the
// number of objects reclaimed.
func (h *Heap) Sweep() int {
	start := time.Now()
	reclaimed := 0

	for idx := range h.cells {
		c := &h.cells[idx]
		if !c.inUse {
			continue
		}
		if c.color == colorReachable {
			c.color = colorUnmarked
			continue
		}
		c.obj = Object{}
		c.inUse = false
		h.free = append(h.free, idx)
		h.live--
		reclaimed++
	}

	h.threshold = h.live * 2
	if h.threshold < minHeapThreshold {
		h.threshold = minHeapThreshold
	}
	// Never raise the threshold past the ceiling, or allocation would stop
	// reaching the branch that enforces it.
	if h.threshold > h.ceiling {
		h.threshold = h.ceiling
	}

	h.sweepCount++
	h.lastStats = &SweepStats{
		Live:      h.live,
		Reclaimed: reclaimed,
		Threshold: h.threshold,
		Duration:  time.Since(start),
		Timestamp: start,
	}
	h.log.Debugf("sweep: reclaimed %d, live %d, threshold %d", reclaimed, h.live, h.threshold)

	return reclaimed
}
