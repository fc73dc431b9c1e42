package sm

import "github.com/supracore/warpsim/internal/sched"

const ibufferDepth = 2

type ibufferSlot struct {
	valid       bool
	inst        sched.Instruction
	uid         uint64
	cdpDummy    bool
	cdpRemaining int
}

// TraceWarp is one warp's trace-driven execution state: its two-slot
// instruction buffer, program counter and reconvergence (pdom) stack
// top, CDP-dummy latency bookkeeping, and cursor into its block's
// instruction stream. It implements sched.WarpView so the scheduler
// can issue against it without reaching into SM-internal state.
type TraceWarp struct {
	warpID        int
	dynamicWarpID uint64

	pc        uint64
	pdomTopPC uint64

	ibuffer [ibufferDepth]ibufferSlot
	head    int // index of the next slot to issue from

	waiting  bool
	doneExit bool

	trace      []sched.Instruction
	cursor     int
	nextUID    uint64
	ActiveMask uint32
}

// NewTraceWarp creates a warp bound to one block's instruction stream.
func NewTraceWarp(warpID int, dynamicWarpID uint64, trace []sched.Instruction, activeMask uint32) *TraceWarp {
	w := &TraceWarp{
		warpID:        warpID,
		dynamicWarpID: dynamicWarpID,
		trace:         trace,
		ActiveMask:    activeMask,
	}
	if len(trace) > 0 {
		w.pc = trace[0].PC
		w.pdomTopPC = trace[0].PC
	} else {
		w.doneExit = true
	}
	w.fill()
	return w
}

func (w *TraceWarp) fill() {
	for i := 0; i < ibufferDepth; i++ {
		slot := (w.head + i) % ibufferDepth
		if w.ibuffer[slot].valid {
			continue
		}
		if w.cursor >= len(w.trace) {
			break
		}
		w.nextUID++
		w.ibuffer[slot] = ibufferSlot{valid: true, inst: w.trace[w.cursor], uid: w.nextUID}
		w.cursor++
	}
}

// ID implements sched.WarpView.
func (w *TraceWarp) ID() int { return w.warpID }

// DynamicWarpID implements sched.WarpView.
func (w *TraceWarp) DynamicWarpID() uint64 { return w.dynamicWarpID }

// Waiting implements sched.WarpView.
func (w *TraceWarp) Waiting() bool { return w.waiting }

// SetWaiting marks this warp blocked (barrier, pending CTA launch,
// all-zero active mask) or clears the block.
func (w *TraceWarp) SetWaiting(waiting bool) { w.waiting = waiting }

// DoneExit implements sched.WarpView.
func (w *TraceWarp) DoneExit() bool { return w.doneExit }

// IBufferEmpty implements sched.WarpView.
func (w *TraceWarp) IBufferEmpty() bool { return !w.ibuffer[w.head].valid }

// PeekIBuffer implements sched.WarpView.
func (w *TraceWarp) PeekIBuffer() (sched.Instruction, bool) {
	s := w.ibuffer[w.head]
	if !s.valid {
		return sched.Instruction{}, false
	}
	return s.inst, true
}

// CDPRemaining implements sched.WarpView.
func (w *TraceWarp) CDPRemaining() int {
	s := w.ibuffer[w.head]
	if !s.valid || !s.cdpDummy {
		return 0
	}
	return s.cdpRemaining
}

// DecrementCDP implements sched.WarpView.
func (w *TraceWarp) DecrementCDP() int {
	s := &w.ibuffer[w.head]
	if s.valid && s.cdpDummy && s.cdpRemaining > 0 {
		s.cdpRemaining--
	}
	return s.cdpRemaining
}

// PdomTopPC implements sched.WarpView.
func (w *TraceWarp) PdomTopPC() uint64 { return w.pdomTopPC }

// SetNextPCAndFlush implements sched.WarpView: a control hazard
// discards the (mispredicted-target) ibuffer contents and reconverges
// fetch at pc.
func (w *TraceWarp) SetNextPCAndFlush(pc uint64) {
	w.pdomTopPC = pc
	w.pc = pc
	w.ibuffer = [ibufferDepth]ibufferSlot{}
	w.head = 0
	w.fill()
}

// StepIBuffer implements sched.WarpView: retires the head instruction
// and advances the reconvergence PC to the next trace entry, refilling
// the vacated slot.
func (w *TraceWarp) StepIBuffer() {
	w.ibuffer[w.head] = ibufferSlot{}
	w.head = (w.head + 1) % ibufferDepth
	if s := w.ibuffer[w.head]; s.valid {
		w.pdomTopPC = s.inst.PC
	} else if w.cursor >= len(w.trace) {
		w.doneExit = true
	}
	w.fill()
}

// Cursor returns how many of the warp's trace instructions have been
// consumed into the ibuffer so far (for diagnostics/tests).
func (w *TraceWarp) Cursor() int { return w.cursor }
