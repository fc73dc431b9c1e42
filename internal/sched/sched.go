// Package sched implements the per-SM warp scheduler (SPEC_FULL.md C7):
// GTO (greedy-then-oldest) ordering, the per-cycle issue loop with
// control-hazard detection, scoreboard collision checks, execution-unit
// routing by opcode class, the dual-issue-different-units rule, and
// per-scheduler issue statistics.
//
// The scheduler never reaches into SM-owned warp state directly; it
// operates through the WarpView interface so internal/sm's TraceWarp
// can stay the single owner of ibuffer/PC/pdom-stack state (spec.md
// §9's "coroutine-style scheduler loop" strategy: a plain function that
// returns the number issued, no generators).
package sched

import (
	"sort"

	"github.com/supracore/warpsim/internal/scoreboard"
)

// Instruction is the scheduler's view of one decoded instruction.
type Instruction struct {
	PC     uint64
	Addr   uint64 // representative memory address, meaningful for Class.IsMemory()
	Size   uint32
	Class  OpClass
	Dst    []int
	Src    []int
	IsLoad bool // global/local/texture load, for scoreboard long-op tagging
	SpecID int  // only meaningful when Class == SpecializedOp
}

// WarpView is everything the scheduler needs from one supervised warp,
// implemented by internal/sm.TraceWarp.
type WarpView interface {
	ID() int
	DynamicWarpID() uint64
	Waiting() bool
	DoneExit() bool
	IBufferEmpty() bool
	PeekIBuffer() (Instruction, bool)
	// CDPRemaining reports the outstanding CDP-dummy latency at the
	// ibuffer head (0 if the head isn't a CDP dummy or has none left).
	CDPRemaining() int
	// DecrementCDP decrements the head instruction's CDP latency and
	// returns the remainder.
	DecrementCDP() int
	PdomTopPC() uint64
	// SetNextPCAndFlush handles a control hazard: sets the warp's next
	// fetch PC and discards the (now-stale) ibuffer contents.
	SetNextPCAndFlush(pc uint64)
	StepIBuffer()
}

// Units tracks, for one scheduling cycle, how many free slots remain
// in each execution-unit pipe shared by every scheduler on an SM.
// Reset to its configured capacity once per CORE cycle before any
// scheduler's IssueCycle runs.
type Units struct {
	FreeMem     int
	FreeSP      int
	FreeInt     int
	FreeDP      int
	FreeSFU     int
	FreeTensor  int
	Specialized map[int]int // specialized unit id -> free slots

	// IntPipelinePresent selects the SP/INT routing policy of spec.md
	// §4.6 step 2: "INT if int-pipe present && op != SP_OP, else SP".
	IntPipelinePresent bool
}

func (u *Units) reserve(unit execUnit, specID int) bool {
	switch unit {
	case unitMem:
		if u.FreeMem > 0 {
			u.FreeMem--
			return true
		}
	case unitSP:
		if u.FreeSP > 0 {
			u.FreeSP--
			return true
		}
	case unitInt:
		if u.FreeInt > 0 {
			u.FreeInt--
			return true
		}
	case unitDP:
		if u.FreeDP > 0 {
			u.FreeDP--
			return true
		}
	case unitSFU:
		if u.FreeSFU > 0 {
			u.FreeSFU--
			return true
		}
	case unitTensor:
		if u.FreeTensor > 0 {
			u.FreeTensor--
			return true
		}
	case unitSpecialized:
		if u.Specialized[specID] > 0 {
			u.Specialized[specID]--
			return true
		}
	}
	return false
}

// route picks the execution-unit pipe for class per spec.md §4.6 step
// 2's priority order: MEM, then SP/INT, then DP (falling back to SFU),
// then SFU, then TENSOR_CORE, then SPECIALIZED.
func route(class OpClass) execUnit {
	switch class {
	case LoadOp, StoreOp, MemoryBarrierOp:
		return unitMem
	case SPOp:
		return unitSP
	case IntOp:
		return unitInt
	case DPOp:
		return unitDP
	case SFUOp, ALUOp:
		return unitSFU
	case TensorCoreOp:
		return unitTensor
	case SpecializedOp:
		return unitSpecialized
	default:
		return unitSFU
	}
}

// tryRoute attempts to reserve an execution unit for class, applying
// the SP/INT and DP/SFU fallback rules before falling through to
// route's direct mapping.
func tryRoute(u *Units, class OpClass, specID int) (execUnit, bool) {
	switch class {
	case SPOp, IntOp:
		if u.IntPipelinePresent && class != SPOp {
			if u.reserve(unitInt, 0) {
				return unitInt, true
			}
		}
		if u.reserve(unitSP, 0) {
			return unitSP, true
		}
		return 0, false
	case DPOp:
		if u.reserve(unitDP, 0) {
			return unitDP, true
		}
		if u.reserve(unitSFU, 0) {
			return unitSFU, true
		}
		return 0, false
	default:
		unit := route(class)
		if u.reserve(unit, specID) {
			return unit, true
		}
		return 0, false
	}
}

// IssueBucket classifies why a scheduler's cycle produced the issue
// count it did, for the diagnostic counters of spec.md §4.6 step 3.
type IssueBucket int

const (
	BucketIssued IssueBucket = iota
	BucketIdleOrControlHazard
	BucketRAWStall
	BucketPipelineStall
)

// Config is a scheduler unit's fixed policy knobs.
type Config struct {
	MaxInsnIssuePerWarp    int
	DualIssueDiffExecUnits bool
	SubCoreModel           bool
	// SubCoreID is this scheduler's index within its SM. It is recorded
	// only: neither IssueCycle nor the SM core restricts which
	// register-set lane a scheduler writes to in sub-core mode.
	SubCoreID int
}

// Scheduler is one scheduling unit on an SM (an SM may host several).
type Scheduler struct {
	ID  int
	cfg Config

	lastSupervisedIssued int
	SingleIssueNums       uint64
	DualIssueNums         uint64
	BucketCounts          [4]uint64
}

// New creates a scheduler unit.
func New(id int, cfg Config) *Scheduler {
	return &Scheduler{ID: id, cfg: cfg}
}

// orderWarps implements the default GTO (greedy-then-oldest) policy:
// stable sort by (done_exit || waiting, dynamic_warp_id) ascending, so
// ready warps sort before stalled ones and ties break by warp age.
func orderWarps(warps []WarpView) []WarpView {
	ordered := make([]WarpView, len(warps))
	copy(ordered, warps)
	sort.SliceStable(ordered, func(i, j int) bool {
		bi := ordered[i].DoneExit() || ordered[i].Waiting()
		bj := ordered[j].DoneExit() || ordered[j].Waiting()
		if bi != bj {
			return !bi && bj // ready (false) sorts before stalled (true)
		}
		return ordered[i].DynamicWarpID() < ordered[j].DynamicWarpID()
	})
	return ordered
}

// IssueCycle runs one cycle of this scheduler: it orders the
// supervised warps, then for each in order attempts to issue up to
// MaxInsnIssuePerWarp instructions, subject to control-hazard
// detection, scoreboard collision, and execution-unit availability. It
// returns the number of instructions issued this cycle.
func (s *Scheduler) IssueCycle(warps []WarpView, board *scoreboard.Board, units *Units, cycle uint64, onIssue func(warpID int, inst Instruction)) int {
	ordered := orderWarps(warps)

	issued := 0
	var issuedUnits []execUnit
	sawRAWStall := false
	sawPipelineStall := false
	sawControlHazard := false

	for _, w := range ordered {
		if issued >= 2 { // an SM-cycle dual-issue ceiling across the whole scheduler
			break
		}
		warpIssuedThisCycle := 0
		for !w.Waiting() && !w.IBufferEmpty() && warpIssuedThisCycle < s.cfg.MaxInsnIssuePerWarp {
			if w.CDPRemaining() > 0 {
				w.DecrementCDP()
				break
			}

			inst, ok := w.PeekIBuffer()
			if !ok {
				break
			}

			if inst.PC != w.PdomTopPC() {
				w.SetNextPCAndFlush(w.PdomTopPC())
				sawControlHazard = true
				break
			}

			wid := w.ID()
			sbInst := scoreboard.Instruction{Dst: inst.Dst, Src: inst.Src, IsLoad: inst.IsLoad}
			if board.CheckCollision(wid, sbInst) {
				sawRAWStall = true
				break
			}

			unit, ok := tryRoute(units, inst.Class, inst.SpecID)
			if !ok {
				sawPipelineStall = true
				break
			}

			if s.cfg.DualIssueDiffExecUnits && len(issuedUnits) > 0 && sameClass(issuedUnits, unit) {
				sawPipelineStall = true
				break
			}

			board.ReserveRegisters(wid, sbInst)
			w.StepIBuffer()
			if onIssue != nil {
				onIssue(wid, inst)
			}

			issued++
			warpIssuedThisCycle++
			issuedUnits = append(issuedUnits, unit)
		}
	}

	switch {
	case issued == 2:
		s.DualIssueNums++
		s.BucketCounts[BucketIssued]++
	case issued == 1:
		s.SingleIssueNums++
		s.BucketCounts[BucketIssued]++
	case sawRAWStall:
		s.BucketCounts[BucketRAWStall]++
	case sawPipelineStall:
		s.BucketCounts[BucketPipelineStall]++
	case sawControlHazard:
		s.BucketCounts[BucketIdleOrControlHazard]++
	default:
		s.BucketCounts[BucketIdleOrControlHazard]++
	}

	s.lastSupervisedIssued = issued
	return issued
}

func sameClass(issued []execUnit, candidate execUnit) bool {
	for _, u := range issued {
		if u == candidate {
			return true
		}
	}
	return false
}

// LastSupervisedIssued reports the issue count from the most recent
// IssueCycle call (spec.md §4.6 step 4); the GTO ordering does not
// read it.
func (s *Scheduler) LastSupervisedIssued() int { return s.lastSupervisedIssued }
