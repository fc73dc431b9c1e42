package sm

import (
	"github.com/supracore/warpsim/internal/cache"
	"github.com/supracore/warpsim/internal/scoreboard"
	"github.com/supracore/warpsim/internal/sched"
	"github.com/supracore/warpsim/internal/trace"
)

// Config sizes one SM core.
type Config struct {
	NumSchedulers int
	NumWarpSlots  int // max resident warps, derived from n_thread_per_shader/warp_size
	WarpSize      int
	Scheduler     sched.Config
	Units         sched.Units
	L1D           *cache.Config // nil disables the L1 data cache
}

// SM is one streaming multiprocessor core: its resident warps, issue
// schedulers, scoreboard, and private L1 data cache.
type SM struct {
	ID  int
	cfg Config

	schedulers []*sched.Scheduler
	warps      []*TraceWarp
	board      *scoreboard.Board
	l1d        *cache.Cache

	nextDynamicWarpID uint64
	lastIssuer        int
}

// New builds an idle SM core with no resident warps.
func New(id int, cfg Config) *SM {
	sm := &SM{ID: id, cfg: cfg, board: scoreboard.New(cfg.NumWarpSlots)}
	sm.schedulers = make([]*sched.Scheduler, cfg.NumSchedulers)
	for i := range sm.schedulers {
		schedCfg := cfg.Scheduler
		schedCfg.SubCoreID = i
		sm.schedulers[i] = sched.New(i, schedCfg)
	}
	if cfg.L1D != nil {
		sm.l1d = cache.New(*cfg.L1D)
	}
	return sm
}

// CanLaunchBlock reports whether this SM has a free warp slot for a
// block's worth of warps.
func (sm *SM) CanLaunchBlock(numWarps int) bool {
	free := 0
	for _, w := range sm.warps {
		if w.DoneExit() {
			free++
		}
	}
	return len(sm.warps)+numWarps <= sm.cfg.NumWarpSlots || free >= numWarps
}

// LaunchBlock partitions a block's instruction stream by warp id and
// creates one TraceWarp per warp, slotting each scheduler
// round-robin (warp_id % NumSchedulers), matching the original's
// static warp-to-scheduler assignment.
func (sm *SM) LaunchBlock(launch trace.BlockLaunch, instrs []trace.Instruction) {
	byWarp := make(map[int][]sched.Instruction)
	var warpIDs []int
	activeMasks := make(map[int]uint32)
	for _, in := range instrs {
		if _, seen := byWarp[in.WarpID]; !seen {
			warpIDs = append(warpIDs, in.WarpID)
		}
		byWarp[in.WarpID] = append(byWarp[in.WarpID], toSchedInstruction(in))
		activeMasks[in.WarpID] = in.ActiveMask
	}
	for _, wid := range warpIDs {
		w := NewTraceWarp(wid, sm.nextDynamicWarpID, byWarp[wid], activeMasks[wid])
		sm.nextDynamicWarpID++
		sm.warps = append(sm.warps, w)
	}
}

// schedulerWarps returns the views owned by scheduler idx (warp_id %
// NumSchedulers == idx), filtered to not-yet-exited warps.
func (sm *SM) schedulerWarps(idx int) []sched.WarpView {
	var views []sched.WarpView
	for _, w := range sm.warps {
		if w.DoneExit() {
			continue
		}
		if w.ID()%sm.cfg.NumSchedulers == idx {
			views = append(views, w)
		}
	}
	return views
}

// MemRequest is one memory-class instruction issued this CoreCycle,
// handed to internal/sim so it can build a MemFetch and push it onto
// the fabric — the SM core does not hold a fabric handle itself (it
// is issued a capability handle only for the calls it needs, per
// spec.md §9's cyclic-graph strategy).
type MemRequest struct {
	WarpID int
	Inst   sched.Instruction
}

// CoreCycle runs one CORE-domain tick: resets the shared execution
// unit pool, then runs every scheduler's issue cycle in order. It
// returns the total instructions issued across all schedulers and any
// memory-class instructions issued this cycle.
func (sm *SM) CoreCycle(cycle uint64) (int, []MemRequest) {
	units := sm.cfg.Units // reset to configured capacity each cycle
	units.Specialized = make(map[int]int, len(sm.cfg.Units.Specialized))
	for id, n := range sm.cfg.Units.Specialized {
		units.Specialized[id] = n
	}
	total := 0
	var memReqs []MemRequest
	onIssue := func(warpID int, inst sched.Instruction) {
		if inst.Class.IsMemory() {
			memReqs = append(memReqs, MemRequest{WarpID: warpID, Inst: inst})
		}
	}
	for i, s := range sm.schedulers {
		total += s.IssueCycle(sm.schedulerWarps(i), sm.board, &units, cycle, onIssue)
	}
	return total, memReqs
}

// ICNTCycle performs the SM-side of the ICNT-domain tick: nothing
// beyond cache-fill/writeback bookkeeping is modeled here at this
// fidelity level — memory request generation is driven from the
// scheduler's LOAD_OP/STORE_OP issue path via internal/sim, which owns
// the fabric handle these requests travel through.
func (sm *SM) ICNTCycle(cycle uint64) {}

// Busy reports whether any resident warp has not yet exited.
func (sm *SM) Busy() bool {
	for _, w := range sm.warps {
		if !w.DoneExit() {
			return true
		}
	}
	return false
}

// FlushL1 clears the L1 data cache (spec.md §6 gpgpu_flush_l1_cache).
func (sm *SM) FlushL1() {
	if sm.l1d != nil {
		sm.l1d.Flush()
	}
}

// Scoreboard exposes the SM's scoreboard for writeback release calls
// driven by internal/sim when a memory reply returns.
func (sm *SM) Scoreboard() *scoreboard.Board { return sm.board }
