// Package sim implements the top-level cycle loop (SPEC_FULL.md C9):
// it drives internal/clock's multi-domain stepper, wires the
// scheduler/SM, interconnect, and memory partition packages together
// in the fixed per-tick order spec.md §5 specifies, performs
// block-to-core issue between CORE ticks, and runs the deadlock
// detector.
package sim

import (
	"context"

	"golang.org/x/sync/semaphore"

	"github.com/supracore/warpsim/internal/cache"
	"github.com/supracore/warpsim/internal/clock"
	"github.com/supracore/warpsim/internal/config"
	"github.com/supracore/warpsim/internal/fabric"
	"github.com/supracore/warpsim/internal/logx"
	"github.com/supracore/warpsim/internal/memctrl"
	"github.com/supracore/warpsim/internal/memfetch"
	"github.com/supracore/warpsim/internal/sched"
	"github.com/supracore/warpsim/internal/simerr"
	"github.com/supracore/warpsim/internal/sm"
	"github.com/supracore/warpsim/internal/stats"
	"github.com/supracore/warpsim/internal/trace"
)

const deadlockThreshold = 50000

type pendingMem struct {
	warpID     int
	device     int
	dstRegs    []int
	issueCycle uint64
}

type retryPush struct {
	srcDevice, dstDevice int
	mf                   *memfetch.MemFetch
	size                 uint32
}

type pendingReply struct {
	partitionDevice int
	mf              *memfetch.MemFetch
}

// Simulator owns every component instance for one simulation run. It
// is the sole context threaded explicitly through construction — no
// package-level globals, per spec.md §9.
type Simulator struct {
	cfg config.Config
	log *logx.Logger

	clk *clock.Stepper
	fab *fabric.Fabric

	partitions []*memctrl.MemoryPartition
	sms        []*sm.SM

	tp trace.Provider

	counters *stats.Counters
	latencyHist *stats.Pow2Histogram

	cycle          uint64
	lastGPUSimInsn uint64
	stalledCycles  uint64
	lastClusterIssuer int

	sem *semaphore.Weighted

	nextMemFetchID uint64
	pending        map[uint64]pendingMem
	retryQueue     []retryPush
	replyRetry     []pendingReply

	pendingBlocks []blockAssignment
	traceExhausted bool
}

type blockAssignment struct {
	launch trace.BlockLaunch
	instrs []trace.Instruction
}

// New constructs a Simulator from a validated Config, a trace
// Provider, and a logger (nil selects logx.Default()); the clock
// periods are taken from the Config.
func New(cfg config.Config, tp trace.Provider, log *logx.Logger) (*Simulator, error) {
	if log == nil {
		log = logx.Default()
	}
	nShader := cfg.NSimtClusters * cfg.NSimtCoresPerCluster

	fab := fabric.New(fabric.Config{
		FlitSize:           cfg.FlitSize,
		Subnets:            cfg.Subnets,
		NumVCs:             cfg.NumVCs,
		VCBufSize:          cfg.VCBufSize,
		InputBufferSize:    cfg.InputBufferSize,
		EjectionBufferSize: cfg.EjectionBufferSize,
		BoundaryBufferSize: cfg.BoundaryBufferSize,
		NShader:            nShader,
		NMem:               cfg.NMemoryPartitions,
		UseMap:             cfg.UseMap,
		MemoryNodeMap:      cfg.MemoryNodeMap,
	})

	newDRAM := func() memctrl.Model {
		if cfg.DRAMModel == "timing" {
			return memctrl.NewTimingDRAM(cfg.DRAMBanks, cfg.DRAMActLatency, cfg.DRAMCASLatency, cfg.DRAMPreLatency, cfg.DRAMRefreshEvery, cfg.DRAMRefreshLatency)
		}
		return memctrl.NewSimpleDRAM(cfg.DRAMLatency)
	}

	l2CacheConfig, err := cacheConfigFor(cfg.L2CacheConfig)
	if err != nil {
		return nil, err
	}

	partitions := make([]*memctrl.MemoryPartition, cfg.NMemoryPartitions)
	for i := range partitions {
		partitions[i] = memctrl.NewMemoryPartition(i, memctrl.PartitionConfig{
			NumSubPartitions: cfg.NSubPartitionPerChannel,
			SubPartition: memctrl.Config{
				ICNTToL2Depth: cfg.DRAMQueueDepth,
				L2ToDRAMDepth: cfg.DRAMQueueDepth,
				DRAMToL2Depth: cfg.DRAMQueueDepth,
				L2ToICNTDepth: cfg.DRAMQueueDepth,
				ROPLatency:    cfg.ROPLatency,
				ControlSize:   32,
				L2Cache:       l2CacheConfig,
			},
			PrivateCredit: cfg.PrivateDRAMCredit,
			SharedCredit:  cfg.SharedDRAMCredit,
		}, newDRAM())
	}

	l1dCacheConfig, err := cacheConfigFor(cfg.L1DCacheConfig)
	if err != nil {
		return nil, err
	}

	sms := make([]*sm.SM, nShader)
	schedCfg := sched.Config{
		MaxInsnIssuePerWarp:    cfg.MaxInsnIssuePerWarp,
		DualIssueDiffExecUnits: cfg.DualIssueDiffExecUnits,
		SubCoreModel:           cfg.SubCoreModel,
	}
	numWarpSlots := cfg.NThreadPerShader / cfg.WarpSize
	for i := range sms {
		units := sched.Units{
			FreeMem:            1 << 20, // no MEM pipe-count limit; fabric backpressure is absorbed by retryQueue after issue
			FreeSP:             cfg.NumSPUnits,
			FreeInt:            cfg.NumIntUnits,
			FreeDP:             cfg.NumDPUnits,
			FreeSFU:            cfg.NumSFUUnits,
			FreeTensor:         cfg.NumTensorCoreUnits,
			Specialized:        map[int]int{},
			IntPipelinePresent: cfg.NumIntUnits > 0,
		}
		sms[i] = sm.New(i, sm.Config{
			NumSchedulers: cfg.NSimtCoresPerCluster,
			NumWarpSlots:  numWarpSlots,
			WarpSize:      cfg.WarpSize,
			Scheduler:     schedCfg,
			Units:         units,
			L1D:           l1dCacheConfig,
		})
	}

	periods := clock.Periods{Core: cfg.CorePeriod, ICNT: cfg.ICNTPeriod, L2: cfg.L2Period, DRAM: cfg.DRAMPeriod}

	s := &Simulator{
		cfg:         cfg,
		log:         log.Component("sim"),
		clk:         clock.New(periods),
		fab:         fab,
		partitions:  partitions,
		sms:         sms,
		tp:          tp,
		counters:    stats.NewCounters(),
		latencyHist: stats.NewPow2Histogram(32),
		pending:     make(map[uint64]pendingMem),
		sem:         semaphore.NewWeighted(int64(maxInt(cfg.NSimtClusters, 1))),
	}
	return s, nil
}

// cacheConfigFor parses a compact cache-config grammar string (empty
// disables the cache) into the internal/cache.Config the L1D/L2 caches
// are built from.
func cacheConfigFor(grammar string) (*cache.Config, error) {
	if grammar == "" {
		return nil, nil
	}
	spec, err := config.ParseCacheConfig(grammar)
	if err != nil {
		return nil, err
	}
	return &cache.Config{
		NumSets:       spec.NumSets,
		LineSize:      spec.LineSize,
		Assoc:         spec.Assoc,
		Kind:          spec.Kind,
		MSHREntries:   spec.MSHREntries,
		MSHRMergeSize: spec.MSHRMerge,
	}, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Run drives the simulator to completion (trace exhaustion and all
// warps retired), until a configured cycle/instruction bound is
// reached (both return a nil error), or until a deadlock or context
// cancellation returns an error.
func (s *Simulator) Run(ctx context.Context) (*stats.Counters, error) {
	for {
		if err := ctx.Err(); err != nil {
			return s.counters, err
		}
		if s.cfg.GPUMaxCycleOpt > 0 && s.cycle >= s.cfg.GPUMaxCycleOpt {
			return s.counters, nil
		}
		if s.cfg.GPUMaxInsnOpt > 0 && s.counters.Get("gpu_sim_insn") >= s.cfg.GPUMaxInsnOpt {
			return s.counters, nil
		}

		mask := s.clk.Step()

		if mask.Has(clock.ICNT) {
			for _, core := range s.sms {
				core.ICNTCycle(s.cycle)
			}
		}
		if mask.Has(clock.L2) {
			for pi, p := range s.partitions {
				for idx := range p.Parts {
					if mf := p.PopToICNT(idx); mf != nil {
						s.routeReplyToShader(pi, mf)
					}
				}
				p.CycleL2(s.cycle)
			}
		}
		if mask.Has(clock.DRAM) {
			for _, p := range s.partitions {
				p.CycleDRAM(s.cycle)
			}
		}
		if mask.Has(clock.ICNT) {
			s.drainFabricToPartitions()
			s.fab.Advance()
			s.retryPushes()
			s.retryReplies()
		}
		if mask.Has(clock.Core) {
			s.cycle++
			s.counters.Add("gpu_sim_cycle", 1)
			s.coreTick()
			s.issueBlocks()
			s.flushChecks()

			if done, err := s.checkTermination(); done {
				return s.counters, err
			}
		}
	}
}

// coreTick runs every SM's CoreCycle and turns memory-class issues
// into MemFetch pushes onto the fabric (backpressure lands in
// retryQueue for the next ICNT advance).
func (s *Simulator) coreTick() {
	for device, core := range s.sms {
		issued, memReqs := core.CoreCycle(s.cycle)
		s.counters.Add("gpu_sim_insn", uint64(issued))
		for _, req := range memReqs {
			s.issueMemRequest(device, req)
		}
	}
}

func (s *Simulator) issueMemRequest(device int, req sm.MemRequest) {
	typ := memfetch.ReadRequest
	if req.Inst.Class == sched.StoreOp {
		typ = memfetch.WriteRequest
	}
	size := req.Inst.Size
	if size == 0 {
		size = 32
	}
	targetPart := s.partitionOf(req.Inst.Addr)
	dstDevice := len(s.sms) + targetPart

	s.nextMemFetchID++
	id := s.nextMemFetchID
	mf := memfetch.New(id, req.Inst.Addr, typ, size, device, targetPart, s.cycle)
	mf.WarpID = req.WarpID
	s.pending[id] = pendingMem{warpID: req.WarpID, device: device, dstRegs: req.Inst.Dst, issueCycle: s.cycle}

	if s.fab.HasBuffer(device, size) {
		mf.SetStatus(memfetch.InICNTToMem, s.cycle)
		s.fab.Push(device, dstDevice, mf, size)
	} else {
		s.counters.Add("gpu_stall_icnt2sh", 1)
		s.retryQueue = append(s.retryQueue, retryPush{srcDevice: device, dstDevice: dstDevice, mf: mf, size: size})
	}
}

func (s *Simulator) retryPushes() {
	if len(s.retryQueue) == 0 {
		return
	}
	remaining := s.retryQueue[:0]
	for _, r := range s.retryQueue {
		if s.fab.HasBuffer(r.srcDevice, r.size) {
			r.mf.SetStatus(memfetch.InICNTToMem, s.cycle)
			s.fab.Push(r.srcDevice, r.dstDevice, r.mf, r.size)
		} else {
			remaining = append(remaining, r)
		}
	}
	s.retryQueue = remaining
}

// drainFabricToPartitions pops arrived requests at every memory
// partition's device and admits them into the target sub-partition,
// and pops arrived replies at every SM device and releases the
// corresponding scoreboard reservation. A partition's requests stay in
// the fabric while any of its sub-partitions' icnt_L2 queues is full,
// so a popped request always has room.
func (s *Simulator) drainFabricToPartitions() {
	for pi, p := range s.partitions {
		device := len(s.sms) + pi
		for {
			roomy := true
			for _, sp := range p.Parts {
				if !sp.HasICNTRoom() {
					roomy = false
				}
			}
			if !roomy {
				break
			}
			mf := s.fab.Pop(device)
			if mf == nil {
				break
			}
			subIdx := s.subPartitionOf(mf.Addr)
			if !p.PushFromICNT(subIdx, mf, s.cycle) {
				s.counters.Add("gpu_stall_dramfull", 1)
				break
			}
		}
	}
	for device, core := range s.sms {
		for {
			mf := s.fab.Pop(device)
			if mf == nil {
				break
			}
			mf.SetStatus(memfetch.InICNTToShader, s.cycle)
			if pend, ok := s.pending[mf.ID]; ok {
				for _, r := range pend.dstRegs {
					core.Scoreboard().ReleaseRegister(pend.warpID, r)
				}
				delete(s.pending, mf.ID)
				s.latencyHist.Add(int64(mf.ReturnCycle - pend.issueCycle))
			}
		}
	}
}

// routeReplyToShader pushes a reply that just left a sub-partition's
// l2_icnt queue back onto the fabric, addressed to the SM device that
// issued the original request (carried in the reply's TargetPart,
// which MakeReply sets to the request's SourceSM).
func (s *Simulator) routeReplyToShader(partitionIdx int, mf *memfetch.MemFetch) {
	partitionDevice := len(s.sms) + partitionIdx
	if s.fab.HasBuffer(partitionDevice, mf.CtrlSize) {
		s.fab.Push(partitionDevice, mf.TargetPart, mf, mf.CtrlSize)
		return
	}
	s.counters.Add("gpu_stall_dram2icnt", 1)
	s.replyRetry = append(s.replyRetry, pendingReply{partitionDevice: partitionDevice, mf: mf})
}

// retryReplies re-attempts fabric pushes for replies that were already
// popped off a sub-partition's l2_icnt queue but found the fabric's
// injection buffer full; popping is destructive so these cannot be
// left at the queue head, unlike retryQueue's SM-side requests.
func (s *Simulator) retryReplies() {
	if len(s.replyRetry) == 0 {
		return
	}
	remaining := s.replyRetry[:0]
	for _, r := range s.replyRetry {
		if s.fab.HasBuffer(r.partitionDevice, r.mf.CtrlSize) {
			s.fab.Push(r.partitionDevice, r.mf.TargetPart, r.mf, r.mf.CtrlSize)
		} else {
			remaining = append(remaining, r)
		}
	}
	s.replyRetry = remaining
}

// partitionOf and subPartitionOf deterministically interleave
// addresses across partitions/sub-partitions; any fixed, address-only
// function satisfies spec.md's contract (it never specifies the exact
// interleave), chosen here as a simple modulo split for even load.
func (s *Simulator) partitionOf(addr uint64) int {
	n := uint64(len(s.partitions))
	if n == 0 {
		return 0
	}
	return int((addr / uint64(s.cfg.FlitSize)) % n)
}

func (s *Simulator) subPartitionOf(addr uint64) int {
	n := uint64(s.cfg.NSubPartitionPerChannel)
	if n == 0 {
		return 0
	}
	return int((addr / uint64(s.cfg.FlitSize) / uint64(len(s.partitions))) % n)
}

// issueBlocks performs the block-to-core issue phase: round-robin
// across SIMT clusters starting one past the last issuer. Eligibility
// probes run one after another, each wrapped in an acquire/release of
// the weighted semaphore; the LaunchBlock calls follow in a second
// serial pass.
func (s *Simulator) issueBlocks() {
	s.refillPendingBlocks()
	if len(s.pendingBlocks) == 0 {
		return
	}

	n := len(s.sms)
	type probe struct {
		device  int
		capable bool
	}
	results := make([]probe, n)
	ctx := context.Background()

	for i := 0; i < n; i++ {
		device := (s.lastClusterIssuer + 1 + i) % n
		_ = s.sem.Acquire(ctx, 1)
		needed := 1
		if len(s.pendingBlocks) > 0 {
			needed = blockWarpCount(s.pendingBlocks[0])
		}
		results[i] = probe{device: device, capable: s.sms[device].CanLaunchBlock(needed)}
		s.sem.Release(1)
	}

	for _, r := range results {
		if len(s.pendingBlocks) == 0 {
			break
		}
		if !r.capable {
			continue
		}
		b := s.pendingBlocks[0]
		s.pendingBlocks = s.pendingBlocks[1:]
		s.sms[r.device].LaunchBlock(b.launch, b.instrs)
		s.lastClusterIssuer = r.device
	}
}

func blockWarpCount(b blockAssignment) int {
	seen := map[int]bool{}
	for _, in := range b.instrs {
		seen[in.WarpID] = true
	}
	if len(seen) == 0 {
		return 1
	}
	return len(seen)
}

func (s *Simulator) refillPendingBlocks() {
	if s.traceExhausted || len(s.pendingBlocks) > 0 {
		return
	}
	launch, instrs, ok, err := s.tp.NextBlock()
	if err != nil {
		s.log.Error("trace read failed", map[string]any{"error": err.Error()})
		s.traceExhausted = true
		return
	}
	if !ok {
		s.traceExhausted = true
		return
	}
	s.pendingBlocks = append(s.pendingBlocks, blockAssignment{launch: launch, instrs: instrs})
}

func (s *Simulator) flushChecks() {
	if s.cfg.GPGPUFlushL1Cache && s.allBlocksRetired() {
		for _, core := range s.sms {
			core.FlushL1()
		}
	}
	if s.cfg.GPGPUFlushL2Cache && s.allBlocksRetired() {
		for _, p := range s.partitions {
			p.Flush()
		}
	}
}

func (s *Simulator) allBlocksRetired() bool {
	if !s.traceExhausted || len(s.pendingBlocks) > 0 {
		return false
	}
	for _, core := range s.sms {
		if core.Busy() {
			return false
		}
	}
	return true
}

func (s *Simulator) anyBusy() bool {
	if len(s.retryQueue) > 0 || len(s.replyRetry) > 0 || len(s.pending) > 0 {
		return true
	}
	if s.fab.Busy() {
		return true
	}
	for _, p := range s.partitions {
		if p.Busy() {
			return true
		}
	}
	for _, core := range s.sms {
		if core.Busy() {
			return true
		}
	}
	return false
}

// checkTermination reports natural completion (trace exhausted, every
// warp retired, no in-flight traffic) or fires the deadlock detector
// (spec.md §4.7/§8 scenario 5: gpu_sim_insn unchanged for 50,000
// cycles while anything is busy: a partition, the fabric, an SM with a
// live warp, a retry queue, or an outstanding memory request).
func (s *Simulator) checkTermination() (bool, error) {
	insn := s.counters.Get("gpu_sim_insn")
	if insn == s.lastGPUSimInsn {
		s.stalledCycles++
	} else {
		s.stalledCycles = 0
		s.lastGPUSimInsn = insn
	}

	busy := s.anyBusy()

	if s.cfg.GPGPUDeadlockDetect && s.stalledCycles >= deadlockThreshold && busy {
		var partitionsBusy []int
		for i, p := range s.partitions {
			if p.Busy() {
				partitionsBusy = append(partitionsBusy, i)
			}
		}
		err := &simerr.DeadlockError{
			Cycle:          s.cycle,
			StalledCycles:  s.stalledCycles,
			PartitionsBusy: partitionsBusy,
			FabricBusy:     s.fab.Busy(),
		}
		s.log.Error("deadlock detected", map[string]any{
			"cycle":           s.cycle,
			"stalled_cycles":  s.stalledCycles,
			"partitions_busy": partitionsBusy,
			"fabric_busy":     s.fab.Busy(),
		})
		return true, err
	}

	if s.traceExhausted && len(s.pendingBlocks) == 0 && !busy {
		return true, nil
	}
	return false, nil
}

// Stats returns the final counters snapshot (cmd/warpsim prints this
// as JSON).
func (s *Simulator) Stats() map[string]uint64 { return s.counters.Snapshot() }

// AvgMemLatency reports the running mean of the memory-latency
// histogram, a convenience accessor over internal/stats for the CLI
// summary.
func (s *Simulator) AvgMemLatency() float64 { return s.latencyHist.Average() }
