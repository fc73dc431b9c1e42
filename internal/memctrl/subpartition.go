// Package memctrl implements the memory partition and sub-partition
// pipeline (SPEC_FULL.md C3/C4): the four bounded FIFOs between ICNT,
// L2, and DRAM, the L2 cache lookup/fill path, the ROP ordering delay,
// and the DRAM model toggle (dram.go) and partition-level credit
// arbitration (partition.go) that gate admission into the L2-to-DRAM
// queue.
//
// Grounded on
// original_source/playground/sys/src/ref/bridge/memory_sub_partition.hpp
// and memory_partition_unit.hpp: the four named queues (icnt_L2,
// L2_dram, dram_L2, L2_icnt) and the rop_delay_queue are carried
// through unchanged in meaning; only the class-hierarchy cache lookup
// is replaced by internal/cache's tagged-variant Cache.
package memctrl

import (
	"github.com/supracore/warpsim/internal/cache"
	"github.com/supracore/warpsim/internal/memfetch"
)

// Config sizes one sub-partition's queues and its L2 slice.
type Config struct {
	ICNTToL2Depth  int
	L2ToDRAMDepth  int
	DRAMToL2Depth  int
	L2ToICNTDepth  int
	ROPLatency     uint64
	L2Cache        *cache.Config // nil disables the L2 (pass-through to DRAM)
	ControlSize    uint32
}

type ropEntry struct {
	readyCycle uint64
	mf         *memfetch.MemFetch
}

// SubPartition is one memory sub-partition: the boundary between the
// interconnect and the shared L2/DRAM resources of its parent
// MemoryPartition.
type SubPartition struct {
	ID  int
	cfg Config
	l2  *cache.Cache // nil when L2Cache config is nil

	icntToL2 []*memfetch.MemFetch
	l2ToDRAM []*memfetch.MemFetch
	dramToL2 []*memfetch.MemFetch
	l2ToICNT []*memfetch.MemFetch

	ropQueue []ropEntry
}

// NewSubPartition builds an empty sub-partition.
func NewSubPartition(id int, cfg Config) *SubPartition {
	sp := &SubPartition{ID: id, cfg: cfg}
	if cfg.L2Cache != nil {
		sp.l2 = cache.New(*cfg.L2Cache)
	}
	return sp
}

// PushFromICNT admits a request arriving from the interconnect into
// the icnt_L2 queue. Returns false if the queue is full (caller must
// hold the flit until there is room, per spec.md §4.3 FIFO-boundedness).
func (sp *SubPartition) PushFromICNT(mf *memfetch.MemFetch, cycle uint64) bool {
	if len(sp.icntToL2) >= sp.cfg.ICNTToL2Depth {
		return false
	}
	mf.SetStatus(memfetch.InPartitionICNTToL2, cycle)
	sp.icntToL2 = append(sp.icntToL2, mf)
	return true
}

// HasICNTRoom reports whether PushFromICNT would currently succeed.
func (sp *SubPartition) HasICNTRoom() bool {
	return len(sp.icntToL2) < sp.cfg.ICNTToL2Depth
}

// PopToICNT removes and returns the head of the l2_icnt queue, or nil
// if empty. The fabric's push-back-to-the-node side calls this to
// drain completed replies toward the SM.
func (sp *SubPartition) PopToICNT() *memfetch.MemFetch {
	if len(sp.l2ToICNT) == 0 {
		return nil
	}
	mf := sp.l2ToICNT[0]
	sp.l2ToICNT = sp.l2ToICNT[1:]
	return mf
}

// CycleL2 advances the L2/ROP side of the sub-partition by one L2
// tick: it services one arrival from DRAM (filling/completing the
// cache), services one arrival from ICNT (lookup, hit fast-path or
// miss allocation gated by canSendToDRAM), and promotes any
// ROP-delayed reply whose delay has elapsed into the l2_icnt queue.
//
// canSendToDRAM is the partition-level credit gate (partition.go):
// a miss only leaves icnt_L2 once the partition grants a DRAM-queue
// credit, modeling the shared/private credit split of
// memory_partition_unit.hpp.
func (sp *SubPartition) CycleL2(cycle uint64, canSendToDRAM func() bool, takeDRAMCredit func()) {
	sp.drainDRAMToL2(cycle)
	sp.promoteROP(cycle)
	sp.serviceICNTToL2(cycle, canSendToDRAM, takeDRAMCredit)
}

func (sp *SubPartition) drainDRAMToL2(cycle uint64) {
	if len(sp.dramToL2) == 0 {
		return
	}
	mf := sp.dramToL2[0]
	sp.dramToL2 = sp.dramToL2[1:]
	mf.SetStatus(memfetch.InDRAMToL2, cycle)

	if sp.l2 != nil {
		if block, res := sp.l2.Lookup(mf.Addr); res == cache.MSHRHit {
			sp.l2.Fill(block, cycle, mf.SectorMask, mf.ByteMask)
		}
	}
	reply := mf.MakeReply(mf.ID, sp.cfg.ControlSize, cycle)
	sp.ropQueue = append(sp.ropQueue, ropEntry{readyCycle: cycle + sp.cfg.ROPLatency, mf: reply})
}

func (sp *SubPartition) promoteROP(cycle uint64) {
	if len(sp.ropQueue) == 0 {
		return
	}
	remaining := sp.ropQueue[:0]
	for _, e := range sp.ropQueue {
		if e.readyCycle <= cycle && len(sp.l2ToICNT) < sp.cfg.L2ToICNTDepth {
			e.mf.SetStatus(memfetch.InL2ToICNT, cycle)
			sp.l2ToICNT = append(sp.l2ToICNT, e.mf)
		} else {
			remaining = append(remaining, e)
		}
	}
	sp.ropQueue = remaining
}

func (sp *SubPartition) serviceICNTToL2(cycle uint64, canSendToDRAM func() bool, takeDRAMCredit func()) {
	if len(sp.icntToL2) == 0 {
		return
	}
	mf := sp.icntToL2[0]
	if mf.Status < memfetch.InL2 {
		mf.SetStatus(memfetch.InL2, cycle)
	}

	if sp.l2 == nil {
		if !canSendToDRAM() || len(sp.l2ToDRAM) >= sp.cfg.L2ToDRAMDepth {
			return
		}
		sp.icntToL2 = sp.icntToL2[1:]
		takeDRAMCredit()
		mf.SetStatus(memfetch.InL2ToDRAM, cycle)
		sp.l2ToDRAM = append(sp.l2ToDRAM, mf)
		return
	}

	block, res := sp.l2.Lookup(mf.Addr)
	switch res {
	case cache.Hit:
		sp.icntToL2 = sp.icntToL2[1:]
		sp.l2.Touch(block, cycle)
		if mf.IsWrite() {
			block.SetByteMask(mf.ByteMask)
		}
		reply := mf.MakeReply(mf.ID, sp.cfg.ControlSize, cycle)
		sp.ropQueue = append(sp.ropQueue, ropEntry{readyCycle: cycle + sp.cfg.ROPLatency, mf: reply})
	case cache.MSHRHit:
		if sp.l2.MergeMiss(mf.Addr) {
			sp.icntToL2 = sp.icntToL2[1:]
		}
	default:
		if !canSendToDRAM() || len(sp.l2ToDRAM) >= sp.cfg.L2ToDRAMDepth {
			return
		}
		sp.icntToL2 = sp.icntToL2[1:]
		takeDRAMCredit()
		sp.l2.Allocate(mf.Addr, cycle, mf.SectorMask)
		mf.SetStatus(memfetch.InL2ToDRAM, cycle)
		sp.l2ToDRAM = append(sp.l2ToDRAM, mf)
	}
}

// PopToDRAM removes and returns the head of l2_dram, or nil if empty;
// the parent partition's DRAM model consumes this.
func (sp *SubPartition) PopToDRAM() *memfetch.MemFetch {
	if len(sp.l2ToDRAM) == 0 {
		return nil
	}
	mf := sp.l2ToDRAM[0]
	sp.l2ToDRAM = sp.l2ToDRAM[1:]
	return mf
}

// PushFromDRAM admits a completed DRAM service into dram_L2. Bounded
// by DRAMToL2Depth; returns false (caller must hold/retry) when full.
func (sp *SubPartition) PushFromDRAM(mf *memfetch.MemFetch, cycle uint64) bool {
	if len(sp.dramToL2) >= sp.cfg.DRAMToL2Depth {
		return false
	}
	sp.dramToL2 = append(sp.dramToL2, mf)
	return true
}

// Busy reports whether any queue or the ROP delay has outstanding
// work, for deadlock detection.
func (sp *SubPartition) Busy() bool {
	return len(sp.icntToL2) > 0 || len(sp.l2ToDRAM) > 0 || len(sp.dramToL2) > 0 ||
		len(sp.l2ToICNT) > 0 || len(sp.ropQueue) > 0
}

// Flush clears the L2 cache (spec.md §6 gpgpu_flush_l2_cache), if one
// is configured.
func (sp *SubPartition) Flush() {
	if sp.l2 != nil {
		sp.l2.Flush()
	}
}
