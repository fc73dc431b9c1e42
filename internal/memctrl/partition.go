package memctrl

import "github.com/supracore/warpsim/internal/memfetch"

// PartitionConfig sizes a MemoryPartition's sub-partitions and its
// DRAM-queue credit pool.
type PartitionConfig struct {
	NumSubPartitions int
	SubPartition     Config
	PrivateCredit    int // per sub-partition private allotment
	SharedCredit     int // pool shared across sub-partitions
}

// MemoryPartition owns one DRAM channel's sub-partitions, the DRAM
// model driving it, and the private/shared credit pool gating how many
// outstanding requests each sub-partition may push into l2_dram at
// once. Grounded on memory_partition_unit.hpp's dram-queue credit
// scheme: each sub-partition gets a private credit allotment plus
// access to a shared pool, with last_borrower tracking which
// sub-partition most recently drew from the shared pool so a returned
// credit goes back to the shared pool only when it would restore the
// fairness the borrow disturbed.
type MemoryPartition struct {
	ID    int
	Parts []*SubPartition

	dram Model

	privateCredit []int
	sharedCredit  int
	sharedMax     int
	lastBorrower  int

	// dramOrigin tracks which sub-partition enqueued each in-flight
	// DRAM request, so a completion can be routed back to the same
	// sub-partition's dram_L2 queue regardless of what the request's
	// TargetPart addresses (a memory partition, not a sub-partition).
	dramOrigin map[uint64]int
}

// NewMemoryPartition builds a partition with its sub-partitions and
// attaches the given DRAM model (SimpleDRAM or TimingDRAM).
func NewMemoryPartition(id int, cfg PartitionConfig, dram Model) *MemoryPartition {
	p := &MemoryPartition{
		ID:            id,
		dram:          dram,
		privateCredit: make([]int, cfg.NumSubPartitions),
		sharedCredit:  cfg.SharedCredit,
		sharedMax:     cfg.SharedCredit,
		lastBorrower:  -1,
		dramOrigin:    make(map[uint64]int),
	}
	for i := range p.privateCredit {
		p.privateCredit[i] = cfg.PrivateCredit
	}
	p.Parts = make([]*SubPartition, cfg.NumSubPartitions)
	for i := range p.Parts {
		p.Parts[i] = NewSubPartition(i, cfg.SubPartition)
	}
	return p
}

// canSendToDRAM reports whether sub-partition idx currently has a
// credit (private or shared) available to push a new request into
// l2_dram.
func (p *MemoryPartition) canSendToDRAM(idx int) bool {
	return p.privateCredit[idx] > 0 || p.sharedCredit > 0
}

// takeDRAMCredit consumes one credit for sub-partition idx, preferring
// its private allotment before borrowing from the shared pool.
func (p *MemoryPartition) takeDRAMCredit(idx int) {
	if p.privateCredit[idx] > 0 {
		p.privateCredit[idx]--
		return
	}
	p.sharedCredit--
	p.lastBorrower = idx
}

// returnDRAMCredit is called when a request leaves l2_dram (consumed
// by the DRAM model). The credit returns to the shared pool only if
// its sub-partition was the most recent borrower and the pool has
// room, otherwise it replenishes that sub-partition's private
// allotment — preventing one sub-partition from permanently draining
// the shared pool at another's expense.
func (p *MemoryPartition) returnDRAMCredit(idx int) {
	if p.lastBorrower == idx && p.sharedCredit < p.sharedMax {
		p.sharedCredit++
		return
	}
	p.privateCredit[idx]++
}

// PushFromICNT routes an incoming request to the sub-partition it
// addresses (by construction, the caller has already resolved idx from
// the request's address/target).
func (p *MemoryPartition) PushFromICNT(idx int, mf *memfetch.MemFetch, cycle uint64) bool {
	return p.Parts[idx].PushFromICNT(mf, cycle)
}

// PopToICNT drains sub-partition idx's completed replies toward the
// interconnect.
func (p *MemoryPartition) PopToICNT(idx int) *memfetch.MemFetch {
	return p.Parts[idx].PopToICNT()
}

// CycleL2 advances every sub-partition's L2/ROP stage by one L2 tick.
func (p *MemoryPartition) CycleL2(cycle uint64) {
	for i, sp := range p.Parts {
		idx := i
		sp.CycleL2(cycle,
			func() bool { return p.canSendToDRAM(idx) },
			func() { p.takeDRAMCredit(idx) },
		)
	}
}

// CycleDRAM advances the DRAM model by one DRAM tick: it drains one
// ready request per sub-partition into the model, returning that
// request's DRAM credit as it leaves l2_dram, ticks the model, and
// routes completions back to their originating sub-partition's
// dram_L2 queue.
func (p *MemoryPartition) CycleDRAM(cycle uint64) {
	for i, sp := range p.Parts {
		if mf := sp.PopToDRAM(); mf != nil {
			mf.SetStatus(memfetch.InDRAM, cycle)
			p.dramOrigin[mf.ID] = i
			p.dram.Enqueue(mf, cycle)
			p.returnDRAMCredit(i)
		}
	}

	for _, mf := range p.dram.Cycle(cycle) {
		idx, ok := p.dramOrigin[mf.ID]
		if !ok {
			idx = 0
		}
		delete(p.dramOrigin, mf.ID)
		p.Parts[idx].PushFromDRAM(mf, cycle)
	}
}

// Busy reports whether any sub-partition or the DRAM model has
// outstanding work.
func (p *MemoryPartition) Busy() bool {
	if p.dram.Busy() {
		return true
	}
	for _, sp := range p.Parts {
		if sp.Busy() {
			return true
		}
	}
	return false
}

// Flush flushes every sub-partition's L2.
func (p *MemoryPartition) Flush() {
	for _, sp := range p.Parts {
		sp.Flush()
	}
}
