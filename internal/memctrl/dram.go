package memctrl

import "github.com/supracore/warpsim/internal/memfetch"

// Model is the DRAM timing model interface a MemoryPartition drives.
// SPEC_FULL.md §5 supplements the distilled spec's single fixed-latency
// DRAM with the original's toggle between a trivial fixed-latency model
// and a bank/command-timing model, grounded on
// original_source/playground/sys/src/ref/bridge/dram.hpp's
// gpgpu_simple_dram / gpgpu_dram_timing_opt split.
type Model interface {
	// Enqueue accepts a request arriving from the L2-to-DRAM queue at
	// the given cycle.
	Enqueue(mf *memfetch.MemFetch, cycle uint64)
	// Cycle advances the DRAM model by one DRAM-domain tick and returns
	// any requests that completed service this cycle, in completion
	// order.
	Cycle(cycle uint64) []*memfetch.MemFetch
	// Busy reports whether the model has requests in flight or queued.
	Busy() bool
}

// SimpleDRAM is a fixed-latency pass-through: every request becomes
// ready exactly Latency cycles after it is enqueued, with no modeling
// of bank conflicts or command overhead. This is gpgpu_simple_dram's
// behavior (dram_latency_queue with one fixed delay).
type SimpleDRAM struct {
	Latency uint64

	queue []latencyEntry
}

type latencyEntry struct {
	readyCycle uint64
	mf         *memfetch.MemFetch
}

// NewSimpleDRAM builds a fixed-latency DRAM model.
func NewSimpleDRAM(latency uint64) *SimpleDRAM {
	if latency == 0 {
		latency = 1
	}
	return &SimpleDRAM{Latency: latency}
}

func (d *SimpleDRAM) Enqueue(mf *memfetch.MemFetch, cycle uint64) {
	d.queue = append(d.queue, latencyEntry{readyCycle: cycle + d.Latency, mf: mf})
}

func (d *SimpleDRAM) Cycle(cycle uint64) []*memfetch.MemFetch {
	if len(d.queue) == 0 {
		return nil
	}
	var ready []*memfetch.MemFetch
	remaining := d.queue[:0]
	for _, e := range d.queue {
		if e.readyCycle <= cycle {
			ready = append(ready, e.mf)
		} else {
			remaining = append(remaining, e)
		}
	}
	d.queue = remaining
	return ready
}

func (d *SimpleDRAM) Busy() bool { return len(d.queue) > 0 }

// bankState is one DRAM bank's command pipeline.
type bankState struct {
	busyUntil uint64
	mf        *memfetch.MemFetch
	refresh   bool
}

// TimingDRAM models per-bank ACTIVATE/READ-or-WRITE/PRECHARGE command
// latencies and a periodic REFRESH that blocks every bank, grounded on
// the ACT/CL/WR/PRE/RFC constants of the original's
// dram_timing_options. Requests round-robin across banks; a bank
// already servicing a command or under refresh cannot accept a new
// request until it frees.
type TimingDRAM struct {
	NumBanks   int
	ActLatency uint64
	CASLatency uint64
	PreLatency uint64
	RefreshEvery uint64 // 0 disables periodic refresh
	RefreshLatency uint64

	banks      []bankState
	pending    []*memfetch.MemFetch
	nextBank   int
	lastRefresh uint64
}

// NewTimingDRAM builds a bank-timing DRAM model.
func NewTimingDRAM(numBanks int, act, cas, pre, refreshEvery, refreshLatency uint64) *TimingDRAM {
	if numBanks <= 0 {
		numBanks = 1
	}
	return &TimingDRAM{
		NumBanks:       numBanks,
		ActLatency:     act,
		CASLatency:     cas,
		PreLatency:     pre,
		RefreshEvery:   refreshEvery,
		RefreshLatency: refreshLatency,
		banks:          make([]bankState, numBanks),
	}
}

func (d *TimingDRAM) Enqueue(mf *memfetch.MemFetch, cycle uint64) {
	d.pending = append(d.pending, mf)
}

func (d *TimingDRAM) Cycle(cycle uint64) []*memfetch.MemFetch {
	var completed []*memfetch.MemFetch

	if d.RefreshEvery > 0 && cycle-d.lastRefresh >= d.RefreshEvery {
		for i := range d.banks {
			d.banks[i].busyUntil = cycle + d.RefreshLatency
			d.banks[i].refresh = true
		}
		d.lastRefresh = cycle
	}

	for i := range d.banks {
		b := &d.banks[i]
		if b.mf != nil && b.busyUntil <= cycle {
			completed = append(completed, b.mf)
			b.mf = nil
		}
		if b.refresh && b.busyUntil <= cycle {
			b.refresh = false
		}
	}

	remaining := d.pending[:0]
	for _, mf := range d.pending {
		assigned := false
		for i := 0; i < d.NumBanks; i++ {
			idx := (d.nextBank + i) % d.NumBanks
			b := &d.banks[idx]
			if b.mf == nil && !b.refresh && b.busyUntil <= cycle {
				total := d.ActLatency + d.CASLatency + d.PreLatency
				if total == 0 {
					total = 1
				}
				b.mf = mf
				b.busyUntil = cycle + total
				d.nextBank = (idx + 1) % d.NumBanks
				assigned = true
				break
			}
		}
		if !assigned {
			remaining = append(remaining, mf)
		}
	}
	d.pending = remaining

	return completed
}

func (d *TimingDRAM) Busy() bool {
	if len(d.pending) > 0 {
		return true
	}
	for _, b := range d.banks {
		if b.mf != nil || b.refresh {
			return true
		}
	}
	return false
}
