// Package sm implements the SM core (SPEC_FULL.md C8): the per-warp
// trace-driven state (TraceWarp) the scheduler issues against, and the
// pipeline-stage register sets instructions occupy between issue and
// writeback.
package sm

// RegisterSet models one pipeline-stage register file (e.g. the
// issue-to-execute latch for one pipe), grounded on the original's
// register_set.hpp: a fixed number of slots, each either free or
// occupied by an in-flight instruction that becomes ready once its
// result is available.
//
// Supplemented per SPEC_FULL.md §5: get_ready doesn't just return "a"
// ready slot, it picks the *oldest* (lowest uid) ready instruction
// across every slot when the register set is not in sub-core mode; in
// sub-core mode each scheduler is confined to its own lane.
type RegisterSet struct {
	slots   []regEntry
	subCore bool
}

type regEntry struct {
	occupied bool
	ready    bool
	uid      uint64
	warpID   int
	lane     int
}

// NewRegisterSet creates a register set with the given slot count.
// When subCore is true, each slot is tagged with the lane (scheduler
// index) that owns it, and free-slot/ready lookups are confined to
// that lane.
func NewRegisterSet(numSlots int, subCore bool) *RegisterSet {
	return &RegisterSet{slots: make([]regEntry, numSlots), subCore: subCore}
}

// FreeSlot returns the index of a free slot. In sub-core mode only
// slots whose lane matches, or whose lane is 0 (never occupied, or
// freed), are eligible; a slot last owned by lane 0 is therefore
// eligible for every lane.
func (r *RegisterSet) FreeSlot(lane int) (int, bool) {
	for i := range r.slots {
		if r.slots[i].occupied {
			continue
		}
		if r.subCore && r.slots[i].lane != 0 && r.slots[i].lane != lane {
			continue
		}
		return i, true
	}
	return 0, false
}

// Occupy claims slot idx for an in-flight instruction.
func (r *RegisterSet) Occupy(idx int, uid uint64, warpID, lane int) {
	r.slots[idx] = regEntry{occupied: true, ready: false, uid: uid, warpID: warpID, lane: lane}
}

// MarkReady flags slot idx's instruction as having its result
// available (eligible for the next pipeline stage to consume).
func (r *RegisterSet) MarkReady(idx int) {
	if r.slots[idx].occupied {
		r.slots[idx].ready = true
	}
}

// GetReady returns the slot index of the instruction the next stage
// should consume this cycle: in sub-core mode, the ready slot
// belonging to lane; otherwise the oldest (lowest uid) ready slot
// across the whole register set.
func (r *RegisterSet) GetReady(lane int) (int, bool) {
	best := -1
	var bestUID uint64
	for i := range r.slots {
		e := &r.slots[i]
		if !e.occupied || !e.ready {
			continue
		}
		if r.subCore && e.lane != lane {
			continue
		}
		if best == -1 || e.uid < bestUID {
			best = i
			bestUID = e.uid
		}
	}
	if best == -1 {
		return 0, false
	}
	return best, true
}

// Free releases slot idx back to the pool.
func (r *RegisterSet) Free(idx int) {
	r.slots[idx] = regEntry{}
}

// WarpID returns the warp owning slot idx's in-flight instruction.
func (r *RegisterSet) WarpID(idx int) int { return r.slots[idx].warpID }
