// Package cache implements a generic set-associative cache over
// cacheblk.Block entries, shared by the SM's L1 caches and the memory
// sub-partition's L2 (SPEC_FULL.md C5). Replacement is the teacher's
// bitmap/CTZ style: a per-set occupancy bitmap with first-free-way
// allocation, then LRU-by-last-access eviction once a set is full —
// the same "find-first-free, else find-oldest" shape as
// proto/ooo.go's reservation-station allocation.
package cache

import (
	"math/bits"

	"github.com/supracore/warpsim/internal/cacheblk"
	"github.com/supracore/warpsim/internal/memfetch"
)

// AccessResult is the outcome of one cache access.
type AccessResult int

const (
	Hit AccessResult = iota
	Miss
	MSHRHit // a miss to a line that already has an outstanding MSHR entry
	ReservationFail
)

func (r AccessResult) String() string {
	switch r {
	case Hit:
		return "HIT"
	case Miss:
		return "MISS"
	case MSHRHit:
		return "MSHR_HIT"
	case ReservationFail:
		return "RESERVATION_FAIL"
	default:
		return "UNKNOWN"
	}
}

// Config describes a cache instance's shape. It mirrors the fields of
// the spec.md §6 cache-config grammar that actually drive simulated
// behavior (set/line/assoc geometry and MSHR sizing); the grammar's
// replacement/write-policy/allocate-policy letters are parsed and
// retained (internal/config.CacheSpec) for validation and reporting
// but do not change hit/miss mechanics at this level of fidelity.
type Config struct {
	NumSets        int
	LineSize       int
	Assoc          int
	Kind           cacheblk.Kind
	MSHREntries    int
	MSHRMergeSize  int
}

type mshrEntry struct {
	blockAddr uint64
	merged    int
}

// Cache is one set-associative cache instance.
type Cache struct {
	cfg   Config
	sets  [][]*cacheblk.Block // sets[setIdx][way]
	mshr  []mshrEntry

	accesses uint64
	misses   uint64
	hits     uint64
}

// New builds an empty cache of the given shape.
func New(cfg Config) *Cache {
	if cfg.NumSets <= 0 {
		cfg.NumSets = 1
	}
	if cfg.Assoc <= 0 {
		cfg.Assoc = 1
	}
	c := &Cache{cfg: cfg}
	c.sets = make([][]*cacheblk.Block, cfg.NumSets)
	for s := range c.sets {
		ways := make([]*cacheblk.Block, cfg.Assoc)
		for w := range ways {
			ways[w] = cacheblk.New(cfg.Kind)
		}
		c.sets[s] = ways
	}
	return c
}

func (c *Cache) setIndex(blockAddr uint64) int {
	return int(blockAddr % uint64(c.cfg.NumSets))
}

// Lookup checks the cache for blockAddr without allocating. It returns
// the matching block and Hit, or the RESERVED block and MSHRHit when a
// miss to it is still pending (counted as a miss), or nil and Miss.
func (c *Cache) Lookup(blockAddr uint64) (*cacheblk.Block, AccessResult) {
	c.accesses++
	set := c.sets[c.setIndex(blockAddr)]
	for _, b := range set {
		if b.BlockAddr == blockAddr && !b.IsInvalidLine() {
			if b.IsReservedLine() {
				c.misses++
				return b, MSHRHit
			}
			c.hits++
			return b, Hit
		}
	}
	c.misses++
	return nil, Miss
}

// HasPendingMiss reports whether blockAddr already has an outstanding
// MSHR entry eligible for merge.
func (c *Cache) HasPendingMiss(blockAddr uint64) bool {
	for _, m := range c.mshr {
		if m.blockAddr == blockAddr {
			return true
		}
	}
	return false
}

// MergeMiss attaches a second (and subsequent) request to an existing
// MSHR entry for blockAddr, bounded by MSHRMergeSize. Returns false if
// the merge slot is full (caller must treat as ReservationFail).
func (c *Cache) MergeMiss(blockAddr uint64) bool {
	for i := range c.mshr {
		if c.mshr[i].blockAddr == blockAddr {
			if c.mshr[i].merged >= c.cfg.MSHRMergeSize {
				return false
			}
			c.mshr[i].merged++
			return true
		}
	}
	return false
}

// Allocate reserves a way in blockAddr's set for a new miss, evicting
// the least-recently-used occupied way if the set is full. Returns the
// allocated block, whether the replaced block needs a writeback
// (evicted is true only for a modified victim), and the replaced
// block's address/modified-size whenever a full set forced a
// replacement.
func (c *Cache) Allocate(blockAddr uint64, time uint64, sectorMask memfetch.SectorMask) (block *cacheblk.Block, evicted bool, evictedAddr uint64, writebackBytes int) {
	if len(c.mshr) < c.cfg.MSHREntries {
		c.mshr = append(c.mshr, mshrEntry{blockAddr: blockAddr, merged: 0})
	}

	set := c.sets[c.setIndex(blockAddr)]

	var freeMask uint32
	for i, b := range set {
		if b.IsInvalidLine() {
			freeMask |= 1 << uint(i)
		}
	}
	if freeMask != 0 {
		way := bits.TrailingZeros32(freeMask)
		block = set[way]
		block.Allocate(blockAddr, blockAddr, time, sectorMask)
		return block, false, 0, 0
	}

	// no free way: evict the least-recently-accessed occupied block
	victim := 0
	for i := 1; i < len(set); i++ {
		if set[i].LastAccess < set[victim].LastAccess {
			victim = i
		}
	}
	old := set[victim]
	evictedAddr = old.BlockAddr
	writebackBytes = old.GetModifiedSize()
	evicted = writebackBytes > 0
	old.Allocate(blockAddr, blockAddr, time, sectorMask)
	return old, evicted, evictedAddr, writebackBytes
}

// Fill completes a pending miss for blockAddr, clearing its MSHR
// entry.
func (c *Cache) Fill(block *cacheblk.Block, time uint64, sectorMask memfetch.SectorMask, byteMask memfetch.ByteMask) {
	block.Fill(time, sectorMask, byteMask)
	for i, m := range c.mshr {
		if m.blockAddr == block.BlockAddr {
			c.mshr = append(c.mshr[:i], c.mshr[i+1:]...)
			break
		}
	}
}

// Touch updates a block's last-access time on a hit.
func (c *Cache) Touch(block *cacheblk.Block, time uint64) {
	block.SetLastAccess(time)
}

// Flush resets every block to INVALID (spec.md §6 gpgpu_flush_l1_cache
// / gpgpu_flush_l2_cache).
func (c *Cache) Flush() {
	for _, set := range c.sets {
		for _, b := range set {
			*b = *cacheblk.New(c.cfg.Kind)
		}
	}
	c.mshr = c.mshr[:0]
}

// Stats returns the raw accesses/hits/misses counters backing
// stats.CacheStats.
func (c *Cache) Stats() (accesses, hits, misses uint64) {
	return c.accesses, c.hits, c.misses
}
