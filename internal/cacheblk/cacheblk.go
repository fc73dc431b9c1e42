// Package cacheblk implements the cache line/sector state machine
// (SPEC_FULL.md C5). Rather than the original's class hierarchy
// (cache_block_t -> line_cache_block / sector_cache_block), this uses
// one tagged Kind with behavior routed by a closed switch, per the
// "deep inheritance" strategy in spec.md §9: one tagged variant per
// family instead of open-ended virtual dispatch.
package cacheblk

import "github.com/supracore/warpsim/internal/memfetch"

// Status is a cache block's coherence state.
type Status uint8

const (
	Invalid Status = iota
	Reserved
	Valid
	Modified
)

func (s Status) String() string {
	switch s {
	case Invalid:
		return "INVALID"
	case Reserved:
		return "RESERVED"
	case Valid:
		return "VALID"
	case Modified:
		return "MODIFIED"
	default:
		return "UNKNOWN"
	}
}

// Kind selects line-granularity or sector-granularity allocation.
type Kind uint8

const (
	LineKind Kind = iota
	SectorKind
)

// SectorsPerLine and SectorSize match the original's SECTOR_CHUNCK_SIZE
// and SECTOR_SIZE (a 128-byte line split into 4x32-byte sectors).
const (
	SectorsPerLine = 4
	SectorSize     = 32
	LineSize       = SectorsPerLine * SectorSize
)

// Block is one cache line or sector-group entry. In SectorKind, each
// of the SectorsPerLine sectors has an independent Status and fill
// flags packed into the Sectors array; in LineKind only Sectors[0] is
// used and represents the whole line.
type Block struct {
	Kind Kind

	Tag       uint64
	BlockAddr uint64
	AllocTime uint64
	FillTime  uint64
	LastAccess uint64

	Sectors [SectorsPerLine]sectorState

	DirtyByteMask memfetch.ByteMask
	Readable      bool
}

type sectorState struct {
	status              Status
	setModifiedOnFill   bool
	setReadableOnFill   bool
	setByteMaskOnFill   bool
	ignoreOnFill        bool
}

func sectorCount(kind Kind) int {
	if kind == SectorKind {
		return SectorsPerLine
	}
	return 1
}

// New creates an empty, INVALID block of the given kind.
func New(kind Kind) *Block {
	return &Block{Kind: kind, Readable: true}
}

// sectorIndices returns which sectorState indices a sectorMask touches
// (for LineKind, always just index 0, covering the whole line).
func (b *Block) sectorIndices(mask memfetch.SectorMask) []int {
	if b.Kind == LineKind {
		return []int{0}
	}
	var idx []int
	for i := 0; i < SectorsPerLine; i++ {
		if mask&(1<<uint(i)) != 0 {
			idx = append(idx, i)
		}
	}
	if len(idx) == 0 {
		idx = []int{0}
	}
	return idx
}

// Allocate transitions the addressed sectors to RESERVED, recording a
// pending fill. Per spec invariant, a RESERVED sector always has a
// pending fill in flight.
func (b *Block) Allocate(tag, blockAddr uint64, time uint64, mask memfetch.SectorMask) {
	b.Tag = tag
	b.BlockAddr = blockAddr
	b.AllocTime = time
	b.LastAccess = time
	b.FillTime = 0
	for _, i := range b.sectorIndices(mask) {
		b.Sectors[i] = sectorState{status: Reserved}
	}
}

// SetIgnoreOnFill, SetModifiedOnFill, SetReadableOnFill, and
// SetByteMaskOnFill configure what Fill does when the pending miss
// completes; set between Allocate and Fill.
func (b *Block) SetIgnoreOnFill(ignore bool, mask memfetch.SectorMask) {
	for _, i := range b.sectorIndices(mask) {
		b.Sectors[i].ignoreOnFill = ignore
	}
}

func (b *Block) SetModifiedOnFill(modified bool, mask memfetch.SectorMask) {
	for _, i := range b.sectorIndices(mask) {
		b.Sectors[i].setModifiedOnFill = modified
	}
}

func (b *Block) SetReadableOnFill(readable bool, mask memfetch.SectorMask) {
	for _, i := range b.sectorIndices(mask) {
		b.Sectors[i].setReadableOnFill = readable
	}
}

func (b *Block) SetByteMaskOnFill(set bool) {
	for i := 0; i < sectorCount(b.Kind); i++ {
		b.Sectors[i].setByteMaskOnFill = set
	}
}

// Fill completes a pending miss: RESERVED -> MODIFIED if
// setModifiedOnFill was requested, else RESERVED -> VALID.
func (b *Block) Fill(time uint64, mask memfetch.SectorMask, byteMask memfetch.ByteMask) {
	for _, i := range b.sectorIndices(mask) {
		s := &b.Sectors[i]
		if s.setModifiedOnFill {
			s.status = Modified
		} else {
			s.status = Valid
		}
		if s.setReadableOnFill {
			b.Readable = true
		}
		if s.setByteMaskOnFill {
			b.DirtyByteMask[0] |= byteMask[0]
			b.DirtyByteMask[1] |= byteMask[1]
		}
	}
	b.FillTime = time
}

// SetByteMask ORs additional dirty bytes into the block (a store hit).
func (b *Block) SetByteMask(byteMask memfetch.ByteMask) {
	b.DirtyByteMask[0] |= byteMask[0]
	b.DirtyByteMask[1] |= byteMask[1]
}

// Status returns the status of the first sector the mask addresses
// (sector 0 for LineKind). IsInvalidLine, IsValidLine and
// IsReservedLine below check sector 0 only; IsModifiedLine checks every
// sector of a SectorKind block.
func (b *Block) Status(mask memfetch.SectorMask) Status {
	idx := b.sectorIndices(mask)
	return b.Sectors[idx[0]].status
}

func (b *Block) SetStatus(s Status, mask memfetch.SectorMask) {
	for _, i := range b.sectorIndices(mask) {
		b.Sectors[i].status = s
	}
}

func (b *Block) IsInvalidLine() bool  { return b.Sectors[0].status == Invalid }
func (b *Block) IsValidLine() bool    { return b.Sectors[0].status == Valid }
func (b *Block) IsReservedLine() bool { return b.Sectors[0].status == Reserved }
func (b *Block) IsModifiedLine() bool {
	if b.Kind == LineKind {
		return b.Sectors[0].status == Modified
	}
	for i := 0; i < SectorsPerLine; i++ {
		if b.Sectors[i].status == Modified {
			return true
		}
	}
	return false
}

// DirtySectorMask returns which sectors are MODIFIED (for a line
// cache, either all-set or none, since the whole line is one unit).
func (b *Block) DirtySectorMask() memfetch.SectorMask {
	var mask memfetch.SectorMask
	if b.Kind == LineKind {
		if b.Sectors[0].status == Modified {
			return 0xF // whole line = all 4 sectors
		}
		return 0
	}
	for i := 0; i < SectorsPerLine; i++ {
		if b.Sectors[i].status == Modified {
			mask |= 1 << uint(i)
		}
	}
	return mask
}

// GetModifiedSize returns the number of dirty bytes that must be
// written back: a full line for LineKind, popcount(dirty sectors) *
// SectorSize for SectorKind.
func (b *Block) GetModifiedSize() int {
	if b.Kind == LineKind {
		if b.IsModifiedLine() {
			return LineSize
		}
		return 0
	}
	n := 0
	for i := 0; i < SectorsPerLine; i++ {
		if b.Sectors[i].status == Modified {
			n++
		}
	}
	return n * SectorSize
}

func (b *Block) IsReadable() bool { return b.Readable }

func (b *Block) SetLastAccess(time uint64) { b.LastAccess = time }
