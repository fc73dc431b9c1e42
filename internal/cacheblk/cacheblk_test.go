package cacheblk

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/supracore/warpsim/internal/memfetch"
)

func TestNewBlockStartsInvalid(t *testing.T) {
	b := New(LineKind)
	assert.True(t, b.IsInvalidLine())
	assert.True(t, b.IsReadable())
}

func TestAllocateTransitionsToReserved(t *testing.T) {
	b := New(LineKind)
	b.Allocate(0xAB, 0xAB, 10, 0xF)
	assert.True(t, b.IsReservedLine())
	assert.Equal(t, uint64(10), b.AllocTime)
}

func TestFillWithModifiedOnFillGoesModified(t *testing.T) {
	b := New(LineKind)
	b.Allocate(1, 1, 0, 0xF)
	b.SetModifiedOnFill(true, 0xF)
	b.Fill(5, 0xF, memfetch.ByteMask{})
	assert.True(t, b.IsModifiedLine())
	assert.False(t, b.IsValidLine())
}

func TestFillWithoutModifiedOnFillGoesValid(t *testing.T) {
	b := New(LineKind)
	b.Allocate(1, 1, 0, 0xF)
	b.Fill(5, 0xF, memfetch.ByteMask{})
	assert.True(t, b.IsValidLine())
	assert.False(t, b.IsModifiedLine())
}

func TestSetByteMaskOnFillAccumulatesDirtyBytes(t *testing.T) {
	b := New(LineKind)
	b.Allocate(1, 1, 0, 0xF)
	b.SetByteMaskOnFill(true)
	var bm memfetch.ByteMask
	bm.Set(3)
	b.Fill(0, 0xF, bm)
	assert.Equal(t, 1, b.DirtyByteMask.Popcount())
}

func TestSectorKindIndependentSectorState(t *testing.T) {
	b := New(SectorKind)
	b.Allocate(1, 1, 0, 0x1) // sector 0 only
	b.Fill(1, 0x1, memfetch.ByteMask{})
	assert.Equal(t, Valid, b.Status(0x1))
	assert.Equal(t, Invalid, b.Status(0x2))
}

func TestGetModifiedSizeLineVsSector(t *testing.T) {
	line := New(LineKind)
	line.Allocate(1, 1, 0, 0xF)
	line.SetModifiedOnFill(true, 0xF)
	line.Fill(0, 0xF, memfetch.ByteMask{})
	assert.Equal(t, LineSize, line.GetModifiedSize())

	sector := New(SectorKind)
	sector.Allocate(1, 1, 0, 0x3) // two sectors
	sector.SetModifiedOnFill(true, 0x3)
	sector.Fill(0, 0x3, memfetch.ByteMask{})
	assert.Equal(t, 2*SectorSize, sector.GetModifiedSize())
}

func TestDirtySectorMaskLineIsAllOrNothing(t *testing.T) {
	b := New(LineKind)
	b.Allocate(1, 1, 0, 0xF)
	assert.Equal(t, memfetch.SectorMask(0), b.DirtySectorMask())
	b.SetModifiedOnFill(true, 0xF)
	b.Fill(0, 0xF, memfetch.ByteMask{})
	assert.Equal(t, memfetch.SectorMask(0xF), b.DirtySectorMask())
}

func TestSetLastAccessAndStatusAccessors(t *testing.T) {
	b := New(LineKind)
	b.SetLastAccess(42)
	assert.Equal(t, uint64(42), b.LastAccess)
	b.SetStatus(Valid, 0xF)
	assert.True(t, b.IsValidLine())
}
