package scoreboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNoCollisionOnFreshBoard(t *testing.T) {
	b := New(4)
	assert.False(t, b.CheckCollision(0, Instruction{Dst: []int{1}, Src: []int{2}}))
}

func TestReserveThenCollidesOnDstOrSrc(t *testing.T) {
	b := New(4)
	b.ReserveRegisters(0, Instruction{Dst: []int{5}})
	assert.True(t, b.CheckCollision(0, Instruction{Dst: []int{9}, Src: []int{5}}), "RAW hazard on src")
	assert.True(t, b.CheckCollision(0, Instruction{Dst: []int{5}}), "WAW hazard on dst")
}

func TestCollisionIsPerWarp(t *testing.T) {
	b := New(4)
	b.ReserveRegisters(0, Instruction{Dst: []int{5}})
	assert.False(t, b.CheckCollision(1, Instruction{Src: []int{5}}))
}

func TestReleaseRegisterClearsPendingAfterMatchingCount(t *testing.T) {
	b := New(2)
	b.ReserveRegisters(0, Instruction{Dst: []int{5}})
	b.ReserveRegisters(0, Instruction{Dst: []int{5}})
	assert.True(t, b.CheckCollision(0, Instruction{Src: []int{5}}))
	b.ReleaseRegister(0, 5)
	assert.True(t, b.CheckCollision(0, Instruction{Src: []int{5}}), "still one outstanding write")
	b.ReleaseRegister(0, 5)
	assert.False(t, b.CheckCollision(0, Instruction{Src: []int{5}}))
}

func TestReleaseUnreservedRegisterIsNoop(t *testing.T) {
	b := New(1)
	assert.NotPanics(t, func() { b.ReleaseRegister(0, 99) })
}

func TestIsLongOpOnlyForLoadReservations(t *testing.T) {
	b := New(1)
	b.ReserveRegisters(0, Instruction{Dst: []int{1}, IsLoad: true})
	b.ReserveRegisters(0, Instruction{Dst: []int{2}, IsLoad: false})
	assert.True(t, b.IsLongOp(0, 1))
	assert.False(t, b.IsLongOp(0, 2))
}

func TestIsLongOpClearedOnRelease(t *testing.T) {
	b := New(1)
	b.ReserveRegisters(0, Instruction{Dst: []int{1}, IsLoad: true})
	b.ReleaseRegister(0, 1)
	assert.False(t, b.IsLongOp(0, 1))
}

func TestHasPendingWritesAndCount(t *testing.T) {
	b := New(1)
	assert.False(t, b.HasPendingWrites(0))
	b.ReserveRegisters(0, Instruction{Dst: []int{1, 2}})
	assert.True(t, b.HasPendingWrites(0))
	assert.Equal(t, 2, b.NumPendingWrites(0))
}
