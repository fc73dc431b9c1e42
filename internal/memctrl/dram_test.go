package memctrl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supracore/warpsim/internal/memfetch"
)

func TestSimpleDRAMCompletesAfterFixedLatency(t *testing.T) {
	d := NewSimpleDRAM(5)
	mf := memfetch.New(1, 0, memfetch.ReadRequest, 32, 0, 0, 0)
	d.Enqueue(mf, 0)
	assert.True(t, d.Busy())
	assert.Empty(t, d.Cycle(4))
	ready := d.Cycle(5)
	require.Len(t, ready, 1)
	assert.Same(t, mf, ready[0])
	assert.False(t, d.Busy())
}

func TestSimpleDRAMZeroLatencyClampsToOne(t *testing.T) {
	d := NewSimpleDRAM(0)
	assert.Equal(t, uint64(1), d.Latency)
}

func TestTimingDRAMCompletesRequestsAndFreesBank(t *testing.T) {
	d := NewTimingDRAM(1, 1, 1, 1, 0, 0)
	mf := memfetch.New(1, 0, memfetch.ReadRequest, 32, 0, 0, 0)
	d.Enqueue(mf, 0)
	completed := d.Cycle(0)
	assert.Empty(t, completed, "just enqueued, not yet completed")
	var done []*memfetch.MemFetch
	for cycle := uint64(1); cycle <= 5 && len(done) == 0; cycle++ {
		done = d.Cycle(cycle)
	}
	require.Len(t, done, 1)
	assert.Same(t, mf, done[0])
	assert.False(t, d.Busy())
}

func TestTimingDRAMBanksRoundRobin(t *testing.T) {
	d := NewTimingDRAM(2, 1, 1, 1, 0, 0)
	mf1 := memfetch.New(1, 0, memfetch.ReadRequest, 32, 0, 0, 0)
	mf2 := memfetch.New(2, 0, memfetch.ReadRequest, 32, 0, 0, 0)
	d.Enqueue(mf1, 0)
	d.Enqueue(mf2, 0)
	d.Cycle(0)
	assert.NotNil(t, d.banks[0].mf)
	assert.NotNil(t, d.banks[1].mf)
}

func TestTimingDRAMRefreshBlocksAllBanks(t *testing.T) {
	d := NewTimingDRAM(2, 1, 1, 1, 1, 10)
	d.Cycle(1) // RefreshEvery=1 triggers immediately
	assert.True(t, d.Busy())
	for _, b := range d.banks {
		assert.True(t, b.refresh)
	}
}
