package memfetch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStartsInShader(t *testing.T) {
	mf := New(1, 0x1000, ReadRequest, 32, 0, 0, 5)
	assert.Equal(t, InShader, mf.Status)
	assert.Equal(t, uint64(5), mf.StageCycles[InShader])
}

func TestSetStatusForwardOnlySucceeds(t *testing.T) {
	mf := New(1, 0x1000, ReadRequest, 32, 0, 0, 0)
	assert.NotPanics(t, func() {
		mf.SetStatus(InICNTToMem, 1)
		mf.SetStatus(InPartitionICNTToL2, 2)
	})
	assert.Equal(t, InPartitionICNTToL2, mf.Status)
}

func TestSetStatusBackwardOrRepeatPanics(t *testing.T) {
	mf := New(1, 0x1000, ReadRequest, 32, 0, 0, 0)
	mf.SetStatus(InICNTToMem, 1)
	assert.Panics(t, func() { mf.SetStatus(InICNTToMem, 2) })
	assert.Panics(t, func() { mf.SetStatus(InShader, 3) })
}

func TestSetStatusInICNTToShaderSetsReturnCycle(t *testing.T) {
	mf := New(1, 0x1000, ReadRequest, 32, 0, 0, 0)
	for _, s := range []Status{InICNTToMem, InPartitionICNTToL2, InL2, InL2ToDRAM, InDRAM, InDRAMToL2, InL2ToICNT, InICNTToShader} {
		mf.SetStatus(s, uint64(s))
	}
	assert.Equal(t, uint64(InICNTToShader), mf.ReturnCycle)
}

func TestMakeReplyReusesIDAndSwapsDirection(t *testing.T) {
	req := New(7, 0x2000, ReadRequest, 128, 3, 5, 0)
	req.WarpID = 9
	reply := req.MakeReply(req.ID, 32, 10)

	require.NotNil(t, reply)
	assert.Equal(t, req.ID, reply.ID)
	assert.Equal(t, ReadReply, reply.Type)
	assert.Equal(t, req.Addr, reply.Addr)
	assert.Equal(t, 9, reply.WarpID)
	// the reply travels from the original target back to the original
	// source: TargetPart/SourceSM swap relative to the request.
	assert.Equal(t, req.SourceSM, reply.TargetPart)
	assert.Equal(t, req.TargetPart, reply.SourceSM)
	assert.Same(t, reply, req.Reply)
}

func TestMakeReplyWriteRequestProducesWriteAck(t *testing.T) {
	req := New(1, 0x0, WriteRequest, 64, 0, 1, 0)
	reply := req.MakeReply(req.ID, 16, 1)
	assert.Equal(t, WriteAck, reply.Type)
}

func TestFlitizeHeadAndTailFlags(t *testing.T) {
	mf := New(1, 0, ReadRequest, 100, 0, 1, 0)
	flits := Flitize(mf, 0, 1, 0, 100, 32, 0)
	require.Len(t, flits, 4) // ceil(100/32) == 4
	assert.True(t, flits[0].Head)
	assert.False(t, flits[0].Tail)
	assert.True(t, flits[len(flits)-1].Tail)
	for _, f := range flits {
		assert.Same(t, mf, f.Data)
	}
}

func TestFlitizeSingleFlitIsHeadAndTail(t *testing.T) {
	mf := New(1, 0, ReadRequest, 8, 0, 1, 0)
	flits := Flitize(mf, 0, 1, 0, 8, 32, 0)
	require.Len(t, flits, 1)
	assert.True(t, flits[0].Head)
	assert.True(t, flits[0].Tail)
}

func TestByteMaskSetAndPopcount(t *testing.T) {
	var m ByteMask
	m.Set(0)
	m.Set(63)
	m.Set(64)
	m.Set(127)
	assert.Equal(t, 4, m.Popcount())
}

func TestIsWrite(t *testing.T) {
	assert.True(t, New(1, 0, WriteRequest, 1, 0, 0, 0).IsWrite())
	assert.False(t, New(1, 0, ReadRequest, 1, 0, 0, 0).IsWrite())
}
