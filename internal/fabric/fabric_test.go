package fabric

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supracore/warpsim/internal/memfetch"
)

func testFabric() *Fabric {
	return New(Config{
		FlitSize:           16,
		Subnets:            1,
		NumVCs:             2,
		VCBufSize:          8,
		InputBufferSize:    16,
		EjectionBufferSize: 16,
		BoundaryBufferSize: 16,
		NShader:            1,
		NMem:               1,
	})
}

func drainUntilPop(t *testing.T, f *Fabric, device int, maxAdvances int) *memfetch.MemFetch {
	t.Helper()
	for i := 0; i < maxAdvances; i++ {
		if mf := f.Pop(device); mf != nil {
			return mf
		}
		f.Advance()
	}
	return f.Pop(device)
}

func TestPushPopRoundTrip(t *testing.T) {
	f := testFabric()
	mf := memfetch.New(1, 0x100, memfetch.ReadRequest, 16, 0, 1, 0)
	require.True(t, f.HasBuffer(0, 16))
	f.Push(0, 1, mf, 16)

	got := drainUntilPop(t, f, 1, 20)
	require.NotNil(t, got)
	assert.Same(t, mf, got)
}

func TestHasBufferFalseWhenInputBufferFull(t *testing.T) {
	f := New(Config{FlitSize: 16, Subnets: 1, NumVCs: 1, InputBufferSize: 1, EjectionBufferSize: 16, BoundaryBufferSize: 16, NShader: 1, NMem: 1})
	assert.True(t, f.HasBuffer(0, 16))
	f.Push(0, 1, memfetch.New(1, 0, memfetch.ReadRequest, 16, 0, 1, 0), 16)
	assert.False(t, f.HasBuffer(0, 16), "single-flit injection queue now occupied")
}

func TestPopReturnsNilWhenNothingArrived(t *testing.T) {
	f := testFabric()
	assert.Nil(t, f.Pop(1))
}

func TestFlitSizeAccessor(t *testing.T) {
	f := testFabric()
	assert.Equal(t, uint32(16), f.FlitSize())
}

func TestBusyReflectsInFlightTraffic(t *testing.T) {
	f := testFabric()
	assert.False(t, f.Busy())
	f.Push(0, 1, memfetch.New(1, 0, memfetch.ReadRequest, 16, 0, 1, 0), 16)
	assert.True(t, f.Busy())
	drainUntilPop(t, f, 1, 20)
	assert.False(t, f.Busy())
}

func TestPopDeliversEveryPacketOfOneVCStreamExactlyOnce(t *testing.T) {
	f := New(Config{FlitSize: 16, Subnets: 1, NumVCs: 2, InputBufferSize: 32, EjectionBufferSize: 32, BoundaryBufferSize: 32, NShader: 1, NMem: 1})
	// push several requests; each lands on a VC determined by vcFor(src,dst),
	// which is fixed for a given (src,dst) pair, so with NShader=1 every
	// packet shares one VC; verify each is delivered exactly once.
	for i := 0; i < 3; i++ {
		f.Push(0, 1, memfetch.New(uint64(i+1), uint64(i), memfetch.ReadRequest, 16, 0, 1, 0), 16)
	}
	var got []*memfetch.MemFetch
	for i := 0; i < 3; i++ {
		mf := drainUntilPop(t, f, 1, 20)
		require.NotNil(t, mf)
		got = append(got, mf)
	}
	ids := map[uint64]bool{}
	for _, mf := range got {
		assert.False(t, ids[mf.ID], "each packet delivered exactly once")
		ids[mf.ID] = true
	}
	assert.Len(t, ids, 3)
}
