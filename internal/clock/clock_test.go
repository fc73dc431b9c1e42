package clock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepTicksEqualPeriodsTogether(t *testing.T) {
	s := New(Periods{Core: 1, ICNT: 1, L2: 1, DRAM: 1})
	mask := s.Step()
	assert.True(t, mask.Has(Core))
	assert.True(t, mask.Has(ICNT))
	assert.True(t, mask.Has(L2))
	assert.True(t, mask.Has(DRAM))
}

func TestMaskHasReportsOnlySetDomainBits(t *testing.T) {
	// A mask with only the L2 bit set reports L2 and not ICNT.
	var m Mask
	m |= 1 << uint(L2)
	require.True(t, m.Has(L2))
	require.False(t, m.Has(ICNT))
}

func TestStepFasterDomainTicksMoreOften(t *testing.T) {
	s := New(Periods{Core: 2, ICNT: 1, L2: 1, DRAM: 2})
	var coreTicks, icntTicks int
	for i := 0; i < 4; i++ {
		mask := s.Step()
		if mask.Has(Core) {
			coreTicks++
		}
		if mask.Has(ICNT) {
			icntTicks++
		}
	}
	assert.Greater(t, icntTicks, coreTicks)
}

func TestAccelsimCompatCollapsesToCoreOnly(t *testing.T) {
	s := New(Periods{Core: 1, ICNT: 1, L2: 1, DRAM: 1})
	s.AccelsimCompat = true
	mask := s.Step()
	assert.True(t, mask.Has(Core))
	assert.False(t, mask.Has(ICNT))
	assert.False(t, mask.Has(L2))
	assert.False(t, mask.Has(DRAM))
}

func TestTimeAdvancesByPeriodOnEachTick(t *testing.T) {
	s := New(Periods{Core: 3, ICNT: 1, L2: 1, DRAM: 1})
	for i := 0; i < 3; i++ {
		s.Step()
	}
	assert.InDelta(t, 3.0, s.Time(Core), 1e-9)
}

func TestDomainStringers(t *testing.T) {
	assert.Equal(t, "CORE", Core.String())
	assert.Equal(t, "ICNT", ICNT.String())
	assert.Equal(t, "L2", L2.String())
	assert.Equal(t, "DRAM", DRAM.String())
}
