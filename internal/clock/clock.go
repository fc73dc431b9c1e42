// Package clock implements the multi-domain clock stepper (SPEC_FULL.md
// C1): it interleaves four virtual clocks (CORE, ICNT, L2, DRAM) by
// min-time, advancing every domain whose clock has caught up to the
// minimum and returning which domains should tick this step.
package clock

// Domain identifies one of the four interleaved clock domains.
type Domain int

const (
	Core Domain = iota
	ICNT
	L2
	DRAM
	numDomains
)

func (d Domain) String() string {
	switch d {
	case Core:
		return "CORE"
	case ICNT:
		return "ICNT"
	case L2:
		return "L2"
	case DRAM:
		return "DRAM"
	default:
		return "UNKNOWN"
	}
}

// Mask is a bitset of domains activated by one Step call.
type Mask uint8

func (m Mask) Has(d Domain) bool { return m&(1<<uint(d)) != 0 }

// tieOrder breaks simultaneous-time ties deterministically:
// L2 < ICNT < DRAM < CORE, per spec.md §5's ordering guarantee.
var tieOrder = [numDomains]Domain{L2, ICNT, DRAM, Core}

// Stepper holds the four virtual clocks and their periods.
type Stepper struct {
	clock  [numDomains]float64
	period [numDomains]float64
	// AccelsimCompat collapses the schedule to CORE-only ticks every
	// Step call, for deterministic tests that don't care about
	// ICNT/L2/DRAM domain interleaving.
	AccelsimCompat bool
}

// Periods sets the four domain periods (1/frequency, in arbitrary time
// units); all must be positive.
type Periods struct {
	Core, ICNT, L2, DRAM float64
}

// New builds a Stepper with all clocks starting at zero.
func New(p Periods) *Stepper {
	s := &Stepper{}
	s.period[Core] = p.Core
	s.period[ICNT] = p.ICNT
	s.period[L2] = p.L2
	s.period[DRAM] = p.DRAM
	return s
}

// Step advances the schedule by one decision and returns the mask of
// domains that should tick this call.
//
//  1. s = min(core, icnt, dram) -- L2's clock is not part of the min;
//     it ticks whenever its own clock has reached s.
//  2. every domain whose clock <= s is set to s and marked, then
//     advanced by its own period.
func (s *Stepper) Step() Mask {
	if s.AccelsimCompat {
		s.clock[Core] += s.period[Core]
		return 1 << uint(Core)
	}

	minTime := s.clock[Core]
	if s.clock[ICNT] < minTime {
		minTime = s.clock[ICNT]
	}
	if s.clock[DRAM] < minTime {
		minTime = s.clock[DRAM]
	}

	var mask Mask
	for _, d := range tieOrder {
		if s.clock[d] <= minTime {
			s.clock[d] = minTime
			mask |= 1 << uint(d)
			s.clock[d] += s.period[d]
		}
	}
	return mask
}

// Time returns domain d's current virtual clock value.
func (s *Stepper) Time(d Domain) float64 { return s.clock[d] }
