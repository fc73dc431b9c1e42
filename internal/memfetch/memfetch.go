// Package memfetch defines the shared data model that flows between
// every stage of the cycle engine: one memory request (MemFetch) and
// the packet-switched fragments (Flit) an interconnect splits it into.
//
// A MemFetch has exactly one owner at any instant; ownership transfers
// across FIFO boundaries as the request's Status advances monotonically
// forward. Nothing in this package mutates a MemFetch's Status out of
// order — SetStatus panics on a backward or repeated transition so a
// bug in a caller surfaces immediately instead of corrupting state.
package memfetch

import "fmt"

// AccessType classifies a MemFetch's direction and purpose.
type AccessType uint8

const (
	ReadRequest AccessType = iota
	WriteRequest
	ReadReply
	WriteAck
)

func (a AccessType) String() string {
	switch a {
	case ReadRequest:
		return "READ_REQUEST"
	case WriteRequest:
		return "WRITE_REQUEST"
	case ReadReply:
		return "READ_REPLY"
	case WriteAck:
		return "WRITE_ACK"
	default:
		return "UNKNOWN_ACCESS"
	}
}

// Status is the lifecycle stage of a MemFetch. Values are ordered; a
// valid transition always increases the underlying int.
type Status uint8

const (
	InShader Status = iota
	InICNTToMem
	InPartitionICNTToL2
	InL2
	InL2ToDRAM
	InDRAM
	InDRAMToL2
	InL2ToICNT
	InICNTToShader
	numStatuses
)

var statusNames = [numStatuses]string{
	"IN_SHADER",
	"IN_ICNT_TO_MEM",
	"IN_PARTITION_ICNT_TO_L2",
	"IN_L2",
	"IN_L2_TO_DRAM",
	"IN_DRAM",
	"IN_DRAM_TO_L2",
	"IN_L2_TO_ICNT",
	"IN_ICNT_TO_SHADER",
}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "UNKNOWN_STATUS"
}

// SectorMask marks which of a cache line's 32-byte sectors a
// request touches; ByteMask marks individual dirty bytes within a
// 128-byte line.
type SectorMask uint8
type ByteMask [2]uint64 // 128 bits, lanes [0]=bytes 0-63, [1]=bytes 64-127

// Set marks byte i (0-127) dirty.
func (m *ByteMask) Set(i int) {
	if i < 64 {
		m[0] |= 1 << uint(i)
	} else {
		m[1] |= 1 << uint(i-64)
	}
}

// Popcount returns the number of dirty bytes.
func (m ByteMask) Popcount() int {
	return popcount64(m[0]) + popcount64(m[1])
}

func popcount64(x uint64) int {
	n := 0
	for x != 0 {
		x &= x - 1
		n++
	}
	return n
}

// MemFetch is one in-flight memory request, tracked end-to-end from
// the issuing SM through the interconnect, L2, and DRAM, back to the
// SM's writeback.
type MemFetch struct {
	ID           uint64
	Addr         uint64
	Type         AccessType
	Size         uint32
	CtrlSize     uint32
	SectorMask   SectorMask
	ByteMask     ByteMask
	SourceSM     int
	TargetPart   int
	Status       Status
	IssueCycle   uint64
	StageCycles  [numStatuses]uint64 // cycle this MemFetch entered each status
	ReturnCycle  uint64
	WarpID       int
	Reply        *MemFetch // the reply paired with a request, set when generated
}

// New constructs a MemFetch created by an SM at issue time.
func New(id uint64, addr uint64, typ AccessType, size uint32, sourceSM, targetPart int, issueCycle uint64) *MemFetch {
	mf := &MemFetch{
		ID:         id,
		Addr:       addr,
		Type:       typ,
		Size:       size,
		SourceSM:   sourceSM,
		TargetPart: targetPart,
		Status:     InShader,
		IssueCycle: issueCycle,
	}
	mf.StageCycles[InShader] = issueCycle
	return mf
}

// SetStatus advances the MemFetch's lifecycle by exactly one or more
// forward steps at the given cycle. A backward or repeated transition
// is an invalid-state bug in the caller and panics, since no component
// boundary is supposed to move a request backward (spec invariant:
// monotone status).
func (mf *MemFetch) SetStatus(s Status, cycle uint64) {
	if s <= mf.Status {
		panic(fmt.Sprintf("memfetch %d: non-monotone status transition %s -> %s", mf.ID, mf.Status, s))
	}
	mf.Status = s
	mf.StageCycles[s] = cycle
	if s == InICNTToShader {
		mf.ReturnCycle = cycle
	}
}

// MakeReply produces the READ_REPLY or WRITE_ACK paired with this
// request, carrying the control size rather than the full payload
// size (a reply only needs to carry acknowledgement/control flits).
func (mf *MemFetch) MakeReply(id uint64, ctrlSize uint32, cycle uint64) *MemFetch {
	replyType := WriteAck
	if mf.Type == ReadRequest {
		replyType = ReadReply
	}
	reply := New(id, mf.Addr, replyType, ctrlSize, mf.TargetPart, mf.SourceSM, cycle)
	reply.CtrlSize = ctrlSize
	reply.WarpID = mf.WarpID
	mf.Reply = reply
	return reply
}

// IsWrite reports whether this is a write-direction request.
func (mf *MemFetch) IsWrite() bool {
	return mf.Type == WriteRequest
}

// Flit is a fixed-size fragment of a packet carrying a MemFetch. All
// flits belonging to one packet share VC/Src/Dst/Data; exactly one is
// Head and one is Tail (the same flit when a packet is a single flit).
type Flit struct {
	Head  bool
	Tail  bool
	VC    int
	Src   int
	Dst   int
	Cycle uint64
	Data  *MemFetch
}

// Flitize splits size bytes into ceil(size/flitSize) flits for the
// given packet, tagging head/tail correctly.
func Flitize(data *MemFetch, src, dst, vc int, size, flitSize uint32, cycle uint64) []Flit {
	if flitSize == 0 {
		flitSize = 1
	}
	n := (size + flitSize - 1) / flitSize
	if n == 0 {
		n = 1
	}
	flits := make([]Flit, n)
	for i := range flits {
		flits[i] = Flit{
			Head:  i == 0,
			Tail:  i == int(n)-1,
			VC:    vc,
			Src:   src,
			Dst:   dst,
			Cycle: cycle,
			Data:  data,
		}
	}
	return flits
}
