// Package trace implements the TraceProvider external collaborator
// from spec.md §6: an ordered sequence of per-block instruction tuples
// fed into the simulator. It is explicitly an outer-surface concern
// (spec.md §1 Non-goals), so it uses the standard library
// encoding/json rather than a pack dependency — see DESIGN.md for why
// no faster/alternative decoder from the retrieval pack is worth
// adopting for a trace read once, line-by-line, at simulation start.
package trace

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// AccessSpace classifies an instruction's memory space, when it has
// one.
type AccessSpace string

const (
	SpaceNone   AccessSpace = ""
	SpaceGlobal AccessSpace = "global"
	SpaceLocal  AccessSpace = "local"
	SpaceShared AccessSpace = "shared"
	SpaceTex    AccessSpace = "texture"
	SpaceConst  AccessSpace = "const"
)

// BlockLaunch is a kernel block launch descriptor.
type BlockLaunch struct {
	GridDim    [3]int `json:"grid_dim"`
	BlockDim   [3]int `json:"block_dim"`
	SharedBytes int   `json:"shared_bytes"`
	ParamSize  int    `json:"param_size"`
}

// Instruction is one decoded trace tuple.
type Instruction struct {
	WarpID       int         `json:"warp_id"`
	PC           uint64      `json:"pc"`
	Opcode       string      `json:"opcode"`
	DstRegs      []int       `json:"dst_regs"`
	SrcRegs      []int       `json:"src_regs"`
	ActiveMask   uint32      `json:"active_mask"`
	MemSpace     AccessSpace `json:"mem_space"`
	MemAddr      uint64      `json:"mem_addr"`
	MemWidth     uint32      `json:"mem_width"`
	LatencyClass string      `json:"latency_class"`
}

// Provider yields block launches and their instruction streams, in
// order, until the trace is exhausted.
type Provider interface {
	NextBlock() (BlockLaunch, []Instruction, bool, error)
}

// blockRecord is the JSON-lines wire shape: one line per block launch,
// embedding its full instruction stream.
type blockRecord struct {
	Launch       BlockLaunch   `json:"launch"`
	Instructions []Instruction `json:"instructions"`
}

// JSONLProvider reads one blockRecord per line from an io.Reader.
type JSONLProvider struct {
	scanner *bufio.Scanner
}

// NewJSONLProvider wraps r as a Provider. The caller owns closing r.
func NewJSONLProvider(r io.Reader) *JSONLProvider {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return &JSONLProvider{scanner: sc}
}

// NextBlock returns the next block's launch descriptor and
// instruction stream, or ok=false once the trace is exhausted.
func (p *JSONLProvider) NextBlock() (BlockLaunch, []Instruction, bool, error) {
	for p.scanner.Scan() {
		line := p.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec blockRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return BlockLaunch{}, nil, false, fmt.Errorf("trace: malformed block record: %w", err)
		}
		return rec.Launch, rec.Instructions, true, nil
	}
	if err := p.scanner.Err(); err != nil {
		return BlockLaunch{}, nil, false, fmt.Errorf("trace: read error: %w", err)
	}
	return BlockLaunch{}, nil, false, nil
}
