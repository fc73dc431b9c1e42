package sm

import (
	"strings"

	"github.com/supracore/warpsim/internal/sched"
	"github.com/supracore/warpsim/internal/trace"
)

// classify maps a trace instruction's opcode/mem-space onto the closed
// OpClass taxonomy the scheduler routes against. Trace opcodes follow
// the PTX-ISA-style mnemonic prefixes the original's opcode.hpp keys
// off (LD/ST for memory, BAR for barriers, branch mnemonics, FFMA/DFMA
// for single/double precision, ISETP/IADD for integer, MUFU/RSQRT for
// SFU, and anything under the HMMA/WMMA family for tensor cores).
func classify(in trace.Instruction) sched.OpClass {
	op := strings.ToUpper(in.Opcode)
	switch {
	case in.MemSpace != trace.SpaceNone && strings.HasPrefix(op, "LD"):
		return sched.LoadOp
	case in.MemSpace != trace.SpaceNone && strings.HasPrefix(op, "ST"):
		return sched.StoreOp
	case strings.HasPrefix(op, "MEMBAR"):
		return sched.MemoryBarrierOp
	case strings.HasPrefix(op, "BAR"):
		return sched.BarrierOp
	case strings.HasPrefix(op, "BRA") || strings.HasPrefix(op, "CALL") || strings.HasPrefix(op, "RET") || strings.HasPrefix(op, "EXIT"):
		return sched.BranchOp
	case strings.HasPrefix(op, "HMMA") || strings.HasPrefix(op, "WMMA") || strings.HasPrefix(op, "IMMA"):
		return sched.TensorCoreOp
	case strings.HasPrefix(op, "MUFU") || strings.HasPrefix(op, "RSQRT") || strings.HasPrefix(op, "RCP") || strings.HasPrefix(op, "SIN") || strings.HasPrefix(op, "COS") || strings.HasPrefix(op, "LG2") || strings.HasPrefix(op, "EX2"):
		return sched.SFUOp
	case strings.HasPrefix(op, "DFMA") || strings.HasPrefix(op, "DADD") || strings.HasPrefix(op, "DMUL") || strings.HasPrefix(op, "DSETP"):
		return sched.DPOp
	case strings.HasPrefix(op, "IADD") || strings.HasPrefix(op, "IMAD") || strings.HasPrefix(op, "ISETP") || strings.HasPrefix(op, "SHL") || strings.HasPrefix(op, "SHR") || strings.HasPrefix(op, "LOP"):
		return sched.IntOp
	case strings.HasPrefix(op, "FFMA") || strings.HasPrefix(op, "FADD") || strings.HasPrefix(op, "FMUL") || strings.HasPrefix(op, "FSETP"):
		return sched.SPOp
	default:
		return sched.ALUOp
	}
}

func toSchedInstruction(in trace.Instruction) sched.Instruction {
	class := classify(in)
	return sched.Instruction{
		PC:     in.PC,
		Addr:   in.MemAddr,
		Size:   in.MemWidth,
		Class:  class,
		Dst:    append([]int(nil), in.DstRegs...),
		Src:    append([]int(nil), in.SrcRegs...),
		IsLoad: class == sched.LoadOp,
	}
}
