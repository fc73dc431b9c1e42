package sim

import (
	"context"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supracore/warpsim/internal/config"
	"github.com/supracore/warpsim/internal/logx"
	"github.com/supracore/warpsim/internal/trace"
)

func quietLogger() *logx.Logger {
	return logx.New(logx.Options{Level: zerolog.Disabled, Output: io.Discard})
}

// fixedTrace hands out a single block's worth of instructions once,
// then reports exhaustion.
type fixedTrace struct {
	launch trace.BlockLaunch
	instrs []trace.Instruction
	served bool
}

func (f *fixedTrace) NextBlock() (trace.BlockLaunch, []trace.Instruction, bool, error) {
	if f.served {
		return trace.BlockLaunch{}, nil, false, nil
	}
	f.served = true
	return f.launch, f.instrs, true, nil
}

func smallConfig() config.Config {
	cfg := config.Default()
	cfg.NSimtClusters = 1
	cfg.NSimtCoresPerCluster = 1
	cfg.NMemoryPartitions = 1
	cfg.NSubPartitionPerChannel = 1
	cfg.WarpSize = 32
	cfg.NThreadPerShader = 32
	cfg.MaxCTAPerCore = 1
	cfg.L1DCacheConfig = ""
	cfg.L2CacheConfig = ""
	cfg.GPGPUDeadlockDetect = true
	return cfg
}

func TestRunCompletesNaturallyForAComputeOnlyBlock(t *testing.T) {
	tp := &fixedTrace{
		instrs: []trace.Instruction{
			{WarpID: 0, PC: 0x10, Opcode: "FADD", DstRegs: []int{1}},
			{WarpID: 0, PC: 0x11, Opcode: "FADD", DstRegs: []int{2}},
			{WarpID: 0, PC: 0x12, Opcode: "EXIT"},
		},
	}
	s, err := New(smallConfig(), tp, quietLogger())
	require.NoError(t, err)

	counters, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, counters.Get("gpu_sim_insn"), uint64(3))
	assert.Greater(t, counters.Get("gpu_sim_cycle"), uint64(0))
}

func TestRunRespectsGPUMaxCycleOpt(t *testing.T) {
	cfg := smallConfig()
	cfg.GPUMaxCycleOpt = 1
	tp := &fixedTrace{
		instrs: []trace.Instruction{
			{WarpID: 0, PC: 0x10, Opcode: "FADD"},
		},
	}
	s, err := New(cfg, tp, quietLogger())
	require.NoError(t, err)

	counters, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.LessOrEqual(t, counters.Get("gpu_sim_cycle"), uint64(1))
}

func TestRunHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tp := &fixedTrace{instrs: []trace.Instruction{{WarpID: 0, PC: 0x10, Opcode: "FADD"}}}
	s, err := New(smallConfig(), tp, quietLogger())
	require.NoError(t, err)

	_, err = s.Run(ctx)
	assert.Error(t, err)
}

func TestRunIssuesMemoryRequestsAndReceivesReplies(t *testing.T) {
	tp := &fixedTrace{
		instrs: []trace.Instruction{
			{WarpID: 0, PC: 0x10, Opcode: "LD", MemSpace: trace.SpaceGlobal, MemAddr: 0x1000, DstRegs: []int{1}},
			{WarpID: 0, PC: 0x11, Opcode: "EXIT"},
		},
	}
	s, err := New(smallConfig(), tp, quietLogger())
	require.NoError(t, err)

	counters, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, counters.Get("gpu_sim_insn"), uint64(2))
}

func TestStatsSnapshotAndAvgMemLatencyAccessors(t *testing.T) {
	tp := &fixedTrace{instrs: []trace.Instruction{{WarpID: 0, PC: 0x10, Opcode: "EXIT"}}}
	s, err := New(smallConfig(), tp, quietLogger())
	require.NoError(t, err)
	_, err = s.Run(context.Background())
	require.NoError(t, err)

	snap := s.Stats()
	assert.Contains(t, snap, "gpu_sim_cycle")
	assert.GreaterOrEqual(t, s.AvgMemLatency(), 0.0)
}
