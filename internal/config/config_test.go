package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supracore/warpsim/internal/cacheblk"
	"github.com/supracore/warpsim/internal/simerr"
)

func TestDefaultConfigPassesValidation(t *testing.T) {
	cfg := Default()
	assert.NoError(t, Validate(&cfg))
}

func TestLoadAppliesOverridesOntoDefault(t *testing.T) {
	cfg, err := Load([]byte("warp_size = 16\n"))
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.WarpSize)
	assert.Equal(t, Default().FlitSize, cfg.FlitSize, "untouched keys keep their default")
}

func TestLoadRejectsUnknownKeyAsConfigError(t *testing.T) {
	_, err := Load([]byte("not_a_real_key = 1\n"))
	require.Error(t, err)
	var cerr *simerr.ConfigError
	require.ErrorAs(t, err, &cerr)
}

func TestLoadRejectsMalformedTOMLAsConfigError(t *testing.T) {
	_, err := Load([]byte("warp_size = [this isn't valid\n"))
	require.Error(t, err)
	var cerr *simerr.ConfigError
	require.ErrorAs(t, err, &cerr)
}

func TestValidatePositiveFieldsRejectsZeroOrNegative(t *testing.T) {
	cfg := Default()
	cfg.WarpSize = 0
	err := Validate(&cfg)
	require.Error(t, err)
	var cerr *simerr.ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "warp_size", cerr.Field)
}

func TestValidateSubnetsMustBeOneOrTwo(t *testing.T) {
	cfg := Default()
	cfg.Subnets = 3
	err := Validate(&cfg)
	var cerr *simerr.ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "subnets", cerr.Field)
}

func TestValidateThreadsPerShaderMustBeMultipleOfWarpSize(t *testing.T) {
	cfg := Default()
	cfg.NThreadPerShader = 100
	cfg.WarpSize = 32
	err := Validate(&cfg)
	var cerr *simerr.ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "n_thread_per_shader", cerr.Field)
}

func TestValidateUseMapRequiresMatchingLength(t *testing.T) {
	cfg := Default()
	cfg.UseMap = true
	cfg.MemoryNodeMap = []int{0, 1}
	cfg.NMemoryPartitions = 8
	err := Validate(&cfg)
	var cerr *simerr.ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "memory_node_map", cerr.Field)
}

func TestValidateDRAMModelMustBeKnown(t *testing.T) {
	cfg := Default()
	cfg.DRAMModel = "quantum"
	err := Validate(&cfg)
	var cerr *simerr.ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "dram_model", cerr.Field)
}

func TestValidatePeriodsMustBePositive(t *testing.T) {
	cfg := Default()
	cfg.DRAMPeriod = 0
	err := Validate(&cfg)
	var cerr *simerr.ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "dram_period", cerr.Field)
}

func TestValidateRejectsMalformedCacheGrammar(t *testing.T) {
	cfg := Default()
	cfg.L1DCacheConfig = "garbage"
	err := Validate(&cfg)
	var cerr *simerr.ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "l1d_cache_config", cerr.Field)
}

func TestValidateSkipsEmptyCacheGrammar(t *testing.T) {
	cfg := Default()
	cfg.L1ICacheConfig = ""
	assert.NoError(t, Validate(&cfg))
}

func TestParseCacheConfigParsesFullGrammar(t *testing.T) {
	spec, err := ParseCacheConfig("N:64:128:4,L:L:m:N:L,A:32:8,fifo:4")
	require.NoError(t, err)
	assert.Equal(t, cacheblk.LineKind, spec.Kind)
	assert.Equal(t, 64, spec.NumSets)
	assert.Equal(t, 128, spec.LineSize)
	assert.Equal(t, 4, spec.Assoc)
	assert.Equal(t, byte('L'), spec.ReplacementPolicy)
	assert.Equal(t, byte('L'), spec.WritePolicy)
	assert.Equal(t, byte('m'), spec.AllocatePolicy)
	assert.Equal(t, byte('N'), spec.WriteAllocPolicy)
	assert.Equal(t, byte('L'), spec.SetIndexFn)
	assert.Equal(t, byte('A'), spec.MSHRKind)
	assert.Equal(t, 32, spec.MSHREntries)
	assert.Equal(t, 8, spec.MSHRMerge)
	assert.Equal(t, "fifo", spec.QueueKind)
	assert.Equal(t, 4, spec.PortWidth)
}

func TestParseCacheConfigSectorKind(t *testing.T) {
	spec, err := ParseCacheConfig("S:64:128:4,L:L:m:N:L,A:32:8,fifo:4")
	require.NoError(t, err)
	assert.Equal(t, cacheblk.SectorKind, spec.Kind)
}

func TestParseCacheConfigRejectsWrongFieldCount(t *testing.T) {
	_, err := ParseCacheConfig("N:64:128:4,L:L:m:N:L")
	assert.Error(t, err)
}

func TestParseCacheConfigRejectsUnknownKind(t *testing.T) {
	_, err := ParseCacheConfig("X:64:128:4,L:L:m:N:L,A:32:8,fifo:4")
	assert.Error(t, err)
}

func TestParseCacheConfigRejectsNonNumericGeometry(t *testing.T) {
	_, err := ParseCacheConfig("N:abc:128:4,L:L:m:N:L,A:32:8,fifo:4")
	assert.Error(t, err)
}
