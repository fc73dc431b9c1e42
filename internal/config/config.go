// Package config loads and validates the simulator's configuration.
// Keys come from spec.md §6 and are decoded from TOML with
// github.com/BurntSushi/toml's strict-decode mode, so unrecognized
// keys are a hard ConfigError instead of being silently ignored — the
// original's documented bug ("config parser silently ignores fields
// beyond a minimum token count") is closed here by construction.
package config

import (
	"bytes"
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/supracore/warpsim/internal/cacheblk"
	"github.com/supracore/warpsim/internal/simerr"
)

// Config is the immutable, fully-resolved simulator configuration. It
// is the single "Simulator context" threaded explicitly through every
// component constructor, replacing the original's process-wide option
// globals.
type Config struct {
	// Interconnect (spec.md §6, internal/fabric)
	FlitSize           uint32 `toml:"flit_size"`
	Subnets            int    `toml:"subnets"`
	NumVCs             int    `toml:"num_vcs"`
	VCBufSize          int    `toml:"vc_buf_size"`
	InputBufferSize    int    `toml:"input_buffer_size"`
	EjectionBufferSize int    `toml:"ejection_buffer_size"`
	BoundaryBufferSize int    `toml:"boundary_buffer_size"`
	UseMap             bool   `toml:"use_map"`
	MemoryNodeMap      []int  `toml:"memory_node_map"`

	// Core/shader geometry (internal/sm, internal/sched)
	NThreadPerShader      int `toml:"n_thread_per_shader"`
	WarpSize              int `toml:"warp_size"`
	NSimtClusters         int `toml:"n_simt_clusters"`
	NSimtCoresPerCluster  int `toml:"n_simt_cores_per_cluster"`
	MaxCTAPerCore         int `toml:"max_cta_per_core"`
	GPGPUShaderRegisters  int `toml:"gpgpu_shader_registers"`

	// Execution unit counts and scheduler policy (internal/sched)
	NumSPUnits               int  `toml:"gpgpu_num_sp_units"`
	NumIntUnits               int  `toml:"gpgpu_num_int_units"`
	NumDPUnits                int  `toml:"gpgpu_num_dp_units"`
	NumSFUUnits               int  `toml:"gpgpu_num_sfu_units"`
	NumTensorCoreUnits        int  `toml:"gpgpu_num_tensor_core_units"`
	SubCoreModel              bool `toml:"sub_core_model"`
	DualIssueDiffExecUnits    bool `toml:"gpgpu_dual_issue_diff_exec_units"`
	MaxInsnIssuePerWarp       int  `toml:"gpgpu_max_insn_issue_per_warp"`

	// Caches (compact grammar, internal/cache via ParseCacheConfig)
	L1ICacheConfig string `toml:"l1i_cache_config"`
	L1TCacheConfig string `toml:"l1t_cache_config"`
	L1CCacheConfig string `toml:"l1c_cache_config"`
	L1DCacheConfig string `toml:"l1d_cache_config"`
	L2CacheConfig  string `toml:"l2_cache_config"`

	// Memory partition / DRAM (internal/memctrl)
	NMemoryPartitions       int    `toml:"n_memory_partitions"`
	NSubPartitionPerChannel int    `toml:"n_sub_partition_per_channel"`
	DRAMModel               string `toml:"dram_model"` // "simple" | "timing"
	DRAMLatency             uint64 `toml:"dram_latency"`
	DRAMBanks               int    `toml:"dram_banks"`
	DRAMActLatency          uint64 `toml:"dram_act_latency"`
	DRAMCASLatency          uint64 `toml:"dram_cas_latency"`
	DRAMPreLatency          uint64 `toml:"dram_pre_latency"`
	DRAMRefreshEvery        uint64 `toml:"dram_refresh_every"`
	DRAMRefreshLatency      uint64 `toml:"dram_refresh_latency"`
	DRAMQueueDepth          int    `toml:"dram_queue_depth"`
	ROPLatency              uint64 `toml:"rop_latency"`
	PrivateDRAMCredit       int    `toml:"private_dram_credit"`
	SharedDRAMCredit        int    `toml:"shared_dram_credit"`

	// Clock domain periods (internal/clock)
	CorePeriod float64 `toml:"core_period"`
	ICNTPeriod float64 `toml:"icnt_period"`
	L2Period   float64 `toml:"l2_period"`
	DRAMPeriod float64 `toml:"dram_period"`

	// Termination and diagnostics
	GPUMaxCycleOpt      uint64 `toml:"gpu_max_cycle_opt"`
	GPUMaxInsnOpt       uint64 `toml:"gpu_max_insn_opt"`
	GPUMaxCTAOpt        uint64 `toml:"gpu_max_cta_opt"`
	GPGPUDeadlockDetect bool   `toml:"gpgpu_deadlock_detect"`
	GPGPUFlushL1Cache   bool   `toml:"gpgpu_flush_l1_cache"`
	GPGPUFlushL2Cache   bool   `toml:"gpgpu_flush_l2_cache"`

	// Logging (internal/logx)
	LogLevel  string `toml:"log_level"`
	LogPretty bool   `toml:"log_pretty"`
}

// Default returns a Config with every field set to a sane baseline,
// applied before TOML decoding so a config file only needs to specify
// the keys it wants to override.
func Default() Config {
	return Config{
		FlitSize:           32,
		Subnets:            2,
		NumVCs:             2,
		VCBufSize:          8,
		InputBufferSize:    16,
		EjectionBufferSize: 16,
		BoundaryBufferSize: 16,

		NThreadPerShader:     1536,
		WarpSize:             32,
		NSimtClusters:        8,
		NSimtCoresPerCluster: 1,
		MaxCTAPerCore:        8,
		GPGPUShaderRegisters: 65536,

		NumSPUnits:         1,
		NumIntUnits:        1,
		NumDPUnits:         1,
		NumSFUUnits:        1,
		NumTensorCoreUnits: 1,
		MaxInsnIssuePerWarp: 2,

		L1DCacheConfig: "N:64:128:4,L:L:m:N:L,A:32:8,fifo:4",
		L2CacheConfig:  "N:128:128:16,L:B:m:L:L,A:256:16,fifo:4",

		NMemoryPartitions:       8,
		NSubPartitionPerChannel: 2,
		DRAMModel:               "simple",
		DRAMLatency:             100,
		DRAMBanks:               16,
		DRAMActLatency:          10,
		DRAMCASLatency:          12,
		DRAMPreLatency:          10,
		DRAMRefreshEvery:        0,
		DRAMRefreshLatency:      50,
		DRAMQueueDepth:          8,
		ROPLatency:              30,
		PrivateDRAMCredit:       4,
		SharedDRAMCredit:        8,

		CorePeriod: 1.0,
		ICNTPeriod: 1.0,
		L2Period:   1.0,
		DRAMPeriod: 2.0,

		GPUMaxCycleOpt:      0,
		GPUMaxInsnOpt:       0,
		GPUMaxCTAOpt:        0,
		GPGPUDeadlockDetect: true,
		GPGPUFlushL1Cache:   false,
		GPGPUFlushL2Cache:   false,

		LogLevel: "info",
	}
}

// Load decodes TOML data on top of Default(), then validates. Unknown
// keys anywhere in the document are a ConfigError (toml.Decode's
// MetaData.Undecoded() is consulted for this), and every numeric/size
// invariant in spec.md §6 is checked before the Config is returned.
func Load(data []byte) (Config, error) {
	cfg := Default()
	meta, err := toml.NewDecoder(bytes.NewReader(data)).Decode(&cfg)
	if err != nil {
		return Config{}, &simerr.ConfigError{Field: "<toml>", Value: "", Msg: err.Error()}
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, &simerr.ConfigError{
			Field: undecoded[0].String(),
			Value: "",
			Msg:   "unrecognized configuration key",
		}
	}
	if err := Validate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every structural invariant a malformed config could
// violate, returning the first one it finds as a simerr.ConfigError.
// See internal/validate for why this uses hand-written checks instead
// of a third-party validation library.
func Validate(c *Config) error {
	positive := map[string]int{
		"flit_size":                int(c.FlitSize),
		"num_vcs":                  c.NumVCs,
		"vc_buf_size":              c.VCBufSize,
		"input_buffer_size":        c.InputBufferSize,
		"ejection_buffer_size":     c.EjectionBufferSize,
		"boundary_buffer_size":     c.BoundaryBufferSize,
		"n_thread_per_shader":      c.NThreadPerShader,
		"warp_size":                c.WarpSize,
		"n_simt_clusters":          c.NSimtClusters,
		"n_simt_cores_per_cluster": c.NSimtCoresPerCluster,
		"max_cta_per_core":         c.MaxCTAPerCore,
		"gpgpu_shader_registers":   c.GPGPUShaderRegisters,
		"n_memory_partitions":      c.NMemoryPartitions,
		"n_sub_partition_per_channel": c.NSubPartitionPerChannel,
	}
	for field, v := range positive {
		if v <= 0 {
			return &simerr.ConfigError{Field: field, Value: fmt.Sprint(v), Msg: "must be positive"}
		}
	}
	if c.Subnets != 1 && c.Subnets != 2 {
		return &simerr.ConfigError{Field: "subnets", Value: fmt.Sprint(c.Subnets), Msg: "must be 1 or 2"}
	}
	if c.NThreadPerShader%c.WarpSize != 0 {
		return &simerr.ConfigError{
			Field: "n_thread_per_shader",
			Value: fmt.Sprint(c.NThreadPerShader),
			Msg:   "must be a multiple of warp_size",
		}
	}
	if c.UseMap && len(c.MemoryNodeMap) != c.NMemoryPartitions {
		return &simerr.ConfigError{
			Field: "memory_node_map",
			Value: fmt.Sprint(c.MemoryNodeMap),
			Msg:   "length must equal n_memory_partitions when use_map is set",
		}
	}
	switch c.DRAMModel {
	case "simple", "timing":
	default:
		return &simerr.ConfigError{Field: "dram_model", Value: c.DRAMModel, Msg: `must be "simple" or "timing"`}
	}
	for _, period := range []struct {
		name string
		v    float64
	}{{"core_period", c.CorePeriod}, {"icnt_period", c.ICNTPeriod}, {"l2_period", c.L2Period}, {"dram_period", c.DRAMPeriod}} {
		if period.v <= 0 {
			return &simerr.ConfigError{Field: period.name, Value: fmt.Sprint(period.v), Msg: "must be positive"}
		}
	}
	for _, spec := range []struct {
		name, grammar string
	}{
		{"l1i_cache_config", c.L1ICacheConfig},
		{"l1t_cache_config", c.L1TCacheConfig},
		{"l1c_cache_config", c.L1CCacheConfig},
		{"l1d_cache_config", c.L1DCacheConfig},
		{"l2_cache_config", c.L2CacheConfig},
	} {
		if spec.grammar == "" {
			continue
		}
		if _, err := ParseCacheConfig(spec.grammar); err != nil {
			return &simerr.ConfigError{Field: spec.name, Value: spec.grammar, Msg: err.Error()}
		}
	}
	return nil
}

// CacheSpec is the decoded form of the compact cache-config grammar as
// ParseCacheConfig accepts it: exactly four comma-separated fields,
// `T:nset:line:assoc,R:W:A:WA:SIF,M:mshr_entries:mshr_merge,queue_kind:port_width`
// (e.g. `fifo:4` last); a string with port_width as a fifth
// comma-separated field is rejected.
// Only the geometry and MSHR sizing fields drive simulated behavior
// (internal/cache.Config); the policy letters are retained verbatim
// for validation and stats reporting.
type CacheSpec struct {
	Kind cacheblk.Kind // T: N=line(N for "normal"), S=sector

	NumSets  int
	LineSize int
	Assoc    int

	ReplacementPolicy byte // R: L=LRU, F=FIFO
	WritePolicy       byte // W: R=write-through, B=write-back, ...
	AllocatePolicy    byte // A: m=on-miss, f=fetch-on-write, ...
	WriteAllocPolicy  byte // WA: N=no-write-allocate, W=write-allocate, ...
	SetIndexFn        byte // SIF: H=hashed, P=linear, ...

	MSHRKind    byte // M: F=fifo, T=texture-fifo, A=assoc, S=sector-assoc
	MSHREntries int
	MSHRMerge   int

	QueueKind  string // "fifo" et al.
	PortWidth  int
}

// ParseCacheConfig parses one cache-config string. It rejects any
// deviation from the expected token shape — the reimplementation's
// answer to spec.md §9's "config parser silently ignores fields beyond
// a minimum token count" note.
func ParseCacheConfig(s string) (CacheSpec, error) {
	parts := splitN(s, ',', 4)
	if len(parts) != 4 {
		return CacheSpec{}, fmt.Errorf("cache config %q: expected 4 comma-separated fields, got %d", s, len(parts))
	}

	geom := splitN(parts[0], ':', 4)
	if len(geom) != 4 {
		return CacheSpec{}, fmt.Errorf("cache config %q: geometry field needs T:nset:line:assoc", s)
	}
	var spec CacheSpec
	switch geom[0] {
	case "N":
		spec.Kind = cacheblk.LineKind
	case "S":
		spec.Kind = cacheblk.SectorKind
	default:
		return CacheSpec{}, fmt.Errorf("cache config %q: unknown cache kind %q (want N or S)", s, geom[0])
	}
	var err error
	if spec.NumSets, err = atoiStrict(geom[1]); err != nil {
		return CacheSpec{}, fmt.Errorf("cache config %q: nset: %w", s, err)
	}
	if spec.LineSize, err = atoiStrict(geom[2]); err != nil {
		return CacheSpec{}, fmt.Errorf("cache config %q: line: %w", s, err)
	}
	if spec.Assoc, err = atoiStrict(geom[3]); err != nil {
		return CacheSpec{}, fmt.Errorf("cache config %q: assoc: %w", s, err)
	}

	policy := splitN(parts[1], ':', 5)
	if len(policy) != 5 {
		return CacheSpec{}, fmt.Errorf("cache config %q: policy field needs R:W:A:WA:SIF", s)
	}
	for _, letter := range policy {
		if len(letter) != 1 {
			return CacheSpec{}, fmt.Errorf("cache config %q: policy token %q must be a single letter", s, letter)
		}
	}
	spec.ReplacementPolicy = policy[0][0]
	spec.WritePolicy = policy[1][0]
	spec.AllocatePolicy = policy[2][0]
	spec.WriteAllocPolicy = policy[3][0]
	spec.SetIndexFn = policy[4][0]

	mshr := splitN(parts[2], ':', 3)
	if len(mshr) != 3 {
		return CacheSpec{}, fmt.Errorf("cache config %q: MSHR field needs M:entries:merge", s)
	}
	if len(mshr[0]) != 1 {
		return CacheSpec{}, fmt.Errorf("cache config %q: MSHR kind %q must be a single letter", s, mshr[0])
	}
	spec.MSHRKind = mshr[0][0]
	if spec.MSHREntries, err = atoiStrict(mshr[1]); err != nil {
		return CacheSpec{}, fmt.Errorf("cache config %q: mshr_entries: %w", s, err)
	}
	if spec.MSHRMerge, err = atoiStrict(mshr[2]); err != nil {
		return CacheSpec{}, fmt.Errorf("cache config %q: mshr_merge: %w", s, err)
	}

	queue := splitN(parts[3], ':', 2)
	if len(queue) != 2 {
		return CacheSpec{}, fmt.Errorf("cache config %q: queue field needs queue:port_width", s)
	}
	spec.QueueKind = queue[0]
	if spec.PortWidth, err = atoiStrict(queue[1]); err != nil {
		return CacheSpec{}, fmt.Errorf("cache config %q: port_width: %w", s, err)
	}

	return spec, nil
}

func splitN(s string, sep byte, want int) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

func atoiStrict(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("empty integer field")
	}
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("not a non-negative integer: %q", s)
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}
