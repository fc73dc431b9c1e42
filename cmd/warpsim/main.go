// Command warpsim runs the cycle-driven GPU core/memory/interconnect
// simulator against a TOML configuration and a JSON-lines instruction
// trace, printing the final statistics snapshot as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/supracore/warpsim/internal/config"
	"github.com/supracore/warpsim/internal/logx"
	"github.com/supracore/warpsim/internal/sim"
	"github.com/supracore/warpsim/internal/simerr"
	"github.com/supracore/warpsim/internal/trace"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("warpsim", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to a TOML configuration file (defaults applied for any key left unset)")
	tracePath := fs.String("trace", "", "path to a JSON-lines instruction trace (required)")
	logPretty := fs.Bool("log-pretty", false, "write console-formatted logs instead of JSON")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *tracePath == "" {
		fmt.Fprintln(os.Stderr, "warpsim: -trace is required")
		return 1
	}

	cfg := config.Default()
	if *configPath != "" {
		data, err := os.ReadFile(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warpsim: reading config: %v\n", err)
			return simerr.ExitCode(&simerr.ConfigError{Field: "<file>", Value: *configPath, Msg: err.Error()})
		}
		cfg, err = config.Load(data)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warpsim: %v\n", err)
			return simerr.ExitCode(err)
		}
	} else if err := config.Validate(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "warpsim: %v\n", err)
		return simerr.ExitCode(err)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := logx.New(logx.Options{Level: level, Output: os.Stderr, Pretty: *logPretty || cfg.LogPretty})

	traceFile, err := os.Open(*tracePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warpsim: opening trace: %v\n", err)
		return simerr.ExitCode(&simerr.ConfigError{Field: "<trace>", Value: *tracePath, Msg: err.Error()})
	}
	defer traceFile.Close()
	provider := trace.NewJSONLProvider(traceFile)

	simulator, err := sim.New(cfg, provider, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warpsim: %v\n", err)
		return simerr.ExitCode(err)
	}

	counters, runErr := simulator.Run(context.Background())

	report := struct {
		Counters      map[string]uint64 `json:"counters"`
		AvgMemLatency float64           `json:"avg_mem_latency"`
		Error         string            `json:"error,omitempty"`
	}{
		Counters:      counters.Snapshot(),
		AvgMemLatency: simulator.AvgMemLatency(),
	}
	if runErr != nil {
		report.Error = runErr.Error()
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(report); encErr != nil {
		fmt.Fprintf(os.Stderr, "warpsim: encoding report: %v\n", encErr)
		return 1
	}

	return simerr.ExitCode(runErr)
}
