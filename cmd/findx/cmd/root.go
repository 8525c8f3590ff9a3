// Package cmd provides the CLI commands for findx.
package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/gaspardpetit/findx/internal/logging"
	"github.com/gaspardpetit/findx/internal/profiling"
	"github.com/gaspardpetit/findx/pkg/version"
)

// cmdOut returns the writer status output goes to. A package-level function
// rather than a parameter so every subcommand shares it without threading
// cobra's own os.Stdout through buildApp.
func cmdOut() io.Writer { return os.Stdout }

var configPath string

// Profiling flags.
var (
	profileCPU   string
	profileMem   string
	profileTrace string
	profiler     = profiling.NewProfiler()
	cpuCleanup   func()
	traceCleanup func()
)

// Debug logging flag.
var (
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the findx CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "findx",
		Short: "Local, single-host document indexer and hybrid search",
		Long: `findx watches a set of filesystem roots, extracts and chunks
their text content into a crash-safe mirror, and serves lexical,
semantic, and hybrid (RRF-fused) search over the result.

It runs entirely on one host with no external services required.`,
		Version:            version.Version,
		SilenceUsage:       true,
		PersistentPreRunE:  startProfilingAndLogging,
		PersistentPostRunE: stopProfilingAndLogging,
	}

	cmd.SetVersionTemplate("findx version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&configPath, "config", "findx.yaml", "path to the config file")
	cmd.PersistentFlags().StringVar(&profileCPU, "profile-cpu", "", "write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileMem, "profile-mem", "", "write memory profile to file")
	cmd.PersistentFlags().StringVar(&profileTrace, "profile-trace", "", "write execution trace to file")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "enable debug logging to the default log path")

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newQueryCmd())
	cmd.AddCommand(newOneshotCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newMigrateCmd())

	return cmd
}

func startProfilingAndLogging(_ *cobra.Command, _ []string) error {
	var err error

	logCfg := logging.DefaultConfig()
	if debugMode {
		logCfg = logging.DebugConfig()
	}
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("setting up logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)

	if profileCPU != "" {
		cpuCleanup, err = profiler.StartCPU(profileCPU)
		if err != nil {
			return fmt.Errorf("starting cpu profile: %w", err)
		}
	}

	if profileTrace != "" {
		traceCleanup, err = profiler.StartTrace(profileTrace)
		if err != nil {
			if cpuCleanup != nil {
				cpuCleanup()
			}
			return fmt.Errorf("starting trace: %w", err)
		}
	}

	return nil
}

func stopProfilingAndLogging(_ *cobra.Command, _ []string) error {
	if cpuCleanup != nil {
		cpuCleanup()
		cpuCleanup = nil
	}
	if traceCleanup != nil {
		traceCleanup()
		traceCleanup = nil
	}
	if profileMem != "" {
		if err := profiler.WriteHeap(profileMem); err != nil {
			return fmt.Errorf("writing memory profile: %w", err)
		}
	}
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
