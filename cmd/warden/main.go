package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/go-warden/warden/pkg/config"
	"github.com/go-warden/warden/pkg/harness"
	"github.com/go-warden/warden/pkg/inferior"
	"github.com/go-warden/warden/pkg/logflags"
	"github.com/go-warden/warden/pkg/version"
)

var (
	logEnabled bool
	logOutput  string
	configPath string
)

func main() {
	rootCommand := &cobra.Command{
		Use:   "warden",
		Short: "Warden is an exception-driven fault-injection harness.",
		Long: `Warden launches an inferior copy of itself under a ptrace exception
port, drives it over a control channel, and repairs the CPU faults the
inferior deliberately raises, proving cross-process register and memory
access works across repeated fault cycles and threads.`,
	}
	rootCommand.PersistentFlags().BoolVarP(&logEnabled, "log", "", false, "Enable component logging.")
	rootCommand.PersistentFlags().StringVarP(&logOutput, "log-output", "", "", "Comma separated list of components that should produce debug output: tracer,monitor,ctlmsg,watchdog,harness,inferior.")

	runCommand := &cobra.Command{
		Use:   "run",
		Short: "Run the fault-injection scenarios.",
		Run:   runScenarios,
	}
	runCommand.Flags().StringVarP(&configPath, "config", "", "", "Path to the yaml configuration file.")
	rootCommand.AddCommand(runCommand)

	var tries, extraThreads int
	inferiorCommand := &cobra.Command{
		Use:    "inferior",
		Hidden: true,
		Short:  "Run as the controlled child process.",
		Run: func(cmd *cobra.Command, args []string) {
			setupLog()
			ctl := os.NewFile(3, "ctl")
			if ctl == nil {
				fmt.Fprintln(os.Stderr, "inferior: no control channel on fd 3")
				os.Exit(inferior.ExitLoopFailure)
			}
			os.Exit(inferior.Main(ctl, tries, extraThreads))
		},
	}
	inferiorCommand.Flags().IntVarP(&tries, "tries", "", inferior.DefaultCrashTries, "Fault cycles per CRASH request.")
	inferiorCommand.Flags().IntVarP(&extraThreads, "extra-threads", "", inferior.ExtraThreads, "Worker threads per START_EXTRA_THREADS request.")
	rootCommand.AddCommand(inferiorCommand)

	// The segfault child is not used by the scenarios. It exists for
	// debugging purposes.
	segfaultCommand := &cobra.Command{
		Use:    "segfault",
		Hidden: true,
		Short:  "Crash under a deep call chain.",
		Run: func(cmd *cobra.Command, args []string) {
			setupLog()
			os.Exit(inferior.Segfault())
		},
	}
	rootCommand.AddCommand(segfaultCommand)

	versionCommand := &cobra.Command{
		Use:   "version",
		Short: "Prints version.",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Warden Harness\n%s\n", version.WardenVersion)
		},
	}
	rootCommand.AddCommand(versionCommand)

	if err := rootCommand.Execute(); err != nil {
		os.Exit(harness.ExitFail)
	}
}

func setupLog() {
	if err := logflags.Setup(logEnabled, logOutput); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(harness.ExitFail)
	}
}

func runScenarios(cmd *cobra.Command, args []string) {
	setupLog()
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(harness.ExitFail)
	}
	os.Exit(harness.New(cfg).Run())
}
