package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sarchlab/cprsim/internal/tracelog"
)

var examples = []string{
	"  Run a program functionally:           $ cprsim run ./a.out",
	"  Run through the timing model:         $ cprsim run --timing ./a.out",
	"  Run with a non-default configuration: $ cprsim run --timing --config cfg.json ./a.out",
	"  Run a batch of programs concurrently: $ cprsim batch --timing ./a.out ./b.out ./c.out",
}

var rootCmd = &cobra.Command{
	Use:           "cprsim",
	Short:         "cprsim is a cycle-accurate ARM64 out-of-order CPU simulator",
	Long:          "cprsim loads ARM64 ELF binaries and runs them either through a functional reference emulator or the speculative out-of-order timing model.",
	Example:       joinExamples(examples),
	SilenceErrors: true,
	SilenceUsage:  true,
}

var (
	flagVerbose bool
	flagTrace   bool
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "print info-level progress to stderr")
	rootCmd.PersistentFlags().BoolVar(&flagTrace, "trace", false, "print per-retire/per-squash debug trace to stderr")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.SetUsageFunc(usageFunc)
}

// usageFunc prints a subcommand's own flags followed by the root's
// persistent (global) flags, visited directly through the underlying
// pflag.FlagSet rather than cobra's default template.
func usageFunc(cmd *cobra.Command) error {
	cmd.Printf("Usage:\n  %s\n\n", cmd.UseLine())
	if cmd.HasExample() {
		cmd.Printf("Examples:\n%s\n\n", cmd.Example)
	}
	cmd.Println("Flags:")
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		cmd.Printf("  --%-16s %s (default: %s)\n", f.Name, f.Usage, f.DefValue)
	})
	if cmd.HasParent() {
		cmd.Println("\nGlobal Flags:")
		cmd.Parent().PersistentFlags().VisitAll(func(f *pflag.Flag) {
			cmd.Printf("  --%-16s %s (default: %s)\n", f.Name, f.Usage, f.DefValue)
		})
	}
	return nil
}

// Execute runs the root command. Called once from main.main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newLogger builds the zerolog.Logger the timing core traces retire and
// squash events through, per the --verbose/--trace flags.
func newLogger() zerolog.Logger {
	level := zerolog.Disabled
	switch {
	case flagTrace:
		level = zerolog.DebugLevel
	case flagVerbose:
		level = zerolog.InfoLevel
	}
	if level == zerolog.Disabled {
		return tracelog.Discard
	}
	return tracelog.New(os.Stderr, level)
}

func joinExamples(lines []string) string {
	out := ""
	for i, l := range lines {
		if i > 0 {
			out += "\n"
		}
		out += l
	}
	return out
}
