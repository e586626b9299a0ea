package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sarchlab/cprsim/config"
	"github.com/sarchlab/cprsim/emu"
	"github.com/sarchlab/cprsim/loader"
	"github.com/sarchlab/cprsim/timing/core"
)

var flagBatchJobs int

var batchCmd = &cobra.Command{
	Use:   "batch <program.elf>...",
	Short: "run several ARM64 ELF binaries concurrently, one Core per program",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runBatch,
}

func init() {
	batchCmd.Flags().BoolVar(&flagTiming, "timing", false, "drive every program through the out-of-order timing model instead of the plain functional emulator")
	batchCmd.Flags().StringVar(&flagConfigPath, "config", "", "path to a timing configuration JSON document shared by every program in the batch")
	batchCmd.Flags().IntVar(&flagBatchJobs, "jobs", 0, "max concurrent programs (0 = one per program)")
}

type batchResult struct {
	path     string
	exitCode int64
	stats    *core.Stats
	err      error
}

// runBatch fans a batch of independent programs out across goroutines,
// each constructing and driving its own Core/Emulator (these share no
// state besides the immutable loaded config), and reports results in
// the order the programs were given once every one has finished.
func runBatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	results := make([]batchResult, len(args))
	g, ctx := errgroup.WithContext(context.Background())
	sem := newSemaphore(flagBatchJobs, len(args))

	for i, path := range args {
		i, path := i, path
		g.Go(func() error {
			if err := sem.acquire(ctx); err != nil {
				return err
			}
			defer sem.release()

			results[i] = runBatchOne(path, cfg)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	worst := int64(0)
	for _, r := range results {
		printBatchResult(r)
		if r.err != nil {
			worst = 1
		} else if r.exitCode != 0 {
			worst = r.exitCode
		}
	}

	os.Exit(int(worst))
	return nil
}

func runBatchOne(path string, cfg *config.Config) batchResult {
	prog, err := loader.Load(path)
	if err != nil {
		return batchResult{path: path, err: fmt.Errorf("loading program: %w", err)}
	}

	memory := newProgramMemory(prog)

	if !flagTiming {
		emulator := emu.NewEmulator(emu.WithStackPointer(prog.InitialSP))
		emulator.LoadProgram(prog.EntryPoint, memory)
		return batchResult{path: path, exitCode: emulator.Run()}
	}

	regFile := &emu.RegFile{SP: prog.InitialSP}
	c := core.NewCoreWithConfig(cfg.Clone(), regFile, memory)
	c.SetPC(prog.EntryPoint)
	exitCode := c.Run()
	s := c.Stats()
	return batchResult{path: path, exitCode: exitCode, stats: &s}
}

func printBatchResult(r batchResult) {
	if r.err != nil {
		fmt.Printf("%-30s error: %v\n", r.path, r.err)
		return
	}
	if r.stats == nil {
		fmt.Printf("%-30s exit=%d\n", r.path, r.exitCode)
		return
	}
	cpi := float64(r.stats.Cycles) / float64(maxUint64(r.stats.Instructions, 1))
	fmt.Printf("%-30s exit=%-4d cycles=%-10d instructions=%-10d cpi=%.3f\n",
		r.path, r.exitCode, r.stats.Cycles, r.stats.Instructions, cpi)
}

// semaphore bounds concurrent jobs to n (0 means unbounded, one goroutine
// per program).
type semaphore struct {
	c chan struct{}
}

func newSemaphore(n, fallback int) *semaphore {
	if n <= 0 {
		n = fallback
	}
	return &semaphore{c: make(chan struct{}, n)}
}

func (s *semaphore) acquire(ctx context.Context) error {
	select {
	case s.c <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *semaphore) release() {
	<-s.c
}
