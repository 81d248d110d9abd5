// Command parsolve-bench runs a batch of toycsp instance files through a
// single in-process coordinator/worker fleet, one instance at a time, and
// reports the result and wall-clock time for each.
//
// It exists to exercise transport/inproc end to end without needing two
// separate processes and a network listener: the whole fleet, coordinator
// included, lives in one process's goroutines, batching multiple file-glob
// arguments through a single local run.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"

	"github.com/gallia/parsolve/allocation"
	"github.com/gallia/parsolve/coordinator"
	"github.com/gallia/parsolve/dispatcher"
	"github.com/gallia/parsolve/internal/plog"
	"github.com/gallia/parsolve/solver/toycsp"
	"github.com/gallia/parsolve/strategy/portfolio"
	"github.com/gallia/parsolve/transport"
	"github.com/gallia/parsolve/transport/inproc"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "parsolve-bench: %v\n", err)
		os.Exit(1)
	}
}

var (
	size       int
	timeout    time.Duration
	aggressive bool
	allocName  string
	logFl      bool
)

var rootCmd = &cobra.Command{
	Use:   "parsolve-bench [glob ...]",
	Short: "Batches toycsp instance file globs through an in-process coordinator/worker fleet",
	Long: `parsolve-bench expands one or more file glob patterns (doublestar syntax,
matching ** across directories) and solves each matched instance file in
turn with a single in-process portfolio fleet, printing the outcome and
elapsed time for each.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBench,
}

func init() {
	rootCmd.Flags().IntVar(&size, "size", 4, "number of in-process workers per instance")
	rootCmd.Flags().DurationVar(&timeout, "timeout", 0, "per-worker solve timeout, 0 for none")
	rootCmd.Flags().BoolVar(&aggressive, "aggressive", false, "use aggressive portfolio rebalancing")
	rootCmd.Flags().StringVar(&allocName, "allocation", "linear", "portfolio bound allocation: linear or log")
	rootCmd.Flags().BoolVar(&logFl, "log", false, "show conditional logging output (for debugging)")
}

func runBench(cmd *cobra.Command, globs []string) error {
	if logFl {
		plog.Enable()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "parsolve-bench: terminating on signal...")
		cancel()
	}()

	var alloc allocation.Strategy = allocation.Linear{}
	if strings.EqualFold(allocName, "log") || strings.EqualFold(allocName, "logarithmic") {
		alloc = allocation.Logarithmic{}
	}

	var files []string
	for _, glob := range globs {
		matches, err := doublestar.FilepathGlob(glob)
		if err != nil {
			fmt.Printf("skipping bad glob pattern %q: %v\n", glob, err)
			continue
		}
		if len(matches) == 0 {
			fmt.Printf("no matches for glob pattern %q\n", glob)
			continue
		}
		files = append(files, matches...)
	}

	for _, path := range files {
		if ctx.Err() != nil {
			break
		}
		if err := runOne(ctx, path, size, timeout, aggressive, alloc); err != nil {
			fmt.Printf("%s: error: %v\n", path, err)
		}
	}
	return nil
}

func runOne(ctx context.Context, path string, size int, timeout time.Duration, aggressive bool, alloc allocation.Strategy) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}

	t := inproc.New(size)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = t.Start(ctx, func(ctx context.Context, self transport.Transport) {
			d := dispatcher.New(toycsp.New(), self, self.Size())
			_ = d.Run(ctx)
		})
	}()

	strat := portfolio.New(alloc, aggressive)
	c, err := coordinator.New(t, coordinator.Config{
		InstanceFile: path,
		Timeout:      timeout,
	}, strat)
	if err != nil {
		_ = t.Finalize()
		<-done
		return err
	}

	start := time.Now()
	if err := c.LoadInstance(ctx); err != nil {
		_ = t.Finalize()
		<-done
		return err
	}
	result, err := c.Solve(ctx)
	elapsed := time.Since(start)
	_ = t.Finalize()
	<-done
	if err != nil {
		return err
	}

	fmt.Printf("%s: %s (%s)\n", path, result, elapsed)
	if sol, ok := c.Solution(); ok {
		fmt.Println(toycsp.PrettyPrint(sol))
	}
	return nil
}
