// Command parsolve-worker starts a single worker process (nicknamed
// Gaulois in the glossary): it dials a coordinator's grpcstream listener,
// announces its id, and then runs the dispatcher's receive loop against an
// in-process toycsp.Solver until the coordinator ends the search or the
// process is signaled.
//
// This binary owns exactly the collaborator responsibilities left outside
// the core's scope: process hosting and CLI parsing, generalized
// from "spawn N in-process worker goroutines against a broker" to "dial one
// network address as a single fixed worker id".
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gallia/parsolve/dispatcher"
	"github.com/gallia/parsolve/internal/plog"
	"github.com/gallia/parsolve/solver/toycsp"
	"github.com/gallia/parsolve/transport/grpcstream"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "parsolve-worker: %v\n", err)
		os.Exit(1)
	}
}

var (
	addr string
	id   int
	size int
	log  bool
)

var rootCmd = &cobra.Command{
	Use:   "parsolve-worker",
	Short: "Runs one worker process of a parsolve coordinator/worker search",
	Long: `parsolve-worker dials a parsolve-coordinator's grpcstream listener and
drives an in-process toy CSP solver against whatever cubes, bounds, or
config messages the coordinator sends, until the search ends or the
process receives SIGTERM/SIGINT.`,
	RunE: runWorker,
}

func init() {
	rootCmd.Flags().StringVar(&addr, "addr", "127.0.0.1:7777", "coordinator address to dial")
	rootCmd.Flags().IntVar(&id, "id", 0, "this worker's fixed id, 0-based")
	rootCmd.Flags().IntVar(&size, "size", 1, "total number of workers in the fleet")
	rootCmd.Flags().BoolVar(&log, "log", false, "show conditional logging output (for debugging)")
}

func runWorker(cmd *cobra.Command, args []string) error {
	if log {
		plog.Enable()
	}
	if id < 0 || id >= size {
		return fmt.Errorf("--id must be in [0, %d)", size)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(os.Stderr, "parsolve-worker %d: terminating on signal %v...\n", id, sig)
		cancel()
	}()

	client, err := grpcstream.Dial(ctx, addr, id, size)
	if err != nil {
		return fmt.Errorf("dial coordinator at %s: %w", addr, err)
	}
	defer client.Finalize()

	d := dispatcher.New(toycsp.New(), client, client.Size())
	fmt.Printf("parsolve-worker %d/%d connected to %s\n", id, size, addr)
	if err := d.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("worker %d: %w", id, err)
	}
	return nil
}
