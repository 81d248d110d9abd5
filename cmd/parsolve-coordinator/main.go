// Command parsolve-coordinator starts the coordinator process (nicknamed
// Abraracourcix in the glossary): it hosts a grpcstream listener for a
// fixed-size worker fleet, loads a toycsp instance file, drives one of the
// three search strategies (portfolio, EPS, partition) to completion, and
// prints the result.
//
// Like parsolve-worker, this binary exists entirely outside the core's own
// scope: it is the CLI-parsing, process-hosting, instance-file-
// reading collaborator the core expects an operator to supply, handling its
// own listener-address and worker-count flags.
package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gallia/parsolve/allocation"
	"github.com/gallia/parsolve/consistency"
	"github.com/gallia/parsolve/coordinator"
	"github.com/gallia/parsolve/cube"
	"github.com/gallia/parsolve/decompose"
	"github.com/gallia/parsolve/internal/plog"
	"github.com/gallia/parsolve/metrics"
	"github.com/gallia/parsolve/solver"
	"github.com/gallia/parsolve/solver/toycsp"
	"github.com/gallia/parsolve/strategy"
	"github.com/gallia/parsolve/strategy/eps"
	"github.com/gallia/parsolve/strategy/partition"
	"github.com/gallia/parsolve/strategy/portfolio"
	"github.com/gallia/parsolve/transport/grpcstream"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "parsolve-coordinator: %v\n", err)
		os.Exit(1)
	}
}

var (
	addr         string
	size         int
	instanceFile string
	strategyName string
	allocName    string
	aggressive   bool
	timeout      time.Duration
	verbosity    int
	generatorFl  string
	checkerFl    string
	maxCubes     int
	intervalBud  int
	cutsetFl     string
	metricsAddr  string
	logFl        bool
	workerVerb   string
)

var rootCmd = &cobra.Command{
	Use:   "parsolve-coordinator",
	Short: "Drives a parsolve portfolio/EPS/partition search over a worker fleet",
	Long: `parsolve-coordinator loads a toycsp instance, listens for a fixed-size
worker fleet over grpcstream, and drives one of the portfolio, EPS, or
partition search strategies until the instance is decided or optimized.`,
	RunE: runCoordinator,
}

func init() {
	rootCmd.Flags().StringVar(&addr, "addr", "127.0.0.1:7777", "address to listen on for workers")
	rootCmd.Flags().IntVar(&size, "size", 1, "number of workers in the fleet")
	rootCmd.Flags().StringVar(&instanceFile, "instance", "", "path to a toycsp instance file (required)")
	rootCmd.Flags().StringVar(&strategyName, "strategy", "portfolio", "search strategy: portfolio, eps, or partition")
	rootCmd.Flags().StringVar(&allocName, "allocation", "linear", "portfolio bound allocation: linear or log")
	rootCmd.Flags().BoolVar(&aggressive, "aggressive", false, "use aggressive rebalancing (portfolio only)")
	rootCmd.Flags().DurationVar(&timeout, "timeout", 0, "per-worker solve timeout, 0 for none")
	rootCmd.Flags().IntVar(&verbosity, "verbosity", 0, "verbosity level forwarded to every worker")
	rootCmd.Flags().StringVar(&generatorFl, "generator", "lexicographic", "cube generator for eps/partition: lexicographic, interval, or cartesian")
	rootCmd.Flags().StringVar(&checkerFl, "checker", "null", "consistency checker for cube generation: null, partial, or final")
	rootCmd.Flags().IntVar(&maxCubes, "max-cubes", 0, "cap on generated cubes, 0 for unbounded")
	rootCmd.Flags().IntVar(&intervalBud, "interval-budget", 8, "per-variable branching budget for the interval generator")
	rootCmd.Flags().StringVar(&cutsetFl, "cutset", "", "comma-separated cutset variables for the partition strategy")
	rootCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "if set, serve Prometheus metrics on this address")
	rootCmd.Flags().BoolVar(&logFl, "log", false, "show conditional logging output (for debugging)")
	rootCmd.Flags().StringVar(&workerVerb, "worker-verbosity", "", "comma-separated per-worker verbosity overrides for portfolio diversity, e.g. \"0,2,1\"")
	rootCmd.MarkFlagRequired("instance")
}

func runCoordinator(cmd *cobra.Command, args []string) error {
	if logFl {
		plog.Enable()
	}

	instance, err := parseInstance(instanceFile)
	if err != nil {
		return fmt.Errorf("parse instance %s: %w", instanceFile, err)
	}
	domains := variableDomains(instance)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(os.Stderr, "parsolve-coordinator: terminating on signal %v...\n", sig)
		cancel()
	}()

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv := &http.Server{Addr: metricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				fmt.Fprintf(os.Stderr, "parsolve-coordinator: metrics server: %v\n", err)
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	checker, err := newChecker(ctx, checkerFl, instanceFile)
	if err != nil {
		return fmt.Errorf("build consistency checker: %w", err)
	}

	strat, err := newStrategy(strategyName, instance, domains, checker)
	if err != nil {
		return fmt.Errorf("build strategy: %w", err)
	}

	t, err := grpcstream.Listen(addr, size)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	defer t.Finalize()

	c, err := coordinator.New(t, coordinator.Config{
		InstanceFile: instanceFile,
		Timeout:      timeout,
		Verbosity:    verbosity,
		Aggressive:   aggressive,
	}, strat)
	if err != nil {
		return fmt.Errorf("construct coordinator: %w", err)
	}

	fmt.Printf("parsolve-coordinator listening on %s for %d workers (%s strategy)\n", addr, size, strategyName)

	if err := c.LoadInstance(ctx); err != nil {
		return fmt.Errorf("load instance: %w", err)
	}

	result, err := c.Solve(ctx)
	if err != nil {
		return fmt.Errorf("solve: %w", err)
	}

	fmt.Printf("result: %s\n", result)
	if sol, ok := c.Solution(); ok {
		fmt.Println(toycsp.PrettyPrint(sol))
	}
	return nil
}

func parseInstance(path string) (toycsp.Instance, error) {
	f, err := os.Open(path)
	if err != nil {
		return toycsp.Instance{}, err
	}
	defer f.Close()
	return toycsp.Parse(bufio.NewScanner(f))
}

func variableDomains(inst toycsp.Instance) []cube.VariableDomain {
	domains := make([]cube.VariableDomain, 0, len(inst.Variables))
	for _, v := range inst.Variables {
		domains = append(domains, cube.VariableDomain{Name: v.Name, Lo: v.Lo, Hi: v.Hi})
	}
	return domains
}

func decomposeProblem(inst toycsp.Instance) decompose.Problem {
	names := make([]string, 0, len(inst.Variables))
	for _, v := range inst.Variables {
		names = append(names, v.Name)
	}
	constraints := make([]decompose.Constraint, 0, len(inst.Constraints))
	for _, c := range inst.Constraints {
		constraints = append(constraints, decompose.Constraint{Vars: c.Vars})
	}
	return decompose.Problem{Variables: names, Constraints: constraints}
}

func newChecker(ctx context.Context, name, instanceFile string) (consistency.Checker, error) {
	newSolver := func() solver.Solver { return toycsp.New() }
	switch strings.ToLower(name) {
	case "", "null":
		return consistency.Null{}, nil
	case "partial":
		return consistency.NewPartial(ctx, newSolver, instanceFile)
	case "final":
		return consistency.NewFinal(ctx, newSolver, instanceFile)
	default:
		return nil, fmt.Errorf("unknown checker %q", name)
	}
}

func newGenerator(name string, domains []cube.VariableDomain, checker consistency.Checker) (cube.Generator, error) {
	switch strings.ToLower(name) {
	case "", "lexicographic", "lex":
		return cube.NewLexicographic(domains, checker, maxCubes), nil
	case "interval":
		return cube.NewLexicographicInterval(domains, checker, maxCubes, intervalBud), nil
	case "cartesian":
		return cube.NewCartesianRefinement(domains, checker, nil), nil
	default:
		return nil, fmt.Errorf("unknown generator %q", name)
	}
}

// workerConfigurations builds one solver.Configuration per worker from a
// comma-separated list of verbosity levels, mirroring the per-worker
// --verbosity flag parsing of the system this module's CLI is modeled on.
func workerConfigurations(csv string) []solver.Configuration {
	levels := strings.Split(csv, ",")
	out := make([]solver.Configuration, len(levels))
	for i, lvl := range levels {
		out[i] = solver.Configuration{"verbosity": strings.TrimSpace(lvl)}
	}
	return out
}

func newAllocation(name string) (allocation.Strategy, error) {
	switch strings.ToLower(name) {
	case "", "linear":
		return allocation.Linear{}, nil
	case "log", "logarithmic":
		return allocation.Logarithmic{}, nil
	default:
		return nil, fmt.Errorf("unknown allocation %q", name)
	}
}

func newStrategy(name string, inst toycsp.Instance, domains []cube.VariableDomain, checker consistency.Checker) (strategy.Strategy, error) {
	switch strings.ToLower(name) {
	case "", "portfolio":
		alloc, err := newAllocation(allocName)
		if err != nil {
			return nil, err
		}
		p := portfolio.New(alloc, aggressive)
		if workerVerb != "" {
			p.WithConfigurations(portfolio.VerbosityAndHeuristicConfig{}, workerConfigurations(workerVerb))
		}
		return p, nil
	case "eps":
		gen, err := newGenerator(generatorFl, domains, checker)
		if err != nil {
			return nil, err
		}
		return eps.New(gen), nil
	case "partition":
		var cutset []string
		if cutsetFl != "" {
			cutset = strings.Split(cutsetFl, ",")
		}
		problem := decomposeProblem(inst)
		return partition.New(decompose.Hypergraph{Cutset: cutset}, problem, domains, checker, maxCubes), nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
}
