// Command setprop loads a set-variable instance from YAML, runs AtMostOne
// propagation to a fixpoint and prints the narrowed bounds. With -solve it
// enumerates solutions instead.
//
// Usage:
//
//	setprop -instance triangle.yaml
//	setprop -instance triangle.yaml -solve -max 10 -parallel 4
//	setprop -instance triangle.yaml -verify -v 2 -metrics
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/gitrdm/gokanset/internal/oracle"
	"github.com/gitrdm/gokanset/pkg/setcp"
)

type options struct {
	instance string
	solve    bool
	max      int
	parallel int
	verify   bool
	metrics  bool
	stats    bool
	timeout  time.Duration
}

func main() {
	var opts options
	var verbosity int

	flag.StringVar(&opts.instance, "instance", "", "Path to the YAML instance file.")
	flag.BoolVar(&opts.solve, "solve", false, "Enumerate solutions instead of only propagating.")
	flag.IntVar(&opts.max, "max", 0, "Maximum number of solutions to print (0 = all).")
	flag.IntVar(&opts.parallel, "parallel", 0, "Number of search workers (0 = sequential search).")
	flag.BoolVar(&opts.verify, "verify", false, "Check the propagation result against the SAT oracle.")
	flag.BoolVar(&opts.metrics, "metrics", false, "Dump Prometheus metrics in text format on exit.")
	flag.BoolVar(&opts.stats, "stats", false, "Print solver statistics on exit.")
	flag.DurationVar(&opts.timeout, "timeout", 0, "Give up after this long (0 = no limit).")
	flag.IntVar(&verbosity, "v", 0, "Log verbosity: 1 solve lifecycle, 2 fixpoints, 4 propagator rules.")
	flag.Parse()

	if opts.instance == "" {
		fmt.Fprintln(os.Stderr, "setprop: -instance is required")
		flag.Usage()
		os.Exit(2)
	}

	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(zapcore.Level(-verbosity))
	zc.EncoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	zl, err := zc.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "setprop: unable to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer zl.Sync() //nolint:errcheck
	log := zapr.NewLogger(zl).WithName("setprop")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	if err := run(ctx, opts, os.Stdout, log); err != nil {
		log.Error(err, "setprop failed", "instance", opts.instance)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, out io.Writer, log logr.Logger) error {
	inst, err := LoadInstance(opts.instance)
	if err != nil {
		return err
	}
	model, vars, err := inst.Build()
	if err != nil {
		return fmt.Errorf("build model: %w", err)
	}
	log.V(1).Info("instance loaded", "variables", len(vars), "c", inst.C)

	initial := make([]*setcp.SetDomain, len(vars))
	for i, v := range vars {
		initial[i] = v.Domain()
	}

	solver := setcp.NewSolver(model)
	solver.SetLogger(log.WithName("solver"))
	monitor := setcp.NewSolverMonitor()
	monitor.CaptureInitialDomains(model)
	solver.SetMonitor(monitor)

	registry := prometheus.NewRegistry()
	if opts.metrics {
		solver.SetMetrics(setcp.NewMetrics(registry))
	}

	if opts.solve {
		err = solve(ctx, solver, vars, opts, out)
	} else {
		err = propagate(ctx, solver, vars, initial, opts.verify, out)
	}
	if err != nil {
		return err
	}

	if opts.stats {
		fmt.Fprintln(out, monitor.GetStats())
	}
	if opts.metrics {
		return dumpMetrics(registry, out)
	}
	return nil
}

func propagate(ctx context.Context, solver *setcp.Solver, vars []*setcp.SetVariable, initial []*setcp.SetDomain, verify bool, out io.Writer) error {
	state, outcome, err := solver.Propagate(ctx, nil)
	if err != nil {
		if !errors.Is(err, setcp.ErrInconsistent) {
			return err
		}
		fmt.Fprintf(out, "status: failed: %v\n", err)
		if verify {
			feasible, ferr := oracle.Feasible(bounds(initial))
			if ferr != nil {
				return ferr
			}
			if feasible {
				return fmt.Errorf("verify: propagation failed on a satisfiable instance")
			}
			fmt.Fprintln(out, "verify: ok, instance is unsatisfiable")
		}
		return nil
	}
	defer solver.ReleaseState(state)

	fmt.Fprintf(out, "status: %s after %d rounds\n", outcome.Status, outcome.Rounds)
	narrowed := make([]*setcp.SetDomain, len(vars))
	for i, v := range vars {
		narrowed[i] = solver.GetDomain(state, v.ID())
		fmt.Fprintf(out, "%s: %s\n", v.Name(), narrowed[i])
	}

	if verify {
		bad, err := oracle.Unsupported(bounds(initial), bounds(narrowed))
		if err != nil {
			return err
		}
		if len(bad) > 0 {
			return fmt.Errorf("verify: propagation removed supported values %v", bad)
		}
		fmt.Fprintln(out, "verify: ok, every removed value is unsupported")
	}
	return nil
}

func solve(ctx context.Context, solver *setcp.Solver, vars []*setcp.SetVariable, opts options, out io.Writer) error {
	var (
		solutions []setcp.Solution
		err       error
	)
	if opts.parallel > 0 {
		cfg := setcp.DefaultParallelSearchConfig()
		cfg.NumWorkers = opts.parallel
		solutions, err = solver.SolveParallel(ctx, cfg, opts.max)
	} else {
		solutions, err = solver.Solve(ctx, opts.max)
	}
	if err != nil {
		return err
	}

	for i, sol := range solutions {
		parts := make([]string, len(sol))
		for j, s := range sol {
			parts[j] = fmt.Sprintf("%s=%s", vars[j].Name(), s)
		}
		fmt.Fprintf(out, "solution %d: %s\n", i+1, strings.Join(parts, " "))
	}
	fmt.Fprintf(out, "%d solutions\n", len(solutions))
	return nil
}

func dumpMetrics(registry *prometheus.Registry, out io.Writer) error {
	families, err := registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(out, mf); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}
