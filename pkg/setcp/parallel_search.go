// Package setcp provides set constraint solving with parallel search.
// This file implements parallel search by splitting the search tree into
// independent subtrees and exploring them on a worker pool.

package setcp

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/gitrdm/gokanset/internal/parallel"
)

// ParallelSearchConfig holds configuration for parallel search.
type ParallelSearchConfig struct {
	// NumWorkers is the number of parallel worker goroutines.
	// If 0 or negative, defaults to runtime.NumCPU().
	NumWorkers int

	// SplitFactor is the number of subtrees created per worker before the
	// workers start. More subtrees balance load better at the cost of a
	// longer sequential split.
	SplitFactor int
}

// DefaultParallelSearchConfig returns the default parallel search configuration.
func DefaultParallelSearchConfig() *ParallelSearchConfig {
	return &ParallelSearchConfig{
		NumWorkers:  runtime.NumCPU(),
		SplitFactor: 4,
	}
}

// collector gathers solutions from concurrent searches and trips cancel
// once the limit is reached.
type collector struct {
	mu        sync.Mutex
	solutions []Solution
	limit     int
	cancel    context.CancelFunc
}

func (c *collector) emit(sol Solution) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.limit > 0 && len(c.solutions) >= c.limit {
		return false
	}
	c.solutions = append(c.solutions, sol)
	if c.limit > 0 && len(c.solutions) >= c.limit {
		c.cancel()
		return false
	}
	return true
}

// SolveParallel searches for solutions using a pool of workers. It finds
// the same solutions as Solve, in no particular order. maxSolutions <= 0
// means all solutions.
//
// The root is propagated and then split breadth-first into at least
// NumWorkers*SplitFactor subtrees (fewer if the tree is smaller); each
// subtree is searched depth-first by one worker.
func (s *Solver) SolveParallel(ctx context.Context, config *ParallelSearchConfig, maxSolutions int) ([]Solution, error) {
	if config == nil {
		config = DefaultParallelSearchConfig()
	}
	workers := config.NumWorkers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	split := config.SplitFactor
	if split <= 0 {
		split = 1
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "setcp.SolveParallel",
		trace.WithAttributes(
			attribute.Int("workers", workers),
			attribute.Int("max_solutions", maxSolutions),
		))
	defer span.End()

	if err := s.model.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid model")
		return nil, fmt.Errorf("invalid model: %w", err)
	}
	if s.monitor != nil {
		defer s.monitor.FinishSearch()
	}

	root, _, err := s.propagate(nil)
	if err != nil {
		if errors.Is(err, ErrInconsistent) {
			s.log.V(1).Info("model inconsistent at root", "reason", err.Error())
			return []Solution{}, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "root propagation failed")
		return nil, err
	}

	workerCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	results := &collector{limit: maxSolutions, cancel: cancel}

	frontier := s.split(workerCtx, root, workers*split, results)
	span.SetAttributes(attribute.Int("subtrees", len(frontier)))
	s.log.V(1).Info("parallel search started", "workers", workers, "subtrees", len(frontier))

	pool := parallel.NewWorkerPool(workers)
	defer pool.Shutdown()

	for i, state := range frontier {
		if err := pool.Submit(workerCtx, func() {
			s.search(workerCtx, state, results.emit)
		}); err != nil {
			for _, rest := range frontier[i:] {
				s.ReleaseState(rest)
			}
			break
		}
	}
	pool.Wait()

	results.mu.Lock()
	solutions := results.solutions
	results.mu.Unlock()
	if solutions == nil {
		solutions = []Solution{}
	}

	span.SetAttributes(attribute.Int("solutions", len(solutions)))
	s.log.V(1).Info("parallel search finished", "solutions", len(solutions))
	return solutions, ctx.Err()
}

// split expands root breadth-first until the frontier holds at least
// target open nodes or nothing is left to expand. Solutions met on the way
// go to results. Takes ownership of root; the caller owns the returned
// states.
func (s *Solver) split(ctx context.Context, root *SolverState, target int, results *collector) []*SolverState {
	alternatives := s.alternatives()
	frontier := []*SolverState{root}

	for len(frontier) > 0 && len(frontier) < target {
		if ctx.Err() != nil {
			break
		}
		next := make([]*SolverState, 0, 2*len(frontier))
		for _, state := range frontier {
			varID, value := s.selectBranch(state)
			if varID == -1 {
				solution := s.extractSolution(state)
				s.ReleaseState(state)
				s.recordSolution()
				results.emit(solution)
				continue
			}
			if s.monitor != nil {
				s.monitor.RecordNode()
			}
			s.metrics.node()

			for _, include := range alternatives {
				child, ok := s.branch(state, varID, value, include)
				if !ok {
					continue
				}
				propagated, _, err := s.propagate(child)
				if err != nil {
					s.ReleaseState(child)
					continue
				}
				if propagated != child {
					s.ReleaseState(child)
				}
				next = append(next, propagated)
			}
			s.ReleaseState(state)
		}
		frontier = next
	}
	return frontier
}
