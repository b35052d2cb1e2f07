package setcp

// monitor.go: monitoring and statistics for the set solver

import (
	"fmt"
	"sync"
	"time"
)

// SolverStats holds statistics about the solving process
type SolverStats struct {
	// Search statistics
	NodesExplored  int           // Branching decisions taken
	Backtracks     int           // Alternatives abandoned or exhausted
	SolutionsFound int           // Assignments emitted
	SearchTime     time.Duration // Wall time from monitor creation to FinishSearch
	MaxDepth       int           // Deepest DFS stack seen

	// Propagation statistics
	PropagationCount int           // Number of fixpoint computations
	PropagationTime  time.Duration // Wall time inside fixpoint loops
	Failures         int           // Number of fixpoints ending in failure
	Exclusions       int           // Number of values removed by propagators

	// Domain statistics
	InitialUnknown   []int // Undecided elements per variable before solving
	FinalUnknown     []int // Undecided elements per variable after propagation
	DomainReductions []int // Reduction of undecided elements per variable

	PeakQueueSize int // Peak number of scheduled propagators
}

// SolverMonitor collects statistics for a Solver. All methods are safe for
// concurrent use, so one monitor can serve parallel workers.
type SolverMonitor struct {
	mu        sync.Mutex
	stats     *SolverStats
	startTime time.Time
}

// NewSolverMonitor returns a monitor whose search clock starts now.
func NewSolverMonitor() *SolverMonitor {
	return &SolverMonitor{
		stats: &SolverStats{
			InitialUnknown:   make([]int, 0),
			FinalUnknown:     make([]int, 0),
			DomainReductions: make([]int, 0),
		},
		startTime: time.Now(),
	}
}

// GetStats returns a snapshot of the counters.
func (m *SolverMonitor) GetStats() *SolverStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := *m.stats
	return &stats
}

// RecordPropagation records one fixpoint computation and its duration
func (m *SolverMonitor) RecordPropagation(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.PropagationCount++
	m.stats.PropagationTime += d
}

// RecordFailure records a fixpoint computation that detected a contradiction
func (m *SolverMonitor) RecordFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.Failures++
}

// RecordExclusion records a propagator removing a value from an upper bound
func (m *SolverMonitor) RecordExclusion() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.Exclusions++
}

// RecordBacktrack counts an abandoned branch.
func (m *SolverMonitor) RecordBacktrack() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.Backtracks++
}

// RecordNode counts one branching decision.
func (m *SolverMonitor) RecordNode() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.NodesExplored++
}

// RecordSolution counts an emitted solution.
func (m *SolverMonitor) RecordSolution() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.SolutionsFound++
}

// RecordDepth keeps the maximum depth seen.
func (m *SolverMonitor) RecordDepth(depth int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if depth > m.stats.MaxDepth {
		m.stats.MaxDepth = depth
	}
}

// RecordQueueSize keeps the largest number of propagators scheduled in one round.
func (m *SolverMonitor) RecordQueueSize(size int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if size > m.stats.PeakQueueSize {
		m.stats.PeakQueueSize = size
	}
}

// CaptureInitialDomains records the undecided element count of every
// model variable before solving
func (m *SolverMonitor) CaptureInitialDomains(model *Model) {
	vars := model.Variables()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.stats.InitialUnknown = make([]int, len(vars))
	for i, v := range vars {
		m.stats.InitialUnknown[i] = unknownCount(v.Domain())
	}
}

// CaptureFinalDomains records the undecided element counts in state and
// computes reductions
func (m *SolverMonitor) CaptureFinalDomains(solver *Solver, state *SolverState) {
	n := solver.Model().VariableCount()
	final := make([]int, n)
	for i := range final {
		final[i] = unknownCount(solver.GetDomain(state, i))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.stats.FinalUnknown = final
	m.stats.DomainReductions = make([]int, n)
	for i := range final {
		if i < len(m.stats.InitialUnknown) {
			m.stats.DomainReductions[i] = m.stats.InitialUnknown[i] - final[i]
		}
	}
}

// FinishSearch stops the search clock.
func (m *SolverMonitor) FinishSearch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.SearchTime = time.Since(m.startTime)
}

// String renders the statistics as a short multi-line report.
func (s *SolverStats) String() string {
	return fmt.Sprintf(
		"Solver Statistics:\n"+
			"  Search: %d nodes, %d backtracks, %d solutions in %v, depth %d\n"+
			"  Propagation: %d fixpoints, %d exclusions, %d failures in %v, peak queue %d\n"+
			"  Bounds: %d variables, %.1f undecided elements removed on average",
		s.NodesExplored, s.Backtracks, s.SolutionsFound, s.SearchTime, s.MaxDepth,
		s.PropagationCount, s.Exclusions, s.Failures, s.PropagationTime, s.PeakQueueSize,
		len(s.DomainReductions), s.averageReduction(),
	)
}

// averageReduction computes the average reduction of undecided elements
func (s *SolverStats) averageReduction() float64 {
	n := len(s.DomainReductions)
	if n == 0 {
		return 0
	}
	sum := 0
	for _, r := range s.DomainReductions {
		sum += r
	}
	return float64(sum) / float64(n)
}

func unknownCount(d *SetDomain) int {
	return d.Lub().Size() - d.Glb().Size()
}
