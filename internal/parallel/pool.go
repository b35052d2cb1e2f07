// Package parallel provides the worker pool used to explore independent
// search subtrees concurrently. Tasks are submitted through a bounded
// channel, so a producer that outruns the workers blocks instead of
// queueing unbounded work.
package parallel

import (
	"context"
	"errors"
	"runtime"
	"sync"
)

// ErrPoolShutdown is returned by Submit once Shutdown has been called.
var ErrPoolShutdown = errors.New("worker pool has been shutdown")

// WorkerPool manages a fixed set of goroutines executing submitted tasks.
type WorkerPool struct {
	maxWorkers   int
	taskChan     chan func()
	workerWg     sync.WaitGroup
	taskWg       sync.WaitGroup
	shutdownChan chan struct{}
	once         sync.Once
}

// NewWorkerPool starts maxWorkers goroutines, or one per CPU when
// maxWorkers <= 0.
func NewWorkerPool(maxWorkers int) *WorkerPool {
	if maxWorkers <= 0 {
		maxWorkers = runtime.NumCPU()
	}

	pool := &WorkerPool{
		maxWorkers:   maxWorkers,
		taskChan:     make(chan func(), maxWorkers*2),
		shutdownChan: make(chan struct{}),
	}

	for i := 0; i < maxWorkers; i++ {
		pool.workerWg.Add(1)
		go pool.worker()
	}

	return pool
}

// Size returns the number of workers.
func (wp *WorkerPool) Size() int {
	return wp.maxWorkers
}

// worker runs tasks until shutdown, then drains what was already queued.
func (wp *WorkerPool) worker() {
	defer wp.workerWg.Done()

	for {
		select {
		case task := <-wp.taskChan:
			wp.run(task)
		case <-wp.shutdownChan:
			for {
				select {
				case task := <-wp.taskChan:
					wp.run(task)
				default:
					return
				}
			}
		}
	}
}

func (wp *WorkerPool) run(task func()) {
	defer wp.taskWg.Done()
	if task != nil {
		task()
	}
}

// Submit queues task. It blocks while the queue is full and gives up when
// ctx is done or the pool shuts down.
func (wp *WorkerPool) Submit(ctx context.Context, task func()) error {
	select {
	case <-wp.shutdownChan:
		return ErrPoolShutdown
	default:
	}

	wp.taskWg.Add(1)
	select {
	case wp.taskChan <- task:
		return nil
	case <-ctx.Done():
		wp.taskWg.Done()
		return ctx.Err()
	case <-wp.shutdownChan:
		wp.taskWg.Done()
		return ErrPoolShutdown
	}
}

// Wait blocks until every task accepted so far has finished.
func (wp *WorkerPool) Wait() {
	wp.taskWg.Wait()
}

// Shutdown stops the pool after the accepted tasks complete. Further
// submissions fail with ErrPoolShutdown.
func (wp *WorkerPool) Shutdown() {
	wp.once.Do(func() {
		close(wp.shutdownChan)
		wp.workerWg.Wait()
	})
}
