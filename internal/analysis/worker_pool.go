package analysis

import (
	"runtime"
	"sync"
)

// WorkerPool fans region-level model work out across a fixed set of
// goroutines. Region crops are independent, so per-region inference runs
// concurrently.
type WorkerPool struct {
	workers  int
	jobQueue chan func()
	once     sync.Once
}

// NewWorkerPool creates a worker pool with the given number of workers.
// Non-positive counts default to the number of CPUs.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &WorkerPool{
		workers:  workers,
		jobQueue: make(chan func(), workers*2),
	}
}

// Start launches the workers. Calling Start more than once is a no-op.
func (wp *WorkerPool) Start() {
	wp.once.Do(func() {
		for i := 0; i < wp.workers; i++ {
			go wp.worker()
		}
	})
}

func (wp *WorkerPool) worker() {
	for job := range wp.jobQueue {
		job()
	}
}

// Submit enqueues a job, blocking when the queue is full.
func (wp *WorkerPool) Submit(job func()) {
	wp.jobQueue <- job
}

// RunAll submits jobs and blocks until every one has finished.
func (wp *WorkerPool) RunAll(jobs []func()) {
	var wg sync.WaitGroup
	wg.Add(len(jobs))
	for _, job := range jobs {
		job := job
		wp.Submit(func() {
			defer wg.Done()
			job()
		})
	}
	wg.Wait()
}

// Close shuts the pool down. Submit must not be called after Close.
func (wp *WorkerPool) Close() {
	close(wp.jobQueue)
}
