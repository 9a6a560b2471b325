package sigmatch

import (
	"runtime"
	"sync"
)

// pool is a fixed-size fork-join worker pool. Tasks are handed to workers
// through a bounded queue; Wait closes the queue and blocks until every
// submitted task has run.
type pool struct {
	tasks chan func()
	wg    sync.WaitGroup
}

// newPool starts n workers. n <= 0 selects runtime.NumCPU().
func newPool(n int) *pool {
	if n <= 0 {
		n = runtime.NumCPU()
	}
	p := &pool{tasks: make(chan func(), n*2)}
	for range n {
		p.wg.Go(func() {
			for task := range p.tasks {
				task()
			}
		})
	}
	return p
}

// Submit queues task, blocking while the queue is full.
func (p *pool) Submit(task func()) {
	p.tasks <- task
}

// Wait is the join barrier. The pool cannot be reused afterwards.
func (p *pool) Wait() {
	close(p.tasks)
	p.wg.Wait()
}
