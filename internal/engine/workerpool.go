// Package engine orchestrates rule processing across tenants: eligibility
// filtering, prioritized planning, bounded-concurrency execution and run
// metrics.
package engine

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// WorkerPool runs submitted tasks on a fixed set of goroutines.
type WorkerPool struct {
	tasks    chan func()
	stopChan chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
	logger   *logrus.Entry

	warnDepth int
}

// NewWorkerPool starts size workers with the given queue depth. warnDepth of
// zero disables queue depth warnings.
func NewWorkerPool(size, queueDepth, warnDepth int) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	if queueDepth <= 0 {
		queueDepth = size * 4
	}
	p := &WorkerPool{
		tasks:     make(chan func(), queueDepth),
		stopChan:  make(chan struct{}),
		logger:    logrus.WithField("component", "worker-pool"),
		warnDepth: warnDepth,
	}
	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()
	for {
		select {
		case task, ok := <-p.tasks:
			if !ok {
				return
			}
			task()
		case <-p.stopChan:
			// drain remaining queued tasks before exiting
			for {
				select {
				case task := <-p.tasks:
					task()
				default:
					return
				}
			}
		}
	}
}

// Submit enqueues a task, blocking when the queue is full. Returns false
// after Stop.
func (p *WorkerPool) Submit(task func()) bool {
	if p.warnDepth > 0 && len(p.tasks) >= p.warnDepth {
		p.logger.Warnf("task queue depth %d at warning threshold", len(p.tasks))
	}
	select {
	case <-p.stopChan:
		return false
	case p.tasks <- task:
		return true
	}
}

// Stop signals workers to finish queued work and waits for them.
func (p *WorkerPool) Stop() {
	p.once.Do(func() {
		close(p.stopChan)
	})
	p.wg.Wait()
}
