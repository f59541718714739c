package engine

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	iface "WasteDetServer/interface"
	"WasteDetServer/logger"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// JobPackage is one unit of work: it runs to completion on a single worker's
// model.
type JobPackage struct {
	ID   string
	run  func(model iface.Model)
	done chan struct{}
}

// Pool runs jobs on a fixed set of workers, each owning one model. A job never
// shares its model with another job while it runs.
type Pool struct {
	jobs    chan JobPackage
	models  []iface.Model
	mu      sync.RWMutex
	closed  bool
	workers sync.WaitGroup
}

// NewPool starts one worker per model.
func NewPool(models []iface.Model) *Pool {
	p := &Pool{
		jobs:   make(chan JobPackage, len(models)),
		models: models,
	}
	for i, m := range models {
		p.workers.Add(1)
		go p.runWorker(i, m)
	}
	return p
}

func (p *Pool) runWorker(workerID int, model iface.Model) {
	defer func() {
		if r := recover(); r != nil {
			logger.Log().Error(fmt.Sprintf("Worker %d panic: %v. Restarting in 1s...", workerID, r))
			time.Sleep(1 * time.Second)
			go p.runWorker(workerID, model)
			return
		}
		p.workers.Done()
	}()
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	logger.Log().Info("worker started", zap.Int("worker", workerID))
	for job := range p.jobs {
		func() {
			defer close(job.done)
			job.run(model)
		}()
	}
	logger.Log().Info("worker exiting", zap.Int("worker", workerID))
}

// Submit queues run and waits for it to finish. ctx only bounds the wait for
// a free worker; a started job is never interrupted.
func (p *Pool) Submit(ctx context.Context, run func(model iface.Model)) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return Modelf("worker pool is closed")
	}
	if len(p.models) == 0 {
		return Modelf("Failed to load model")
	}
	job := JobPackage{
		ID:   uuid.NewString(),
		run:  run,
		done: make(chan struct{}),
	}
	select {
	case p.jobs <- job:
	case <-ctx.Done():
		return Validationf("request cancelled before a worker was available: %v", ctx.Err())
	}
	<-job.done
	return nil
}

func (p *Pool) Size() int { return len(p.models) }

// Models returns the pool's models for inspection.
func (p *Pool) Models() []iface.Model { return p.models }

// Close stops accepting jobs, waits for running ones and closes every model.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()
	p.workers.Wait()
	var err error
	for _, m := range p.models {
		err = multierr.Append(err, m.Close())
	}
	return err
}
