package engine

import (
	"context"
	"sync"
)

// JobHandler processes one TransferJob. Failures are the handler's to record.
type JobHandler func(context.Context, TransferJob)

// WorkerPool runs a fixed number of workers over one batch's job channel.
type WorkerPool struct {
	jobChan JobChannel
	handler JobHandler
	ctx     context.Context
	wg      sync.WaitGroup
}

// NewWorkerPool starts workers goroutines, at least one, taking jobs from
// jobChan until it is closed and drained or ctx ends.
func NewWorkerPool(ctx context.Context, jobChan JobChannel, workers int, handler JobHandler) *WorkerPool {
	p := &WorkerPool{
		jobChan: jobChan,
		handler: handler,
		ctx:     ctx,
	}

	p.wg.Add(max(workers, 1))
	for i := 0; i < max(workers, 1); i++ {
		go p.work()
	}
	return p
}

func (p *WorkerPool) work() {
	defer p.wg.Done()
	for {
		// A cancelled batch stops taking jobs even while some are queued.
		select {
		case <-p.ctx.Done():
			return
		default:
		}

		select {
		case <-p.ctx.Done():
			return
		case job, ok := <-p.jobChan:
			if !ok {
				return
			}
			p.handler(p.ctx, job)
		}
	}
}

// Wait blocks until every worker has exited.
func (p *WorkerPool) Wait() {
	p.wg.Wait()
}
