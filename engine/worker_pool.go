package engine

import (
	"context"
	"sync"
)

// RequestHandler runs one request on the worker's own orchestrator and
// returns once the transfer has finished.
type RequestHandler func(ctx context.Context, o *Orchestrator, req TransferRequest) error

// WorkerPool bounds how many transfers run at once. Every worker owns a
// private Orchestrator, so workers never contend for one another's state.
type WorkerPool struct {
	requests RequestChannel
	factory  func() *Orchestrator
	handler  RequestHandler

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	workers     map[int]chan struct{}
	workerCount int
	nextID      int
	wg          sync.WaitGroup
}

// NewWorkerPool creates a pool with no workers; call SetWorkerCount to start them.
func NewWorkerPool(ctx context.Context, requests RequestChannel, factory func() *Orchestrator, handler RequestHandler) *WorkerPool {
	ctx, cancel := context.WithCancel(ctx)
	return &WorkerPool{
		requests: requests,
		factory:  factory,
		handler:  handler,
		ctx:      ctx,
		cancel:   cancel,
		workers:  make(map[int]chan struct{}),
	}
}

// SetWorkerCount scales the number of workers up or down. Removed workers
// finish their current transfer first.
func (p *WorkerPool) SetWorkerCount(count int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for p.workerCount < count {
		p.addWorker()
	}
	for p.workerCount > count {
		p.removeWorker()
	}
}

// WorkerCount returns the current target number of workers.
func (p *WorkerPool) WorkerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.workerCount
}

func (p *WorkerPool) addWorker() {
	quit := make(chan struct{})
	id := p.nextID
	p.nextID++
	p.workers[id] = quit
	p.workerCount++
	p.wg.Add(1)

	orch := p.factory()

	go func() {
		defer p.wg.Done()
		for {
			select {
			case <-quit:
				return
			case <-p.ctx.Done():
				return
			default:
			}

			select {
			case <-quit:
				return
			case <-p.ctx.Done():
				return
			case req, ok := <-p.requests:
				if !ok {
					return
				}
				if err := p.handler(p.ctx, orch, req); err != nil {
					log.Warnw("worker transfer error", "worker", id, "tag", req.Tag, "error", err)
				}
			}
		}
	}()
}

func (p *WorkerPool) removeWorker() {
	for id, quit := range p.workers {
		close(quit)
		delete(p.workers, id)
		p.workerCount--
		return
	}
}

// Wait blocks until every worker has exited, which happens once the request
// channel is closed and drained.
func (p *WorkerPool) Wait() {
	p.wg.Wait()
}

// Stop cancels running transfers and waits for the workers to exit.
func (p *WorkerPool) Stop() {
	p.cancel()
	p.wg.Wait()
}

// RunTransfer is the usual RequestHandler body: start the request, forward
// progress, and block until the outcome is known.
func RunTransfer(ctx context.Context, o *Orchestrator, req TransferRequest, onProgress ProgressFunc) (Outcome, error) {
	h, err := o.Start(ctx, req, onProgress)
	if err != nil {
		return Outcome{}, err
	}
	return h.Wait(), nil
}
