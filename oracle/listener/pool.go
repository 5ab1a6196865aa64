package listener

import (
	"context"
	"sync"

	ethtypes "github.com/ethereum/go-ethereum/core/types"
)

// workerPool drains request logs from a bounded queue with a fixed number of workers.
type workerPool struct {
	queue   chan ethtypes.Log
	workers int
	quit    chan struct{}
	wg      sync.WaitGroup
}

func newWorkerPool(queueSize, workers int) *workerPool {
	if queueSize <= 0 {
		queueSize = 1
	}
	if workers <= 0 {
		workers = 1
	}
	return &workerPool{
		queue:   make(chan ethtypes.Log, queueSize),
		workers: workers,
		quit:    make(chan struct{}),
	}
}

// Start launches the workers. handle is called once per dequeued log.
func (p *workerPool) Start(ctx context.Context, handle func(context.Context, ethtypes.Log)) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, handle)
	}
}

// Stop shuts the workers down and waits for the ones busy with a log to finish.
func (p *workerPool) Stop() {
	close(p.quit)
	p.wg.Wait()
}

// Enqueue blocks while the queue is full, slowing the subscription down to the rate the
// workers keep up with.
func (p *workerPool) Enqueue(ctx context.Context, lg ethtypes.Log) error {
	select {
	case p.queue <- lg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *workerPool) worker(ctx context.Context, handle func(context.Context, ethtypes.Log)) {
	defer p.wg.Done()

	for {
		select {
		case lg := <-p.queue:
			handle(ctx, lg)
		case <-p.quit:
			return
		case <-ctx.Done():
			return
		}
	}
}
