package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blockscope/blockscope/pkg/analysis"
	"github.com/blockscope/blockscope/pkg/provider"
)

// Above this many workers most local model servers start queueing requests.
const largePoolWarning = 16

// Pool runs provider calls on a fixed number of goroutines fed by a bounded
// queue. Workers are the only place a provider is called and the cache is
// the only structure they write.
type Pool struct {
	provider   provider.Provider
	cache      *analysis.Cache
	timeout    time.Duration
	log        *slog.Logger
	onComplete func(Event)

	queue   chan target
	workers int

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	processed atomic.Int64
	failed    atomic.Int64
	stale     atomic.Int64
}

func (e *Engine) newPool(workers int) (*Pool, error) {
	if workers < 1 {
		return nil, &ConfigError{Field: "workers", Reason: fmt.Sprintf("must be at least 1, got %d", workers)}
	}
	if workers > largePoolWarning {
		e.log.Warn("large worker pool; providers may throttle", "workers", workers)
	}

	p := &Pool{
		provider:   e.provider,
		cache:      e.cache,
		timeout:    e.cfg.CallTimeout,
		log:        e.log,
		onComplete: e.publish,
		queue:      make(chan target, e.cfg.QueueSize),
		workers:    workers,
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	e.log.Debug("worker pool started", "workers", workers, "queue_size", e.cfg.QueueSize)
	return p, nil
}

// Submit queues t, blocking while the queue is full. The caller must hold
// the reservation for (t.id, t.fp).
func (p *Pool) Submit(ctx context.Context, t target) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.queue <- t:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting work and waits for queued and in-flight jobs.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()
	p.wg.Wait()
	p.log.Debug("worker pool stopped",
		"processed", p.processed.Load(),
		"failed", p.failed.Load(),
		"stale", p.stale.Load())
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for t := range p.queue {
		p.process(id, t)
	}
}

func (p *Pool) process(worker int, t target) {
	start := time.Now()
	res, err := p.call(t)
	p.processed.Add(1)

	if !p.cache.Complete(t.id, t.fp, analysis.Result{Summary: res.Summary, Pseudocode: res.Pseudocode}, err) {
		p.stale.Add(1)
		p.log.Debug("stale completion discarded", "node", t.id)
		return
	}
	if err != nil {
		p.failed.Add(1)
		p.log.Warn("analysis failed", "node", t.id, "worker", worker, "error", err, "duration", time.Since(start))
	} else {
		p.log.Debug("analysis complete", "node", t.id, "worker", worker, "duration", time.Since(start))
	}

	if p.onComplete != nil {
		if entry, ok := p.cache.Get(t.id); ok && entry.Fingerprint == t.fp && entry.Status.Terminal() {
			p.onComplete(Event{NodeID: t.id, Entry: entry})
		}
	}
}

// call runs one provider call under the pool's timeout. A provider that
// ignores its context is abandoned at the deadline; its late result is
// dropped.
func (p *Pool) call(t target) (provider.Result, error) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	type outcome struct {
		res provider.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		var o outcome
		defer func() {
			if r := recover(); r != nil {
				o = outcome{err: fmt.Errorf("provider panicked: %v", r)}
			}
			done <- o
		}()
		o.res, o.err = p.provider.Analyze(ctx, t.req)
	}()

	select {
	case o := <-done:
		if o.err != nil && errors.Is(o.err, context.DeadlineExceeded) {
			return provider.Result{}, p.timeoutError()
		}
		return o.res, o.err
	case <-ctx.Done():
		return provider.Result{}, p.timeoutError()
	}
}

func (p *Pool) timeoutError() error {
	return fmt.Errorf("analysis timed out after %s", p.timeout)
}
