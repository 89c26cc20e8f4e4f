package engine

import (
	"context"
	"fmt"

	"github.com/blockscope/blockscope/pkg/analysis"
	"github.com/blockscope/blockscope/pkg/block"
)

// Future is the eventual analysis of one block. Every Future resolves to a
// Ready or Failed entry, or to an error for requests that cannot be served.
type Future struct {
	done  chan struct{}
	entry analysis.Entry
	err   error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func resolved(entry analysis.Entry, err error) *Future {
	f := newFuture()
	f.resolve(entry, err)
	return f
}

func (f *Future) resolve(entry analysis.Entry, err error) {
	f.entry, f.err = entry, err
	close(f.done)
}

// Done is closed once the future has resolved.
func (f *Future) Done() <-chan struct{} { return f.done }

// Wait blocks until the analysis resolves or ctx is done. Giving up on the
// wait does not cancel the analysis; its result still lands in the cache.
func (f *Future) Wait(ctx context.Context) (analysis.Entry, error) {
	select {
	case <-f.done:
		return f.entry, f.err
	case <-ctx.Done():
		return analysis.Entry{}, ctx.Err()
	}
}

// Request resolves one block interactively. A Ready entry for the block's
// current content resolves immediately; a pending analysis is shared; a
// Failed entry is retried. At most one analysis per block is in flight.
func (e *Engine) Request(ctx context.Context, id string) (*Future, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	n, ok := e.tree.Node(id)
	if !ok {
		e.mu.Unlock()
		return nil, fmt.Errorf("request %q: %w", id, ErrUnknownNode)
	}
	if n.Kind == block.KindDirectory {
		entry := e.directoryEntry(n)
		e.mu.Unlock()
		return resolved(entry, nil), nil
	}
	fp := n.Fingerprint()
	e.mu.Unlock()

	if entry, ok := e.cache.Get(id); ok && entry.Status == analysis.StatusReady && entry.Fingerprint == fp {
		return resolved(entry, nil), nil
	}

	f := newFuture()
	go e.await(id, f)
	return f, nil
}

// await drives id to a terminal state on the interactive pool.
func (e *Engine) await(id string, f *Future) {
	retryFailed := true
	for {
		wait, err := e.dispatch(context.Background(), e.pool, id, retryFailed)
		if err != nil {
			f.resolve(analysis.Entry{}, err)
			return
		}
		if wait == nil {
			if entry, _ := e.cache.Get(id); entry.Status.Terminal() {
				f.resolve(entry, nil)
				return
			}
			continue
		}
		<-wait
		retryFailed = false
	}
}

// dispatch makes sure an analysis of id at its current content is either
// finished or in flight. It returns nil when the cache already holds a
// terminal entry for the current fingerprint, otherwise a channel closed
// when the pending reservation ends. A Failed entry is re-reserved when
// retryFailed is set. When the job cannot be queued the reservation is
// released and the error wraps ErrNotStarted.
func (e *Engine) dispatch(ctx context.Context, pool *Pool, id string, retryFailed bool) (<-chan struct{}, error) {
	for {
		t, err := e.lookup(id)
		if err != nil {
			return nil, err
		}

		entry, _ := e.cache.Get(id)
		if entry.Fingerprint == t.fp {
			switch {
			case entry.Status == analysis.StatusReady:
				return nil, nil
			case entry.Status == analysis.StatusFailed && !retryFailed:
				return nil, nil
			}
		}

		if e.cache.Reserve(id, t.fp) {
			// Take the wait channel before submitting so a fast completion
			// cannot be missed.
			wait, _ := e.cache.Wait(id)
			if err := pool.Submit(ctx, t); err != nil {
				// The provider never saw the block; leave no entry behind.
				e.cache.Release(id, t.fp)
				return nil, fmt.Errorf("analyze %q: %w: %w", id, ErrNotStarted, err)
			}
			return wait, nil
		}

		if wait, ok := e.cache.Wait(id); ok {
			return wait, nil
		}
		// The reservation ended between Reserve and Wait; look again.
	}
}
