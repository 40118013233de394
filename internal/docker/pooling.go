package docker

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sudankdk/codejudge/internal/metrics"
	"github.com/sudankdk/codejudge/internal/sandbox"
	"golang.org/x/sync/semaphore"
)

// Pool bounds how many sandbox containers exist at once. It hands out slots,
// not containers: every execution still gets a fresh container.
type Pool struct {
	sem   *semaphore.Weighted
	size  int64
	wait  time.Duration
	inUse atomic.Int64
}

// NewPool allows size concurrent containers. Acquire waits up to wait for a
// free slot; a zero wait fails immediately when the pool is full.
func NewPool(size int, wait time.Duration) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{
		sem:  semaphore.NewWeighted(int64(size)),
		size: int64(size),
		wait: wait,
	}
}

// Acquire reserves a slot. The returned release func must be called exactly
// once. sandbox.ErrOverloaded is returned when no slot frees up in time.
func (p *Pool) Acquire(ctx context.Context) (func(), error) {
	if p.wait <= 0 {
		if !p.sem.TryAcquire(1) {
			metrics.AdmissionRejections.Inc()
			return nil, sandbox.ErrOverloaded
		}
	} else {
		waitCtx, cancel := context.WithTimeout(ctx, p.wait)
		defer cancel()
		if err := p.sem.Acquire(waitCtx, 1); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			metrics.AdmissionRejections.Inc()
			return nil, sandbox.ErrOverloaded
		}
	}

	metrics.ActiveContainers.Set(float64(p.inUse.Add(1)))
	var once atomic.Bool
	return func() {
		if !once.CompareAndSwap(false, true) {
			return
		}
		metrics.ActiveContainers.Set(float64(p.inUse.Add(-1)))
		p.sem.Release(1)
	}, nil
}

func (p *Pool) Size() int64 {
	return p.size
}

func (p *Pool) InUse() int64 {
	return p.inUse.Load()
}
