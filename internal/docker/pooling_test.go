package docker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sudankdk/codejudge/internal/sandbox"
)

func TestPoolRejectsWhenFull(t *testing.T) {
	p := NewPool(2, 0)

	r1, err := p.Acquire(context.Background())
	require.NoError(t, err)
	r2, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), p.InUse())

	_, err = p.Acquire(context.Background())
	assert.ErrorIs(t, err, sandbox.ErrOverloaded)

	r1()
	r1() // second call is a no-op
	assert.Equal(t, int64(1), p.InUse())

	r3, err := p.Acquire(context.Background())
	require.NoError(t, err)
	r2()
	r3()
	assert.Equal(t, int64(0), p.InUse())
}

func TestPoolWaitsForSlot(t *testing.T) {
	p := NewPool(1, time.Second)
	release, err := p.Acquire(context.Background())
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		release()
	}()

	r, err := p.Acquire(context.Background())
	require.NoError(t, err)
	r()
}

func TestPoolWaitTimesOut(t *testing.T) {
	p := NewPool(1, 20*time.Millisecond)
	release, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer release()

	_, err = p.Acquire(context.Background())
	assert.ErrorIs(t, err, sandbox.ErrOverloaded)
}

func TestPoolCallerCancelled(t *testing.T) {
	p := NewPool(1, time.Second)
	release, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Acquire(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPoolNeverExceedsSize(t *testing.T) {
	p := NewPool(3, time.Second)
	var (
		mu   sync.Mutex
		cur  int
		peak int
		wg   sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := p.Acquire(context.Background())
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			cur++
			if cur > peak {
				peak = cur
			}
			mu.Unlock()
			time.Sleep(5 * time.Millisecond)
			mu.Lock()
			cur--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, peak, 3)
	assert.Equal(t, int64(3), p.Size())
}
