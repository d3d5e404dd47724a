package embedding

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_CapsInFlight(t *testing.T) {
	pool := NewPool(2, 8)
	defer pool.Close()

	var inFlight, peak int32
	for i := 0; i < 10; i++ {
		err := pool.Submit(context.Background(), func(ctx context.Context) error {
			n := atomic.AddInt32(&inFlight, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&inFlight, -1)
			return nil
		})
		require.NoError(t, err)
	}

	require.NoError(t, pool.Wait())
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
	assert.Equal(t, int32(0), atomic.LoadInt32(&inFlight))
}

func TestPool_AdmitsInSubmissionOrder(t *testing.T) {
	pool := NewPool(1, 16)
	defer pool.Close()

	var mu sync.Mutex
	var order []int
	for i := 0; i < 8; i++ {
		i := i
		require.NoError(t, pool.Submit(context.Background(), func(ctx context.Context) error {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		}))
	}
	require.NoError(t, pool.Wait())
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7}, order)
}

func TestPool_WaitReturnsFirstErrorAndResets(t *testing.T) {
	pool := NewPool(1, 4)
	defer pool.Close()

	boom := errors.New("boom")
	require.NoError(t, pool.Submit(context.Background(), func(ctx context.Context) error { return boom }))
	require.NoError(t, pool.Submit(context.Background(), func(ctx context.Context) error { return errors.New("later") }))

	assert.ErrorIs(t, pool.Wait(), boom)
	assert.NoError(t, pool.Wait())
}

func TestPool_SubmitHonoursCancellation(t *testing.T) {
	pool := NewPool(1, 1)
	defer pool.Close()

	release := make(chan struct{})
	block := func(ctx context.Context) error {
		<-release
		return nil
	}
	// one running, one queued
	require.NoError(t, pool.Submit(context.Background(), block))
	require.NoError(t, pool.Submit(context.Background(), block))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	var err error
	for i := 0; i < 3 && err == nil; i++ {
		err = pool.Submit(ctx, block)
	}
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// a task queued under the expired context may fail admission; either way Wait returns
	close(release)
	pool.Wait()
}

func TestNewPool_Defaults(t *testing.T) {
	pool := NewPool(0, 0)
	defer pool.Close()
	assert.Equal(t, DefaultConcurrency*4, cap(pool.queue))
}
