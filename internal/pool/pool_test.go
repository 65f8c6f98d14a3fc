package pool

import (
	"context"
	stderrors "errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "github.com/ironsheep/image-doc-mcp/internal/errors"
)

func TestNew_Defaults(t *testing.T) {
	p := New(0, 0, nil)
	defer p.Close()

	stats := p.Stats()
	assert.Equal(t, runtime.NumCPU(), stats.Workers)
	assert.Equal(t, 2*runtime.NumCPU(), stats.QueueSize)
}

func TestSubmit_RunsTask(t *testing.T) {
	p := New(2, 4, zap.NewNop())
	defer p.Close()

	var ran atomic.Bool
	h, err := p.Submit(context.Background(), func(ctx context.Context) error {
		ran.Store(true)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, h.Wait(context.Background()))
	assert.True(t, ran.Load())
}

func TestSubmit_PropagatesError(t *testing.T) {
	p := New(1, 1, nil)
	defer p.Close()

	boom := stderrors.New("boom")
	h, err := p.Submit(context.Background(), func(ctx context.Context) error { return boom })
	require.NoError(t, err)
	assert.ErrorIs(t, h.Wait(context.Background()), boom)
	// A second Wait returns the same result.
	assert.ErrorIs(t, h.Wait(context.Background()), boom)
}

func TestPanicRecovered(t *testing.T) {
	p := New(1, 1, nil)
	defer p.Close()

	h, err := p.Submit(context.Background(), func(ctx context.Context) error {
		panic("kaboom")
	})
	require.NoError(t, err)

	err = h.Wait(context.Background())
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, apperrors.ErrTaskPanic))
	assert.Contains(t, err.Error(), "kaboom")

	// The worker survives.
	h, err = p.Submit(context.Background(), func(ctx context.Context) error { return nil })
	require.NoError(t, err)
	assert.NoError(t, h.Wait(context.Background()))
	assert.Equal(t, int64(1), p.Stats().Panics)
}

// blockWorkers occupies every worker until the returned release func runs.
func blockWorkers(t *testing.T, p *Pool) func() {
	t.Helper()
	release := make(chan struct{})
	var started sync.WaitGroup
	for i := 0; i < p.Workers(); i++ {
		started.Add(1)
		_, err := p.Submit(context.Background(), func(ctx context.Context) error {
			started.Done()
			<-release
			return nil
		})
		require.NoError(t, err)
	}
	started.Wait()
	return func() { close(release) }
}

func TestTrySubmit_Saturated(t *testing.T) {
	p := New(1, 1, nil)
	defer p.Close()

	release := blockWorkers(t, p)
	defer release()

	_, err := p.TrySubmit(context.Background(), func(ctx context.Context) error { return nil })
	require.NoError(t, err, "queue slot should be free")

	_, err = p.TrySubmit(context.Background(), func(ctx context.Context) error { return nil })
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, apperrors.ErrPoolSaturated))
}

func TestSubmit_BlocksUntilContextDone(t *testing.T) {
	p := New(1, 1, nil)
	defer p.Close()

	release := blockWorkers(t, p)
	defer release()

	_, err := p.Submit(context.Background(), func(ctx context.Context) error { return nil })
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = p.Submit(ctx, func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestSubmit_BackpressureReleases(t *testing.T) {
	p := New(1, 1, nil)
	defer p.Close()

	release := blockWorkers(t, p)
	_, err := p.Submit(context.Background(), func(ctx context.Context) error { return nil })
	require.NoError(t, err)

	submitted := make(chan error, 1)
	go func() {
		_, err := p.Submit(context.Background(), func(ctx context.Context) error { return nil })
		submitted <- err
	}()

	select {
	case <-submitted:
		t.Fatal("submit should block while the queue is full")
	case <-time.After(50 * time.Millisecond):
	}

	release()
	select {
	case err := <-submitted:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("submit did not unblock after workers freed up")
	}
}

func TestSkipsCanceledTasks(t *testing.T) {
	p := New(1, 2, nil)
	defer p.Close()

	release := blockWorkers(t, p)

	ctx, cancel := context.WithCancel(context.Background())
	var ran atomic.Bool
	h, err := p.Submit(ctx, func(ctx context.Context) error {
		ran.Store(true)
		return nil
	})
	require.NoError(t, err)

	cancel()
	release()

	err = h.Wait(context.Background())
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ran.Load())
}

func TestClose(t *testing.T) {
	p := New(2, 8, nil)

	var count atomic.Int32
	for i := 0; i < 8; i++ {
		_, err := p.Submit(context.Background(), func(ctx context.Context) error {
			time.Sleep(5 * time.Millisecond)
			count.Add(1)
			return nil
		})
		require.NoError(t, err)
	}

	p.Close()
	assert.Equal(t, int32(8), count.Load(), "queued tasks drain before Close returns")

	_, err := p.Submit(context.Background(), func(ctx context.Context) error { return nil })
	assert.True(t, stderrors.Is(err, apperrors.ErrPoolClosed))
	_, err = p.TrySubmit(context.Background(), func(ctx context.Context) error { return nil })
	assert.True(t, stderrors.Is(err, apperrors.ErrPoolClosed))

	p.Close()
}

func TestConcurrentSubmitters(t *testing.T) {
	p := New(4, 4, nil)
	defer p.Close()

	var sum atomic.Int64
	var wg sync.WaitGroup
	for i := 1; i <= 100; i++ {
		wg.Add(1)
		go func(n int64) {
			defer wg.Done()
			h, err := p.Submit(context.Background(), func(ctx context.Context) error {
				sum.Add(n)
				return nil
			})
			if !assert.NoError(t, err) {
				return
			}
			assert.NoError(t, h.Wait(context.Background()))
		}(int64(i))
	}
	wg.Wait()
	assert.Equal(t, int64(5050), sum.Load())
}
