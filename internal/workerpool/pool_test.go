package workerpool

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestPool_RunsAllTasksWithBoundedConcurrency(t *testing.T) {
	p := New(2, testLogger())
	defer p.Close()

	var running, peak, done atomic.Int32
	var wg sync.WaitGroup

	for range 10 {
		wg.Add(1)
		err := p.Submit(context.Background(), func(context.Context) {
			defer wg.Done()
			n := running.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
			done.Add(1)
		})
		require.NoError(t, err)
	}
	wg.Wait()

	assert.Equal(t, int32(10), done.Load())
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestPool_ReusedAcrossBatches(t *testing.T) {
	p := New(3, testLogger())
	defer p.Close()

	for batch := range 3 {
		results := make(chan int, 4)
		for i := range 4 {
			require.NoError(t, p.Submit(context.Background(), func(context.Context) {
				results <- batch*10 + i
			}))
		}
		got := 0
		for range 4 {
			<-results
			got++
		}
		assert.Equal(t, 4, got)
	}
}

func TestPool_SubmitAfterClose(t *testing.T) {
	p := New(1, testLogger())
	p.Close()
	p.Close()

	err := p.Submit(context.Background(), func(context.Context) {})
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestPool_SubmitHonoursContext(t *testing.T) {
	p := New(1, testLogger())
	defer p.Close()

	release := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), func(context.Context) { <-release }))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := p.Submit(ctx, func(context.Context) {})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
}

func TestNew_DefaultsToOneWorker(t *testing.T) {
	p := New(0, testLogger())
	defer p.Close()
	assert.Equal(t, 1, p.Size())
}

func TestPool_RecoversTaskPanics(t *testing.T) {
	p := New(1, testLogger())

	done := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), func(context.Context) { panic("bad diff") }))
	require.NoError(t, p.Submit(context.Background(), func(context.Context) { close(done) }))
	<-done

	err := p.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad diff")
	assert.NoError(t, p.Close())
}
