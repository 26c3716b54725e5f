package pool

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSubmitRunsFIFO(t *testing.T) {
	p := New(1)
	defer p.Shutdown()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		i := i
		wg.Add(1)
		require.Nil(t, p.Submit(func() {
			defer wg.Done()
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}))
	}
	wg.Wait()
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, order)
}

func TestManyWorkers(t *testing.T) {
	p := New(4)
	defer p.Shutdown()
	assert.Equal(t, 4, p.Workers())

	var n atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		p.Submit(func() {
			defer wg.Done()
			n.Add(1)
		})
	}
	wg.Wait()
	assert.Equal(t, int32(100), n.Load())
}

// blockedPool returns a single worker pool whose worker is busy until release is closed,
// with queued more jobs waiting behind it.
func blockedPool(t *testing.T, queued int, opts ...Option) (p *Pool, release chan struct{}, first *atomic.Bool, ran *atomic.Int32) {
	p = New(1, opts...)
	release = make(chan struct{})
	started := make(chan struct{})
	first, ran = &atomic.Bool{}, &atomic.Int32{}

	require.Nil(t, p.Submit(func() {
		close(started)
		<-release
		first.Store(true)
	}))
	<-started

	for i := 0; i < queued; i++ {
		require.Nil(t, p.Submit(func() { ran.Add(1) }))
	}
	assert.Equal(t, queued, p.Pending())
	return
}

func shutdownWhileBusy(t *testing.T, p *Pool, release chan struct{}) {
	done := make(chan error, 1)
	go func() { done <- p.Shutdown() }()

	assert.Eventually(t, p.Closed, time.Second, time.Millisecond)
	close(release)

	select {
	case err := <-done:
		assert.Nil(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown did not return")
	}
}

func TestShutdownAbandonsQueuedJobs(t *testing.T) {
	p, release, first, ran := blockedPool(t, 4)
	shutdownWhileBusy(t, p, release)

	assert.True(t, first.Load(), "dequeued job must finish")
	assert.Equal(t, int32(0), ran.Load())
	assert.Equal(t, 4, p.Discarded())
	assert.Equal(t, 0, p.Pending())
}

func TestShutdownWithDrain(t *testing.T) {
	p, release, first, ran := blockedPool(t, 4, WithDrain())
	shutdownWhileBusy(t, p, release)

	assert.True(t, first.Load())
	assert.Equal(t, int32(4), ran.Load())
	assert.Equal(t, 0, p.Discarded())
}

func TestSubmitAfterShutdown(t *testing.T) {
	p := New(2)
	assert.Nil(t, p.Shutdown())
	assert.Equal(t, ErrPoolClosed, p.Submit(func() {}))
	assert.Equal(t, ErrPoolClosed, p.Shutdown())
	assert.NotNil(t, p.Submit(nil))
}

func TestPanickingJob(t *testing.T) {
	p := New(1)
	defer p.Shutdown()

	done := make(chan struct{})
	require.Nil(t, p.Submit(func() { panic("boom") }))
	require.Nil(t, p.Submit(func() { close(done) }))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker died after panic")
	}
}

func TestObserver(t *testing.T) {
	var calls atomic.Int32
	p := New(1, WithObserver(func(pending int) { calls.Add(1) }))

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		p.Submit(wg.Done)
	}
	wg.Wait()
	assert.Eventually(t, func() bool { return calls.Load() == 3 }, time.Second, time.Millisecond)
	p.Shutdown()
}
