package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pacotes-bot/internal/packages"
)

type tickerStub struct {
	calls   atomic.Int32
	release chan struct{}
	started chan struct{}
	result  packages.TickResult
}

func (t *tickerStub) Tick(ctx context.Context) packages.TickResult {
	t.calls.Add(1)
	if t.started != nil {
		t.started <- struct{}{}
	}
	if t.release != nil {
		<-t.release
	}
	return t.result
}

func TestRunOnce_ReturnsTickResult(t *testing.T) {
	stub := &tickerStub{result: packages.TickResult{Renewed: 2, Expired: 1}}
	r := NewRenewer(stub, Options{Interval: time.Hour})

	result, ran := r.RunOnce(context.Background())

	require.True(t, ran)
	assert.Equal(t, 2, result.Renewed)
	assert.Equal(t, 1, result.Expired)
}

func TestRunOnce_SkipsWhilePreviousTickRuns(t *testing.T) {
	stub := &tickerStub{
		release: make(chan struct{}),
		started: make(chan struct{}, 1),
	}
	r := NewRenewer(stub, Options{Interval: time.Hour})

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.RunOnce(context.Background())
	}()
	<-stub.started

	_, ran := r.RunOnce(context.Background())
	assert.False(t, ran)

	close(stub.release)
	<-done
	assert.Equal(t, int32(1), stub.calls.Load())

	stub.started = nil
	_, ran = r.RunOnce(context.Background())
	assert.True(t, ran)
}

func TestStart_RunsInitialTickAfterDelay(t *testing.T) {
	stub := &tickerStub{}
	r := NewRenewer(stub, Options{Interval: time.Hour, InitialDelay: 10 * time.Millisecond})

	r.Start()
	require.Eventually(t, func() bool { return stub.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	ctx := r.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("stop did not finish")
	}
}

func TestStop_WaitsForTickInProgress(t *testing.T) {
	stub := &tickerStub{
		release: make(chan struct{}),
		started: make(chan struct{}, 1),
	}
	r := NewRenewer(stub, Options{Interval: time.Hour, InitialDelay: 0})
	r.Start()
	<-stub.started

	ctx := r.Stop()
	select {
	case <-ctx.Done():
		t.Fatal("stop finished while a tick was running")
	case <-time.After(20 * time.Millisecond):
	}

	close(stub.release)
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("stop did not finish after the tick returned")
	}
}

func TestNewRenewer_Defaults(t *testing.T) {
	r := NewRenewer(&tickerStub{}, Options{InitialDelay: -1})

	assert.Equal(t, DefaultInterval, r.opts.Interval)
	assert.Equal(t, DefaultInitialDelay, r.opts.InitialDelay)
	assert.Equal(t, DefaultInterval, r.opts.TickTimeout)
}

func TestStop_BeforeInitialTickPreventsIt(t *testing.T) {
	stub := &tickerStub{}
	r := NewRenewer(stub, Options{Interval: time.Hour, InitialDelay: 50 * time.Millisecond})
	r.Start()

	ctx := r.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("stop did not finish")
	}

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(0), stub.calls.Load())
}

func TestRunScheduled_IgnoredAfterStop(t *testing.T) {
	stub := &tickerStub{}
	r := NewRenewer(stub, Options{Interval: time.Hour, InitialDelay: time.Hour})
	r.Start()
	<-r.Stop().Done()

	// A timer callback that fired just before Stop arrives late.
	r.runScheduled()

	assert.Equal(t, int32(0), stub.calls.Load())
}
