package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollerDrainsWorkWithoutWaiting(t *testing.T) {
	var remaining int32 = 5
	var calls int32
	p := NewPoller("drain", func(ctx context.Context) (bool, error) {
		atomic.AddInt32(&calls, 1)
		if atomic.LoadInt32(&remaining) == 0 {
			return false, nil
		}
		atomic.AddInt32(&remaining, -1)
		return true, nil
	}, PollerConfig{Interval: time.Hour})

	p.Start(context.Background())
	defer p.Stop()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&remaining) == 0 }, time.Second, 5*time.Millisecond)
}

func TestPollerNotifyWakesIdleLoop(t *testing.T) {
	var calls int32
	p := NewPoller("wake", func(ctx context.Context) (bool, error) {
		atomic.AddInt32(&calls, 1)
		return false, nil
	}, PollerConfig{Interval: time.Hour})

	p.Start(context.Background())
	defer p.Stop()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, 5*time.Millisecond)
	p.Notify()
	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 2 }, time.Second, 5*time.Millisecond)
}

func TestPollerSurvivesErrorsAndPanics(t *testing.T) {
	var calls int32
	p := NewPoller("faulty", func(ctx context.Context) (bool, error) {
		n := atomic.AddInt32(&calls, 1)
		switch n {
		case 1:
			return false, errors.New("boom")
		case 2:
			panic("kaboom")
		}
		return false, nil
	}, PollerConfig{Interval: 5 * time.Millisecond})

	p.Start(context.Background())
	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) >= 3 }, time.Second, 5*time.Millisecond)
	p.Stop()
}

func TestPollerStepsNeverOverlap(t *testing.T) {
	var inFlight, maxInFlight int32
	p := NewPoller("serial", func(ctx context.Context) (bool, error) {
		n := atomic.AddInt32(&inFlight, 1)
		if n > atomic.LoadInt32(&maxInFlight) {
			atomic.StoreInt32(&maxInFlight, n)
		}
		time.Sleep(time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return true, nil
	}, PollerConfig{})

	p.Start(context.Background())
	for i := 0; i < 20; i++ {
		p.Notify()
	}
	time.Sleep(30 * time.Millisecond)
	p.Stop()

	assert.Equal(t, int32(1), atomic.LoadInt32(&maxInFlight))
}

func TestPollerStopWithoutStart(t *testing.T) {
	p := NewPoller("idle", func(ctx context.Context) (bool, error) { return false, nil }, PollerConfig{})
	p.Stop()
}
