package ratelimit

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdmitsImmediatelyUnderCapacity(t *testing.T) {
	l := New(5, time.Second)

	start := time.Now()
	for i := 0; i < 5; i++ {
		err := l.Do(context.Background(), func() error { return nil })
		require.NoError(t, err)
	}
	assert.Less(t, time.Since(start), 200*time.Millisecond)
}

func TestThirdCallWaitsForWindow(t *testing.T) {
	window := 300 * time.Millisecond
	l := New(2, window)

	var (
		mu        sync.Mutex
		completed []int
		times     []time.Duration
	)
	start := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		id := i
		go func() {
			defer wg.Done()
			_ = l.Do(context.Background(), func() error {
				mu.Lock()
				completed = append(completed, id)
				times = append(times, time.Since(start))
				mu.Unlock()
				return nil
			})
		}()
		time.Sleep(20 * time.Millisecond) // enforce submission order
	}
	wg.Wait()

	require.Equal(t, []int{0, 1, 2}, completed, "completion order equals submission order")
	assert.Less(t, times[1], window, "first two calls are not delayed")
	assert.GreaterOrEqual(t, times[2], window-50*time.Millisecond, "third call waits for the window")
	assert.Less(t, times[2], window+500*time.Millisecond, "third call is admitted promptly after the window")
}

func TestWindowCapNeverExceeded(t *testing.T) {
	window := 200 * time.Millisecond
	l := New(3, window)

	var (
		mu     sync.Mutex
		stamps []time.Time
	)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.Do(context.Background(), func() error {
				mu.Lock()
				stamps = append(stamps, time.Now())
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	sort.Slice(stamps, func(i, j int) bool { return stamps[i].Before(stamps[j]) })

	// In any rolling window there are at most maxCalls admissions: the
	// fourth-from-any admission must be at least a window after it.
	for i := 3; i < len(stamps); i++ {
		gap := stamps[i].Sub(stamps[i-3])
		assert.GreaterOrEqual(t, gap, window-50*time.Millisecond,
			"admissions %d and %d fall inside one window", i-3, i)
	}
}

func TestErrorPropagatesOnlyToOwnCaller(t *testing.T) {
	l := New(10, time.Second)
	boom := errors.New("boom")

	err := l.Do(context.Background(), func() error { return boom })
	require.ErrorIs(t, err, boom)

	err = l.Do(context.Background(), func() error { return nil })
	assert.NoError(t, err, "a failing operation does not poison the queue")
}

func TestCancelledContextStillConsumesSlot(t *testing.T) {
	l := New(1, 300*time.Millisecond)

	// Fill the window.
	require.NoError(t, l.Do(context.Background(), func() error { return nil }))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ran := false
	err := l.Do(ctx, func() error { ran = true; return nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ran, "cancelled work is not executed")
}

func TestPendingDrainsToZero(t *testing.T) {
	l := New(2, 100*time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.Do(context.Background(), func() error { return nil })
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, l.Pending())
}
