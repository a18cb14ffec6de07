package lock_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"decayfm/core/lock"
)

func TestMutualExclusion(t *testing.T) {
	m := lock.NewManager(5 * time.Second)
	ctx := context.Background()

	var inside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l, err := m.Acquire(ctx, "track.wav", 7)
			require.NoError(t, err)
			defer l.Release()

			if !atomic.CompareAndSwapInt32(&inside, 0, 1) {
				t.Error("two holders inside the same segment lock")
			}
			time.Sleep(2 * time.Millisecond)
			atomic.StoreInt32(&inside, 0)
		}()
	}
	wg.Wait()
	assert.Zero(t, m.Active(), "table must be empty once everyone is done")
}

func TestIndependentKeysDoNotBlock(t *testing.T) {
	m := lock.NewManager(5 * time.Second)
	ctx := context.Background()

	held, err := m.Acquire(ctx, "a.wav", 0)
	require.NoError(t, err)
	defer held.Release()

	start := time.Now()
	other, err := m.Acquire(ctx, "a.wav", 1)
	require.NoError(t, err)
	other.Release()
	otherFile, err := m.Acquire(ctx, "b.wav", 0)
	require.NoError(t, err)
	otherFile.Release()
	assert.Less(t, time.Since(start), 500*time.Millisecond,
		"different segments and files must not wait on each other")
}

func TestAcquireTimesOut(t *testing.T) {
	m := lock.NewManager(150 * time.Millisecond)
	ctx := context.Background()

	held, err := m.Acquire(ctx, "busy.wav", 3)
	require.NoError(t, err)
	defer held.Release()

	start := time.Now()
	_, err = m.Acquire(ctx, "busy.wav", 3)
	elapsed := time.Since(start)
	require.ErrorIs(t, err, lock.ErrTimeout)
	assert.GreaterOrEqual(t, elapsed, 150*time.Millisecond)
	assert.Less(t, elapsed, 2*time.Second, "timeout must be bounded, not open ended")
}

func TestAcquireHonoursContext(t *testing.T) {
	m := lock.NewManager(10 * time.Second)

	held, err := m.Acquire(context.Background(), "busy.wav", 0)
	require.NoError(t, err)
	defer held.Release()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()
	start := time.Now()
	_, err = m.Acquire(ctx, "busy.wav", 0)
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestReleaseIsIdempotent(t *testing.T) {
	m := lock.NewManager(time.Second)
	ctx := context.Background()

	l, err := m.Acquire(ctx, "t.wav", 0)
	require.NoError(t, err)
	l.Release()
	l.Release()

	// A double release must not free a slot it no longer owns.
	next, err := m.Acquire(ctx, "t.wav", 0)
	require.NoError(t, err)
	defer next.Release()

	m2 := lock.NewManager(100 * time.Millisecond)
	l2, err := m2.Acquire(ctx, "t.wav", 0)
	require.NoError(t, err)
	_ = l2
	_, err = m2.Acquire(ctx, "t.wav", 0)
	assert.ErrorIs(t, err, lock.ErrTimeout)
}

func TestTableShrinksToLiveActivity(t *testing.T) {
	m := lock.NewManager(100 * time.Millisecond)
	ctx := context.Background()

	l0, err := m.Acquire(ctx, "x.wav", 0)
	require.NoError(t, err)
	l1, err := m.Acquire(ctx, "x.wav", 1)
	require.NoError(t, err)
	assert.Equal(t, 2, m.Active())

	// A timed-out waiter must not leave a stale entry behind.
	_, err = m.Acquire(ctx, "x.wav", 0)
	require.ErrorIs(t, err, lock.ErrTimeout)

	l0.Release()
	l1.Release()
	assert.Zero(t, m.Active())

	// The key is usable again after its entry was dropped.
	again, err := m.Acquire(ctx, "x.wav", 0)
	require.NoError(t, err)
	again.Release()
	assert.Zero(t, m.Active())
}

func TestWaiterProceedsAfterRelease(t *testing.T) {
	m := lock.NewManager(2 * time.Second)
	ctx := context.Background()

	first, err := m.Acquire(ctx, "handoff.wav", 5)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		l, err := m.Acquire(ctx, "handoff.wav", 5)
		if err == nil {
			l.Release()
		}
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	first.Release()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("waiter never acquired the released lock")
	}
	assert.Zero(t, m.Active())
}
