// ABOUTME: Tests for badger-backed advisory locks
// ABOUTME: Uses in-memory BadgerDB for isolation
package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T) *BadgerLocker {
	t.Helper()
	l, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestAcquireAndRelease(t *testing.T) {
	l := newTestLocker(t)
	ctx := context.Background()

	release, err := l.Acquire(ctx, SyncKey("u1"), time.Minute)
	require.NoError(t, err)

	_, err = l.Acquire(ctx, SyncKey("u1"), time.Minute)
	assert.ErrorIs(t, err, ErrLocked)

	other, err := l.Acquire(ctx, SyncKey("u2"), time.Minute)
	require.NoError(t, err, "different users do not contend")
	other.Release()

	release.Release()
	again, err := l.Acquire(ctx, SyncKey("u1"), time.Minute)
	require.NoError(t, err)
	again.Release()
}

func TestLockExpires(t *testing.T) {
	l := newTestLocker(t)
	ctx := context.Background()

	release, err := l.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)

	time.Sleep(2100 * time.Millisecond)

	second, err := l.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err, "expired markers free the lock")

	// the stale holder must not release the new holder's lock
	release.Release()
	_, err = l.Acquire(ctx, "k", time.Minute)
	assert.ErrorIs(t, err, ErrLocked)
	second.Release()
}

func TestConcurrentAcquireHasOneWinner(t *testing.T) {
	l := newTestLocker(t)
	ctx := context.Background()

	var winners int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Acquire(ctx, "race", time.Minute); err == nil {
				atomic.AddInt32(&winners, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners)
}

func TestAcquireCancelledContext(t *testing.T) {
	l := newTestLocker(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.Acquire(ctx, "k", time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRefreshExtendsLease(t *testing.T) {
	l := newTestLocker(t)
	ctx := context.Background()

	lease, err := l.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)
	require.NoError(t, lease.Refresh(time.Minute))

	time.Sleep(2100 * time.Millisecond)

	_, err = l.Acquire(ctx, "k", time.Minute)
	assert.ErrorIs(t, err, ErrLocked, "a refreshed lease outlives its first ttl")

	lease.Release()
	next, err := l.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	next.Release()
}

func TestRefreshAfterExpiry(t *testing.T) {
	l := newTestLocker(t)
	ctx := context.Background()

	stale, err := l.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)
	time.Sleep(2100 * time.Millisecond)

	assert.ErrorIs(t, stale.Refresh(time.Minute), ErrLost)

	current, err := l.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.ErrorIs(t, stale.Refresh(time.Minute), ErrLost, "a stale lease cannot steal the key back")
	current.Release()
}
