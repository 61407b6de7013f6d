package guard_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/reconciliation-engine/generic"
	"github.com/warp/reconciliation-engine/guard"
	"go.uber.org/zap/zaptest"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newGuard(t *testing.T, ttl time.Duration) (*guard.Memory, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, time.May, 1, 18, 0, 0, 0, time.UTC)}
	g := guard.NewMemory(ttl, zaptest.NewLogger(t))
	g.Now = clock.Now
	return g, clock
}

// =============================================================================
// FINGERPRINT
// =============================================================================

func TestFingerprint_SameBucketSameKey(t *testing.T) {
	base := time.Date(2024, time.May, 1, 18, 0, 1, 0, time.UTC)

	a := guard.Fingerprint("create_closing", 10*time.Second, base, 7, "2024-05-01", 0, "400.00")
	b := guard.Fingerprint("create_closing", 10*time.Second, base.Add(5*time.Second), 7, "2024-05-01", 0, "400.00")
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	nextBucket := guard.Fingerprint("create_closing", 10*time.Second, base.Add(10*time.Second), 7, "2024-05-01", 0, "400.00")
	assert.NotEqual(t, a, nextBucket)

	otherAgent := guard.Fingerprint("create_closing", 10*time.Second, base, 8, "2024-05-01", 0, "400.00")
	assert.NotEqual(t, a, otherAgent)

	otherOp := guard.Fingerprint("post_transaction", 10*time.Second, base, 7, "2024-05-01", 0, "400.00")
	assert.NotEqual(t, a, otherOp)

	unbucketed := guard.Fingerprint("create_closing", 0, base, 7)
	assert.Equal(t, unbucketed, guard.Fingerprint("create_closing", 0, base.Add(time.Hour), 7))
}

// =============================================================================
// MEMORY GUARD
// =============================================================================

func TestMemory_SecondAcquireIsRejectedUntilRelease(t *testing.T) {
	g, _ := newGuard(t, time.Minute)
	ctx := context.Background()

	lease, err := g.Acquire(ctx, "k")
	require.NoError(t, err)
	assert.True(t, g.InFlight("k"))

	_, err = g.Acquire(ctx, "k")
	assert.True(t, generic.IsDuplicateInFlight(err))

	require.NoError(t, lease.Release(ctx))
	require.NoError(t, lease.Release(ctx), "release is idempotent")
	assert.False(t, g.InFlight("k"))

	_, err = g.Acquire(ctx, "k")
	assert.NoError(t, err)
}

func TestMemory_StaleMarkerIsTakenOver(t *testing.T) {
	// GIVEN: A holder that never releases
	g, clock := newGuard(t, time.Minute)
	ctx := context.Background()
	stuck, err := g.Acquire(ctx, "k")
	require.NoError(t, err)

	// WHEN: The TTL elapses
	clock.Advance(time.Minute)
	assert.False(t, g.InFlight("k"))

	// THEN: A new caller takes the key over
	fresh, err := g.Acquire(ctx, "k")
	require.NoError(t, err)

	// AND: The old holder's late release does not clear the new marker
	require.NoError(t, stuck.Release(ctx))
	assert.True(t, g.InFlight("k"))

	require.NoError(t, fresh.Release(ctx))
	assert.Equal(t, 0, g.Len())
}

func TestMemory_Sweep(t *testing.T) {
	g, clock := newGuard(t, time.Minute)
	ctx := context.Background()

	_, err := g.Acquire(ctx, "old")
	require.NoError(t, err)
	clock.Advance(45 * time.Second)
	_, err = g.Acquire(ctx, "young")
	require.NoError(t, err)
	clock.Advance(15 * time.Second)

	assert.Equal(t, 1, g.Sweep())
	assert.Equal(t, 1, g.Len())
	assert.True(t, g.InFlight("young"))
}

func TestMemory_JanitorSweepsUntilStopped(t *testing.T) {
	g, clock := newGuard(t, time.Minute)
	g.SweepInterval = 5 * time.Millisecond
	ctx := context.Background()

	_, err := g.Acquire(ctx, "k")
	require.NoError(t, err)
	clock.Advance(2 * time.Minute)

	g.Start()
	g.Start()
	assert.Eventually(t, func() bool { return g.Len() == 0 }, time.Second, 5*time.Millisecond)
	g.Stop()
	g.Stop()
}

// =============================================================================
// SUBMIT
// =============================================================================

func TestSubmit_ConcurrentDuplicatesRunOnce(t *testing.T) {
	// GIVEN: Many goroutines submitting the same key while the first is blocked
	g, _ := newGuard(t, time.Minute)
	ctx := context.Background()

	var executions atomic.Int32
	entered := make(chan struct{})
	unblock := make(chan struct{})

	firstDone := make(chan error, 1)
	go func() {
		_, err := guard.Submit(ctx, g, "closing", func(context.Context) (int, error) {
			executions.Add(1)
			close(entered)
			<-unblock
			return 1, nil
		})
		firstDone <- err
	}()
	<-entered

	// WHEN: Duplicates arrive during execution
	var wg sync.WaitGroup
	var rejected atomic.Int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := guard.Submit(ctx, g, "closing", func(context.Context) (int, error) {
				executions.Add(1)
				return 2, nil
			})
			if generic.IsDuplicateInFlight(err) {
				rejected.Add(1)
			}
		}()
	}
	wg.Wait()
	close(unblock)

	// THEN: Exactly one execution, every duplicate rejected, marker cleared
	require.NoError(t, <-firstDone)
	assert.Equal(t, int32(1), executions.Load())
	assert.Equal(t, int32(20), rejected.Load())
	assert.False(t, g.InFlight("closing"))
}

func TestSubmit_ReleasesOnErrorAndPanic(t *testing.T) {
	g, _ := newGuard(t, time.Minute)
	ctx := context.Background()

	boom := errors.New("store unavailable")
	_, err := guard.Submit(ctx, g, "k", func(context.Context) (string, error) {
		return "", boom
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, g.InFlight("k"))

	assert.Panics(t, func() {
		_, _ = guard.Submit(ctx, g, "k", func(context.Context) (string, error) {
			panic("handler bug")
		})
	})
	assert.False(t, g.InFlight("k"))
}

func TestSubmit_ReleasesWhenCallerContextIsCancelled(t *testing.T) {
	g, _ := newGuard(t, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())

	_, err := guard.Submit(ctx, g, "k", func(ctx context.Context) (int, error) {
		cancel()
		return 0, ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, g.InFlight("k"))
}
