package mirror

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stallingWarehouse blocks every timestamp read until released, so a test
// can hold a sweep in flight at a known point.
type stallingWarehouse struct {
	*fakeWarehouse
	entered chan struct{}
	release chan struct{}
}

func newStallingWarehouse() *stallingWarehouse {
	return &stallingWarehouse{
		fakeWarehouse: newFakeWarehouse(),
		entered:       make(chan struct{}, 1),
		release:       make(chan struct{}),
	}
}

func (w *stallingWarehouse) SourceTimestamps(ctx context.Context) (map[string]string, error) {
	select {
	case w.entered <- struct{}{}:
	default:
	}
	<-w.release
	return w.fakeWarehouse.SourceTimestamps(ctx)
}

func newTestSweeper(wh *stallingWarehouse, store *fakeMirrorStore, interval time.Duration) *Sweeper {
	oracle := NewOracle(wh, store, zerolog.Nop())
	rf := NewRefresher(wh.fakeWarehouse, store, oracle, zerolog.Nop())
	rf.sleep = func(time.Duration) {}
	return NewSweeper(oracle, rf, interval, zerolog.Nop())
}

func TestStopWaitsForAnInFlightSweep(t *testing.T) {
	// GIVEN a sweeper whose current sweep is blocked inside the warehouse
	wh := newStallingWarehouse()
	store := newFakeMirrorStore()
	sw := newTestSweeper(wh, store, time.Millisecond)

	sw.Start()
	select {
	case <-wh.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("sweep never reached the warehouse")
	}

	// WHEN stopping while the sweep is in flight, then letting it finish
	done := make(chan struct{})
	go func() {
		sw.Stop()
		close(done)
	}()
	close(wh.release)

	// THEN Stop returns once the sweep completes
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the in-flight sweep finished")
	}
}

func TestSweepRefreshesAStaleCache(t *testing.T) {
	// GIVEN a cold cache and a reachable warehouse
	wh := newStallingWarehouse()
	close(wh.release)
	store := newFakeMirrorStore()
	sw := newTestSweeper(wh, store, time.Millisecond)

	// WHEN the sweep loop runs
	sw.Start()
	defer sw.Stop()

	// THEN a full refresh lands the warehouse rows in the cache
	require.Eventually(t, func() bool {
		u, err := store.CurrentUser(context.Background())
		return err == nil && u != nil
	}, 2*time.Second, time.Millisecond)
}

func TestStopIsIdempotentAndStartResumes(t *testing.T) {
	wh := newStallingWarehouse()
	close(wh.release)
	store := newFakeMirrorStore()
	sw := newTestSweeper(wh, store, time.Hour)

	// GIVEN a sweeper that was never started
	sw.Stop() // no-op

	// WHEN starting, stopping twice, and starting again
	sw.Start()
	sw.Stop()
	sw.Stop()
	sw.Start()
	sw.Stop()

	// THEN no sweep ever fired at the hour-long interval
	assert.Equal(t, 0, wh.callCount("timestamps"))
}
