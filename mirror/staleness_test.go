package mirror

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOracle(wh *fakeWarehouse, store *fakeMirrorStore) (*Oracle, *time.Time) {
	o := NewOracle(wh, store, zerolog.Nop())
	clock := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	o.now = func() time.Time { return clock }
	return o, &clock
}

func TestCheckComparesTimestampsPerSource(t *testing.T) {
	// GIVEN a cache current on two sources and lagging on one
	wh := newFakeWarehouse()
	store := newFakeMirrorStore()
	for src, ts := range wh.timestamps {
		store.timestamps[src] = ts
	}
	store.timestamps["accounts"] = "2026-08-19T00:00:00"
	o, _ := newTestOracle(wh, store)

	// WHEN checking
	report := o.Check(context.Background())

	// THEN only the lagging source is stale, and the verdict follows it
	assert.True(t, report.Stale)
	assert.False(t, report.Sources["requests"].Stale)
	assert.False(t, report.Sources["approval_steps"].Stale)
	assert.True(t, report.Sources["accounts"].Stale)
	assert.Empty(t, report.CheckError)
}

func TestCheckTreatsNeverPulledSourcesAsStale(t *testing.T) {
	wh := newFakeWarehouse()
	store := newFakeMirrorStore()
	o, _ := newTestOracle(wh, store)

	report := o.Check(context.Background())

	assert.True(t, report.Stale)
	for src, st := range report.Sources {
		assert.True(t, st.Stale, "never-pulled source %s must read stale", src)
		assert.Empty(t, st.Cached)
	}
}

func TestCheckVerdictIsMemoized(t *testing.T) {
	wh := newFakeWarehouse()
	store := newFakeMirrorStore()
	o, clock := newTestOracle(wh, store)

	// Two checks inside the window consult the warehouse once.
	o.Check(context.Background())
	o.Check(context.Background())
	assert.Equal(t, 1, wh.callCount("timestamps"))

	// Past the window the memo expires.
	*clock = clock.Add(staleCheckTTL + time.Second)
	o.Check(context.Background())
	assert.Equal(t, 2, wh.callCount("timestamps"))
}

func TestInvalidateDropsTheMemo(t *testing.T) {
	wh := newFakeWarehouse()
	store := newFakeMirrorStore()
	o, _ := newTestOracle(wh, store)

	o.Check(context.Background())
	o.Invalidate()
	o.Check(context.Background())

	assert.Equal(t, 2, wh.callCount("timestamps"))
}

func TestCheckFailsOpenWhenTheWarehouseIsUnreachable(t *testing.T) {
	// An unreachable warehouse must read as stale, never as current: the
	// refresh that follows surfaces the real problem.
	wh := newFakeWarehouse()
	wh.tsErr = errors.New("connection refused")
	store := newFakeMirrorStore()
	o, _ := newTestOracle(wh, store)

	report := o.Check(context.Background())

	assert.True(t, report.Stale)
	assert.Contains(t, report.CheckError, "connection refused")
	assert.Empty(t, report.Sources)
}

func TestCheckFailsOpenOnLocalReadErrors(t *testing.T) {
	wh := newFakeWarehouse()
	store := newFakeMirrorStore()
	store.tsErr = errors.New("database is locked")
	o, _ := newTestOracle(wh, store)

	report := o.Check(context.Background())

	require.True(t, report.Stale)
	assert.Contains(t, report.CheckError, "database is locked")
	// The warehouse is never consulted when the local read fails.
	assert.Equal(t, 0, wh.callCount("timestamps"))
}
