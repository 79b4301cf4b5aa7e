package mirror

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantage/governance-mirror/governance"
)

// =============================================================================
// TEST DOUBLES
// =============================================================================

// fakeWarehouse serves canned rows and counts every fetch. failRequests
// makes the first N FetchRequests calls fail, for retry tests.
type fakeWarehouse struct {
	mu           sync.Mutex
	timestamps   map[string]string
	tsErr        error
	user         governance.UserProfile
	requests     []governance.Request
	failRequests int
	steps        []governance.ApprovalStep
	accounts     []governance.Account
	accountsErr  error
	calls        map[string]int
}

func newFakeWarehouse() *fakeWarehouse {
	return &fakeWarehouse{
		timestamps: map[string]string{
			"requests":       "2026-08-24T09:00:00",
			"approval_steps": "2026-08-24T09:00:00",
			"accounts":       "2026-08-20T00:00:00",
		},
		user:     governance.UserProfile{Username: "RCHEN", EmployeeID: 100, DisplayName: "Riley Chen"},
		requests: []governance.Request{{ID: 5001, Title: "pilot", Status: governance.StatusSubmitted}},
		steps:    []governance.ApprovalStep{{ID: 9001, RequestID: 5001, Ordinal: 1, Status: governance.StepPending}},
		accounts: []governance.Account{{ID: "A1", Name: "Globex"}},
		calls:    make(map[string]int),
	}
}

func (f *fakeWarehouse) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
	return f.calls[name]
}

func (f *fakeWarehouse) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeWarehouse) SourceTimestamps(_ context.Context) (map[string]string, error) {
	f.count("timestamps")
	if f.tsErr != nil {
		return nil, f.tsErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make(map[string]string, len(f.timestamps))
	for k, v := range f.timestamps {
		cp[k] = v
	}
	return cp, nil
}

func (f *fakeWarehouse) FetchCurrentUser(_ context.Context) (*governance.UserProfile, error) {
	f.count("current_user")
	cp := f.user
	return &cp, nil
}

func (f *fakeWarehouse) FetchFinalApprovers(_ context.Context) ([]governance.FinalApprover, error) {
	f.count("final_approvers")
	return []governance.FinalApprover{{Theater: "AMER", EmployeeID: 400, Name: "Alex Petrov"}}, nil
}

func (f *fakeWarehouse) FetchRequests(_ context.Context) ([]governance.Request, error) {
	n := f.count("requests")
	f.mu.Lock()
	defer f.mu.Unlock()
	if n <= f.failRequests {
		return nil, errors.New("warehouse timeout")
	}
	return append([]governance.Request(nil), f.requests...), nil
}

func (f *fakeWarehouse) FetchSteps(_ context.Context) ([]governance.ApprovalStep, error) {
	f.count("steps")
	return append([]governance.ApprovalStep(nil), f.steps...), nil
}

func (f *fakeWarehouse) FetchAccounts(_ context.Context) ([]governance.Account, error) {
	f.count("accounts")
	if f.accountsErr != nil {
		return nil, f.accountsErr
	}
	return append([]governance.Account(nil), f.accounts...), nil
}

// fakeMirrorStore is an in-memory stand-in for the sqlite cache.
type fakeMirrorStore struct {
	mu             sync.Mutex
	user           *governance.UserProfile
	finals         []governance.FinalApprover
	requests       []governance.Request
	steps          []governance.ApprovalStep
	accounts       []governance.Account
	timestamps     map[string]string
	atomicReplaces int
	tsErr          error
}

func newFakeMirrorStore() *fakeMirrorStore {
	return &fakeMirrorStore{timestamps: make(map[string]string)}
}

func (s *fakeMirrorStore) SetCurrentUser(_ context.Context, u governance.UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = &u
	return nil
}

func (s *fakeMirrorStore) ReplaceFinalApprovers(_ context.Context, fas []governance.FinalApprover) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finals = fas
	return nil
}

func (s *fakeMirrorStore) ReplaceRequests(_ context.Context, requests []governance.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = requests
	return nil
}

func (s *fakeMirrorStore) ReplaceAllSteps(_ context.Context, steps []governance.ApprovalStep) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = steps
	return nil
}

func (s *fakeMirrorStore) ReplaceRequestsAndSteps(_ context.Context, requests []governance.Request, steps []governance.ApprovalStep) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = requests
	s.steps = steps
	s.atomicReplaces++
	return nil
}

func (s *fakeMirrorStore) ReplaceAccounts(_ context.Context, accounts []governance.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts = accounts
	return nil
}

func (s *fakeMirrorStore) SetSourceTimestamp(_ context.Context, source, remoteModified string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timestamps[source] = remoteModified
	return nil
}

func (s *fakeMirrorStore) CurrentUser(_ context.Context) (*governance.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return nil, nil
	}
	cp := *s.user
	return &cp, nil
}

func (s *fakeMirrorStore) CountAccounts(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.accounts), nil
}

func (s *fakeMirrorStore) CachedTimestamps(_ context.Context) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tsErr != nil {
		return nil, s.tsErr
	}
	cp := make(map[string]string, len(s.timestamps))
	for k, v := range s.timestamps {
		cp[k] = v
	}
	return cp, nil
}

func (s *fakeMirrorStore) timestamp(source string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.timestamps[source]
	return v, ok
}

// mirrorSnapshot captures every mirrored table for equality checks.
type mirrorSnapshot struct {
	user       *governance.UserProfile
	finals     []governance.FinalApprover
	requests   []governance.Request
	steps      []governance.ApprovalStep
	accounts   []governance.Account
	timestamps map[string]string
}

func (s *fakeMirrorStore) snapshot() mirrorSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := make(map[string]string, len(s.timestamps))
	for k, v := range s.timestamps {
		ts[k] = v
	}
	var u *governance.UserProfile
	if s.user != nil {
		cp := *s.user
		u = &cp
	}
	return mirrorSnapshot{
		user:       u,
		finals:     append([]governance.FinalApprover(nil), s.finals...),
		requests:   append([]governance.Request(nil), s.requests...),
		steps:      append([]governance.ApprovalStep(nil), s.steps...),
		accounts:   append([]governance.Account(nil), s.accounts...),
		timestamps: ts,
	}
}

// newTestRefresher wires a refresher over the fakes with instant sleeps.
// The returned slice pointer records every requested pause.
func newTestRefresher(wh *fakeWarehouse, store *fakeMirrorStore) (*Refresher, *[]time.Duration) {
	oracle := NewOracle(wh, store, zerolog.Nop())
	rf := NewRefresher(wh, store, oracle, zerolog.Nop())
	sleeps := &[]time.Duration{}
	rf.sleep = func(d time.Duration) { *sleeps = append(*sleeps, d) }
	return rf, sleeps
}

// =============================================================================
// FULL REFRESH
// =============================================================================

func TestRunPullsAllSevenStepsIntoTheCache(t *testing.T) {
	// GIVEN a reachable warehouse and an empty cache
	wh := newFakeWarehouse()
	store := newFakeMirrorStore()
	rf, sleeps := newTestRefresher(wh, store)

	// WHEN running a full refresh
	require.NoError(t, rf.Run(context.Background()))

	// THEN every mirrored table was replaced
	require.NotNil(t, store.user)
	assert.Equal(t, "RCHEN", store.user.Username)
	assert.Len(t, store.finals, 1)
	assert.Len(t, store.requests, 1)
	assert.Len(t, store.steps, 1)
	assert.Len(t, store.accounts, 1)

	// AND the pulled timestamps were recorded per source
	ts, ok := store.timestamp("requests")
	require.True(t, ok)
	assert.Equal(t, "2026-08-24T09:00:00", ts)
	_, ok = store.timestamp("approval_steps")
	assert.True(t, ok)
	_, ok = store.timestamp("accounts")
	assert.True(t, ok)

	// AND progress reports completion without any retry pauses
	p := rf.Progress()
	assert.Equal(t, "complete", p.Status)
	assert.Equal(t, totalSteps, p.StepsCompleted)
	assert.Equal(t, totalSteps, p.TotalSteps)
	assert.Empty(t, p.Error)
	assert.Empty(t, *sleeps)
}

func TestRepeatRunWithUnchangedWarehouseIsIdempotent(t *testing.T) {
	// GIVEN a cache already refreshed from the warehouse
	wh := newFakeWarehouse()
	store := newFakeMirrorStore()
	rf, _ := newTestRefresher(wh, store)
	require.NoError(t, rf.Run(context.Background()))
	first := store.snapshot()

	// WHEN refreshing again with no remote change
	require.NoError(t, rf.Run(context.Background()))

	// THEN every mirrored table and recorded timestamp is identical
	assert.Equal(t, first, store.snapshot())
}

func TestRunRetriesThenSucceeds(t *testing.T) {
	// GIVEN a warehouse that times out once on the request pull
	wh := newFakeWarehouse()
	wh.failRequests = 1
	store := newFakeMirrorStore()
	rf, sleeps := newTestRefresher(wh, store)

	// WHEN running
	require.NoError(t, rf.Run(context.Background()))

	// THEN the refresh paused once and restarted from step one
	require.Len(t, *sleeps, 1)
	assert.Equal(t, refreshRetryPause, (*sleeps)[0])
	assert.Equal(t, 2, wh.callCount("current_user"), "failed attempt restarts from the top")
	assert.Equal(t, "complete", rf.Progress().Status)
	assert.Len(t, store.requests, 1)
}

func TestRunGivesUpAfterThreeAttempts(t *testing.T) {
	// GIVEN a warehouse that always times out on the request pull
	wh := newFakeWarehouse()
	wh.failRequests = refreshAttempts
	store := newFakeMirrorStore()
	rf, sleeps := newTestRefresher(wh, store)

	// WHEN running
	err := rf.Run(context.Background())

	// THEN the error surfaces after three attempts and two pauses
	require.Error(t, err)
	assert.Len(t, *sleeps, refreshAttempts-1)
	assert.Equal(t, refreshAttempts, wh.callCount("requests"))

	p := rf.Progress()
	assert.Equal(t, "error", p.Status)
	assert.Contains(t, p.Error, "warehouse timeout")
}

func TestFailedStepLeavesItsTimestampUnrecorded(t *testing.T) {
	// GIVEN a warehouse whose account pull always fails
	wh := newFakeWarehouse()
	wh.accountsErr = errors.New("accounts view missing")
	store := newFakeMirrorStore()
	rf, _ := newTestRefresher(wh, store)

	// WHEN running
	err := rf.Run(context.Background())
	require.Error(t, err)

	// THEN the sources that landed are stamped, the failed one is not,
	// so the next staleness check re-pulls it
	_, ok := store.timestamp("requests")
	assert.True(t, ok)
	_, ok = store.timestamp("approval_steps")
	assert.True(t, ok)
	_, ok = store.timestamp("accounts")
	assert.False(t, ok)
}

func TestConcurrentRunIsRejected(t *testing.T) {
	wh := newFakeWarehouse()
	store := newFakeMirrorStore()
	rf, _ := newTestRefresher(wh, store)

	// GIVEN a refresh already holding the loading flag
	require.NoError(t, rf.acquire())
	defer rf.release()

	// WHEN triggering another
	err := rf.Run(context.Background())
	assert.ErrorIs(t, err, governance.ErrRefreshInProgress)

	err = rf.Trigger(context.Background())
	assert.ErrorIs(t, err, governance.ErrRefreshInProgress)
}

// =============================================================================
// TARGETED RE-PULL
// =============================================================================

func TestRefreshRequestsAndStepsReplacesAtomically(t *testing.T) {
	// GIVEN a cache holding an optimistic placeholder row
	wh := newFakeWarehouse()
	store := newFakeMirrorStore()
	store.requests = []governance.Request{{ID: -1, Title: "optimistic draft"}}
	rf, _ := newTestRefresher(wh, store)

	// WHEN re-pulling requests and steps
	require.NoError(t, rf.RefreshRequestsAndSteps(context.Background()))

	// THEN the placeholder is superseded by the warehouse row in one swap
	require.Len(t, store.requests, 1)
	assert.Equal(t, int64(5001), store.requests[0].ID)
	assert.Equal(t, 1, store.atomicReplaces)

	// AND only the two re-pulled sources are stamped
	_, ok := store.timestamp("requests")
	assert.True(t, ok)
	_, ok = store.timestamp("approval_steps")
	assert.True(t, ok)
	_, ok = store.timestamp("accounts")
	assert.False(t, ok)
}

// =============================================================================
// STARTUP
// =============================================================================

func TestStartupCheckRefreshesAColdCache(t *testing.T) {
	wh := newFakeWarehouse()
	store := newFakeMirrorStore()
	rf, _ := newTestRefresher(wh, store)

	rf.StartupCheck(context.Background())

	assert.NotNil(t, store.user)
	assert.Equal(t, "complete", rf.Progress().Status)
}

func TestStartupCheckSkipsAWarmCurrentCache(t *testing.T) {
	// GIVEN a warm cache whose timestamps match the warehouse
	wh := newFakeWarehouse()
	store := newFakeMirrorStore()
	store.user = &governance.UserProfile{Username: "RCHEN"}
	store.accounts = []governance.Account{{ID: "A1"}}
	for src, ts := range wh.timestamps {
		store.timestamps[src] = ts
	}
	rf, _ := newTestRefresher(wh, store)

	// WHEN checking at startup
	rf.StartupCheck(context.Background())

	// THEN no refresh ran
	assert.Equal(t, "idle", rf.Progress().Status)
	assert.Equal(t, 0, wh.callCount("requests"))
}

func TestStartupCheckRefreshesAStaleWarmCache(t *testing.T) {
	// GIVEN a warm cache that lags the warehouse on one source
	wh := newFakeWarehouse()
	store := newFakeMirrorStore()
	store.user = &governance.UserProfile{Username: "RCHEN"}
	store.accounts = []governance.Account{{ID: "A1"}}
	for src, ts := range wh.timestamps {
		store.timestamps[src] = ts
	}
	store.timestamps["requests"] = "2026-08-23T09:00:00"
	rf, _ := newTestRefresher(wh, store)

	// WHEN checking at startup
	rf.StartupCheck(context.Background())

	// THEN a full refresh ran
	assert.Equal(t, "complete", rf.Progress().Status)
	assert.Equal(t, 1, wh.callCount("requests"))
}
