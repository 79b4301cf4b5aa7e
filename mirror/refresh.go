/*
refresh.go - Seven-step full cache refresh

PURPOSE:
  Pulls the warehouse into the local cache in a fixed step order, with
  progress that a UI can poll. One refresh runs at a time; a second
  trigger while one is loading gets ErrRefreshInProgress rather than
  queueing.

RETRY POLICY:
  The whole refresh is attempted up to three times with a two second
  pause between attempts. A step failure restarts from step one so the
  cache never keeps a half-applied pull across attempts.

SEE ALSO:
  - staleness.go: decides when a refresh is due
  - reconciler.go: the targeted requests-and-steps re-pull after writes
*/
package mirror

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vantage/governance-mirror/governance"
)

const (
	refreshAttempts   = 3
	refreshRetryPause = 2 * time.Second
	totalSteps        = 7
)

// Remote is the slice of the warehouse the refresher pulls from.
type Remote interface {
	SourceTimestamps(ctx context.Context) (map[string]string, error)
	FetchCurrentUser(ctx context.Context) (*governance.UserProfile, error)
	FetchFinalApprovers(ctx context.Context) ([]governance.FinalApprover, error)
	FetchRequests(ctx context.Context) ([]governance.Request, error)
	FetchSteps(ctx context.Context) ([]governance.ApprovalStep, error)
	FetchAccounts(ctx context.Context) ([]governance.Account, error)
}

// CacheStore is the slice of the local store the refresher writes to.
type CacheStore interface {
	SetCurrentUser(ctx context.Context, u governance.UserProfile) error
	ReplaceFinalApprovers(ctx context.Context, fas []governance.FinalApprover) error
	ReplaceRequests(ctx context.Context, requests []governance.Request) error
	ReplaceAllSteps(ctx context.Context, steps []governance.ApprovalStep) error
	ReplaceRequestsAndSteps(ctx context.Context, requests []governance.Request, steps []governance.ApprovalStep) error
	ReplaceAccounts(ctx context.Context, accounts []governance.Account) error
	SetSourceTimestamp(ctx context.Context, source, remoteModified string, refreshedAt time.Time) error
	CurrentUser(ctx context.Context) (*governance.UserProfile, error)
	CountAccounts(ctx context.Context) (int, error)
}

// Progress is the poll-able state of the current (or last) refresh.
type Progress struct {
	Status         string    `json:"status"` // idle | loading | complete | error
	CurrentStep    string    `json:"current_step"`
	StepsCompleted int       `json:"steps_completed"`
	TotalSteps     int       `json:"total_steps"`
	Message        string    `json:"message"`
	Error          string    `json:"error,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Refresher runs full cache refreshes, one at a time.
type Refresher struct {
	remote Remote
	store  CacheStore
	oracle *Oracle
	log    zerolog.Logger

	// Injected for tests.
	sleep func(time.Duration)
	now   func() time.Time

	mu       sync.Mutex
	loading  bool
	progress Progress
}

// NewRefresher wires a refresher.
func NewRefresher(remote Remote, store CacheStore, oracle *Oracle, log zerolog.Logger) *Refresher {
	return &Refresher{
		remote:   remote,
		store:    store,
		oracle:   oracle,
		log:      log.With().Str("component", "refresh").Logger(),
		sleep:    time.Sleep,
		now:      time.Now,
		progress: Progress{Status: "idle", TotalSteps: totalSteps},
	}
}

// Progress returns a snapshot of the refresh state.
func (rf *Refresher) Progress() Progress {
	rf.mu.Lock()
	defer rf.mu.Unlock()
	return rf.progress
}

// Trigger starts a refresh in the background. Returns
// governance.ErrRefreshInProgress when one is already running.
func (rf *Refresher) Trigger(ctx context.Context) error {
	if err := rf.acquire(); err != nil {
		return err
	}
	go func() {
		defer rf.release()
		rf.runLocked(context.WithoutCancel(ctx))
	}()
	return nil
}

// Run executes a refresh synchronously. Returns
// governance.ErrRefreshInProgress when one is already running.
func (rf *Refresher) Run(ctx context.Context) error {
	if err := rf.acquire(); err != nil {
		return err
	}
	defer rf.release()
	return rf.runLocked(ctx)
}

func (rf *Refresher) acquire() error {
	rf.mu.Lock()
	defer rf.mu.Unlock()
	if rf.loading {
		return governance.ErrRefreshInProgress
	}
	rf.loading = true
	rf.progress = Progress{
		Status:     "loading",
		TotalSteps: totalSteps,
		Message:    "Starting cache refresh",
		UpdatedAt:  rf.now(),
	}
	return nil
}

func (rf *Refresher) release() {
	rf.mu.Lock()
	rf.loading = false
	rf.mu.Unlock()
}

func (rf *Refresher) runLocked(ctx context.Context) error {
	var err error
	for attempt := 1; attempt <= refreshAttempts; attempt++ {
		if attempt > 1 {
			rf.log.Warn().Int("attempt", attempt).Msg("retrying cache refresh")
			rf.sleep(refreshRetryPause)
		}
		if err = rf.refresh(ctx); err == nil {
			rf.setProgress("complete", "done", totalSteps, "Cache refresh complete", "")
			return nil
		}
		rf.log.Error().Err(err).Int("attempt", attempt).Msg("cache refresh failed")
	}
	rf.setProgress("error", "", 0, "Cache refresh failed", err.Error())
	return err
}

func (rf *Refresher) setProgress(status, step string, completed int, message, errMsg string) {
	rf.mu.Lock()
	rf.progress = Progress{
		Status:         status,
		CurrentStep:    step,
		StepsCompleted: completed,
		TotalSteps:     totalSteps,
		Message:        message,
		Error:          errMsg,
		UpdatedAt:      rf.now(),
	}
	rf.mu.Unlock()
}

// refresh runs the seven steps in order. Pulled timestamps are recorded
// only after the corresponding rows land in the cache, so a failure
// between the two leaves the source looking stale and re-pullable.
func (rf *Refresher) refresh(ctx context.Context) error {
	started := rf.now()

	// Step 1: connect. The timestamp view doubles as a connectivity probe.
	rf.setProgress("loading", "connect", 0, "Connecting to data warehouse", "")
	timestamps, err := rf.remote.SourceTimestamps(ctx)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	// Step 2: current user.
	rf.setProgress("loading", "current_user", 1, "Loading user profile", "")
	user, err := rf.remote.FetchCurrentUser(ctx)
	if err != nil {
		return fmt.Errorf("current user: %w", err)
	}
	if err := rf.store.SetCurrentUser(ctx, *user); err != nil {
		return fmt.Errorf("cache current user: %w", err)
	}

	// Step 3: final approvers.
	rf.setProgress("loading", "final_approvers", 2, "Loading final approvers", "")
	fas, err := rf.remote.FetchFinalApprovers(ctx)
	if err != nil {
		return fmt.Errorf("final approvers: %w", err)
	}
	if err := rf.store.ReplaceFinalApprovers(ctx, fas); err != nil {
		return fmt.Errorf("cache final approvers: %w", err)
	}

	// Step 4: request rows.
	rf.setProgress("loading", "requests", 3, "Loading requests", "")
	requests, err := rf.remote.FetchRequests(ctx)
	if err != nil {
		return fmt.Errorf("requests: %w", err)
	}

	// Step 5: request cache write.
	rf.setProgress("loading", "requests_cache", 4, "Caching requests", "")
	if err := rf.store.ReplaceRequests(ctx, requests); err != nil {
		return fmt.Errorf("cache requests: %w", err)
	}
	rf.recordTimestamp(ctx, "requests", timestamps)

	// Step 6: approval steps.
	rf.setProgress("loading", "approval_steps", 5, "Loading approval steps", "")
	steps, err := rf.remote.FetchSteps(ctx)
	if err != nil {
		return fmt.Errorf("approval steps: %w", err)
	}
	if err := rf.store.ReplaceAllSteps(ctx, steps); err != nil {
		return fmt.Errorf("cache approval steps: %w", err)
	}
	rf.recordTimestamp(ctx, "approval_steps", timestamps)

	// Step 7: account directory.
	rf.setProgress("loading", "accounts", 6, "Loading accounts", "")
	accounts, err := rf.remote.FetchAccounts(ctx)
	if err != nil {
		return fmt.Errorf("accounts: %w", err)
	}
	if err := rf.store.ReplaceAccounts(ctx, accounts); err != nil {
		return fmt.Errorf("cache accounts: %w", err)
	}
	rf.recordTimestamp(ctx, "accounts", timestamps)

	rf.oracle.Invalidate()
	rf.log.Info().
		Int("requests", len(requests)).
		Int("steps", len(steps)).
		Int("accounts", len(accounts)).
		Dur("elapsed", rf.now().Sub(started)).
		Msg("cache refresh complete")
	return nil
}

func (rf *Refresher) recordTimestamp(ctx context.Context, source string, remote map[string]string) {
	if err := rf.store.SetSourceTimestamp(ctx, source, remote[source], rf.now()); err != nil {
		rf.log.Error().Err(err).Str("source", source).Msg("failed to record source timestamp")
	}
}

// RefreshRequestsAndSteps re-pulls only the request and approval-step
// tables, atomically. Used after write-backs to reconcile placeholder ids
// with the warehouse's authoritative rows.
func (rf *Refresher) RefreshRequestsAndSteps(ctx context.Context) error {
	requests, err := rf.remote.FetchRequests(ctx)
	if err != nil {
		return fmt.Errorf("requests: %w", err)
	}
	steps, err := rf.remote.FetchSteps(ctx)
	if err != nil {
		return fmt.Errorf("approval steps: %w", err)
	}
	if err := rf.store.ReplaceRequestsAndSteps(ctx, requests, steps); err != nil {
		return fmt.Errorf("cache requests and steps: %w", err)
	}

	timestamps, err := rf.remote.SourceTimestamps(ctx)
	if err == nil {
		rf.recordTimestamp(ctx, "requests", timestamps)
		rf.recordTimestamp(ctx, "approval_steps", timestamps)
	}
	return nil
}

// StartupCheck decides whether the process starts with a full refresh:
// always when the cache is cold, otherwise only when the oracle says the
// warehouse has moved on.
func (rf *Refresher) StartupCheck(ctx context.Context) {
	user, err := rf.store.CurrentUser(ctx)
	if err != nil {
		rf.log.Error().Err(err).Msg("startup cache check failed")
		return
	}
	accounts, err := rf.store.CountAccounts(ctx)
	if err != nil {
		rf.log.Error().Err(err).Msg("startup cache check failed")
		return
	}

	if user == nil || accounts == 0 {
		rf.log.Info().Msg("cache cold, running full refresh")
		if err := rf.Run(ctx); err != nil {
			rf.log.Error().Err(err).Msg("startup refresh failed")
		}
		return
	}

	report := rf.oracle.Check(ctx)
	if !report.Stale {
		rf.log.Info().Msg("cache warm and current")
		return
	}
	rf.log.Info().Msg("cache stale, running full refresh")
	if err := rf.Run(ctx); err != nil {
		rf.log.Error().Err(err).Msg("startup refresh failed")
	}
}
