/*
Package mirror keeps the local cache coherent with the warehouse: the
staleness oracle decides when a refresh is due, the refresher pulls the
warehouse into the cache, and the reconciler pushes optimistic local
writes back out.

PURPOSE:
  The service layer reads exclusively from the local cache. This package
  owns every path that moves data between cache and warehouse, and the
  policy for when those paths run.

COHERENCE MODEL:
  Remote wins. Refreshes replace mirrored tables wholesale; optimistic
  local writes survive only until the warehouse's authoritative rows are
  re-pulled.

SEE ALSO:
  - refresh.go: the seven-step full refresh
  - reconciler.go: background write-back queue
*/
package mirror

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// staleCheckTTL caps how often the oracle reaches the warehouse. Within
// the window every caller gets the memoized verdict.
const staleCheckTTL = 60 * time.Second

// TimestampSource reads per-source last-modified timestamps, either the
// warehouse's authoritative view or the locally recorded copy.
type TimestampSource interface {
	SourceTimestamps(ctx context.Context) (map[string]string, error)
}

// LocalTimestamps reads the timestamps recorded at the last refresh.
// Implemented by the sqlite cache store.
type LocalTimestamps interface {
	CachedTimestamps(ctx context.Context) (map[string]string, error)
}

// SourceStatus is one data source's coherence verdict.
type SourceStatus struct {
	Cached string `json:"cached_timestamp"`
	Remote string `json:"remote_timestamp"`
	Stale  bool   `json:"stale"`
}

// Report is the oracle's verdict across all data sources.
type Report struct {
	Stale     bool                    `json:"stale"`
	Sources   map[string]SourceStatus `json:"sources"`
	CheckedAt time.Time               `json:"checked_at"`
	// CheckError is set when the warehouse could not be consulted; the
	// verdict is then conservatively stale.
	CheckError string `json:"check_error,omitempty"`
}

// Oracle answers "is the cache stale" without hammering the warehouse.
type Oracle struct {
	remote TimestampSource
	local  LocalTimestamps
	log    zerolog.Logger
	now    func() time.Time

	mu     sync.Mutex
	memo   *Report
	memoAt time.Time
}

// NewOracle creates an oracle comparing local against remote timestamps.
func NewOracle(remote TimestampSource, local LocalTimestamps, log zerolog.Logger) *Oracle {
	return &Oracle{
		remote: remote,
		local:  local,
		log:    log.With().Str("component", "staleness").Logger(),
		now:    time.Now,
	}
}

// Check returns the coherence verdict, memoized for staleCheckTTL.
// A warehouse failure yields a stale verdict rather than an error: the
// caller's next refresh attempt will surface the real problem.
func (o *Oracle) Check(ctx context.Context) Report {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.memo != nil && o.now().Sub(o.memoAt) < staleCheckTTL {
		return *o.memo
	}

	report := o.check(ctx)
	o.memo = &report
	o.memoAt = o.now()
	return report
}

// Invalidate drops the memoized verdict so the next Check consults the
// warehouse again. Called after every write-back.
func (o *Oracle) Invalidate() {
	o.mu.Lock()
	o.memo = nil
	o.mu.Unlock()
}

func (o *Oracle) check(ctx context.Context) Report {
	report := Report{
		Sources:   make(map[string]SourceStatus),
		CheckedAt: o.now(),
	}

	cached, err := o.local.CachedTimestamps(ctx)
	if err != nil {
		o.log.Error().Err(err).Msg("failed to read cached timestamps")
		report.Stale = true
		report.CheckError = err.Error()
		return report
	}

	remote, err := o.remote.SourceTimestamps(ctx)
	if err != nil {
		o.log.Warn().Err(err).Msg("warehouse unreachable, assuming stale")
		report.Stale = true
		report.CheckError = err.Error()
		return report
	}

	for source, remoteTS := range remote {
		cachedTS := cached[source]
		// ISO-8601 timestamps order lexicographically; an empty cached
		// value means the source was never pulled.
		stale := cachedTS == "" || remoteTS > cachedTS
		report.Sources[source] = SourceStatus{
			Cached: cachedTS,
			Remote: remoteTS,
			Stale:  stale,
		}
		if stale {
			report.Stale = true
		}
	}
	return report
}
