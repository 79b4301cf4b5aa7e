/*
sweeper.go - Periodic coherence sweep

PURPOSE:
  A background loop that asks the oracle whether the warehouse has moved
  on and triggers a full refresh when it has. Keeps a long-running
  process coherent even when no user ever presses refresh.

  A sweep that finds a refresh already running skips the cycle; the
  running refresh covers it.
*/
package mirror

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vantage/governance-mirror/governance"
)

// Sweeper periodically reconciles the cache with the warehouse.
type Sweeper struct {
	oracle    *Oracle
	refresher *Refresher
	interval  time.Duration
	log       zerolog.Logger

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	stopped sync.WaitGroup
}

// NewSweeper creates a sweeper checking at the given interval.
func NewSweeper(oracle *Oracle, refresher *Refresher, interval time.Duration, log zerolog.Logger) *Sweeper {
	return &Sweeper{
		oracle:    oracle,
		refresher: refresher,
		interval:  interval,
		log:       log.With().Str("component", "sweeper").Logger(),
	}
}

// Start launches the sweep loop. A stopped sweeper can be started again.
func (sw *Sweeper) Start() {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.running {
		return
	}
	sw.running = true
	sw.stop = make(chan struct{})
	sw.stopped.Add(1)
	go sw.loop(sw.stop)
	sw.log.Info().Dur("interval", sw.interval).Msg("coherence sweep started")
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (sw *Sweeper) Stop() {
	sw.mu.Lock()
	if !sw.running {
		sw.mu.Unlock()
		return
	}
	sw.running = false
	close(sw.stop)
	sw.mu.Unlock()
	sw.stopped.Wait()
}

// loop takes the stop channel as an argument so Stop never races a
// re-read of the field.
func (sw *Sweeper) loop(stop chan struct{}) {
	defer sw.stopped.Done()
	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sw.sweep()
		case <-stop:
			return
		}
	}
}

func (sw *Sweeper) sweep() {
	ctx := context.Background()
	report := sw.oracle.Check(ctx)
	if !report.Stale {
		return
	}
	sw.log.Info().Msg("cache stale, refreshing")
	if err := sw.refresher.Run(ctx); err != nil {
		if errors.Is(err, governance.ErrRefreshInProgress) {
			return
		}
		sw.log.Error().Err(err).Msg("sweep refresh failed")
	}
}
