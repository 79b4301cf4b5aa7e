/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the governance mirror server. Handles
  configuration, dependency wiring, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Open the local cache database
  3. Connect the warehouse pool
  4. Wire oracle, refresher, reconciler, sweeper, service
  5. Kick the startup cache check in the background
  6. Start the HTTP server with graceful shutdown

COMMAND-LINE FLAGS:
  -port       HTTP server port (default: 8080)
  -db         cache database path (default: governance_cache.db)
  -warehouse  warehouse DSN (or WAREHOUSE_DSN env var)
  -admin      administrator username allowed to impersonate
  -sweep      coherence sweep interval, 0 disables (default: 5m)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests (30s timeout)
  3. Stop the sweeper, drain the write-back queue
  4. Close warehouse pool and cache database

SEE ALSO:
  - api/server.go: router configuration
  - mirror/refresh.go: startup cache check
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/vantage/governance-mirror/api"
	"github.com/vantage/governance-mirror/governance"
	"github.com/vantage/governance-mirror/mirror"
	"github.com/vantage/governance-mirror/remote"
	"github.com/vantage/governance-mirror/store/sqlite"
)

func main() {
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "governance_cache.db", "cache database path")
	warehouseDSN := flag.String("warehouse", os.Getenv("WAREHOUSE_DSN"), "warehouse DSN")
	adminUser := flag.String("admin", os.Getenv("ADMIN_USERNAME"), "administrator username")
	sweepInterval := flag.Duration("sweep", 5*time.Minute, "coherence sweep interval (0 disables)")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	if *warehouseDSN == "" {
		log.Fatal().Msg("warehouse DSN required (-warehouse or WAREHOUSE_DSN)")
	}

	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open cache database")
	}
	defer store.Close()

	querier, err := remote.NewPgxQuerier(context.Background(), *warehouseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to warehouse")
	}
	defer querier.Close()

	warehouse := remote.NewWarehouse(querier, log)
	oracle := mirror.NewOracle(warehouse, store, log)
	refresher := mirror.NewRefresher(warehouse, store, oracle, log)
	reconciler := mirror.NewReconciler(refresher, oracle, log)
	defer reconciler.Close()

	identity := governance.NewIdentityResolver(store, *adminUser)
	chain := governance.NewChainResolver(warehouse, log)
	service := governance.NewService(store, warehouse, chain, identity, reconciler, log)

	// Warm or revalidate the cache without blocking startup.
	go refresher.StartupCheck(context.Background())

	var sweeper *mirror.Sweeper
	if *sweepInterval > 0 {
		sweeper = mirror.NewSweeper(oracle, refresher, *sweepInterval, log)
		sweeper.Start()
		defer sweeper.Stop()
	}

	handler := api.NewHandler(service, refresher, oracle, log)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Int("port", *port).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}
	log.Info().Msg("server stopped")
}
