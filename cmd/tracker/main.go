package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/minidoge/donation-tracker/internal/api"
	"github.com/minidoge/donation-tracker/internal/cache"
	"github.com/minidoge/donation-tracker/internal/config"
	"github.com/minidoge/donation-tracker/internal/donation"
	"github.com/minidoge/donation-tracker/internal/helius"
	"github.com/minidoge/donation-tracker/internal/retry"
	"github.com/minidoge/donation-tracker/internal/store"
	"github.com/minidoge/donation-tracker/internal/tracker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	st, err := store.NewStore(cfg.DBSource, cfg.ReceivingAccount, cfg.MinDonationAmount)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := st.InitSchema(ctx); err != nil {
		log.Fatalf("Unable to initialize schema: %v", err)
	}

	var pageCache *cache.Cache
	if cfg.RedisAddr != "" {
		pageCache = cache.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		defer pageCache.Close()
	}

	policy := retry.Policy{
		MaxAttempts:  cfg.RetryMaxAttempts,
		InitialDelay: cfg.RetryInitialDelay,
		MaxDelay:     cfg.RetryMaxDelay,
	}
	client := helius.NewClient(cfg.HeliusEndpoint, cfg.HeliusAPIKey, policy)

	trk := tracker.New(client, st, cfg.Tokens, cfg.PageSize, cfg.PageDelay)
	donations := donation.NewService(st, pageCache, cfg.SymbolTable(), cfg.ReceivingAccount, cfg.MinDonationAmount)
	handler := api.NewHandler(st, pageCache)

	// Router
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", handler.HealthCheckHandler)

	apiV1 := r.PathPrefix("/api/v1").Subrouter()
	apiV1.HandleFunc("/donations", handler.GetDonationsHandler).Methods("GET")
	apiV1.HandleFunc("/donations/{account}", handler.GetDonationHandler).Methods("GET")
	apiV1.HandleFunc("/transactions/count", handler.GetTransactionCountHandler).Methods("GET")
	apiV1.HandleFunc("/signatures/latest", handler.GetLatestSignatureHandler).Methods("GET")

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	go func() {
		log.Printf("Server starting on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	runScheduler(ctx, cfg, trk, donations)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown failed: %v", err)
	}
	log.Println("Tracker stopped")
}

// runScheduler is the only place that knows about timers. Each cycle syncs
// every monitored account, folds new donations incrementally, and runs a
// full recompute once the full-update interval has elapsed. The last-full-
// update timestamp lives here, not in the core.
func runScheduler(ctx context.Context, cfg *config.Config, trk *tracker.Tracker, donations *donation.Service) {
	runCycle := func(lastFull time.Time) time.Time {
		if err := trk.CheckAll(ctx); err != nil {
			log.Printf("sync cycle finished with errors: %v", err)
		}

		full := time.Since(lastFull) >= cfg.FullUpdateInterval
		if _, err := donations.Process(ctx, !full); err != nil {
			log.Printf("aggregation pass failed: %v", err)
			return lastFull
		}
		if full {
			return time.Now()
		}
		return lastFull
	}

	log.Printf("Scheduler starting: interval=%s full_update=%s tokens=%d",
		cfg.MonitorInterval, cfg.FullUpdateInterval, len(cfg.Tokens))

	// First cycle runs a full pass so a fresh database converges
	// immediately.
	lastFull := runCycle(time.Time{})

	ticker := time.NewTicker(cfg.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Scheduler stopping")
			return
		case <-ticker.C:
			lastFull = runCycle(lastFull)
		}
	}
}
