package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/catalog-browser/internal/config"
	"github.com/Sternrassler/catalog-browser/pkg/browse"
	"github.com/Sternrassler/catalog-browser/pkg/client"
	"github.com/Sternrassler/catalog-browser/pkg/logging"
	"github.com/Sternrassler/catalog-browser/pkg/metrics"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// browser is the part of browse.Orchestrator the server exposes.
type browser interface {
	Snapshot() browse.Snapshot
	SelectCategory(ctx context.Context, name string) error
	IncreaseLimit(ctx context.Context) error
}

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("catalog-server failed")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logging.Setup(cfg.Logging())
	logger := logging.NewLogger("catalog-server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb := cfg.RedisClient()
	if rdb != nil {
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("Connected to Redis")
	}

	httpClient, err := client.New(cfg.Client(rdb))
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	defer httpClient.Close()

	orchestrator := browse.New(cfg.Service(httpClient), browse.WithPageSize(cfg.Browse.PageSize))
	runDone := make(chan error, 1)
	go func() { runDone <- orchestrator.Run(ctx) }()

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           newHandler(orchestrator, rdb),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", cfg.Server.Addr).
			Str("catalog", cfg.Catalog.BaseURL).
			Str("category", cfg.Category.BaseURL).
			Msg("Starting catalog server")
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		stop()
		<-runDone
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("Graceful shutdown failed")
	}
	return <-runDone
}

func newHandler(b browser, rdb *redis.Client) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/ready", readyHandler(rdb))
	mux.HandleFunc("/state", stateHandler(b))
	mux.HandleFunc("/intents/category", categoryHandler(b))
	mux.HandleFunc("/intents/more", moreHandler(b))
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

// readyHandler reports 503 while the response cache is configured but unreachable.
func readyHandler(rdb *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if rdb != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := rdb.Ping(ctx).Err(); err != nil {
				http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	}
}

func stateHandler(b browser) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeSnapshot(w, b.Snapshot())
	}
}

func categoryHandler(b browser) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := b.SelectCategory(r.Context(), r.URL.Query().Get("name")); err != nil {
			http.Error(w, "intent not applied", http.StatusServiceUnavailable)
			return
		}
		writeSnapshot(w, b.Snapshot())
	}
}

func moreHandler(b browser) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := b.IncreaseLimit(r.Context()); err != nil {
			http.Error(w, "intent not applied", http.StatusServiceUnavailable)
			return
		}
		writeSnapshot(w, b.Snapshot())
	}
}

func writeSnapshot(w http.ResponseWriter, snap browse.Snapshot) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		log.Warn().Err(err).Msg("Failed to write snapshot")
	}
}
