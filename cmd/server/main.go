package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/omenmarket/settlement-engine/internal/config"
	"github.com/omenmarket/settlement-engine/internal/fees"
	"github.com/omenmarket/settlement-engine/internal/metrics"
	"github.com/omenmarket/settlement-engine/internal/settle"
	"github.com/omenmarket/settlement-engine/internal/store"
	"github.com/omenmarket/settlement-engine/internal/wallet"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration error", "err", err)
		os.Exit(1)
	}

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if cfg.RedisURL != "" {
			opt, err := redis.ParseURL(cfg.RedisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, cfg.CacheTTL)
			slog.Info("Redis cache enabled")
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Wallet service client ---
	var w wallet.Service
	if cfg.WalletURL != "" {
		w = wallet.NewHTTPClient(cfg.WalletURL, cfg.WalletTimeout, cfg.WalletRPS)
		slog.Info("wallet service configured", "url", cfg.WalletURL)
	} else {
		slog.Warn("WALLET_URL not set, using in-memory wallet (development only)")
		w = wallet.NewMemoryWallet()
	}

	// --- Fee schedule ---
	schedule, err := fees.NewSchedule(cfg.PlatformFeeRate, cfg.CreatorFeeRate)
	if err != nil {
		slog.Error("invalid fee rates", "err", err)
		os.Exit(1)
	}

	// --- WebSocket hub ---
	wsHub := settle.NewWSHub()
	go wsHub.Run()

	// --- Settlement service ---
	svc := settle.NewService(st, w, schedule, cfg.SeedLiquidity, cfg.PlatformAccount, wsHub)

	// --- Settlement sweeper ---
	baseCtx, cancelSweeps := context.WithCancel(context.Background())
	defer cancelSweeps()
	sweeper := settle.NewSweeper(st, w, baseCtx)
	if err := sweeper.Start(cfg.SweepSchedule); err != nil {
		slog.Error("invalid sweep schedule", "err", err)
		os.Exit(1)
	}
	defer sweeper.Stop()

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"settlement-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time price updates.
		r.Get("/ws", wsHub.HandleWS)

		// Market management.
		r.Get("/markets", svc.ListMarkets)
		r.Post("/markets", svc.CreateMarket)
		r.Get("/markets/{marketID}", svc.GetMarket)
		r.Get("/markets/{marketID}/price", svc.GetPrice)
		r.Get("/markets/{marketID}/bets", svc.ListMarketBets)
		r.Patch("/markets/{marketID}/resolve", svc.ResolveMarket)

		// Bet execution and queries.
		r.Post("/bets", svc.PlaceBet)
		r.Get("/bets/{betID}", svc.GetBet)
		r.Get("/users/{userID}/bets", svc.ListUserBets)

		// Claims.
		r.Post("/claims/{betID}", svc.ClaimBet)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("settlement-engine listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down settlement-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("settlement-engine stopped")
}
