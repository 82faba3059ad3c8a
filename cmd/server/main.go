package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/np-nandanpatil/adi/internal/backend/postgres"
	"github.com/np-nandanpatil/adi/internal/backend/probe"
	"github.com/np-nandanpatil/adi/internal/backend/redislive"
	"github.com/np-nandanpatil/adi/internal/config"
	"github.com/np-nandanpatil/adi/internal/history"
	internalhttp "github.com/np-nandanpatil/adi/internal/http"
	"github.com/np-nandanpatil/adi/internal/live"
	"github.com/np-nandanpatil/adi/internal/session"
	"github.com/np-nandanpatil/adi/internal/supervisor"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connection failed: %v", err)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		pingCancel()
		log.Fatalf("redis ping failed: %v", err)
	}
	pingCancel()
	defer func() {
		if err := redisClient.Close(); err != nil {
			log.Printf("redis close error: %v", err)
		}
	}()

	store := postgres.NewStore(pool)
	transport := probe.New(probe.PingPool(pool), probe.PingRedis(redisClient))
	sup := supervisor.New(transport, supervisor.Options{
		MaxAttempts: cfg.RetryMaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
		DisplayTTL:  cfg.StatusDisplayTTL,
	})

	sessions := session.NewService(store, store, session.ServiceOptions{
		JWTSecret:    cfg.JWTSecret,
		JWTIssuer:    cfg.JWTIssuer,
		AccessTTL:    cfg.AccessTokenTTL,
		RefreshTTL:   cfg.RefreshTokenTTL,
		UserIDDigits: cfg.UserIDDigits,
	})

	source := redislive.NewSource(redisClient, store)
	liveMgr := live.NewManager(source, sup, live.Options{
		MaxAttempts: cfg.RetryMaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
	})
	sessions.Watch(func(event session.Event) {
		if !event.SignedIn {
			liveMgr.UnsubscribeActive()
		}
	})

	fetcher := history.NewFetcher(store, sup)

	supervisor.StartOnlineWatcher(ctx, sup, transport, cfg.OnlineProbeInterval)

	server := internalhttp.NewServer(cfg, sessions, store, liveMgr, fetcher, sup)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("dashboard listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-ctx.Done()

	liveMgr.UnsubscribeActive()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
