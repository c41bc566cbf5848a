package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/manojawesome/AQueueMan/internal/auth"
	authfile "github.com/manojawesome/AQueueMan/internal/auth/file"
	authpg "github.com/manojawesome/AQueueMan/internal/auth/postgres"
	"github.com/manojawesome/AQueueMan/internal/config"
	"github.com/manojawesome/AQueueMan/internal/httpapi"
	"github.com/manojawesome/AQueueMan/internal/queue"
	"github.com/manojawesome/AQueueMan/internal/snapshot"
	snapfile "github.com/manojawesome/AQueueMan/internal/snapshot/file"
	snappg "github.com/manojawesome/AQueueMan/internal/snapshot/postgres"
	"github.com/manojawesome/AQueueMan/internal/telemetry"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	cfg := config.Load()
	shutdownTelemetry := telemetry.Setup("aqueueman", cfg.OTLPEndpoint, cfg.OTLPInsecure)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	var snapStore snapshot.Store
	var authStore auth.Store

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db connect: %v", err)
		}
		defer pool.Close()

		pgSnap := snappg.NewStore(pool)
		pgAuth := authpg.NewStore(pool, cfg.SessionTTL, cfg.AdminEmail)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := pgSnap.EnsureSchema(ctx); err != nil {
			cancel()
			log.Fatalf("snapshot schema: %v", err)
		}
		if err := pgAuth.EnsureSchema(ctx); err != nil {
			cancel()
			log.Fatalf("auth schema: %v", err)
		}
		cancel()
		snapStore = pgSnap
		authStore = pgAuth
	} else {
		fileSnap, err := snapfile.NewStore(filepath.Join(cfg.DataDir, "snapshots"))
		if err != nil {
			log.Fatalf("snapshot store: %v", err)
		}
		fileAuth, err := authfile.NewStore(cfg.DataDir, cfg.SessionTTL, cfg.AdminEmail)
		if err != nil {
			log.Fatalf("auth store: %v", err)
		}
		snapStore = fileSnap
		authStore = fileAuth
	}

	manager := queue.NewManager(snapStore)
	handler := httpapi.NewHandler(manager, authStore)
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		IPPerMinute:     cfg.RateLimitPerMinute,
		IPBurst:         cfg.RateLimitBurst,
		TenantPerMinute: cfg.TenantRateLimitPerMinute,
		TenantBurst:     cfg.TenantRateLimitBurst,
	})

	routes := httpapi.LoggingMiddleware(httpapi.AuthMiddleware(authStore, handler.Routes()))
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelhttp.NewHandler(limiter.Middleware(routes), "aqueueman"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("aqueueman listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
