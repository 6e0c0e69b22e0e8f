package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/ajinkyakothe/votingapp/internal/config"
	"github.com/ajinkyakothe/votingapp/internal/crypto"
	"github.com/ajinkyakothe/votingapp/internal/db"
	internalhttp "github.com/ajinkyakothe/votingapp/internal/http"
	"github.com/ajinkyakothe/votingapp/internal/metrics"
	"github.com/ajinkyakothe/votingapp/internal/model"
	"github.com/ajinkyakothe/votingapp/internal/repository"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connection failed: %v", err)
	}
	defer pool.Close()

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			cancel()
			log.Fatalf("redis ping failed: %v", err)
		}
		cancel()
		defer func() {
			if err := redisClient.Close(); err != nil {
				log.Printf("redis close error: %v", err)
			}
		}()
	}

	store := repository.NewStore(pool)
	if err := seedAdmin(ctx, cfg, store); err != nil {
		log.Fatalf("admin seed failed: %v", err)
	}

	collector := metrics.NewCollector(prometheus.DefaultRegisterer)
	server := internalhttp.NewServer(cfg, store, redisClient, collector)
	defer server.Close()

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("votingapp listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

// seedAdmin creates the bootstrap admin account when configured. The seed
// is idempotent: an already-registered aadhar number is left untouched.
func seedAdmin(ctx context.Context, cfg config.Config, store *repository.Store) error {
	if cfg.BootstrapAdminAadhar == "" {
		return nil
	}

	hash, err := crypto.HashPassword(cfg.BootstrapAdminPassword)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	created, err := store.SeedAdmin(ctx, model.User{
		ID:           uuid.NewString(),
		AadharNumber: cfg.BootstrapAdminAadhar,
		Name:         cfg.BootstrapAdminName,
		PasswordHash: hash,
		Role:         model.RoleAdmin,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return err
	}
	if created {
		log.Printf("bootstrap admin created for aadhar ending %s", cfg.BootstrapAdminAadhar[len(cfg.BootstrapAdminAadhar)-4:])
	}
	return nil
}
