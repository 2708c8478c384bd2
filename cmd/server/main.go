package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/haywire-mail/relay-crm/internal/api"
	"github.com/haywire-mail/relay-crm/internal/config"
	"github.com/haywire-mail/relay-crm/internal/importer"
	"github.com/haywire-mail/relay-crm/internal/mailing"
	"github.com/haywire-mail/relay-crm/internal/pkg/distlock"
	"github.com/haywire-mail/relay-crm/internal/pkg/logger"
	"github.com/haywire-mail/relay-crm/internal/repository/memory"
	"github.com/haywire-mail/relay-crm/internal/repository/postgres"
	"github.com/haywire-mail/relay-crm/internal/service/campaign"
	"github.com/haywire-mail/relay-crm/internal/worker"
)

// fullStore is everything the API needs plus the scheduler's read side.
type fullStore interface {
	api.Store
	campaign.Store
}

// checkPortAvailable verifies the target port is not already in use, so a
// stale process doesn't silently swallow requests.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use: %v", port, err)
	}
	ln.Close()
	return nil
}

func main() {
	log.Println("Starting Relay CRM server...")

	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))

	if err := checkPortAvailable(cfg.Server.Host, cfg.Server.Port); err != nil {
		log.Fatalf("Pre-flight check failed: %v", err)
	}

	// Store: Postgres when configured, in-memory otherwise.
	var store fullStore
	var db *sql.DB
	if cfg.Database.URL != "" {
		db, err = sql.Open("postgres", cfg.Database.URL)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		defer db.Close()
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
		db.SetConnMaxLifetime(5 * time.Minute)

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := db.PingContext(pingCtx); err != nil {
			cancel()
			log.Fatalf("Failed to ping database: %v", err)
		}
		cancel()
		store = postgres.NewStore(db)
		log.Println("Connected to PostgreSQL")
	} else {
		store = memory.NewStore()
		log.Println("No DATABASE_URL set; using in-memory store")
	}

	// Redis is optional; without it send locks degrade to Postgres advisory
	// locks or a per-process lock.
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			log.Printf("Redis unavailable (%v); falling back to local send locks", err)
			redisClient = nil
		}
		cancel()
	}

	sender := mailing.NewSimulatedSender(cfg.Mailing.SendDelay())

	svc := campaign.NewService(store)
	svc.SetDeliverer(sender)
	svc.SetLockFactory(func(key string) campaign.Lock {
		return distlock.New(redisClient, db, key, 5*time.Minute)
	})

	scheduler := worker.NewCampaignScheduler(store, svc, store)
	scheduler.SetPollInterval(cfg.Scheduler.Interval())
	if err := scheduler.Start(); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	server := api.NewServer(store, svc, importer.New(store))
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	go func() {
		log.Printf("API listening on %s", addr)
		if err := server.ListenAndServe(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")
	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	log.Println("Server stopped")
}
