// The worker binary runs the campaign scheduler without the HTTP API, for
// deployments that split the admin surface from the send loop. It shares
// state with the server through PostgreSQL, so DATABASE_URL is mandatory
// here; an in-memory store would schedule against an empty world.
package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/haywire-mail/relay-crm/internal/config"
	"github.com/haywire-mail/relay-crm/internal/mailing"
	"github.com/haywire-mail/relay-crm/internal/pkg/distlock"
	"github.com/haywire-mail/relay-crm/internal/pkg/logger"
	"github.com/haywire-mail/relay-crm/internal/repository/postgres"
	"github.com/haywire-mail/relay-crm/internal/service/campaign"
	"github.com/haywire-mail/relay-crm/internal/worker"
)

func main() {
	log.Println("Starting Relay CRM send worker...")

	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))

	if cfg.Database.URL == "" {
		log.Fatal("DATABASE_URL is required for the worker")
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
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
	log.Println("Connected to database")

	store := postgres.NewStore(db)

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			log.Printf("Redis unavailable (%v); using Postgres advisory locks", err)
			redisClient = nil
		}
		cancel()
	}

	svc := campaign.NewService(store)
	svc.SetDeliverer(mailing.NewSimulatedSender(cfg.Mailing.SendDelay()))
	svc.SetLockFactory(func(key string) campaign.Lock {
		return distlock.New(redisClient, db, key, 5*time.Minute)
	})

	scheduler := worker.NewCampaignScheduler(store, svc, store)
	scheduler.SetPollInterval(cfg.Scheduler.Interval())
	if err := scheduler.Start(); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}
	log.Println("Worker running...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down worker...")
	scheduler.Stop()
	log.Println("Worker stopped")
}
