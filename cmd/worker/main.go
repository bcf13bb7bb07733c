package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"campuspro/internal/config"
	"campuspro/internal/presence"
	"campuspro/internal/queue"
	"campuspro/internal/store"
)

// Worker consumes gate messages and keeps the cached campus occupancy fresh.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnLifetime)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		// Single-process only: events published by a separate api process never arrive here.
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, cfg.GateQueueKey)
	}

	repo := presence.NewRepository(db.Client)
	occupancy := presence.NewRedisOccupancy(redisClient.Client, cfg.OccupancyTTL)

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for gate events...")
	for evt := range messages {
		n, err := repo.CountInCampus(ctx)
		if err != nil {
			log.Printf("occupancy count failed after %s event for %s: %v", evt.EventType, evt.RFIDID, err)
			continue
		}
		if err := occupancy.SetOccupancy(ctx, n); err != nil {
			log.Printf("occupancy cache write failed: %v", err)
			continue
		}
		log.Printf("%s event for %s processed, %d bus(es) in campus", evt.EventType, evt.RFIDID, n)

		time.Sleep(10 * time.Millisecond) // Small delay between processing
	}

	log.Println("worker stopped")
}
