package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/clinicore/clinic-scheduler/internal/appointment"
	"github.com/clinicore/clinic-scheduler/internal/config"
	"github.com/clinicore/clinic-scheduler/internal/db"
	"github.com/clinicore/clinic-scheduler/internal/lock"
	"github.com/clinicore/clinic-scheduler/internal/notify"
	"github.com/clinicore/clinic-scheduler/internal/realtime"
	redisclient "github.com/clinicore/clinic-scheduler/internal/redis"
	"github.com/clinicore/clinic-scheduler/internal/scheduler"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("reminder-worker starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	log.Printf("running reminder worker in env=%s interval=%s", cfg.Env, cfg.PollInterval)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatalf("postgres connection error: %v", err)
	}
	defer pgPool.Close()
	log.Println("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatalf("redis connection error: %v", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Printf("error closing redis: %v", err)
		}
	}()
	log.Println("connected to Redis")

	// The worker has no live connections of its own; reminders claimed here
	// go out through the durable channel only.
	registry := realtime.NewRegistry()
	dispatcher := notify.NewDispatcher(registry, notify.LogNotifier{})

	jobs := scheduler.NewScheduler(scheduler.NewRedisStore(rdb))

	repo := appointment.NewPgRepository(pgPool)
	locker := lock.NewRedisProviderLocker(rdb, cfg.LockTTL)
	svc := appointment.NewService(repo, locker, dispatcher, jobs, cfg)

	jobs.RegisterHandler(appointment.JobKindReminder, svc.HandleReminder)

	// Run once at startup, then poll.
	runOnce(rootCtx, jobs)

	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Println("shutdown signal received, stopping reminder worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, jobs)
		}
	}
}

func runOnce(ctx context.Context, jobs *scheduler.Scheduler) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	if err := jobs.RunOnce(runCtx); err != nil {
		log.Printf("job poll error: %v", err)
		return
	}
	log.Printf("job poll complete in %s", time.Since(start))
}
