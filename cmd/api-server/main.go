package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/clinicore/clinic-scheduler/internal/api"
	"github.com/clinicore/clinic-scheduler/internal/appointment"
	"github.com/clinicore/clinic-scheduler/internal/auth"
	"github.com/clinicore/clinic-scheduler/internal/config"
	"github.com/clinicore/clinic-scheduler/internal/db"
	"github.com/clinicore/clinic-scheduler/internal/lock"
	"github.com/clinicore/clinic-scheduler/internal/notify"
	"github.com/clinicore/clinic-scheduler/internal/realtime"
	redisclient "github.com/clinicore/clinic-scheduler/internal/redis"
	"github.com/clinicore/clinic-scheduler/internal/scheduler"
)

const version = "0.3.0"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("api-server starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	log.Printf("running in env=%s http_port=%s", cfg.Env, cfg.HTTPPort)

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

	// Connect Redis
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

	registry := realtime.NewRegistry()
	dispatcher := notify.NewDispatcher(registry, notify.LogNotifier{})
	resolver := auth.NewResolver(cfg.JWTSecret)

	jobs := scheduler.NewScheduler(scheduler.NewRedisStore(rdb))

	repo := appointment.NewPgRepository(pgPool)
	locker := lock.NewRedisProviderLocker(rdb, cfg.LockTTL)
	svc := appointment.NewService(repo, locker, dispatcher, jobs, cfg)

	jobs.RegisterHandler(appointment.JobKindReminder, svc.HandleReminder)

	router := api.NewRouter(api.RouterConfig{
		Service:  svc,
		Registry: registry,
		Live:     realtime.NewHandler(registry, dispatcher, resolver),
		PgPool:   pgPool,
		Redis:    rdb,
		Env:      cfg.Env,
		Version:  version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-rootCtx.Done()

	log.Println("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown error: %v", err)
	}
}
