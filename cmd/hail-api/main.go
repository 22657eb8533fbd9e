// README: Process entrypoint: wire config, storage, dispatch and HTTP, then serve.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hail/internal/config"
	hailhttp "hail/internal/http"
	"hail/internal/infra"
	"hail/internal/logging"
	"hail/internal/modules/dispatch"
	"hail/internal/modules/driver"
	"hail/internal/modules/ride"
	"hail/internal/stream"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := logging.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		log.Error("postgres connect failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.Ping(ctx); err != nil {
		log.Error("postgres ping failed", "error", err)
		os.Exit(1)
	}

	rdb := infra.NewRedis(cfg.Redis.Addr)
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Error("redis ping failed", "error", err)
		os.Exit(1)
	}

	var events *stream.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		events = stream.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer events.Close()
		log.Info("ride event stream enabled", "topic", cfg.Kafka.Topic)
	}

	driverStore := driver.NewStore(db, rdb, cfg.Location.CacheTTL)
	driverSvc := driver.NewService(driverStore)

	rideStore := ride.NewStore(db)
	rideSvc := ride.NewService(rideStore, cfg.Dispatch, log)

	locks := dispatch.NewRedisLockManager(rdb)
	engine := dispatch.NewEngine(rideStore, driverSvc, locks, cfg.Dispatch, log)
	rideSvc.SetDispatcher(engine)
	rideSvc.SetDriverIndex(driverSvc)
	if events != nil {
		rideSvc.SetEventSink(events)
		engine.SetEventSink(events)
	}

	go rideSvc.RunTimeoutMonitor(ctx)

	router := hailhttp.NewRouter(hailhttp.Deps{
		Rides:   rideSvc,
		Drivers: driverSvc,
		Engine:  engine,
		Secret:  cfg.Auth.Secret,
		Log:     log,
	})
	srv := hailhttp.NewServer(cfg.HTTP.Addr, router)

	go func() {
		log.Info("http server listening", "addr", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "error", err)
	}
}
