package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/DIGITAL-FLOW-SOLUTIONS/ODDROYAL-V2-sub002/internal/aggregator"
	"github.com/DIGITAL-FLOW-SOLUTIONS/ODDROYAL-V2-sub002/internal/cache"
	"github.com/DIGITAL-FLOW-SOLUTIONS/ODDROYAL-V2-sub002/internal/config"
	"github.com/DIGITAL-FLOW-SOLUTIONS/ODDROYAL-V2-sub002/internal/providers/theoddsapi"
	"github.com/DIGITAL-FLOW-SOLUTIONS/ODDROYAL-V2-sub002/internal/settler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("config: %v", err)
	}

	log := newLogger(cfg.App.LogLevel)
	log.WithFields(logrus.Fields{
		"env":    cfg.App.Environment,
		"sports": cfg.Aggregator.Sports,
	}).Info("starting odds-engine")

	// Shared cache: the single mutable resource all workers touch.
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	store := cache.NewStore(redisClient, log)

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := store.Ping(pingCtx); err != nil {
		cancelPing()
		log.Fatalf("redis: %v", err)
	}
	cancelPing()
	log.Info("connected to redis")

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.Ping(); err != nil {
		log.Fatalf("postgres ping: %v", err)
	}
	log.Info("connected to postgres")

	provider := theoddsapi.NewClient(cfg.Provider.BaseURL, cfg.Provider.APIKey, cfg.Provider.Timeout)

	// Settlement engine.
	betStore := settler.NewPostgresStore(db)
	resolver := settler.NewCacheResolver(store)
	queue := settler.NewRetryQueue(store.Client(), log,
		cfg.Settlement.RetryBaseDelay, cfg.Settlement.RetryMaxDelay, cfg.Settlement.RetryMaxAttempts)
	breaker := settler.NewBreaker(cfg.Settlement.BreakerThreshold, cfg.Settlement.BreakerCooldown)
	engine := settler.NewEngine(betStore, store, resolver, queue, breaker, log, settler.Config{
		PollInterval: cfg.Settlement.PollInterval,
		LockTTL:      cfg.Settlement.LockTTL,
		BatchLimit:   cfg.Settlement.BatchLimit,
		VoidPolicy:   settler.VoidPolicy(cfg.Settlement.VoidPolicy),
		WorkerID:     cfg.App.WorkerID,
	})

	// CDC aggregator.
	publisher := aggregator.NewStreamPublisher(store.Client())
	batcher := aggregator.NewBatcher(publisher, log,
		cfg.Aggregator.BatchWindow, cfg.Aggregator.BatchMaxCount, cfg.Aggregator.MaxMessageBytes)
	agg := aggregator.New(store, provider, batcher, log, aggregator.Config{
		Sports:           cfg.Aggregator.SportKeys(),
		LiveInterval:     cfg.Aggregator.LiveInterval,
		UpcomingInterval: cfg.Aggregator.UpcomingInterval,
		EditedInterval:   cfg.Aggregator.EditedInterval,
		LiveTTL:          cfg.Aggregator.LiveTTL,
		PrematchTTL:      cfg.Aggregator.PrematchTTL,
		RefreshThreshold: cfg.Aggregator.RefreshThreshold,
		Regions:          cfg.Provider.Regions,
		Markets:          cfg.Provider.Markets,
		OddsFormat:       cfg.Provider.OddsFormat,
		ScoreDaysFrom:    cfg.Aggregator.ScoreDaysFrom,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		engine.Run(ctx)
	}()

	aggDone := make(chan struct{})
	go func() {
		defer close(aggDone)
		agg.Run(ctx)
	}()

	// Ops surface: liveness plus component counters.
	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      opsRouter(engine),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		log.WithField("addr", cfg.Server.Addr).Info("ops server started")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("ops server")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("shutting down")
	cancel()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()
	_ = server.Shutdown(shutdownCtx)

	// Bounded wait so an in-flight settlement cycle can finish.
	for _, done := range []<-chan struct{}{engineDone, aggDone} {
		select {
		case <-done:
		case <-shutdownCtx.Done():
			log.Warn("shutdown timeout reached before workers finished")
		}
	}
	log.Info("stopped")
}

func newLogger(level string) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if parsed, err := logrus.ParseLevel(level); err == nil {
		log.SetLevel(parsed)
	}
	return log
}

func opsRouter(engine *settler.Engine) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(10 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	r.Get("/stats", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(engine.Stats())
	})

	return r
}
