package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"time"

	_ "github.com/lib/pq"

	"clinauth/internal/access"
	"clinauth/internal/access/bulk"
	"clinauth/internal/access/cache"
	"clinauth/internal/access/guard"
	"clinauth/internal/api"
	"clinauth/internal/audit"
	"clinauth/internal/clinical"
	"clinauth/internal/platform/config"
	"clinauth/internal/platform/httpserver"
	"clinauth/internal/platform/logger"
	platformredis "clinauth/internal/platform/redis"
)

// main wires the authorization core behind the demo API. Redis, postgres
// and kafka are all optional: without them the server runs on in-process
// stores, which is enough for local development.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	clock := access.SystemClock{}
	rules := access.NewRuleset(clock)

	var store cache.Store = cache.NewMemoryStore(clock)
	redisClient, err := platformredis.New(cfg.RedisURL)
	if err != nil {
		log.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		store = cache.NewRedisStore(redisClient.Client)
		defer redisClient.Close()
	}
	decisions := cache.New(store, log, cache.WithTTL(cfg.DecisionTTL))
	cached := cache.WrapRules(rules, decisions)

	var (
		resolver *bulk.Resolver
		patients clinical.PatientStore
		events   clinical.EventStore
	)
	if cfg.PostgresDSN != "" {
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			log.Error("postgres open failed", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			log.Error("postgres ping failed", "error", err)
			os.Exit(1)
		}
		resolver = bulk.NewResolver(db, rules)
		pgStore := clinical.NewPostgresStore(db)
		patients, events = pgStore, pgStore
	} else {
		mem := clinical.NewMemoryStore()
		patients, events = mem, mem
	}

	var sink audit.Sink = audit.NewMemorySink()
	if len(cfg.KafkaBrokers) > 0 {
		kafkaSink, err := audit.NewKafkaSink(context.Background(), cfg.KafkaBrokers, cfg.AuditTopic)
		if err != nil {
			log.Error("kafka connection failed", "error", err)
			os.Exit(1)
		}
		defer kafkaSink.Close()

		// Keep broker latency off the request path. The worker is stopped,
		// and its buffer flushed, before the sink closes.
		queue := audit.NewQueue(256)
		workerCtx, stopWorker := context.WithCancel(context.Background())
		workerDone := make(chan struct{})
		go func() {
			defer close(workerDone)
			if err := audit.NewWorker(kafkaSink, queue).Run(workerCtx); err != nil && err != context.Canceled {
				log.Error("audit worker stopped", "error", err)
			}
		}()
		defer func() {
			stopWorker()
			<-workerDone
		}()
		sink = queue
	}
	recorder := audit.NewRecorder(sink, log)

	var guardOpts []guard.Option
	if cfg.LoginURL != "" {
		guardOpts = append(guardOpts, guard.WithLoginURL(cfg.LoginURL))
	}
	g := guard.New(cached, patients, events, recorder, log, guardOpts...)
	handler := api.NewHandler(log, cached, decisions, resolver, patients, events)
	router := api.NewRouter(handler, g, []byte(cfg.JWTSigningKey))

	srv := httpserver.New(cfg.Addr, router)
	log.Info("starting clinauth", "addr", cfg.Addr,
		"redis", cfg.RedisURL != "", "postgres", cfg.PostgresDSN != "", "kafka", len(cfg.KafkaBrokers) > 0)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
}
