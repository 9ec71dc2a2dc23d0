package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/caro-bet-platform/internal/caro-service/cache"
	"github.com/radieske/caro-bet-platform/internal/caro-service/engine"
	httpapi "github.com/radieske/caro-bet-platform/internal/caro-service/http"
	"github.com/radieske/caro-bet-platform/internal/caro-service/jobs"
	caromet "github.com/radieske/caro-bet-platform/internal/caro-service/metrics"
	"github.com/radieske/caro-bet-platform/internal/caro-service/producer"
	"github.com/radieske/caro-bet-platform/internal/caro-service/pubsub"
	"github.com/radieske/caro-bet-platform/internal/caro-service/repo"
	"github.com/radieske/caro-bet-platform/internal/caro-service/ws"
	sharedcache "github.com/radieske/caro-bet-platform/internal/shared/cache"
	"github.com/radieske/caro-bet-platform/internal/shared/config"
	"github.com/radieske/caro-bet-platform/internal/shared/db"
	sharedkafka "github.com/radieske/caro-bet-platform/internal/shared/kafka"
	"github.com/radieske/caro-bet-platform/internal/shared/logger"
	"github.com/radieske/caro-bet-platform/internal/shared/metrics"
)

func main() {
	// carrega config
	cfg := config.Load()

	// inicia logger
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(fmt.Errorf("logger init: %w", err))
	}
	defer log.Sync()

	log.Info("starting service",
		zap.String("service", cfg.ServiceName),
		zap.String("env", cfg.Env),
		zap.String("store", cfg.Store),
		zap.Bool("ready_check", cfg.ReadyCheck),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Store: Postgres (padrão) ou memória para desenvolvimento local
	var store engine.Store
	switch cfg.Store {
	case "memory":
		opening, err := decimal.NewFromString(cfg.DemoBalance)
		if err != nil {
			log.Fatal("invalid CARO_DEMO_BALANCE", zap.String("value", cfg.DemoBalance), zap.Error(err))
		}
		store = repo.NewMemory(opening)
		log.Warn("using in-memory store; state is lost on restart", zap.String("opening_balance", opening.String()))
	default:
		pg, err := db.ConnectPostgres(cfg.PostgresDSN)
		if err != nil {
			log.Fatal("failed to connect postgres", zap.Error(err))
		}
		defer pg.Close()

		sctx, scancel := context.WithTimeout(ctx, 10*time.Second)
		err = db.EnsureSchema(sctx, pg)
		scancel()
		if err != nil {
			log.Fatal("ensure schema", zap.Error(err))
		}
		store = repo.NewPostgres(pg)
		log.Info("postgres connected")
	}

	// Redis é opcional: sem ele o fan-out é só local e o lobby não tem cache
	redisClient, err := sharedcache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("failed to connect redis", zap.Error(err))
	}
	if redisClient != nil {
		defer redisClient.Close()
		log.Info("redis connected")
	}

	met := caromet.New(prometheus.DefaultRegisterer)
	hub := ws.NewHub(log, met, ws.AllowOrigins(cfg.AllowedOrigins))

	// realtime: Redis Pub/Sub entre instâncias ou entrega direta no hub
	var realtime producer.Publisher = hub
	if redisClient != nil {
		broadcaster := pubsub.NewRedisBroadcaster(redisClient, cfg.RedisRealtimeChannel)
		ws.StartRedisSubscriber(ctx, redisClient, cfg.RedisRealtimeChannel, hub, log)
		realtime = broadcaster
	}
	sinks := []producer.Sink{{Name: "realtime", Pub: realtime}}

	// Kafka é opcional: recebe só os eventos autoritativos
	if brokers := cfg.Brokers(); len(brokers) > 0 {
		writer := sharedkafka.NewWriter(brokers, cfg.TopicMatchEvents)
		defer writer.Close()
		sinks = append(sinks, producer.Sink{Name: "kafka", Pub: producer.NewKafkaPublisher(writer)})
		log.Info("kafka writer ready", zap.String("topic", cfg.TopicMatchEvents))
	}

	eng := engine.New(store, producer.NewFanout(met, sinks...), log, met, engine.Config{ReadyCheck: cfg.ReadyCheck})
	hub.Wire(eng, realtime)

	lobby := cache.New(redisClient, cfg.LobbyCacheTTL)
	api := httpapi.NewServer(log, eng, lobby, http.HandlerFunc(hub.HandleWS), cfg.OpenRoomsLimit)

	// jobs: snapshot do lobby e reconciliação de liquidações
	sched, err := jobs.New(log, met, eng, jobs.Config{
		LobbyRefresh:   cfg.LobbyRefresh,
		ReconcileEvery: cfg.ReconcileEvery,
		OpenLimit:      cfg.OpenRoomsLimit,
	}).Start()
	if err != nil {
		log.Fatal("start scheduler", zap.Error(err))
	}

	// sobe servidor de métricas e health
	msrv := metrics.StartMetricsServer(log, cfg.MetricsPort, prometheus.DefaultGatherer, store.Ping)
	log.Info("metrics/health server starting", zap.String("addr", msrv.Addr))

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("http server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", zap.Error(err))
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	if err := sched.Shutdown(); err != nil {
		log.Warn("scheduler shutdown", zap.Error(err))
	}
	// conexões WebSocket sequestradas não são encerradas pelo Shutdown
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	_ = msrv.Shutdown(shutdownCtx)
	log.Info("caro-service stopped")
}
