package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/caro-bet-platform/internal/match-audit/consumer"
	"github.com/radieske/caro-bet-platform/internal/match-audit/repository"
	"github.com/radieske/caro-bet-platform/internal/shared/config"
	"github.com/radieske/caro-bet-platform/internal/shared/db"
	sharedkafka "github.com/radieske/caro-bet-platform/internal/shared/kafka"
	"github.com/radieske/caro-bet-platform/internal/shared/logger"
	"github.com/radieske/caro-bet-platform/internal/shared/metrics"
)

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	brokers := cfg.Brokers()
	if len(brokers) == 0 {
		log.Fatal("KAFKA_BROKERS is required for the audit worker")
	}

	// Postgres: destino do histórico
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()

	sctx, scancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := db.EnsureSchema(sctx, pg); err != nil {
		scancel()
		log.Fatal("ensure schema", zap.Error(err))
	}
	scancel()

	// consumer group próprio: o histórico recebe todos os eventos independente de outros leitores
	reader := sharedkafka.NewReader(brokers, cfg.TopicMatchEvents, cfg.AuditConsumerID)
	defer reader.Close()
	dlq := sharedkafka.NewWriter(brokers, cfg.TopicMatchEventsDLQ)
	defer dlq.Close()

	// Métricas Prometheus por estágio
	consumed := prometheus.NewCounter(prometheus.CounterOpts{Name: "caro_audit_messages_consumed_total", Help: "mensagens consumidas"})
	persist := prometheus.NewCounter(prometheus.CounterOpts{Name: "caro_audit_db_writes_total", Help: "eventos gravados no histórico"})
	dead := prometheus.NewCounter(prometheus.CounterOpts{Name: "caro_audit_dead_letters_total", Help: "mensagens enviadas para a DLQ"})
	errorsBy := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "caro_audit_errors_total", Help: "erros por estágio"}, []string{"stage"})
	prometheus.MustRegister(consumed, persist, dead, errorsBy)

	proc := &consumer.Processor{
		Log:          log,
		Reader:       reader,
		Repo:         repository.NewPostgresRepo(pg),
		DLQ:          dlq,
		OnConsumed:   func() { consumed.Inc() },
		OnPersist:    func() { persist.Inc() },
		OnDeadLetter: func() { dead.Inc() },
		OnError:      func(stage string) { errorsBy.WithLabelValues(stage).Inc() },
	}

	msrv := metrics.StartMetricsServer(log, cfg.MetricsPort, prometheus.DefaultGatherer, pg.PingContext)
	log.Info("metrics/health listening", zap.String("addr", msrv.Addr))

	// Sinalização para shutdown gracioso (SIGINT/SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("match-audit worker started", zap.String("topic", cfg.TopicMatchEvents), zap.String("group", cfg.AuditConsumerID))
	if err := proc.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal("processor stopped with error", zap.Error(err))
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	_ = msrv.Shutdown(shutdownCtx)
	log.Info("match-audit worker stopped")
}
