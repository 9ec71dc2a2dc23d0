package consumer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/caro-bet-platform/pkg/contracts/events"
)

// MessageReader é satisfeito por *kafka.Reader
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

// MessageWriter é satisfeito por *kafka.Writer (DLQ)
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type EventStore interface {
	InsertEvent(ctx context.Context, env events.Envelope) error
}

// Processor consome os eventos de partida e grava o histórico.
// Mensagens inválidas ou que falharam na gravação vão para a DLQ (quando configurada).
type Processor struct {
	Log    *zap.Logger
	Reader MessageReader
	Repo   EventStore
	DLQ    MessageWriter

	OnConsumed   func()       // métricas (counter++)
	OnPersist    func()       // métricas
	OnDeadLetter func()       // métricas
	OnError      func(string) // métricas por fase

	RetryDelay time.Duration // espera após falha de leitura (default 500ms)
}

// Run inicia o loop de consumo; retorna quando o contexto é cancelado
func (p *Processor) Run(ctx context.Context) error {
	delay := p.RetryDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	for {
		m, err := p.Reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.Log.Warn("kafka read failed", zap.Error(err))
			p.fail("read")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			continue
		}

		if p.OnConsumed != nil {
			p.OnConsumed()
		}

		var env events.Envelope
		if err := json.Unmarshal(m.Value, &env); err != nil || env.Type == "" {
			p.Log.Warn("invalid match event", zap.ByteString("key", m.Key), zap.Error(err))
			p.fail("decode")
			p.deadLetter(ctx, m, "decode")
			continue
		}
		if env.MatchCode == "" {
			env.MatchCode = string(m.Key)
		}

		if err := p.Repo.InsertEvent(ctx, env); err != nil {
			p.Log.Warn("db insert match event failed", zap.String("code", env.MatchCode), zap.String("type", env.Type), zap.Error(err))
			p.fail("db_insert")
			p.deadLetter(ctx, m, "db_insert")
			continue
		}
		if p.OnPersist != nil {
			p.OnPersist()
		}
	}
}

func (p *Processor) fail(stage string) {
	if p.OnError != nil {
		p.OnError(stage)
	}
}

// deadLetter reenvia a mensagem original com o estágio da falha no header
func (p *Processor) deadLetter(ctx context.Context, m kafka.Message, stage string) {
	if p.DLQ == nil {
		return
	}
	msg := kafka.Message{
		Key:   m.Key,
		Value: m.Value,
		Time:  time.Now(),
		Headers: append(m.Headers,
			kafka.Header{Key: "x-failed-stage", Value: []byte(stage)},
			kafka.Header{Key: "x-source-topic", Value: []byte(m.Topic)},
		),
	}
	if err := p.DLQ.WriteMessages(ctx, msg); err != nil {
		p.Log.Error("dlq write failed", zap.String("stage", stage), zap.Error(err))
		p.fail("dlq")
		return
	}
	if p.OnDeadLetter != nil {
		p.OnDeadLetter()
	}
}
