package producer

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	sharedkafka "github.com/radieske/caro-bet-platform/internal/shared/kafka"
	"github.com/radieske/caro-bet-platform/pkg/contracts/events"
)

// KafkaPublisher grava eventos autoritativos de partida no tópico de auditoria.
// Chat, digitação e presença não vão para o Kafka.
type KafkaPublisher struct {
	Writer *kafka.Writer
}

func NewKafkaPublisher(w *kafka.Writer) *KafkaPublisher {
	return &KafkaPublisher{Writer: w}
}

func (p *KafkaPublisher) Publish(ctx context.Context, env events.Envelope) error {
	if !env.Authoritative() {
		return nil
	}
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return sharedkafka.WriteJSON(ctx, p.Writer, env.MatchCode, b)
}
