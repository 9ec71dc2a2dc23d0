package producer

import (
	"context"
	"errors"
	"fmt"

	"github.com/radieske/caro-bet-platform/internal/caro-service/metrics"
	"github.com/radieske/caro-bet-platform/pkg/contracts/events"
)

type Publisher interface {
	Publish(ctx context.Context, env events.Envelope) error
}

// Sink é um destino nomeado (o nome vira label de métrica)
type Sink struct {
	Name string
	Pub  Publisher
}

// Fanout entrega o envelope a todos os destinos; falha em um não impede os outros
type Fanout struct {
	sinks []Sink
	met   *metrics.Metrics
}

func NewFanout(met *metrics.Metrics, sinks ...Sink) *Fanout {
	var live []Sink
	for _, s := range sinks {
		if s.Pub != nil {
			live = append(live, s)
		}
	}
	return &Fanout{sinks: live, met: met}
}

func (f *Fanout) Publish(ctx context.Context, env events.Envelope) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Pub.Publish(ctx, env); err != nil {
			if f.met != nil {
				f.met.PublishErrors.WithLabelValues(s.Name).Inc()
			}
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
		}
	}
	return errors.Join(errs...)
}
