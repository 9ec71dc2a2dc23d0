package producer

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/caro-bet-platform/internal/caro-service/metrics"
	"github.com/radieske/caro-bet-platform/pkg/contracts/events"
	"github.com/radieske/caro-bet-platform/pkg/contracts/topics"
)

type sinkFunc func(events.Envelope) error

func (f sinkFunc) Publish(_ context.Context, env events.Envelope) error { return f(env) }

func TestFanout_DeliversToAllSinks(t *testing.T) {
	met := metrics.New(prometheus.NewRegistry())
	var got []string
	ok := sinkFunc(func(e events.Envelope) error { got = append(got, "ok:"+e.Type); return nil })
	bad := sinkFunc(func(e events.Envelope) error { return errors.New("down") })

	f := NewFanout(met, Sink{Name: "kafka", Pub: bad}, Sink{Name: "realtime", Pub: ok}, Sink{Name: "off"})
	env, err := events.New(topics.Match("ABC123"), events.MoveMade, "ABC123", nil)
	require.NoError(t, err)

	err = f.Publish(context.Background(), env)
	assert.ErrorContains(t, err, "kafka: down")
	assert.Equal(t, []string{"ok:move-made"}, got)
	assert.Equal(t, 1.0, testutil.ToFloat64(met.PublishErrors.WithLabelValues("kafka")))
}

func TestKafkaPublisher_SkipsRelayEvents(t *testing.T) {
	// writer nil: se tentasse escrever, entraria em pânico
	p := NewKafkaPublisher(nil)
	env, err := events.New(topics.Match("ABC123"), events.Chat, "ABC123", events.ChatPayload{UserID: "a", Message: "oi"})
	require.NoError(t, err)
	assert.NoError(t, p.Publish(context.Background(), env))
}
