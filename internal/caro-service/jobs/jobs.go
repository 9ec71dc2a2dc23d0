package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/radieske/caro-bet-platform/internal/caro-service/metrics"
	"github.com/radieske/caro-bet-platform/pkg/contracts/events"
	"github.com/radieske/caro-bet-platform/pkg/contracts/topics"
)

const (
	reconcileBatch = 100
	runTimeout     = 30 * time.Second
)

// Engine é o subconjunto do motor usado pelos jobs
type Engine interface {
	ListOpen(ctx context.Context, limit int) ([]events.RoomSummary, error)
	ListUnsettled(ctx context.Context, limit int) ([]string, error)
	SettleByID(ctx context.Context, id string) (bool, error)
	Publish(ctx context.Context, env events.Envelope)
}

type Config struct {
	LobbyRefresh   time.Duration
	ReconcileEvery time.Duration
	OpenLimit      int
}

type Jobs struct {
	log *zap.Logger
	met *metrics.Metrics
	eng Engine
	cfg Config
}

func New(log *zap.Logger, met *metrics.Metrics, eng Engine, cfg Config) *Jobs {
	return &Jobs{log: log, met: met, eng: eng, cfg: cfg}
}

// Start agenda os jobs e inicia o scheduler; o chamador faz Shutdown no encerramento
func (j *Jobs) Start() (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("new scheduler: %w", err)
	}

	// reschedule: uma execução lenta não empilha a próxima
	_, err = sched.NewJob(
		gocron.DurationJob(j.cfg.LobbyRefresh),
		gocron.NewTask(func() { j.run("lobby-refresh", j.RefreshLobby) }),
		gocron.WithName("lobby-refresh"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, fmt.Errorf("schedule lobby refresh: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(j.cfg.ReconcileEvery),
		gocron.NewTask(func() {
			j.run("settlement-reconcile", func(ctx context.Context) error {
				_, err := j.Reconcile(ctx)
				return err
			})
		}),
		gocron.WithName("settlement-reconcile"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, fmt.Errorf("schedule reconciler: %w", err)
	}

	sched.Start()
	return sched, nil
}

func (j *Jobs) run(name string, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		j.log.Warn("job failed", zap.String("job", name), zap.Error(err))
	}
}

// RefreshLobby envia o snapshot das salas abertas e atualiza o gauge
func (j *Jobs) RefreshLobby(ctx context.Context) error {
	rooms, err := j.eng.ListOpen(ctx, j.cfg.OpenLimit)
	if err != nil {
		return fmt.Errorf("list open: %w", err)
	}
	j.met.OpenMatches.Set(float64(len(rooms)))

	if rooms == nil {
		rooms = []events.RoomSummary{}
	}
	env, err := events.New(topics.Lobby, events.LobbySnapshot, "", events.LobbySnapshotPayload{Rooms: rooms})
	if err != nil {
		return err
	}
	j.eng.Publish(ctx, env)
	return nil
}

// Reconcile liquida partidas finalizadas sem linha de liquidação; a falha de uma não interrompe as demais
// e o retorno é quantas foram aplicadas.
func (j *Jobs) Reconcile(ctx context.Context) (int, error) {
	ids, err := j.eng.ListUnsettled(ctx, reconcileBatch)
	if err != nil {
		return 0, fmt.Errorf("list unsettled: %w", err)
	}
	applied := 0
	for _, id := range ids {
		ok, err := j.eng.SettleByID(ctx, id)
		if err != nil {
			j.log.Error("reconcile settle failed", zap.String("match_id", id), zap.Error(err))
			continue
		}
		if ok {
			applied++
		}
	}
	if applied > 0 {
		j.log.Info("reconciled settlements", zap.Int("applied", applied), zap.Int("pending", len(ids)))
	}
	return applied, nil
}
