package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/caro-bet-platform/internal/caro-service/board"
	"github.com/radieske/caro-bet-platform/internal/caro-service/match"
	"github.com/radieske/caro-bet-platform/internal/caro-service/metrics"
	"github.com/radieske/caro-bet-platform/pkg/contracts/events"
	"github.com/radieske/caro-bet-platform/pkg/contracts/topics"
)

// tentativas de gerar código de sala livre
const codeAttempts = 5

// Publisher entrega envelopes já commitados (realtime e/ou Kafka)
type Publisher interface {
	Publish(ctx context.Context, env events.Envelope) error
}

// Config ajusta regras e dependências substituíveis em teste
type Config struct {
	ReadyCheck bool
	Clock      func() time.Time
	Codes      func() (string, error)
}

// Engine orquestra as regras da partida sobre o Store e publica eventos após o commit
type Engine struct {
	store Store
	pub   Publisher
	log   *zap.Logger
	met   *metrics.Metrics

	readyCheck bool
	now        func() time.Time
	newCode    func() (string, error)
}

func New(store Store, pub Publisher, log *zap.Logger, met *metrics.Metrics, cfg Config) *Engine {
	e := &Engine{
		store:      store,
		pub:        pub,
		log:        log,
		met:        met,
		readyCheck: cfg.ReadyCheck,
		now:        cfg.Clock,
		newCode:    cfg.Codes,
	}
	if e.now == nil {
		e.now = func() time.Time { return time.Now().UTC() }
	}
	if e.newCode == nil {
		e.newCode = match.NewCode
	}
	return e
}

// View é a partida com as estatísticas dos dois jogadores
type View struct {
	Match *match.Match     `json:"match"`
	Stats map[string]Stats `json:"stats"`
}

// Create abre uma sala e debita a aposta do criador na mesma transação
func (e *Engine) Create(ctx context.Context, userID string, bet decimal.Decimal) (*match.Match, error) {
	if userID == "" {
		return nil, match.ErrInvalidRequest
	}
	if err := match.ValidateBet(bet); err != nil {
		return nil, err
	}

	var m *match.Match
	for attempt := 0; attempt < codeAttempts; attempt++ {
		code, err := e.newCode()
		if err != nil {
			return nil, err
		}
		m, err = match.New(uuid.New().String(), code, userID, bet, e.now())
		if err != nil {
			return nil, err
		}
		err = e.store.Create(ctx, m, func(ctx context.Context, tx Tx) error {
			return tx.Debit(ctx, userID, bet, KindStake, m.ID)
		})
		if errors.Is(err, match.ErrCodeTaken) {
			e.log.Debug("room code collision", zap.String("code", code), zap.Int("attempt", attempt+1))
			continue
		}
		if err != nil {
			return nil, err
		}

		e.met.MatchesCreated.Inc()
		e.log.Info("match created", zap.String("code", m.Code), zap.String("user", userID), zap.String("bet", bet.String()))
		e.publish(ctx, topics.Lobby, events.RoomCreated, m.Code, summary(m))
		return m, nil
	}
	return nil, fmt.Errorf("create match: %w", match.ErrCodeTaken)
}

// Join senta o segundo jogador e debita a aposta dele; qualquer falha deixa a sala intacta
func (e *Engine) Join(ctx context.Context, userID, code string) (*match.Match, error) {
	code = match.NormalizeCode(code)
	if userID == "" || code == "" {
		return nil, match.ErrInvalidRequest
	}
	m, err := e.store.Mutate(ctx, code, func(ctx context.Context, m *match.Match, tx Tx) error {
		if err := m.Seat(userID, e.readyCheck, e.now()); err != nil {
			return err
		}
		return tx.Debit(ctx, userID, m.BetAmount, KindStake, m.ID)
	})
	if err != nil {
		return nil, err
	}

	e.met.MatchesJoined.Inc()
	e.log.Info("match joined", zap.String("code", m.Code), zap.String("user", userID), zap.String("status", string(m.Status)))
	sum := summary(m)
	e.publish(ctx, topics.Lobby, events.RoomUpdated, m.Code, sum)
	e.publish(ctx, topics.Match(m.Code), events.RoomUpdated, m.Code, sum)
	if m.Status == match.StatusPlaying {
		e.publish(ctx, topics.Match(m.Code), events.GameStarted, m.Code, started(m))
	}
	return m, nil
}

// Ready registra o sinal de pronto; o segundo sinal inicia a partida
func (e *Engine) Ready(ctx context.Context, userID, code string) (*match.Match, error) {
	code = match.NormalizeCode(code)
	if userID == "" || code == "" {
		return nil, match.ErrInvalidRequest
	}
	var start bool
	m, err := e.store.Mutate(ctx, code, func(ctx context.Context, m *match.Match, tx Tx) error {
		var err error
		start, err = m.MarkReady(userID, e.now())
		return err
	})
	if err != nil {
		return nil, err
	}

	e.publish(ctx, topics.Match(m.Code), events.PlayerReady, m.Code,
		events.PlayerReadyPayload{UserID: userID, Slot: uint8(m.SlotOf(userID))})
	if start {
		e.publish(ctx, topics.Match(m.Code), events.GameStarted, m.Code, started(m))
	}
	return m, nil
}

// Move valida e aplica a jogada. Se ela vence, a liquidação roda na mesma transação.
func (e *Engine) Move(ctx context.Context, userID, code string, p board.Point) (*match.Match, error) {
	code = match.NormalizeCode(code)
	if userID == "" || code == "" {
		return nil, match.ErrInvalidRequest
	}
	var (
		won bool
		st  *match.Settlement
	)
	m, err := e.store.Mutate(ctx, code, func(ctx context.Context, m *match.Match, tx Tx) error {
		var err error
		if won, err = m.Play(userID, p, e.now()); err != nil {
			return err
		}
		if won {
			st, err = e.settle(ctx, m, tx)
		}
		return err
	})
	if err != nil {
		e.met.MovesRejected.WithLabelValues(match.Code(err)).Inc()
		return nil, err
	}

	e.met.MovesAccepted.Inc()
	slot := m.SlotOf(userID)
	e.publish(ctx, topics.Match(m.Code), events.MoveMade, m.Code, events.MovePayload{
		X:         p.X,
		Y:         p.Y,
		Slot:      uint8(slot),
		UserID:    userID,
		NextTurn:  uint8(m.Turn),
		MoveCount: m.MoveCount,
	})
	if won {
		e.log.Info("match finished", zap.String("code", m.Code), zap.String("winner", userID), zap.Int("moves", m.MoveCount))
		e.finished(ctx, m, st, events.GameFinished)
	}
	return m, nil
}

// Settle liquida uma partida finalizada pelo código. Idempotente: retorna false se já liquidada.
func (e *Engine) Settle(ctx context.Context, code string) (bool, error) {
	code = match.NormalizeCode(code)
	if code == "" {
		return false, match.ErrInvalidRequest
	}
	return e.settleVia(ctx, func(fn func(context.Context, *match.Match, Tx) error) (*match.Match, error) {
		return e.store.Mutate(ctx, code, fn)
	})
}

// SettleByID é usado pelo reconciliador; códigos de partidas finalizadas podem ter sido reaproveitados
func (e *Engine) SettleByID(ctx context.Context, id string) (bool, error) {
	return e.settleVia(ctx, func(fn func(context.Context, *match.Match, Tx) error) (*match.Match, error) {
		return e.store.MutateByID(ctx, id, fn)
	})
}

func (e *Engine) settleVia(ctx context.Context, mutate func(func(context.Context, *match.Match, Tx) error) (*match.Match, error)) (bool, error) {
	var st *match.Settlement
	m, err := mutate(func(ctx context.Context, m *match.Match, tx Tx) error {
		if m.Status != match.StatusFinished {
			return match.ErrMatchNotActive
		}
		var err error
		st, err = e.settle(ctx, m, tx)
		return err
	})
	if err != nil {
		return false, err
	}
	if st == nil {
		return false, nil
	}
	e.log.Info("settlement applied", zap.String("code", m.Code), zap.String("match_id", m.ID))
	e.finished(ctx, m, st, events.SettlementApplied)
	return true, nil
}

// settle roda dentro da transação da partida. A reivindicação da linha de liquidação
// garante no máximo uma execução por partida; nil quando já liquidada.
func (e *Engine) settle(ctx context.Context, m *match.Match, tx Tx) (*match.Settlement, error) {
	if m.Settled {
		e.met.Settlements.WithLabelValues("duplicate").Inc()
		return nil, nil
	}
	s, err := m.Settlement()
	if err != nil {
		return nil, err
	}
	claimed, err := tx.ClaimSettlement(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("claim settlement %s: %w", m.Code, err)
	}
	if !claimed {
		m.Settled = true
		e.met.Settlements.WithLabelValues("duplicate").Inc()
		return nil, nil
	}
	if err := tx.Credit(ctx, s.WinnerID, s.Payout, KindWin, m.ID); err != nil {
		return nil, fmt.Errorf("credit winner %s: %w", m.Code, err)
	}
	if err := tx.Annotate(ctx, s.LoserID, s.Stake.Neg(), KindLoss, m.ID); err != nil {
		return nil, fmt.Errorf("annotate loser %s: %w", m.Code, err)
	}
	if err := tx.RecordResult(ctx, s.WinnerID, true, s.Payout); err != nil {
		return nil, fmt.Errorf("winner stats %s: %w", m.Code, err)
	}
	if err := tx.RecordResult(ctx, s.LoserID, false, decimal.Zero); err != nil {
		return nil, fmt.Errorf("loser stats %s: %w", m.Code, err)
	}
	m.Settled = true
	return &s, nil
}

func (e *Engine) finished(ctx context.Context, m *match.Match, s *match.Settlement, typ string) {
	payload := events.GameFinishedPayload{
		WinnerSlot: uint8(m.WinnerSlot),
		WinnerID:   m.Winner(),
		LoserID:    m.Player(m.WinnerSlot.Opponent()),
	}
	if s != nil {
		e.met.Settlements.WithLabelValues("applied").Inc()
		e.met.PayoutTotal.Add(s.Payout.InexactFloat64())
		e.met.HouseCutTotal.Add(s.HouseCut.InexactFloat64())
		payload.Payout = s.Payout
		payload.HouseCut = s.HouseCut
	}
	e.publish(ctx, topics.Match(m.Code), typ, m.Code, payload)
}

// Get retorna a partida com as estatísticas dos jogadores sentados
func (e *Engine) Get(ctx context.Context, code string) (*View, error) {
	code = match.NormalizeCode(code)
	if code == "" {
		return nil, match.ErrInvalidRequest
	}
	m, err := e.store.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	ids := []string{m.Players[0]}
	if m.Players[1] != "" {
		ids = append(ids, m.Players[1])
	}
	stats, err := e.store.Stats(ctx, ids...)
	if err != nil {
		return nil, fmt.Errorf("stats %s: %w", code, err)
	}
	return &View{Match: m, Stats: stats}, nil
}

// ListOpen lista salas aguardando oponente, mais recentes primeiro
func (e *Engine) ListOpen(ctx context.Context, limit int) ([]events.RoomSummary, error) {
	ms, err := e.store.ListOpen(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]events.RoomSummary, 0, len(ms))
	for _, m := range ms {
		out = append(out, summary(m))
	}
	return out, nil
}

// ListUnsettled expõe ao reconciliador as partidas finalizadas sem liquidação
func (e *Engine) ListUnsettled(ctx context.Context, limit int) ([]string, error) {
	return e.store.ListUnsettled(ctx, limit)
}

func (e *Engine) Balance(ctx context.Context, userID string) (decimal.Decimal, error) {
	if userID == "" {
		return decimal.Zero, match.ErrInvalidRequest
	}
	return e.store.Balance(ctx, userID)
}

func (e *Engine) Transactions(ctx context.Context, userID string, limit, offset int) ([]Entry, error) {
	if userID == "" || limit <= 0 || offset < 0 {
		return nil, match.ErrInvalidRequest
	}
	return e.store.Transactions(ctx, userID, limit, offset)
}

// Publish envia um envelope pronto (ex: snapshot do lobby)
func (e *Engine) Publish(ctx context.Context, env events.Envelope) {
	if err := e.pub.Publish(ctx, env); err != nil {
		e.log.Warn("publish failed", zap.String("topic", env.Topic), zap.String("type", env.Type), zap.Error(err))
	}
}

// publish nunca falha a operação: o estado já foi commitado
func (e *Engine) publish(ctx context.Context, topic, typ, code string, payload any) {
	env, err := events.New(topic, typ, code, payload)
	if err != nil {
		e.log.Error("encode envelope", zap.String("type", typ), zap.Error(err))
		return
	}
	e.Publish(ctx, env)
}

func summary(m *match.Match) events.RoomSummary {
	return events.RoomSummary{
		Code:      m.Code,
		Player1ID: m.Players[0],
		Player2ID: m.Players[1],
		BetAmount: m.BetAmount,
		Status:    string(m.Status),
	}
}

func started(m *match.Match) events.GameStartedPayload {
	return events.GameStartedPayload{Player1ID: m.Players[0], Player2ID: m.Players[1], Turn: uint8(m.Turn)}
}
