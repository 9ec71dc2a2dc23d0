package match

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/caro-bet-platform/internal/caro-service/board"
)

// Status do ciclo de vida da sala; transições só andam para frente
type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusReadyCheck Status = "ready_check"
	StatusPlaying    Status = "playing"
	StatusFinished   Status = "finished"
)

func (s Status) Active() bool { return s != StatusFinished }

// CodeLength e alfabeto dos códigos de sala (ex: "K3Z9QA")
const (
	CodeLength   = 6
	codeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// Match é a raiz do agregado da partida. Só o Store persiste; os métodos abaixo
// são puros e nunca mutam estado quando retornam erro.
type Match struct {
	ID         string          `json:"id"`
	Code       string          `json:"code"`
	Players    [2]string       `json:"players"` // slot1, slot2 ("" enquanto vazio)
	BetAmount  decimal.Decimal `json:"betAmount"`
	Status     Status          `json:"status"`
	Board      *board.Board    `json:"board"`
	Turn       board.Slot      `json:"turn"`
	WinnerSlot board.Slot      `json:"winnerSlot"`
	Ready      [2]bool         `json:"ready"`
	MoveCount  int             `json:"moveCount"`
	LastMove   *board.Point    `json:"lastMove,omitempty"`
	Version    int64           `json:"version"`
	Settled    bool            `json:"settled"`
	CreatedAt  time.Time       `json:"createdAt"`
	StartedAt  *time.Time      `json:"startedAt,omitempty"`
	FinishedAt *time.Time      `json:"finishedAt,omitempty"`
}

// ValidateBet exige valor positivo com no máximo 2 casas decimais; o payout (1.6x) cabe em NUMERIC(20,4)
func ValidateBet(bet decimal.Decimal) error {
	if !bet.IsPositive() {
		return ErrInvalidAmount
	}
	if bet.Exponent() < -2 && !bet.Equal(bet.Round(2)) {
		return ErrInvalidAmount
	}
	return nil
}

// New cria a partida em Waiting com o jogador 1 sentado; o débito da aposta é feito
// pelo engine na mesma transação.
func New(id, code, player1 string, bet decimal.Decimal, now time.Time) (*Match, error) {
	if player1 == "" {
		return nil, ErrInvalidRequest
	}
	if err := ValidateBet(bet); err != nil {
		return nil, err
	}
	return &Match{
		ID:        id,
		Code:      code,
		Players:   [2]string{player1, ""},
		BetAmount: bet,
		Status:    StatusWaiting,
		Board:     board.New(),
		Turn:      board.Slot1,
		CreatedAt: now,
	}, nil
}

// NewCode gera um código de sala curto e legível, uniforme sobre o alfabeto
func NewCode() (string, error) { return newCode(rand.Reader) }

func newCode(src io.Reader) (string, error) {
	n := big.NewInt(int64(len(codeAlphabet)))
	var sb strings.Builder
	for i := 0; i < CodeLength; i++ {
		idx, err := rand.Int(src, n)
		if err != nil {
			return "", fmt.Errorf("room code: %w", err)
		}
		sb.WriteByte(codeAlphabet[idx.Int64()])
	}
	return sb.String(), nil
}

// NormalizeCode aceita códigos digitados em minúsculas ou com espaços
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// SlotOf retorna o slot ocupado pelo usuário (None se não estiver sentado)
func (m *Match) SlotOf(userID string) board.Slot {
	switch {
	case userID == "":
		return board.None
	case m.Players[0] == userID:
		return board.Slot1
	case m.Players[1] == userID:
		return board.Slot2
	default:
		return board.None
	}
}

// Player retorna o userId do slot
func (m *Match) Player(s board.Slot) string {
	if !s.Valid() {
		return ""
	}
	return m.Players[s-1]
}

// Pot é a soma das duas apostas
func (m *Match) Pot() decimal.Decimal { return m.BetAmount.Mul(decimal.NewFromInt(2)) }

// Winner retorna o userId vencedor (vazio enquanto não houver)
func (m *Match) Winner() string { return m.Player(m.WinnerSlot) }

// CheckJoin valida a entrada do segundo jogador sem mutar nada
func (m *Match) CheckJoin(userID string) error {
	if m.Status != StatusWaiting {
		return ErrRoomNotJoinable
	}
	if userID == "" {
		return ErrInvalidRequest
	}
	if m.Players[0] == userID {
		return ErrSelfJoin
	}
	if m.Players[1] != "" {
		return ErrRoomFull
	}
	return nil
}

// Seat senta o jogador 2. Com readyCheck a sala passa por ReadyCheck; sem, começa direto.
func (m *Match) Seat(userID string, readyCheck bool, now time.Time) error {
	if err := m.CheckJoin(userID); err != nil {
		return err
	}
	m.Players[1] = userID
	if readyCheck {
		m.Status = StatusReadyCheck
		return nil
	}
	m.start(now)
	return nil
}

// MarkReady registra o sinal de pronto; com os dois prontos a partida começa.
// Retorna started=true apenas na chamada que dispara o início.
func (m *Match) MarkReady(userID string, now time.Time) (started bool, err error) {
	slot := m.SlotOf(userID)
	if slot == board.None {
		return false, ErrNotInMatch
	}
	if m.Status != StatusReadyCheck {
		return false, ErrNotAwaitingReady
	}
	m.Ready[slot-1] = true
	if m.Ready[0] && m.Ready[1] {
		m.start(now)
		return true, nil
	}
	return false, nil
}

func (m *Match) start(now time.Time) {
	t := now
	m.Status = StatusPlaying
	m.Turn = board.Slot1
	m.StartedAt = &t
}

// Play valida e aplica uma jogada. Ordem das checagens: status, assento, vez, limites, célula.
// Em caso de vitória a partida vai para Finished com o slot do jogador como vencedor.
func (m *Match) Play(userID string, p board.Point, now time.Time) (won bool, err error) {
	if m.Status != StatusPlaying {
		return false, ErrMatchNotActive
	}
	slot := m.SlotOf(userID)
	if slot == board.None {
		return false, ErrNotInMatch
	}
	if slot != m.Turn {
		return false, ErrNotYourTurn
	}
	if !p.InRange() {
		return false, ErrInvalidRequest
	}
	if err := m.Board.Place(p, slot); err != nil {
		return false, err
	}

	last := p
	m.LastMove = &last
	m.MoveCount++
	m.Turn = slot.Opponent()

	if m.Board.CheckWin(p, slot) {
		t := now
		m.Status = StatusFinished
		m.WinnerSlot = slot
		m.FinishedAt = &t
		return true, nil
	}
	return false, nil
}

// Clone cria cópia profunda para as unidades de trabalho
func (m *Match) Clone() *Match {
	c := *m
	if m.Board != nil {
		c.Board = m.Board.Clone()
	}
	if m.LastMove != nil {
		p := *m.LastMove
		c.LastMove = &p
	}
	if m.StartedAt != nil {
		t := *m.StartedAt
		c.StartedAt = &t
	}
	if m.FinishedAt != nil {
		t := *m.FinishedAt
		c.FinishedAt = &t
	}
	return &c
}
