package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/caro-bet-platform/internal/caro-service/match"
)

// Tipos de lançamento no ledger
const (
	KindStake = "game_stake" // débito da aposta (altera saldo)
	KindWin   = "game_win"   // crédito do prêmio (altera saldo)
	KindLoss  = "game_loss"  // anotação da perda; o saldo já saiu no game_stake

	LedgerSource = "caro"
)

// Entry é um lançamento do ledger de carteira
type Entry struct {
	ID        int64           `json:"id"`
	UserID    string          `json:"userId"`
	Amount    decimal.Decimal `json:"amount"`
	Kind      string          `json:"type"`
	Source    string          `json:"source"`
	Reference string          `json:"reference,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Stats são as estatísticas de Caro por usuário
type Stats struct {
	UserID        string          `json:"userId"`
	GamesPlayed   int             `json:"gamesPlayed"`
	GamesWon      int             `json:"gamesWon"`
	TotalEarnings decimal.Decimal `json:"totalEarnings"`
	Level         int             `json:"level"`
}

// Tx é a parte transacional da unidade de trabalho: tudo o que é feito aqui
// commita ou volta junto com a mutação da partida.
type Tx interface {
	// Debit retira o valor do saldo e grava o lançamento; ErrInsufficientFunds / ErrUserNotFound
	Debit(ctx context.Context, userID string, amount decimal.Decimal, kind, ref string) error
	Credit(ctx context.Context, userID string, amount decimal.Decimal, kind, ref string) error
	// Annotate grava só o lançamento, sem mexer no saldo
	Annotate(ctx context.Context, userID string, amount decimal.Decimal, kind, ref string) error
	RecordResult(ctx context.Context, userID string, won bool, earnings decimal.Decimal) error
	// ClaimSettlement retorna false se a partida já foi liquidada
	ClaimSettlement(ctx context.Context, s match.Settlement) (bool, error)
}

// Store persiste partidas, carteiras e estatísticas.
// Create e Mutate executam fn dentro de uma transação; erro em fn desfaz tudo.
type Store interface {
	Create(ctx context.Context, m *match.Match, fn func(ctx context.Context, tx Tx) error) error
	Mutate(ctx context.Context, code string, fn func(ctx context.Context, m *match.Match, tx Tx) error) (*match.Match, error)
	MutateByID(ctx context.Context, id string, fn func(ctx context.Context, m *match.Match, tx Tx) error) (*match.Match, error)

	Get(ctx context.Context, code string) (*match.Match, error)
	ListOpen(ctx context.Context, limit int) ([]*match.Match, error)
	ListUnsettled(ctx context.Context, limit int) ([]string, error)

	Stats(ctx context.Context, userIDs ...string) (map[string]Stats, error)
	Balance(ctx context.Context, userID string) (decimal.Decimal, error)
	Transactions(ctx context.Context, userID string, limit, offset int) ([]Entry, error)

	Ping(ctx context.Context) error
}
