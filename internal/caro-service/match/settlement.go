package match

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// WinnerShare é a fração do pote paga ao vencedor; o restante fica com a casa
var WinnerShare = decimal.RequireFromString("0.8")

// WinsPerLevel define o degrau de nível por vitórias acumuladas
const WinsPerLevel = 5

// Settlement descreve a liquidação de uma partida finalizada
type Settlement struct {
	MatchID  string          `json:"matchId"`
	Code     string          `json:"code"`
	WinnerID string          `json:"winnerId"`
	LoserID  string          `json:"loserId"`
	Stake    decimal.Decimal `json:"stake"`
	Pot      decimal.Decimal `json:"pot"`
	Payout   decimal.Decimal `json:"payout"`
	HouseCut decimal.Decimal `json:"houseCut"`
}

// Settlement calcula a divisão do pote. Payout + HouseCut == Pot sempre.
func (m *Match) Settlement() (Settlement, error) {
	if m.Status != StatusFinished || !m.WinnerSlot.Valid() {
		return Settlement{}, fmt.Errorf("settle %s: %w", m.Code, ErrMatchNotActive)
	}
	winner := m.Player(m.WinnerSlot)
	loser := m.Player(m.WinnerSlot.Opponent())
	if winner == "" || loser == "" {
		return Settlement{}, fmt.Errorf("settle %s: missing player", m.Code)
	}
	pot := m.Pot()
	payout := pot.Mul(WinnerShare)
	return Settlement{
		MatchID:  m.ID,
		Code:     m.Code,
		WinnerID: winner,
		LoserID:  loser,
		Stake:    m.BetAmount,
		Pot:      pot,
		Payout:   payout,
		HouseCut: pot.Sub(payout),
	}, nil
}

// Level é função monotônica das vitórias: floor(wins/5) + 1
func Level(wins int) int {
	if wins < 0 {
		wins = 0
	}
	return wins/WinsPerLevel + 1
}
