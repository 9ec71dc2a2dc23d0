package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/caro-bet-platform/internal/caro-service/board"
	"github.com/radieske/caro-bet-platform/internal/caro-service/engine"
	"github.com/radieske/caro-bet-platform/internal/caro-service/match"
	"github.com/radieske/caro-bet-platform/pkg/contracts/events"
)

type ErrorResponse struct {
	Error   string `json:"error"` // código estável, ex: NOT_YOUR_TURN
	Message string `json:"message"`
}

type RoomResponse struct {
	ID         string                  `json:"id"`
	Code       string                  `json:"code"`
	Status     string                  `json:"status"`
	Player1ID  string                  `json:"player1Id"`
	Player2ID  string                  `json:"player2Id,omitempty"`
	BetAmount  decimal.Decimal         `json:"betAmount"`
	Board      []board.Stone           `json:"board"`
	Turn       uint8                   `json:"turn"`
	WinnerSlot uint8                   `json:"winnerSlot,omitempty"`
	WinnerID   string                  `json:"winnerId,omitempty"`
	Payout     *decimal.Decimal        `json:"payout,omitempty"` // só em partidas finalizadas
	HouseCut   *decimal.Decimal        `json:"houseCut,omitempty"`
	Ready      [2]bool                 `json:"ready"`
	MoveCount  int                     `json:"moveCount"`
	LastMove   *board.Point            `json:"lastMove,omitempty"`
	Settled    bool                    `json:"settled"`
	CreatedAt  time.Time               `json:"createdAt"`
	StartedAt  *time.Time              `json:"startedAt,omitempty"`
	FinishedAt *time.Time              `json:"finishedAt,omitempty"`
	Stats      map[string]engine.Stats `json:"stats,omitempty"`
}

func NewRoomResponse(m *match.Match, stats map[string]engine.Stats) RoomResponse {
	resp := RoomResponse{
		ID:         m.ID,
		Code:       m.Code,
		Status:     string(m.Status),
		Player1ID:  m.Players[0],
		Player2ID:  m.Players[1],
		BetAmount:  m.BetAmount,
		Board:      m.Board.Stones(),
		Turn:       uint8(m.Turn),
		WinnerSlot: uint8(m.WinnerSlot),
		WinnerID:   m.Winner(),
		Ready:      m.Ready,
		MoveCount:  m.MoveCount,
		LastMove:   m.LastMove,
		Settled:    m.Settled,
		CreatedAt:  m.CreatedAt,
		StartedAt:  m.StartedAt,
		FinishedAt: m.FinishedAt,
		Stats:      stats,
	}
	if st, err := m.Settlement(); err == nil {
		resp.Payout, resp.HouseCut = &st.Payout, &st.HouseCut
	}
	return resp
}

type RoomListResponse struct {
	Rooms []events.RoomSummary `json:"rooms"`
}

type SettleResponse struct {
	Code    string `json:"code"`
	Applied bool   `json:"applied"` // false quando já estava liquidada
}

type WalletResponse struct {
	UserID  string          `json:"userId"`
	Balance decimal.Decimal `json:"balance"`
}

type TransactionsResponse struct {
	Transactions []engine.Entry `json:"transactions"`
	Limit        int            `json:"limit"`
	Offset       int            `json:"offset"`
}
