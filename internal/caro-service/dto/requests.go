package dto

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/radieske/caro-bet-platform/internal/caro-service/board"
	"github.com/radieske/caro-bet-platform/internal/caro-service/match"
)

type CreateRoomRequest struct {
	BetAmount decimal.Decimal `json:"betAmount"` // aceita 10, 10.5 ou "10.50"
}

func (r CreateRoomRequest) Validate() error { return match.ValidateBet(r.BetAmount) }

type JoinRoomRequest struct {
	Code string `json:"code"`
}

func (r JoinRoomRequest) Validate() error {
	if strings.TrimSpace(r.Code) == "" {
		return match.ErrInvalidRequest
	}
	return nil
}

// MoveRequest usa ponteiros para distinguir coordenada ausente de zero.
// Coordenadas fora da faixa de int32 são rejeitadas.
type MoveRequest struct {
	Code string `json:"code"`
	X    *int   `json:"x"`
	Y    *int   `json:"y"`
}

func (r MoveRequest) Validate() error {
	if strings.TrimSpace(r.Code) == "" || r.X == nil || r.Y == nil {
		return match.ErrInvalidRequest
	}
	if !r.Point().InRange() {
		return match.ErrInvalidRequest
	}
	return nil
}

// Point só deve ser chamado depois de Validate
func (r MoveRequest) Point() board.Point { return board.Point{X: *r.X, Y: *r.Y} }
