// Package match - errors.go
// Erros comparáveis usados pelo motor de partidas (errors.Is funciona com as constantes).
package match

import (
	"errors"

	"github.com/radieske/caro-bet-platform/internal/caro-service/board"
)

type Error string

func (e Error) Error() string { return string(e) }

var (
	// validação
	ErrInvalidAmount  = Error("invalid bet amount")
	ErrInvalidRequest = Error("invalid request")

	// conflito de estado
	ErrRoomFull         = Error("room is full")
	ErrSelfJoin         = Error("already seated in this room")
	ErrRoomNotJoinable  = Error("room is not joinable")
	ErrNotInMatch       = Error("not in this match")
	ErrNotYourTurn      = Error("not your turn")
	ErrMatchNotActive   = Error("match is not active")
	ErrNotAwaitingReady = Error("match is not waiting for ready check")
	ErrCellOccupied     = board.ErrCellOccupied

	// recursos
	ErrInsufficientFunds = Error("insufficient funds")
	ErrMatchNotFound     = Error("match not found")
	ErrUserNotFound      = Error("user not found")

	// concorrência/armazenamento
	ErrCodeTaken      = Error("room code already in use")
	ErrVersionChanged = Error("match changed concurrently")
)

// Code traduz o erro para o código estável exposto em HTTP/WS ("INTERNAL" quando desconhecido)
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidAmount):
		return "INVALID_AMOUNT"
	case errors.Is(err, ErrInvalidRequest):
		return "INVALID_REQUEST"
	case errors.Is(err, ErrRoomFull):
		return "ROOM_FULL"
	case errors.Is(err, ErrSelfJoin):
		return "SELF_JOIN"
	case errors.Is(err, ErrRoomNotJoinable):
		return "ROOM_NOT_JOINABLE"
	case errors.Is(err, ErrNotInMatch):
		return "NOT_IN_MATCH"
	case errors.Is(err, ErrNotYourTurn):
		return "NOT_YOUR_TURN"
	case errors.Is(err, ErrMatchNotActive):
		return "MATCH_NOT_ACTIVE"
	case errors.Is(err, ErrNotAwaitingReady):
		return "NOT_AWAITING_READY"
	case errors.Is(err, ErrCellOccupied):
		return "CELL_OCCUPIED"
	case errors.Is(err, ErrInsufficientFunds):
		return "INSUFFICIENT_FUNDS"
	case errors.Is(err, ErrMatchNotFound):
		return "MATCH_NOT_FOUND"
	case errors.Is(err, ErrUserNotFound):
		return "USER_NOT_FOUND"
	default:
		return "INTERNAL"
	}
}
