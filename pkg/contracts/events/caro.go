package events

import "github.com/shopspring/decimal"

// Tipos de evento emitidos pelo servidor
const (
	RoomCreated       = "room-created"
	RoomUpdated       = "room-updated"
	PlayerReady       = "player-ready"
	GameStarted       = "game-started"
	MoveMade          = "move-made"
	GameFinished      = "game-finished"
	SettlementApplied = "settlement-applied"
	LobbySnapshot     = "lobby-snapshot"
)

// Tipos repassados sem validação de jogo (apenas pertencimento ao canal)
const (
	Chat           = "chat"
	Typing         = "typing"
	UserOnline     = "user-online"
	UserOffline    = "user-offline"
	SessionReplace = "session-replaced"
	Error          = "error"
	Pong           = "pong"
)

// RoomSummary é o resumo de sala usado no lobby
type RoomSummary struct {
	Code      string          `json:"code"`
	Player1ID string          `json:"player1Id"`
	Player2ID string          `json:"player2Id,omitempty"`
	BetAmount decimal.Decimal `json:"betAmount"`
	Status    string          `json:"status"`
}

// LobbySnapshotPayload é a lista completa enviada periodicamente ao lobby
type LobbySnapshotPayload struct {
	Rooms []RoomSummary `json:"rooms"`
}

type PlayerReadyPayload struct {
	UserID string `json:"userId"`
	Slot   uint8  `json:"slot"`
}

type GameStartedPayload struct {
	Player1ID string `json:"player1Id"`
	Player2ID string `json:"player2Id"`
	Turn      uint8  `json:"turn"`
}

type MovePayload struct {
	X         int    `json:"x"`
	Y         int    `json:"y"`
	Slot      uint8  `json:"slot"`
	UserID    string `json:"userId"`
	NextTurn  uint8  `json:"nextTurn"`
	MoveCount int    `json:"moveCount"`
}

type GameFinishedPayload struct {
	WinnerSlot uint8           `json:"winnerSlot"`
	WinnerID   string          `json:"winnerId"`
	LoserID    string          `json:"loserId"`
	Payout     decimal.Decimal `json:"payout"`
	HouseCut   decimal.Decimal `json:"houseCut"`
}

type ChatPayload struct {
	UserID  string `json:"userId"`
	Message string `json:"message"`
}

type PresencePayload struct {
	UserID string `json:"userId"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
