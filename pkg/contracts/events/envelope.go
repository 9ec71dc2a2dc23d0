package events

import (
	"encoding/json"
	"time"
)

// Envelope é o formato único dos eventos realtime (WS/Redis) e do tópico Kafka de partidas.
// Topic é o canal lógico ("lobby" ou "match:<CODE>").
type Envelope struct {
	Topic     string          `json:"topic"`
	Type      string          `json:"type"`
	MatchCode string          `json:"matchCode,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	TsUnixMs  int64           `json:"ts_unix_ms"`
}

// New monta um envelope serializando o payload
func New(topic, typ, code string, payload any) (Envelope, error) {
	env := Envelope{Topic: topic, Type: typ, MatchCode: code, TsUnixMs: time.Now().UnixMilli()}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, err
		}
		env.Payload = b
	}
	return env, nil
}

// Authoritative indica eventos emitidos pelo servidor após mudança de estado validada
func (e Envelope) Authoritative() bool {
	switch e.Type {
	case RoomCreated, RoomUpdated, PlayerReady, GameStarted, MoveMade, GameFinished, SettlementApplied:
		return true
	}
	return false
}
