package topics

const (
	// Kafka: eventos de ciclo de vida das partidas (auditoria)
	MatchEvents = "caro_match_events"

	// DLQ do worker de auditoria
	MatchEventsDLQ = "caro_match_events_dlq"

	// Redis Pub/Sub: fan-out do realtime entre instâncias
	RealtimeBroadcast = "caro_realtime_broadcast"

	// Canais lógicos do gateway
	Lobby       = "lobby"
	MatchPrefix = "match:"
)

// Match retorna o canal realtime de uma sala
func Match(code string) string { return MatchPrefix + code }
