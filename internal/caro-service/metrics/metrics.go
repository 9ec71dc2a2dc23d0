package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics agrupa os coletores do caro-service
type Metrics struct {
	MatchesCreated prometheus.Counter
	MatchesJoined  prometheus.Counter
	MovesAccepted  prometheus.Counter
	MovesRejected  *prometheus.CounterVec // por código de erro
	Settlements    *prometheus.CounterVec // applied | duplicate
	PayoutTotal    prometheus.Counter
	HouseCutTotal  prometheus.Counter
	OpenMatches    prometheus.Gauge
	WSConnections  prometheus.Gauge
	PublishErrors  *prometheus.CounterVec // por destino (realtime, kafka)
}

// New cria e registra os coletores. Testes passam um prometheus.NewRegistry() próprio.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		MatchesCreated: prometheus.NewCounter(prometheus.CounterOpts{Name: "caro_matches_created_total", Help: "salas criadas"}),
		MatchesJoined:  prometheus.NewCounter(prometheus.CounterOpts{Name: "caro_matches_joined_total", Help: "entradas do segundo jogador"}),
		MovesAccepted:  prometheus.NewCounter(prometheus.CounterOpts{Name: "caro_moves_accepted_total", Help: "jogadas aceitas"}),
		MovesRejected:  prometheus.NewCounterVec(prometheus.CounterOpts{Name: "caro_moves_rejected_total", Help: "jogadas rejeitadas por motivo"}, []string{"reason"}),
		Settlements:    prometheus.NewCounterVec(prometheus.CounterOpts{Name: "caro_settlements_total", Help: "liquidações por resultado"}, []string{"result"}),
		PayoutTotal:    prometheus.NewCounter(prometheus.CounterOpts{Name: "caro_payout_amount_total", Help: "soma paga aos vencedores"}),
		HouseCutTotal:  prometheus.NewCounter(prometheus.CounterOpts{Name: "caro_house_cut_amount_total", Help: "soma retida pela casa"}),
		OpenMatches:    prometheus.NewGauge(prometheus.GaugeOpts{Name: "caro_open_matches", Help: "salas aguardando oponente"}),
		WSConnections:  prometheus.NewGauge(prometheus.GaugeOpts{Name: "caro_ws_connections", Help: "conexões websocket ativas"}),
		PublishErrors:  prometheus.NewCounterVec(prometheus.CounterOpts{Name: "caro_publish_errors_total", Help: "falhas de publicação por destino"}, []string{"sink"}),
	}
	reg.MustRegister(
		m.MatchesCreated, m.MatchesJoined, m.MovesAccepted, m.MovesRejected,
		m.Settlements, m.PayoutTotal, m.HouseCutTotal, m.OpenMatches,
		m.WSConnections, m.PublishErrors,
	)
	return m
}
