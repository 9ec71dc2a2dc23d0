package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/radieske/caro-bet-platform/internal/caro-service/board"
	"github.com/radieske/caro-bet-platform/internal/caro-service/match"
	"github.com/radieske/caro-bet-platform/internal/caro-service/metrics"
	"github.com/radieske/caro-bet-platform/pkg/contracts/events"
)

// Engine é o que o gateway precisa do motor: comandos de jogo passam pela mesma validação do HTTP
type Engine interface {
	Ready(ctx context.Context, userID, code string) (*match.Match, error)
	Move(ctx context.Context, userID, code string, p board.Point) (*match.Match, error)
}

// Publisher leva chat/digitação/presença para todas as instâncias (Redis) ou só para este hub
type Publisher interface {
	Publish(ctx context.Context, env events.Envelope) error
}

const (
	commandTimeout = 5 * time.Second
	maxChatLen     = 500
)

// Hub gerencia conexões WebSocket e assinaturas por tópico ("lobby", "match:<CODE>").
// Uma conexão por usuário: a nova substitui a anterior.
type Hub struct {
	upgrader websocket.Upgrader
	log      *zap.Logger
	met      *metrics.Metrics

	engine Engine
	relay  Publisher

	mu      sync.RWMutex
	clients map[string]*client              // userID -> conexão atual
	subs    map[string]map[*client]struct{} // tópico -> conexões inscritas
}

// NewHub cria o hub; sem Wire, chat e presença são entregues apenas localmente
func NewHub(log *zap.Logger, met *metrics.Metrics, allowOrigin func(r *http.Request) bool) *Hub {
	h := &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: allowOrigin},
		log:      log,
		met:      met,
		clients:  make(map[string]*client),
		subs:     make(map[string]map[*client]struct{}),
	}
	h.relay = h
	return h
}

// Wire liga o motor e o publicador de relay (criados depois do hub)
func (h *Hub) Wire(engine Engine, relay Publisher) {
	h.engine = engine
	if relay != nil {
		h.relay = relay
	}
}

// AllowOrigins monta o CheckOrigin a partir da lista configurada ("*" libera tudo)
func AllowOrigins(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// HandleWS autentica pelo header X-User-ID (ou ?userId=) e mantém a conexão
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		userID = r.URL.Query().Get("userId")
	}
	if userID == "" {
		http.Error(w, "missing user identity", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("ws upgrade failed", zap.Error(err))
		return
	}
	c := newClient(h, userID, conn)
	h.register(c)
	go c.writePump()
	c.readPump()
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	prev := h.clients[c.userID]
	h.clients[c.userID] = c
	h.mu.Unlock()

	if prev != nil {
		h.log.Info("ws session replaced", zap.String("user", c.userID))
		prev.sendEnvelope(events.SessionReplace, "", nil)
		h.dropSubscriptions(prev)
		prev.close()
	}
	h.met.WSConnections.Inc()
	h.presence(events.UserOnline, c.userID, nil)
}

// unregister roda quando a leitura termina; presença offline só se ainda for a conexão atual
func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	current := h.clients[c.userID] == c
	if current {
		delete(h.clients, c.userID)
	}
	h.mu.Unlock()

	rooms := h.dropSubscriptions(c)
	c.close()
	h.met.WSConnections.Dec()
	if current {
		h.presence(events.UserOffline, c.userID, rooms)
	}
}

// dropSubscriptions remove o cliente de todos os tópicos e retorna as salas em que estava
func (h *Hub) dropSubscriptions(c *client) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var rooms []string
	for topic := range c.topics {
		if set, ok := h.subs[topic]; ok {
			delete(set, c)
			if len(set) == 0 {
				delete(h.subs, topic)
			}
		}
		if topic != lobbyTopic {
			rooms = append(rooms, topic)
		}
	}
	c.topics = make(map[string]struct{})
	return rooms
}

func (h *Hub) subscribe(c *client, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[topic]; !ok {
		h.subs[topic] = make(map[*client]struct{})
	}
	h.subs[topic][c] = struct{}{}
	c.topics[topic] = struct{}{}
}

func (h *Hub) unsubscribe(c *client, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subs[topic]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subs, topic)
		}
	}
	delete(c.topics, topic)
}

func (h *Hub) subscribed(c *client, topic string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := c.topics[topic]
	return ok
}

// presence avisa o lobby e as salas informadas
func (h *Hub) presence(typ, userID string, rooms []string) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	for _, topic := range append([]string{lobbyTopic}, rooms...) {
		env, err := events.New(topic, typ, codeOf(topic), events.PresencePayload{UserID: userID})
		if err != nil {
			continue
		}
		if err := h.relay.Publish(ctx, env); err != nil {
			h.log.Warn("presence publish failed", zap.String("user", userID), zap.Error(err))
		}
	}
}

// Publish entrega localmente; é o destino realtime quando o Redis está desligado
func (h *Hub) Publish(_ context.Context, env events.Envelope) error {
	h.Broadcast(env)
	return nil
}

// Broadcast envia o envelope para todos os clientes inscritos no tópico
func (h *Hub) Broadcast(env events.Envelope) {
	h.mu.RLock()
	set := h.subs[env.Topic]
	targets := make([]*client, 0, len(set))
	for c := range set {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	if len(targets) == 0 {
		return
	}

	b, err := json.Marshal(env)
	if err != nil {
		h.log.Error("ws broadcast encode", zap.Error(err))
		return
	}
	for _, c := range targets {
		c.enqueue(b)
	}
}

// Online informa se o usuário tem conexão ativa neste hub
func (h *Hub) Online(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[userID]
	return ok
}
