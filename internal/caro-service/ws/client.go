package ws

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/radieske/caro-bet-platform/internal/caro-service/board"
	"github.com/radieske/caro-bet-platform/internal/caro-service/match"
	"github.com/radieske/caro-bet-platform/pkg/contracts/events"
	"github.com/radieske/caro-bet-platform/pkg/contracts/topics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 64
)

const lobbyTopic = topics.Lobby

// codeOf extrai o código de sala de "match:<CODE>" (vazio para o lobby)
func codeOf(topic string) string {
	if !strings.HasPrefix(topic, topics.MatchPrefix) {
		return ""
	}
	return strings.TrimPrefix(topic, topics.MatchPrefix)
}

type client struct {
	hub    *Hub
	userID string
	conn   *websocket.Conn

	mu     sync.Mutex
	send   chan []byte
	closed bool

	topics map[string]struct{} // protegido por hub.mu
}

func newClient(h *Hub, userID string, conn *websocket.Conn) *client {
	return &client{
		hub:    h,
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		topics: make(map[string]struct{}),
	}
}

// enqueue nunca bloqueia: cliente lento perde mensagens
func (c *client) enqueue(b []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- b:
	default:
		c.hub.log.Debug("ws send buffer full, dropping", zap.String("user", c.userID))
	}
}

// close encerra o canal de envio; o writePump fecha a conexão
func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *client) sendEnvelope(typ, code string, payload any) {
	env, err := events.New("", typ, code, payload)
	if err != nil {
		return
	}
	b, _ := json.Marshal(env)
	c.enqueue(b)
}

func (c *client) sendError(code string, err error) {
	c.sendEnvelope(events.Error, code, events.ErrorPayload{Code: match.Code(err), Message: err.Error()})
}

func (c *client) readPump() {
	defer c.hub.unregister(c)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Debug("ws read error", zap.String("user", c.userID), zap.Error(err))
			}
			return
		}
		var msg ClientMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendError("", match.ErrInvalidRequest)
			continue
		}
		c.handle(msg)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) handle(msg ClientMsg) {
	code := match.NormalizeCode(msg.Code)
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	switch msg.Type {
	case CmdJoinLobby:
		c.hub.subscribe(c, lobbyTopic)
	case CmdLeaveLobby:
		c.hub.unsubscribe(c, lobbyTopic)
	case CmdJoinRoom:
		if code == "" {
			c.sendError("", match.ErrInvalidRequest)
			return
		}
		c.hub.subscribe(c, topics.Match(code))
	case CmdLeaveRoom:
		c.hub.unsubscribe(c, topics.Match(code))
	case CmdReady:
		if c.hub.engine == nil {
			return
		}
		if _, err := c.hub.engine.Ready(ctx, c.userID, code); err != nil {
			c.sendError(code, err)
		}
	case CmdMove:
		if c.hub.engine == nil {
			return
		}
		if msg.X == nil || msg.Y == nil {
			c.sendError(code, match.ErrInvalidRequest)
			return
		}
		p := board.Point{X: *msg.X, Y: *msg.Y}
		if !p.InRange() {
			c.sendError(code, match.ErrInvalidRequest)
			return
		}
		if _, err := c.hub.engine.Move(ctx, c.userID, code, p); err != nil {
			c.sendError(code, err)
		}
	case CmdChat, CmdTyping:
		c.relay(ctx, msg.Type, code, msg.Message)
	case CmdPing:
		c.sendEnvelope(events.Pong, "", nil)
	default:
		c.sendError(code, match.ErrInvalidRequest)
	}
}

// relay repassa chat/digitação apenas para quem já está no canal da sala
func (c *client) relay(ctx context.Context, typ, code, message string) {
	topic := topics.Match(code)
	if code == "" || !c.hub.subscribed(c, topic) {
		c.sendError(code, match.ErrNotInMatch)
		return
	}
	message = strings.TrimSpace(message)
	if typ == CmdChat && (message == "" || len([]rune(message)) > maxChatLen) {
		c.sendError(code, match.ErrInvalidRequest)
		return
	}

	evType := events.Chat
	if typ == CmdTyping {
		evType = events.Typing
		message = ""
	}
	env, err := events.New(topic, evType, code, events.ChatPayload{UserID: c.userID, Message: message})
	if err != nil {
		return
	}
	if err := c.hub.relay.Publish(ctx, env); err != nil {
		c.hub.log.Warn("relay publish failed", zap.String("code", code), zap.Error(err))
	}
}
