package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/radieske/caro-bet-platform/internal/caro-service/cache"
	"github.com/radieske/caro-bet-platform/internal/caro-service/dto"
	"github.com/radieske/caro-bet-platform/internal/caro-service/engine"
	"github.com/radieske/caro-bet-platform/internal/caro-service/match"
	"github.com/radieske/caro-bet-platform/pkg/contracts/events"
)

const (
	defaultTxLimit = 20
	maxTxLimit     = 100
	maxBodyBytes   = 1 << 16
)

type ctxKey struct{}

// Server expõe a API REST das salas e da carteira; /ws é delegado ao hub
type Server struct {
	log       *zap.Logger
	eng       *engine.Engine
	lobby     *cache.LobbyCache
	ws        http.Handler
	openLimit int
}

func NewServer(log *zap.Logger, eng *engine.Engine, lobby *cache.LobbyCache, ws http.Handler, openLimit int) *Server {
	if openLimit <= 0 {
		openLimit = 20
	}
	return &Server{log: log, eng: eng, lobby: lobby, ws: ws, openLimit: openLimit}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Group(func(r chi.Router) {
		r.Use(requireUser)
		r.Post("/v1/caro/rooms", s.createRoom)           // abre sala e debita aposta
		r.Get("/v1/caro/rooms", s.listRooms)             // salas aguardando oponente
		r.Get("/v1/caro/rooms/{code}", s.getRoom)        // estado + estatísticas
		r.Post("/v1/caro/rooms/{code}/ready", s.ready)   // confirmação de prontidão
		r.Post("/v1/caro/join", s.joinRoom)              // entra pelo código
		r.Post("/v1/caro/moves", s.move)                 // jogada
		r.Get("/v1/wallet", s.balance)                   // saldo do usuário
		r.Get("/v1/wallet/transactions", s.transactions) // extrato paginado
	})

	// rota interna de reprocessamento (sem identidade de usuário)
	r.Post("/internal/caro/rooms/{code}/settle", s.settle)

	if s.ws != nil {
		r.Get("/ws", s.ws.ServeHTTP)
	}
	return r
}

// requireUser exige o header X-User-ID injetado pelo gateway de autenticação
func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-User-ID")
		if id == "" {
			writeJSON(w, http.StatusUnauthorized, dto.ErrorResponse{Error: "UNAUTHORIZED", Message: "missing X-User-ID"})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

func userID(r *http.Request) string {
	id, _ := r.Context().Value(ctxKey{}).(string)
	return id
}

// writeJSON serializa a resposta em JSON e define o status HTTP
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decode rejeita campos desconhecidos, corpo vazio e dados após o objeto
func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return match.ErrInvalidRequest
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return match.ErrInvalidRequest
	}
	return nil
}

// statusOf mapeia o código estável do erro para o status HTTP
func statusOf(code string) int {
	switch code {
	case "INVALID_AMOUNT", "INVALID_REQUEST":
		return http.StatusBadRequest
	case "NOT_IN_MATCH":
		return http.StatusForbidden
	case "MATCH_NOT_FOUND", "USER_NOT_FOUND":
		return http.StatusNotFound
	case "INTERNAL":
		return http.StatusInternalServerError
	default:
		return http.StatusConflict
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := match.Code(err)
	status := statusOf(code)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
		msg = "internal error"
	}
	writeJSON(w, status, dto.ErrorResponse{Error: code, Message: msg})
}

// invalidateLobby descarta a lista em cache; falha só gera log
func (s *Server) invalidateLobby(ctx context.Context) {
	if err := s.lobby.Invalidate(ctx); err != nil {
		s.log.Warn("lobby cache invalidate failed", zap.Error(err))
	}
}

func (s *Server) createRoom(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateRoomRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		s.writeError(w, r, err)
		return
	}
	m, err := s.eng.Create(r.Context(), userID(r), req.BetAmount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.invalidateLobby(r.Context())
	writeJSON(w, http.StatusCreated, dto.NewRoomResponse(m, nil))
}

func (s *Server) joinRoom(w http.ResponseWriter, r *http.Request) {
	var req dto.JoinRoomRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		s.writeError(w, r, err)
		return
	}
	m, err := s.eng.Join(r.Context(), userID(r), req.Code)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.invalidateLobby(r.Context())
	writeJSON(w, http.StatusOK, dto.NewRoomResponse(m, nil))
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	m, err := s.eng.Ready(r.Context(), userID(r), chi.URLParam(r, "code"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewRoomResponse(m, nil))
}

func (s *Server) move(w http.ResponseWriter, r *http.Request) {
	var req dto.MoveRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		s.writeError(w, r, err)
		return
	}
	m, err := s.eng.Move(r.Context(), userID(r), req.Code, req.Point())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewRoomResponse(m, nil))
}

func (s *Server) getRoom(w http.ResponseWriter, r *http.Request) {
	v, err := s.eng.Get(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewRoomResponse(v.Match, v.Stats))
}

// listRooms lê do cache quando possível; o cache expira em poucos segundos
func (s *Server) listRooms(w http.ResponseWriter, r *http.Request) {
	var cached []events.RoomSummary
	if ok, err := s.lobby.GetOpen(r.Context(), &cached); err != nil {
		s.log.Warn("lobby cache read failed", zap.Error(err))
	} else if ok {
		writeJSON(w, http.StatusOK, dto.RoomListResponse{Rooms: cached})
		return
	}

	rooms, err := s.eng.ListOpen(r.Context(), s.openLimit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.lobby.SetOpen(r.Context(), rooms); err != nil {
		s.log.Warn("lobby cache write failed", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, dto.RoomListResponse{Rooms: rooms})
}

func (s *Server) balance(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	bal, err := s.eng.Balance(r.Context(), uid)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.WalletResponse{UserID: uid, Balance: bal})
}

func (s *Server) transactions(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultTxLimit)
	if err != nil || limit > maxTxLimit {
		s.writeError(w, r, match.ErrInvalidRequest)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		s.writeError(w, r, match.ErrInvalidRequest)
		return
	}
	entries, err := s.eng.Transactions(r.Context(), userID(r), limit, offset)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []engine.Entry{}
	}
	writeJSON(w, http.StatusOK, dto.TransactionsResponse{Transactions: entries, Limit: limit, Offset: offset})
}

func (s *Server) settle(w http.ResponseWriter, r *http.Request) {
	code := match.NormalizeCode(chi.URLParam(r, "code"))
	applied, err := s.eng.Settle(r.Context(), code)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.SettleResponse{Code: code, Applied: applied})
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, errors.New("negative " + key)
	}
	return v, nil
}
