// Package gateway é o proxy de borda: autentica o token do cliente e repassa ao caro-service
// com o header X-User-ID, que é a única identidade aceita pelo serviço.
package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	userHeader = "X-User-ID"
	authCookie = "auth-token" // cookie gravado pelo login
	TokenTTL   = 7 * 24 * time.Hour
)

// Claims é o payload do JWT emitido pelo login: {id, username, email, exp}.
// id pode vir como número ou string.
type Claims struct {
	UserID   any    `json:"id"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// User normaliza o claim id para string (vazio quando ausente ou de outro tipo)
func (c *Claims) User() string {
	switch v := c.UserID.(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

type Gateway struct {
	log     *zap.Logger
	proxy   *httputil.ReverseProxy
	secret  []byte
	parser  *jwt.Parser
	origins map[string]struct{}
	anyOrig bool

	requests *prometheus.CounterVec
	denied   prometheus.Counter
}

// New cria o gateway para o caro-service em target. secret é a chave HS256 dos JWTs;
// vazio aceita o token como o próprio userId (apenas local).
func New(log *zap.Logger, reg prometheus.Registerer, target, secret string, origins []string) (*Gateway, error) {
	u, err := url.Parse(target)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid upstream url %q", target)
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithJSONNumber(),
	)
	g := &Gateway{
		log:     log,
		proxy:   httputil.NewSingleHostReverseProxy(u),
		secret:  []byte(secret),
		parser:  parser,
		origins: make(map[string]struct{}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "caro_gateway_requests_total",
			Help: "requisições repassadas por rota e status",
		}, []string{"route", "status"}),
		denied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "caro_gateway_auth_failures_total",
			Help: "requisições recusadas por token ausente ou inválido",
		}),
	}
	reg.MustRegister(g.requests, g.denied)

	for _, o := range origins {
		if o == "*" {
			g.anyOrig = true
		}
		g.origins[o] = struct{}{}
	}
	g.proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		g.log.Warn("upstream failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusBadGateway, "UPSTREAM_UNAVAILABLE", "caro-service unavailable")
	}
	return g, nil
}

// Handler monta as rotas públicas; /internal do caro-service não é exposto
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()

	// api (ex.: /api/v1/caro/rooms -> caro-service /v1/caro/rooms)
	mux.Handle("/api/v1/", http.StripPrefix("/api", g.forward("api")))

	// realtime; o navegador não envia Authorization no handshake, então o token vem em ?token= ou no cookie
	mux.Handle("/ws", g.forward("ws"))

	return g.withCORS(mux)
}

func (g *Gateway) forward(route string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := g.identify(r)
		if !ok {
			g.denied.Inc()
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token")
			return
		}

		out := r.Clone(r.Context())
		out.Header.Del("Authorization")
		out.Header.Set(userHeader, userID) // sobrescreve qualquer valor enviado pelo cliente
		stripAuthCookie(out)
		q := out.URL.Query()
		q.Del("token")
		q.Del("userId")
		out.URL.RawQuery = q.Encode()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		g.proxy.ServeHTTP(rec, out)
		g.requests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
	})
}

// identify extrai o token (Authorization Bearer, ?token= ou cookie auth-token) e devolve o userId
func (g *Gateway) identify(r *http.Request) (string, bool) {
	raw := bearer(r)
	if raw == "" {
		return "", false
	}
	if len(g.secret) == 0 {
		return raw, true
	}
	claims := &Claims{}
	if _, err := g.parser.ParseWithClaims(raw, claims, g.key); err != nil {
		g.log.Debug("token rejected", zap.Error(err))
		return "", false
	}
	id := claims.User()
	return id, id != ""
}

func (g *Gateway) key(*jwt.Token) (any, error) { return g.secret, nil }

func bearer(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		if t := strings.TrimSpace(strings.TrimPrefix(h, "Bearer ")); t != "" {
			return t
		}
	}
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	if c, err := r.Cookie(authCookie); err == nil {
		return c.Value
	}
	return ""
}

// stripAuthCookie remove o cookie de sessão; o caro-service só conhece o X-User-ID
func stripAuthCookie(r *http.Request) {
	cookies := r.Cookies()
	r.Header.Del("Cookie")
	for _, c := range cookies {
		if c.Name != authCookie {
			r.AddCookie(c)
		}
	}
}

// Token emite um JWT HS256 no mesmo formato do login (usado em testes e ferramentas locais)
func Token(secret, userID string, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", errors.New("token: empty user id")
	}
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func (g *Gateway) withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" {
			if _, ok := g.origins[origin]; ok || g.anyOrig {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Add("Vary", "Origin")
			}
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.ServeHTTP(w, r)
	})
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code, "message": msg})
}

// statusRecorder guarda o status para a métrica; Unwrap expõe o Hijack para o upgrade do WebSocket
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }
