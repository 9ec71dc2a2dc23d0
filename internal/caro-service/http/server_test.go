package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/caro-bet-platform/internal/caro-service/dto"
	"github.com/radieske/caro-bet-platform/internal/caro-service/engine"
	"github.com/radieske/caro-bet-platform/internal/caro-service/metrics"
	"github.com/radieske/caro-bet-platform/internal/caro-service/repo"
	"github.com/radieske/caro-bet-platform/pkg/contracts/events"
)

type discard struct{}

func (discard) Publish(context.Context, events.Envelope) error { return nil }

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store := repo.NewMemory(decimal.RequireFromString("500"))
	eng := engine.New(store, discard{}, zap.NewNop(), metrics.New(prometheus.NewRegistry()), engine.Config{})
	srv := httptest.NewServer(NewServer(zap.NewNop(), eng, nil, nil, 10).Router())
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, user, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, bytes.NewBufferString(body))
	require.NoError(t, err)
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func expectError(t *testing.T, resp *http.Response, status int, code string) {
	t.Helper()
	require.Equal(t, status, resp.StatusCode)
	assert.Equal(t, code, decodeBody[dto.ErrorResponse](t, resp).Error)
}

func createRoom(t *testing.T, srv *httptest.Server, user, bet string) dto.RoomResponse {
	t.Helper()
	resp := do(t, srv, http.MethodPost, "/v1/caro/rooms", user, `{"betAmount":"`+bet+`"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decodeBody[dto.RoomResponse](t, resp)
}

func move(t *testing.T, srv *httptest.Server, user, code string, x, y int) *http.Response {
	t.Helper()
	body, _ := json.Marshal(map[string]any{"code": code, "x": x, "y": y})
	return do(t, srv, http.MethodPost, "/v1/caro/moves", user, string(body))
}

func TestRequiresUser(t *testing.T) {
	srv := newTestServer(t)
	expectError(t, do(t, srv, http.MethodGet, "/v1/wallet", "", ""), http.StatusUnauthorized, "UNAUTHORIZED")
}

func TestFullMatchOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	room := createRoom(t, srv, "alice", "100")
	assert.Equal(t, "waiting", room.Status)
	assert.Len(t, room.Code, 6)

	resp := do(t, srv, http.MethodPost, "/v1/caro/join", "bob", `{"code":"`+room.Code+`"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	joined := decodeBody[dto.RoomResponse](t, resp)
	assert.Equal(t, "playing", joined.Status)
	assert.Nil(t, joined.Payout)
	assert.Equal(t, "bob", joined.Player2ID)

	for i := 0; i < 4; i++ {
		require.Equal(t, http.StatusOK, move(t, srv, "alice", room.Code, i, 0).StatusCode)
		require.Equal(t, http.StatusOK, move(t, srv, "bob", room.Code, i, 1).StatusCode)
	}
	resp = move(t, srv, "alice", room.Code, 4, 0)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	final := decodeBody[dto.RoomResponse](t, resp)
	assert.Equal(t, "finished", final.Status)
	assert.Equal(t, "alice", final.WinnerID)
	assert.True(t, final.Settled)
	assert.Equal(t, 9, final.MoveCount)
	require.NotNil(t, final.Payout)
	require.NotNil(t, final.HouseCut)
	assert.True(t, decimal.RequireFromString("160").Equal(*final.Payout), final.Payout.String())
	assert.True(t, decimal.RequireFromString("40").Equal(*final.HouseCut), final.HouseCut.String())

	for user, want := range map[string]string{"alice": "560", "bob": "400"} {
		resp = do(t, srv, http.MethodGet, "/v1/wallet", user, "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		w := decodeBody[dto.WalletResponse](t, resp)
		assert.True(t, decimal.RequireFromString(want).Equal(w.Balance), "%s: %s", user, w.Balance)
	}

	resp = do(t, srv, http.MethodGet, "/v1/caro/rooms/"+room.Code, "bob", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	view := decodeBody[dto.RoomResponse](t, resp)
	assert.Len(t, view.Board, 9)
	assert.Equal(t, 1, view.Stats["alice"].GamesWon)
	assert.Equal(t, 1, view.Stats["bob"].GamesPlayed)

	// já liquidada durante a jogada vencedora
	resp = do(t, srv, http.MethodPost, "/internal/caro/rooms/"+room.Code+"/settle", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, decodeBody[dto.SettleResponse](t, resp).Applied)
}

func TestErrorMapping(t *testing.T) {
	srv := newTestServer(t)
	room := createRoom(t, srv, "alice", "10")

	expectError(t, do(t, srv, http.MethodPost, "/v1/caro/rooms", "alice", `{"betAmount":0}`), http.StatusBadRequest, "INVALID_AMOUNT")
	expectError(t, do(t, srv, http.MethodPost, "/v1/caro/rooms", "alice", `{"betAmount":1,"odd":2}`), http.StatusBadRequest, "INVALID_REQUEST")
	expectError(t, do(t, srv, http.MethodPost, "/v1/caro/rooms", "alice", `{"betAmount":1}garbage`), http.StatusBadRequest, "INVALID_REQUEST")
	expectError(t, do(t, srv, http.MethodPost, "/v1/caro/rooms", "alice", `{"betAmount":"9999"}`), http.StatusConflict, "INSUFFICIENT_FUNDS")
	expectError(t, do(t, srv, http.MethodPost, "/v1/caro/join", "bob", `{"code":"ZZZZZZ"}`), http.StatusNotFound, "MATCH_NOT_FOUND")
	expectError(t, do(t, srv, http.MethodPost, "/v1/caro/join", "alice", `{"code":"`+room.Code+`"}`), http.StatusConflict, "SELF_JOIN")
	expectError(t, move(t, srv, "alice", room.Code, 0, 0), http.StatusConflict, "MATCH_NOT_ACTIVE")
	expectError(t, do(t, srv, http.MethodPost, "/v1/caro/moves", "alice", `{"code":"`+room.Code+`","x":1}`), http.StatusBadRequest, "INVALID_REQUEST")
	expectError(t, do(t, srv, http.MethodPost, "/v1/caro/moves", "alice", `{"code":"`+room.Code+`","x":2147483648,"y":0}`), http.StatusBadRequest, "INVALID_REQUEST")
	expectError(t, do(t, srv, http.MethodPost, "/v1/caro/join", "bob", `{"code":"`+room.Code+`"} {"code":"X"}`), http.StatusBadRequest, "INVALID_REQUEST")
	expectError(t, do(t, srv, http.MethodPost, "/internal/caro/rooms/"+room.Code+"/settle", "", ""), http.StatusConflict, "MATCH_NOT_ACTIVE")

	require.Equal(t, http.StatusOK, do(t, srv, http.MethodPost, "/v1/caro/join", "bob", `{"code":"`+room.Code+`"}`).StatusCode)
	expectError(t, move(t, srv, "bob", room.Code, 0, 0), http.StatusConflict, "NOT_YOUR_TURN")
	expectError(t, move(t, srv, "carol", room.Code, 0, 0), http.StatusForbidden, "NOT_IN_MATCH")
	expectError(t, do(t, srv, http.MethodPost, "/v1/caro/join", "carol", `{"code":"`+room.Code+`"}`), http.StatusConflict, "ROOM_NOT_JOINABLE")
}

func TestListRooms(t *testing.T) {
	srv := newTestServer(t)
	first := createRoom(t, srv, "alice", "10")
	second := createRoom(t, srv, "bob", "20")

	resp := do(t, srv, http.MethodGet, "/v1/caro/rooms", "carol", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decodeBody[dto.RoomListResponse](t, resp)
	require.Len(t, list.Rooms, 2)
	assert.ElementsMatch(t, []string{first.Code, second.Code}, []string{list.Rooms[0].Code, list.Rooms[1].Code})

	// sala cheia sai do lobby
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodPost, "/v1/caro/join", "carol", `{"code":"`+first.Code+`"}`).StatusCode)
	list = decodeBody[dto.RoomListResponse](t, do(t, srv, http.MethodGet, "/v1/caro/rooms", "carol", ""))
	require.Len(t, list.Rooms, 1)
	assert.Equal(t, second.Code, list.Rooms[0].Code)
}

func TestTransactionsPaging(t *testing.T) {
	srv := newTestServer(t)
	createRoom(t, srv, "alice", "10")
	createRoom(t, srv, "alice", "15")

	resp := do(t, srv, http.MethodGet, "/v1/wallet/transactions?limit=1", "alice", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page := decodeBody[dto.TransactionsResponse](t, resp)
	require.Len(t, page.Transactions, 1)
	assert.Equal(t, engine.KindStake, page.Transactions[0].Kind)
	assert.True(t, decimal.RequireFromString("-15").Equal(page.Transactions[0].Amount))

	resp = do(t, srv, http.MethodGet, "/v1/wallet/transactions?limit=1&offset=1", "alice", "")
	page = decodeBody[dto.TransactionsResponse](t, resp)
	require.Len(t, page.Transactions, 1)
	assert.True(t, decimal.RequireFromString("-10").Equal(page.Transactions[0].Amount))

	resp = do(t, srv, http.MethodGet, "/v1/wallet/transactions", "dave", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decodeBody[dto.TransactionsResponse](t, resp).Transactions)

	for _, q := range []string{"limit=abc", "limit=0", "limit=1000", "offset=-1"} {
		expectError(t, do(t, srv, http.MethodGet, "/v1/wallet/transactions?"+q, "alice", ""), http.StatusBadRequest, "INVALID_REQUEST")
	}
}

func TestStatusOf(t *testing.T) {
	cases := map[string]int{
		"INVALID_AMOUNT":     http.StatusBadRequest,
		"NOT_IN_MATCH":       http.StatusForbidden,
		"USER_NOT_FOUND":     http.StatusNotFound,
		"CELL_OCCUPIED":      http.StatusConflict,
		"INSUFFICIENT_FUNDS": http.StatusConflict,
		"INTERNAL":           http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, statusOf(code), code)
	}
}
