package match

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/caro-bet-platform/internal/caro-service/board"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func playing(t *testing.T) *Match {
	t.Helper()
	m, err := New("m1", "ABC123", "alice", dec("100"), t0)
	require.NoError(t, err)
	require.NoError(t, m.Seat("bob", false, t0))
	require.Equal(t, StatusPlaying, m.Status)
	return m
}

func TestValidateBet(t *testing.T) {
	cases := []struct {
		in string
		ok bool
	}{
		{"100", true},
		{"0.01", true},
		{"1.500", true},
		{"0", false},
		{"-5", false},
		{"1.234", false},
	}
	for _, tc := range cases {
		err := ValidateBet(dec(tc.in))
		if tc.ok {
			assert.NoError(t, err, tc.in)
		} else {
			assert.ErrorIs(t, err, ErrInvalidAmount, tc.in)
		}
	}
}

func TestNewCode_Alphabet(t *testing.T) {
	for i := 0; i < 50; i++ {
		c, err := NewCode()
		require.NoError(t, err)
		require.Len(t, c, CodeLength)
		assert.Equal(t, c, NormalizeCode(c))
		for _, r := range c {
			assert.Contains(t, codeAlphabet, string(r))
		}
	}
	assert.Equal(t, "AB12CD", NormalizeCode(" ab12cd "))
}

func TestNewCode_Uniform(t *testing.T) {
	// 0xFF mascarado vale 63, fora do alfabeto, e é descartado; 0x23 vale 35 ("Z")
	src := bytes.NewReader(bytes.Repeat([]byte{0xFF, 0x23}, CodeLength))
	c, err := newCode(src)
	require.NoError(t, err)
	assert.Equal(t, "ZZZZZZ", c)

	_, err = newCode(bytes.NewReader(nil))
	assert.Error(t, err)
}

func TestJoinGuards(t *testing.T) {
	m, err := New("m1", "ABC123", "alice", dec("10"), t0)
	require.NoError(t, err)

	assert.ErrorIs(t, m.Seat("alice", false, t0), ErrSelfJoin)
	assert.Equal(t, "", m.Players[1])

	require.NoError(t, m.Seat("bob", true, t0))
	assert.Equal(t, StatusReadyCheck, m.Status)

	assert.ErrorIs(t, m.CheckJoin("carol"), ErrRoomNotJoinable)

	// sala em Waiting mas com slot 2 ocupado (estado só alcançável via armazenamento)
	full := &Match{Status: StatusWaiting, Players: [2]string{"alice", "bob"}}
	assert.ErrorIs(t, full.CheckJoin("carol"), ErrRoomFull)
}

func TestReadyCheck_StartsWhenBothReady(t *testing.T) {
	m, _ := New("m1", "ABC123", "alice", dec("10"), t0)
	require.NoError(t, m.Seat("bob", true, t0))

	_, err := m.Play("alice", board.Point{}, t0)
	assert.ErrorIs(t, err, ErrMatchNotActive)

	_, err = m.MarkReady("carol", t0)
	assert.ErrorIs(t, err, ErrNotInMatch)

	started, err := m.MarkReady("alice", t0)
	require.NoError(t, err)
	assert.False(t, started)
	started, err = m.MarkReady("alice", t0)
	require.NoError(t, err)
	assert.False(t, started, "ready is idempotent per slot")

	started, err = m.MarkReady("bob", t0.Add(time.Second))
	require.NoError(t, err)
	assert.True(t, started)
	assert.Equal(t, StatusPlaying, m.Status)
	assert.Equal(t, board.Slot1, m.Turn)
	require.NotNil(t, m.StartedAt)

	_, err = m.MarkReady("bob", t0)
	assert.ErrorIs(t, err, ErrNotAwaitingReady)
}

func TestPlay_TurnAlternation(t *testing.T) {
	m := playing(t)
	users := []string{"alice", "bob"}
	for i := 0; i < 10; i++ {
		mover := users[i%2]
		other := users[(i+1)%2]

		before := m.Clone()
		_, err := m.Play(other, board.Point{X: 100 + i, Y: 0}, t0)
		require.ErrorIs(t, err, ErrNotYourTurn)
		assert.Equal(t, before, m, "rejected move must leave state unchanged")

		won, err := m.Play(mover, board.Point{X: i * 3, Y: i * 7}, t0)
		require.NoError(t, err)
		require.False(t, won)
		assert.Equal(t, m.SlotOf(other), m.Turn)
		assert.NotEqual(t, m.SlotOf(mover), m.Turn)
	}
	assert.Equal(t, 10, m.MoveCount)
}

func TestPlay_Rejections(t *testing.T) {
	m := playing(t)

	_, err := m.Play("mallory", board.Point{}, t0)
	assert.ErrorIs(t, err, ErrNotInMatch)

	_, err = m.Play("alice", board.Point{X: 1, Y: 1}, t0)
	require.NoError(t, err)

	_, err = m.Play("bob", board.Point{X: 1, Y: 1}, t0)
	assert.ErrorIs(t, err, ErrCellOccupied)
	assert.Equal(t, board.Slot2, m.Turn, "turn unchanged after rejected move")
	assert.Equal(t, 1, m.MoveCount)
}

func TestPlay_CoordinateBounds(t *testing.T) {
	m := playing(t)

	_, err := m.Play("alice", board.Point{X: board.MaxCoord, Y: board.MinCoord}, t0)
	require.NoError(t, err, "limites são jogáveis")

	_, err = m.Play("bob", board.Point{X: board.MaxCoord + 1, Y: 0}, t0)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = m.Play("bob", board.Point{X: 0, Y: board.MinCoord - 1}, t0)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Equal(t, board.Slot2, m.Turn)
	assert.Equal(t, 1, m.MoveCount)
}

func TestPlay_WinFinishesMatch(t *testing.T) {
	m := playing(t)
	for i := 0; i < 4; i++ {
		_, err := m.Play("alice", board.Point{X: i, Y: 0}, t0)
		require.NoError(t, err)
		_, err = m.Play("bob", board.Point{X: i, Y: 1}, t0)
		require.NoError(t, err)
	}
	won, err := m.Play("alice", board.Point{X: 4, Y: 0}, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, won)
	assert.Equal(t, StatusFinished, m.Status)
	assert.Equal(t, board.Slot1, m.WinnerSlot)
	assert.Equal(t, "alice", m.Winner())
	assert.NotEqual(t, board.Slot1, m.Turn)
	require.NotNil(t, m.FinishedAt)

	_, err = m.Play("bob", board.Point{X: 9, Y: 9}, t0)
	assert.ErrorIs(t, err, ErrMatchNotActive)
	_, err = m.Play("alice", board.Point{X: 9, Y: 9}, t0)
	assert.ErrorIs(t, err, ErrMatchNotActive)
}

func TestSettlement_Conservation(t *testing.T) {
	for _, bet := range []string{"100", "0.01", "33.33", "7.5"} {
		m, _ := New("m", "C", "alice", dec(bet), t0)
		require.NoError(t, m.Seat("bob", false, t0))
		m.Status = StatusFinished
		m.WinnerSlot = board.Slot2

		s, err := m.Settlement()
		require.NoError(t, err)
		b := dec(bet)
		assert.True(t, s.Payout.Equal(b.Mul(dec("1.6"))), "payout for %s = %s", bet, s.Payout)
		assert.True(t, s.HouseCut.Equal(b.Mul(dec("0.4"))), "house for %s = %s", bet, s.HouseCut)
		assert.True(t, s.Payout.Add(s.HouseCut).Equal(b.Mul(dec("2"))))
		assert.Equal(t, "bob", s.WinnerID)
		assert.Equal(t, "alice", s.LoserID)
	}
}

func TestSettlement_RequiresWinner(t *testing.T) {
	m := playing(t)
	_, err := m.Settlement()
	assert.ErrorIs(t, err, ErrMatchNotActive)
}

func TestLevel(t *testing.T) {
	assert.Equal(t, 1, Level(0))
	assert.Equal(t, 1, Level(4))
	assert.Equal(t, 2, Level(5))
	assert.Equal(t, 3, Level(14))
	assert.Equal(t, 1, Level(-1))
	prev := Level(0)
	for w := 1; w < 60; w++ {
		assert.GreaterOrEqual(t, Level(w), prev)
		prev = Level(w)
	}
}

func TestCode(t *testing.T) {
	assert.Equal(t, "", Code(nil))
	assert.Equal(t, "NOT_YOUR_TURN", Code(ErrNotYourTurn))
	assert.Equal(t, "CELL_OCCUPIED", Code(board.ErrCellOccupied))
	assert.Equal(t, "INSUFFICIENT_FUNDS", Code(fmt.Errorf("join ABC123: %w", ErrInsufficientFunds)))
	assert.Equal(t, "INTERNAL", Code(errors.New("connection reset")))
}
