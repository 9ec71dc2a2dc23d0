package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/caro-bet-platform/internal/caro-service/board"
	"github.com/radieske/caro-bet-platform/internal/caro-service/engine"
	"github.com/radieske/caro-bet-platform/internal/caro-service/match"
)

var ctx = context.Background()

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newMatch(t *testing.T, id, code, user string) *match.Match {
	t.Helper()
	m, err := match.New(id, code, user, dec("10"), time.Now())
	require.NoError(t, err)
	return m
}

func debit(user, amt string) func(context.Context, engine.Tx) error {
	return func(ctx context.Context, tx engine.Tx) error {
		return tx.Debit(ctx, user, dec(amt), engine.KindStake, "ref")
	}
}

func TestMemory_CreateDebitsInSameUnit(t *testing.T) {
	s := NewMemory(decimal.Zero)
	s.Fund("alice", dec("25"))

	require.NoError(t, s.Create(ctx, newMatch(t, "m1", "AAAAAA", "alice"), debit("alice", "10")))
	bal, err := s.Balance(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, bal.Equal(dec("15")))

	txs, err := s.Transactions(ctx, "alice", 10, 0)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, engine.KindStake, txs[0].Kind)
	assert.True(t, txs[0].Amount.Equal(dec("-10")))
}

func TestMemory_CreateRollsBackOnFailure(t *testing.T) {
	s := NewMemory(decimal.Zero)
	s.Fund("alice", dec("5"))

	err := s.Create(ctx, newMatch(t, "m1", "AAAAAA", "alice"), debit("alice", "10"))
	assert.ErrorIs(t, err, match.ErrInsufficientFunds)

	_, err = s.Get(ctx, "AAAAAA")
	assert.ErrorIs(t, err, match.ErrMatchNotFound)
	bal, _ := s.Balance(ctx, "alice")
	assert.True(t, bal.Equal(dec("5")))

	// código volta a ficar livre
	s.Fund("alice", dec("5"))
	assert.NoError(t, s.Create(ctx, newMatch(t, "m2", "AAAAAA", "alice"), debit("alice", "10")))
}

func TestMemory_CodeUniqueAmongActive(t *testing.T) {
	s := NewMemory(dec("100"))
	require.NoError(t, s.Create(ctx, newMatch(t, "m1", "AAAAAA", "alice"), debit("alice", "10")))
	err := s.Create(ctx, newMatch(t, "m2", "AAAAAA", "bob"), debit("bob", "10"))
	assert.ErrorIs(t, err, match.ErrCodeTaken)

	// finaliza m1: o código pode ser reaproveitado e a busca prefere a ativa
	_, err = s.MutateByID(ctx, "m1", func(ctx context.Context, m *match.Match, tx engine.Tx) error {
		m.Status = match.StatusFinished
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, s.Create(ctx, newMatch(t, "m3", "AAAAAA", "bob"), debit("bob", "10")))

	got, err := s.Get(ctx, "AAAAAA")
	require.NoError(t, err)
	assert.Equal(t, "m3", got.ID)
}

func TestMemory_MutateRollsBackEverything(t *testing.T) {
	s := NewMemory(decimal.Zero)
	s.Fund("alice", dec("10"))
	s.Fund("bob", dec("10"))
	require.NoError(t, s.Create(ctx, newMatch(t, "m1", "AAAAAA", "alice"), debit("alice", "10")))

	boom := errors.New("boom")
	_, err := s.Mutate(ctx, "AAAAAA", func(ctx context.Context, m *match.Match, tx engine.Tx) error {
		require.NoError(t, m.Seat("bob", false, time.Now()))
		require.NoError(t, tx.Debit(ctx, "bob", dec("10"), engine.KindStake, m.ID))
		require.NoError(t, tx.Credit(ctx, "alice", dec("3"), engine.KindWin, m.ID))
		require.NoError(t, tx.Annotate(ctx, "bob", dec("-10"), engine.KindLoss, m.ID))
		require.NoError(t, tx.RecordResult(ctx, "alice", true, dec("3")))
		ok, err := tx.ClaimSettlement(ctx, match.Settlement{MatchID: m.ID})
		require.NoError(t, err)
		require.True(t, ok)
		return boom
	})
	require.ErrorIs(t, err, boom)

	m, err := s.Get(ctx, "AAAAAA")
	require.NoError(t, err)
	assert.Equal(t, match.StatusWaiting, m.Status)
	assert.Equal(t, "", m.Players[1])
	assert.Equal(t, int64(1), m.Version)

	bob, _ := s.Balance(ctx, "bob")
	alice, _ := s.Balance(ctx, "alice")
	assert.True(t, bob.Equal(dec("10")))
	assert.True(t, alice.Equal(decimal.Zero))

	txs, _ := s.Transactions(ctx, "bob", 10, 0)
	assert.Empty(t, txs)
	stats, _ := s.Stats(ctx, "alice")
	assert.Equal(t, 0, stats["alice"].GamesPlayed)
	assert.Equal(t, 1, stats["alice"].Level)

	_, err = s.MutateByID(ctx, "m1", func(ctx context.Context, m *match.Match, tx engine.Tx) error {
		ok, err := tx.ClaimSettlement(ctx, match.Settlement{MatchID: m.ID})
		assert.True(t, ok, "claim was rolled back")
		return err
	})
	require.NoError(t, err)
}

func TestMemory_ClaimSettlementOnce(t *testing.T) {
	s := NewMemory(dec("100"))
	require.NoError(t, s.Create(ctx, newMatch(t, "m1", "AAAAAA", "alice"), debit("alice", "10")))

	claim := func() bool {
		var ok bool
		_, err := s.Mutate(ctx, "AAAAAA", func(ctx context.Context, m *match.Match, tx engine.Tx) error {
			var err error
			ok, err = tx.ClaimSettlement(ctx, match.Settlement{MatchID: m.ID})
			return err
		})
		require.NoError(t, err)
		return ok
	}
	assert.True(t, claim())
	assert.False(t, claim())
}

func TestMemory_DebitUnknownUser(t *testing.T) {
	s := NewMemory(decimal.Zero)
	err := s.Create(ctx, newMatch(t, "m1", "AAAAAA", "ghost"), debit("ghost", "10"))
	assert.ErrorIs(t, err, match.ErrUserNotFound)
	_, err = s.Balance(ctx, "ghost")
	assert.ErrorIs(t, err, match.ErrUserNotFound)
}

func TestMemory_ListOpenNewestFirst(t *testing.T) {
	s := NewMemory(dec("100"))
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, code := range []string{"AAAAA1", "AAAAA2", "AAAAA3"} {
		m, err := match.New(code, code, "alice", dec("1"), base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
		require.NoError(t, s.Create(ctx, m, debit("alice", "1")))
	}
	_, err := s.Mutate(ctx, "AAAAA2", func(ctx context.Context, m *match.Match, tx engine.Tx) error {
		return m.Seat("bob", false, time.Now())
	})
	require.NoError(t, err)

	open, err := s.ListOpen(ctx, 20)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, "AAAAA3", open[0].Code)
	assert.Equal(t, "AAAAA1", open[1].Code)

	open, _ = s.ListOpen(ctx, 1)
	assert.Len(t, open, 1)
}

func TestMemory_TransactionsPaging(t *testing.T) {
	s := NewMemory(decimal.Zero)
	s.Fund("alice", dec("100"))
	for i, code := range []string{"AAAAA1", "AAAAA2", "AAAAA3"} {
		m := newMatch(t, code, code, "alice")
		require.NoError(t, s.Create(ctx, m, debit("alice", []string{"1", "2", "3"}[i])))
	}
	txs, err := s.Transactions(ctx, "alice", 2, 1)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.True(t, txs[0].Amount.Equal(dec("-2")))
	assert.True(t, txs[1].Amount.Equal(dec("-1")))
}

func TestMemory_MutateVersionAndClone(t *testing.T) {
	s := NewMemory(dec("100"))
	require.NoError(t, s.Create(ctx, newMatch(t, "m1", "AAAAAA", "alice"), debit("alice", "10")))
	m, err := s.Mutate(ctx, "AAAAAA", func(ctx context.Context, m *match.Match, tx engine.Tx) error {
		return m.Seat("bob", false, time.Now())
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), m.Version)

	// o retorno não compartilha estado com o armazenado
	require.NoError(t, m.Board.Place(board.Point{X: 1, Y: 1}, board.Slot1))
	stored, _ := s.Get(ctx, "AAAAAA")
	assert.Equal(t, 0, stored.Board.Len())
}
