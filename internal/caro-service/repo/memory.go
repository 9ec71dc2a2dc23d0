package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/caro-bet-platform/internal/caro-service/engine"
	"github.com/radieske/caro-bet-platform/internal/caro-service/match"
)

// Memory é o Store em memória (CARO_STORE=memory e testes).
// Cada partida tem seu próprio mutex para a unidade de trabalho; o mutex do Store
// protege mapas, carteiras e ledger e nunca é segurado enquanto se espera o de uma partida.
type Memory struct {
	mu      sync.Mutex
	byID    map[string]*entry
	byCode  map[string][]string // code -> ids em ordem de criação
	wallets map[string]decimal.Decimal
	ledger  []engine.Entry
	seq     int64
	stats   map[string]engine.Stats
	settled map[string]match.Settlement
	opening decimal.Decimal // saldo inicial de carteiras desconhecidas (zero desliga)
	clock   func() time.Time
}

type entry struct {
	mu   sync.Mutex   // serializa unidades de trabalho da partida
	snap *match.Match // versão commitada; nil enquanto a criação não commitou
}

func NewMemory(opening decimal.Decimal) *Memory {
	return &Memory{
		byID:    make(map[string]*entry),
		byCode:  make(map[string][]string),
		wallets: make(map[string]decimal.Decimal),
		stats:   make(map[string]engine.Stats),
		settled: make(map[string]match.Settlement),
		opening: opening,
		clock:   func() time.Time { return time.Now().UTC() },
	}
}

// Fund credita saldo fora do fluxo de partidas (seed local e testes)
func (s *Memory) Fund(userID string, amount decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wallets[userID] = s.walletLocked(userID).Add(amount)
}

// walletLocked retorna o saldo, abrindo a carteira com o saldo inicial quando configurado
func (s *Memory) walletLocked(userID string) decimal.Decimal {
	if bal, ok := s.wallets[userID]; ok {
		return bal
	}
	s.wallets[userID] = s.opening
	return s.opening
}

func (s *Memory) hasWalletLocked(userID string) bool {
	_, ok := s.wallets[userID]
	return ok || s.opening.IsPositive()
}

func (s *Memory) Create(ctx context.Context, m *match.Match, fn func(ctx context.Context, tx engine.Tx) error) error {
	e := &entry{}
	e.mu.Lock()
	defer e.mu.Unlock()

	s.mu.Lock()
	if _, dup := s.byID[m.ID]; dup {
		s.mu.Unlock()
		return match.ErrCodeTaken
	}
	for _, id := range s.byCode[m.Code] {
		if other := s.byID[id]; other.snap == nil || other.snap.Status.Active() {
			s.mu.Unlock()
			return match.ErrCodeTaken
		}
	}
	s.byID[m.ID] = e
	s.byCode[m.Code] = append(s.byCode[m.Code], m.ID)
	s.mu.Unlock()

	tx := &memTx{s: s}
	if err := fn(ctx, tx); err != nil {
		tx.rollback()
		s.mu.Lock()
		s.dropLocked(m)
		s.mu.Unlock()
		return err
	}

	m.Version = 1
	s.mu.Lock()
	e.snap = m.Clone()
	s.mu.Unlock()
	return nil
}

func (s *Memory) dropLocked(m *match.Match) {
	delete(s.byID, m.ID)
	ids := s.byCode[m.Code]
	for i, id := range ids {
		if id == m.ID {
			ids = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(s.byCode, m.Code)
		return
	}
	s.byCode[m.Code] = ids
}

func (s *Memory) Mutate(ctx context.Context, code string, fn func(ctx context.Context, m *match.Match, tx engine.Tx) error) (*match.Match, error) {
	s.mu.Lock()
	e := s.lookupLocked(code)
	s.mu.Unlock()
	return s.mutate(ctx, e, fn)
}

func (s *Memory) MutateByID(ctx context.Context, id string, fn func(ctx context.Context, m *match.Match, tx engine.Tx) error) (*match.Match, error) {
	s.mu.Lock()
	e := s.byID[id]
	s.mu.Unlock()
	return s.mutate(ctx, e, fn)
}

func (s *Memory) mutate(ctx context.Context, e *entry, fn func(ctx context.Context, m *match.Match, tx engine.Tx) error) (*match.Match, error) {
	if e == nil {
		return nil, match.ErrMatchNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	s.mu.Lock()
	snap := e.snap
	s.mu.Unlock()
	if snap == nil {
		return nil, match.ErrMatchNotFound
	}

	work := snap.Clone()
	tx := &memTx{s: s}
	if err := fn(ctx, work, tx); err != nil {
		tx.rollback()
		return nil, err
	}
	work.Version++

	s.mu.Lock()
	e.snap = work.Clone()
	s.mu.Unlock()
	return work, nil
}

// lookupLocked prefere a partida ativa com o código; senão a finalizada mais recente
func (s *Memory) lookupLocked(code string) *entry {
	var latest *entry
	ids := s.byCode[code]
	for i := len(ids) - 1; i >= 0; i-- {
		e := s.byID[ids[i]]
		if e == nil || e.snap == nil {
			continue
		}
		if e.snap.Status.Active() {
			return e
		}
		if latest == nil {
			latest = e
		}
	}
	return latest
}

func (s *Memory) Get(ctx context.Context, code string) (*match.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.lookupLocked(code)
	if e == nil {
		return nil, match.ErrMatchNotFound
	}
	return e.snap.Clone(), nil
}

func (s *Memory) ListOpen(ctx context.Context, limit int) ([]*match.Match, error) {
	s.mu.Lock()
	var out []*match.Match
	for _, e := range s.byID {
		if e.snap != nil && e.snap.Status == match.StatusWaiting {
			out = append(out, e.snap.Clone())
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Memory) ListUnsettled(ctx context.Context, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for id, e := range s.byID {
		if e.snap == nil || e.snap.Status != match.StatusFinished || !e.snap.WinnerSlot.Valid() {
			continue
		}
		if _, ok := s.settled[id]; ok {
			continue
		}
		out = append(out, id)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Memory) Stats(ctx context.Context, userIDs ...string) (map[string]engine.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]engine.Stats, len(userIDs))
	for _, id := range userIDs {
		out[id] = s.statsLocked(id)
	}
	return out, nil
}

func (s *Memory) statsLocked(userID string) engine.Stats {
	if st, ok := s.stats[userID]; ok {
		return st
	}
	return engine.Stats{UserID: userID, Level: match.Level(0)}
}

func (s *Memory) Balance(ctx context.Context, userID string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if bal, ok := s.wallets[userID]; ok {
		return bal, nil
	}
	if s.opening.IsPositive() {
		return s.opening, nil
	}
	return decimal.Zero, match.ErrUserNotFound
}

// Transactions retorna o ledger do usuário, mais recentes primeiro
func (s *Memory) Transactions(ctx context.Context, userID string, limit, offset int) ([]engine.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []engine.Entry
	skipped := 0
	for i := len(s.ledger) - 1; i >= 0 && len(out) < limit; i-- {
		if s.ledger[i].UserID != userID {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		out = append(out, s.ledger[i])
	}
	return out, nil
}

func (s *Memory) Ping(ctx context.Context) error { return nil }

// memTx aplica cada operação imediatamente e guarda a inversa para o rollback
type memTx struct {
	s    *Memory
	undo []func()
}

func (t *memTx) rollback() {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

// appendLocked grava o lançamento e registra a remoção dele no undo
func (t *memTx) appendLocked(userID string, amount decimal.Decimal, kind, ref string) {
	s := t.s
	s.seq++
	id := s.seq
	s.ledger = append(s.ledger, engine.Entry{
		ID:        id,
		UserID:    userID,
		Amount:    amount,
		Kind:      kind,
		Source:    engine.LedgerSource,
		Reference: ref,
		CreatedAt: s.clock(),
	})
	t.undo = append(t.undo, func() {
		for i := range s.ledger {
			if s.ledger[i].ID == id {
				s.ledger = append(s.ledger[:i], s.ledger[i+1:]...)
				return
			}
		}
	})
}

func (t *memTx) Debit(ctx context.Context, userID string, amount decimal.Decimal, kind, ref string) error {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasWalletLocked(userID) {
		return match.ErrUserNotFound
	}
	bal := s.walletLocked(userID)
	if bal.LessThan(amount) {
		return match.ErrInsufficientFunds
	}
	s.wallets[userID] = bal.Sub(amount)
	t.undo = append(t.undo, func() { s.wallets[userID] = s.wallets[userID].Add(amount) })
	t.appendLocked(userID, amount.Neg(), kind, ref)
	return nil
}

func (t *memTx) Credit(ctx context.Context, userID string, amount decimal.Decimal, kind, ref string) error {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasWalletLocked(userID) {
		return match.ErrUserNotFound
	}
	s.wallets[userID] = s.walletLocked(userID).Add(amount)
	t.undo = append(t.undo, func() { s.wallets[userID] = s.wallets[userID].Sub(amount) })
	t.appendLocked(userID, amount, kind, ref)
	return nil
}

func (t *memTx) Annotate(ctx context.Context, userID string, amount decimal.Decimal, kind, ref string) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	t.appendLocked(userID, amount, kind, ref)
	return nil
}

func (t *memTx) RecordResult(ctx context.Context, userID string, won bool, earnings decimal.Decimal) error {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.statsLocked(userID)
	st.GamesPlayed++
	if won {
		st.GamesWon++
		st.TotalEarnings = st.TotalEarnings.Add(earnings)
	}
	st.Level = match.Level(st.GamesWon)
	s.stats[userID] = st

	t.undo = append(t.undo, func() {
		st := s.statsLocked(userID)
		st.GamesPlayed--
		if won {
			st.GamesWon--
			st.TotalEarnings = st.TotalEarnings.Sub(earnings)
		}
		st.Level = match.Level(st.GamesWon)
		s.stats[userID] = st
	})
	return nil
}

func (t *memTx) ClaimSettlement(ctx context.Context, st match.Settlement) (bool, error) {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.settled[st.MatchID]; ok {
		return false, nil
	}
	s.settled[st.MatchID] = st
	t.undo = append(t.undo, func() { delete(s.settled, st.MatchID) })
	return true, nil
}
