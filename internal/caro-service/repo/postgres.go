package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/radieske/caro-bet-platform/internal/caro-service/board"
	"github.com/radieske/caro-bet-platform/internal/caro-service/engine"
	"github.com/radieske/caro-bet-platform/internal/caro-service/match"
)

// Postgres implementa o Store em banco.
// A unidade de trabalho trava a linha da partida (FOR UPDATE) e grava de volta com
// compare-and-set na coluna version; carteira, ledger, stats e liquidação vão na mesma transação.
type Postgres struct{ db *sql.DB }

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

const uniqueViolation = "23505"

const selectMatch = `
	SELECT m.id, m.code, m.player1_id, COALESCE(m.player2_id, ''), m.bet_amount, m.status,
	       m.board_state, m.current_turn, m.winner_slot, m.ready1, m.ready2, m.move_count,
	       m.last_x, m.last_y, m.version, m.created_at, m.started_at, m.finished_at,
	       (s.match_id IS NOT NULL)
	FROM caro_matches m
	LEFT JOIN caro_settlements s ON s.match_id = m.id`

// ativa primeiro; entre finalizadas, a mais recente
const qByCode = selectMatch + `
	WHERE m.code = $1
	ORDER BY (m.status <> 'finished') DESC, m.created_at DESC
	LIMIT 1`

const qByID = selectMatch + ` WHERE m.id = $1`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMatch(row rowScanner) (*match.Match, error) {
	var (
		m            match.Match
		p2           string
		status       string
		boardState   []byte
		turn, winner int16
		lastX, lastY sql.NullInt64
		started      sql.NullTime
		finished     sql.NullTime
	)
	err := row.Scan(&m.ID, &m.Code, &m.Players[0], &p2, &m.BetAmount, &status,
		&boardState, &turn, &winner, &m.Ready[0], &m.Ready[1], &m.MoveCount,
		&lastX, &lastY, &m.Version, &m.CreatedAt, &started, &finished,
		&m.Settled)
	if err == sql.ErrNoRows {
		return nil, match.ErrMatchNotFound
	}
	if err != nil {
		return nil, err
	}

	m.Players[1] = p2
	m.Status = match.Status(status)
	m.Turn = board.Slot(turn)
	m.WinnerSlot = board.Slot(winner)
	m.Board = board.New()
	if err := json.Unmarshal(boardState, m.Board); err != nil {
		return nil, fmt.Errorf("match %s: %w", m.Code, err)
	}
	if lastX.Valid && lastY.Valid {
		m.LastMove = &board.Point{X: int(lastX.Int64), Y: int(lastY.Int64)}
	}
	if started.Valid {
		t := started.Time
		m.StartedAt = &t
	}
	if finished.Valid {
		t := finished.Time
		m.FinishedAt = &t
	}
	return &m, nil
}

// Create insere a partida e roda fn na mesma transação; código em uso vira ErrCodeTaken
func (p *Postgres) Create(ctx context.Context, m *match.Match, fn func(ctx context.Context, tx engine.Tx) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	bs, err := json.Marshal(m.Board)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO caro_matches (id, code, player1_id, bet_amount, status, board_state, current_turn, created_at, version)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,1)`,
		m.ID, m.Code, m.Players[0], m.BetAmount, string(m.Status), bs, int16(m.Turn), m.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return match.ErrCodeTaken
		}
		return fmt.Errorf("insert match: %w", err)
	}

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	m.Version = 1
	return nil
}

func (p *Postgres) Mutate(ctx context.Context, code string, fn func(ctx context.Context, m *match.Match, tx engine.Tx) error) (*match.Match, error) {
	return p.mutate(ctx, qByCode, code, fn)
}

func (p *Postgres) MutateByID(ctx context.Context, id string, fn func(ctx context.Context, m *match.Match, tx engine.Tx) error) (*match.Match, error) {
	return p.mutate(ctx, qByID, id, fn)
}

func (p *Postgres) mutate(ctx context.Context, query, key string, fn func(ctx context.Context, m *match.Match, tx engine.Tx) error) (*match.Match, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	m, err := scanMatch(tx.QueryRowContext(ctx, query+` FOR UPDATE OF m`, key))
	if err != nil {
		return nil, err
	}
	prev := m.Version

	if err := fn(ctx, m, &pgTx{tx: tx}); err != nil {
		return nil, err
	}

	bs, err := json.Marshal(m.Board)
	if err != nil {
		return nil, err
	}
	var lastX, lastY sql.NullInt64
	if m.LastMove != nil {
		lastX = sql.NullInt64{Int64: int64(m.LastMove.X), Valid: true}
		lastY = sql.NullInt64{Int64: int64(m.LastMove.Y), Valid: true}
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE caro_matches SET
		  player2_id   = NULLIF($1, ''),
		  status       = $2,
		  board_state  = $3,
		  current_turn = $4,
		  winner_slot  = $5,
		  ready1       = $6,
		  ready2       = $7,
		  move_count   = $8,
		  last_x       = $9,
		  last_y       = $10,
		  started_at   = $11,
		  finished_at  = $12,
		  version      = version + 1
		WHERE id = $13 AND version = $14`,
		m.Players[1], string(m.Status), bs, int16(m.Turn), int16(m.WinnerSlot),
		m.Ready[0], m.Ready[1], m.MoveCount, lastX, lastY, m.StartedAt, m.FinishedAt,
		m.ID, prev)
	if err != nil {
		return nil, fmt.Errorf("update match %s: %w", m.Code, err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return nil, match.ErrVersionChanged
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	m.Version = prev + 1
	return m, nil
}

func (p *Postgres) Get(ctx context.Context, code string) (*match.Match, error) {
	return scanMatch(p.db.QueryRowContext(ctx, qByCode, code))
}

func (p *Postgres) ListOpen(ctx context.Context, limit int) ([]*match.Match, error) {
	rows, err := p.db.QueryContext(ctx, selectMatch+`
		WHERE m.status = 'waiting'
		ORDER BY m.created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*match.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListUnsettled retorna ids de partidas finalizadas sem linha de liquidação
func (p *Postgres) ListUnsettled(ctx context.Context, limit int) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT m.id FROM caro_matches m
		LEFT JOIN caro_settlements s ON s.match_id = m.id
		WHERE m.status = 'finished' AND m.winner_slot IN (1, 2) AND s.match_id IS NULL
		ORDER BY m.finished_at
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (p *Postgres) Stats(ctx context.Context, userIDs ...string) (map[string]engine.Stats, error) {
	out := make(map[string]engine.Stats, len(userIDs))
	for _, id := range userIDs {
		out[id] = engine.Stats{UserID: id, Level: match.Level(0)}
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT user_id, games_played, games_won, total_earnings, level
		FROM caro_stats WHERE user_id = ANY($1)`, pq.Array(userIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var st engine.Stats
		if err := rows.Scan(&st.UserID, &st.GamesPlayed, &st.GamesWon, &st.TotalEarnings, &st.Level); err != nil {
			return nil, err
		}
		out[st.UserID] = st
	}
	return out, rows.Err()
}

func (p *Postgres) Balance(ctx context.Context, userID string) (decimal.Decimal, error) {
	var bal decimal.Decimal
	err := p.db.QueryRowContext(ctx, `SELECT balance FROM wallets WHERE user_id=$1`, userID).Scan(&bal)
	if err == sql.ErrNoRows {
		return decimal.Zero, match.ErrUserNotFound
	}
	return bal, err
}

func (p *Postgres) Transactions(ctx context.Context, userID string, limit, offset int) ([]engine.Entry, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, user_id, amount, type, source, COALESCE(reference, ''), created_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []engine.Entry
	for rows.Next() {
		var e engine.Entry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Amount, &e.Kind, &e.Source, &e.Reference, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// pgTx expõe a transação aberta como engine.Tx
type pgTx struct{ tx *sql.Tx }

// Debit só passa se houver saldo: o UPDATE condicional evita saldo negativo sem ler antes
func (t *pgTx) Debit(ctx context.Context, userID string, amount decimal.Decimal, kind, ref string) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE wallets SET balance = balance - $1, version = version + 1, updated_at = NOW()
		WHERE user_id = $2 AND balance >= $1`, amount, userID)
	if err != nil {
		return fmt.Errorf("debit %s: %w", userID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var one int
		err := t.tx.QueryRowContext(ctx, `SELECT 1 FROM wallets WHERE user_id=$1`, userID).Scan(&one)
		if err == sql.ErrNoRows {
			return match.ErrUserNotFound
		}
		if err != nil {
			return err
		}
		return match.ErrInsufficientFunds
	}
	return t.insertEntry(ctx, userID, amount.Neg(), kind, ref)
}

func (t *pgTx) Credit(ctx context.Context, userID string, amount decimal.Decimal, kind, ref string) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE wallets SET balance = balance + $1, version = version + 1, updated_at = NOW()
		WHERE user_id = $2`, amount, userID)
	if err != nil {
		return fmt.Errorf("credit %s: %w", userID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return match.ErrUserNotFound
	}
	return t.insertEntry(ctx, userID, amount, kind, ref)
}

func (t *pgTx) Annotate(ctx context.Context, userID string, amount decimal.Decimal, kind, ref string) error {
	return t.insertEntry(ctx, userID, amount, kind, ref)
}

func (t *pgTx) insertEntry(ctx context.Context, userID string, amount decimal.Decimal, kind, ref string) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO transactions (user_id, amount, type, source, reference)
		VALUES ($1,$2,$3,$4,$5)`, userID, amount, kind, engine.LedgerSource, ref)
	if err != nil {
		return fmt.Errorf("ledger %s %s: %w", kind, userID, err)
	}
	return nil
}

// RecordResult faz upsert das estatísticas e recalcula o nível a partir das vitórias
func (t *pgTx) RecordResult(ctx context.Context, userID string, won bool, earnings decimal.Decimal) error {
	wins := 0
	if won {
		wins = 1
	}
	var total int
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO caro_stats (user_id, games_played, games_won, total_earnings, level)
		VALUES ($1, 1, $2, $3, 1)
		ON CONFLICT (user_id) DO UPDATE SET
		  games_played   = caro_stats.games_played + 1,
		  games_won      = caro_stats.games_won + EXCLUDED.games_won,
		  total_earnings = caro_stats.total_earnings + EXCLUDED.total_earnings
		RETURNING games_won`, userID, wins, earnings).Scan(&total)
	if err != nil {
		return fmt.Errorf("stats %s: %w", userID, err)
	}
	_, err = t.tx.ExecContext(ctx, `UPDATE caro_stats SET level = $1 WHERE user_id = $2`, match.Level(total), userID)
	return err
}

// ClaimSettlement insere a linha de liquidação; conflito na PK significa que outra transação já liquidou
func (t *pgTx) ClaimSettlement(ctx context.Context, s match.Settlement) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO caro_settlements (match_id, winner_id, loser_id, pot, payout, house_cut)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (match_id) DO NOTHING`,
		s.MatchID, s.WinnerID, s.LoserID, s.Pot, s.Payout, s.HouseCut)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
