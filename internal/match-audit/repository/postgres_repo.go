package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/radieske/caro-bet-platform/pkg/contracts/events"
)

// PostgresRepo grava o histórico de eventos de partida (tabela caro_match_events)
type PostgresRepo struct {
	DB *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{DB: db}
}

// InsertEvent apenas acrescenta; o histórico nunca é atualizado
func (r *PostgresRepo) InsertEvent(ctx context.Context, env events.Envelope) error {
	const q = `
		INSERT INTO caro_match_events
		  (match_code, event_type, payload, occurred_at)
		VALUES
		  ($1,$2,$3,$4)
	`
	var payload any // NULL quando o evento não tem payload
	if len(env.Payload) > 0 {
		payload = []byte(env.Payload)
	}
	occurred := time.UnixMilli(env.TsUnixMs).UTC()
	if env.TsUnixMs == 0 {
		occurred = time.Now().UTC()
	}
	if _, err := r.DB.ExecContext(ctx, q, env.MatchCode, env.Type, payload, occurred); err != nil {
		return fmt.Errorf("insert match event %s/%s: %w", env.MatchCode, env.Type, err)
	}
	return nil
}
