package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyOpenRooms = "caro:lobby:open"

// LobbyCache guarda a lista de salas abertas por poucos segundos.
// Com cliente nil todas as operações viram miss/no-op.
type LobbyCache struct {
	R   *redis.Client
	TTL time.Duration
}

func New(r *redis.Client, ttl time.Duration) *LobbyCache { return &LobbyCache{R: r, TTL: ttl} }

func (c *LobbyCache) GetOpen(ctx context.Context, dst any) (bool, error) {
	if c == nil || c.R == nil {
		return false, nil
	}
	b, err := c.R.Get(ctx, keyOpenRooms).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(b, dst)
}

func (c *LobbyCache) SetOpen(ctx context.Context, v any) error {
	if c == nil || c.R == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.R.Set(ctx, keyOpenRooms, b, c.TTL).Err()
}

// Invalidate é chamado quando uma sala abre ou fecha
func (c *LobbyCache) Invalidate(ctx context.Context) error {
	if c == nil || c.R == nil {
		return nil
	}
	return c.R.Del(ctx, keyOpenRooms).Err()
}
