package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

func OpenRedis(addr string, db int) (*redis.Client, error) {
	r := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return r, nil
}

// Deduper remembers ids for a TTL. Used to drop replayed webhook
// deliveries before they reach the escrow engine.
type Deduper struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

func NewDeduper(rdb *redis.Client, prefix string, ttl time.Duration) *Deduper {
	return &Deduper{rdb: rdb, prefix: prefix, ttl: ttl}
}

// Claim returns true the first time id is seen within the TTL.
func (d *Deduper) Claim(ctx context.Context, id string) (bool, error) {
	return d.rdb.SetNX(ctx, d.prefix+id, "1", d.ttl).Result()
}

// Forget releases a claim so the sender's retry is processed.
func (d *Deduper) Forget(ctx context.Context, id string) error {
	return d.rdb.Del(ctx, d.prefix+id).Err()
}
