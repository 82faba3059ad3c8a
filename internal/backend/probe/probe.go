// Package probe implements the backend transport as an active health probe
// over the real connections (database pool, redis). The supervisor consults
// Online before attempting work and calls Reset between retries.
package probe

import (
	"context"
	"sync/atomic"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/np-nandanpatil/adi/internal/backend"
)

type Transport struct {
	pingers []func(context.Context) error
	enabled atomic.Bool
	online  atomic.Bool
}

// New starts enabled and presumed online; the first probe corrects that.
func New(pingers ...func(context.Context) error) *Transport {
	t := &Transport{pingers: pingers}
	t.enabled.Store(true)
	t.online.Store(true)
	return t
}

func PingPool(pool *pgxpool.Pool) func(context.Context) error {
	return pool.Ping
}

func PingRedis(client *redis.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}

func (t *Transport) Online() bool {
	return t.enabled.Load() && t.online.Load()
}

func (t *Transport) Enable(ctx context.Context) error {
	t.enabled.Store(true)
	return t.probe(ctx)
}

func (t *Transport) Disable(context.Context) {
	t.enabled.Store(false)
	t.online.Store(false)
}

// Reset drops and re-establishes connectivity state around a retry.
func (t *Transport) Reset(ctx context.Context) error {
	t.Disable(ctx)
	return t.Enable(ctx)
}

func (t *Transport) probe(ctx context.Context) error {
	for _, ping := range t.pingers {
		if err := ping(ctx); err != nil {
			t.online.Store(false)
			return backend.Unavailable(err.Error())
		}
	}
	t.online.Store(true)
	return nil
}
