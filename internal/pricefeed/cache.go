// Package pricefeed ingests market ticks and fans them out: last-price
// cache, mark-to-market on open positions and trigger sweeps on resting
// orders.
package pricefeed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tradecore/internal/apperr"

	goredis "github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
)

// Cache holds the last observed price per symbol.
type Cache interface {
	Set(ctx context.Context, symbol string, price decimal.Decimal, at time.Time) error
	Get(ctx context.Context, symbol string) (Quote, error)
	Close() error
}

type Quote struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
	At     time.Time       `json:"at"`
}

// MemoryCache is the in-process cache used in tests and single-node runs.
type MemoryCache struct {
	mu     sync.RWMutex
	quotes map[string]Quote
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{quotes: make(map[string]Quote)}
}

func (c *MemoryCache) Set(_ context.Context, symbol string, price decimal.Decimal, at time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quotes[symbol] = Quote{Symbol: symbol, Price: price, At: at}
	return nil
}

func (c *MemoryCache) Get(_ context.Context, symbol string) (Quote, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	q, ok := c.quotes[symbol]
	if !ok {
		return Quote{}, fmt.Errorf("%w: no price for %s", apperr.ErrNotFound, symbol)
	}
	return q, nil
}

func (c *MemoryCache) Close() error { return nil }

const quoteTTL = 30 * time.Minute

// RedisCache shares last prices across instances.
type RedisCache struct {
	client *goredis.Client
}

// NewRedisCache connects and pings the server.
func NewRedisCache(addr, password string, db int) (*RedisCache, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisCache{client: client}, nil
}

func quoteKey(symbol string) string { return "quote:" + symbol }

func (c *RedisCache) Set(ctx context.Context, symbol string, price decimal.Decimal, at time.Time) error {
	if err := c.client.HSet(ctx, quoteKey(symbol),
		"price", price.String(),
		"at", at.UTC().Format(time.RFC3339Nano),
	).Err(); err != nil {
		return fmt.Errorf("hset %s: %w", symbol, err)
	}
	return c.client.Expire(ctx, quoteKey(symbol), quoteTTL).Err()
}

func (c *RedisCache) Get(ctx context.Context, symbol string) (Quote, error) {
	vals, err := c.client.HGetAll(ctx, quoteKey(symbol)).Result()
	if err != nil {
		return Quote{}, fmt.Errorf("hgetall %s: %w", symbol, err)
	}
	raw, ok := vals["price"]
	if !ok {
		return Quote{}, fmt.Errorf("%w: no price for %s", apperr.ErrNotFound, symbol)
	}
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return Quote{}, fmt.Errorf("corrupt price for %s: %w", symbol, err)
	}
	at, _ := time.Parse(time.RFC3339Nano, vals["at"])
	return Quote{Symbol: symbol, Price: price, At: at}, nil
}

func (c *RedisCache) Close() error { return c.client.Close() }
