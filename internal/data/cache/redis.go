package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/sawpanic/rotator/internal/market"
)

// KeyPrefix namespaces price keys.
const KeyPrefix = "rotator:prices:"

// Redis stores CSV-encoded series under KeyPrefix+TICKER.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis wraps an existing client. A zero ttl keeps keys forever.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

// DialRedis connects and pings the server.
func DialRedis(ctx context.Context, addr, password string, db int, ttl time.Duration) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return NewRedis(rdb, ttl), nil
}

func (r *Redis) Name() string { return "redis" }

// Key returns the redis key of ticker.
func (r *Redis) Key(ticker string) string {
	return KeyPrefix + strings.ToUpper(ticker)
}

func (r *Redis) Load(ctx context.Context, ticker string) (market.PriceSeries, bool, error) {
	val, err := r.client.Get(ctx, r.Key(ticker)).Bytes()
	if errors.Is(err, redis.Nil) {
		return market.PriceSeries{}, false, nil
	}
	if err != nil {
		return market.PriceSeries{}, false, fmt.Errorf("redis get: %w", err)
	}
	s, err := ReadCSV(bytes.NewReader(val), ticker)
	if err != nil {
		return market.PriceSeries{}, false, err
	}
	return s, true, nil
}

func (r *Redis) Store(ctx context.Context, series market.PriceSeries) error {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, series); err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.Key(series.Ticker), buf.Bytes(), r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Close releases the client.
func (r *Redis) Close() error {
	return r.client.Close()
}
