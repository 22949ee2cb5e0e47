// Package telemetry provides an optional Redis-backed Observer that
// mirrors shadow-map writes and transport status counters for external
// monitoring, wholly outside the hot path of the protocol engine.
//
// Grounded on pkg/redis/client.go's HSet+Publish pipeline
// (WriteAndPublishInt/WriteAndPublishString): adapted here into a single
// domain-specific publisher for WOU register writes and link status
// instead of the teacher's generic key/field/value client.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Observer receives callbacks from pkg/wou.Board as the protocol engine
// runs. Implementations must not block the caller for long: they are
// invoked from the single-threaded engine loop (spec §5).
type Observer interface {
	ShadowWrite(addr uint16, data []byte)
	Status(txBytes, rxBytes uint64, uptime time.Duration, crcErrors, unexpectedTIDs, txTimeouts uint64)
}

// RedisObserver publishes shadow-map writes and status snapshots into a
// Redis hash plus a pub/sub channel, mirroring the teacher's
// WriteAndPublishInt/WriteAndPublishString pattern for the "wou" domain.
type RedisObserver struct {
	client *redis.Client
	ctx    context.Context
	key    string
}

// NewRedisObserver connects to addr and returns a ready RedisObserver
// publishing under key (e.g. "wou:board0").
func NewRedisObserver(addr, password string, db int, key string) (*RedisObserver, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("telemetry: failed to connect to redis: %w", err)
	}
	return &RedisObserver{client: client, ctx: ctx, key: key}, nil
}

// ShadowWrite mirrors a committed register write into a Redis hash field
// keyed by address, and publishes it on the board's channel.
func (r *RedisObserver) ShadowWrite(addr uint16, data []byte) {
	field := fmt.Sprintf("reg:%04x", addr)
	pipe := r.client.Pipeline()
	pipe.HSet(r.ctx, r.key, field, data)
	pipe.Publish(r.ctx, r.key, fmt.Sprintf("%s:%x", field, data))
	_, _ = pipe.Exec(r.ctx)
}

// Status mirrors the non-blocking status() snapshot (spec §6) into Redis.
func (r *RedisObserver) Status(txBytes, rxBytes uint64, uptime time.Duration, crcErrors, unexpectedTIDs, txTimeouts uint64) {
	pipe := r.client.Pipeline()
	pipe.HSet(r.ctx, r.key,
		"tx_bytes", txBytes,
		"rx_bytes", rxBytes,
		"uptime_ms", uptime.Milliseconds(),
		"crc_errors", crcErrors,
		"unexpected_tids", unexpectedTIDs,
		"tx_timeouts", txTimeouts,
	)
	pipe.Publish(r.ctx, r.key, "status")
	_, _ = pipe.Exec(r.ctx)
}

// Close releases the underlying Redis client.
func (r *RedisObserver) Close() error {
	return r.client.Close()
}
