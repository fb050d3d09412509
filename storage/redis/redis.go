// Package redis provides a Redis implementation of the accountsync
// EventLedger using SET NX with a TTL. It is the deployment-grade
// alternative to the in-process memory ledger when the webhook endpoint
// runs on more than one instance.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Ledger implements accountsync.EventLedger using Redis
type Ledger struct {
	client redis.UniversalClient
	config Config
}

// Config holds Redis ledger configuration
type Config struct {
	// KeyPrefix is prepended to all Redis keys (default: "paddlesync:event:")
	KeyPrefix string

	// TTL is how long a processed event id is remembered
	// (default: 24h). It only needs to outlive the provider's retry window
	TTL time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		KeyPrefix: "paddlesync:event:",
		TTL:       24 * time.Hour,
	}
}

// New creates a new Redis event ledger
// The client can be *redis.Client, *redis.ClusterClient, or *redis.Ring
func New(client redis.UniversalClient, config Config) (*Ledger, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	// Set defaults
	if config.KeyPrefix == "" {
		config.KeyPrefix = "paddlesync:event:"
	}
	if config.TTL == 0 {
		config.TTL = 24 * time.Hour
	}

	return &Ledger{
		client: client,
		config: config,
	}, nil
}

// MarkProcessed implements accountsync.EventLedger. SET NX makes the
// first-seen check atomic across instances.
func (l *Ledger) MarkProcessed(ctx context.Context, eventID string) (bool, error) {
	key := l.config.KeyPrefix + eventID
	first, err := l.client.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), l.config.TTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark event processed: %w", err)
	}
	return first, nil
}

// Forget removes an event id from the ledger. Useful for tests and for
// manually replaying an event.
func (l *Ledger) Forget(ctx context.Context, eventID string) error {
	if err := l.client.Del(ctx, l.config.KeyPrefix+eventID).Err(); err != nil {
		return fmt.Errorf("failed to forget event: %w", err)
	}
	return nil
}

// Ping checks Redis connectivity
func (l *Ledger) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}
