// Package cache provides the ephemeral key/value store used for transcode
// job claims and derived-response memoization. Two backends exist: an
// in-process map for single-instance deployments and Redis for fleets that
// share claim state across replicas.
package cache

import (
	"context"
	"time"
)

// Store is a key/value store with per-key TTL. A TTL <= 0 means the entry
// persists until explicitly deleted. Lookups past expiry behave as a miss.
//
// SetNX is the claim primitive: it must be an atomic check-and-set, never a
// read followed by a write, so two concurrent claimants cannot both observe
// an absent key.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}
