// Package persistence defines the key/value storage contract consumed by the
// audit logger. The engine owns authoritative run state; this layer is the
// durable mirror behind it.
package persistence

import "context"

// Store is the append-style key/value contract. Put overwrites an existing
// key (run snapshots are rewritten on completion); audit record keys are
// unique per event so the trail as a whole stays append-only.
type Store interface {
	Put(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	// ListKeys returns all keys with the given prefix, sorted.
	ListKeys(ctx context.Context, prefix string) ([]string, error)

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
