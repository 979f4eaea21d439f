// Package statestore persists the lifecycle state of extensions so a
// restarted process can tell which extensions were active.
package statestore

import (
	"context"
	"errors"
	"time"
)

// Storage types accepted by New.
const (
	StorageMemory = "memory"
	StorageRedis  = "redis"
)

// ErrNotFound is returned by Load for an extension without a record.
var ErrNotFound = errors.New("statestore: no record")

// Record is the persisted state of one extension.
type Record struct {
	Extension string    `json:"extension"`
	State     string    `json:"state"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"-"`
}

// Store keeps one record per extension. Save bumps Version atomically.
type Store interface {
	Save(ctx context.Context, extension, state string) (Record, error)
	Load(ctx context.Context, extension string) (Record, error)
	// List returns all records sorted by extension name.
	List(ctx context.Context) ([]Record, error)
	Delete(ctx context.Context, extension string) error
}
