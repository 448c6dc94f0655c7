// Package artifact provides storage for the raw artifacts a participant
// produces during a session.
//
// Supported backends:
// - Memory: for development and testing (default)
// - File: for single-node deployments, one file per key under BaseDir
// - Redis: for shared deployments
// - Badger: embedded key-value store, optionally in memory
package artifact

import (
	"context"
	"errors"
	"strings"
)

// Common errors
var (
	ErrNotFound     = errors.New("artifact not found")
	ErrStoreClosed  = errors.New("store is closed")
	ErrInvalidInput = errors.New("invalid input")
)

// Store persists artifacts by key. Keys are slash-separated paths such as
// "<run>/<participant>/raw".
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	// List returns the keys starting with prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
	Ping(ctx context.Context) error
	Close() error
}

// StoreType represents the type of storage backend
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeFile   StoreType = "file"
	StoreTypeRedis  StoreType = "redis"
	StoreTypeBadger StoreType = "badger"
)

// Config is the configuration shared by all backends.
type Config struct {
	Type StoreType `yaml:"type" json:"type" env:"TYPE"`

	// BaseDir is the root directory for the file and badger backends.
	BaseDir string `yaml:"base_dir" json:"base_dir" env:"BASE_DIR"`

	// InMemory runs badger without touching disk.
	InMemory bool `yaml:"in_memory" json:"in_memory" env:"IN_MEMORY"`

	Redis RedisConfig `yaml:"redis" json:"redis" env:"REDIS"`
}

// RedisConfig configures the redis backend.
type RedisConfig struct {
	Addr      string `yaml:"addr" json:"addr" env:"ADDR"`
	Password  string `yaml:"password" json:"-" env:"PASSWORD"`
	DB        int    `yaml:"db" json:"db" env:"DB"`
	PoolSize  int    `yaml:"pool_size" json:"pool_size" env:"POOL_SIZE"`
	KeyPrefix string `yaml:"key_prefix" json:"key_prefix" env:"KEY_PREFIX"`
}

// DefaultConfig returns an in-memory store configuration.
func DefaultConfig() Config {
	return Config{
		Type:    StoreTypeMemory,
		BaseDir: "./data/artifacts",
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			PoolSize:  10,
			KeyPrefix: "fedflow:",
		},
	}
}

func validateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "..") {
		return ErrInvalidInput
	}
	return nil
}
