package backend

import (
	"context"
	"time"

	"fintrack/internal/store"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the backend instance and optional cleanup function
type BackendResult struct {
	Backend store.Backend
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	// CreateBackend creates a backend instance based on the provided config
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// BackendType names a data backend.
type BackendType string

const (
	MemoryBackend   BackendType = "memory"
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
	APIBackend      BackendType = "api"
)

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// Memory backend seed directory
	DataDirectory string

	// SQLite
	SQLiteDBPath string

	// Postgres
	DatabaseURL string

	// External REST API
	APIBaseURL string
	APIToken   string
	APITimeout time.Duration
}

// IsValid checks if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, SQLiteBackend, PostgresBackend, APIBackend:
		return true
	}
	return false
}

// String returns the string representation of the backend type
func (bt BackendType) String() string {
	return string(bt)
}
