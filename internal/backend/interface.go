package backend

import (
	"context"
	"slices"

	"conti/internal/amqp"
	"conti/internal/services"
	"conti/internal/storage"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the storage gateway, the optional event publisher
// and a cleanup function releasing both.
type BackendResult struct {
	Store storage.Gateway
	// Publisher is nil when AMQP is not configured or unreachable.
	Publisher services.EventPublisher
	// AMQP is the underlying client, exposed for consumers.
	AMQP    *amqp.Client
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// Postgres specific
	DatabaseURL string

	// Events, optional for every backend
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// BackendType is a DATA_BACKEND value.
type BackendType string

const (
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
	MemoryBackend   BackendType = "memory"
)

func (bt BackendType) String() string { return string(bt) }

func (bt BackendType) IsValid() bool {
	return slices.Contains(GetBackendTypes(), bt)
}
