package backend

import (
	"context"

	"expenses/internal/kv"
)

// CleanupFunc releases the store's resources.
type CleanupFunc func() error

// BackendResult is an opened store with its health check and cleanup.
type BackendResult struct {
	Store   kv.Store
	Ping    func(ctx context.Context) error
	Cleanup CleanupFunc
}

// Close runs Cleanup when one is set.
func (r *BackendResult) Close() error {
	if r == nil || r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}

// Factory opens a store for a configuration.
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// BackendType names a store driver.
type BackendType string

const (
	MemoryBackend   BackendType = "memory"
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
	S3Backend       BackendType = "s3"
	GCSBackend      BackendType = "gcs"
	MongoBackend    BackendType = "mongo"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, SQLiteBackend, PostgresBackend, S3Backend, GCSBackend, MongoBackend:
		return true
	default:
		return false
	}
}

// Config holds what each driver needs.
type Config struct {
	Type BackendType

	SQLiteDBPath string
	PostgresDSN  string

	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3PathStyle bool

	GCSBucket string

	MongoURI        string
	MongoDatabase   string
	MongoCollection string
}
