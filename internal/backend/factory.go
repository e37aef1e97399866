package backend

import (
	"context"
	"fmt"
	"log/slog"

	"expenses/internal/kv/gcs"
	"expenses/internal/kv/memory"
	"expenses/internal/kv/mongo"
	"expenses/internal/kv/postgres"
	"expenses/internal/kv/s3"
	"expenses/internal/kv/sqlite"
)

// DefaultFactory implements the Factory interface.
type DefaultFactory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{logger: logger}
}

func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		res *BackendResult
		err error
	)
	switch config.Type {
	case MemoryBackend:
		res = &BackendResult{Store: memory.New()}
		f.logger.Warn("Using in-memory store, data is lost on restart")
	case SQLiteBackend:
		res, err = f.createSQLite(config)
	case PostgresBackend:
		res, err = f.createPostgres(ctx, config)
	case S3Backend:
		res, err = f.createS3(ctx, config)
	case GCSBackend:
		res, err = f.createGCS(ctx, config)
	case MongoBackend:
		res, err = f.createMongo(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}
	if res.Ping == nil {
		res.Ping = func(context.Context) error { return nil }
	}
	return res, nil
}

func (f *DefaultFactory) createSQLite(config Config) (*BackendResult, error) {
	store, err := sqlite.Open(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
	}
	f.logger.Info("Initialized SQLite store", "db_path", config.SQLiteDBPath)
	return &BackendResult{Store: store, Ping: store.Ping, Cleanup: store.Close}, nil
}

func (f *DefaultFactory) createPostgres(ctx context.Context, config Config) (*BackendResult, error) {
	store, err := postgres.Open(ctx, config.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Postgres store: %w", err)
	}
	f.logger.Info("Initialized Postgres store")
	return &BackendResult{Store: store, Ping: store.Ping, Cleanup: store.Close}, nil
}

func (f *DefaultFactory) createS3(ctx context.Context, config Config) (*BackendResult, error) {
	store, err := s3.New(ctx, s3.Config{
		Bucket:    config.S3Bucket,
		Region:    config.S3Region,
		Endpoint:  config.S3Endpoint,
		PathStyle: config.S3PathStyle,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize S3 store: %w", err)
	}
	f.logger.Info("Initialized S3 store", "bucket", config.S3Bucket, "endpoint", config.S3Endpoint)
	return &BackendResult{Store: store, Ping: store.Ping}, nil
}

func (f *DefaultFactory) createGCS(ctx context.Context, config Config) (*BackendResult, error) {
	store, err := gcs.New(ctx, config.GCSBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize GCS store: %w", err)
	}
	f.logger.Info("Initialized GCS store", "bucket", config.GCSBucket)
	return &BackendResult{Store: store, Ping: store.Ping, Cleanup: store.Close}, nil
}

func (f *DefaultFactory) createMongo(ctx context.Context, config Config) (*BackendResult, error) {
	store, err := mongo.Connect(ctx, config.MongoURI, config.MongoDatabase, config.MongoCollection)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Mongo store: %w", err)
	}
	f.logger.Info("Initialized Mongo store", "database", config.MongoDatabase, "collection", config.MongoCollection)
	return &BackendResult{Store: store, Ping: store.Ping, Cleanup: store.Close}, nil
}
