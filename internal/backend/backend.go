// Package backend opens the data service and storage selected by the
// configuration.
package backend

import (
	"context"
	"fmt"
	"log"
	"time"

	gcs "cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"

	"travelPlannerAPI/internal/config"
	"travelPlannerAPI/internal/datasvc"
	"travelPlannerAPI/internal/firebaseapp"
)

type Backend struct {
	// Data is instrumented with the backend name as its metrics label.
	Data datasvc.Service
	// Bucket holds destination images; nil when storage is not configured.
	Bucket *gcs.BucketHandle

	pool *pgxpool.Pool
}

func Open(ctx context.Context, cfg *config.Config) (*Backend, error) {
	b := &Backend{}

	var fbApp *firebaseapp.App
	if cfg.UsesFirebase() {
		var err error
		fbApp, err = firebaseapp.New(ctx, cfg)
		if err != nil {
			return nil, err
		}
	}

	var data datasvc.Service
	switch cfg.DataBackend {
	case config.BackendFirebase:
		client, err := fbApp.Database(ctx)
		if err != nil {
			return nil, err
		}
		data = datasvc.NewFirebaseService(client, cfg.FirebasePollInterval)

	case config.BackendPostgres:
		pool, err := openPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		pg, err := datasvc.NewPostgresService(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		b.pool = pool
		data = pg

	default:
		log.Println("Using the in-memory data service; data is lost on restart")
		data = datasvc.NewMemoryService()
	}
	b.Data = datasvc.Instrument(data, cfg.DataBackend)

	if fbApp != nil && cfg.FirebaseStorageBucket != "" {
		bucket, err := fbApp.DefaultBucket(ctx)
		if err != nil {
			log.Printf("Warning: Could not initialize destination images: %v", err)
		} else {
			b.Bucket = bucket
		}
	}

	return b, nil
}

func openPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("Successfully connected to Postgres")
	return pool, nil
}

// Ping checks that the data service answers.
func (b *Backend) Ping(ctx context.Context) error {
	if b.pool != nil {
		return b.pool.Ping(ctx)
	}
	_, err := b.Data.ReadOnce(ctx, "health")
	return err
}

func (b *Backend) Close() {
	if err := b.Data.Close(); err != nil {
		log.Printf("Data service close error: %v", err)
	}
	if b.pool != nil {
		log.Println("Closing database connection pool...")
		b.pool.Close()
	}
}
