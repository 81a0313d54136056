// Package bootstrap connects the backends a process needs and prepares the
// database for use.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"instafeed/internal/cache"
	"instafeed/internal/config"
	"instafeed/internal/database"
	"instafeed/internal/middleware"
	"instafeed/internal/models"
	"instafeed/internal/seed"
	"instafeed/internal/storage"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	// Migrate forces a schema migration even in production.
	Migrate bool
	// SeedScenario loads the named scenario when the database has no
	// accounts. Ignored in production.
	SeedScenario string
}

// Runtime holds the connected backends.
type Runtime struct {
	DB    *gorm.DB
	Redis *redis.Client
	Blobs storage.BlobStore
}

// InitRuntime connects to the database, Redis (optional) and blob storage.
func InitRuntime(ctx context.Context, cfg *config.Config, opts Options) (*Runtime, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	if opts.Migrate && cfg.IsProduction() {
		if err := database.Migrate(db); err != nil {
			return nil, err
		}
	}

	// Init Redis (may result in nil client if unreachable)
	cache.InitRedis(cfg.RedisURL)

	blobs, err := NewBlobStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if !cfg.IsProduction() && opts.SeedScenario != "" {
		if err := SeedIfEmpty(ctx, db, opts.SeedScenario); err != nil {
			return nil, fmt.Errorf("failed to seed %q: %w", opts.SeedScenario, err)
		}
	}

	return &Runtime{DB: db, Redis: cache.GetClient(), Blobs: blobs}, nil
}

// NewBlobStore returns an S3 store when a bucket is configured and an
// in-memory store otherwise.
func NewBlobStore(ctx context.Context, cfg *config.Config) (storage.BlobStore, error) {
	if cfg.S3Bucket == "" {
		middleware.Logger.Warn("S3_BUCKET not set, uploads are kept in memory")
		return storage.NewMemoryStore("http://localhost:" + cfg.Port + "/media"), nil
	}

	store, err := storage.NewS3Store(ctx, storage.S3Config{
		Bucket:        cfg.S3Bucket,
		Region:        cfg.S3Region,
		Endpoint:      cfg.S3Endpoint,
		PublicBaseURL: cfg.S3PublicBaseURL,
	})
	if err != nil {
		return nil, err
	}
	if err := store.CheckBucketAccess(ctx); err != nil {
		if cfg.IsProduction() {
			return nil, err
		}
		middleware.Logger.Warn("S3 bucket not reachable, uploads will fail",
			slog.String("bucket", cfg.S3Bucket), slog.String("error", err.Error()))
	}
	return store, nil
}

// SeedIfEmpty loads a scenario into a database that has no accounts yet.
func SeedIfEmpty(ctx context.Context, db *gorm.DB, scenario string) error {
	var n int64
	if err := db.WithContext(ctx).Model(&models.Account{}).Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		middleware.Logger.Info("database already has accounts, skipping seed", slog.Int64("accounts", n))
		return nil
	}

	sc, err := seed.LoadScenario(scenario)
	if err != nil {
		return err
	}
	_, err = seed.NewSeeder(db).Run(ctx, sc)
	return err
}
