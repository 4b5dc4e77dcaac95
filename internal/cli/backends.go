package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aretw0/voicesurvey/internal/config"
	"github.com/aretw0/voicesurvey/pkg/adapters/memory"
	mongoAdapter "github.com/aretw0/voicesurvey/pkg/adapters/mongo"
	"github.com/aretw0/voicesurvey/pkg/adapters/postgres"
	redisAdapter "github.com/aretw0/voicesurvey/pkg/adapters/redis"
	"github.com/aretw0/voicesurvey/pkg/adapters/sqlite"
	"github.com/aretw0/voicesurvey/pkg/domain"
	"github.com/aretw0/voicesurvey/pkg/persistence/middleware"
	"github.com/aretw0/voicesurvey/pkg/ports"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Backends groups the persistence resources selected by the configuration.
type Backends struct {
	Store  ports.ParticipantStore
	Locker ports.DistributedLocker
	// Health reports whether the store is reachable. Nil for the memory store.
	Health func(context.Context) error

	closers []func() error
}

// Close releases every connection opened by OpenBackends.
func (b *Backends) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OpenBackends connects the participant store and, when enabled, the distributed lock.
// Unreachable backends fail fast so a misconfigured replica never accepts calls.
func OpenBackends(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backends, error) {
	b := &Backends{}
	var redisClient *redis.Client

	newRedisClient := func() (*redis.Client, error) {
		if redisClient != nil {
			return redisClient, nil
		}
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		b.closers = append(b.closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("%w: redis %s: %w", domain.ErrStoreUnavailable, cfg.Redis.Addr, err)
		}
		redisClient = client
		return client, nil
	}

	switch cfg.Store.Type {
	case config.StoreMemory:
		b.Store = memory.NewStore()

	case config.StoreRedis:
		client, err := newRedisClient()
		if err != nil {
			_ = b.Close()
			return nil, err
		}
		store := redisAdapter.NewFromClient(client,
			redisAdapter.WithPrefix(cfg.Redis.Prefix),
			redisAdapter.WithTTL(cfg.Redis.TTL),
		)
		b.Store = store
		b.Health = store.Ping

	case config.StoreMongo:
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Mongo.URI))
		if err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("%w: mongo: %w", domain.ErrStoreUnavailable, err)
		}
		b.closers = append(b.closers, func() error {
			return client.Disconnect(context.Background())
		})
		if err := client.Ping(ctx, nil); err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("%w: mongo: %w", domain.ErrStoreUnavailable, err)
		}
		b.Store = mongoAdapter.NewStore(client, cfg.Mongo.Database, cfg.Mongo.Collection,
			mongoAdapter.WithTimeout(cfg.Mongo.Timeout),
		)
		b.Health = func(ctx context.Context) error {
			if err := client.Ping(ctx, nil); err != nil {
				return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
			}
			return nil
		}

	case config.StoreSQLite:
		store, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, store.Close)
		b.Store = store
		b.Health = store.Ping

	case config.StorePostgres:
		store, err := postgres.Open(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, store.Close)
		b.Store = store
		b.Health = store.Ping

	default:
		return nil, fmt.Errorf("unknown store type %q", cfg.Store.Type)
	}

	store, err := protect(b.Store, cfg.Store)
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	b.Store = store

	if cfg.Redis.Lock {
		client, err := newRedisClient()
		if err != nil {
			_ = b.Close()
			return nil, err
		}
		b.Locker = redisAdapter.NewLocker(client, "")
		logger.Debug("distributed lock enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.LockTTL)
	}

	logger.Info("participant store ready", "type", cfg.Store.Type)
	return b, nil
}

// protect wraps the store with the destination masking and encryption middlewares.
func protect(store ports.ParticipantStore, cfg config.StoreConfig) (ports.ParticipantStore, error) {
	var mws []middleware.Middleware
	if cfg.MaskDestination {
		mws = append(mws, middleware.NewPIIMiddleware(4))
	}
	if cfg.EncryptionKey != "" {
		active, err := config.DecodeKey(cfg.EncryptionKey)
		if err != nil {
			return nil, err
		}
		encCfg := middleware.EncryptionConfig{ActiveKey: active}
		for _, k := range cfg.FallbackKeys {
			key, err := config.DecodeKey(k)
			if err != nil {
				return nil, err
			}
			encCfg.FallbackKeys = append(encCfg.FallbackKeys, key)
		}
		enc, err := middleware.NewEncryptionMiddleware(encCfg)
		if err != nil {
			return nil, err
		}
		mws = append(mws, enc)
	}
	return middleware.Chain(store, mws...), nil
}
