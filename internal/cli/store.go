package cli

import (
	"context"
	"fmt"
	"log/slog"

	backend "github.com/redis/go-redis/v9"

	"github.com/aretw0/strand/pkg/adapters/file"
	"github.com/aretw0/strand/pkg/adapters/memory"
	"github.com/aretw0/strand/pkg/adapters/redis"
	"github.com/aretw0/strand/pkg/persistence/middleware"
	"github.com/aretw0/strand/pkg/ports"
	"github.com/aretw0/strand/pkg/session"
)

// Persistence bundles the configured store and the thread manager built on it.
type Persistence struct {
	Store    ports.CheckpointStore
	Sessions *session.Manager
	close    func() error
}

// Close releases the backend connection, if any.
func (p *Persistence) Close() error {
	if p.close == nil {
		return nil
	}
	return p.close()
}

// OpenPersistence builds the checkpoint store described by cfg, wraps it with the
// configured middleware and attaches a distributed locker for redis.
func OpenPersistence(ctx context.Context, cfg Config, logger *slog.Logger) (*Persistence, error) {
	p := &Persistence{}
	var sessionOpts []session.Option
	sessionOpts = append(sessionOpts, session.WithLogger(logger))

	var base ports.CheckpointStore
	switch cfg.Store.Driver {
	case "memory":
		base = memory.NewStore()
	case "file":
		base = file.New(cfg.Store.Path)
	case "redis":
		client := backend.NewClient(&backend.Options{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Store.Redis.Addr, err)
		}
		opts := []redis.Option{redis.WithPrefix(cfg.Store.Redis.Prefix)}
		if cfg.Store.TTL > 0 {
			opts = append(opts, redis.WithTTL(cfg.Store.TTL))
		}
		base = redis.NewFromClient(client, opts...)
		sessionOpts = append(sessionOpts, session.WithLocker(redis.NewLocker(client, cfg.Store.Redis.Prefix)))
		p.close = client.Close
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	mws, err := storeMiddleware(cfg.Secrets)
	if err != nil {
		if p.close != nil {
			_ = p.close()
		}
		return nil, err
	}
	p.Store = middleware.Chain(base, mws...)
	p.Sessions = session.NewManager(p.Store, sessionOpts...)

	logger.Debug("persistence ready",
		"driver", cfg.Store.Driver,
		"encrypted", cfg.Secrets.EncryptionKey != "",
		"pii_patterns", len(cfg.Secrets.PIIPatterns))
	return p, nil
}

// storeMiddleware orders masking before encryption so masked values are what gets sealed.
func storeMiddleware(secrets SecretsConfig) ([]middleware.Middleware, error) {
	var mws []middleware.Middleware
	if len(secrets.PIIPatterns) > 0 {
		mws = append(mws, middleware.NewPIIMiddleware(secrets.PIIPatterns))
	}
	if secrets.EncryptionKey != "" {
		active, err := decodeKey(secrets.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("encryption_key: %w", err)
		}
		enc := middleware.EncryptionConfig{ActiveKey: active}
		for i, k := range secrets.FallbackKeys {
			key, err := decodeKey(k)
			if err != nil {
				return nil, fmt.Errorf("fallback_keys[%d]: %w", i, err)
			}
			enc.FallbackKeys = append(enc.FallbackKeys, key)
		}
		mws = append(mws, middleware.NewEncryptionMiddleware(enc))
	}
	return mws, nil
}
