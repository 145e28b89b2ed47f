package lock

import (
	"context"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/casebill/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const keyPrefix = "casebill:lock:"

var Module = fx.Module("lock",
	fx.Provide(NewRedisClient),
	fx.Provide(NewLocker),
)

// NewRedisClient returns nil when REDIS_ADDR is empty.
func NewRedisClient(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (redis.UniversalClient, error) {
	if !cfg.Redis.Enabled() {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
		OnStop: func(ctx context.Context) error {
			log.Info("closing redis client")
			return client.Close()
		},
	})
	return client, nil
}

func NewLocker(client redis.UniversalClient, log *zap.Logger) Locker {
	if client == nil {
		log.Warn("redis not configured, generation locks are process-local")
		return NewLocalLocker()
	}
	return NewRedisLocker(client, keyPrefix)
}
