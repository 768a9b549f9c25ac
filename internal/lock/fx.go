package lock

import (
	"context"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/vetbill/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("lock",
	fx.Provide(NewLocker),
)

// NewLocker picks the Redis backend when REDIS_ADDR is set and falls back to
// the in-process keyed mutex otherwise.
func NewLocker(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) Locker {
	if !cfg.Redis.Enabled() {
		log.Info("using in-process lock backend")
		return NewKeyedMutex(cfg.Lock.Timeout)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})

	log.Info("using redis lock backend", zap.String("addr", cfg.Redis.Addr))
	return NewRedisLocker(client, cfg.Lock.TTL, cfg.Lock.Timeout, log.Named("lock"))
}
