package events

import (
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/casebill/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("events",
	fx.Provide(NewOutboxPublisher),
	fx.Provide(provideRelay),
)

type relayParams struct {
	fx.In

	DB    *gorm.DB
	Redis redis.UniversalClient `optional:"true"`
	Clock clock.Clock
	Log   *zap.Logger
}

func provideRelay(p relayParams) *Relay {
	var broker Publisher
	if p.Redis == nil {
		broker = NewLogPublisher(p.Log)
	} else {
		broker = NewRedisPublisher(p.Redis)
	}
	return NewRelay(p.DB, broker, p.Clock, p.Log)
}
