package repo

import (
	"context"

	"mahjong-ledger/internal/config"
	"mahjong-ledger/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var RDB *redis.Client

// InitRedis connects when an address is configured. Without one the service
// runs uncached and websocket viewers only get the state sent on connect.
func InitRedis() {
	conf := config.GlobalConfig.Redis
	if conf.Addr == "" {
		logger.Log.Warn("Redis address not configured, running without cache")
		return
	}
	RDB = redis.NewClient(&redis.Options{
		Addr:     conf.Addr,
		Password: conf.Password,
		DB:       conf.DB,
	})

	_, err := RDB.Ping(context.Background()).Result()
	if err != nil {
		logger.Log.Fatal("Failed to connect to Redis", zap.Error(err))
	}
}
