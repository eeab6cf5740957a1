package service

import (
	"time"

	"mahjong-ledger/internal/config"
	"mahjong-ledger/internal/service/match"
	"mahjong-ledger/internal/service/preset"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	Match  *match.Service
	Preset *preset.Service
}

func NewContainer(db *gorm.DB, rdb *redis.Client) *Container {
	presets := preset.NewService(db)
	return &Container{
		Match:  match.NewService(db, rdb, presets, matchConfig()),
		Preset: presets,
	}
}

func matchConfig() match.Config {
	cfg := match.DefaultConfig()
	if config.GlobalConfig == nil {
		return cfg
	}
	if ttl := config.GlobalConfig.Redis.ViewTTLSeconds; ttl > 0 {
		cfg.ViewTTL = time.Duration(ttl) * time.Second
	}
	if n := config.GlobalConfig.Archive.LedgerTail; n > 0 {
		cfg.LedgerTail = n
	}
	if n := config.GlobalConfig.Archive.Workers; n > 0 {
		cfg.Workers = n
	}
	cfg.Defaults = config.GlobalConfig.Table.Rules()
	return cfg
}
