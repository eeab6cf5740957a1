package repo

import (
	"fmt"
	"log"
	"strings"

	"mahjong-ledger/internal/config"
	"mahjong-ledger/internal/model"
	"mahjong-ledger/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var DB *gorm.DB

// Dialector picks the gorm driver named in the config.
func Dialector(conf config.DatabaseConfig) (gorm.Dialector, error) {
	switch strings.ToLower(strings.TrimSpace(conf.Driver)) {
	case "", "postgres", "postgresql":
		return postgres.Open(conf.DSN), nil
	case "mysql":
		return mysql.Open(conf.DSN), nil
	case "sqlite", "sqlite3":
		return sqlite.Open(conf.DSN), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", conf.Driver)
	}
}

func InitDB() {
	conf := config.GlobalConfig.Database
	dialector, err := Dialector(conf)
	if err != nil {
		logger.Log.Fatal("Invalid database config", zap.Error(err))
	}

	DB, err = gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		logger.Log.Fatal("Failed to connect to database",
			zap.String("driver", conf.Driver),
			zap.Error(err),
		)
	}

	if err := DB.AutoMigrate(model.AllModels()...); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
}
