package config

import (
	"log"
	"strings"

	"mahjong-ledger/internal/scoring"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Table    TableConfig    `mapstructure:"table"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
}

type ServerConfig struct {
	Port     string `mapstructure:"port"`
	Mode     string `mapstructure:"mode"` // debug, release
	LogLevel string `mapstructure:"logLevel"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // postgres, mysql, sqlite
	DSN    string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Addr           string `mapstructure:"addr"`
	Password       string `mapstructure:"password"`
	DB             int    `mapstructure:"db"`
	ViewTTLSeconds int    `mapstructure:"viewTTLSeconds"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Expire int    `mapstructure:"expire"` // hours
}

// TableConfig holds the rules new matches start with.
type TableConfig struct {
	Base            int64    `mapstructure:"base"`
	PointValue      int64    `mapstructure:"pointValue"`
	Players         []string `mapstructure:"players"`
	DrawKeepsDealer bool     `mapstructure:"drawKeepsDealer"`
	AutoDealerBonus bool     `mapstructure:"autoDealerBonus"`
	RakePerSelfDraw int64    `mapstructure:"rakePerSelfDraw"`
	RakeCap         int64    `mapstructure:"rakeCap"`
	HousePlayer     int      `mapstructure:"housePlayer"`
}

type ArchiveConfig struct {
	LedgerTail int `mapstructure:"ledgerTail"`
	Workers    int `mapstructure:"workers"`
}

var GlobalConfig *Config

func setDefaults(v *viper.Viper) {
	def := scoring.DefaultConfig()
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("redis.viewTTLSeconds", 300)
	v.SetDefault("jwt.expire", 24*30)
	v.SetDefault("table.base", def.Base)
	v.SetDefault("table.pointValue", def.PointValue)
	v.SetDefault("table.players", def.Players[:])
	v.SetDefault("table.drawKeepsDealer", def.DrawKeepsDealer)
	v.SetDefault("table.autoDealerBonus", def.AutoDealerBonus)
	v.SetDefault("archive.ledgerTail", 20)
	v.SetDefault("archive.workers", 4)
}

func LoadConfig(path string) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("MAHJONG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		log.Fatalf("Error reading config file, %s", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		log.Fatalf("Unable to decode into struct, %v", err)
	}
	GlobalConfig = &cfg
}

// Rules converts the configured table defaults into engine settings.
func (t TableConfig) Rules() scoring.Config {
	cfg := scoring.DefaultConfig()
	cfg.Base = t.Base
	cfg.PointValue = t.PointValue
	cfg.DrawKeepsDealer = t.DrawKeepsDealer
	cfg.AutoDealerBonus = t.AutoDealerBonus
	cfg.RakePerSelfDraw = t.RakePerSelfDraw
	cfg.RakeCap = t.RakeCap
	cfg.HousePlayer = t.HousePlayer
	for i := 0; i < len(t.Players) && i < scoring.NumPlayers; i++ {
		if name := strings.TrimSpace(t.Players[i]); name != "" {
			cfg.Players[i] = name
		}
	}
	return cfg
}
