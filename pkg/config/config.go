package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var v = viper.New()

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`

	Platform struct {
		Timezone string `mapstructure:"TIMEZONE"`
		NodeID   int64  `mapstructure:"NODE_ID"`
	} `mapstructure:"PLATFORM"`

	TLS struct {
		Enable   bool   `mapstructure:"ENABLE"`
		CertPath string `mapstructure:"CERT_PATH"`
		KeyPath  string `mapstructure:"KEY_PATH"`
	} `mapstructure:"TLS"`

	Server struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`

	Database struct {
		Type           string `mapstructure:"TYPE"`
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBName         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`

	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`

	ConfigStore struct {
		CacheTTL time.Duration `mapstructure:"CACHE_TTL"`
	} `mapstructure:"CONFIG_STORE"`

	RateLimit struct {
		URLValidatePerMinute int `mapstructure:"URL_VALIDATE_PER_MINUTE"`
	} `mapstructure:"RATE_LIMIT"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))

func LoadConfig() *Config {
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		zap.L().Warn("config file not found, relying on env and defaults", zap.Error(err))
	}

	cfg := defaults()
	if err := v.Unmarshal(cfg); err != nil {
		zap.L().Error("failed to unmarshal config", zap.Error(err))
	}

	return cfg
}

func defaults() *Config {
	cfg := &Config{}
	cfg.AppEnv = "development"
	cfg.AppName = "engage-swap"
	cfg.Platform.Timezone = "Asia/Kolkata"
	cfg.Platform.NodeID = 1
	cfg.Server.Addr = "8080"
	cfg.Server.ReadTimeout = 15 * time.Second
	cfg.Server.WriteTimeout = 15 * time.Second
	cfg.Server.IdleTimeout = 60 * time.Second
	cfg.Database.Type = "postgres"
	cfg.Database.Host = "127.0.0.1"
	cfg.Database.Port = "5432"
	cfg.Database.SSLMode = "disable"
	cfg.Database.Timezone = "UTC"
	cfg.Database.ConnectionPool.MaxIdleConn = 5
	cfg.Database.ConnectionPool.MaxOpenConns = 25
	cfg.Database.ConnectionPool.ConnMaxLifetime = 30 * time.Minute
	cfg.Database.ConnectionPool.ConnMaxIdleTime = 5 * time.Minute
	cfg.Redis.Addr = "127.0.0.1:6379"
	cfg.Redis.PoolSize = 10
	cfg.Redis.PoolTimeout = 4 * time.Second
	cfg.ConfigStore.CacheTTL = 2 * time.Minute
	cfg.RateLimit.URLValidatePerMinute = 30
	return cfg
}
