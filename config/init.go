package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Конечная структура конфигурации приложения.
// Расширяем по мере роста проекта.
type Config struct {
	Server struct {
		Address  string `mapstructure:"address"`   // 0.0.0.0
		HTTPPort string `mapstructure:"http_port"` // 8080
	} `mapstructure:"server"`

	Auth struct {
		AccessSecret  string `mapstructure:"access_secret"`  // ключ подписи access-токенов (HS256)
		SessionCookie string `mapstructure:"session_cookie"` // имя cookie браузерной сессии
	} `mapstructure:"auth"`

	Internal struct {
		SharedSecret string `mapstructure:"shared_secret"` // секрет для /internal/* (webhook биллинга, планировщик)
	} `mapstructure:"internal"`

	Logging struct {
		Level  string `mapstructure:"level"`  // trace|debug|info|warning|error|fatal
		Format string `mapstructure:"format"` // text|json
		File   string `mapstructure:"file"`   // путь/префикс файла, пусто — только stdout
	} `mapstructure:"logs"`

	Database struct {
		Driver string `mapstructure:"driver"` // "postgres" | "mysql"
		DSN    string `mapstructure:"dsn"`
	} `mapstructure:"database"`

	Redis struct {
		Addr     string `mapstructure:"addr"` // пусто — in-memory счётчики rate limit
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`

	Tiers struct {
		File string `mapstructure:"file"` // yaml с переопределением лимитов тарифов (опционально)
	} `mapstructure:"tiers"`

	Cleanup struct {
		SweepInterval time.Duration `mapstructure:"sweep_interval"` // 0 — только внешний планировщик
	} `mapstructure:"cleanup"`
}

// Load читает конфиг из env/файла с дефолтами.
func Load() (*Config, error) {
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Дефолты (минимальный рабочий набор)
	viper.SetDefault("server.address", "0.0.0.0")
	viper.SetDefault("server.http_port", "8080")

	viper.SetDefault("auth.access_secret", "CHANGE_ME")
	viper.SetDefault("auth.session_cookie", "lh_session")
	viper.SetDefault("internal.shared_secret", "CHANGE_ME")

	// Логи — дефолты
	viper.SetDefault("logs.level", "info")
	viper.SetDefault("logs.format", "text")
	viper.SetDefault("logs.file", "")

	viper.SetDefault("database.driver", "postgres")
	viper.SetDefault("database.dsn", "")

	viper.SetDefault("redis.addr", "")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("tiers.file", "")
	viper.SetDefault("cleanup.sweep_interval", time.Duration(0))

	// Источник файла
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			viper.AddConfigPath(filepath.Join(xdg, "linkhub"))
		}
		viper.AddConfigPath("/etc/linkhub")
	}

	// Чтение файла (опционально)
	if err := viper.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) {
			return nil, fmt.Errorf("config read error: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config unmarshal error: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func validate(c *Config) error {
	if strings.TrimSpace(c.Auth.AccessSecret) == "" || c.Auth.AccessSecret == "CHANGE_ME" {
		return errors.New("auth.access_secret must be set (not empty and not CHANGE_ME)")
	}
	if strings.TrimSpace(c.Internal.SharedSecret) == "" || c.Internal.SharedSecret == "CHANGE_ME" {
		return errors.New("internal.shared_secret must be set (not empty and not CHANGE_ME)")
	}
	if strings.TrimSpace(c.Server.Address) == "" {
		return errors.New("server.address must not be empty")
	}
	if strings.TrimSpace(c.Server.HTTPPort) == "" {
		return errors.New("server.http_port must not be empty")
	}
	if strings.TrimSpace(c.Database.Driver) == "" {
		return errors.New("database.driver must not be empty")
	}
	return nil
}
