package config

import (
	"log/slog"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from a file and environment variables.
func Load(logger *slog.Logger, fileName string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.auth.enabled", false)
	v.SetDefault("server.auth.jwtSecret", "default-secret-key-change-me")
	v.SetDefault("server.connectionLimit.maxPerUser", 1)
	v.SetDefault("server.connectionLimit.mode", "cycle")
	v.SetDefault("transport.readTimeout", "60s")
	v.SetDefault("persistence.baseURL", "http://localhost:5000")
	v.SetDefault("persistence.requestTimeout", "5s")
	v.SetDefault("presence.redis.enabled", false)
	v.SetDefault("presence.redis.url", "redis://localhost:6379")
	v.SetDefault("presence.redis.ttl", "120s")
	v.SetDefault("logging.level", "info")

	v.SetConfigName(fileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		logger.Warn("Config file not found. ignoring error and relying on defaults/env vars")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
