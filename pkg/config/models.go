package config

import "time"

type Config struct {
	Server      ServerConfig
	Transport   TransportConfig
	Persistence PersistenceConfig
	Presence    PresenceConfig
	Logging     LoggingConfig
}

type ServerConfig struct {
	Address         string
	Auth            AuthConfig
	ConnectionLimit ConnectionLimitConfig `mapstructure:"connectionLimit"`
}

type AuthConfig struct {
	// Enabled gates JWT verification on the websocket upgrade. Identity is
	// established upstream either way; announce payloads are accepted as-is.
	Enabled   bool
	JWTSecret string `mapstructure:"jwtSecret"`
}

type ConnectionLimitConfig struct {
	MaxPerUser int    `mapstructure:"maxPerUser"`
	Mode       string `mapstructure:"mode"` // "reject" or "cycle"
}

type TransportConfig struct {
	ReadTimeout time.Duration `mapstructure:"readTimeout"`
}

// PersistenceConfig points at the external CRUD service that owns chats,
// tasks, polls and user records.
type PersistenceConfig struct {
	BaseURL        string        `mapstructure:"baseURL"`
	RequestTimeout time.Duration `mapstructure:"requestTimeout"`
}

type PresenceConfig struct {
	Redis RedisMirrorConfig
}

// RedisMirrorConfig enables a write-only mirror of online/offline state so
// sibling services can answer presence queries without reaching this process.
type RedisMirrorConfig struct {
	Enabled bool
	URL     string
	TTL     time.Duration
}

type LoggingConfig struct {
	Level string
}
