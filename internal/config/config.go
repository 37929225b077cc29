package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	LogFormat         string        `mapstructure:"log_format" yaml:"log_format"` // console or json

	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`

	JWTSecret   string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	JWTTTL      time.Duration `mapstructure:"jwt_ttl" yaml:"jwt_ttl"`

	PubSub PubSubConfig `mapstructure:"pubsub" yaml:"pubsub"`
	WS     WSConfig     `mapstructure:"ws" yaml:"ws"`
	Chat   ChatConfig   `mapstructure:"chat" yaml:"chat"`
}

// PubSubConfig selects the fan-out substrate.
type PubSubConfig struct {
	Driver      string `mapstructure:"driver" yaml:"driver"` // memory or redis
	RedisAddr   string `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisPrefix string `mapstructure:"redis_prefix" yaml:"redis_prefix"`
}

// WSConfig tunes websocket connections.
type WSConfig struct {
	SendBuffer       int           `mapstructure:"send_buffer" yaml:"send_buffer"`
	InboundRateLimit int           `mapstructure:"inbound_rate_limit" yaml:"inbound_rate_limit"` // frames per minute
	PingInterval     time.Duration `mapstructure:"ping_interval" yaml:"ping_interval"`
	OpTimeout        time.Duration `mapstructure:"op_timeout" yaml:"op_timeout"`
}

// ChatConfig tunes message rendering and history.
type ChatConfig struct {
	PreviewLength int `mapstructure:"preview_length" yaml:"preview_length"`
	HistoryLimit  int `mapstructure:"history_limit" yaml:"history_limit"`
}

const (
	PubSubMemory = "memory"
	PubSubRedis  = "redis"
)

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		LogFormat:         "console",
		DatabasePath:      "wirechat.db",
		JWTSecret:         "change-me",
		JWTIssuer:         "wirechat",
		JWTAudience:       "wirechat-clients",
		JWTTTL:            24 * time.Hour,
		PubSub: PubSubConfig{
			Driver:      PubSubMemory,
			RedisAddr:   "localhost:6379",
			RedisPrefix: "wirechat:",
		},
		WS: WSConfig{
			SendBuffer:       64,
			InboundRateLimit: 120,
			PingInterval:     30 * time.Second,
			OpTimeout:        5 * time.Second,
		},
		Chat: ChatConfig{
			PreviewLength: 50,
			HistoryLimit:  50,
		},
	}
}
