package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Client   ClientConfig
	Server   ServerConfig
	Store    StoreConfig
	Redis    RedisConfig
	Runner   RunnerConfig
	Metrics  MetricsConfig
	Auth     AuthConfig
	LogLevel string
}

// ClientConfig holds settings for the SDK and CLI side.
type ClientConfig struct {
	BaseURL      string
	APIKey       string
	Timeout      time.Duration
	RetryMax     int
	RetryBackoff time.Duration
	PollInterval time.Duration
	PollTimeout  time.Duration
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	RateLimitRPS int
}

// StoreConfig selects the task store backend for the simulator.
type StoreConfig struct {
	Backend       string // "memory" or "redis"
	RetentionDays int
}

type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// RunnerConfig controls the simulated agent execution.
type RunnerConfig struct {
	Concurrency  int
	QueueLatency time.Duration // time a task sits queued before it starts
	RunLatency   time.Duration // time a task spends running before it finishes
	PollInterval time.Duration // how often the runner scans for queued tasks
}

type MetricsConfig struct {
	Enabled bool
	Path    string
}

type AuthConfig struct {
	Enabled   bool
	JWTSecret string
	APIKeys   []string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/aviary")

	setDefaults()

	viper.SetEnvPrefix("AVIARY")
	viper.AutomaticEnv()

	// Config file is optional
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults() {
	// Client defaults
	viper.SetDefault("client.baseurl", "http://localhost:8080")
	viper.SetDefault("client.apikey", "")
	viper.SetDefault("client.timeout", 30*time.Second)
	viper.SetDefault("client.retrymax", 3)
	viper.SetDefault("client.retrybackoff", 1*time.Second)
	viper.SetDefault("client.pollinterval", 5*time.Second)
	viper.SetDefault("client.polltimeout", 10*time.Minute)

	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readtimeout", 30*time.Second)
	viper.SetDefault("server.writetimeout", 30*time.Second)
	viper.SetDefault("server.idletimeout", 120*time.Second)
	viper.SetDefault("server.ratelimitrps", 1000)

	// Store defaults
	viper.SetDefault("store.backend", "memory")
	viper.SetDefault("store.retentiondays", 7)

	// Redis defaults
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.poolsize", 100)
	viper.SetDefault("redis.minidleconns", 10)
	viper.SetDefault("redis.maxretries", 3)
	viper.SetDefault("redis.dialtimeout", 5*time.Second)
	viper.SetDefault("redis.readtimeout", 3*time.Second)
	viper.SetDefault("redis.writetimeout", 3*time.Second)

	// Runner defaults
	viper.SetDefault("runner.concurrency", 10)
	viper.SetDefault("runner.queuelatency", 200*time.Millisecond)
	viper.SetDefault("runner.runlatency", 1*time.Second)
	viper.SetDefault("runner.pollinterval", 100*time.Millisecond)

	// Metrics defaults
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")

	// Auth defaults
	viper.SetDefault("auth.enabled", false)
	viper.SetDefault("auth.jwtsecret", "")
	viper.SetDefault("auth.apikeys", []string{})

	// Logging defaults
	viper.SetDefault("loglevel", "info")
}
