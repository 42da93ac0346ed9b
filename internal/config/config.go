package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"merchshop/internal/catalog"
)

// Config is the whole service configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	MySQL   MySQLConfig   `mapstructure:"mysql"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Ledger  LedgerConfig  `mapstructure:"ledger"`
	Log     LogConfig     `mapstructure:"log"`
	Catalog CatalogConfig `mapstructure:"catalog"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// WorkerID seeds the record number generator; unique per instance
	WorkerID        int64         `mapstructure:"worker_id"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	LedgerEvents string `mapstructure:"ledger_events"`
}

type AuthConfig struct {
	SecretKey string        `mapstructure:"secret_key"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

const (
	StorageMySQL  = "mysql"
	StorageMemory = "memory"

	LockBackendLocal = "local"
	LockBackendRedis = "redis"
)

type LedgerConfig struct {
	StartingBalance   int64         `mapstructure:"starting_balance"`
	MaxRetries        int           `mapstructure:"max_retries"`
	RetryBackoff      time.Duration `mapstructure:"retry_backoff"`
	Storage           string        `mapstructure:"storage"`
	LockBackend       string        `mapstructure:"lock_backend"`
	LockTTL           time.Duration `mapstructure:"lock_ttl"`
	MaxPublishRetries int           `mapstructure:"max_publish_retries"`
	RelayInterval     time.Duration `mapstructure:"relay_interval"`
	RelayBatchSize    int           `mapstructure:"relay_batch_size"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type CatalogConfig struct {
	Items map[string]int64 `mapstructure:"items"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("server.worker_id", 1)

	v.SetDefault("mysql.host", "localhost")
	v.SetDefault("mysql.port", 3306)
	v.SetDefault("mysql.user", "root")
	v.SetDefault("mysql.password", "")
	v.SetDefault("mysql.database", "merchshop")
	v.SetDefault("mysql.max_open_conns", 50)
	v.SetDefault("mysql.max_idle_conns", 10)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic.ledger_events", "ledger-events")

	// registered so MERCHSHOP_AUTH_SECRET_KEY is seen by Unmarshal
	v.SetDefault("auth.secret_key", "")
	v.SetDefault("auth.token_ttl", 30*time.Minute)

	v.SetDefault("ledger.starting_balance", 1000)
	v.SetDefault("ledger.max_retries", 3)
	v.SetDefault("ledger.retry_backoff", 20*time.Millisecond)
	v.SetDefault("ledger.storage", StorageMySQL)
	v.SetDefault("ledger.lock_backend", LockBackendLocal)
	v.SetDefault("ledger.lock_ttl", 10*time.Second)
	v.SetDefault("ledger.max_publish_retries", 5)
	v.SetDefault("ledger.relay_interval", 100*time.Millisecond)
	v.SetDefault("ledger.relay_batch_size", 100)

	v.SetDefault("log.level", "info")
}

// LoadConfig reads the yaml file at configPath. Every key can be overridden
// from the environment, e.g. MERCHSHOP_AUTH_SECRET_KEY for auth.secret_key.
// An empty configPath uses defaults and environment only.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("MERCHSHOP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if len(cfg.Catalog.Items) == 0 {
		cfg.Catalog.Items = make(map[string]int64, len(catalog.DefaultItems))
		for name, price := range catalog.DefaultItems {
			cfg.Catalog.Items[name] = price
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Auth.SecretKey == "" {
		return fmt.Errorf("auth.secret_key is required")
	}
	if c.Ledger.StartingBalance < 0 {
		return fmt.Errorf("ledger.starting_balance must not be negative")
	}
	if c.Ledger.MaxRetries < 0 {
		return fmt.Errorf("ledger.max_retries must not be negative")
	}
	switch c.Ledger.Storage {
	case StorageMySQL, StorageMemory:
	default:
		return fmt.Errorf("ledger.storage: unknown backend %q", c.Ledger.Storage)
	}
	switch c.Ledger.LockBackend {
	case LockBackendLocal, LockBackendRedis:
	default:
		return fmt.Errorf("ledger.lock_backend: unknown backend %q", c.Ledger.LockBackend)
	}
	return nil
}

// DSN is the go-sql-driver/mysql data source name.
func (c MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Database,
	)
}
