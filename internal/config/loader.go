package config

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/roboricindustries/raycon-changefeed/pkg/pubsub"
	"github.com/roboricindustries/raycon-changefeed/pkg/schemas/changes"
	"github.com/spf13/viper"
)

const (
	TransportAMQP  = "amqp"
	TransportRedis = "redis"
	TransportNone  = "none"
)

type AppConfig struct {
	AppPrefix string         `mapstructure:"app_prefix"`
	Transport string         `mapstructure:"transport"`
	AMQP      AMQPConfig     `mapstructure:"amqp"`
	Redis     RedisConfig    `mapstructure:"redis"`
	Database  DatabaseConfig `mapstructure:"database"`
	Notify    NotifyConfig   `mapstructure:"notify"`
	Metrics   MetricsConfig  `mapstructure:"metrics"`
	Entities  []EntityConfig `mapstructure:"entities"`
}

type AMQPConfig struct {
	URL                string `mapstructure:"url"`
	Exchange           string `mapstructure:"exchange"`
	PublishPoolSize    int    `mapstructure:"publish_pool_size"`
	PoolRetryDelayMs   int    `mapstructure:"pool_retry_delay_ms"`
	ConnTimeoutSeconds int    `mapstructure:"conn_timeout_seconds"`
	RetryAttempts      int    `mapstructure:"retry_attempts"`
	RetryDelayMs       int    `mapstructure:"retry_delay_ms"`
	Confirm            bool   `mapstructure:"confirm"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type TableConfig struct {
	Entity string `mapstructure:"entity"`
	Table  string `mapstructure:"table"`
}

type DatabaseConfig struct {
	DSN    string        `mapstructure:"dsn"`
	Tables []TableConfig `mapstructure:"tables"`
}

type NotifyConfig struct {
	// Detached publishes from a background goroutine instead of the caller's.
	Detached               bool   `mapstructure:"detached"`
	TimeoutMs              int    `mapstructure:"timeout_ms"`
	SoftDeleteField        string `mapstructure:"soft_delete_field"`
	LinkEntity             string `mapstructure:"link_entity"`
	HoldingCacheSize       int    `mapstructure:"holding_cache_size"`
	HoldingCacheTTLSeconds int    `mapstructure:"holding_cache_ttl_seconds"`
}

type MetricsConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"` // e.g., 0.0.0.0:9090
}

// Load reads a YAML file. CHANGEFEED_* environment variables override keys,
// e.g. CHANGEFEED_AMQP_URL.
func Load(path string) (*AppConfig, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return decode(v)
}

// Parse reads YAML from memory.
func Parse(data []byte) (*AppConfig, error) {
	v := newViper()
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("CHANGEFEED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal only sees keys viper knows about, so every scalar key gets a
	// default for its env override to apply.
	v.SetDefault("app_prefix", "")
	v.SetDefault("transport", TransportNone)
	v.SetDefault("amqp.url", "")
	v.SetDefault("amqp.exchange", changes.EntityChangedMeta.Exchange)
	v.SetDefault("amqp.publish_pool_size", 16)
	v.SetDefault("amqp.pool_retry_delay_ms", 50)
	v.SetDefault("amqp.conn_timeout_seconds", 30)
	v.SetDefault("amqp.retry_attempts", 5)
	v.SetDefault("amqp.retry_delay_ms", 500)
	v.SetDefault("amqp.confirm", false)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("database.dsn", "")
	v.SetDefault("notify.detached", false)
	v.SetDefault("notify.timeout_ms", 5000)
	v.SetDefault("notify.soft_delete_field", "")
	v.SetDefault("notify.link_entity", "")
	v.SetDefault("notify.holding_cache_size", 0)
	v.SetDefault("notify.holding_cache_ttl_seconds", 0)
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen_addr", ":9090")
	return v
}

func decode(v *viper.Viper) (*AppConfig, error) {
	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *AppConfig) normalize() {
	c.Transport = strings.ToLower(strings.TrimSpace(c.Transport))
	if c.Transport == "" {
		c.Transport = TransportNone
	}
	if c.Notify.TimeoutMs < 0 {
		c.Notify.TimeoutMs = 0
	}
	if c.Notify.HoldingCacheSize < 0 {
		c.Notify.HoldingCacheSize = 0
	}
}

func (c *AppConfig) Validate() error {
	switch c.Transport {
	case TransportAMQP:
		if c.AMQP.URL == "" {
			return fmt.Errorf("amqp.url is required for transport %q", c.Transport)
		}
		if c.AMQP.Exchange == "" {
			return fmt.Errorf("amqp.exchange is required for transport %q", c.Transport)
		}
	case TransportRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required for transport %q", c.Transport)
		}
	case TransportNone:
	default:
		return fmt.Errorf("unknown transport %q", c.Transport)
	}
	if strings.Contains(c.AppPrefix, "*") || strings.Contains(c.AppPrefix, "#") {
		return fmt.Errorf("app_prefix must not contain wildcards")
	}
	seen := make(map[string]bool, len(c.Entities))
	for i, e := range c.Entities {
		if e.Name == "" {
			return fmt.Errorf("entities[%d]: name is required", i)
		}
		if seen[e.Name] {
			return fmt.Errorf("entities[%d]: duplicate entity %q", i, e.Name)
		}
		seen[e.Name] = true
	}
	return nil
}

func (c *AppConfig) RabbitMQ() pubsub.RabbitMQConfig {
	return pubsub.RabbitMQConfig{
		URL:                c.AMQP.URL,
		Exchange:           c.AMQP.Exchange,
		AppID:              c.AppPrefix,
		PublishPoolSize:    c.AMQP.PublishPoolSize,
		PoolRetryDelayMs:   c.AMQP.PoolRetryDelayMs,
		ConnTimeoutSeconds: c.AMQP.ConnTimeoutSeconds,
		RetryAttempts:      c.AMQP.RetryAttempts,
		RetryDelay:         time.Duration(c.AMQP.RetryDelayMs) * time.Millisecond,
		Confirm:            c.AMQP.Confirm,
	}
}

func (c *AppConfig) RedisOptions() pubsub.RedisConfig {
	return pubsub.RedisConfig{Addr: c.Redis.Addr, Password: c.Redis.Password, DB: c.Redis.DB}
}

func (c DatabaseConfig) TableMap() map[string]string {
	out := make(map[string]string, len(c.Tables))
	for _, t := range c.Tables {
		if t.Entity != "" && t.Table != "" {
			out[t.Entity] = t.Table
		}
	}
	return out
}

func (c NotifyConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

func (c NotifyConfig) HoldingCacheTTL() time.Duration {
	return time.Duration(c.HoldingCacheTTLSeconds) * time.Second
}
