// Package configure loads the service configuration from defaults, an optional
// YAML file, environment variables, and command-line flags, and initializes the
// global logger.
package configure

import (
	"reflect"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int           `mapstructure:"burst"`
	RefillInterval time.Duration `mapstructure:"refill_interval"`
}

// MongoConfig points the presence store at a MongoDB deployment. An empty URI
// disables durable presence entirely.
type MongoConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

// RedisConfig enables the optional Redis presence mirror. An empty address
// disables it.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// StorageConfig groups the storage collaborators and the bound on how long any
// single storage call may block a connection's presence protocol.
type StorageConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
	Mongo   MongoConfig   `mapstructure:"mongo"`
	Redis   RedisConfig   `mapstructure:"redis"`
}

// EmitConfig secures the internal /emit endpoint used by the message and
// notification services to push events into rooms.
type EmitConfig struct {
	Secret string `mapstructure:"secret"`
}

// Config holds the full runtime configuration for the Pulse server.
type Config struct {
	Level      string `mapstructure:"level"`
	ConfigFile string `mapstructure:"config"`

	Addr            string        `mapstructure:"addr"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	MaxMessageSize  int64         `mapstructure:"max_message_size"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Emit      EmitConfig      `mapstructure:"emit"`
}

func checkErr(err error) {
	if err != nil {
		zap.S().Fatalw("config",
			"error", err,
		)
	}
}

// New loads the configuration in precedence order: defaults, config file,
// environment (PULSE_ prefix), command-line flags. It also (re)initializes the
// global logger at the configured level.
func New() *Config {
	initLogging("info")

	config := viper.New()
	setDefaults(config)

	pflag.String("config", "config.yaml", "Config file location")
	pflag.Parse()
	checkErr(config.BindPFlags(pflag.CommandLine))

	config.SetConfigFile(config.GetString("config"))
	config.AddConfigPath(".")
	if err := config.ReadInConfig(); err == nil {
		checkErr(config.MergeInConfig())
	}

	bindEnvs(config, Config{})
	config.AutomaticEnv()
	config.SetEnvPrefix("PULSE")
	config.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	config.AllowEmptyEnv(true)

	c, err := load(config)
	checkErr(err)

	initLogging(c.Level)

	return c
}

func setDefaults(config *viper.Viper) {
	config.SetDefault("level", "info")
	config.SetDefault("addr", ":8080")
	config.SetDefault("allowed_origins", []string{"http://localhost:5173"})
	config.SetDefault("max_message_size", 4096)
	config.SetDefault("shutdown_timeout", 30*time.Second)
	config.SetDefault("rate_limit.burst", 20)
	config.SetDefault("rate_limit.refill_interval", time.Second)
	config.SetDefault("storage.timeout", 5*time.Second)
	config.SetDefault("storage.mongo.database", "chat")
	config.SetDefault("storage.redis.ttl", 2*time.Minute)
}

// load unmarshals and sanitizes the merged settings. Split from New so tests
// can exercise it with a fresh viper instance.
func load(config *viper.Viper) (*Config, error) {
	c := &Config{}
	if err := config.Unmarshal(c); err != nil {
		return nil, err
	}

	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 4096
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = 20
	}
	if c.RateLimit.RefillInterval <= 0 {
		c.RateLimit.RefillInterval = time.Second
	}
	if c.Storage.Timeout <= 0 {
		c.Storage.Timeout = 5 * time.Second
	}
	if c.Storage.Redis.TTL <= 0 {
		c.Storage.Redis.TTL = 2 * time.Minute
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 30 * time.Second
	}

	return c, nil
}

func bindEnvs(config *viper.Viper, iface interface{}, parts ...string) {
	ifv := reflect.ValueOf(iface)
	ift := reflect.TypeOf(iface)

	for i := 0; i < ift.NumField(); i++ {
		v := ifv.Field(i)
		t := ift.Field(i)

		tv, ok := t.Tag.Lookup("mapstructure")
		if !ok {
			continue
		}

		switch v.Kind() {
		case reflect.Struct:
			bindEnvs(config, v.Interface(), append(parts, tv)...)
		default:
			_ = config.BindEnv(strings.Join(append(parts, tv), "."))
		}
	}
}
