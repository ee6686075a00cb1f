package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	EnvDev  = "dev"
	EnvProd = "prod"
)

type Config struct {
	Env            string        `mapstructure:"env"`
	Mode           string        `mapstructure:"mode"`
	Port           int           `mapstructure:"port"`
	InstanceID     string        `mapstructure:"instance_id"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	ReadLimit      int64         `mapstructure:"read_limit"`
	PingPeriod     time.Duration `mapstructure:"ping_period"`
	Secret         string        `mapstructure:"secret"`
	LogLevel       string        `mapstructure:"log_level"`
	RoomCacheTTL   time.Duration `mapstructure:"room_cache_ttl"`

	Redis     RedisConf     `mapstructure:"redis"`
	Nats      NatsConf      `mapstructure:"nats"`
	Sweeper   SweeperConf   `mapstructure:"sweeper"`
	Sfu       SfuConf       `mapstructure:"sfu"`
	RateLimit RateLimitConf `mapstructure:"rate_limit"`
}

type RedisConf struct {
	Addr         string   `mapstructure:"addr"`
	Password     string   `mapstructure:"password"`
	DB           int      `mapstructure:"db"`
	PoolSize     int      `mapstructure:"pool_size"`
	MinIdleConns int      `mapstructure:"min_idle_conns"`
	ClusterAddrs []string `mapstructure:"cluster_addrs"`
	Prefix       string   `mapstructure:"prefix"`
}

// NatsConf configures the cross-instance relay. An empty URL disables it.
type NatsConf struct {
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
}

type SweeperConf struct {
	Interval    time.Duration `mapstructure:"interval"`
	RoomGrace   time.Duration `mapstructure:"room_grace"`
	RoomMaxAge  time.Duration `mapstructure:"room_max_age"`
	MatchMaxAge time.Duration `mapstructure:"match_max_age"`
}

type SfuConf struct {
	APIKey    string        `mapstructure:"api_key"`
	APISecret string        `mapstructure:"api_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

type RateLimitConf struct {
	JoinLimit    int           `mapstructure:"join_limit"`
	JoinInterval time.Duration `mapstructure:"join_interval"`
}

func (c *Config) Dev() bool { return c.Env != EnvProd }

// Load reads config/config.<env>.yaml. env falls back to CONFIG_ENV, then dev.
// Every key can be overridden by an environment variable, e.g. REDIS_ADDR.
func Load(env string) (*Config, error) {
	if env == "" {
		env = os.Getenv("CONFIG_ENV")
	}
	if env == "" {
		env = EnvDev
	}
	if env != EnvDev && env != EnvProd {
		return nil, fmt.Errorf("unknown env %q", env)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigName("config." + env)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, env)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		log.Warn().Str("module", "config").Str("env", env).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", v.ConfigFileUsed()).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.Env = env
	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()[:8]
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("env", cfg.Env).Str("mode", cfg.Mode).
		Int("port", cfg.Port).Str("instance", cfg.InstanceID).Msg("config ready")
	return &cfg, nil
}

func setDefaults(v *viper.Viper, env string) {
	v.SetDefault("mode", "debug")
	v.SetDefault("port", 8080)
	v.SetDefault("instance_id", "")
	v.SetDefault("allowed_origins", []string{"http://localhost:3000", "http://localhost:5173"})
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "dev-secret")
	v.SetDefault("log_level", "debug")
	v.SetDefault("room_cache_ttl", "2s")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.cluster_addrs", []string{})
	v.SetDefault("redis.pool_size", 20)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.prefix", "tandem")

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject", "tandem.relay")

	v.SetDefault("sweeper.interval", "30s")
	v.SetDefault("sweeper.room_grace", "2m")
	v.SetDefault("sweeper.room_max_age", "24h")
	v.SetDefault("sweeper.match_max_age", "24h")

	v.SetDefault("sfu.api_key", "")
	v.SetDefault("sfu.api_secret", "")
	v.SetDefault("sfu.token_ttl", "6h")

	v.SetDefault("rate_limit.join_limit", 5)
	v.SetDefault("rate_limit.join_interval", "10s")

	if env == EnvProd {
		v.SetDefault("mode", "release")
		v.SetDefault("log_level", "info")
		v.SetDefault("secret", "")
		v.SetDefault("allowed_origins", []string{})
		v.SetDefault("sweeper.interval", "5m")
	}
}

func (c *Config) validate() error {
	if c.Port <= 0 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.Sweeper.Interval <= 0 || c.Sweeper.RoomGrace <= 0 {
		return errors.New("sweeper interval and room_grace must be positive")
	}
	if !c.Dev() && c.Secret == "" {
		return errors.New("secret is required in prod")
	}
	if c.RateLimit.JoinLimit <= 0 || c.RateLimit.JoinInterval <= 0 {
		return errors.New("rate_limit join_limit and join_interval must be positive")
	}
	return nil
}
