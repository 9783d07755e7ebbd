// Package config loads relay and client settings with viper: a YAML file
// selected by CONFIG_ENV, defaults, CALL_* environment overrides and, for the
// client, command-line flags.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "CALL"

type Relay struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	SendBuffer int           `mapstructure:"send_buffer"`
	Secret     string        `mapstructure:"secret"`
	AuthSecret string        `mapstructure:"auth_secret"`
	Redis      Redis         `mapstructure:"redis"`
	JoinRate   JoinRate      `mapstructure:"join_rate"`
	// SlowConsumer is "kick" or "drop".
	SlowConsumer string `mapstructure:"slow_consumer"`
	LogLevel     string `mapstructure:"log_level"`
}

type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type JoinRate struct {
	Limit    int           `mapstructure:"limit"`
	Interval time.Duration `mapstructure:"interval"`
}

type Client struct {
	RelayURL   string      `mapstructure:"relay_url"`
	Token      string      `mapstructure:"token"`
	ICEServers []ICEServer `mapstructure:"ice_servers"`
	Reconnect  Reconnect   `mapstructure:"reconnect"`
	SendBuffer int         `mapstructure:"send_buffer"`
	Devices    Devices     `mapstructure:"devices"`
	LogLevel   string      `mapstructure:"log_level"`
}

type ICEServer struct {
	URLs       []string `mapstructure:"urls"`
	Username   string   `mapstructure:"username"`
	Credential string   `mapstructure:"credential"`
}

type Reconnect struct {
	Initial time.Duration `mapstructure:"initial"`
	Max     time.Duration `mapstructure:"max"`
}

type Devices struct {
	User        string `mapstructure:"user"`
	Environment string `mapstructure:"environment"`
	Audio       string `mapstructure:"audio"`
}

// LoadRelay reads the relay configuration.
func LoadRelay() (*Relay, error) {
	v := newViper()
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("read_limit", 65536)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("send_buffer", 32)
	v.SetDefault("secret", "change-me")
	v.SetDefault("auth_secret", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("join_rate.limit", 5)
	v.SetDefault("join_rate.interval", "10s")
	v.SetDefault("slow_consumer", "kick")
	v.SetDefault("log_level", "info")

	var cfg Relay
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).
		Bool("auth", cfg.AuthSecret != "").Bool("redis", cfg.Redis.Addr != "").Msg("relay config")
	return &cfg, nil
}

// LoadClient reads the client configuration. Flags in fs that were set on
// the command line win over file and environment.
func LoadClient(fs *pflag.FlagSet) (*Client, error) {
	v := newViper()
	v.SetDefault("relay_url", "ws://localhost:8080/api/ws/signal")
	v.SetDefault("token", "")
	v.SetDefault("ice_servers", []map[string]any{
		{"urls": []string{"stun:stun.l.google.com:19302"}},
		{"urls": []string{"stun:stun1.l.google.com:19302"}},
	})
	v.SetDefault("reconnect.initial", "500ms")
	v.SetDefault("reconnect.max", "30s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("devices.user", "")
	v.SetDefault("devices.environment", "")
	v.SetDefault("devices.audio", "")
	v.SetDefault("log_level", "info")

	if fs != nil {
		for key, flag := range clientFlags {
			if f := fs.Lookup(flag); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", flag, err)
				}
			}
		}
	}

	var cfg Client
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// clientFlags maps config keys to the cobra flag names bound to them.
var clientFlags = map[string]string{
	"relay_url":           "relay",
	"token":               "token",
	"log_level":           "log-level",
	"devices.user":        "video",
	"devices.environment": "video-back",
	"devices.audio":       "audio",
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)
	v.SetConfigFile(fileName)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		log.Debug().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}
	return v
}
