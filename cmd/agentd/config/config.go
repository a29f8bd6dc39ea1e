// Package config loads agentd's process configuration from flags and the
// environment via Viper (no config file is read), following the same
// cobra-flags-bind-to-viper-keys shape the wider ecosystem (and this
// module's go.mod) expects from a CLI entrypoint.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is agentd's fully resolved process configuration.
type Config struct {
	// MongoURI/MongoDatabase back the Artifact Store and Permission Kernel's
	// persistent store.
	MongoURI      string
	MongoDatabase string

	// RedisAddr backs the Permission Kernel's effective-role cache
	// (spec.md §9: shared cache, TTL <= 5s).
	RedisAddr     string
	RedisTTL      time.Duration

	// ModelProvider selects which model.Client backs every conversation:
	// "anthropic" or "openai".
	ModelProvider string
	ModelAPIKey   string
	DefaultModel  string

	// ModelInitialTPM/ModelMaxTPM configure the AdaptiveRateLimiter wrapping
	// the selected provider client.
	ModelInitialTPM float64
	ModelMaxTPM     float64

	// ListenAddr is the address a transport layer (not built by this
	// package) would bind to expose PostChat.
	ListenAddr string

	// LogFormat/Debug are resolved from flags/env, but cmd/agentd does not
	// pass them on: telemetry.NewClueLogger takes no settings.
	LogFormat string
	Debug     bool
}

// ErrMissingModelAPIKey is returned by Validate when ModelAPIKey is empty.
var ErrMissingModelAPIKey = fmt.Errorf("config: model api key is required")

// BindFlags registers agentd's configuration flags on flags and binds each
// to a Viper key of the same name, so (once New has set up the environment
// lookup) every setting can also come from an AGENTD_-prefixed environment
// variable whose name has the flag's dashes replaced with underscores.
func BindFlags(flags *pflag.FlagSet, v *viper.Viper) error {
	flags.String("mongo-uri", "mongodb://localhost:27017", "MongoDB connection URI")
	flags.String("mongo-database", "agentd", "MongoDB database name")
	flags.String("redis-addr", "localhost:6379", "Redis address for the permission cache")
	flags.Duration("redis-ttl", 5*time.Second, "permission cache entry TTL")
	flags.String("model-provider", "anthropic", "model provider: anthropic or openai")
	flags.String("model-api-key", "", "API key for the selected model provider")
	flags.String("default-model", "", "default model identifier for the selected provider")
	flags.Float64("model-initial-tpm", 60000, "initial tokens-per-minute budget for the model rate limiter")
	flags.Float64("model-max-tpm", 120000, "maximum tokens-per-minute budget the model rate limiter may recover to")
	flags.String("listen-addr", ":8080", "address a transport layer binds to expose PostChat")
	flags.String("log-format", "text", "log format: text or json")
	flags.Bool("debug", false, "enable debug logging")

	if err := v.BindPFlags(flags); err != nil {
		return fmt.Errorf("config: bind flags: %w", err)
	}
	return nil
}

// New reads resolved configuration out of v. Call BindFlags first so v's
// defaults/keys exist.
func New(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("agentd")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		MongoURI:        v.GetString("mongo-uri"),
		MongoDatabase:   v.GetString("mongo-database"),
		RedisAddr:       v.GetString("redis-addr"),
		RedisTTL:        v.GetDuration("redis-ttl"),
		ModelProvider:   v.GetString("model-provider"),
		ModelAPIKey:     v.GetString("model-api-key"),
		DefaultModel:    v.GetString("default-model"),
		ModelInitialTPM: v.GetFloat64("model-initial-tpm"),
		ModelMaxTPM:     v.GetFloat64("model-max-tpm"),
		ListenAddr:      v.GetString("listen-addr"),
		LogFormat:       v.GetString("log-format"),
		Debug:           v.GetBool("debug"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the fields agentd cannot start without.
func (c *Config) Validate() error {
	if c.ModelAPIKey == "" {
		return ErrMissingModelAPIKey
	}
	if c.ModelProvider != "anthropic" && c.ModelProvider != "openai" {
		return fmt.Errorf("config: unknown model provider %q", c.ModelProvider)
	}
	return nil
}
