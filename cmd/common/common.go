// Package common provides shared utilities for the mesh CLI commands.
//
// This package contains helper functions used across the standalone node
// binaries (registry, gateway, bap, bpp) to reduce code duplication:
//
//   - YAML configuration loading with flag overrides applied by the mains
//   - Key loading and generation for ed25519 signing keys
//   - Key-value store selection (Redis when configured, in-memory otherwise)
package common

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/becknlabs/mesh/crypto"
	"github.com/becknlabs/mesh/gate"
	"github.com/becknlabs/mesh/registry"
	"github.com/becknlabs/mesh/store"
)

// RedisConfig contains Redis connection settings for the shared KV store.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// AMQPConfig contains broker settings for the gateway's fanout queue.
type AMQPConfig struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
	Queue    string `yaml:"queue"`
	Prefetch int    `yaml:"prefetch"`
}

// RateLimitConfig is one fixed-window rate limit.
type RateLimitConfig struct {
	Max    int64         `yaml:"max"`
	Window time.Duration `yaml:"window"`
}

// Limit converts the configured values into a gate.RateLimit.
func (r RateLimitConfig) Limit() gate.RateLimit {
	return gate.RateLimit{Max: r.Max, Window: r.Window}
}

// LimitsConfig holds the two admission rate limits.
type LimitsConfig struct {
	Subscriber RateLimitConfig `yaml:"subscriber"`
	Anonymous  RateLimitConfig `yaml:"anonymous"`
}

// Config is the shared YAML configuration for all node binaries. Each main
// uses the subset relevant to its node type.
type Config struct {
	ListenAddr  string `yaml:"listen_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
	EnablePprof bool   `yaml:"enable_pprof"`

	SubscriberID  string `yaml:"subscriber_id"`
	SubscriberURL string `yaml:"subscriber_url"`
	UniqueKeyID   string `yaml:"unique_key_id"`
	// SigningKey is the base64 ed25519 private key. Generated at startup
	// when empty, which is only useful for local development.
	SigningKey string `yaml:"signing_key"`

	RegistryURL string `yaml:"registry_url"`
	AdminToken  string `yaml:"admin_token"`

	Redis    RedisConfig              `yaml:"redis"`
	AMQP     AMQPConfig               `yaml:"amqp"`
	Postgres *registry.PostgresConfig `yaml:"postgres"`

	Limits LimitsConfig `yaml:"limits"`
}

// DefaultConfig returns a configuration suitable for local development.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:  ":8080",
		UniqueKeyID: "key1",
		Limits: LimitsConfig{
			Subscriber: RateLimitConfig{Max: 100, Window: time.Minute},
			Anonymous:  RateLimitConfig{Max: 20, Window: time.Minute},
		},
	}
}

// LoadConfig reads a YAML configuration file on top of the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// LoadOrGenerateSigningKey loads an ed25519 private key from its base64
// encoding, or generates a new key pair if encoded is empty.
func LoadOrGenerateSigningKey(encoded string) (crypto.PrivateKey, error) {
	if encoded != "" {
		return crypto.NewPrivateKeyFromString(encoded)
	}
	_, privKey, err := crypto.GenerateKeyPair()
	return privKey, err
}

// NewKV returns the Redis-backed store when an address is configured,
// otherwise an in-memory store. A single-process in-memory store is fine for
// development but defeats duplicate and rate tracking across replicas.
func NewKV(cfg RedisConfig, log *slog.Logger) store.KV {
	if cfg.Addr == "" {
		log.Warn("no redis configured, using in-memory store")
		return store.NewMemoryKV()
	}
	return store.NewRedisKV(cfg.Addr, cfg.Password, cfg.DB)
}

// NewLogger creates the structured logger the node binaries share.
func NewLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, nil))
}
