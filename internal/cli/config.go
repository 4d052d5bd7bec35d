package cli

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/aretw0/strand/pkg/adapters/process"
)

// DefaultConfigFile is read when no --config flag is given and the file exists.
const DefaultConfigFile = "strand.yaml"

// Config is the CLI configuration loaded from YAML, .env and STRAND_* variables.
type Config struct {
	Store   StoreConfig   `yaml:"store"`
	Engine  EngineConfig  `yaml:"engine"`
	Log     LogConfig     `yaml:"log"`
	Serve   ServeConfig   `yaml:"serve"`
	Secrets SecretsConfig `yaml:"secrets"`
	// Tools are allow-listed commands offered to the agent graph.
	Tools []process.ProcessConfig `yaml:"tools"`
}

// StoreConfig selects the checkpoint backend.
type StoreConfig struct {
	// Driver is one of memory, file or redis.
	Driver string        `yaml:"driver"`
	Path   string        `yaml:"path"`
	Redis  RedisConfig   `yaml:"redis"`
	TTL    time.Duration `yaml:"ttl"`
}

// RedisConfig configures the redis store and thread locker.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// EngineConfig maps to the strand.With* options.
type EngineConfig struct {
	MaxSteps        int           `yaml:"max_steps"`
	Concurrency     int           `yaml:"concurrency"`
	NodeTimeout     time.Duration `yaml:"node_timeout"`
	InterruptBefore []string      `yaml:"interrupt_before"`
	InterruptAfter  []string      `yaml:"interrupt_after"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ServeConfig configures the ops endpoint.
type ServeConfig struct {
	Addr string `yaml:"addr"`
}

// SecretsConfig enables the persistence middleware.
type SecretsConfig struct {
	// EncryptionKey is a 32 byte key, hex or base64 encoded.
	EncryptionKey string `yaml:"encryption_key"`
	// FallbackKeys are previous keys still accepted for decryption.
	FallbackKeys []string `yaml:"fallback_keys"`
	// PIIPatterns are regular expressions matched against state keys.
	PIIPatterns []string `yaml:"pii_patterns"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		Store: StoreConfig{
			Driver: "file",
			Path:   ".strand/threads",
			Redis:  RedisConfig{Addr: "localhost:6379", Prefix: "strand:"},
		},
		Log:   LogConfig{Level: "warn", Format: "text"},
		Serve: ServeConfig{Addr: ":8080"},
	}
}

// LoadConfig builds the configuration. path may be empty, in which case
// DefaultConfigFile is read if present. A .env file in the working directory is
// loaded first; variables already set in the environment win.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("failed to load .env: %w", err)
	}

	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case explicit || !errors.Is(err, fs.ErrNotExist):
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// applyEnv overrides cfg with STRAND_* variables.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("STRAND_STORE", &cfg.Store.Driver)
	str("STRAND_STORE_PATH", &cfg.Store.Path)
	str("STRAND_REDIS_ADDR", &cfg.Store.Redis.Addr)
	str("STRAND_REDIS_PASSWORD", &cfg.Store.Redis.Password)
	str("STRAND_REDIS_PREFIX", &cfg.Store.Redis.Prefix)
	str("STRAND_LOG_LEVEL", &cfg.Log.Level)
	str("STRAND_LOG_FORMAT", &cfg.Log.Format)
	str("STRAND_SERVE_ADDR", &cfg.Serve.Addr)
	str("STRAND_ENCRYPTION_KEY", &cfg.Secrets.EncryptionKey)

	ints := map[string]*int{
		"STRAND_REDIS_DB":    &cfg.Store.Redis.DB,
		"STRAND_MAX_STEPS":   &cfg.Engine.MaxSteps,
		"STRAND_CONCURRENCY": &cfg.Engine.Concurrency,
	}
	for key, dst := range ints {
		v, ok := lookup(key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = n
	}

	durations := map[string]*time.Duration{
		"STRAND_STORE_TTL":    &cfg.Store.TTL,
		"STRAND_NODE_TIMEOUT": &cfg.Engine.NodeTimeout,
	}
	for key, dst := range durations {
		v, ok := lookup(key)
		if !ok || v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = d
	}

	if v, ok := lookup("STRAND_PII_PATTERNS"); ok && v != "" {
		cfg.Secrets.PIIPatterns = splitList(v)
	}
	return nil
}

// Validate reports settings that cannot work.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case "memory", "file", "redis":
	default:
		return fmt.Errorf("unknown store driver %q (want memory, file or redis)", c.Store.Driver)
	}
	if c.Engine.MaxSteps < 0 {
		return fmt.Errorf("max_steps must not be negative")
	}
	if c.Engine.Concurrency < 0 {
		return fmt.Errorf("concurrency must not be negative")
	}
	if c.Secrets.EncryptionKey != "" {
		if _, err := decodeKey(c.Secrets.EncryptionKey); err != nil {
			return fmt.Errorf("encryption_key: %w", err)
		}
	}
	for i, k := range c.Secrets.FallbackKeys {
		if _, err := decodeKey(k); err != nil {
			return fmt.Errorf("fallback_keys[%d]: %w", i, err)
		}
	}
	for _, p := range c.Secrets.PIIPatterns {
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("pii_patterns: %w", err)
		}
	}
	if err := process.Validate(c.Tools); err != nil {
		return fmt.Errorf("tools: %w", err)
	}
	return nil
}

// decodeKey accepts a 32 byte key in hex or standard base64.
func decodeKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if b, err := hex.DecodeString(s); err == nil && len(b) == 32 {
		return b, nil
	}
	if b, err := base64.StdEncoding.DecodeString(s); err == nil && len(b) == 32 {
		return b, nil
	}
	return nil, errors.New("key must be 32 bytes, hex or base64 encoded")
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
