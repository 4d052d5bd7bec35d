package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/strand/pkg/adapters/process"
)

const testKeyHex = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestLoadConfig_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strand.yaml")
	content := `
store:
  driver: memory
engine:
  max_steps: 10
  concurrency: 2
  node_timeout: 3s
  interrupt_before: [improve_joke]
log:
  level: debug
  format: json
secrets:
  pii_patterns: ["(?i)email"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, 10, cfg.Engine.MaxSteps)
	assert.Equal(t, 2, cfg.Engine.Concurrency)
	assert.Equal(t, 3*time.Second, cfg.Engine.NodeTimeout)
	assert.Equal(t, []string{"improve_joke"}, cfg.Engine.InterruptBefore)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, []string{"(?i)email"}, cfg.Secrets.PIIPatterns)
	// Untouched sections keep their defaults.
	assert.Equal(t, ":8080", cfg.Serve.Addr)
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strand.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  driver: file\n"), 0o644))
	t.Setenv("STRAND_STORE", "memory")
	t.Setenv("STRAND_MAX_STEPS", "7")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, 7, cfg.Engine.MaxSteps)
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"STRAND_STORE":          "redis",
		"STRAND_REDIS_ADDR":     "cache:6379",
		"STRAND_REDIS_DB":       "3",
		"STRAND_STORE_TTL":      "1h",
		"STRAND_CONCURRENCY":    "4",
		"STRAND_PII_PATTERNS":   "email, phone ,",
		"STRAND_ENCRYPTION_KEY": testKeyHex,
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := DefaultConfig()
	require.NoError(t, applyEnv(&cfg, lookup))

	assert.Equal(t, "redis", cfg.Store.Driver)
	assert.Equal(t, "cache:6379", cfg.Store.Redis.Addr)
	assert.Equal(t, 3, cfg.Store.Redis.DB)
	assert.Equal(t, time.Hour, cfg.Store.TTL)
	assert.Equal(t, 4, cfg.Engine.Concurrency)
	assert.Equal(t, []string{"email", "phone"}, cfg.Secrets.PIIPatterns)
	assert.NoError(t, cfg.Validate())
}

func TestApplyEnv_InvalidNumber(t *testing.T) {
	cfg := DefaultConfig()
	err := applyEnv(&cfg, func(k string) (string, bool) {
		if k == "STRAND_MAX_STEPS" {
			return "many", true
		}
		return "", false
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STRAND_MAX_STEPS")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"defaults", func(*Config) {}, ""},
		{"unknown driver", func(c *Config) { c.Store.Driver = "s3" }, "unknown store driver"},
		{"negative steps", func(c *Config) { c.Engine.MaxSteps = -1 }, "max_steps"},
		{"short key", func(c *Config) { c.Secrets.EncryptionKey = "abcd" }, "encryption_key"},
		{"bad fallback", func(c *Config) {
			c.Secrets.EncryptionKey = testKeyHex
			c.Secrets.FallbackKeys = []string{"nope"}
		}, "fallback_keys[0]"},
		{"bad pattern", func(c *Config) { c.Secrets.PIIPatterns = []string{"("} }, "pii_patterns"},
		{"tool without command", func(c *Config) {
			c.Tools = []process.ProcessConfig{{Name: "ls"}}
		}, "tools"},
		{"base64 key", func(c *Config) {
			c.Secrets.EncryptionKey = "AAECAwQFBgcICQoLDA0ODxAREhMUFRYXGBkaGxwdHh8="
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.want), err.Error())
		})
	}
}
