package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), perm))
	require.NoError(t, os.Chmod(path, perm))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.False(t, cfg.Detectors.HF.Enabled)
	assert.Equal(t, 0.40, cfg.Detectors.HF.MinConfidence)
	assert.True(t, cfg.Detectors.Rule.Enabled)
	assert.True(t, cfg.Detectors.Structured.Enabled)
	assert.Equal(t, int64(99), cfg.FakerSeed)
	assert.False(t, cfg.Keyed())
	assert.True(t, cfg.Plan.MergeOverlaps)
	assert.Equal(t, 30*time.Second, cfg.Detectors.Timeout.Duration())
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestLoad_ValidYAML(t *testing.T) {
	path := writeConfig(t, `
detectors:
  hf:
    enabled: true
    min_confidence: 0.6
  rule:
    enabled: false
  timeout: 5s
faker_seed: 7
plan:
  merge_overlaps: false
server:
  port: 8088
`, 0644)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.Detectors.HF.Enabled)
	assert.Equal(t, 0.6, cfg.Detectors.HF.MinConfidence)
	assert.False(t, cfg.Detectors.Rule.Enabled)
	assert.True(t, cfg.Detectors.Structured.Enabled, "absent key keeps default")
	assert.Equal(t, 5*time.Second, cfg.Detectors.Timeout.Duration())
	assert.Equal(t, int64(7), cfg.FakerSeed)
	assert.False(t, cfg.Plan.MergeOverlaps)
	assert.Equal(t, 8088, cfg.Server.Port)
	assert.Equal(t, "http://localhost:8001", cfg.Detectors.HF.BaseURL)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, ErrConfigNotFound)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "detectors: [unclosed\n", 0600)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config file")
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"min confidence above one", "detectors:\n  hf:\n    min_confidence: 1.5\n"},
		{"negative workers", "pipeline:\n  workers: -1\n"},
		{"bad port", "server:\n  port: 70000\n"},
		{"bad log format", "logging:\n  format: xml\n"},
		{"bad protocol", "telemetry:\n  protocol: udp\n"},
		{"negative timeout", "detectors:\n  timeout: -5s\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.yaml, 0600))
			assert.Error(t, err)
		})
	}
}

func TestLoad_PseudonymSalt(t *testing.T) {
	t.Run("keyed from file", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, "pseudonym_salt: s3cret\n", 0600))
		require.NoError(t, err)
		assert.True(t, cfg.Keyed())
		assert.Equal(t, "s3cret", cfg.PseudonymSalt.Value())
	})

	t.Run("null salt stays unkeyed", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, "pseudonym_salt: null\n", 0600))
		require.NoError(t, err)
		assert.False(t, cfg.Keyed())
	})

	t.Run("empty salt stays unkeyed", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, "pseudonym_salt: \"\"\n", 0600))
		require.NoError(t, err)
		assert.False(t, cfg.Keyed())
	})

	t.Run("salt never serialized", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, "pseudonym_salt: s3cret\n", 0600))
		require.NoError(t, err)
		data, err := json.Marshal(cfg)
		require.NoError(t, err)
		assert.NotContains(t, string(data), "s3cret")
		assert.NotContains(t, fmt.Sprintf("%v %+v %#v", cfg.PseudonymSalt, cfg.PseudonymSalt, cfg.PseudonymSalt), "s3cret")
	})

	t.Run("world readable file with salt rejected", func(t *testing.T) {
		if runtime.GOOS == "windows" {
			t.Skip("permission model differs")
		}
		_, err := Load(writeConfig(t, "pseudonym_salt: s3cret\n", 0644))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "insecure config file permissions")
	})
}

func TestLoad_EnvironmentOverride(t *testing.T) {
	path := writeConfig(t, "faker_seed: 7\ndetectors:\n  hf:\n    enabled: false\n", 0600)

	t.Setenv("PHISAN_FAKER_SEED", "1234")
	t.Setenv("PHISAN_DETECTORS_HF_ENABLED", "true")
	t.Setenv("PHISAN_DETECTORS_HF_MIN_CONFIDENCE", "0.75")
	t.Setenv("PHISAN_SERVER_SHUTDOWN_TIMEOUT", "3s")
	t.Setenv("PHISAN_PSEUDONYM_SALT", "from-env")
	t.Setenv("PHISAN_NOT_A_KEY", "ignored")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, int64(1234), cfg.FakerSeed)
	assert.True(t, cfg.Detectors.HF.Enabled)
	assert.Equal(t, 0.75, cfg.Detectors.HF.MinConfidence)
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout.Duration())
	assert.Equal(t, "from-env", cfg.PseudonymSalt.Value())
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env")))

	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("PHISAN_TEST_DOTENV=loaded\n"), 0600))
	t.Setenv("PHISAN_TEST_DOTENV", "")
	os.Unsetenv("PHISAN_TEST_DOTENV")

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "loaded", os.Getenv("PHISAN_TEST_DOTENV"))
}

func TestEnvKeys(t *testing.T) {
	keys := envKeys()
	assert.Equal(t, "detectors.hf.min_confidence", keys["detectors_hf_min_confidence"])
	assert.Equal(t, "audit.nats.subject_prefix", keys["audit_nats_subject_prefix"])
	assert.Equal(t, "faker_seed", keys["faker_seed"])
}

func TestSecret(t *testing.T) {
	s := Secret("value")
	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "value", s.Value())
	assert.True(t, s.IsSet())
	assert.False(t, Secret("").IsSet())
	assert.Equal(t, "", Secret("").String())
}
