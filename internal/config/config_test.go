package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 60*time.Second, cfg.Predictor.Timeout())
	assert.Equal(t, 10*time.Second, cfg.Camera.ReadyTimeout())
}

func TestSaveAndLoad_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	cfg := Default()
	cfg.Locale.Language = "mr"
	cfg.Predictor.URL = "http://classifier:8000"
	require.NoError(t, cfg.SaveToFile(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestSaveAndLoad_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := Default()
	cfg.Predictor.Backend = BackendOllama
	cfg.Predictor.Model = "llava"
	require.NoError(t, cfg.SaveToFile(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "backend: ollama")

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoad_PartialKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("locale:\n  language: hi\n"), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hi", cfg.Locale.Language)
	assert.Equal(t, BackendRemote, cfg.Predictor.Backend)
	assert.Equal(t, 1280, cfg.Camera.IdealWidth)
}

func TestLoad_Errors(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0644))
	_, err = LoadFromFile(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.Predictor.Backend = "grpc" }},
		{"empty url", func(c *Config) { c.Predictor.URL = "" }},
		{"ollama without model", func(c *Config) { c.Predictor.Backend = BackendOllama }},
		{"negative timeout", func(c *Config) { c.Predictor.TimeoutSeconds = -1 }},
		{"zero width", func(c *Config) { c.Camera.IdealWidth = 0 }},
		{"zero probe", func(c *Config) { c.Camera.MaxProbe = 0 }},
		{"zero ready timeout", func(c *Config) { c.Camera.ReadyTimeoutSeconds = 0 }},
		{"empty language", func(c *Config) { c.Locale.Language = "" }},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestGetConfigPath(t *testing.T) {
	assert.Contains(t, GetConfigPath(), "leaf-doctor")
}
