package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Prediction backends.
const (
	BackendRemote   = "remote"
	BackendOllama   = "ollama"
	BackendLlamaCpp = "llamacpp"
)

// Config holds the application configuration
type Config struct {
	Predictor PredictorConfig `json:"predictor" yaml:"predictor"`
	Camera    CameraConfig    `json:"camera" yaml:"camera"`
	Locale    LocaleConfig    `json:"locale" yaml:"locale"`
	Output    OutputConfig    `json:"output" yaml:"output"`
	Log       LogConfig       `json:"log" yaml:"log"`
}

// PredictorConfig selects and addresses the classification backend
type PredictorConfig struct {
	Backend        string `json:"backend" yaml:"backend"`
	URL            string `json:"url" yaml:"url"`
	Model          string `json:"model,omitempty" yaml:"model,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds"`
}

// CameraConfig holds capture settings
type CameraConfig struct {
	IdealWidth          int `json:"ideal_width" yaml:"ideal_width"`
	IdealHeight         int `json:"ideal_height" yaml:"ideal_height"`
	MaxProbe            int `json:"max_probe" yaml:"max_probe"`
	ReadyTimeoutSeconds int `json:"ready_timeout_seconds" yaml:"ready_timeout_seconds"`
}

// LocaleConfig holds the display language
type LocaleConfig struct {
	Language string `json:"language" yaml:"language"`
}

// OutputConfig holds configuration for saved artifacts
type OutputConfig struct {
	OutputDir    string `json:"output_dir" yaml:"output_dir"`
	SaveArtifact bool   `json:"save_artifact" yaml:"save_artifact"`
	Prefix       string `json:"prefix" yaml:"prefix"`
	Suffix       string `json:"suffix" yaml:"suffix"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Predictor: PredictorConfig{
			Backend:        BackendRemote,
			URL:            "http://localhost:8000",
			TimeoutSeconds: 60,
		},
		Camera: CameraConfig{
			IdealWidth:          1280,
			IdealHeight:         720,
			MaxProbe:            4,
			ReadyTimeoutSeconds: 10,
		},
		Locale: LocaleConfig{Language: "en"},
		Output: OutputConfig{
			OutputDir: "./output",
			Suffix:    "_256",
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Timeout is the predictor timeout as a duration.
func (p PredictorConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// ReadyTimeout is the camera ready timeout as a duration.
func (c CameraConfig) ReadyTimeout() time.Duration {
	return time.Duration(c.ReadyTimeoutSeconds) * time.Second
}

func isYAML(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return ext == ".yaml" || ext == ".yml"
}

// LoadFromFile loads configuration from a JSON or YAML file. Missing
// fields keep their defaults.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if isYAML(filename) {
		err = yaml.Unmarshal(data, config)
	} else {
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration as JSON or YAML depending on the extension
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isYAML(filename) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Predictor.Backend {
	case BackendRemote, BackendOllama, BackendLlamaCpp:
	default:
		return fmt.Errorf("predictor.backend must be one of %s, %s, %s", BackendRemote, BackendOllama, BackendLlamaCpp)
	}

	if c.Predictor.URL == "" {
		return fmt.Errorf("predictor.url cannot be empty")
	}

	if c.Predictor.Backend == BackendOllama && c.Predictor.Model == "" {
		return fmt.Errorf("predictor.model is required for the ollama backend")
	}

	if c.Predictor.TimeoutSeconds < 0 {
		return fmt.Errorf("predictor.timeout_seconds cannot be negative")
	}

	if c.Camera.IdealWidth < 1 || c.Camera.IdealHeight < 1 {
		return fmt.Errorf("camera.ideal_width and camera.ideal_height must be positive")
	}

	if c.Camera.MaxProbe < 1 {
		return fmt.Errorf("camera.max_probe must be positive")
	}

	if c.Camera.ReadyTimeoutSeconds < 1 {
		return fmt.Errorf("camera.ready_timeout_seconds must be positive")
	}

	if c.Locale.Language == "" {
		return fmt.Errorf("locale.language cannot be empty")
	}

	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json")
	}

	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "leaf-doctor", "config.json")
}
