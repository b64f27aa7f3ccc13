package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const appName = "consult-recorder"

// EnvPrefix prefixes environment overrides, e.g. CONSULT_ANALYSIS_MODEL.
const EnvPrefix = "CONSULT"

type Config struct {
	LogLevel string         `mapstructure:"log_level" json:"log_level"`
	Audio    AudioConfig    `mapstructure:"audio" json:"audio"`
	Analysis AnalysisConfig `mapstructure:"analysis" json:"analysis"`
	Storage  StorageConfig  `mapstructure:"storage" json:"storage"`
	Archive  ArchiveConfig  `mapstructure:"archive" json:"archive"`
	Server   ServerConfig   `mapstructure:"server" json:"server"`

	path          string
	apiKeyFromEnv bool
}

type AudioConfig struct {
	Backend  string `mapstructure:"backend" json:"backend"` // "portaudio" or "malgo"
	DeviceID string `mapstructure:"device_id" json:"device_id"`
}

type AnalysisConfig struct {
	APIKey          string  `mapstructure:"api_key" json:"api_key,omitempty"`
	Model           string  `mapstructure:"model" json:"model"`
	Endpoint        string  `mapstructure:"endpoint" json:"endpoint,omitempty"`
	Temperature     float64 `mapstructure:"temperature" json:"temperature"`
	TopP            float64 `mapstructure:"top_p" json:"top_p"`
	TopK            int64   `mapstructure:"top_k" json:"top_k"`
	MaxOutputTokens int64   `mapstructure:"max_output_tokens" json:"max_output_tokens"`
	TimeoutSeconds  int     `mapstructure:"timeout_seconds" json:"timeout_seconds"`
}

type StorageConfig struct {
	RecordingsDir    string `mapstructure:"recordings_dir" json:"recordings_dir"`
	ConsultationsDir string `mapstructure:"consultations_dir" json:"consultations_dir"`
	IndexPath        string `mapstructure:"index_path" json:"index_path"`
}

// ArchiveConfig enables S3 upload of finished consultations when Bucket is set.
type ArchiveConfig struct {
	Bucket string `mapstructure:"bucket" json:"bucket,omitempty"`
	Prefix string `mapstructure:"prefix" json:"prefix,omitempty"`
	Region string `mapstructure:"region" json:"region,omitempty"`
}

type ServerConfig struct {
	Listen string `mapstructure:"listen" json:"listen"`
}

// Timeout returns the analysis deadline.
func (a AnalysisConfig) Timeout() time.Duration {
	if a.TimeoutSeconds <= 0 {
		return 2 * time.Minute
	}
	return time.Duration(a.TimeoutSeconds) * time.Second
}

func setDefaults(v *viper.Viper) {
	data := DataPath()

	v.SetDefault("log_level", "info")

	v.SetDefault("audio.backend", "portaudio")
	v.SetDefault("audio.device_id", "")

	v.SetDefault("analysis.api_key", "")
	v.SetDefault("analysis.model", "gemini-1.5-flash")
	v.SetDefault("analysis.endpoint", "")
	v.SetDefault("analysis.temperature", 0.0)
	v.SetDefault("analysis.top_p", 0.95)
	v.SetDefault("analysis.top_k", 40)
	v.SetDefault("analysis.max_output_tokens", 8192)
	v.SetDefault("analysis.timeout_seconds", 120)

	v.SetDefault("storage.recordings_dir", filepath.Join(data, "recordings"))
	v.SetDefault("storage.consultations_dir", filepath.Join(data, "consultations"))
	v.SetDefault("storage.index_path", filepath.Join(data, "consultations.sqlite"))

	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.prefix", "")
	v.SetDefault("archive.region", "")

	v.SetDefault("server.listen", "127.0.0.1:5000")
}

// Load reads the config at path (the platform default when empty), applies
// environment overrides and returns defaults for anything unset. A missing
// file is not an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = configPath()
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("json")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("analysis.api_key", EnvPrefix+"_ANALYSIS_API_KEY", "GEMINI_API_KEY"); err != nil {
		return nil, fmt.Errorf("failed to bind API key env: %w", err)
	}

	cfg := &Config{path: path}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.apiKeyFromEnv = os.Getenv(EnvPrefix+"_ANALYSIS_API_KEY") != "" || os.Getenv("GEMINI_API_KEY") != ""

	return cfg, nil
}

// Path returns the file Save writes to.
func (c *Config) Path() string {
	if c.path == "" {
		return configPath()
	}
	return c.path
}

// Save writes the config to disk. An API key that came from the environment
// is not written out.
func (c *Config) Save() error {
	path := c.Path()

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	out := *c
	if c.apiKeyFromEnv {
		out.Analysis.APIKey = ""
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// configPath returns the platform-specific config file path
func configPath() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Application Support"
	case "windows":
		base = os.Getenv("APPDATA")
	default: // linux
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.config"
		}
	}

	return filepath.Join(base, appName, "config.json")
}

// DataPath returns the platform-specific directory for recordings and consultations
func DataPath() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Application Support"
	case "windows":
		base = os.Getenv("LOCALAPPDATA")
	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.local/share"
		}
	}

	return filepath.Join(base, appName)
}
