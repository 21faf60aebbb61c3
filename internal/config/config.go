package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all application configuration.
// Values come from a YAML file when one exists; environment variables
// always override it.
type Config struct {
	Server struct {
		Port      string `yaml:"port" env:"CANLOG_PORT" env-default:"3000"`
		StaticDir string `yaml:"static_dir" env:"CANLOG_STATIC_DIR" env-default:"./static"`
		Debug     bool   `yaml:"debug" env:"CANLOG_DEBUG" env-default:"false"`
		// Origins allowed to open the websocket. Empty allows same-host only.
		AllowedOrigins []string `yaml:"allowed_origins" env:"CANLOG_ALLOWED_ORIGINS" env-separator:","`
	} `yaml:"server"`

	// Backend API
	API struct {
		BaseURL string        `yaml:"base_url" env:"CANLOG_API_URL" env-default:"http://localhost:3001"`
		Timeout time.Duration `yaml:"timeout" env:"CANLOG_API_TIMEOUT" env-default:"30s"`
	} `yaml:"api"`

	// Upload journal
	Database struct {
		Path string `yaml:"path" env:"CANLOG_DB_PATH" env-default:"canlog.db"`
	} `yaml:"database"`

	Query struct {
		PageSize int `yaml:"page_size" env:"CANLOG_PAGE_SIZE" env-default:"12"`
	} `yaml:"query"`

	Upload struct {
		MaxBytes     int64         `yaml:"max_bytes" env:"CANLOG_UPLOAD_MAX_BYTES" env-default:"10485760"`
		AllowedTypes []string      `yaml:"allowed_types" env:"CANLOG_UPLOAD_TYPES" env-separator:"," env-default:"image/jpeg,image/png,image/webp"`
		SuccessDelay time.Duration `yaml:"success_delay" env:"CANLOG_UPLOAD_SUCCESS_DELAY" env-default:"1500ms"`
	} `yaml:"upload"`

	Auth struct {
		SuccessDelay time.Duration `yaml:"success_delay" env:"CANLOG_AUTH_SUCCESS_DELAY" env-default:"1500ms"`
	} `yaml:"auth"`

	Log struct {
		Mode  string `yaml:"mode" env:"CANLOG_LOG_MODE" env-default:"development"`
		Level string `yaml:"level" env:"CANLOG_LOG_LEVEL" env-default:""`
	} `yaml:"log"`
}

// LoadConfig loads configuration from a YAML file, or from the environment
// alone when the file does not exist.
func LoadConfig(configPath string) (*Config, error) {
	var config Config

	if _, err := os.Stat(configPath); err == nil {
		if err := cleanenv.ReadConfig(configPath, &config); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		if err := cleanenv.ReadEnv(&config); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is not set")
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("api base_url must be an absolute http(s) URL, got %q", c.API.BaseURL)
	}
	if c.Query.PageSize <= 0 {
		return fmt.Errorf("query page_size must be positive")
	}
	if c.Upload.MaxBytes <= 0 {
		return fmt.Errorf("upload max_bytes must be positive")
	}
	if len(c.Upload.AllowedTypes) == 0 {
		return fmt.Errorf("upload allowed_types must not be empty")
	}
	return nil
}

// GetConfigPath returns the path to the configuration file
func GetConfigPath() string {
	// First try environment variable
	if path := os.Getenv("CANLOG_CONFIG"); path != "" {
		return path
	}

	// Then try config directory
	configDir := "config"
	if _, err := os.Stat(configDir); err == nil {
		return filepath.Join(configDir, "config.yaml")
	}

	// Finally, try current directory
	return "config.yaml"
}
