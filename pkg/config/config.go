/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ssargent/rtsq/pkg/logging"
	"gopkg.in/yaml.v3"
)

// Config represents the rtsq configuration
type Config struct {
	DataDir    string         `yaml:"data_dir" validate:"required"`
	ErrorQueue string         `yaml:"error_queue" validate:"required,excludesall=/"`
	Port       int            `yaml:"port" validate:"min=1,max=65535"`
	Bind       string         `yaml:"bind" validate:"required"`
	Sync       bool           `yaml:"sync"`
	Security   Security       `yaml:"security"`
	Journal    Journal        `yaml:"journal"`
	Logging    logging.Config `yaml:"logging"`
}

// Security contains security-related configuration
type Security struct {
	APIKey string `yaml:"api_key" validate:"required"`
}

// Journal configures the return journal
type Journal struct {
	Enabled       bool          `yaml:"enabled"`
	FsyncInterval time.Duration `yaml:"fsync_interval" validate:"min=0"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		DataDir:    "./data",
		ErrorQueue: "error",
		Port:       8080,
		Bind:       "127.0.0.1",
		Security: Security{
			APIKey: "auto",
		},
		Journal: Journal{
			Enabled: true,
		},
		Logging: logging.Config{
			Level:  "info",
			Format: "console",
		},
	}
}

// SpoolPath returns the directory of the message spool
func (c *Config) SpoolPath() string {
	return filepath.Join(c.DataDir, "spool")
}

// JournalPath returns the path of the return journal
func (c *Config) JournalPath() string {
	return filepath.Join(c.DataDir, "returns.journal")
}

// Validate checks field constraints and reports every violation at once
func (c *Config) Validate() error {
	err := validator.New().Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid config: %w", err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// LoadConfig loads configuration from the specified path. Fields the file
// omits keep their defaults.
func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", configPath)
	}

	// Validate path to prevent directory traversal
	if !filepath.IsAbs(configPath) {
		absPath, err := filepath.Abs(configPath)
		if err != nil {
			return nil, fmt.Errorf("invalid config path: %w", err)
		}
		configPath = absPath
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// SaveConfig saves the configuration to the specified path with secure permissions
func SaveConfig(config *Config, configPath string) error {
	// Ensure config directory exists
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write with secure permissions (0600)
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GenerateSecureKey generates a cryptographically secure random key
func GenerateSecureKey(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate secure key: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

// BootstrapConfig writes a new configuration with a generated API key
func BootstrapConfig(configPath string, dataDir string) (*Config, error) {
	config := DefaultConfig()
	if dataDir != "" {
		config.DataDir = dataDir
	}

	apiKey, err := GenerateSecureKey(32) // 256 bits
	if err != nil {
		return nil, fmt.Errorf("failed to generate API key: %w", err)
	}
	config.Security.APIKey = apiKey

	if err := SaveConfig(config, configPath); err != nil {
		return nil, fmt.Errorf("failed to save bootstrap config: %w", err)
	}

	return config, nil
}

// GetDefaultConfigPath returns the default configuration path for the current platform
func GetDefaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./rtsq.yaml"
	}

	// For Linux/macOS, use ~/.config/rtsq/config.yaml
	return filepath.Join(homeDir, ".config", "rtsq", "config.yaml")
}

// ConfigExists checks if a configuration file exists
func ConfigExists(configPath string) bool {
	_, err := os.Stat(configPath)
	return !os.IsNotExist(err)
}
