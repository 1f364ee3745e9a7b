package config

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ssargent/rtsq/pkg/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, "./data", config.DataDir)
	assert.Equal(t, "error", config.ErrorQueue)
	assert.Equal(t, 8080, config.Port)
	assert.Equal(t, "127.0.0.1", config.Bind)
	assert.Equal(t, "auto", config.Security.APIKey)
	assert.True(t, config.Journal.Enabled)
	assert.Equal(t, "info", config.Logging.Level)
	assert.NoError(t, config.Validate())
}

func TestConfigPaths(t *testing.T) {
	config := DefaultConfig()
	config.DataDir = "/var/lib/rtsq"

	assert.Equal(t, filepath.Join("/var/lib/rtsq", "spool"), config.SpoolPath())
	assert.Equal(t, filepath.Join("/var/lib/rtsq", "returns.journal"), config.JournalPath())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{"missing data dir", func(c *Config) { c.DataDir = "" }, "DataDir"},
		{"queue with slash", func(c *Config) { c.ErrorQueue = "a/b" }, "ErrorQueue"},
		{"port out of range", func(c *Config) { c.Port = 70000 }, "Port"},
		{"missing api key", func(c *Config) { c.Security.APIKey = "" }, "APIKey"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "Level"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "Format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)

			err := config.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestGenerateSecureKey(t *testing.T) {
	t.Run("generate 32 byte key", func(t *testing.T) {
		key, err := GenerateSecureKey(32)
		require.NoError(t, err)
		assert.Len(t, key, 64) // 32 bytes = 64 hex characters

		_, err = hex.DecodeString(key)
		assert.NoError(t, err)
	})

	t.Run("generate different keys", func(t *testing.T) {
		key1, err := GenerateSecureKey(16)
		require.NoError(t, err)
		key2, err := GenerateSecureKey(16)
		require.NoError(t, err)

		assert.NotEqual(t, key1, key2)
	})
}

func TestLoadConfig(t *testing.T) {
	t.Run("load existing config", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.yaml")
		expectedConfig := &Config{
			DataDir:    "/custom/data",
			ErrorQueue: "errors",
			Port:       9000,
			Bind:       "0.0.0.0",
			Sync:       true,
			Security: Security{
				APIKey: "test-api-key",
			},
			Journal: Journal{
				Enabled:       true,
				FsyncInterval: 250 * time.Millisecond,
			},
			Logging: logging.Config{
				Level:  "debug",
				Format: "json",
			},
		}

		require.NoError(t, SaveConfig(expectedConfig, configPath))

		loadedConfig, err := LoadConfig(configPath)
		require.NoError(t, err)
		assert.Equal(t, expectedConfig, loadedConfig)
	})

	t.Run("partial config keeps defaults", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(configPath, []byte("port: 9090\n"), 0600))

		loadedConfig, err := LoadConfig(configPath)
		require.NoError(t, err)
		assert.Equal(t, 9090, loadedConfig.Port)
		assert.Equal(t, "error", loadedConfig.ErrorQueue)
		assert.Equal(t, "./data", loadedConfig.DataDir)
	})

	t.Run("load non-existent config", func(t *testing.T) {
		_, err := LoadConfig("/non/existent/config.yaml")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "config file does not exist")
	})

	t.Run("load invalid yaml", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "invalid.yaml")
		require.NoError(t, os.WriteFile(configPath, []byte("invalid: yaml: content: ["), 0644))

		_, err := LoadConfig(configPath)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse config file")
	})

	t.Run("load config failing validation", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(configPath, []byte("port: 0\n"), 0600))

		_, err := LoadConfig(configPath)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid config")
	})
}

func TestSaveConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	config := DefaultConfig()

	require.NoError(t, SaveConfig(config, configPath))

	info, err := os.Stat(configPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loadedConfig, err := LoadConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, config, loadedConfig)
}

func TestBootstrapConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	dataDir := "/custom/data/dir"

	config, err := BootstrapConfig(configPath, dataDir)
	require.NoError(t, err)

	assert.Equal(t, dataDir, config.DataDir)
	assert.Equal(t, 8080, config.Port)
	assert.Equal(t, "info", config.Logging.Level)

	assert.NotEqual(t, "auto", config.Security.APIKey)
	_, err = hex.DecodeString(config.Security.APIKey)
	assert.NoError(t, err)

	assert.True(t, ConfigExists(configPath))

	loadedConfig, err := LoadConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, config, loadedConfig)
}

func TestGetDefaultConfigPath(t *testing.T) {
	path := GetDefaultConfigPath()
	assert.NotEmpty(t, path)
	assert.Contains(t, path, "rtsq")
}

func TestSaveConfigErrorHandling(t *testing.T) {
	// A regular file where the config directory should be
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0600))

	err := SaveConfig(DefaultConfig(), filepath.Join(blocker, "config.yaml"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create config directory")
}
