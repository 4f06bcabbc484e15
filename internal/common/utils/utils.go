package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/xuecangming/file-manager/internal/common/types"
	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from $CONFIG_PATH or configs/config.yaml
func LoadConfig() (*types.Config, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}
	return LoadConfigFile(configPath)
}

// LoadConfigFile loads configuration from the given file. Keys missing from
// the file keep their default values; a missing file yields the defaults.
func LoadConfigFile(configPath string) (*types.Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(config)

	return config, nil
}

// DefaultConfig returns default configuration
func DefaultConfig() *types.Config {
	return &types.Config{
		Server: types.ServerConfig{
			Host:      "0.0.0.0",
			Port:      8080,
			APIPrefix: "/api/v1",
		},
		Database: types.DatabaseConfig{
			Enabled:        false,
			Host:           "localhost",
			Port:           5432,
			Name:           "file_manager",
			User:           "postgres",
			Password:       os.Getenv("DB_PASSWORD"),
			MaxConnections: 10,
		},
		Cache: types.CacheConfig{
			Capacity:   50,
			TTLSeconds: 300,
		},
		Copy: types.CopyConfig{
			BufferSize:     4096,
			ChunkThreshold: 10 * 1024 * 1024,
			MaxThreads:     8,
			PausePollMS:    1000,
			DefaultPolicy:  "rename",
		},
		Volumes: types.VolumesConfig{
			RefreshSeconds: 30,
		},
		Watcher: types.WatcherConfig{
			Enabled:         false,
			IntervalSeconds: 10,
		},
		Logging: types.LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *types.Config) {
	if dbPassword := os.Getenv("DB_PASSWORD"); dbPassword != "" {
		config.Database.Password = dbPassword
	}
	if port := os.Getenv("FM_LISTEN_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil && p > 0 {
			config.Server.Port = p
		}
	}
	if level := os.Getenv("FM_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
}

// ValidatePath reports whether p is an absolute, clean path without
// traversal segments or NUL bytes
func ValidatePath(p string) bool {
	if p == "" || strings.ContainsRune(p, 0) {
		return false
	}
	if !filepath.IsAbs(p) {
		return false
	}
	for _, seg := range strings.Split(filepath.ToSlash(p), "/") {
		if seg == ".." {
			return false
		}
	}
	return true
}

// IsWithin reports whether path is root or lies below it
func IsWithin(root, path string) bool {
	root = filepath.Clean(root)
	path = filepath.Clean(path)
	if root == path {
		return true
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// GenerateID generates a unique ID for entities
func GenerateID() string {
	return uuid.NewString()
}

// FormatBytes renders n with a binary unit suffix
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
