package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config root configuration
type Config struct {
	Cluster ClusterConfig `mapstructure:"cluster"`
	Server  ServerConfig  `mapstructure:"server"`
	Log     LogConfig     `mapstructure:"log"`
}

// ClusterConfig identifies the cluster this CLI requests access against
// and how to reach its request service.
type ClusterConfig struct {
	ID        string `mapstructure:"id"`
	ServerURL string `mapstructure:"server_url"`
	Token     string `mapstructure:"token"`
	Requester string `mapstructure:"requester"`
}

// ServerConfig request service daemon settings
type ServerConfig struct {
	Host     string       `mapstructure:"host"`
	Port     int          `mapstructure:"port"`
	Token    string       `mapstructure:"token"`
	DataDir  string       `mapstructure:"data_dir"`
	MaxHours int          `mapstructure:"max_hours"` // longest allowed request duration
	Policy   PolicyConfig `mapstructure:"policy"`
}

// PolicyConfig role policy applied when requests are created
type PolicyConfig struct {
	Mode             string   `mapstructure:"mode"` // strict, relaxed or off
	DenyRoles        []string `mapstructure:"deny_roles"`
	AutoApproveRoles []string `mapstructure:"auto_approve_roles"`
}

// LogConfig application logging settings
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// DefaultConfig returns config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Cluster: ClusterConfig{
			ID:        "default",
			ServerURL: "http://127.0.0.1:18791",
			Requester: os.Getenv("USER"),
		},
		Server: ServerConfig{
			Host:     "0.0.0.0",
			Port:     18791,
			DataDir:  filepath.Join(ConfigDir(), "data"),
			MaxHours: 168,
			Policy:   PolicyConfig{Mode: "relaxed"},
		},
		Log: LogConfig{
			Level: "info",
			File:  "",
		},
	}
}

// ConfigDir returns the jitgate config directory
func ConfigDir() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".jitgate")
}

// ConfigPath returns the config file path
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

// Load loads config from file or returns defaults
func Load() (*Config, error) {
	cfg := DefaultConfig()

	configPath := ConfigPath()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := Save(cfg); err != nil {
			return cfg, fmt.Errorf("failed to create default config: %w", err)
		}
		return cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")
	v.SetEnvPrefix("JITGATE")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return cfg, err
	}

	if err := v.Unmarshal(cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.MatchName = func(mapKey, fieldName string) bool {
			return normalizeKey(mapKey) == normalizeKey(fieldName)
		}
	}); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func normalizeKey(input string) string {
	input = strings.ReplaceAll(input, "_", "")
	input = strings.ReplaceAll(input, "-", "")
	return strings.ToLower(input)
}

// Save saves config to file
func Save(cfg *Config) error {
	configPath := ConfigPath()

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0600)
}

// Validate checks that the configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Cluster.ID) == "" {
		return fmt.Errorf("cluster.id must be non-empty")
	}
	if strings.TrimSpace(c.Cluster.ServerURL) == "" {
		return fmt.Errorf("cluster.server_url must be non-empty")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.MaxHours < 0 {
		return fmt.Errorf("server.max_hours must not be negative, got %d", c.Server.MaxHours)
	}
	if c.Server.MaxHours == 0 {
		c.Server.MaxHours = 168
	}

	mode := strings.ToLower(strings.TrimSpace(c.Server.Policy.Mode))
	if mode == "" {
		mode = "relaxed"
	}
	switch mode {
	case "strict", "relaxed", "off":
		c.Server.Policy.Mode = mode
	default:
		return fmt.Errorf("server.policy.mode must be one of strict, relaxed, off; got %q", c.Server.Policy.Mode)
	}

	level := strings.ToLower(strings.TrimSpace(c.Log.Level))
	if level == "" {
		c.Log.Level = "info"
	} else {
		validLevels := map[string]bool{
			"debug": true,
			"info":  true,
			"warn":  true,
			"error": true,
		}
		if !validLevels[level] {
			return fmt.Errorf("log.level must be one of debug, info, warn, error; got %q", c.Log.Level)
		}
		c.Log.Level = level
	}

	return nil
}

// MaxRequestDuration returns the longest request duration the server allows.
func (c *ServerConfig) MaxRequestDuration() time.Duration {
	if c.MaxHours <= 0 {
		return 0
	}
	return time.Duration(c.MaxHours) * time.Hour
}

// DataDirChecked returns the expanded data directory path.
func (c *ServerConfig) DataDirChecked() (string, error) {
	dir := strings.TrimSpace(c.DataDir)
	if dir == "" {
		return filepath.Join(ConfigDir(), "data"), nil
	}
	if dir[0] == '~' {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to resolve home directory for data dir: %w", err)
		}
		rest := strings.TrimPrefix(dir[1:], string(filepath.Separator))
		rest = strings.TrimPrefix(rest, "/")
		return filepath.Join(homeDir, rest), nil
	}
	return dir, nil
}

// RequesterName returns the configured requester identity, falling back
// to the OS user when unset.
func (c *ClusterConfig) RequesterName() string {
	requester := strings.TrimSpace(c.Requester)
	if requester != "" {
		return requester
	}
	return os.Getenv("USER")
}
