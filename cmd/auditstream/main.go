package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/councilkit/auditstream"
)

// ============================================================================
// Config types
// ============================================================================

// Config represents the CLI configuration stored in ~/.auditstream/config.toml.
type Config struct {
	Default ConfigDefault `toml:"default"`
	Stream  ConfigStream  `toml:"stream"`
}

// ConfigDefault holds general settings.
type ConfigDefault struct {
	Endpoint string `toml:"endpoint"`
	Verbose  bool   `toml:"verbose"`
}

// ConfigStream holds stream tuning. Zero values defer to the library
// defaults.
type ConfigStream struct {
	HeartbeatSeconds     int `toml:"heartbeat_seconds"`
	ReconnectBaseMillis  int `toml:"reconnect_base_millis"`
	MaxReconnectAttempts int `toml:"max_reconnect_attempts"`
	QueueCapacity        int `toml:"queue_capacity"`
}

// ============================================================================
// Config helpers
// ============================================================================

// configDir returns the path to ~/.auditstream, creating it if needed.
func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".auditstream")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("cannot create config directory: %w", err)
	}
	return dir, nil
}

// configPath returns the full path to the config file.
func configPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// loadConfig reads and parses the config file.
// If the file does not exist, it returns a zero-value Config.
func loadConfig() (*Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("cannot read config: %w", err)
	}
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config: %w", err)
	}
	return &cfg, nil
}

// saveConfig writes the config struct back to disk as TOML.
func saveConfig(cfg *Config) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("cannot write config: %w", err)
	}
	return nil
}

// setConfigValue sets a config field using dot notation (e.g. "default.endpoint").
func setConfigValue(cfg *Config, key, value string) error {
	parts := strings.SplitN(key, ".", 2)
	if len(parts) != 2 {
		return fmt.Errorf("key must use dot notation: section.field (e.g. default.endpoint)")
	}
	section, field := parts[0], parts[1]

	switch section {
	case "default":
		switch field {
		case "endpoint":
			cfg.Default.Endpoint = value
		case "verbose":
			v, err := strconv.ParseBool(value)
			if err != nil {
				return fmt.Errorf("default.verbose must be true or false")
			}
			cfg.Default.Verbose = v
		default:
			return fmt.Errorf("unknown field %q in section [default]", field)
		}
	case "stream":
		v, err := strconv.Atoi(value)
		if err != nil || v < 0 {
			return fmt.Errorf("stream.%s must be a non-negative integer", field)
		}
		switch field {
		case "heartbeat_seconds":
			cfg.Stream.HeartbeatSeconds = v
		case "reconnect_base_millis":
			cfg.Stream.ReconnectBaseMillis = v
		case "max_reconnect_attempts":
			cfg.Stream.MaxReconnectAttempts = v
		case "queue_capacity":
			cfg.Stream.QueueCapacity = v
		default:
			return fmt.Errorf("unknown field %q in section [stream]", field)
		}
	default:
		return fmt.Errorf("unknown config section %q (valid: default, stream)", section)
	}
	return nil
}

// ============================================================================
// Client factory
// ============================================================================

// buildClient is the one place a client gets constructed from CLI config.
func buildClient(cfg *Config) *auditstream.Client {
	logger := zerolog.Nop()
	if cfg.Default.Verbose {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			With().Timestamp().Logger()
	}

	streamCfg := auditstream.Config{
		Endpoint: cfg.Default.Endpoint,
		Logger:   &logger,
	}
	if cfg.Stream.HeartbeatSeconds > 0 {
		streamCfg.HeartbeatInterval = time.Duration(cfg.Stream.HeartbeatSeconds) * time.Second
	}
	if cfg.Stream.ReconnectBaseMillis > 0 {
		streamCfg.ReconnectInterval = time.Duration(cfg.Stream.ReconnectBaseMillis) * time.Millisecond
	}
	if cfg.Stream.MaxReconnectAttempts > 0 {
		streamCfg.MaxReconnectAttempts = cfg.Stream.MaxReconnectAttempts
	}
	if cfg.Stream.QueueCapacity > 0 {
		streamCfg.QueueCapacity = cfg.Stream.QueueCapacity
	}

	return auditstream.NewClient(streamCfg)
}

// ============================================================================
// Root command
// ============================================================================

var rootCmd = &cobra.Command{
	Use:   "auditstream",
	Short: "CouncilKit audit stream CLI",
	Long:  "Command-line interface for the CouncilKit audit event stream.\nListen for notifications, send messages, and check connection status.",
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
