// Package config provides configuration parsing and validation for the
// file-transfer agent.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the complete agent configuration.
type Config struct {
	Device   DeviceConfig   `yaml:"device"`
	Transfer TransferConfig `yaml:"transfer"`
	Log      LogConfig      `yaml:"log"`
}

// DeviceConfig identifies this device to peers during discovery and the
// handshake, mirroring the fields packed into the EndpointInfo byte layout.
type DeviceConfig struct {
	// Name is the human-readable device name (Unicode allowed), shown to
	// the peer during the PIN confirmation step.
	Name string `yaml:"name"`

	// Visible controls the EndpointInfo visibility bit. An invisible
	// device will still respond to a directed connection attempt but
	// does not solicit one.
	Visible bool `yaml:"visible"`

	// Type is the opaque 3-bit device type taxonomy value (0-7) packed
	// into EndpointInfo.DeviceType.
	Type uint8 `yaml:"type"`
}

// TransferConfig controls file-transfer behavior.
type TransferConfig struct {
	// DownloadDir is the directory incoming files are written to.
	DownloadDir string `yaml:"download_dir"`

	// AutoAccept skips the interactive accept/reject prompt and accepts
	// every inbound transfer automatically.
	AutoAccept bool `yaml:"auto_accept"`

	// RateLimitBytesPerSec caps outgoing payload throughput. 0 means
	// unlimited.
	RateLimitBytesPerSec int `yaml:"rate_limit_bytes_per_sec"`

	// MaxFileSize is a file size limit in bytes; Validate rejects negative
	// values. The session controller does not consult it, so incoming files
	// are accepted whatever their size.
	MaxFileSize int64 `yaml:"max_file_size"`
}

// LogConfig controls structured logging output.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			Name:    "auto",
			Visible: true,
			Type:    3, // phone/laptop, per the undocumented upstream taxonomy
		},
		Transfer: TransferConfig{
			DownloadDir:          "./downloads",
			AutoAccept:           false,
			RateLimitBytesPerSec: 0,
			MaxFileSize:          2 * 1024 * 1024 * 1024, // 2 GiB
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads and parses a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses configuration from YAML bytes.
func Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// envVarRegex matches ${VAR} or $VAR patterns.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars replaces environment variable references with their values.
func expandEnvVars(s string) string {
	return envVarRegex.ReplaceAllStringFunc(s, func(match string) string {
		var name string
		if strings.HasPrefix(match, "${") {
			name = match[2 : len(match)-1]
		} else {
			name = match[1:]
		}

		if idx := strings.Index(name, ":-"); idx != -1 {
			varName := name[:idx]
			defaultVal := name[idx+2:]
			if val, ok := os.LookupEnv(varName); ok {
				return val
			}
			return defaultVal
		}

		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Device.Name == "" {
		errs = append(errs, "device.name is required")
	}
	if c.Device.Type > 7 {
		errs = append(errs, "device.type must be between 0 and 7")
	}

	if c.Transfer.DownloadDir == "" {
		errs = append(errs, "transfer.download_dir is required")
	}
	if c.Transfer.RateLimitBytesPerSec < 0 {
		errs = append(errs, "transfer.rate_limit_bytes_per_sec must not be negative")
	}
	if c.Transfer.MaxFileSize < 0 {
		errs = append(errs, "transfer.max_file_size must not be negative")
	}

	if !isValidLogLevel(c.Log.Level) {
		errs = append(errs, fmt.Sprintf("invalid log.level: %s (must be debug, info, warn, or error)", c.Log.Level))
	}
	if !isValidLogFormat(c.Log.Format) {
		errs = append(errs, fmt.Sprintf("invalid log.format: %s (must be text or json)", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

func isValidLogFormat(format string) bool {
	switch format {
	case "text", "json":
		return true
	default:
		return false
	}
}

// String returns a YAML representation of the config, suitable for logging.
func (c *Config) String() string {
	data, _ := yaml.Marshal(c)
	return string(data)
}
