package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Device.Name != "auto" {
		t.Errorf("Device.Name = %s, want auto", cfg.Device.Name)
	}
	if !cfg.Device.Visible {
		t.Error("Device.Visible = false, want true")
	}
	if cfg.Transfer.DownloadDir != "./downloads" {
		t.Errorf("Transfer.DownloadDir = %s, want ./downloads", cfg.Transfer.DownloadDir)
	}
	if cfg.Transfer.AutoAccept {
		t.Error("Transfer.AutoAccept = true, want false")
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %s, want info", cfg.Log.Level)
	}
	if cfg.Log.Format != "text" {
		t.Errorf("Log.Format = %s, want text", cfg.Log.Format)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Default() config failed validation: %v", err)
	}
}

func TestParse_ValidConfig(t *testing.T) {
	yamlConfig := `
device:
  name: "My Laptop"
  visible: true
  type: 2

transfer:
  download_dir: "/tmp/incoming"
  auto_accept: true
  rate_limit_bytes_per_sec: 1048576
  max_file_size: 104857600

log:
  level: "debug"
  format: "json"
`
	cfg, err := Parse([]byte(yamlConfig))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Device.Name != "My Laptop" {
		t.Errorf("Device.Name = %s, want 'My Laptop'", cfg.Device.Name)
	}
	if cfg.Device.Type != 2 {
		t.Errorf("Device.Type = %d, want 2", cfg.Device.Type)
	}
	if cfg.Transfer.DownloadDir != "/tmp/incoming" {
		t.Errorf("Transfer.DownloadDir = %s, want /tmp/incoming", cfg.Transfer.DownloadDir)
	}
	if !cfg.Transfer.AutoAccept {
		t.Error("Transfer.AutoAccept = false, want true")
	}
	if cfg.Transfer.RateLimitBytesPerSec != 1048576 {
		t.Errorf("Transfer.RateLimitBytesPerSec = %d, want 1048576", cfg.Transfer.RateLimitBytesPerSec)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %s, want debug", cfg.Log.Level)
	}
}

func TestParse_InvalidLogLevel(t *testing.T) {
	yamlConfig := `
device:
  name: "My Laptop"
log:
  level: "verbose"
`
	if _, err := Parse([]byte(yamlConfig)); err == nil {
		t.Fatal("Parse() error = nil, want error for invalid log level")
	}
}

func TestParse_InvalidLogFormat(t *testing.T) {
	yamlConfig := `
device:
  name: "My Laptop"
log:
  format: "xml"
`
	if _, err := Parse([]byte(yamlConfig)); err == nil {
		t.Fatal("Parse() error = nil, want error for invalid log format")
	}
}

func TestParse_MissingDeviceName(t *testing.T) {
	yamlConfig := `
device:
  name: ""
`
	if _, err := Parse([]byte(yamlConfig)); err == nil {
		t.Fatal("Parse() error = nil, want error for missing device name")
	}
}

func TestParse_InvalidDeviceType(t *testing.T) {
	yamlConfig := `
device:
  name: "My Laptop"
  type: 9
`
	if _, err := Parse([]byte(yamlConfig)); err == nil {
		t.Fatal("Parse() error = nil, want error for device type out of range")
	}
}

func TestParse_NegativeRateLimit(t *testing.T) {
	yamlConfig := `
device:
  name: "My Laptop"
transfer:
  rate_limit_bytes_per_sec: -1
`
	if _, err := Parse([]byte(yamlConfig)); err == nil {
		t.Fatal("Parse() error = nil, want error for negative rate limit")
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("NBSHARE_DEVICE_NAME", "Env Device")

	yamlConfig := `
device:
  name: "${NBSHARE_DEVICE_NAME}"
`
	cfg, err := Parse([]byte(yamlConfig))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Device.Name != "Env Device" {
		t.Errorf("Device.Name = %s, want 'Env Device'", cfg.Device.Name)
	}
}

func TestExpandEnvVars_DefaultValue(t *testing.T) {
	yamlConfig := `
device:
  name: "${NBSHARE_UNSET_VAR:-Fallback Name}"
`
	cfg, err := Parse([]byte(yamlConfig))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Device.Name != "Fallback Name" {
		t.Errorf("Device.Name = %s, want 'Fallback Name'", cfg.Device.Name)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "device:\n  name: \"From File\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Device.Name != "From File" {
		t.Errorf("Device.Name = %s, want 'From File'", cfg.Device.Name)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Fatal("Load() error = nil, want error for missing file")
	}
}

func TestConfigString(t *testing.T) {
	cfg := Default()
	s := cfg.String()
	if !strings.Contains(s, "auto") {
		t.Errorf("String() = %q, want it to contain device name", s)
	}
}
