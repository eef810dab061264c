package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wheelfetch.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	isolateEnv(t)

	cfg, err := loadConfig(viper.New(), "")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.GitHub.APIBase != "https://api.github.com" {
		t.Errorf("api base: %q", cfg.GitHub.APIBase)
	}
	if cfg.GitHub.Timeout != 30*time.Second || cfg.GitHub.DownloadTimeout != 10*time.Minute {
		t.Errorf("timeouts: %v %v", cfg.GitHub.Timeout, cfg.GitHub.DownloadTimeout)
	}
	if cfg.GitHub.RequestsPerSecond != 5 {
		t.Errorf("rate: %v", cfg.GitHub.RequestsPerSecond)
	}
	if cfg.Extract.MaxArchiveBytes != 1<<30 || cfg.Extract.MaxEntryBytes != 512<<20 {
		t.Errorf("limits: %d %d", cfg.Extract.MaxArchiveBytes, cfg.Extract.MaxEntryBytes)
	}
	if cfg.Python.Executable != defaultPython() || cfg.Logging.Level != "info" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	isolateEnv(t)
	path := writeConfig(t, `
github:
  api_base: https://ghe.example.com/api/v3
  timeout: 5s
  token: from-file
platform:
  tags:
    - py3-none-any
install:
  pip_args: ["--no-deps"]
logging:
  format: json
`)
	t.Setenv("WHEELFETCH_LOGGING_LEVEL", "debug")

	cfg, err := loadConfig(viper.New(), path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.GitHub.APIBase != "https://ghe.example.com/api/v3" || cfg.GitHub.Timeout != 5*time.Second {
		t.Errorf("file values not applied: %+v", cfg.GitHub)
	}
	if len(cfg.Platform.Tags) != 1 || cfg.Platform.Tags[0] != "py3-none-any" {
		t.Errorf("tags: %v", cfg.Platform.Tags)
	}
	if len(cfg.Install.PipArgs) != 1 || cfg.Install.PipArgs[0] != "--no-deps" {
		t.Errorf("pip args: %v", cfg.Install.PipArgs)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("logging: %+v", cfg.Logging)
	}

	if got := githubToken(cfg); got != "from-file" {
		t.Errorf("config token should be used when env is empty, got %q", got)
	}
	t.Setenv("GITHUB_TOKEN", "from-env")
	if got := githubToken(cfg); got != "from-env" {
		t.Errorf("env token should win, got %q", got)
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "bad api base", body: "github:\n  api_base: ftp://example.com\n"},
		{name: "non-positive rate", body: "github:\n  requests_per_second: 0\n"},
		{name: "bad log level", body: "logging:\n  level: chatty\n"},
		{name: "bad python version", body: "python:\n  version: three\n"},
		{name: "malformed tag", body: "platform:\n  tags: [\"py3-none\"]\n"},
		{name: "signature without key", body: "verify:\n  require_signature: true\n"},
		{name: "zero entry limit", body: "extract:\n  max_entry_bytes: 0\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			isolateEnv(t)
			_, err := loadConfig(viper.New(), writeConfig(t, tc.body))
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !strings.Contains(err.Error(), "invalid configuration") {
				t.Fatalf("expected schema error, got %v", err)
			}
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	isolateEnv(t)
	if _, err := loadConfig(viper.New(), filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for explicit missing config file")
	}
}

func TestInterpreterPins(t *testing.T) {
	cfg := Config{
		Python:   PythonConfig{Version: "3.11"},
		Platform: PlatformConfig{Glibc: "2.28", Musl: "1.2", MacOS: "13.0"},
	}
	in, err := interpreter(t.Context(), cfg)
	if err != nil {
		t.Skipf("runtime not mappable: %v", err)
	}
	if in.Python.Minor != 11 || in.Glibc.Minor != 28 || in.Musl.Minor != 2 || in.MacOS.Major != 13 {
		t.Fatalf("pins not applied: %+v", in)
	}

	cfg.Platform.Glibc = "x"
	if _, err := interpreter(t.Context(), cfg); err == nil {
		t.Fatalf("expected error for bad glibc pin")
	}
}
