package main

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/spf13/viper"

	"github.com/3leaps/wheelfetch/internal/extract"
	gh "github.com/3leaps/wheelfetch/internal/host/github"
	"github.com/3leaps/wheelfetch/internal/logging"
)

const envPrefix = "WHEELFETCH"

//go:embed config.schema.json
var configSchema []byte

type Config struct {
	GitHub   GitHubConfig   `mapstructure:"github" json:"github"`
	Python   PythonConfig   `mapstructure:"python" json:"python"`
	Platform PlatformConfig `mapstructure:"platform" json:"platform"`
	Extract  ExtractConfig  `mapstructure:"extract" json:"extract"`
	Verify   VerifyConfig   `mapstructure:"verify" json:"verify"`
	Install  InstallConfig  `mapstructure:"install" json:"install"`
	Logging  logging.Config `mapstructure:"logging" json:"logging"`
}

type GitHubConfig struct {
	APIBase           string        `mapstructure:"api_base" json:"api_base"`
	Token             string        `mapstructure:"token" json:"-"`
	Timeout           time.Duration `mapstructure:"timeout" json:"timeout"`
	DownloadTimeout   time.Duration `mapstructure:"download_timeout" json:"download_timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" json:"requests_per_second"`
}

type PythonConfig struct {
	Executable string `mapstructure:"executable" json:"executable"`
	Version    string `mapstructure:"version" json:"version"`
}

// PlatformConfig overrides interpreter probing. Tags wins over everything;
// the libc and macOS pins only apply together with python.version.
type PlatformConfig struct {
	Tags  []string `mapstructure:"tags" json:"tags"`
	Glibc string   `mapstructure:"glibc" json:"glibc"`
	Musl  string   `mapstructure:"musl" json:"musl"`
	MacOS string   `mapstructure:"macos" json:"macos"`
}

type ExtractConfig struct {
	MaxArchiveBytes int64 `mapstructure:"max_archive_bytes" json:"max_archive_bytes"`
	MaxEntryBytes   int64 `mapstructure:"max_entry_bytes" json:"max_entry_bytes"`
}

type VerifyConfig struct {
	MinisignKey      string `mapstructure:"minisign_key" json:"minisign_key"`
	RequireSignature bool   `mapstructure:"require_signature" json:"require_signature"`
}

type InstallConfig struct {
	PipArgs []string `mapstructure:"pip_args" json:"pip_args"`
}

func defaultPython() string {
	if runtime.GOOS == "windows" {
		return "python"
	}
	return "python3"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("github.api_base", gh.DefaultAPIBase)
	v.SetDefault("github.token", "")
	v.SetDefault("github.timeout", "30s")
	v.SetDefault("github.download_timeout", "10m")
	v.SetDefault("github.requests_per_second", 5)

	v.SetDefault("python.executable", defaultPython())
	v.SetDefault("python.version", "")

	v.SetDefault("platform.tags", []string{})
	v.SetDefault("platform.glibc", "")
	v.SetDefault("platform.musl", "")
	v.SetDefault("platform.macos", "")

	v.SetDefault("extract.max_archive_bytes", extract.DefaultMaxArchiveBytes)
	v.SetDefault("extract.max_entry_bytes", extract.DefaultMaxEntryBytes)

	v.SetDefault("verify.minisign_key", "")
	v.SetDefault("verify.require_signature", false)

	v.SetDefault("install.pip_args", []string{})

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 10)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 28)
	v.SetDefault("logging.compress", false)
}

// loadConfig merges defaults, the config file, WHEELFETCH_* variables and
// any flags already bound to v, then validates the result.
func loadConfig(v *viper.Viper, path string) (Config, error) {
	// A missing .env is normal; the real environment always wins.
	_ = godotenv.Load()

	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("wheelfetch")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "wheelfetch"))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validateConfig(cfg Config) error {
	compiler := jsonschema.NewCompiler()
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(configSchema))
	if err != nil {
		return fmt.Errorf("decode config schema: %w", err)
	}
	if err := compiler.AddResource("config.schema.json", doc); err != nil {
		return fmt.Errorf("add config schema: %w", err)
	}
	schema, err := compiler.Compile("config.schema.json")
	if err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	payload, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	if err := schema.Validate(inst); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// githubToken picks the first credential from the environment, then the
// config file.
func githubToken(cfg Config) string {
	if tok := gh.TokenFromEnv(); tok != "" {
		return tok
	}
	return strings.TrimSpace(cfg.GitHub.Token)
}
