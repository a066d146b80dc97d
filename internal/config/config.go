// Package config loads danny settings from defaults, an optional YAML file
// and DANNY_* environment variables, in increasing priority.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix prefixes every environment override: DANNY_NN_USER_CAP -> nn.user_cap
	EnvPrefix = "DANNY_"
	// ConfigPathEnvVar names the config file when --config is not given.
	ConfigPathEnvVar = "DANNY_CONFIG"
	// DefaultConfigFile is read from the working directory when present.
	DefaultConfigFile = "danny.yaml"
)

// Config is the full danny configuration.
type Config struct {
	Store   StoreConfig   `koanf:"store"`
	Output  OutputConfig  `koanf:"output"`
	NN      NNConfig      `koanf:"nn"`
	Ingest  IngestConfig  `koanf:"ingest"`
	Log     LogConfig     `koanf:"log"`
	Metrics MetricsConfig `koanf:"metrics"`
}

type StoreConfig struct {
	// Path overrides database discovery when set.
	Path string `koanf:"path"`
}

type OutputConfig struct {
	Dir    string `koanf:"dir"`
	Format string `koanf:"format" validate:"oneof=json msgpack"`
}

// NNConfig holds the nearest-neighbor batch settings.
type NNConfig struct {
	Sparse bool `koanf:"sparse"`
	// UserCap is -1 for exhaustive mode or 1..1000 for approximate mode.
	UserCap int `koanf:"user_cap" validate:"min=-1,max=1000,ne=0"`
	// Workers is 0 for available parallelism minus 2.
	Workers   int     `koanf:"workers" validate:"min=0"`
	Threshold float64 `koanf:"threshold"`
	Seed      uint64  `koanf:"seed"`
}

type IngestConfig struct {
	OneHot    bool `koanf:"one_hot"`
	ChunkSize int  `koanf:"chunk_size" validate:"min=1"`
	Workers   int  `koanf:"workers" validate:"min=0"`
}

type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn warning error disabled off"`
	Format string `koanf:"format" validate:"oneof=console json"`
}

type MetricsConfig struct {
	// Textfile is where batch metrics are written, if set.
	Textfile string `koanf:"textfile"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Output: OutputConfig{Dir: ".", Format: "json"},
		NN: NNConfig{
			Sparse:    true,
			UserCap:   500,
			Workers:   0,
			Threshold: -1,
		},
		Ingest: IngestConfig{ChunkSize: 500000},
		Log:    LogConfig{Level: "info", Format: "console"},
	}
}

// Load layers defaults, the config file and environment variables.
// path may be empty, in which case DANNY_CONFIG and then danny.yaml in the
// working directory are tried.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	} else if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file: %w", err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	if _, err := os.Stat(DefaultConfigFile); err == nil {
		return DefaultConfigFile
	}
	return ""
}

// envTransformFunc maps DANNY_NN_USER_CAP to nn.user_cap. Variables that
// are not settings (DANNY_DB, DANNY_CONFIG) are skipped.
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	section, rest, ok := strings.Cut(key, "_")
	if !ok {
		return ""
	}
	return section + "." + rest
}

var validate = validator.New()

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
