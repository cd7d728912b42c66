// Package config loads hdrsdr settings from defaults and HDRSDR_* environment variables.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "HDRSDR_"

// Config holds normalizer, worker pool and logging settings.
type Config struct {
	Quality         int    `koanf:"quality" validate:"min=0,max=100"`
	Workers         int    `koanf:"workers" validate:"min=1,max=1024"`
	MaxDimension    uint   `koanf:"max_dimension" validate:"max=65535"`
	PassthroughSRGB bool   `koanf:"passthrough_srgb"`
	Encoder         string `koanf:"encoder" validate:"omitempty,oneof=jpegli std"`
	Decoder         string `koanf:"decoder" validate:"omitempty,oneof=wide-gamut color-managed basic"`
	Log             Log    `koanf:"log"`
}

// Log configures the process logger.
type Log struct {
	Level string `koanf:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `koanf:"json"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Quality: 90,
		Workers: runtime.GOMAXPROCS(0),
		Log:     Log{Level: "info"},
	}
}

// envToPath maps environment variables to configuration keys.
var envToPath = map[string]string{
	EnvPrefix + "QUALITY":          "quality",
	EnvPrefix + "WORKERS":          "workers",
	EnvPrefix + "MAX_DIMENSION":    "max_dimension",
	EnvPrefix + "PASSTHROUGH_SRGB": "passthrough_srgb",
	EnvPrefix + "ENCODER":          "encoder",
	EnvPrefix + "DECODER":          "decoder",
	EnvPrefix + "LOG_LEVEL":        "log.level",
	EnvPrefix + "LOG_JSON":         "log.json",
}

// Load reads defaults, applies environment overrides and validates the result.
func Load() (*Config, error) {
	return load(os.Environ)
}

func load(environ func() []string) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if err := k.Load(env.Provider(".", env.Opt{
		Prefix:      EnvPrefix,
		EnvironFunc: environ,
		TransformFunc: func(key, value string) (string, any) {
			path, ok := envToPath[key]
			if !ok {
				return "", nil
			}
			return path, strings.TrimSpace(value)
		},
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges and enumerations.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration cannot be nil")
	}
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}
