// Package config loads the runtime configuration from defaults, an optional
// YAML file and command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// Engine isolation modes.
const (
	IsolationPerMod = "per-mod"
	IsolationShared = "shared"
)

// ErrInvalidConfig is returned when the merged configuration fails validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the merged runtime configuration.
type Config struct {
	// Mods is the folder scanned for mods.
	Mods string `koanf:"mods" validate:"required"`

	// Content is the game content root served by GameContent helpers.
	Content string `koanf:"content"`

	// Data is where per-mod global data is stored.
	Data string `koanf:"data" validate:"required"`

	// Locale selects translations, e.g. "pt-BR".
	Locale string `koanf:"locale"`

	// Watch enables content file watching.
	Watch bool `koanf:"watch"`

	Log     LogConfig     `koanf:"log"`
	Script  ScriptConfig  `koanf:"script"`
	Tracing TracingConfig `koanf:"tracing"`
}

// LogConfig configures the root logger.
type LogConfig struct {
	Level  string `koanf:"level" validate:"omitempty,oneof=trace debug info warn error fatal panic disabled"`
	Format string `koanf:"format" validate:"omitempty,oneof=console json"`
}

// ScriptConfig configures the script runtime.
type ScriptConfig struct {
	// BaseDir is where runtimes/<rid>/native is resolved. Empty means the
	// directory of the running executable.
	BaseDir string `koanf:"base_dir"`

	// Isolation is "per-mod" or "shared".
	Isolation string `koanf:"isolation" validate:"oneof=per-mod shared"`

	// RequireNative makes a missing native support library fatal for the bridge.
	RequireNative bool `koanf:"require_native"`
}

// TracingConfig toggles load pass spans.
type TracingConfig struct {
	Enabled bool `koanf:"enabled"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Mods:    "Mods",
		Content: "Content",
		Data:    ".selene",
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Script: ScriptConfig{
			Isolation:     IsolationPerMod,
			RequireNative: false,
		},
	}
}

// defaultMap flattens Default for the confmap provider.
func defaultMap() map[string]any {
	def := Default()
	return map[string]any{
		"mods":                  def.Mods,
		"content":               def.Content,
		"data":                  def.Data,
		"locale":                def.Locale,
		"watch":                 def.Watch,
		"log.level":             def.Log.Level,
		"log.format":            def.Log.Format,
		"script.base_dir":       def.Script.BaseDir,
		"script.isolation":      def.Script.Isolation,
		"script.require_native": def.Script.RequireNative,
		"tracing.enabled":       def.Tracing.Enabled,
	}
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"mods":           "mods",
	"content":        "content",
	"data":           "data",
	"locale":         "locale",
	"watch":          "watch",
	"log-level":      "log.level",
	"log-format":     "log.format",
	"script-dir":     "script.base_dir",
	"isolation":      "script.isolation",
	"require-native": "script.require_native",
	"trace":          "tracing.enabled",
}

// BindFlags defines the flags understood by Load.
func BindFlags(flags *pflag.FlagSet) {
	def := Default()
	flags.String("mods", def.Mods, "Mods folder")
	flags.String("content", def.Content, "Game content folder")
	flags.String("data", def.Data, "Global data folder")
	flags.String("locale", def.Locale, "Translation locale (e.g. pt-BR)")
	flags.Bool("watch", def.Watch, "Watch content folders for changes")
	flags.String("log-level", def.Log.Level, "Log level (trace, debug, info, warn, error)")
	flags.String("log-format", def.Log.Format, "Log format (console, json)")
	flags.String("script-dir", def.Script.BaseDir, "Folder containing runtimes/<rid>/native")
	flags.String("isolation", def.Script.Isolation, "Script engine isolation (per-mod, shared)")
	flags.Bool("require-native", def.Script.RequireNative, "Require the native script support library")
	flags.Bool("trace", def.Tracing.Enabled, "Record load pass spans")
}

// Load merges defaults, the YAML file at path (if non-empty) and flags.
func Load(flags *pflag.FlagSet, path string) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaultMap(), "."), nil); err != nil {
		return Config{}, fmt.Errorf("error loading defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return Config{}, fmt.Errorf("config file: %w", err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("error loading %s: %w", path, err)
		}
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return Config{}, fmt.Errorf("error loading command-line flags: %w", err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration values.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}
