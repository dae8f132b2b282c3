// Package config loads reqtrace settings from defaults, an optional config
// file, REQTRACE_ environment variables and command-line flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/phobologic/reqtrace/internal/annotate"
	"github.com/phobologic/reqtrace/internal/discover"
	"github.com/phobologic/reqtrace/internal/lang"
	"github.com/phobologic/reqtrace/internal/model"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "REQTRACE"

// Source selects the files a code or test level is extracted from.
type Source struct {
	Paths     []string `mapstructure:"paths"`
	Languages []string `mapstructure:"languages"`
	// Tests is "only", "exclude" or "any". Empty picks by level kind.
	Tests string `mapstructure:"tests"`
}

// Config represents the settings of one run.
type Config struct {
	BaseURL           string            `mapstructure:"base_url"`
	Commit            string            `mapstructure:"commit"`
	LevelsFile        string            `mapstructure:"levels_file"`
	AnnotationKeyword string            `mapstructure:"annotation_keyword"`
	MaxFileSize       int64             `mapstructure:"max_file_size"`
	Workers           int               `mapstructure:"workers"`
	KeepUnannotated   bool              `mapstructure:"keep_unannotated"`
	Cache             string            `mapstructure:"cache"`
	Sources           map[string]Source `mapstructure:"sources"`
}

// Default holds the values used when nothing else sets a key.
var Default = Config{
	LevelsFile:        "reqtrace.levels.json",
	AnnotationKeyword: annotate.DefaultKeyword,
	MaxFileSize:       1_000_000,
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"base-url":      "base_url",
	"commit":        "commit",
	"levels":        "levels_file",
	"keyword":       "annotation_keyword",
	"max-file-size": "max_file_size",
	"workers":       "workers",
	"all":           "keep_unannotated",
	"cache":         "cache",
}

// Options tells Load where to look.
type Options struct {
	// Root is searched for reqtrace.yaml, reqtrace.yml or reqtrace.json
	// when File is empty.
	Root string
	// File is an explicit config file; it must exist.
	File string
	// Flags, when set, override every other source for the flags that
	// were given on the command line.
	Flags *pflag.FlagSet
}

// Load builds the configuration for a run.
func Load(opts Options) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.File != "" {
		v.SetConfigFile(opts.File)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", opts.File, err)
		}
	} else if opts.Root != "" {
		v.SetConfigName("reqtrace")
		v.AddConfigPath(opts.Root)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	if opts.Flags != nil {
		for name, key := range flagKeys {
			if f := opts.Flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("binding flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("base_url", Default.BaseURL)
	v.SetDefault("commit", Default.Commit)
	v.SetDefault("levels_file", Default.LevelsFile)
	v.SetDefault("annotation_keyword", Default.AnnotationKeyword)
	v.SetDefault("max_file_size", Default.MaxFileSize)
	v.SetDefault("workers", Default.Workers)
	v.SetDefault("keep_unannotated", Default.KeepUnannotated)
	v.SetDefault("cache", Default.Cache)
}

// Validate rejects settings no run could use.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.AnnotationKeyword) == "" {
		return errors.New("config: annotation_keyword is empty")
	}
	if c.MaxFileSize <= 0 {
		return fmt.Errorf("config: max_file_size must be positive, got %d", c.MaxFileSize)
	}
	if c.Workers < 0 {
		return fmt.Errorf("config: workers must not be negative, got %d", c.Workers)
	}
	for name, s := range c.Sources {
		if _, err := parseTests(s.Tests); err != nil {
			return fmt.Errorf("config: sources.%s: %w", name, err)
		}
		for _, l := range s.Languages {
			if _, ok := lang.Languages[l]; !ok {
				return fmt.Errorf("config: sources.%s: unsupported language %q", name, l)
			}
		}
	}
	return nil
}

// LevelsPath returns the levels file, resolved against root when relative.
func (c *Config) LevelsPath(root string) string {
	if filepath.IsAbs(c.LevelsFile) {
		return c.LevelsFile
	}
	return filepath.Join(root, c.LevelsFile)
}

// Discovery returns the discovery options for an extracted level. A level
// without a sources entry scans the whole tree. Level names match sources
// keys case-insensitively, since config keys are case-insensitive.
func (c *Config) Discovery(l *model.Level) discover.Options {
	var s Source
	for name, src := range c.Sources {
		if strings.EqualFold(name, l.Name) {
			s = src
			break
		}
	}
	filter, _ := parseTests(s.Tests)
	if s.Tests == "" {
		switch l.Kind {
		case model.Test:
			filter = discover.OnlyTests
		case model.Code:
			filter = discover.NoTests
		}
	}
	return discover.Options{Languages: s.Languages, Paths: s.Paths, Tests: filter}
}

func parseTests(s string) (discover.TestFilter, error) {
	switch strings.ToLower(s) {
	case "", "any":
		return discover.AnyFile, nil
	case "only":
		return discover.OnlyTests, nil
	case "exclude":
		return discover.NoTests, nil
	}
	return discover.AnyFile, fmt.Errorf("tests must be only, exclude or any, got %q", s)
}

// LoadDotEnv loads dir/.env into the process environment without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(dir string) error {
	path := filepath.Join(dir, ".env")
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}
