// Package config loads the hotwire host configuration from TOML or YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ZenLiuCN/hotwire/internal/logging"
	"gopkg.in/yaml.v3"
)

const (
	EnvDir         = "HOTWIRE_DIR"
	EnvWatch       = "HOTWIRE_WATCH"
	EnvConcurrency = "HOTWIRE_CONCURRENCY"
)

var (
	// ErrFormat occurs when the configuration file is neither TOML nor YAML.
	ErrFormat = errors.New("unsupported configuration format")
	// ErrInvalid occurs when a loaded configuration fails validation.
	ErrInvalid = errors.New("invalid configuration")
)

// Extensions of loadable module files.
var Extensions = []string{".o", ".a", ".linkable"}

type (
	Config struct {
		Dir         string         `toml:"dir" yaml:"dir"`
		Modules     []Module       `toml:"modules" yaml:"modules"`
		Watch       bool           `toml:"watch" yaml:"watch"`
		Poll        Duration       `toml:"poll" yaml:"poll"`
		Concurrency int            `toml:"concurrency" yaml:"concurrency"`
		Debug       bool           `toml:"debug" yaml:"debug"`
		Symbols     Symbols        `toml:"symbols" yaml:"symbols"`
		Log         logging.Config `toml:"log" yaml:"log"`
	}
	// Module is a module file and the package path it was compiled with.
	Module struct {
		Path    string `toml:"path" yaml:"path"`
		Package string `toml:"package" yaml:"package"`
	}
	// Symbols are extra symbol sources for the object container.
	Symbols struct {
		So         []string `toml:"so" yaml:"so"`
		Executable string   `toml:"executable" yaml:"executable"`
	}
	// Duration reads "1s"-style strings.
	Duration struct {
		time.Duration
	}
)

func (d *Duration) UnmarshalText(text []byte) (err error) {
	d.Duration, err = time.ParseDuration(strings.TrimSpace(string(text)))
	return
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default configuration: modules of the working directory, one second stall poll.
func Default() Config {
	return Config{Dir: ".", Poll: Duration{time.Second}, Log: logging.Default()}
}

// Load reads path over the defaults, chosen by extension, then applies environment overrides.
func Load(path string) (cfg Config, err error) {
	cfg = Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		_, err = toml.Decode(string(data), &cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		return cfg, fmt.Errorf("%w: %s", ErrFormat, path)
	}
	if err != nil {
		return cfg, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	ApplyEnv(&cfg)
	return cfg, cfg.Validate()
}

// ApplyEnv overrides cfg from the environment.
func ApplyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvDir)); v != "" {
		cfg.Dir = v
	}
	if v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(EnvWatch))); err == nil {
		cfg.Watch = v
	}
	if v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(EnvConcurrency))); err == nil {
		cfg.Concurrency = v
	}
	logging.ApplyEnv(&cfg.Log)
}

func (c Config) Validate() error {
	switch {
	case c.Concurrency < 0:
		return fmt.Errorf("%w: concurrency %d", ErrInvalid, c.Concurrency)
	case c.Poll.Duration < 0:
		return fmt.Errorf("%w: poll %s", ErrInvalid, c.Poll)
	}
	for i, m := range c.Modules {
		if m.Path == "" {
			return fmt.Errorf("%w: modules[%d] has no path", ErrInvalid, i)
		}
	}
	return nil
}

// Resolve lists the modules to load: the configured ones relative to Dir, or every module file of
// Dir when none are configured.
func (c Config) Resolve() ([]Module, error) {
	if len(c.Modules) > 0 {
		out := make([]Module, len(c.Modules))
		for i, m := range c.Modules {
			if !filepath.IsAbs(m.Path) {
				m.Path = filepath.Join(c.Dir, m.Path)
			}
			out[i] = m
		}
		return out, nil
	}
	entries, err := os.ReadDir(c.Dir)
	if err != nil {
		return nil, err
	}
	var out []Module
	for _, e := range entries {
		if !e.IsDir() && IsModule(e.Name()) {
			out = append(out, Module{Path: filepath.Join(c.Dir, e.Name())})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// IsModule reports whether name has a loadable module extension.
func IsModule(name string) bool {
	ext := filepath.Ext(name)
	for _, x := range Extensions {
		if ext == x {
			return true
		}
	}
	return false
}
