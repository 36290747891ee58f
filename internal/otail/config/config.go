// Package config loads and persists otail's YAML configuration file:
// read-only flag and colouring rules. Lookup order, precedence and the
// on-change rewrite behaviour follow spec.md §6.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/snonux/otail/internal/otail/ferrors"
	"gopkg.in/yaml.v3"
)

// ColouringRule describes one line-highlighting rule persisted in the
// config file. FilterType mirrors filterspec.Kind's plain/regex vocabulary
// but is kept as its own string-backed type here so the config package
// does not need to depend on the filter scanning internals.
type ColouringRule struct {
	Pattern    string `yaml:"pattern"`
	FilterType string `yaml:"filter_type"` // "plain_ci" | "plain_cs" | "regex"
	Enabled    bool   `yaml:"enabled"`
	FG         Color  `yaml:"fg,omitempty"`
	BG         Color  `yaml:"bg,omitempty"`
}

// Config is the top-level YAML document.
type Config struct {
	ReadOnly bool            `yaml:"readonly"`
	Rules    []ColouringRule `yaml:"rules"`

	// path is the file this Config was loaded from (or would be written
	// to); empty if no config file exists anywhere in the lookup order.
	path string
}

// DefaultLookupPaths returns the three candidate config paths in the order
// they are tried: ./otail.yaml, ./.otail.yaml, $HOME/.config/otail.yaml.
func DefaultLookupPaths() []string {
	var home string
	if h, err := os.UserHomeDir(); err == nil {
		home = h
	}
	paths := []string{"otail.yaml", ".otail.yaml"}
	if home != "" {
		paths = append(paths, filepath.Join(home, ".config", "otail.yaml"))
	}
	return paths
}

// Load finds and parses the configuration file. If explicitPath is
// non-empty it is used verbatim and a missing file is an error
// (ferrors.ErrConfigNotFound). Otherwise the default lookup order is
// tried and a Config with no rules is returned if none exist.
func Load(explicitPath string) (*Config, error) {
	if explicitPath != "" {
		return loadFrom(explicitPath, true)
	}
	for _, p := range DefaultLookupPaths() {
		if _, err := os.Stat(p); err == nil {
			return loadFrom(p, true)
		}
	}
	return &Config{}, nil
}

func loadFrom(path string, mustExist bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && mustExist {
			return nil, fmt.Errorf("%w: %s", ferrors.ErrConfigNotFound, path)
		}
		return nil, ferrors.Wrap(err, "reading config "+path)
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ferrors.ErrConfigMalformed, path, err)
	}
	c.path = path
	return &c, nil
}

// Path returns the file this config was loaded from, or "" if it was
// synthesized (no file found anywhere in the lookup order).
func (c *Config) Path() string {
	return c.path
}

// Save rewrites the config file at its current Path. It is a no-op when
// ReadOnly is true. When no path has been established yet, the first
// default lookup path is adopted and written.
func (c *Config) Save() error {
	if c.ReadOnly {
		return nil
	}
	path := c.path
	if path == "" {
		path = DefaultLookupPaths()[0]
		c.path = path
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return ferrors.Wrap(err, "marshalling config")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return ferrors.Wrap(err, "creating config dir")
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return ferrors.Wrap(err, "writing config "+path)
	}
	return nil
}

// AddRule appends a colouring rule and persists the config (subject to
// ReadOnly).
func (c *Config) AddRule(r ColouringRule) error {
	c.Rules = append(c.Rules, r)
	return c.Save()
}

// RemoveRule deletes the rule at index i and persists the config.
func (c *Config) RemoveRule(i int) error {
	if i < 0 || i >= len(c.Rules) {
		return fmt.Errorf("rule index %d out of range", i)
	}
	c.Rules = append(c.Rules[:i], c.Rules[i+1:]...)
	return c.Save()
}
