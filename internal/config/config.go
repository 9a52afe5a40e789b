// Package config handles mathvm.toml run configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"mathvm/pkg/interpreter"
	"os"

	"github.com/BurntSushi/toml"
)

// FileName is the configuration file looked up in the working directory.
const FileName = "mathvm.toml"

// Config represents a mathvm.toml configuration.
type Config struct {
	Run    Run    `toml:"run"`
	Output Output `toml:"output"`
	Log    Log    `toml:"log"`

	// Path is the file the configuration was read from, empty for defaults.
	Path string `toml:"-"`
}

// Run bounds program execution.
type Run struct {
	MaxSteps     int `toml:"max-steps"`
	MaxCallDepth int  `toml:"max-call-depth"`
	Trace        bool `toml:"trace"`
}

// Output controls what the driver emits besides program output.
type Output struct {
	Disassemble bool   `toml:"disassemble"`
	Binary      string `toml:"binary"`
	NoColor     bool   `toml:"no-color"`
}

type Log struct {
	Verbose bool `toml:"verbose"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Run: Run{MaxCallDepth: interpreter.DefaultMaxDepth},
	}
}

// Load reads path. A missing file is an error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	c.Path = path
	return c, nil
}

// LoadOptional reads path if it exists and falls back to the defaults otherwise.
func LoadOptional(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return Load(path)
}

// Parse decodes a TOML document over the defaults and validates it.
func Parse(data []byte) (*Config, error) {
	c := Default()
	md, err := toml.Decode(string(data), c)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown key %q", undecoded[0].String())
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate rejects negative limits. Zero max-steps means unlimited; zero
// max-call-depth also disables the depth check.
func (c *Config) Validate() error {
	if c.Run.MaxSteps < 0 {
		return fmt.Errorf("run.max-steps must not be negative, got %d", c.Run.MaxSteps)
	}
	if c.Run.MaxCallDepth < 0 {
		return fmt.Errorf("run.max-call-depth must not be negative, got %d", c.Run.MaxCallDepth)
	}
	return nil
}
