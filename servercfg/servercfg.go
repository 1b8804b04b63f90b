// Package servercfg reads the server's crash handling options from its
// configuration file.
package servercfg

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/BurntSushi/toml"
)

// DefaultPath is where a server keeps its configuration, relative to the
// working directory it was started from.
const DefaultPath = "server.toml"

// Config holds the recognized options. Unknown keys in the file are
// ignored so the file can carry unrelated server settings.
type Config struct {
	// DieOnError terminates the process after an error report instead
	// of letting the server continue.
	DieOnError bool `toml:"die_on_error"`

	// RunOnError is a shell command executed after each error report.
	// Empty disables it.
	RunOnError string `toml:"run_on_error"`
}

// Load parses the configuration file at path. A missing file is not an
// error: servers without one get the zero configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Config{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	return &cfg, nil
}
