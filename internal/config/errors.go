package config

import (
	"errors"
	"fmt"
)

// ConfigError wraps a failure to read or parse the configuration file.
// It is fatal at startup and non-fatal during hot-reload.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Mutation errors reported back to the requesting IRC user.
var (
	ErrDuplicate = errors.New("already exists")
	ErrNotFound  = errors.New("not found")
)
