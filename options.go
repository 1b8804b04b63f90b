package crashdetect

import (
	"github.com/rs/zerolog"

	"github.com/laschicaz/samp-plugin-crashdetect/hosttrace"
	"github.com/laschicaz/samp-plugin-crashdetect/servercfg"
)

// Option describes a function used to configure a Monitor.
type Option func(*Monitor)

// WithLogFunc replaces the report sink. Every diagnostic line is passed
// to logf already carrying the "[debug] " prefix.
func WithLogFunc(logf func(format string, args ...any)) Option {
	return func(m *Monitor) {
		m.logf = logf
	}
}

// WithLogger supplies a logger for the monitor's own debug events
// (attach resolution, incident identifiers). These are separate from
// the report lines.
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Monitor) {
		m.logger = logger
	}
}

// WithConfig adopts a loaded server configuration.
func WithConfig(cfg *servercfg.Config) Option {
	return func(m *Monitor) {
		if cfg != nil {
			m.cfg = *cfg
		}
	}
}

// WithDieOnError terminates the process after an error report.
func WithDieOnError(die bool) Option {
	return func(m *Monitor) {
		m.cfg.DieOnError = die
	}
}

// WithRunOnError sets a shell command run after each error report.
func WithRunOnError(command string) Option {
	return func(m *Monitor) {
		m.cfg.RunOnError = command
	}
}

// WithSearchPath replaces the default script search directories. The
// AMX_PATH environment variable is still appended at attach time.
func WithSearchPath(dirs ...string) Option {
	return func(m *Monitor) {
		m.searchDirs = dirs
	}
}

// WithModuleResolver replaces how code addresses are attributed to
// native modules in backtraces and release reports.
func WithModuleResolver(resolver hosttrace.ModuleResolver) Option {
	return func(m *Monitor) {
		m.resolver = resolver
	}
}

// WithKeepAliveIndex overrides the keep-alive probe index documented on
// DefaultKeepAliveIndex.
func WithKeepAliveIndex(index int) Option {
	return func(m *Monitor) {
		m.keepAlive = index
	}
}
