package loader

import "log/slog"

// Option configures a Loader at construction time.
type Option func(*settings)

type settings struct {
	logger *slog.Logger
	name   string
}

// WithLogger sets the logger used for state transitions and cancellation
// checkpoints. Loaders log nothing by default.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithName attaches a name to every log record of the loader.
func WithName(name string) Option {
	return func(s *settings) {
		s.name = name
	}
}
