package internal

import "io"

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config    *Config
	logOutput io.Writer
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithLogOutput sends logs to w instead of the command's default stream
// (stdout for the HTTP server and migrations, stderr for MCP).
func WithLogOutput(w io.Writer) Option {
	return func(a *application) {
		a.logOutput = w
	}
}

func (a *application) logWriter(fallback io.Writer) io.Writer {
	if a.logOutput != nil {
		return a.logOutput
	}
	return fallback
}
