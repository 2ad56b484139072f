// Package castlog provides the structured logger every layer of the
// device channel pulls at construction time, tagged with its own
// component name. There is no global mutable logger — callers thread the
// *slog.Logger returned here through constructors, the way the reference
// server's handlers and core services take their dependencies as
// constructor arguments.
package castlog

import "log/slog"

// For returns a logger tagged with component, derived from slog's current
// default logger so callers that configure slog.SetDefault at process
// start (their own handler, level, output) get that configuration applied
// here too.
func For(component string) *slog.Logger {
	return slog.Default().With("component", component)
}
