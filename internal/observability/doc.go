// Package observability carries the logging, Prometheus metrics and
// OpenTelemetry tracing shared by the experiment pipeline and the collector.
//
// Every component takes these as optional dependencies: a nil *Logger,
// *Metrics or *Tracer is valid and disables that signal.
package observability
