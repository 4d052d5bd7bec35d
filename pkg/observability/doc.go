/*
Package observability turns engine lifecycle hooks into metrics and logs.

Metrics exposes Prometheus collectors for node executions, supersteps and
checkpoint writes. LoggingHooks writes the same events as structured slog records.
Both return domain.LifecycleHooks, so they can be combined with Combine and
passed to the engine.
*/
package observability
