// Package otel bridges engine counters to an OpenTelemetry meter via
// observable instruments.
package otel
