// Package internaldefs holds the shared counter definitions used by the
// Prometheus and OpenTelemetry exporters, so both expose the same names
// and help strings.
package internaldefs
