// Package observability provides run observers for metrics and structured logs.
package observability
