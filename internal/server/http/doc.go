// Package httpserver exposes the notification engine over HTTP: a JSON
// notify endpoint, a Server-Sent Events listen stream, introspection, and
// Prometheus metrics.
package httpserver
