// Package status serves the client's operational endpoints: a health check,
// a JSON status document and Prometheus metrics.
package status
