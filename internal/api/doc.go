// Package api exposes the HTTP surface of the harvester: health, run status,
// run triggering and Prometheus metrics.
package api
