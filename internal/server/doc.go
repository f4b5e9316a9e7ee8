// Package server implements the HTTP boundary of Share On Air. It mounts
// the upload, retrieve, download and stats routes on a chi router, maps
// share errors to HTTP statuses and carries the ambient middleware
// (request ids, access log, CORS, rate limit, security headers), the
// health probes and the Prometheus endpoint.
package server
