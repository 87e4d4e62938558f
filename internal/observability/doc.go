// Package observability owns the operator-facing view of a scenario run.
//
// Ownership boundary:
// - Prometheus collectors for runs, phases, steps and HTTP requests
//
// - gin request logging and metrics middleware
//
// - the status server (/health, /status, /metrics) and its event tracker
//
// Observability never changes the outcome of a run.
package observability
