/*
Package metrics provides Prometheus metrics collection and exposition for the
job-orchestration service.

Metrics are registered once at package init and exposed via an HTTP handler
mounted on the API surface (GET /metrics) for scraping. Components record
against package-level collectors directly; there is no per-component
registry indirection, matching how the rest of this codebase prefers a
single source of truth over wrapper layers.
*/
package metrics
