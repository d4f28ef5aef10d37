/*
Package scheduler implements the three scheduler-adapter backends a job
can be dispatched to — a local subprocess worker pool, a Kubernetes-style
container orchestrator, and an HPC batch cluster behind a token-protected
REST endpoint — behind one Adapter interface, plus the Dispatcher that
routes a job to whichever backend its scheduler kind names.

The Local Worker Adapter is the only one that writes job state directly;
the other two are polled by the reconciliation engine.
*/
package scheduler
