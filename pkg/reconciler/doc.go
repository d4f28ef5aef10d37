// Package reconciler polls the container orchestrator and HPC cluster
// adapters for jobs the submission controller handed off to them, since
// neither backend pushes status changes back on its own. The local worker
// adapter writes its own job records directly and is excluded from every
// reconciliation cycle.
package reconciler
