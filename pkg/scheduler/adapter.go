// Package scheduler implements the uniform adapter contract that lets the
// submission controller and reconciliation engine dispatch jobs to one of
// three heterogeneous backends without knowing which one owns a given job.
package scheduler

import (
	"context"
	"time"

	"github.com/cuemby/warren/pkg/types"
)

// JobSpec is everything an adapter needs to submit one job. It carries no
// persistence-layer concepts; the submission controller builds it from a
// validated request.
type JobSpec struct {
	JobID        string
	User         string
	App          string
	Command      string
	Args         []string
	JobTopDir    string
	DataInputs   string
	RuntimeHints types.RuntimeHints
}

// SubmitResult is returned on successful dispatch.
type SubmitResult struct {
	Pid        string
	SubmitDate time.Time
	State      types.JobState
}

// StatusResult is the adapter's native-to-common mapped view of one job.
type StatusResult struct {
	Pid         string
	State       types.JobState
	Status      string
	ExitCode    int
	ElapsedTime float64
}

// Adapter is the uniform interface every scheduler backend implements.
// Adapters with no native batch status call implement StatusBatch by
// calling BatchByLoop, which loops Status per pid; only the HPC adapter
// implements it with a native batch call.
type Adapter interface {
	Submit(ctx context.Context, spec JobSpec) (SubmitResult, error)
	Status(ctx context.Context, pid string) (StatusResult, error)
	StatusBatch(ctx context.Context, pids []string) (map[string]StatusResult, error)
	Cancel(ctx context.Context, pid string) error
}

// BatchByLoop implements StatusBatch for adapters with no native batch
// status call by querying Status once per pid. Errors for individual pids
// are dropped from the result map rather than failing the whole batch,
// since the reconciliation engine treats a missing entry as "try again
// next cycle".
func BatchByLoop(ctx context.Context, a Adapter, pids []string) (map[string]StatusResult, error) {
	out := make(map[string]StatusResult, len(pids))
	for _, pid := range pids {
		res, err := a.Status(ctx, pid)
		if err != nil {
			continue
		}
		out[pid] = res
	}
	return out, nil
}

// ExitCodeUnknown is the sentinel exit code used whenever a backend cannot
// report the native exit status.
const ExitCodeUnknown = -1
