// Package reconciler implements the reconciliation engine: a ticker-driven
// loop that polls the scheduler adapters for jobs not owned end-to-end by
// the local worker adapter, applies any terminal-state transition it
// observes, and triggers output packaging exactly once per transition.
package reconciler

import (
	"context"
	"sync"
	"time"

	"github.com/cuemby/warren/pkg/log"
	"github.com/cuemby/warren/pkg/metrics"
	"github.com/cuemby/warren/pkg/packager"
	"github.com/cuemby/warren/pkg/scheduler"
	"github.com/cuemby/warren/pkg/storage"
	"github.com/cuemby/warren/pkg/types"
	"github.com/rs/zerolog"
)

// Reconciler polls the scheduler adapters for the state of every
// unfinished job not self-reported by the local worker adapter, and
// packages the output directory of any job it observes going terminal.
type Reconciler struct {
	store      storage.JobStore
	dispatcher *scheduler.Dispatcher
	packager   *packager.Packager
	period     time.Duration
	logger     zerolog.Logger

	mu     sync.Mutex
	stopCh chan struct{}
}

// New constructs a Reconciler. period is the tick interval between cycles.
func New(store storage.JobStore, dispatcher *scheduler.Dispatcher, pkg *packager.Packager, period time.Duration) *Reconciler {
	return &Reconciler{
		store:      store,
		dispatcher: dispatcher,
		packager:   pkg,
		period:     period,
		logger:     log.WithComponent("reconciler"),
		stopCh:     make(chan struct{}),
	}
}

// Start begins the reconciliation loop in its own goroutine.
func (r *Reconciler) Start() {
	go r.run()
}

// Stop halts the reconciliation loop.
func (r *Reconciler) Stop() {
	close(r.stopCh)
}

func (r *Reconciler) run() {
	ticker := time.NewTicker(r.period)
	defer ticker.Stop()

	r.logger.Info().Msg("reconciliation engine started")

	for {
		select {
		case <-ticker.C:
			r.reconcile()
		case <-r.stopCh:
			r.logger.Info().Msg("reconciliation engine stopped")
			return
		}
	}
}

// reconcile runs one cycle: list every unfinished job across all users,
// bucket by scheduler kind, poll each backend, and apply any terminal
// transition observed.
func (r *Reconciler) reconcile() {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.ReconciliationDuration)
		metrics.ReconciliationCyclesTotal.Inc()
	}()

	r.mu.Lock()
	defer r.mu.Unlock()

	jobs, err := r.store.FindUnfinishedAllUsers()
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to list unfinished jobs")
		return
	}

	buckets := make(map[types.SchedulerKind][]*types.Job)
	for _, job := range jobs {
		// Local jobs self-report their own terminal state from the
		// monitor loop; reconciliation has nothing to poll for them.
		if job.Scheduler == types.SchedulerLocal {
			continue
		}
		buckets[job.Scheduler] = append(buckets[job.Scheduler], job)
	}

	for kind, bucketJobs := range buckets {
		r.reconcileBucket(kind, bucketJobs)
	}
}

func (r *Reconciler) reconcileBucket(kind types.SchedulerKind, jobs []*types.Job) {
	if len(jobs) == 0 {
		return
	}

	adapter, err := r.dispatcher.For(string(kind))
	if err != nil {
		r.logger.Error().Err(err).Str("scheduler", string(kind)).Msg("no adapter for scheduler kind")
		return
	}

	byPid := make(map[string]*types.Job, len(jobs))
	pids := make([]string, 0, len(jobs))
	for _, job := range jobs {
		if job.Pid == "" {
			continue
		}
		byPid[job.Pid] = job
		pids = append(pids, job.Pid)
	}
	if len(pids) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	callTimer := metrics.NewTimer()
	results, err := adapter.StatusBatch(ctx, pids)
	callTimer.ObserveDurationVec(metrics.AdapterCallDuration, string(kind), "status_batch")
	if err != nil {
		metrics.AdapterCallsFailed.WithLabelValues(string(kind), "status_batch").Inc()
		r.logger.Error().Err(err).Str("scheduler", string(kind)).Msg("status batch call failed")
		return
	}

	for pid, job := range byPid {
		res, ok := results[pid]
		if !ok {
			continue
		}
		r.applyTransition(kind, job, res, adapter)
	}
}

// applyTransition writes an observed status back to the job record and,
// the first time a job reaches a terminal state, packages its output
// directory and best-effort deletes the underlying workload.
func (r *Reconciler) applyTransition(kind types.SchedulerKind, job *types.Job, res scheduler.StatusResult, adapter scheduler.Adapter) {
	if job.State.Terminal() {
		// Already terminal; nothing left to reconcile for this job.
		return
	}

	wasUnfinished := job.State.Unfinished()
	job.State = res.State
	job.Status = res.Status
	job.ExitCode = res.ExitCode
	job.ElapsedTime = res.ElapsedTime

	if err := r.store.UpdateJob(job.User, job); err != nil {
		r.logger.Error().Err(err).Str("job_id", job.JobID).Msg("failed to persist reconciled job state")
		return
	}

	if wasUnfinished && job.State.Terminal() {
		metrics.ReconciliationTransitionsTotal.WithLabelValues(string(kind), string(job.State)).Inc()
		r.logger.Info().
			Str("job_id", job.JobID).
			Str("scheduler", string(kind)).
			Str("state", string(job.State)).
			Msg("job reached terminal state")

		if err := r.packager.Package(job.JobTopDir, job.JobID); err != nil {
			r.logger.Error().Err(err).Str("job_id", job.JobID).Msg("failed to package job output")
		}

		r.deleteWorkloadBestEffort(kind, job, adapter)
	}
}

// deleteWorkloadBestEffort removes the underlying workload for adapters
// that leave a resource behind after completion (the container
// orchestrator). Failure is logged and otherwise ignored: a leftover
// completed Job resource does not affect correctness.
func (r *Reconciler) deleteWorkloadBestEffort(kind types.SchedulerKind, job *types.Job, adapter scheduler.Adapter) {
	if kind != types.SchedulerOrchestrator {
		return
	}
	type terminalDeleter interface {
		DeleteTerminal(ctx context.Context, pid string) error
	}
	deleter, ok := adapter.(terminalDeleter)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := deleter.DeleteTerminal(ctx, job.Pid); err != nil {
		r.logger.Warn().Err(err).Str("job_id", job.JobID).Msg("failed to delete terminal workload")
	}
}
