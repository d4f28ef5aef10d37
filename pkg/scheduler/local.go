package scheduler

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/cuemby/warren/pkg/log"
	"github.com/cuemby/warren/pkg/storage"
	"github.com/cuemby/warren/pkg/types"
	"github.com/rs/zerolog"
)

// localTask tracks one job the Local Worker owns end to end, from
// enqueue to terminal state. A task is queued before it has a cmd; the
// worker that dequeues it fills in cmd/osPid/start just after Start
// succeeds.
type localTask struct {
	jobID    string
	user     string
	spec     JobSpec
	queuedAt time.Time
	start    time.Time
	cmd      *exec.Cmd
	osPid    int
	canceled bool
	timedOut bool
}

// LocalAdapter runs jobs as subprocesses under their own process group so
// the whole tree can be signaled at once. A bounded pool of workerCount
// goroutines drains a persistent FIFO queue, one job per worker at a time;
// Submit only enqueues and returns. It is the only adapter that writes job
// state directly to the store; the reconciliation engine skips the local
// bucket entirely.
type LocalAdapter struct {
	store        storage.JobStore
	logger       zerolog.Logger
	monitorEvery time.Duration
	softLimit    time.Duration
	workerCount  int

	mu     sync.Mutex
	tasks  map[string]*localTask // jobID -> task, queued or running
	queue  []*localTask          // FIFO of not-yet-started tasks
	notify chan struct{}

	stopCh chan struct{}
}

// NewLocalAdapter constructs a Local Worker Adapter. monitorEvery is the
// poll tick for elapsed-time bookkeeping and completion checks; softLimit
// is the cooperative soft time limit before SIGTERM is sent; workerCount
// bounds how many jobs run as subprocesses at once, the rest waiting in
// the FIFO queue.
func NewLocalAdapter(store storage.JobStore, monitorEvery, softLimit time.Duration, workerCount int) *LocalAdapter {
	if workerCount < 1 {
		workerCount = 1
	}
	a := &LocalAdapter{
		store:        store,
		logger:       log.WithComponent("scheduler.local"),
		monitorEvery: monitorEvery,
		softLimit:    softLimit,
		workerCount:  workerCount,
		tasks:        make(map[string]*localTask),
		notify:       make(chan struct{}, workerCount),
		stopCh:       make(chan struct{}),
	}
	for i := 0; i < workerCount; i++ {
		go a.workerLoop()
	}
	go a.monitorLoop()
	return a
}

// Stop halts the monitor loop and worker pool. In-flight subprocesses are
// left running; callers are expected to Cancel them individually first if
// a clean shutdown is required.
func (a *LocalAdapter) Stop() {
	close(a.stopCh)
}

// Submit enqueues spec for execution and returns immediately; the job
// record stays PENDING until a worker dequeues and starts it. jobID
// doubles as the adapter's tracking key and the Pid persisted with the
// job, since this backend has no meaningful pid until the subprocess
// actually starts.
func (a *LocalAdapter) Submit(ctx context.Context, spec JobSpec) (SubmitResult, error) {
	now := time.Now().UTC()
	task := &localTask{
		jobID:    spec.JobID,
		user:     spec.User,
		spec:     spec,
		queuedAt: now,
	}

	a.mu.Lock()
	a.tasks[spec.JobID] = task
	a.queue = append(a.queue, task)
	a.mu.Unlock()

	select {
	case a.notify <- struct{}{}:
	default:
	}

	return SubmitResult{Pid: spec.JobID, SubmitDate: now, State: types.JobPending}, nil
}

// Status reads the last-known in-memory state of a local task: PENDING
// while queued, RUNNING once started. Local jobs are not reconciled
// externally, and the HTTP job-status endpoint reads the stored record
// instead; a task that has finished is no longer tracked here.
func (a *LocalAdapter) Status(ctx context.Context, pid string) (StatusResult, error) {
	a.mu.Lock()
	task, ok := a.tasks[pid]
	a.mu.Unlock()
	if !ok {
		return StatusResult{}, fmt.Errorf("no local task tracked for pid %s", pid)
	}
	if task.cmd == nil {
		return StatusResult{
			Pid:         pid,
			State:       types.JobPending,
			Status:      "queued",
			ExitCode:    ExitCodeUnknown,
			ElapsedTime: time.Since(task.queuedAt).Seconds(),
		}, nil
	}
	return StatusResult{
		Pid:         pid,
		State:       types.JobRunning,
		Status:      "running",
		ExitCode:    ExitCodeUnknown,
		ElapsedTime: time.Since(task.start).Seconds(),
	}, nil
}

// StatusBatch has no native batch primitive on this backend; it loops.
func (a *LocalAdapter) StatusBatch(ctx context.Context, pids []string) (map[string]StatusResult, error) {
	return BatchByLoop(ctx, a, pids)
}

// Cancel revokes a queued task before it ever runs a subprocess, or, if
// already executing, sends SIGKILL to its process group.
func (a *LocalAdapter) Cancel(ctx context.Context, pid string) error {
	a.mu.Lock()
	task, ok := a.tasks[pid]
	if !ok {
		a.mu.Unlock()
		return nil // already terminal or unknown: not a hard error
	}
	task.canceled = true
	started := task.cmd != nil
	if !started {
		a.removeFromQueueLocked(task)
		delete(a.tasks, pid)
	}
	a.mu.Unlock()

	if !started {
		a.writeTransition(task.user, task.jobID, types.JobCanceled, "canceled", 137, time.Since(task.queuedAt).Seconds())
		return nil
	}

	if err := syscall.Kill(-task.osPid, syscall.SIGKILL); err != nil && err != syscall.ESRCH {
		return fmt.Errorf("failed to signal process group %d: %w", task.osPid, err)
	}
	return nil
}

// removeFromQueueLocked drops task from the FIFO queue. Callers must hold
// a.mu.
func (a *LocalAdapter) removeFromQueueLocked(task *localTask) {
	for i, t := range a.queue {
		if t == task {
			a.queue = append(a.queue[:i], a.queue[i+1:]...)
			return
		}
	}
}

// workerLoop is the body of one of the pool's workerCount goroutines: pop
// the next queued task and run it to completion before pulling another,
// bounding subprocess concurrency to workerCount.
func (a *LocalAdapter) workerLoop() {
	for {
		task := a.dequeue()
		if task == nil {
			return // stopCh closed
		}
		a.runTask(task)
	}
}

// dequeue blocks until a task is available or the adapter is stopped.
func (a *LocalAdapter) dequeue() *localTask {
	for {
		a.mu.Lock()
		if len(a.queue) > 0 {
			task := a.queue[0]
			a.queue = a.queue[1:]
			a.mu.Unlock()
			return task
		}
		a.mu.Unlock()

		select {
		case <-a.notify:
		case <-a.stopCh:
			return nil
		}
	}
}

// runTask starts task's subprocess and waits for it to finish, recording
// the terminal state. A task canceled while still queued never reaches
// here.
func (a *LocalAdapter) runTask(task *localTask) {
	a.mu.Lock()
	canceled := task.canceled
	a.mu.Unlock()
	if canceled {
		return
	}

	spec := task.spec
	cmd := exec.Command(spec.Command, spec.Args...)
	cmd.Dir = spec.JobTopDir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Stdout = newJobLogWriter(a.logger, spec.JobID, "stdout")
	cmd.Stderr = newJobLogWriter(a.logger, spec.JobID, "stderr")

	if err := cmd.Start(); err != nil {
		a.mu.Lock()
		delete(a.tasks, task.jobID)
		a.mu.Unlock()
		a.writeTransition(task.user, task.jobID, types.JobFailure, err.Error(), ExitCodeUnknown, time.Since(task.queuedAt).Seconds())
		return
	}

	now := time.Now().UTC()
	a.mu.Lock()
	task.cmd = cmd
	task.osPid = cmd.Process.Pid
	task.start = now
	a.mu.Unlock()

	a.wait(task)
}

// monitorLoop ticks every monitorEvery, writing RUNNING with cumulative
// elapsed time and checking the soft time limit for every started task.
func (a *LocalAdapter) monitorLoop() {
	ticker := time.NewTicker(a.monitorEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.tick()
		case <-a.stopCh:
			return
		}
	}
}

func (a *LocalAdapter) tick() {
	a.mu.Lock()
	tasks := make([]*localTask, 0, len(a.tasks))
	for _, t := range a.tasks {
		if t.cmd != nil && !t.timedOut {
			tasks = append(tasks, t)
		}
	}
	a.mu.Unlock()

	for _, task := range tasks {
		elapsed := time.Since(task.start)
		if a.softLimit > 0 && elapsed > a.softLimit {
			a.timeOut(task)
			continue
		}
		a.writeTransition(task.user, task.jobID, types.JobRunning, "running", ExitCodeUnknown, elapsed.Seconds())
	}
}

// timeOut sends SIGTERM to the task's process group and marks it timed
// out so the wait goroutine that unblocks on that signal doesn't clobber
// the TIMED-OUT record with a signal-death FAILURE once writeTransition's
// own terminal-state guard would otherwise make this a race.
func (a *LocalAdapter) timeOut(task *localTask) {
	a.mu.Lock()
	task.timedOut = true
	a.mu.Unlock()

	if err := syscall.Kill(-task.osPid, syscall.SIGTERM); err != nil && err != syscall.ESRCH {
		a.logger.Error().Err(err).Str("job_id", task.jobID).Msg("local adapter failed to signal timed-out task")
	}
	a.writeTransition(task.user, task.jobID, types.JobTimedOut, "soft time limit exceeded", 124, time.Since(task.start).Seconds())
}

// wait blocks on the subprocess exit and records the terminal state.
func (a *LocalAdapter) wait(task *localTask) {
	err := task.cmd.Wait()
	elapsed := time.Since(task.start).Seconds()

	a.mu.Lock()
	canceled := task.canceled
	timedOut := task.timedOut
	delete(a.tasks, task.jobID)
	a.mu.Unlock()

	if timedOut {
		// timeOut already wrote the terminal TIMED-OUT record; the
		// process exiting from the SIGTERM it sent is not a new event.
		return
	}
	if canceled {
		a.writeTransition(task.user, task.jobID, types.JobCanceled, "canceled", 137, elapsed)
		return
	}

	state, status, exitCode := classifyExit(err)
	a.writeTransition(task.user, task.jobID, state, status, exitCode, elapsed)
}

func classifyExit(err error) (types.JobState, string, int) {
	if err == nil {
		return types.JobSuccess, "completed", 0
	}
	exitErr, ok := err.(*exec.ExitError)
	if !ok {
		return types.JobFailure, err.Error(), ExitCodeUnknown
	}
	code := exitErr.ExitCode()
	if code < 0 {
		signal := -code
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			signal = int(ws.Signal())
		}
		return types.JobFailure, fmt.Sprintf("terminated by signal %d", signal), code
	}
	return types.JobFailure, fmt.Sprintf("exited with code %d", code), code
}

// writeTransition persists a state transition, refusing to overwrite a
// job already in a terminal state: whichever terminal write lands first
// wins, so a late-arriving write from a goroutine racing a cancellation
// or timeout can never clobber it.
func (a *LocalAdapter) writeTransition(user, jobID string, state types.JobState, status string, exitCode int, elapsed float64) {
	job, err := a.store.FindJob(user, jobID)
	if err != nil {
		a.logger.Error().Err(err).Str("job_id", jobID).Msg("local adapter could not load job for state write")
		return
	}
	if job.State.Terminal() {
		return
	}
	job.State = state
	job.Status = status
	job.ExitCode = exitCode
	job.ElapsedTime = elapsed
	if err := a.store.UpdateJob(user, job); err != nil {
		a.logger.Error().Err(err).Str("job_id", jobID).Msg("local adapter failed to persist state transition")
	}
}

// jobLogWriter forwards subprocess output lines into the structured logger
// instead of letting them leak to the parent process's stdio.
type jobLogWriter struct {
	logger zerolog.Logger
	jobID  string
	stream string
}

func newJobLogWriter(logger zerolog.Logger, jobID, stream string) *jobLogWriter {
	return &jobLogWriter{logger: logger, jobID: jobID, stream: stream}
}

func (w *jobLogWriter) Write(p []byte) (int, error) {
	w.logger.Debug().Str("job_id", w.jobID).Str("stream", w.stream).Msg(string(p))
	return len(p), nil
}
