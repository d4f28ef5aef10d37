// Package submission implements the submission controller: the single
// entry point that turns an authenticated HTTP request into a dispatched
// job and a persisted PENDING record, short-circuiting on the first
// failure at each step.
package submission

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/warren/pkg/log"
	"github.com/cuemby/warren/pkg/metrics"
	"github.com/cuemby/warren/pkg/scheduler"
	"github.com/cuemby/warren/pkg/storage"
	"github.com/cuemby/warren/pkg/types"
	"github.com/cuemby/warren/pkg/validator"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Request is the submission body the HTTP surface decodes before calling
// Controller.Submit.
type Request struct {
	App        string         `json:"app"`
	JobInputs  map[string]any `json:"job_inputs"`
	DataInputs string         `json:"data_inputs"`
	Tag        string         `json:"tag,omitempty"`
}

// Response is returned to the client on a successful dispatch. Warning is
// set when the PENDING record failed to persist but the job is already
// running untracked (orchestrator/HPC only; see Controller.Submit).
type Response struct {
	JobID   string `json:"job_id"`
	Warning string `json:"warning,omitempty"`
}

// Controller implements the submission flow described in SPEC_FULL.md
// §4.4: resolve inputs, validate, create the job directory, dispatch, and
// persist the PENDING record.
type Controller struct {
	store      storage.Store
	validator  *validator.Registry
	dispatcher *scheduler.Dispatcher
	jobRoot    string
	scheduler  types.SchedulerKind
	limits     validator.RuntimeLimits
	logger     zerolog.Logger
}

// New constructs a Controller. kind selects the configured backend
// every job on this instance dispatches to.
func New(store storage.Store, reg *validator.Registry, dispatcher *scheduler.Dispatcher, jobRoot string, kind types.SchedulerKind, limits validator.RuntimeLimits) *Controller {
	return &Controller{
		store:      store,
		validator:  reg,
		dispatcher: dispatcher,
		jobRoot:    jobRoot,
		scheduler:  kind,
		limits:     limits,
		logger:     log.WithComponent("submission"),
	}
}

// Submit runs the full submission flow for one authenticated user.
func (c *Controller) Submit(ctx context.Context, user string, req Request) (Response, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SubmissionDuration)

	if req.App == "" || len(req.JobInputs) == 0 || req.DataInputs == "" {
		metrics.JobsRejectedTotal.WithLabelValues("malformed_request").Inc()
		return Response{}, fmt.Errorf("request must include app, job_inputs and data_inputs")
	}

	file, err := c.store.FindFile(user, req.DataInputs)
	if err != nil {
		metrics.JobsRejectedTotal.WithLabelValues("unknown_data_input").Inc()
		return Response{}, fmt.Errorf("unknown data input %q: %w", req.DataInputs, err)
	}

	result, err := c.validator.Validate(req.App, req.JobInputs, file.FilePath, c.limits)
	if err != nil {
		metrics.JobsRejectedTotal.WithLabelValues("validation").Inc()
		return Response{}, err
	}

	jobID := uuid.NewString()
	jobTopDir := filepath.Join(c.jobRoot, user, "job_"+jobID)
	if err := os.MkdirAll(jobTopDir, 0755); err != nil {
		metrics.JobsRejectedTotal.WithLabelValues("job_directory").Inc()
		return Response{}, fmt.Errorf("failed to create job directory: %w", err)
	}

	adapter, err := c.dispatcher.For(string(c.scheduler))
	if err != nil {
		return Response{}, err
	}

	submitRes, err := adapter.Submit(ctx, scheduler.JobSpec{
		JobID:        jobID,
		User:         user,
		App:          req.App,
		Command:      result.Command,
		Args:         result.Args,
		JobTopDir:    jobTopDir,
		DataInputs:   file.FilePath,
		RuntimeHints: result.RuntimeHints,
	})
	if err != nil {
		metrics.JobsRejectedTotal.WithLabelValues("dispatch").Inc()
		return Response{}, fmt.Errorf("dispatch failed: %w", err)
	}

	job := &types.Job{
		JobID:        jobID,
		Pid:          submitRes.Pid,
		User:         user,
		App:          req.App,
		SubmitDate:   submitOrNow(submitRes.SubmitDate),
		JobInputs:    req.JobInputs,
		DataInputs:   file.FilePath,
		JobTopDir:    jobTopDir,
		Tag:          req.Tag,
		Scheduler:    c.scheduler,
		State:        types.JobPending,
		RuntimeHints: result.RuntimeHints,
	}

	if err := c.store.InsertJob(user, job); err != nil {
		// The local worker adapter owns its job record end-to-end; a
		// failed insert here leaves nothing to self-correct it.
		if c.scheduler == types.SchedulerLocal {
			return Response{}, fmt.Errorf("job %s is running but could not be tracked: %w", jobID, err)
		}
		c.logger.Warn().Err(err).Str("job_id", jobID).Msg("failed to persist pending job record; reconciliation will discover it")
		return Response{JobID: jobID, Warning: "job dispatched but not yet tracked; it will appear once reconciliation discovers it"}, nil
	}

	metrics.JobsSubmittedTotal.WithLabelValues(req.App, string(c.scheduler)).Inc()
	return Response{JobID: jobID}, nil
}

func submitOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
