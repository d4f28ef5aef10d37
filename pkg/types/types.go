// Package types defines the data model shared across the job-orchestration
// service: job records, file records, accounting records, option value
// types and transformers, and HPC token records.
package types

import "time"

// JobState is a job's position in the lifecycle lattice.
type JobState string

const (
	JobPending  JobState = "PENDING"
	JobStarted  JobState = "STARTED"
	JobRunning  JobState = "RUNNING"
	JobSuccess  JobState = "SUCCESS"
	JobFailure  JobState = "FAILURE"
	JobTimedOut JobState = "TIMED-OUT"
	JobCanceled JobState = "CANCELED"
	JobAborted  JobState = "ABORTED"
	JobUnknown  JobState = "UNKNOWN"
)

// Terminal reports whether state is terminal: it may only be rewritten by
// the output packager and never transitions further.
func (s JobState) Terminal() bool {
	switch s {
	case JobSuccess, JobFailure, JobTimedOut, JobCanceled:
		return true
	default:
		return false
	}
}

// Unfinished reports whether state belongs to {PENDING, STARTED, RUNNING}.
func (s JobState) Unfinished() bool {
	switch s {
	case JobPending, JobStarted, JobRunning:
		return true
	default:
		return false
	}
}

// SchedulerKind selects which adapter owns a job.
type SchedulerKind string

const (
	SchedulerLocal        SchedulerKind = "local"
	SchedulerOrchestrator SchedulerKind = "orchestrator"
	SchedulerHPC          SchedulerKind = "hpc"
)

// Job is the persisted record for one submitted job. Once State is
// terminal it may only be rewritten by the output packager setting
// packaging-related fields; Pid is assigned at most once after submission.
type Job struct {
	JobID        string            `json:"job_id"`
	Pid          string            `json:"pid"`
	User         string            `json:"user"`
	App          string            `json:"app"`
	SubmitDate   time.Time         `json:"submit_date"`
	JobInputs    map[string]any    `json:"job_inputs"`
	DataInputs   string            `json:"data_inputs"`
	JobTopDir    string            `json:"job_top_dir"`
	Tag          string            `json:"tag,omitempty"`
	Scheduler    SchedulerKind     `json:"scheduler"`
	State        JobState          `json:"state"`
	Status       string            `json:"status"`
	ExitCode     int               `json:"exit_code"`
	ElapsedTime  float64           `json:"elapsed_time"`
	RuntimeHints RuntimeHints      `json:"runtime_hints"`
	Archived     bool              `json:"archived"`
	Labels       map[string]string `json:"labels,omitempty"`
}

// RuntimeHints carries the parallelism the validator derived from the
// emitted argument vector.
type RuntimeHints struct {
	NThreads int `json:"nthreads"`
	NProc    int `json:"nproc"`
}

// File is the per-user metadata record for one uploaded input file.
type File struct {
	FileID       string    `json:"fileid"`
	FilePath     string    `json:"filepath"`
	FilenameOrig string    `json:"filename_orig"`
	FileExt      string    `json:"fileext"`
	FileSizeMB   float64   `json:"filesize"`
	FileDate     time.Time `json:"filedate"`
	Tag          string    `json:"tag,omitempty"`
}

// Accounting is the per-user (or global, when User=="") resource-usage
// snapshot computed by the accounting aggregator.
type Accounting struct {
	User                 string           `json:"user,omitempty"`
	DataSizeMB            float64          `json:"datasize"`
	JobSizeMB             float64          `json:"jobsize"`
	NJobs                 int              `json:"njobs"`
	NJobsByState          map[JobState]int `json:"njobs_by_state"`
	JobRuntime            float64          `json:"job_runtime"`
	JobCompletedRuntime   float64          `json:"job_completed_runtime"`
	MeanCompletedRuntime  float64          `json:"mean_completed_runtime"`
	Timestamp             time.Time        `json:"timestamp"`
}

// ValueType is the exact type a value-bearing option must match.
type ValueType string

const (
	ValueInt    ValueType = "int"
	ValueFloat  ValueType = "float"
	ValueString ValueType = "string"
)

// OptionTransformer maps a submitted string value to the value emitted on
// the command line (e.g. an enum label to a scheduler-native code). An
// empty return is a hard validation rejection.
type OptionTransformer func(value string) string

// Token is an in-memory HS256 token record minted for the HPC adapter.
type Token struct {
	Value     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Expired reports whether the token has passed its expiration instant.
func (t Token) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// WithinHeadroom reports whether the token will expire within headroom of
// now and should be re-minted before use.
func (t Token) WithinHeadroom(now time.Time, headroom time.Duration) bool {
	return t.ExpiresAt.Sub(now) < headroom
}
