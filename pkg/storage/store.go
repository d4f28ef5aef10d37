// Package storage persists jobs, uploaded-file metadata and accounting
// snapshots in per-user partitions so that no two users ever share a
// bucket. Only FindUnfinishedAllUsers and ListUsers read across user
// partitions.
package storage

import (
	"errors"

	"github.com/cuemby/warren/pkg/types"
)

// ErrNotFound is returned when a lookup by id finds no record.
var ErrNotFound = errors.New("record not found")

// JobStore persists Job records, partitioned per user.
type JobStore interface {
	InsertJob(user string, job *types.Job) error
	UpdateJob(user string, job *types.Job) error
	FindJob(user, jobID string) (*types.Job, error)
	FindJobByPid(user, pid string) (*types.Job, error)
	FindJobs(user string, filter JobFilter) ([]*types.Job, error)
	FindUnfinishedAllUsers() ([]*types.Job, error)
}

// FileStore persists File metadata records, partitioned per user.
type FileStore interface {
	InsertFile(user string, file *types.File) error
	FindFile(user, fileID string) (*types.File, error)
	FindFiles(user string, tag string) ([]*types.File, error)
	DeleteFile(user, fileID string) error
}

// AccountingStore persists Accounting snapshots, partitioned per user plus
// one global ("") record.
type AccountingStore interface {
	PutAccounting(user string, acc *types.Accounting) error
	GetAccounting(user string) (*types.Accounting, error)
	ListUsers() ([]string, error)
}

// JobFilter narrows FindJobs to a subset of a user's jobs. Zero-value
// fields are not applied.
type JobFilter struct {
	App       string
	Scheduler types.SchedulerKind
	State     types.JobState
	Tag       string
}

// Store aggregates the three persistence interfaces behind one handle,
// matching the single bbolt file the service opens at startup.
type Store interface {
	JobStore
	FileStore
	AccountingStore
	Close() error
}
