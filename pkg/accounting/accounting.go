// Package accounting implements the accounting aggregator: a ticker-driven
// loop that computes per-user and global resource-usage snapshots from the
// data root, job root, and each user's job collection.
package accounting

import (
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/warren/pkg/log"
	"github.com/cuemby/warren/pkg/metrics"
	"github.com/cuemby/warren/pkg/storage"
	"github.com/cuemby/warren/pkg/types"
	"github.com/rs/zerolog"
)

// globalUser is the key under which the aggregated-across-all-users
// accounting document is stored.
const globalUser = ""

// Aggregator computes and persists Accounting snapshots on its own
// cadence, independent of the reconciliation engine's.
type Aggregator struct {
	store    storage.AccountingStore
	jobStore storage.JobStore
	dataRoot string
	jobRoot  string
	period   time.Duration
	logger   zerolog.Logger
	stopCh   chan struct{}
}

// New constructs an Aggregator.
func New(store storage.AccountingStore, jobStore storage.JobStore, dataRoot, jobRoot string, period time.Duration) *Aggregator {
	return &Aggregator{
		store:    store,
		jobStore: jobStore,
		dataRoot: dataRoot,
		jobRoot:  jobRoot,
		period:   period,
		logger:   log.WithComponent("accounting"),
		stopCh:   make(chan struct{}),
	}
}

// Start begins the accounting loop in its own goroutine.
func (a *Aggregator) Start() {
	go a.run()
}

// Stop halts the accounting loop.
func (a *Aggregator) Stop() {
	close(a.stopCh)
}

func (a *Aggregator) run() {
	ticker := time.NewTicker(a.period)
	defer ticker.Stop()

	a.logger.Info().Msg("accounting aggregator started")

	for {
		select {
		case <-ticker.C:
			a.runCycle()
		case <-a.stopCh:
			a.logger.Info().Msg("accounting aggregator stopped")
			return
		}
	}
}

// runCycle computes and persists one full snapshot: one document per user
// plus the aggregated global document.
func (a *Aggregator) runCycle() {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.AccountingCycleDuration)

	users, err := a.store.ListUsers()
	if err != nil {
		a.logger.Error().Err(err).Msg("failed to list users for accounting")
		return
	}

	var global types.Accounting
	global.NJobsByState = make(map[types.JobState]int)

	for _, user := range users {
		acc, err := a.computeUser(user)
		if err != nil {
			a.logger.Error().Err(err).Str("user", user).Msg("failed to compute user accounting")
			continue
		}
		if err := a.store.PutAccounting(user, acc); err != nil {
			a.logger.Error().Err(err).Str("user", user).Msg("failed to persist user accounting")
		}
		mergeInto(&global, acc)
	}

	global.Timestamp = time.Now()
	if global.NJobsByState[types.JobSuccess] > 0 {
		global.MeanCompletedRuntime = global.JobCompletedRuntime / float64(global.NJobsByState[types.JobSuccess])
	}
	if err := a.store.PutAccounting(globalUser, &global); err != nil {
		a.logger.Error().Err(err).Msg("failed to persist global accounting")
	}
}

// computeUser builds one user's Accounting snapshot from directory sizes
// and the job collection.
func (a *Aggregator) computeUser(user string) (*types.Accounting, error) {
	acc := &types.Accounting{
		User:         user,
		NJobsByState: make(map[types.JobState]int),
		Timestamp:    time.Now(),
	}

	acc.DataSizeMB = dirSizeMB(filepath.Join(a.dataRoot, user))
	acc.JobSizeMB = dirSizeMB(filepath.Join(a.jobRoot, user))

	jobs, err := a.jobStore.FindJobs(user, storage.JobFilter{})
	if err != nil {
		return nil, err
	}

	for _, job := range jobs {
		acc.NJobs++
		acc.NJobsByState[job.State]++
		acc.JobRuntime += job.ElapsedTime
		if job.State == types.JobSuccess {
			acc.JobCompletedRuntime += job.ElapsedTime
		}
	}

	if n := acc.NJobsByState[types.JobSuccess]; n > 0 {
		acc.MeanCompletedRuntime = acc.JobCompletedRuntime / float64(n)
	}

	return acc, nil
}

// mergeInto adds user's fields into global's running totals.
func mergeInto(global *types.Accounting, user *types.Accounting) {
	global.DataSizeMB += user.DataSizeMB
	global.JobSizeMB += user.JobSizeMB
	global.NJobs += user.NJobs
	global.JobRuntime += user.JobRuntime
	global.JobCompletedRuntime += user.JobCompletedRuntime
	for state, n := range user.NJobsByState {
		global.NJobsByState[state] += n
	}
}

// dirSizeMB returns the recursive size of dir in megabytes, or 0 if dir
// does not exist.
func dirSizeMB(dir string) float64 {
	var totalBytes int64
	_ = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			totalBytes += info.Size()
		}
		return nil
	})
	return float64(totalBytes) / (1024 * 1024)
}
