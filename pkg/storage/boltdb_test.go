package storage

import (
	"testing"
	"time"

	"github.com/cuemby/warren/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	dir := t.TempDir()
	store, err := NewBoltStore(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestJobInsertAndFind(t *testing.T) {
	store := newTestStore(t)

	job := &types.Job{
		JobID:     "job-1",
		User:      "alice",
		App:       "caesar",
		State:     types.JobPending,
		Scheduler: types.SchedulerLocal,
	}
	require.NoError(t, store.InsertJob("alice", job))

	got, err := store.FindJob("alice", "job-1")
	require.NoError(t, err)
	assert.Equal(t, job.App, got.App)
	assert.Equal(t, types.JobPending, got.State)

	_, err = store.FindJob("bob", "job-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestJobUpdateIsUpsert(t *testing.T) {
	store := newTestStore(t)

	job := &types.Job{JobID: "job-1", User: "alice", State: types.JobPending}
	require.NoError(t, store.InsertJob("alice", job))

	job.State = types.JobRunning
	job.Pid = "12345"
	require.NoError(t, store.UpdateJob("alice", job))

	got, err := store.FindJob("alice", "job-1")
	require.NoError(t, err)
	assert.Equal(t, types.JobRunning, got.State)
	assert.Equal(t, "12345", got.Pid)
}

func TestFindJobByPid(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.InsertJob("alice", &types.Job{JobID: "job-1", User: "alice", Pid: "100"}))
	require.NoError(t, store.InsertJob("alice", &types.Job{JobID: "job-2", User: "alice", Pid: "200"}))

	got, err := store.FindJobByPid("alice", "200")
	require.NoError(t, err)
	assert.Equal(t, "job-2", got.JobID)

	_, err = store.FindJobByPid("alice", "999")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindJobsFilter(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.InsertJob("alice", &types.Job{JobID: "job-1", User: "alice", App: "caesar", State: types.JobRunning}))
	require.NoError(t, store.InsertJob("alice", &types.Job{JobID: "job-2", User: "alice", App: "selavy", State: types.JobSuccess}))
	require.NoError(t, store.InsertJob("alice", &types.Job{JobID: "job-3", User: "alice", App: "caesar", State: types.JobSuccess}))

	jobs, err := store.FindJobs("alice", JobFilter{App: "caesar"})
	require.NoError(t, err)
	assert.Len(t, jobs, 2)

	jobs, err = store.FindJobs("alice", JobFilter{State: types.JobSuccess})
	require.NoError(t, err)
	assert.Len(t, jobs, 2)

	jobs, err = store.FindJobs("alice", JobFilter{App: "caesar", State: types.JobRunning})
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
	assert.Equal(t, "job-1", jobs[0].JobID)
}

func TestFindUnfinishedAllUsersCrossesPartitions(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.InsertJob("alice", &types.Job{JobID: "job-1", User: "alice", State: types.JobRunning}))
	require.NoError(t, store.InsertJob("alice", &types.Job{JobID: "job-2", User: "alice", State: types.JobSuccess}))
	require.NoError(t, store.InsertJob("bob", &types.Job{JobID: "job-3", User: "bob", State: types.JobPending}))
	require.NoError(t, store.InsertJob("bob", &types.Job{JobID: "job-4", User: "bob", State: types.JobCanceled}))

	jobs, err := store.FindUnfinishedAllUsers()
	require.NoError(t, err)
	assert.Len(t, jobs, 2)

	ids := []string{jobs[0].JobID, jobs[1].JobID}
	assert.Contains(t, ids, "job-1")
	assert.Contains(t, ids, "job-3")
}

func TestFileInsertAndFind(t *testing.T) {
	store := newTestStore(t)

	file := &types.File{
		FileID:       "file-1",
		FilePath:     "/data/alice/input.fits",
		FilenameOrig: "input.fits",
		FileExt:      "fits",
		FileDate:     time.Now(),
		Tag:          "raw",
	}
	require.NoError(t, store.InsertFile("alice", file))

	got, err := store.FindFile("alice", "file-1")
	require.NoError(t, err)
	assert.Equal(t, file.FilenameOrig, got.FilenameOrig)

	files, err := store.FindFiles("alice", "raw")
	require.NoError(t, err)
	assert.Len(t, files, 1)

	files, err = store.FindFiles("alice", "other-tag")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestDeleteFileRemovesRecord(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.InsertFile("alice", &types.File{FileID: "file-1", FilenameOrig: "x.fits"}))
	require.NoError(t, store.DeleteFile("alice", "file-1"))

	_, err := store.FindFile("alice", "file-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteFileOnMissingRecordIsNotAnError(t *testing.T) {
	store := newTestStore(t)
	assert.NoError(t, store.DeleteFile("alice", "does-not-exist"))
}

func TestAccountingPutAndGet(t *testing.T) {
	store := newTestStore(t)

	acc := &types.Accounting{User: "alice", NJobs: 3, DataSizeMB: 12.5, Timestamp: time.Now()}
	require.NoError(t, store.PutAccounting("alice", acc))

	got, err := store.GetAccounting("alice")
	require.NoError(t, err)
	assert.Equal(t, 3, got.NJobs)

	_, err = store.GetAccounting("bob")
	assert.ErrorIs(t, err, ErrNotFound)

	global := &types.Accounting{NJobs: 10}
	require.NoError(t, store.PutAccounting("", global))
	got, err = store.GetAccounting("")
	require.NoError(t, err)
	assert.Equal(t, 10, got.NJobs)
}

func TestListUsers(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.InsertJob("alice", &types.Job{JobID: "job-1", User: "alice"}))
	require.NoError(t, store.InsertFile("bob", &types.File{FileID: "file-1"}))

	users, err := store.ListUsers()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "bob"}, users)
}
