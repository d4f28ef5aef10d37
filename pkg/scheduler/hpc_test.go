package scheduler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/warren/pkg/security"
	"github.com/cuemby/warren/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMinter(t *testing.T) *security.TokenMinter {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hpc.key")
	require.NoError(t, os.WriteFile(path, []byte("key-material"), 0600))
	minter, err := security.NewTokenMinter(path, "alice", time.Hour, 30*time.Second)
	require.NoError(t, err)
	return minter
}

func TestTranslatePathRejectsMissingPrefix(t *testing.T) {
	_, err := translatePath(HPCPathMap{ServerPrefix: "/srv/jobs", ClusterPrefix: "/cluster/jobs"}, "/other/path")
	assert.Error(t, err)
}

func TestTranslatePathSubstitutesPrefix(t *testing.T) {
	got, err := translatePath(HPCPathMap{ServerPrefix: "/srv/jobs", ClusterPrefix: "/cluster/jobs"}, "/srv/jobs/job-1")
	require.NoError(t, err)
	assert.Equal(t, "/cluster/jobs/job-1", got)
}

func TestClampToMaxDownscalesOverflowToOne(t *testing.T) {
	assert.Equal(t, 1, clampToMax(100, 16))
	assert.Equal(t, 8, clampToMax(8, 16))
	assert.Equal(t, 1, clampToMax(0, 16))
}

func TestMapStatusEntryUnknownNativeState(t *testing.T) {
	res := mapStatusEntry(statusEntry{JobID: "1", State: "WEIRD_STATE"})
	assert.Equal(t, types.JobUnknown, res.State)
}

func TestMapStatusEntryKnownStates(t *testing.T) {
	cases := map[string]types.JobState{
		"PENDING":   types.JobPending,
		"RUNNING":   types.JobRunning,
		"COMPLETED": types.JobSuccess,
		"CANCELLED": types.JobCanceled,
		"FAILED":    types.JobFailure,
		"TIMEOUT":   types.JobTimedOut,
	}
	for native, want := range cases {
		res := mapStatusEntry(statusEntry{JobID: "1", State: native})
		assert.Equal(t, want, res.State, native)
	}
}

func TestHPCAdapterSubmitSendsAuthHeaders(t *testing.T) {
	var gotUserHeader, gotTokenHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserHeader = r.Header.Get("X-Slurm-User-Name")
		gotTokenHeader = r.Header.Get("X-Slurm-User-Token")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(submitResponse{JobID: "native-1"})
	}))
	defer server.Close()

	adapter := NewHPCAdapter(newTestMinter(t), HPCConfig{
		BaseURL:         server.URL,
		ClusterUser:     "alice",
		JobDirMap:       HPCPathMap{ServerPrefix: "/srv", ClusterPrefix: "/cluster"},
		DataDirMap:      HPCPathMap{ServerPrefix: "/srv", ClusterPrefix: "/cluster"},
		MaxCoresPerTask: 16,
		MaxTasks:        8,
		RequestTimeout:  5 * time.Second,
	})

	res, err := adapter.Submit(context.Background(), JobSpec{
		JobID:        "job-1",
		Command:      "caesar",
		JobTopDir:    "/srv/job-1",
		DataInputs:   "/srv/data.fits",
		RuntimeHints: types.RuntimeHints{NThreads: 4, NProc: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, "native-1", res.Pid)
	assert.Equal(t, "alice", gotUserHeader)
	assert.NotEmpty(t, gotTokenHeader)
}

func TestHPCAdapterSubmitRejectsBadPrefix(t *testing.T) {
	adapter := NewHPCAdapter(newTestMinter(t), HPCConfig{
		BaseURL:    "http://unused",
		JobDirMap:  HPCPathMap{ServerPrefix: "/srv", ClusterPrefix: "/cluster"},
		DataDirMap: HPCPathMap{ServerPrefix: "/srv", ClusterPrefix: "/cluster"},
	})

	_, err := adapter.Submit(context.Background(), JobSpec{JobID: "job-1", JobTopDir: "/other/job-1"})
	assert.Error(t, err)
}

func TestHPCAdapterCancelNon200IsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	adapter := NewHPCAdapter(newTestMinter(t), HPCConfig{BaseURL: server.URL, RequestTimeout: 5 * time.Second})
	err := adapter.Cancel(context.Background(), "job-1")
	assert.Error(t, err)
}

func TestHPCAdapterStatusBatchUsesSingleCall(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_ = json.NewEncoder(w).Encode(statusListResponse{Jobs: []statusEntry{
			{JobID: "1", State: "RUNNING"},
			{JobID: "2", State: "COMPLETED"},
		}})
	}))
	defer server.Close()

	adapter := NewHPCAdapter(newTestMinter(t), HPCConfig{BaseURL: server.URL, RequestTimeout: 5 * time.Second})
	results, err := adapter.StatusBatch(context.Background(), []string{"1", "2"})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, types.JobRunning, results["1"].State)
	assert.Equal(t, types.JobSuccess, results["2"].State)
}
