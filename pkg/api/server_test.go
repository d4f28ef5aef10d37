package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cuemby/warren/pkg/auth"
	"github.com/cuemby/warren/pkg/config"
	"github.com/cuemby/warren/pkg/packager"
	"github.com/cuemby/warren/pkg/scheduler"
	"github.com/cuemby/warren/pkg/storage"
	"github.com/cuemby/warren/pkg/submission"
	"github.com/cuemby/warren/pkg/types"
	"github.com/cuemby/warren/pkg/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdapter struct {
	submitErr  error
	cancelErr  error
	canceled   []string
}

func (a *fakeAdapter) Submit(ctx context.Context, spec scheduler.JobSpec) (scheduler.SubmitResult, error) {
	if a.submitErr != nil {
		return scheduler.SubmitResult{}, a.submitErr
	}
	return scheduler.SubmitResult{Pid: "pid-1", SubmitDate: time.Now(), State: types.JobStarted}, nil
}
func (a *fakeAdapter) Status(ctx context.Context, pid string) (scheduler.StatusResult, error) {
	return scheduler.StatusResult{}, nil
}
func (a *fakeAdapter) StatusBatch(ctx context.Context, pids []string) (map[string]scheduler.StatusResult, error) {
	return nil, nil
}
func (a *fakeAdapter) Cancel(ctx context.Context, pid string) error {
	a.canceled = append(a.canceled, pid)
	return a.cancelErr
}

func newTestServer(t *testing.T) (*Server, storage.Store, *fakeAdapter) {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	reg := validator.NewRegistry()
	validator.RegisterBuiltinApps(reg)

	adapter := &fakeAdapter{}
	dispatcher := scheduler.NewDispatcher(adapter, nil, nil)

	cfg := config.Default()
	cfg.DataRoot = t.TempDir()
	cfg.JobRoot = t.TempDir()

	ctrl := submission.New(store, reg, dispatcher, cfg.JobRoot, types.SchedulerLocal, validator.RuntimeLimits{MaxNThreads: 16, MaxNProc: 8})

	s := New(cfg, Deps{
		Store:      store,
		Registry:   reg,
		Dispatcher: dispatcher,
		Submission: ctrl,
		Packager:   packager.New(),
		Verifier:   auth.Disabled{},
	})
	return s, store, adapter
}

func doRequest(t *testing.T, s *Server, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealthz(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListAppsReturnsBuiltins(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/api/v1/apps", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	apps, ok := body["apps"].([]any)
	require.True(t, ok)
	assert.Contains(t, apps, "caesar")
	assert.Contains(t, apps, "selavy")
}

func TestDescribeUnknownAppReturns404(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/api/v1/app/nonexistent/describe", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDescribeKnownApp(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/api/v1/app/caesar/describe", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "caesar", body["app"])
	assert.NotEmpty(t, body["options"])
}

func TestSubmitJobRejectsMalformedRequest(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodPost, "/api/v1/job", []byte("not json"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitJobMissingDataInputIsRejected(t *testing.T) {
	s, _, _ := newTestServer(t)
	body, _ := json.Marshal(map[string]any{
		"app":        "caesar",
		"job_inputs": map[string]any{"seedthr": 5.0},
	})
	rec := doRequest(t, s, http.MethodPost, "/api/v1/job", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitJobAndFetchStatus(t *testing.T) {
	s, store, _ := newTestServer(t)
	require.NoError(t, store.InsertFile("anonymous", &types.File{
		FileID:   "file-1",
		FilePath: "/data/anonymous/image.fits",
		FileDate: time.Now(),
	}))

	body, _ := json.Marshal(map[string]any{
		"app":         "caesar",
		"job_inputs":  map[string]any{"seedthr": 5.0},
		"data_inputs": "file-1",
	})
	rec := doRequest(t, s, http.MethodPost, "/api/v1/job", body)
	require.Equal(t, http.StatusAccepted, rec.Code)

	resp := decodeBody(t, rec)
	jobID, ok := resp["job_id"].(string)
	require.True(t, ok)
	require.NotEmpty(t, jobID)

	rec = doRequest(t, s, http.MethodGet, "/api/v1/job/"+jobID+"/status", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	statusBody := decodeBody(t, rec)
	job, ok := statusBody["job"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, string(types.JobPending), job["state"])
}

func TestJobStatusUnknownIDReturns404(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/api/v1/job/does-not-exist/status", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelAlreadyTerminalJobIsNoOp(t *testing.T) {
	s, store, adapter := newTestServer(t)
	require.NoError(t, store.InsertJob("anonymous", &types.Job{
		JobID: "job-1", User: "anonymous", State: types.JobSuccess, Scheduler: types.SchedulerLocal,
	}))

	rec := doRequest(t, s, http.MethodGet, "/api/v1/job/job-1/cancel", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, adapter.canceled)

	body := decodeBody(t, rec)
	assert.Contains(t, body["status"], "no-op")
}

func TestCancelUnfinishedJobCallsAdapter(t *testing.T) {
	s, store, adapter := newTestServer(t)
	require.NoError(t, store.InsertJob("anonymous", &types.Job{
		JobID: "job-1", User: "anonymous", Pid: "pid-1", State: types.JobRunning, Scheduler: types.SchedulerLocal,
	}))

	rec := doRequest(t, s, http.MethodGet, "/api/v1/job/job-1/cancel", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"pid-1"}, adapter.canceled)

	job, err := store.FindJob("anonymous", "job-1")
	require.NoError(t, err)
	assert.Equal(t, types.JobCanceled, job.State)
}

func TestJobOutputNonTerminalReturns202(t *testing.T) {
	s, store, _ := newTestServer(t)
	require.NoError(t, store.InsertJob("anonymous", &types.Job{
		JobID: "job-1", User: "anonymous", State: types.JobRunning,
	}))

	rec := doRequest(t, s, http.MethodGet, "/api/v1/job/job-1/output", nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestUploadRejectsUnsupportedExtension(t *testing.T) {
	s, _, _ := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "script.exe")
	require.NoError(t, err)
	_, _ = part.Write([]byte("binary"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestUploadAndListFileIDs(t *testing.T) {
	s, _, _ := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "image.fits")
	require.NoError(t, err)
	_, _ = part.Write([]byte("fits-bytes"))
	require.NoError(t, mw.WriteField("tag", "raw"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	uploadBody := decodeBody(t, rec)
	fileID, ok := uploadBody["fileid"].(string)
	require.True(t, ok)
	require.NotEmpty(t, fileID)

	rec = doRequest(t, s, http.MethodGet, "/api/v1/fileids", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	listBody := decodeBody(t, rec)
	files, ok := listBody["files"].([]any)
	require.True(t, ok)
	assert.Len(t, files, 1)
}

func TestAccountingNotYetComputedReturns404(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/api/v1/accounting", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAppStatsReturnsGlobalRecord(t *testing.T) {
	s, store, _ := newTestServer(t)
	require.NoError(t, store.PutAccounting("", &types.Accounting{NJobs: 7}))

	rec := doRequest(t, s, http.MethodGet, "/api/v1/appstats", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	stats, ok := body["appstats"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(7), stats["njobs"])
}
