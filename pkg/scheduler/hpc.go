package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cuemby/warren/pkg/log"
	"github.com/cuemby/warren/pkg/security"
	"github.com/cuemby/warren/pkg/types"
	"github.com/rs/zerolog"
)

// HPCPathMap is a (server-prefix, cluster-prefix) substitution pair used
// to translate a server-local path into the path the batch cluster sees
// through its own mount of the same filesystem.
type HPCPathMap struct {
	ServerPrefix  string
	ClusterPrefix string
}

// HPCConfig configures the REST endpoint, submission topology limits and
// path translation the HPC Cluster Adapter needs.
type HPCConfig struct {
	BaseURL        string
	Queue          string
	ClusterUser    string
	BatchWorkdir   string
	JobDirMap      HPCPathMap
	DataDirMap     HPCPathMap
	MaxCoresPerTask int
	MaxTasks        int
	RequestTimeout  time.Duration
}

// nativeStateToCommon is the status mapping table from spec §4.3.3.
var nativeStateToCommon = map[string]types.JobState{
	"PENDING":       types.JobPending,
	"SUSPENDED":     types.JobPending,
	"RUNNING":       types.JobRunning,
	"COMPLETED":     types.JobSuccess,
	"CANCELLED":     types.JobCanceled,
	"FAILED":        types.JobFailure,
	"NODE_FAIL":     types.JobFailure,
	"PREEMPTED":     types.JobFailure,
	"BOOT_FAIL":     types.JobFailure,
	"DEADLINE":      types.JobFailure,
	"OUT_OF_MEMORY": types.JobFailure,
	"TIMEOUT":       types.JobTimedOut,
}

// HPCAdapter submits jobs as batch scripts to a remote REST endpoint
// protected by a short-lived HS256 bearer token, renewed inline before
// every request that needs it.
type HPCAdapter struct {
	httpClient *http.Client
	minter     *security.TokenMinter
	cfg        HPCConfig
	logger     zerolog.Logger
}

// NewHPCAdapter wires a token minter and HTTP client around cfg.
func NewHPCAdapter(minter *security.TokenMinter, cfg HPCConfig) *HPCAdapter {
	return &HPCAdapter{
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		minter:     minter,
		cfg:        cfg,
		logger:     log.WithComponent("scheduler.hpc"),
	}
}

type submitRequest struct {
	Name         string `json:"name"`
	Script       string `json:"script"`
	WorkingDir   string `json:"current_working_directory"`
	Partition    string `json:"partition"`
	CPUsPerTask  int    `json:"cpus_per_task"`
	Tasks        int    `json:"tasks"`
	User         string `json:"user"`
}

type submitResponse struct {
	JobID string `json:"job_id"`
}

// Submit builds a shell script per spec §4.3.3 and posts it to the
// cluster's submission endpoint.
func (a *HPCAdapter) Submit(ctx context.Context, spec JobSpec) (SubmitResult, error) {
	clusterJobDir, err := translatePath(a.cfg.JobDirMap, spec.JobTopDir)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("failed to translate job directory for %s: %w", spec.JobID, err)
	}
	clusterDataInputs, err := translatePath(a.cfg.DataDirMap, spec.DataInputs)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("failed to translate data path for %s: %w", spec.JobID, err)
	}

	cpusPerTask := clampToMax(spec.RuntimeHints.NThreads, a.cfg.MaxCoresPerTask)
	tasks := clampToMax(spec.RuntimeHints.NProc, a.cfg.MaxTasks)

	script := a.buildScript(spec, clusterDataInputs, tasks)

	body := submitRequest{
		Name:        fmt.Sprintf("job-%s", spec.JobID),
		Script:      script,
		WorkingDir:  clusterJobDir,
		Partition:   a.cfg.Queue,
		CPUsPerTask: cpusPerTask,
		Tasks:       tasks,
		User:        a.cfg.ClusterUser,
	}

	var resp submitResponse
	if err := a.do(ctx, http.MethodPost, "/jobs", body, &resp); err != nil {
		return SubmitResult{}, fmt.Errorf("failed to submit HPC job %s: %w", spec.JobID, err)
	}

	return SubmitResult{Pid: resp.JobID, SubmitDate: time.Now().UTC(), State: types.JobPending}, nil
}

// buildScript assembles the single shell script the cluster executes:
// a fixed 3-second settle sleep for network-mounted job directories, then
// the application entrypoint, wrapped in an MPI launcher when tasks>1.
func (a *HPCAdapter) buildScript(spec JobSpec, clusterDataInputs string, tasks int) string {
	var b strings.Builder
	b.WriteString("#!/bin/sh\n")
	b.WriteString("sleep 3\n") // let the network-mounted job directory become visible
	b.WriteString(fmt.Sprintf("cd %s\n", a.cfg.BatchWorkdir))

	entrypoint := strings.TrimSpace(spec.Command + " " + strings.Join(spec.Args, " ") + " " + clusterDataInputs)
	if tasks > 1 {
		b.WriteString(fmt.Sprintf("mpirun -np %d %s\n", tasks*spec.RuntimeHints.NThreads, entrypoint))
	} else {
		b.WriteString(entrypoint + "\n")
	}
	return b.String()
}

// translatePath performs the adapter's configured string substitution of
// a server-side path prefix for its cluster-side equivalent. Submission
// fails if the expected prefix is absent.
func translatePath(m HPCPathMap, path string) (string, error) {
	if !strings.HasPrefix(path, m.ServerPrefix) {
		return "", fmt.Errorf("path %q does not have expected prefix %q", path, m.ServerPrefix)
	}
	return m.ClusterPrefix + strings.TrimPrefix(path, m.ServerPrefix), nil
}

func clampToMax(requested, max int) int {
	if max > 0 && requested > max {
		return 1
	}
	if requested <= 0 {
		return 1
	}
	return requested
}

type statusEntry struct {
	JobID      string  `json:"job_id"`
	State      string  `json:"state"`
	ExitCode   int     `json:"exit_code"`
	StartTime  float64 `json:"start_time"`
	EndTime    float64 `json:"end_time"`
}

type statusListResponse struct {
	Jobs []statusEntry `json:"jobs"`
}

// Status fetches one job's native state and maps it into the common
// taxonomy.
func (a *HPCAdapter) Status(ctx context.Context, pid string) (StatusResult, error) {
	var resp statusListResponse
	if err := a.do(ctx, http.MethodGet, "/jobs?ids="+pid, nil, &resp); err != nil {
		return StatusResult{}, fmt.Errorf("failed to get HPC job status %s: %w", pid, err)
	}
	if len(resp.Jobs) == 0 {
		return StatusResult{}, fmt.Errorf("HPC job %s not found", pid)
	}
	return mapStatusEntry(resp.Jobs[0]), nil
}

// StatusBatch uses the cluster's native list-jobs call with a
// comma-joined filter of pids, a single request instead of N.
func (a *HPCAdapter) StatusBatch(ctx context.Context, pids []string) (map[string]StatusResult, error) {
	var resp statusListResponse
	if err := a.do(ctx, http.MethodGet, "/jobs?ids="+strings.Join(pids, ","), nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to batch get HPC job status: %w", err)
	}
	out := make(map[string]StatusResult, len(resp.Jobs))
	for _, entry := range resp.Jobs {
		out[entry.JobID] = mapStatusEntry(entry)
	}
	return out, nil
}

func mapStatusEntry(entry statusEntry) StatusResult {
	state, ok := nativeStateToCommon[entry.State]
	if !ok {
		state = types.JobUnknown
	}
	elapsed := 0.0
	if entry.EndTime > entry.StartTime {
		elapsed = entry.EndTime - entry.StartTime
	}
	return StatusResult{
		Pid:         entry.JobID,
		State:       state,
		Status:      entry.State,
		ExitCode:    entry.ExitCode,
		ElapsedTime: elapsed,
	}
}

// Cancel issues a DELETE; HTTP 200 is success, anything else is a
// failure.
func (a *HPCAdapter) Cancel(ctx context.Context, pid string) error {
	if err := a.doStrict(ctx, http.MethodDelete, "/jobs/"+pid, nil, nil, http.StatusOK); err != nil {
		return fmt.Errorf("failed to cancel HPC job %s: %w", pid, err)
	}
	return nil
}

// do issues one authenticated REST call, re-minting the token first if it
// is within its renewal headroom. Any 2xx status is accepted.
func (a *HPCAdapter) do(ctx context.Context, method, path string, reqBody, respBody any) error {
	return a.doStrict(ctx, method, path, reqBody, respBody, 0)
}

// doStrict is do with an optional exact required status code. wantStatus
// of 0 falls back to accepting any 2xx.
func (a *HPCAdapter) doStrict(ctx context.Context, method, path string, reqBody, respBody any, wantStatus int) error {
	tok, err := a.minter.Token(time.Now())
	if err != nil {
		return fmt.Errorf("failed to obtain HPC token: %w", err)
	}

	var reader io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.cfg.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("X-Slurm-User-Name", a.cfg.ClusterUser)
	req.Header.Set("X-Slurm-User-Token", tok.Value)
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	statusOK := resp.StatusCode >= 200 && resp.StatusCode < 300
	if wantStatus != 0 {
		statusOK = resp.StatusCode == wantStatus
	}
	if !statusOK {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("HPC endpoint returned %d: %s", resp.StatusCode, string(data))
	}

	if respBody == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(respBody)
}
