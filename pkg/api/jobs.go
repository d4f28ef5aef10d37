package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/cuemby/warren/pkg/packager"
	"github.com/cuemby/warren/pkg/storage"
	"github.com/cuemby/warren/pkg/submission"
	"github.com/cuemby/warren/pkg/types"
	"github.com/gorilla/mux"
)

// handleSubmitJob validates and dispatches a new job, returning 202 once
// it has been handed to the configured scheduler.
func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r)

	var req submission.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "malformed request body")
		return
	}

	res, err := s.submission.Submit(r.Context(), user, req)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, res.Warning, map[string]any{"job_id": res.JobID})
}

// handleListJobs lists the caller's job records, optionally narrowed by
// the "app", "state" and "tag" query parameters.
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r)
	q := r.URL.Query()

	filter := storage.JobFilter{
		App:   q.Get("app"),
		State: types.JobState(q.Get("state")),
		Tag:   q.Get("tag"),
	}
	jobs, err := s.store.FindJobs(user, filter)
	if err != nil {
		internalError(w, "failed to list jobs")
		return
	}
	writeJSON(w, http.StatusOK, "", map[string]any{"jobs": jobs})
}

func (s *Server) findJobOr404(w http.ResponseWriter, user, id string) (*types.Job, bool) {
	job, err := s.store.FindJob(user, id)
	if err != nil {
		notFound(w, fmt.Sprintf("job %q not found", id))
		return nil, false
	}
	return job, true
}

// handleJobStatus returns the stored job record verbatim.
func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r)
	job, ok := s.findJobOr404(w, user, mux.Vars(r)["id"])
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, "", map[string]any{"job": job})
}

// handleJobCancel requests adapter-specific termination and marks the
// record CANCELED whether or not the adapter call succeeded. Canceling an
// already-terminal job is reported as a success no-op and leaves the
// record unchanged.
func (s *Server) handleJobCancel(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r)
	job, ok := s.findJobOr404(w, user, mux.Vars(r)["id"])
	if !ok {
		return
	}

	if job.State.Terminal() {
		writeJSON(w, http.StatusOK, "job already terminal; cancel is a no-op", map[string]any{"job_id": job.JobID})
		return
	}

	if adapter, err := s.dispatcher.For(string(job.Scheduler)); err == nil {
		if err := adapter.Cancel(r.Context(), job.Pid); err != nil {
			s.logger.Warn().Err(err).Str("job_id", job.JobID).Msg("adapter cancel failed; marking canceled anyway")
		}
	}

	job.State = types.JobCanceled
	job.Status = "canceled by user"
	if err := s.store.UpdateJob(user, job); err != nil {
		s.logger.Warn().Err(err).Str("job_id", job.JobID).Msg("failed to persist cancellation")
	}

	writeJSON(w, http.StatusOK, "", map[string]any{"job_id": job.JobID})
}

// requireTerminalJob looks up the job and, if it isn't terminal yet,
// writes the 202-in-progress response itself and returns ok=false.
func (s *Server) requireTerminalJob(w http.ResponseWriter, user, id string) (*types.Job, bool) {
	job, ok := s.findJobOr404(w, user, id)
	if !ok {
		return nil, false
	}
	if !job.State.Terminal() {
		writeJSON(w, http.StatusAccepted, "job not yet terminal", map[string]any{"job_id": job.JobID, "state": job.State})
		return nil, false
	}
	return job, true
}

// handleJobOutput streams the job's packaged archive.
func (s *Server) handleJobOutput(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r)
	job, ok := s.requireTerminalJob(w, user, mux.Vars(r)["id"])
	if !ok {
		return
	}

	path, err := s.packager.ArchivePath(job.JobTopDir, job.JobID)
	if err != nil {
		internalError(w, "job output was not packaged")
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", packager.ArchiveName(job.JobID)))
	http.ServeFile(w, r, path)
}

func (s *Server) streamArtifact(w http.ResponseWriter, r *http.Request, jobID, artifact string) {
	user := userFromContext(r)
	job, ok := s.requireTerminalJob(w, user, jobID)
	if !ok {
		return
	}
	path, err := s.packager.ResolveArtifact(job.JobTopDir, artifact)
	if err != nil {
		notFound(w, err.Error())
		return
	}
	http.ServeFile(w, r, path)
}

func (s *Server) jsonArtifact(w http.ResponseWriter, r *http.Request, jobID, artifact, field string) {
	user := userFromContext(r)
	job, ok := s.requireTerminalJob(w, user, jobID)
	if !ok {
		return
	}
	path, err := s.packager.ResolveArtifact(job.JobTopDir, artifact)
	if err != nil {
		notFound(w, err.Error())
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		internalError(w, "failed to read artifact")
		return
	}
	writeJSON(w, http.StatusOK, "", map[string]any{field: json.RawMessage(data)})
}

// handleJobSources returns the island catalog as parsed JSON.
func (s *Server) handleJobSources(w http.ResponseWriter, r *http.Request) {
	s.jsonArtifact(w, r, mux.Vars(r)["id"], "island_catalog_json", "catalog")
}

// handleJobOutputSources streams the raw island catalog file.
func (s *Server) handleJobOutputSources(w http.ResponseWriter, r *http.Request) {
	s.streamArtifact(w, r, mux.Vars(r)["id"], "island_catalog")
}

// handleJobSourceComponents returns the component catalog as parsed JSON.
func (s *Server) handleJobSourceComponents(w http.ResponseWriter, r *http.Request) {
	s.jsonArtifact(w, r, mux.Vars(r)["id"], "component_catalog_json", "catalog")
}

// handleJobOutputComponents streams the raw component catalog file.
func (s *Server) handleJobOutputComponents(w http.ResponseWriter, r *http.Request) {
	s.streamArtifact(w, r, mux.Vars(r)["id"], "component_catalog")
}

// handleJobPreview returns the preview image base64-encoded inside the
// JSON envelope, with an empty status on success.
func (s *Server) handleJobPreview(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r)
	job, ok := s.requireTerminalJob(w, user, mux.Vars(r)["id"])
	if !ok {
		return
	}
	path, err := s.packager.ResolveArtifact(job.JobTopDir, "preview")
	if err != nil {
		notFound(w, err.Error())
		return
	}
	image, err := packager.ReadArtifactBase64(path)
	if err != nil {
		internalError(w, "failed to read preview")
		return
	}
	writeJSON(w, http.StatusOK, "", map[string]any{"image": image})
}

// handleJobOutputPlot streams the raw preview image file.
func (s *Server) handleJobOutputPlot(w http.ResponseWriter, r *http.Request) {
	s.streamArtifact(w, r, mux.Vars(r)["id"], "preview")
}
