package scheduler

import (
	"context"
	"fmt"

	"github.com/cuemby/warren/pkg/log"
	"github.com/cuemby/warren/pkg/types"
	"github.com/rs/zerolog"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// OrchestratorConfig configures image selection and remote-storage mounts
// for the Container Orchestrator Adapter.
type OrchestratorConfig struct {
	Namespace              string
	ImagePerApp            map[string]string
	DefaultImage           string
	RemoteStorageSecret    string
	RemoteStorageMountPath string
}

// OrchestratorAdapter submits one batchv1.Job per job record, with a
// single container running the application's image and the validated
// argument vector.
type OrchestratorAdapter struct {
	clientset kubernetes.Interface
	cfg       OrchestratorConfig
	logger    zerolog.Logger
}

// NewOrchestratorAdapter wraps an already-constructed Kubernetes client.
func NewOrchestratorAdapter(clientset kubernetes.Interface, cfg OrchestratorConfig) *OrchestratorAdapter {
	return &OrchestratorAdapter{
		clientset: clientset,
		cfg:       cfg,
		logger:    log.WithComponent("scheduler.orchestrator"),
	}
}

func (a *OrchestratorAdapter) jobName(jobID string) string {
	return fmt.Sprintf("job-%s", jobID)
}

// Submit creates a batchv1.Job named after spec.JobID (client-generated,
// so it is stable across retries).
func (a *OrchestratorAdapter) Submit(ctx context.Context, spec JobSpec) (SubmitResult, error) {
	image := a.cfg.ImagePerApp[spec.App]
	if image == "" {
		image = a.cfg.DefaultImage
	}
	if image == "" {
		return SubmitResult{}, fmt.Errorf("no container image configured for app %q", spec.App)
	}

	backoff := int32(0)
	job := &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			Name:      a.jobName(spec.JobID),
			Namespace: a.cfg.Namespace,
			Labels: map[string]string{
				"app":        spec.App,
				"job-id":     spec.JobID,
				"user":       spec.User,
				"managed-by": "job-orchestrator",
			},
		},
		Spec: batchv1.JobSpec{
			BackoffLimit: &backoff,
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{
					Labels: map[string]string{"job-id": spec.JobID},
				},
				Spec: corev1.PodSpec{
					RestartPolicy: corev1.RestartPolicyNever,
					Containers: []corev1.Container{
						{
							Name:         "job",
							Image:        image,
							Command:      []string{spec.Command},
							Args:         spec.Args,
							Env:          a.envVars(spec),
							VolumeMounts: a.volumeMounts(),
						},
					},
					Volumes: a.volumes(),
				},
			},
		},
	}

	created, err := a.clientset.BatchV1().Jobs(a.cfg.Namespace).Create(ctx, job, metav1.CreateOptions{})
	if err != nil {
		return SubmitResult{}, fmt.Errorf("failed to submit orchestrator job %s: %w", spec.JobID, err)
	}

	start := created.CreationTimestamp.Time
	if created.Status.StartTime != nil {
		start = created.Status.StartTime.Time
	}

	return SubmitResult{Pid: spec.JobID, SubmitDate: start, State: types.JobPending}, nil
}

func (a *OrchestratorAdapter) envVars(spec JobSpec) []corev1.EnvVar {
	return []corev1.EnvVar{
		{Name: "JOB_ID", Value: spec.JobID},
		{Name: "JOB_ARGS", Value: fmt.Sprintf("%v", spec.Args)},
	}
}

func (a *OrchestratorAdapter) volumeMounts() []corev1.VolumeMount {
	if a.cfg.RemoteStorageMountPath == "" {
		return nil
	}
	return []corev1.VolumeMount{{Name: "remote-storage", MountPath: a.cfg.RemoteStorageMountPath}}
}

func (a *OrchestratorAdapter) volumes() []corev1.Volume {
	if a.cfg.RemoteStorageMountPath == "" {
		return nil
	}
	return []corev1.Volume{{
		Name: "remote-storage",
		VolumeSource: corev1.VolumeSource{
			Secret: &corev1.SecretVolumeSource{SecretName: a.cfg.RemoteStorageSecret},
		},
	}}
}

// Status maps a batchv1.Job's condition fields into the common taxonomy
// per spec §4.3.2: active>0 with no succeeded/failed counters is RUNNING;
// succeeded>=1 is SUCCESS; failed>=1 with no success is FAILURE; otherwise
// (nothing has started yet) PENDING.
func (a *OrchestratorAdapter) Status(ctx context.Context, pid string) (StatusResult, error) {
	job, err := a.clientset.BatchV1().Jobs(a.cfg.Namespace).Get(ctx, a.jobName(pid), metav1.GetOptions{})
	if err != nil {
		return StatusResult{}, fmt.Errorf("failed to get orchestrator job %s: %w", pid, err)
	}
	return a.resultFromJob(job, pid), nil
}

func (a *OrchestratorAdapter) resultFromJob(job *batchv1.Job, pid string) StatusResult {
	res := StatusResult{Pid: pid, ExitCode: ExitCodeUnknown}

	switch {
	case job.Status.Succeeded >= 1:
		res.State = types.JobSuccess
		if job.Status.StartTime != nil && job.Status.CompletionTime != nil {
			res.ElapsedTime = job.Status.CompletionTime.Sub(job.Status.StartTime.Time).Seconds()
		}
		res.Status = "completed"
	case job.Status.Failed >= 1 && job.Status.Succeeded == 0:
		res.State = types.JobFailure
		res.Status = firstConditionMessage(job, "job failed")
	case job.Status.Active > 0:
		res.State = types.JobRunning
		res.Status = fmt.Sprintf("running with %d active pod(s)", job.Status.Active)
	default:
		res.State = types.JobPending
		res.Status = "pending"
	}

	return res
}

func firstConditionMessage(job *batchv1.Job, fallback string) string {
	for _, c := range job.Status.Conditions {
		if c.Message != "" {
			return c.Message
		}
	}
	return fallback
}

// StatusBatch has no native primitive in the Kubernetes batch API; it
// loops per job.
func (a *OrchestratorAdapter) StatusBatch(ctx context.Context, pids []string) (map[string]StatusResult, error) {
	return BatchByLoop(ctx, a, pids)
}

// Cancel deletes the workload with background propagation and zero grace
// period: best-effort garbage collection, since some backends leak
// succeeded workloads if left alone.
func (a *OrchestratorAdapter) Cancel(ctx context.Context, pid string) error {
	propagation := metav1.DeletePropagationBackground
	gracePeriod := int64(0)
	err := a.clientset.BatchV1().Jobs(a.cfg.Namespace).Delete(ctx, a.jobName(pid), metav1.DeleteOptions{
		PropagationPolicy:  &propagation,
		GracePeriodSeconds: &gracePeriod,
	})
	if err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("failed to cancel orchestrator job %s: %w", pid, err)
	}
	return nil
}

// DeleteTerminal is invoked by the reconciliation engine on terminal
// transition to garbage-collect the workload, matching the adapter's
// best-effort cleanup responsibility from spec §4.3.2.
func (a *OrchestratorAdapter) DeleteTerminal(ctx context.Context, pid string) error {
	return a.Cancel(ctx, pid)
}
