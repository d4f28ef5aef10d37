package scheduler

import (
	"context"
	"testing"

	"github.com/cuemby/warren/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	batchv1 "k8s.io/api/batch/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
)

func newTestOrchestrator() (*OrchestratorAdapter, *fake.Clientset) {
	clientset := fake.NewSimpleClientset()
	cfg := OrchestratorConfig{
		Namespace:    "jobs",
		ImagePerApp:  map[string]string{"caesar": "registry/caesar:latest"},
		DefaultImage: "registry/default:latest",
	}
	return NewOrchestratorAdapter(clientset, cfg), clientset
}

func TestOrchestratorSubmitCreatesJob(t *testing.T) {
	adapter, clientset := newTestOrchestrator()

	spec := JobSpec{JobID: "abc123", User: "alice", App: "caesar", Command: "caesar", Args: []string{"--seedthr=5"}}
	res, err := adapter.Submit(context.Background(), spec)
	require.NoError(t, err)
	assert.Equal(t, "abc123", res.Pid)
	assert.Equal(t, types.JobPending, res.State)

	job, err := clientset.BatchV1().Jobs("jobs").Get(context.Background(), "job-abc123", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "registry/caesar:latest", job.Spec.Template.Spec.Containers[0].Image)
}

func TestOrchestratorSubmitRejectsUnknownAppWithoutDefault(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	adapter := NewOrchestratorAdapter(clientset, OrchestratorConfig{Namespace: "jobs"})

	_, err := adapter.Submit(context.Background(), JobSpec{JobID: "x", App: "unregistered"})
	assert.Error(t, err)
}

func TestOrchestratorStatusMapping(t *testing.T) {
	cases := []struct {
		name      string
		job       batchv1.Job
		wantState types.JobState
	}{
		{"succeeded", batchv1.Job{Status: batchv1.JobStatus{Succeeded: 1}}, types.JobSuccess},
		{"failed", batchv1.Job{Status: batchv1.JobStatus{Failed: 1}}, types.JobFailure},
		{"running", batchv1.Job{Status: batchv1.JobStatus{Active: 1}}, types.JobRunning},
		{"pending", batchv1.Job{Status: batchv1.JobStatus{}}, types.JobPending},
	}

	adapter, _ := newTestOrchestrator()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := adapter.resultFromJob(&tc.job, "pid-1")
			assert.Equal(t, tc.wantState, res.State)
		})
	}
}

func TestOrchestratorCancelDeletesJob(t *testing.T) {
	adapter, clientset := newTestOrchestrator()

	_, err := adapter.Submit(context.Background(), JobSpec{JobID: "abc123", App: "caesar"})
	require.NoError(t, err)

	require.NoError(t, adapter.Cancel(context.Background(), "abc123"))

	_, err = clientset.BatchV1().Jobs("jobs").Get(context.Background(), "job-abc123", metav1.GetOptions{})
	assert.Error(t, err)
}

func TestOrchestratorCancelOnMissingJobIsNotAnError(t *testing.T) {
	adapter, _ := newTestOrchestrator()
	err := adapter.Cancel(context.Background(), "never-submitted")
	assert.NoError(t, err)
}
