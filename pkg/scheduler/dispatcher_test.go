package scheduler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAdapter struct{ name string }

func (s *stubAdapter) Submit(ctx context.Context, spec JobSpec) (SubmitResult, error) {
	return SubmitResult{Pid: s.name}, nil
}
func (s *stubAdapter) Status(ctx context.Context, pid string) (StatusResult, error) {
	return StatusResult{}, nil
}
func (s *stubAdapter) StatusBatch(ctx context.Context, pids []string) (map[string]StatusResult, error) {
	return nil, nil
}
func (s *stubAdapter) Cancel(ctx context.Context, pid string) error { return nil }

func TestDispatcherRoutesByKind(t *testing.T) {
	local := &stubAdapter{name: "local"}
	orchestrator := &stubAdapter{name: "orchestrator"}

	d := NewDispatcher(local, orchestrator, nil)

	a, err := d.For("local")
	require.NoError(t, err)
	res, _ := a.Submit(context.Background(), JobSpec{})
	assert.Equal(t, "local", res.Pid)

	_, err = d.For("hpc")
	assert.Error(t, err)
}
