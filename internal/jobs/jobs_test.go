package jobs_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/buymart/dealflow-api/internal/jobs"
	"github.com/buymart/dealflow-api/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubSweeper struct {
	calls    int
	deadline bool
	err      error
}

func (s *stubSweeper) Sweep(ctx context.Context) (service.SweepResult, error) {
	s.calls++
	_, s.deadline = ctx.Deadline()
	return service.SweepResult{DealsChecked: 3, AlertsRaised: 2}, s.err
}

type stubReconciler struct {
	limit int
	err   error
}

func (r *stubReconciler) ReconcilePending(_ context.Context, limit int) (int, error) {
	r.limit = limit
	return 1, r.err
}

func TestScheduler_AddJob(t *testing.T) {
	scheduler := jobs.NewScheduler(zap.NewNop())

	require.NoError(t, scheduler.AddJob("b", "@every 1h", func() {}))
	require.NoError(t, scheduler.AddJob("a", "0 */15 * * * *", func() {}))
	assert.Equal(t, []string{"a", "b"}, scheduler.JobNames())

	assert.Error(t, scheduler.AddJob("a", "@every 1h", func() {}), "duplicate name")
	assert.Error(t, scheduler.AddJob("c", "every now and then", func() {}), "invalid expression")

	require.NoError(t, scheduler.RemoveJob("a"))
	assert.Error(t, scheduler.RemoveJob("a"))
	assert.Equal(t, []string{"b"}, scheduler.JobNames())
}

func TestScheduler_StartStop(t *testing.T) {
	scheduler := jobs.NewScheduler(zap.NewNop())
	ran := make(chan struct{}, 1)
	require.NoError(t, scheduler.AddJob("tick", "@every 1s", func() {
		select {
		case ran <- struct{}{}:
		default:
		}
	}))

	scheduler.Start()
	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("job did not run")
	}
	<-scheduler.Stop().Done()
}

func TestAlertSweepJob_Run(t *testing.T) {
	sweeper := &stubSweeper{}
	job := jobs.NewAlertSweepJob(sweeper, zap.NewNop(), time.Minute)

	job.Run()
	assert.Equal(t, 1, sweeper.calls)
	assert.True(t, sweeper.deadline)

	sweeper.err = context.DeadlineExceeded
	assert.NotPanics(t, job.Run)
	assert.Equal(t, 2, sweeper.calls)
}

func TestRegisterJobs(t *testing.T) {
	scheduler := jobs.NewScheduler(zap.NewNop())

	require.NoError(t, jobs.RegisterAlertSweepJob(scheduler, &stubSweeper{}, zap.NewNop(), "0 0 * * * *", time.Minute))
	require.NoError(t, jobs.RegisterEscrowReconcileJob(scheduler, &stubReconciler{}, zap.NewNop(), "0 */5 * * * *", time.Minute, false))
	assert.Equal(t, []string{jobs.AlertSweepJobName, jobs.EscrowReconcileJobName}, scheduler.JobNames())
}

func TestEscrowReconcileJob_Run(t *testing.T) {
	reconciler := &stubReconciler{err: errors.New("provider unavailable")}
	job := jobs.NewEscrowReconcileJob(reconciler, zap.NewNop(), time.Minute)

	assert.NotPanics(t, job.Run)
	assert.Equal(t, jobs.DefaultReconcileBatch, reconciler.limit)
}
