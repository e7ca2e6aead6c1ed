package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// EscrowReconcileJobName is the name of the escrow reconciliation job
const EscrowReconcileJobName = "escrow_reconcile"

// DefaultReconcileBatch is how many flagged accounts one run reconciles
const DefaultReconcileBatch = 100

// EscrowReconciler re-polls the provider for accounts left in doubt by a timed out call
type EscrowReconciler interface {
	ReconcilePending(ctx context.Context, limit int) (int, error)
}

// EscrowReconcileJob settles escrow accounts flagged for reconciliation
type EscrowReconcileJob struct {
	reconciler EscrowReconciler
	logger     *zap.Logger
	timeout    time.Duration
	batch      int
}

// NewEscrowReconcileJob creates a new escrow reconciliation job
func NewEscrowReconcileJob(reconciler EscrowReconciler, logger *zap.Logger, timeout time.Duration) *EscrowReconcileJob {
	return &EscrowReconcileJob{
		reconciler: reconciler,
		logger:     logger,
		timeout:    timeout,
		batch:      DefaultReconcileBatch,
	}
}

// Run reconciles one batch of flagged accounts
func (j *EscrowReconcileJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	start := time.Now()
	reconciled, err := j.reconciler.ReconcilePending(ctx, j.batch)
	if err != nil {
		// Failed accounts stay flagged and are retried on the next run
		j.logger.Warn("escrow reconciliation incomplete",
			zap.Int("reconciled", reconciled),
			zap.Error(err),
			zap.Duration("duration", time.Since(start)))
		return
	}

	if reconciled > 0 {
		j.logger.Info("escrow reconciliation completed",
			zap.Int("reconciled", reconciled),
			zap.Duration("duration", time.Since(start)))
	}
}

// RegisterEscrowReconcileJob registers the reconciliation job with the scheduler.
// If runOnStartup is true, it also reconciles accounts flagged before the
// last shutdown in a background goroutine so it doesn't block API startup.
func RegisterEscrowReconcileJob(scheduler *Scheduler, reconciler EscrowReconciler, logger *zap.Logger, cronExpr string, timeout time.Duration, runOnStartup bool) error {
	job := NewEscrowReconcileJob(reconciler, logger, timeout)

	if runOnStartup {
		go job.Run()
	}

	return scheduler.AddJob(EscrowReconcileJobName, cronExpr, job.Run)
}
