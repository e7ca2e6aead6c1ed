package jobs

import (
	"context"
	"time"

	"github.com/buymart/dealflow-api/internal/service"
	"go.uber.org/zap"
)

// AlertSweepJobName is the name of the timeline alert sweep job
const AlertSweepJobName = "alert_sweep"

// AlertSweeper evaluates timeline alerts for every active deal
type AlertSweeper interface {
	Sweep(ctx context.Context) (service.SweepResult, error)
}

// AlertSweepJob runs the periodic alert evaluation so deals that see no
// activity still raise overdue and at-risk alerts.
type AlertSweepJob struct {
	sweeper AlertSweeper
	logger  *zap.Logger
	timeout time.Duration
}

// NewAlertSweepJob creates a new alert sweep job.
// The timeout bounds a single sweep; deals not reached are picked up next run.
func NewAlertSweepJob(sweeper AlertSweeper, logger *zap.Logger, timeout time.Duration) *AlertSweepJob {
	return &AlertSweepJob{
		sweeper: sweeper,
		logger:  logger,
		timeout: timeout,
	}
}

// Run executes one sweep. This is called by the scheduler according to the cron expression.
func (j *AlertSweepJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	start := time.Now()
	result, err := j.sweeper.Sweep(ctx)
	if err != nil {
		j.logger.Error("alert sweep stopped early",
			zap.Error(err),
			zap.Int("deals_checked", result.DealsChecked),
			zap.Duration("duration", time.Since(start)))
		return
	}

	j.logger.Info("alert sweep completed",
		zap.Int("deals_checked", result.DealsChecked),
		zap.Int("alerts_raised", result.AlertsRaised),
		zap.Int("deals_failed", result.Failed),
		zap.Duration("duration", time.Since(start)))
}

// RegisterAlertSweepJob registers the alert sweep with the scheduler.
// The cronExpr should be a valid cron expression (e.g., "0 0 * * * *" for every hour).
func RegisterAlertSweepJob(scheduler *Scheduler, sweeper AlertSweeper, logger *zap.Logger, cronExpr string, timeout time.Duration) error {
	job := NewAlertSweepJob(sweeper, logger, timeout)
	return scheduler.AddJob(AlertSweepJobName, cronExpr, job.Run)
}
