package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/buymart/dealflow-api/internal/domain"
	"github.com/buymart/dealflow-api/internal/repository"
	"github.com/buymart/dealflow-api/internal/timeline"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AlertKind names one timeline alert condition
type AlertKind string

const (
	AlertOverdueMilestones AlertKind = "overdue_milestones"
	AlertUpcomingDeadlines AlertKind = "upcoming_deadlines"
	AlertDealAtRisk        AlertKind = "deal_at_risk"
)

// NotificationType is the notification type an alert is delivered as
func (k AlertKind) NotificationType() string {
	return "timeline_" + string(k)
}

// DefaultLookaheadDays is the upcoming-deadline window used when none is configured
const DefaultLookaheadDays = 7

// Alert is one notification-worthy timeline condition of a deal
type Alert struct {
	Kind    AlertKind
	Title   string
	Message string
	Payload map[string]any
}

// BuildAlerts evaluates the three alert conditions against computed metrics
func BuildAlerts(deal *domain.Deal, metrics timeline.Metrics, upcoming []domain.Milestone, lookaheadDays int) []Alert {
	var alerts []Alert
	base := func() map[string]any {
		return map[string]any{
			"deal_id":     deal.ID.String(),
			"deal_number": deal.DealNumber,
		}
	}

	if metrics.Overdue > 0 {
		payload := base()
		payload["overdue_count"] = metrics.Overdue
		alerts = append(alerts, Alert{
			Kind:  AlertOverdueMilestones,
			Title: fmt.Sprintf("%d Overdue %s", metrics.Overdue, plural(metrics.Overdue, "Milestone")),
			Message: fmt.Sprintf("Deal %s has %d overdue %s. Please review and update progress.",
				deal.DealNumber, metrics.Overdue, plural(metrics.Overdue, "milestone")),
			Payload: payload,
		})
	}

	if n := len(upcoming); n > 0 {
		payload := base()
		payload["upcoming_count"] = n
		names := make([]string, 0, n)
		for _, m := range upcoming {
			names = append(names, m.Name)
		}
		payload["milestones"] = names
		alerts = append(alerts, Alert{
			Kind:  AlertUpcomingDeadlines,
			Title: fmt.Sprintf("%d Upcoming %s", n, plural(n, "Deadline")),
			Message: fmt.Sprintf("Deal %s has %d %s coming up in the next %d days.",
				deal.DealNumber, n, plural(n, "deadline"), lookaheadDays),
			Payload: payload,
		})
	}

	if metrics.IsAtRisk() {
		payload := base()
		payload["progress_percentage"] = metrics.ProgressPct
		payload["time_progress_percentage"] = metrics.TimeProgressPct
		alerts = append(alerts, Alert{
			Kind:  AlertDealAtRisk,
			Title: "Deal Timeline At Risk",
			Message: fmt.Sprintf("Deal %s is %d%% behind schedule. Consider reviewing timeline and priorities.",
				deal.DealNumber, metrics.ScheduleGap()),
			Payload: payload,
		})
	}

	return alerts
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}

// SweepResult summarizes one periodic alert sweep
type SweepResult struct {
	DealsChecked int
	AlertsRaised int
	Failed       int
}

// AlertService is the alert dispatcher. It recomputes a deal's timeline and
// hands every raised alert to the notification sink.
type AlertService struct {
	dealRepo      *repository.DealRepository
	milestoneRepo *repository.MilestoneRepository
	sink          NotificationSink
	locker        *DealLocker
	lookaheadDays int
	logger        *zap.Logger
	now           Clock
}

// NewAlertService creates a new AlertService instance
func NewAlertService(
	dealRepo *repository.DealRepository,
	milestoneRepo *repository.MilestoneRepository,
	sink NotificationSink,
	locker *DealLocker,
	lookaheadDays int,
	logger *zap.Logger,
) *AlertService {
	if lookaheadDays <= 0 {
		lookaheadDays = DefaultLookaheadDays
	}
	return &AlertService{
		dealRepo:      dealRepo,
		milestoneRepo: milestoneRepo,
		sink:          sink,
		locker:        locker,
		lookaheadDays: lookaheadDays,
		logger:        logger,
		now:           systemClock,
	}
}

// WithClock replaces the time source
func (s *AlertService) WithClock(now Clock) *AlertService {
	s.now = now
	return s
}

// LookaheadDays is the upcoming-deadline window in days
func (s *AlertService) LookaheadDays() int {
	return s.lookaheadDays
}

// Check evaluates and dispatches alerts for one deal under its lock
func (s *AlertService) Check(ctx context.Context, dealID uuid.UUID) ([]Alert, error) {
	var alerts []Alert
	err := s.locker.WithDeal(dealID, func() error {
		deal, err := s.dealRepo.GetByID(ctx, dealID)
		if err != nil {
			return lookupErr(err, "deal", dealID)
		}
		alerts, err = s.evaluate(ctx, deal)
		return err
	})
	return alerts, err
}

// evaluate loads the current milestones, builds alerts and dispatches them.
// Callers hold the deal lock.
func (s *AlertService) evaluate(ctx context.Context, deal *domain.Deal) ([]Alert, error) {
	milestones, err := s.milestoneRepo.ListByDeal(ctx, deal.ID)
	if err != nil {
		return nil, storeErr("failed to load milestones", err)
	}
	return s.evaluateWith(ctx, deal, milestones), nil
}

// evaluateWith builds and dispatches alerts from an already loaded milestone set
func (s *AlertService) evaluateWith(ctx context.Context, deal *domain.Deal, milestones []domain.Milestone) []Alert {
	if deal.Status.IsTerminal() {
		return nil
	}

	now := s.now()
	metrics := timeline.ComputeMetrics(deal, milestones, now)
	upcoming := timeline.UpcomingDeadlines(milestones, now, time.Duration(s.lookaheadDays)*24*time.Hour)

	alerts := BuildAlerts(deal, metrics, upcoming, s.lookaheadDays)
	s.dispatch(ctx, deal, alerts)
	return alerts
}

// dispatch submits each alert to the sink. Sink failures are logged and skipped.
func (s *AlertService) dispatch(ctx context.Context, deal *domain.Deal, alerts []Alert) {
	recipients := deal.Participants()
	for _, alert := range alerts {
		err := s.sink.Notify(ctx, recipients, alert.Kind.NotificationType(), alert.Title, alert.Message, alert.Payload)
		if err != nil {
			s.logger.Warn("failed to submit timeline alert",
				zap.String("deal_id", deal.ID.String()),
				zap.String("alert", string(alert.Kind)),
				zap.Error(err))
			continue
		}
		s.logger.Info("timeline alert sent",
			zap.String("deal_id", deal.ID.String()),
			zap.String("deal_number", deal.DealNumber),
			zap.String("alert", string(alert.Kind)),
			zap.Int("recipients", len(recipients)))
	}
}

// Sweep checks every active deal, one lock at a time. It stops between deals
// when ctx is done, so no deal is left half evaluated.
func (s *AlertService) Sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult

	ids, err := s.dealRepo.ListActiveIDs(ctx)
	if err != nil {
		return result, storeErr("failed to list active deals", err)
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		alerts, err := s.Check(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		result.DealsChecked++
		if err != nil {
			result.Failed++
			s.logger.Warn("alert check failed",
				zap.String("deal_id", id.String()),
				zap.Error(err))
			continue
		}
		result.AlertsRaised += len(alerts)
	}

	return result, nil
}
