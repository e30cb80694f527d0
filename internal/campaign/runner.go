package campaign

import (
	"context"
	"time"

	"go.uber.org/zap"

	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/config"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/model"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/observer"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/storage"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/tenant"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/pkg/logger"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/pkg/utils"
)

// Runner drives the campaign schedule state machine. One runner per
// deployment holds the Postgres advisory lock for the whole loop lifetime;
// replicas that fail to acquire it exit without running. Row claims use
// SKIP LOCKED as a second defense, so even overlapping runners cannot pick
// up the same schedule twice.
type Runner struct {
	scheduleRepo   storage.ScheduleRepo
	leaseRepo      storage.LeaseRepo
	fanout         *Fanout
	organizationID string
	interval       time.Duration
	claimLimit     int
	lockID         int64
}

// NewRunner creates the scheduler runner.
func NewRunner(
	cfg *config.Config,
	scheduleRepo storage.ScheduleRepo,
	leaseRepo storage.LeaseRepo,
	fanout *Fanout,
) *Runner {
	return &Runner{
		scheduleRepo:   scheduleRepo,
		leaseRepo:      leaseRepo,
		fanout:         fanout,
		organizationID: cfg.Organization.ID,
		interval:       cfg.Scheduler.Interval,
		claimLimit:     cfg.Scheduler.ClaimLimit,
		lockID:         cfg.Scheduler.LockID,
	}
}

// Run acquires the singleton lease and loops until the context is cancelled.
// Returns false without error when another instance already holds the lease.
func (r *Runner) Run(ctx context.Context) (bool, error) {
	log := logger.FromContext(ctx)

	acquired, err := r.leaseRepo.TryAcquire(ctx, r.lockID)
	if err != nil {
		return false, err
	}
	if !acquired {
		log.Info("Another scheduler instance holds the lease, exiting",
			zap.Int64("lock_id", r.lockID),
		)
		return false, nil
	}
	defer func() {
		if err := r.leaseRepo.Release(context.WithoutCancel(ctx), r.lockID); err != nil {
			log.Warn("Failed to release scheduler lease", zap.Error(err))
		}
	}()

	log.Info("Campaign scheduler started",
		zap.Int64("lock_id", r.lockID),
		zap.Duration("interval", r.interval),
	)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("Campaign scheduler stopped")
			return true, nil
		case <-ticker.C:
			r.runCycle(ctx)
		}
	}
}

// runCycle claims all due schedules and processes each one to a terminal or
// rescheduled state. A schedule failing never aborts the rest of the batch.
func (r *Runner) runCycle(ctx context.Context) {
	ctx = tenant.WithOrganizationID(ctx, r.organizationID)
	log := logger.FromContext(ctx)
	now := utils.Now()

	schedules, err := r.scheduleRepo.ClaimDue(ctx, now, r.claimLimit)
	if err != nil {
		log.Error("Failed to claim due schedules", zap.Error(err))
		return
	}
	if len(schedules) == 0 {
		return
	}
	log.Info("Claimed due campaign schedules", zap.Int("count", len(schedules)))

	for i := range schedules {
		r.processSchedule(ctx, &schedules[i], now)
	}
}

// processSchedule fans one claimed schedule out and records its transition.
func (r *Runner) processSchedule(ctx context.Context, schedule *model.ScheduledMessage, triggeredAt time.Time) {
	log := logger.FromContext(ctx).With(zap.Int64("schedule_id", schedule.ID))

	summary, err := r.fanout.Run(ctx, schedule)
	if err != nil {
		log.Error("Campaign fan-out could not start", zap.Error(err))
		summary = Summary{}
	}

	status, nextRun := resolveTransition(schedule, summary, triggeredAt)
	if err := r.scheduleRepo.UpdateStatus(ctx, schedule.ID, status, nextRun); err != nil {
		log.Error("Failed to record schedule transition",
			zap.String("status", status),
			zap.Error(err),
		)
		return
	}

	observer.IncCampaignScheduleTransition(schedule.OrganizationID, status)
	logFields := []zap.Field{
		zap.String("status", status),
		zap.Int("sent", summary.Sent),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
	}
	if nextRun != nil {
		logFields = append(logFields, zap.Time("next_run", *nextRun))
	}
	log.Info("Campaign schedule processed", logFields...)
}

// resolveTransition folds a run's outcome tally into the schedule's next
// status. Skipped recipients count toward neither side of the ratio.
func resolveTransition(schedule *model.ScheduledMessage, summary Summary, triggeredAt time.Time) (string, *time.Time) {
	recurring := schedule.IsRecurring()

	switch {
	case summary.Sent == 0:
		return model.ScheduleStatusFailed, nil
	case summary.Failed == 0:
		if recurring {
			return model.ScheduleStatusScheduled, NextRun(schedule.Frequency, triggeredAt)
		}
		return model.ScheduleStatusCompleted, nil
	default:
		if recurring {
			return model.ScheduleStatusScheduledWarning, NextRun(schedule.Frequency, triggeredAt)
		}
		return model.ScheduleStatusWarning, nil
	}
}
