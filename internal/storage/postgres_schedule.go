package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "gitlab.com/jackdesk/api/bcast-conversation-hub/internal/apperrors"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/model"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/observer"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/tenant"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/pkg/logger"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/pkg/utils"
)

// --- ScheduledMessage Repository Methods ---

// ClaimDueSchedules atomically moves up to limit due schedules from
// scheduled/scheduled_warning to in_progress and returns the claimed rows.
// The rows are locked FOR UPDATE SKIP LOCKED so a second scheduler instance
// that slipped past the advisory lock cannot claim the same batch.
func (r *PostgresRepo) ClaimDueSchedules(ctx context.Context, dueBefore time.Time, limit int) ([]model.ScheduledMessage, error) {
	organizationID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get organization ID from context: %w", apperrors.ErrUnauthorized, err)
	}
	loggerCtx := logger.FromContext(ctx)

	var claimed []model.ScheduledMessage
	operation := func() error {
		claimed = nil

		tx := r.db.WithContext(ctx).Begin()
		if tx.Error != nil {
			return fmt.Errorf("%w: failed to begin transaction: %w", apperrors.ErrDatabase, tx.Error)
		}
		var txErr error
		defer func() {
			if r := recover(); r != nil {
				tx.Rollback()
				panic(r)
			} else if txErr != nil {
				if rbErr := tx.Rollback().Error; rbErr != nil {
					logger.FromContext(ctx).Error("Failed to rollback transaction after error", zap.Error(rbErr), zap.NamedError("originalTxError", txErr))
				}
			}
		}()

		var due []model.ScheduledMessage
		findErr := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("organization_id = ? AND status IN ? AND scheduled_time <= ?",
				organizationID,
				[]string{model.ScheduleStatusScheduled, model.ScheduleStatusScheduledWarning},
				dueBefore).
			Order("scheduled_time ASC").
			Limit(limit).
			Find(&due).Error
		if findErr != nil {
			txErr = fmt.Errorf("%w: failed to lock due schedules: %w", apperrors.ErrDatabase, findErr)
			return txErr
		}

		if len(due) > 0 {
			ids := make([]int64, 0, len(due))
			for i := range due {
				ids = append(ids, due[i].ID)
			}
			if updErr := tx.Model(&model.ScheduledMessage{}).
				Where("id IN ?", ids).
				Update("status", model.ScheduleStatusInProgress).Error; updErr != nil {
				txErr = checkConstraintViolation(updErr)
				return txErr
			}
			for i := range due {
				due[i].Status = model.ScheduleStatusInProgress
			}
		}

		if commitErr := tx.Commit().Error; commitErr != nil {
			txErr = fmt.Errorf("%w: failed to commit claim transaction: %w", apperrors.ErrDatabase, commitErr)
			return txErr
		}
		claimed = due
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "ClaimDueSchedules Commit", operation)
	observer.ObserveDbOperationDuration("claim_due", "scheduled_message", organizationID, time.Since(startTime), commitErr)
	if commitErr != nil {
		loggerCtx.Error("Failed to claim due schedules after retries", zap.Error(commitErr))
		return nil, commitErr
	}
	if claimed == nil {
		claimed = []model.ScheduledMessage{}
	}
	return claimed, nil
}

// UpdateScheduleStatus records the terminal outcome of a run. nextRun, when
// non-nil, pushes the schedule forward for the next recurrence; last_run_at
// is stamped either way.
func (r *PostgresRepo) UpdateScheduleStatus(ctx context.Context, id int64, status string, nextRun *time.Time) error {
	organizationID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get organization ID from context: %w", apperrors.ErrUnauthorized, err)
	}

	operation := func() error {
		now := utils.Now()
		updates := map[string]interface{}{
			"status":      status,
			"last_run_at": &now,
		}
		if nextRun != nil {
			updates["scheduled_time"] = *nextRun
		}
		result := r.db.WithContext(ctx).Model(&model.ScheduledMessage{}).
			Where("id = ? AND organization_id = ?", id, organizationID).
			Updates(updates)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		if result.RowsAffected == 0 {
			return backoff.Permanent(fmt.Errorf("%w: scheduled_message id %d", apperrors.ErrNotFound, id))
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "UpdateScheduleStatus Commit", operation)
	observer.ObserveDbOperationDuration("update_status", "scheduled_message", organizationID, time.Since(startTime), commitErr)
	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to update schedule status after retries",
			zap.Int64("scheduled_message_id", id),
			zap.String("status", status),
			zap.Error(commitErr))
		return commitErr
	}
	return nil
}

// FindScheduledMessageByID finds a schedule by its primary key.
func (r *PostgresRepo) FindScheduledMessageByID(ctx context.Context, id int64) (*model.ScheduledMessage, error) {
	organizationID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get organization ID from context: %w", apperrors.ErrUnauthorized, err)
	}
	loggerCtx := logger.FromContext(ctx)

	var schedule model.ScheduledMessage
	operation := func() error {
		result := r.db.WithContext(ctx).Where("id = ? AND organization_id = ?", id, organizationID).First(&schedule)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: scheduled_message id %d: %w", apperrors.ErrNotFound, id, result.Error)
			}
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindScheduledMessageByID", operation)
	observer.ObserveDbOperationDuration("find_by_id", "scheduled_message", organizationID, time.Since(startTime), findErr)

	if findErr != nil {
		if errors.Is(findErr, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		loggerCtx.Error("Failed to find scheduled message by ID after retries",
			zap.Int64("scheduled_message_id", id),
			zap.String("organization_id", organizationID),
			zap.Error(findErr))
		return nil, findErr
	}
	return &schedule, nil
}

// --- Datasource Repository Methods ---

// FindDatasourceRowByPhone returns the substitution values for one recipient
// from an uploaded datasource. apperrors.ErrNotFound means the recipient has
// no row; template fan-out treats that as a skip, not a failure.
func (r *PostgresRepo) FindDatasourceRowByPhone(ctx context.Context, datasourceID int64, phone string) (*model.DatasourceRow, error) {
	organizationID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get organization ID from context: %w", apperrors.ErrUnauthorized, err)
	}
	loggerCtx := logger.FromContext(ctx)

	var row model.DatasourceRow
	operation := func() error {
		if phone == "" {
			return backoff.Permanent(fmt.Errorf("%w: phone cannot be empty for FindDatasourceRowByPhone", apperrors.ErrBadRequest))
		}

		result := r.db.WithContext(ctx).
			Where("datasource_id = ? AND phone = ?", datasourceID, phone).
			First(&row)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return backoff.Permanent(fmt.Errorf("%w: datasource %d phone %s: %w", apperrors.ErrNotFound, datasourceID, phone, result.Error))
			}
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindDatasourceRowByPhone", operation)
	observer.ObserveDbOperationDuration("find_row_by_phone", "datasource", organizationID, time.Since(startTime), findErr)

	if findErr != nil {
		if errors.Is(findErr, apperrors.ErrNotFound) || errors.Is(findErr, apperrors.ErrBadRequest) {
			return nil, findErr
		}
		loggerCtx.Error("Failed to find datasource row by phone after retries",
			zap.Int64("datasource_id", datasourceID),
			zap.String("phone", phone),
			zap.Error(findErr))
		return nil, findErr
	}
	return &row, nil
}
