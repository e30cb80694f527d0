package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"

	apperrors "gitlab.com/jackdesk/api/bcast-conversation-hub/internal/apperrors"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/model"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/observer"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/tenant"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/pkg/logger"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/pkg/utils"
)

// --- Platform Repository Methods ---

// FindPlatformByLoginID resolves the channel that received a webhook. LoginID
// is the provider-side channel id (phone_number_id, page id, mailbox, widget).
// Signature verification happens before any organization context exists, so
// this lookup is deliberately not tenant-scoped.
func (r *PostgresRepo) FindPlatformByLoginID(ctx context.Context, loginID string) (*model.Platform, error) {
	loggerCtx := logger.FromContext(ctx)

	var platform model.Platform
	operation := func() error {
		if loginID == "" {
			return backoff.Permanent(fmt.Errorf("%w: loginID cannot be empty for FindPlatformByLoginID", apperrors.ErrBadRequest))
		}

		result := r.db.WithContext(ctx).Where("login_id = ? AND active = true", loginID).First(&platform)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return backoff.Permanent(fmt.Errorf("%w: login_id %s: %w", apperrors.ErrNotFound, loginID, result.Error))
			}
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindPlatformByLoginID", operation)
	observer.ObserveDbOperationDuration("find_by_login_id", "platform", platform.OrganizationID, time.Since(startTime), findErr)

	if findErr != nil {
		if errors.Is(findErr, apperrors.ErrNotFound) || errors.Is(findErr, apperrors.ErrBadRequest) {
			return nil, findErr
		}
		loggerCtx.Error("Failed to find platform by login ID after retries",
			zap.String("login_id", loginID),
			zap.Error(findErr))
		return nil, findErr
	}
	return &platform, nil
}

// FindPlatformByID finds a platform by its primary key within the organization.
func (r *PostgresRepo) FindPlatformByID(ctx context.Context, id string) (*model.Platform, error) {
	organizationID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get organization ID from context: %w", apperrors.ErrUnauthorized, err)
	}
	loggerCtx := logger.FromContext(ctx)

	var platform model.Platform
	operation := func() error {
		result := r.db.WithContext(ctx).Where("id = ? AND organization_id = ?", id, organizationID).First(&platform)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: platform_id %s: %w", apperrors.ErrNotFound, id, result.Error)
			}
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindPlatformByID", operation)
	observer.ObserveDbOperationDuration("find_by_id", "platform", organizationID, time.Since(startTime), findErr)

	if findErr != nil {
		if errors.Is(findErr, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		loggerCtx.Error("Failed to find platform by ID after retries",
			zap.String("platform_id", id),
			zap.String("organization_id", organizationID),
			zap.Error(findErr))
		return nil, findErr
	}
	return &platform, nil
}

// CreatePlatformLog appends one delivery-attempt audit row. The trail is
// append-only; no update path exists.
func (r *PostgresRepo) CreatePlatformLog(ctx context.Context, log model.PlatformLog) error {
	organizationID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get organization ID from context: %w", apperrors.ErrUnauthorized, err)
	}
	if organizationID != log.OrganizationID {
		return fmt.Errorf("%w: log OrganizationID %s does not match context organization %s", apperrors.ErrBadRequest, log.OrganizationID, organizationID)
	}

	operation := func() error {
		if createErr := r.db.WithContext(ctx).Create(&log).Error; createErr != nil {
			return checkConstraintViolation(createErr)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "CreatePlatformLog Commit", operation)
	observer.ObserveDbOperationDuration("create", "platform_log", organizationID, time.Since(startTime), commitErr)
	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to create platform log after retries", zap.Error(commitErr))
		return commitErr
	}
	return nil
}
