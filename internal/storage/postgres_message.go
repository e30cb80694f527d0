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

// --- IncomingMessage Repository Methods ---

// CreateIncomingMessage appends one customer-originated message row.
func (r *PostgresRepo) CreateIncomingMessage(ctx context.Context, msg model.IncomingMessage) (*model.IncomingMessage, error) {
	organizationID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get organization ID from context: %w", apperrors.ErrUnauthorized, err)
	}
	if organizationID != msg.OrganizationID {
		return nil, fmt.Errorf("%w: message OrganizationID %s does not match context organization %s", apperrors.ErrBadRequest, msg.OrganizationID, organizationID)
	}

	operation := func() error {
		if createErr := r.db.WithContext(ctx).Create(&msg).Error; createErr != nil {
			return checkConstraintViolation(createErr)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "CreateIncomingMessage Commit", operation)
	observer.ObserveDbOperationDuration("create", "incoming_message", organizationID, time.Since(startTime), commitErr)
	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to create incoming message after retries",
			zap.String("provider_message_id", msg.ProviderMessageID),
			zap.Error(commitErr))
		return nil, commitErr
	}
	return &msg, nil
}

// MarkIncomingMessagesResponded flips every unread/read message in the
// conversation to responded. Called when the organization replies.
func (r *PostgresRepo) MarkIncomingMessagesResponded(ctx context.Context, conversationID string) error {
	organizationID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get organization ID from context: %w", apperrors.ErrUnauthorized, err)
	}

	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.IncomingMessage{}).
			Where("conversation_id = ? AND organization_id = ? AND status IN ?",
				conversationID, organizationID,
				[]string{model.IncomingStatusUnread, model.IncomingStatusRead}).
			Update("status", model.IncomingStatusResponded)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "MarkIncomingMessagesResponded Commit", operation)
	observer.ObserveDbOperationDuration("mark_responded", "incoming_message", organizationID, time.Since(startTime), commitErr)
	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to mark incoming messages responded after retries",
			zap.String("conversation_id", conversationID),
			zap.Error(commitErr))
		return commitErr
	}
	return nil
}

// --- UserMessage Repository Methods ---

// CreateUserMessage appends one organization-originated message row.
func (r *PostgresRepo) CreateUserMessage(ctx context.Context, msg model.UserMessage) (*model.UserMessage, error) {
	organizationID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get organization ID from context: %w", apperrors.ErrUnauthorized, err)
	}
	if organizationID != msg.OrganizationID {
		return nil, fmt.Errorf("%w: message OrganizationID %s does not match context organization %s", apperrors.ErrBadRequest, msg.OrganizationID, organizationID)
	}

	operation := func() error {
		if createErr := r.db.WithContext(ctx).Create(&msg).Error; createErr != nil {
			return checkConstraintViolation(createErr)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "CreateUserMessage Commit", operation)
	observer.ObserveDbOperationDuration("create", "user_message", organizationID, time.Since(startTime), commitErr)
	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to create user message after retries",
			zap.String("provider_message_id", msg.ProviderMessageID),
			zap.Error(commitErr))
		return nil, commitErr
	}
	return &msg, nil
}

// FindUserMessageByProviderID correlates a provider status callback back to
// the user message it refers to. Returns apperrors.ErrNotFound when nothing
// matches; callers decide whether that is a drop or a failure.
func (r *PostgresRepo) FindUserMessageByProviderID(ctx context.Context, providerMessageID string) (*model.UserMessage, error) {
	organizationID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get organization ID from context: %w", apperrors.ErrUnauthorized, err)
	}
	loggerCtx := logger.FromContext(ctx)

	var msg model.UserMessage
	operation := func() error {
		if providerMessageID == "" {
			return backoff.Permanent(fmt.Errorf("%w: providerMessageID cannot be empty", apperrors.ErrBadRequest))
		}

		result := r.db.WithContext(ctx).
			Where("provider_message_id = ? AND organization_id = ?", providerMessageID, organizationID).
			Order("created_at DESC").
			First(&msg)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return backoff.Permanent(fmt.Errorf("%w: provider_message_id %s: %w", apperrors.ErrNotFound, providerMessageID, result.Error))
			}
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindUserMessageByProviderID", operation)
	observer.ObserveDbOperationDuration("find_by_provider_id", "user_message", organizationID, time.Since(startTime), findErr)

	if findErr != nil {
		if errors.Is(findErr, apperrors.ErrNotFound) || errors.Is(findErr, apperrors.ErrBadRequest) {
			return nil, findErr
		}
		loggerCtx.Error("Failed to find user message by provider ID after retries",
			zap.String("provider_message_id", providerMessageID),
			zap.String("organization_id", organizationID),
			zap.Error(findErr))
		return nil, findErr
	}
	return &msg, nil
}

// UpdateUserMessageStatus records a delivery status transition. StatusDetails
// carries the provider error body when the transition is to failed.
func (r *PostgresRepo) UpdateUserMessageStatus(ctx context.Context, id int64, status, statusDetails string) error {
	organizationID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get organization ID from context: %w", apperrors.ErrUnauthorized, err)
	}

	operation := func() error {
		updates := map[string]interface{}{
			"status":         status,
			"status_details": statusDetails,
		}
		result := r.db.WithContext(ctx).Model(&model.UserMessage{}).
			Where("id = ? AND organization_id = ?", id, organizationID).
			Updates(updates)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		if result.RowsAffected == 0 {
			return backoff.Permanent(fmt.Errorf("%w: user_message id %d", apperrors.ErrNotFound, id))
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "UpdateUserMessageStatus Commit", operation)
	observer.ObserveDbOperationDuration("update_status", "user_message", organizationID, time.Since(startTime), commitErr)
	if commitErr != nil {
		if errors.Is(commitErr, apperrors.ErrNotFound) {
			return commitErr
		}
		logger.FromContext(ctx).Error("Failed to update user message status after retries",
			zap.Int64("user_message_id", id),
			zap.String("status", status),
			zap.Error(commitErr))
		return commitErr
	}
	return nil
}
