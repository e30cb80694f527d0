package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	apperrors "gitlab.com/jackdesk/api/bcast-conversation-hub/internal/apperrors"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/model"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/observer"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/tenant"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/pkg/logger"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/pkg/utils"
)

// --- Conversation Repository Methods ---

// GetOrOpenConversation returns the open conversation for the contact on the
// platform, creating one when none exists. The partial unique index on open
// conversations is the real arbiter: if a concurrent insert wins the race the
// 23505 maps to ErrDuplicate and we re-read the winner instead of failing.
// The second return value reports whether the conversation was newly opened.
func (r *PostgresRepo) GetOrOpenConversation(ctx context.Context, contactID, platformID, openBy string) (*model.Conversation, bool, error) {
	organizationID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("%w: failed to get organization ID from context: %w", apperrors.ErrUnauthorized, err)
	}
	loggerCtx := logger.FromContext(ctx)

	var resolved model.Conversation
	var created bool
	operation := func() error {
		created = false

		var existing model.Conversation
		findErr := r.db.WithContext(ctx).
			Where("contact_id = ? AND platform_id = ? AND organization_id = ? AND status IN ?",
				contactID, platformID, organizationID,
				[]string{model.ConversationStatusNew, model.ConversationStatusActive}).
			First(&existing).Error
		if findErr == nil {
			resolved = existing
			return nil
		}
		if !errors.Is(findErr, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, findErr)
		}

		conversation := model.Conversation{
			ID:             uuid.New().String(),
			ContactID:      contactID,
			PlatformID:     platformID,
			OrganizationID: organizationID,
			Status:         model.ConversationStatusNew,
			OpenBy:         openBy,
		}
		createErr := r.db.WithContext(ctx).Create(&conversation).Error
		if createErr != nil {
			mapped := checkConstraintViolation(createErr)
			if apperrors.IsDuplicateError(mapped) {
				// Lost the insert race; the winner is the open conversation.
				rereadErr := r.db.WithContext(ctx).
					Where("contact_id = ? AND platform_id = ? AND organization_id = ? AND status IN ?",
						contactID, platformID, organizationID,
						[]string{model.ConversationStatusNew, model.ConversationStatusActive}).
					First(&resolved).Error
				if rereadErr != nil {
					return fmt.Errorf("%w: re-read after duplicate open conversation failed: %w", apperrors.ErrDatabase, rereadErr)
				}
				return nil
			}
			return mapped
		}
		resolved = conversation
		created = true
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "GetOrOpenConversation Commit", operation)
	observer.ObserveDbOperationDuration("get_or_open", "conversation", organizationID, time.Since(startTime), commitErr)
	if commitErr != nil {
		loggerCtx.Error("Failed to get or open conversation after retries",
			zap.String("contact_id", contactID),
			zap.String("platform_id", platformID),
			zap.Error(commitErr))
		return nil, false, commitErr
	}
	return &resolved, created, nil
}

// CreateClosedConversation inserts a conversation that is born closed, used
// by campaign sends so the message history exists without opening a thread
// for agents. Closed rows are outside the partial unique index, so this
// never conflicts with an existing open conversation.
func (r *PostgresRepo) CreateClosedConversation(ctx context.Context, contactID, platformID, closedReason string) (*model.Conversation, error) {
	organizationID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get organization ID from context: %w", apperrors.ErrUnauthorized, err)
	}

	now := utils.Now()
	conversation := model.Conversation{
		ID:             uuid.New().String(),
		ContactID:      contactID,
		PlatformID:     platformID,
		OrganizationID: organizationID,
		Status:         model.ConversationStatusClosed,
		OpenBy:         model.OpenByAgent,
		ClosedReason:   closedReason,
		ClosedAt:       &now,
	}

	operation := func() error {
		if createErr := r.db.WithContext(ctx).Create(&conversation).Error; createErr != nil {
			return checkConstraintViolation(createErr)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "CreateClosedConversation Commit", operation)
	observer.ObserveDbOperationDuration("create_closed", "conversation", organizationID, time.Since(startTime), commitErr)
	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to create closed conversation after retries", zap.Error(commitErr))
		return nil, commitErr
	}
	return &conversation, nil
}

// FindConversationByID finds a conversation by its ID within the organization.
func (r *PostgresRepo) FindConversationByID(ctx context.Context, id string) (*model.Conversation, error) {
	organizationID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get organization ID from context: %w", apperrors.ErrUnauthorized, err)
	}
	loggerCtx := logger.FromContext(ctx)

	var conversation model.Conversation
	operation := func() error {
		result := r.db.WithContext(ctx).Where("id = ? AND organization_id = ?", id, organizationID).First(&conversation)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: conversation_id %s: %w", apperrors.ErrNotFound, id, result.Error)
			}
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindConversationByID", operation)
	observer.ObserveDbOperationDuration("find_by_id", "conversation", organizationID, time.Since(startTime), findErr)

	if findErr != nil {
		if errors.Is(findErr, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		loggerCtx.Error("Failed to find conversation by ID after retries",
			zap.String("conversation_id", id),
			zap.String("organization_id", organizationID),
			zap.Error(findErr))
		return nil, findErr
	}
	return &conversation, nil
}

// MarkConversationActive promotes a new conversation to active. A no-op when
// the conversation is already active or closed.
func (r *PostgresRepo) MarkConversationActive(ctx context.Context, id string) error {
	organizationID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get organization ID from context: %w", apperrors.ErrUnauthorized, err)
	}

	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.Conversation{}).
			Where("id = ? AND organization_id = ? AND status = ?", id, organizationID, model.ConversationStatusNew).
			Update("status", model.ConversationStatusActive)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "MarkConversationActive Commit", operation)
	observer.ObserveDbOperationDuration("mark_active", "conversation", organizationID, time.Since(startTime), commitErr)
	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to mark conversation active after retries", zap.Error(commitErr))
		return commitErr
	}
	return nil
}
