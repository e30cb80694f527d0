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

// --- GmailAccount Repository Methods ---

// FindGmailAccountByEmail finds an active mailbox by address.
func (r *PostgresRepo) FindGmailAccountByEmail(ctx context.Context, emailAddress string) (*model.GmailAccount, error) {
	organizationID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get organization ID from context: %w", apperrors.ErrUnauthorized, err)
	}
	loggerCtx := logger.FromContext(ctx)

	var account model.GmailAccount
	operation := func() error {
		if emailAddress == "" {
			return backoff.Permanent(fmt.Errorf("%w: emailAddress cannot be empty for FindGmailAccountByEmail", apperrors.ErrBadRequest))
		}

		result := r.db.WithContext(ctx).
			Where("email_address = ? AND organization_id = ?", emailAddress, organizationID).
			First(&account)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return backoff.Permanent(fmt.Errorf("%w: email_address %s: %w", apperrors.ErrNotFound, emailAddress, result.Error))
			}
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindGmailAccountByEmail", operation)
	observer.ObserveDbOperationDuration("find_by_email", "gmail_account", organizationID, time.Since(startTime), findErr)

	if findErr != nil {
		if errors.Is(findErr, apperrors.ErrNotFound) || errors.Is(findErr, apperrors.ErrBadRequest) {
			return nil, findErr
		}
		loggerCtx.Error("Failed to find gmail account by email after retries",
			zap.String("email_address", emailAddress),
			zap.String("organization_id", organizationID),
			zap.Error(findErr))
		return nil, findErr
	}
	return &account, nil
}

// ListActiveGmailAccounts returns every mailbox the poller should sync.
func (r *PostgresRepo) ListActiveGmailAccounts(ctx context.Context) ([]model.GmailAccount, error) {
	organizationID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get organization ID from context: %w", apperrors.ErrUnauthorized, err)
	}
	loggerCtx := logger.FromContext(ctx)

	var accounts []model.GmailAccount
	operation := func() error {
		result := r.db.WithContext(ctx).
			Where("organization_id = ? AND active = true", organizationID).
			Order("email_address ASC").
			Find(&accounts)
		if result.Error != nil {
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "ListActiveGmailAccounts", operation)
	observer.ObserveDbOperationDuration("list_active", "gmail_account", organizationID, time.Since(startTime), findErr)

	if findErr != nil {
		loggerCtx.Error("Failed to list active gmail accounts after retries", zap.Error(findErr))
		return nil, findErr
	}
	if accounts == nil {
		return []model.GmailAccount{}, nil
	}
	return accounts, nil
}

// UpdateGmailTokens persists a refreshed access token and its expiry.
func (r *PostgresRepo) UpdateGmailTokens(ctx context.Context, accountID, accessToken string, tokenExpiry time.Time) error {
	organizationID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get organization ID from context: %w", apperrors.ErrUnauthorized, err)
	}

	operation := func() error {
		updates := map[string]interface{}{
			"access_token": accessToken,
			"token_expiry": tokenExpiry,
		}
		result := r.db.WithContext(ctx).Model(&model.GmailAccount{}).
			Where("id = ? AND organization_id = ?", accountID, organizationID).
			Updates(updates)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		if result.RowsAffected == 0 {
			return backoff.Permanent(fmt.Errorf("%w: gmail_account id %s", apperrors.ErrNotFound, accountID))
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "UpdateGmailTokens Commit", operation)
	observer.ObserveDbOperationDuration("update_tokens", "gmail_account", organizationID, time.Since(startTime), commitErr)
	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to update gmail tokens after retries",
			zap.String("gmail_account_id", accountID),
			zap.Error(commitErr))
		return commitErr
	}
	return nil
}

// UpdateGmailHistoryID advances the sync watermark. The watermark only ever
// moves forward; a lower candidate is left in place.
func (r *PostgresRepo) UpdateGmailHistoryID(ctx context.Context, accountID string, historyID uint64) error {
	organizationID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get organization ID from context: %w", apperrors.ErrUnauthorized, err)
	}

	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.GmailAccount{}).
			Where("id = ? AND organization_id = ? AND history_id < ?", accountID, organizationID, historyID).
			Update("history_id", historyID)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "UpdateGmailHistoryID Commit", operation)
	observer.ObserveDbOperationDuration("update_history_id", "gmail_account", organizationID, time.Since(startTime), commitErr)
	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to update gmail history ID after retries",
			zap.String("gmail_account_id", accountID),
			zap.Uint64("history_id", historyID),
			zap.Error(commitErr))
		return commitErr
	}
	return nil
}

// DeactivateGmailAccount takes a mailbox out of the polling rotation, used
// when the refresh token is revoked and a human must re-authorize.
func (r *PostgresRepo) DeactivateGmailAccount(ctx context.Context, accountID string) error {
	organizationID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get organization ID from context: %w", apperrors.ErrUnauthorized, err)
	}

	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.GmailAccount{}).
			Where("id = ? AND organization_id = ?", accountID, organizationID).
			Update("active", false)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		if result.RowsAffected == 0 {
			return backoff.Permanent(fmt.Errorf("%w: gmail_account id %s", apperrors.ErrNotFound, accountID))
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "DeactivateGmailAccount Commit", operation)
	observer.ObserveDbOperationDuration("deactivate", "gmail_account", organizationID, time.Since(startTime), commitErr)
	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to deactivate gmail account after retries",
			zap.String("gmail_account_id", accountID),
			zap.Error(commitErr))
		return commitErr
	}
	return nil
}

// UpdateGmailWatch stamps the provider-side watch registration window.
func (r *PostgresRepo) UpdateGmailWatch(ctx context.Context, accountID string, watchExpiry time.Time) error {
	organizationID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get organization ID from context: %w", apperrors.ErrUnauthorized, err)
	}

	operation := func() error {
		now := utils.Now()
		updates := map[string]interface{}{
			"watch_expiry":    watchExpiry,
			"last_watch_time": &now,
		}
		result := r.db.WithContext(ctx).Model(&model.GmailAccount{}).
			Where("id = ? AND organization_id = ?", accountID, organizationID).
			Updates(updates)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		if result.RowsAffected == 0 {
			return backoff.Permanent(fmt.Errorf("%w: gmail_account id %s", apperrors.ErrNotFound, accountID))
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "UpdateGmailWatch Commit", operation)
	observer.ObserveDbOperationDuration("update_watch", "gmail_account", organizationID, time.Since(startTime), commitErr)
	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to update gmail watch after retries",
			zap.String("gmail_account_id", accountID),
			zap.Error(commitErr))
		return commitErr
	}
	return nil
}

// ListExpiringGmailWatches returns active mailboxes whose watch registration
// expires before the given deadline (or was never registered).
func (r *PostgresRepo) ListExpiringGmailWatches(ctx context.Context, before time.Time) ([]model.GmailAccount, error) {
	organizationID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get organization ID from context: %w", apperrors.ErrUnauthorized, err)
	}
	loggerCtx := logger.FromContext(ctx)

	var accounts []model.GmailAccount
	operation := func() error {
		result := r.db.WithContext(ctx).
			Where("organization_id = ? AND active = true AND (watch_expiry IS NULL OR watch_expiry < ?)", organizationID, before).
			Find(&accounts)
		if result.Error != nil {
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "ListExpiringGmailWatches", operation)
	observer.ObserveDbOperationDuration("list_expiring_watches", "gmail_account", organizationID, time.Since(startTime), findErr)

	if findErr != nil {
		loggerCtx.Error("Failed to list expiring gmail watches after retries", zap.Error(findErr))
		return nil, findErr
	}
	if accounts == nil {
		return []model.GmailAccount{}, nil
	}
	return accounts, nil
}

// --- ProcessedGmailMessage Repository Methods ---

// IsGmailMessageProcessed reports whether the dedup ledger already holds the
// (account, message) pair.
func (r *PostgresRepo) IsGmailMessageProcessed(ctx context.Context, accountID, messageID string) (bool, error) {
	organizationID, err := tenant.FromContext(ctx)
	if err != nil {
		return false, fmt.Errorf("%w: failed to get organization ID from context: %w", apperrors.ErrUnauthorized, err)
	}
	loggerCtx := logger.FromContext(ctx)

	var count int64
	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.ProcessedGmailMessage{}).
			Where("gmail_account_id = ? AND message_id = ?", accountID, messageID).
			Count(&count)
		if result.Error != nil {
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "IsGmailMessageProcessed", operation)
	observer.ObserveDbOperationDuration("is_processed", "processed_gmail_message", organizationID, time.Since(startTime), findErr)

	if findErr != nil {
		loggerCtx.Error("Failed to check gmail dedup ledger after retries",
			zap.String("gmail_account_id", accountID),
			zap.String("message_id", messageID),
			zap.Error(findErr))
		return false, findErr
	}
	return count > 0, nil
}

// RecordProcessedGmailMessage appends to the dedup ledger. A duplicate insert
// is success: the message was already recorded by a concurrent or earlier run.
func (r *PostgresRepo) RecordProcessedGmailMessage(ctx context.Context, accountID, messageID string) error {
	organizationID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get organization ID from context: %w", apperrors.ErrUnauthorized, err)
	}

	entry := model.ProcessedGmailMessage{
		GmailAccountID: accountID,
		MessageID:      messageID,
	}
	operation := func() error {
		if createErr := r.db.WithContext(ctx).Create(&entry).Error; createErr != nil {
			mapped := checkConstraintViolation(createErr)
			if apperrors.IsDuplicateError(mapped) {
				return nil
			}
			return mapped
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "RecordProcessedGmailMessage Commit", operation)
	observer.ObserveDbOperationDuration("record_processed", "processed_gmail_message", organizationID, time.Since(startTime), commitErr)
	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to record processed gmail message after retries",
			zap.String("gmail_account_id", accountID),
			zap.String("message_id", messageID),
			zap.Error(commitErr))
		return commitErr
	}
	return nil
}
