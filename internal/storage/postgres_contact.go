package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
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

// --- Contact Repository Methods ---

// GetOrCreateContact resolves a contact by (address, platform_name) within the
// organization, creating it when absent. The row is locked FOR UPDATE so two
// concurrent inbound events for a brand-new contact serialize on the insert.
func (r *PostgresRepo) GetOrCreateContact(ctx context.Context, contact model.Contact) (*model.Contact, error) {
	organizationID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get organization ID from context: %w", apperrors.ErrUnauthorized, err)
	}
	if organizationID != contact.OrganizationID {
		return nil, fmt.Errorf("%w: contact OrganizationID %s does not match context organization %s", apperrors.ErrBadRequest, contact.OrganizationID, organizationID)
	}

	var resolved model.Contact
	operation := func() error {
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

		var existing model.Contact
		result := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("address = ? AND platform_name = ? AND organization_id = ?", contact.Address, contact.PlatformName, organizationID).
			First(&existing)
		findErr := result.Error

		if findErr != nil {
			if errors.Is(findErr, gorm.ErrRecordNotFound) {
				if contact.ID == "" {
					contact.ID = uuid.New().String()
				}
				if createErr := tx.Create(&contact).Error; createErr != nil {
					txErr = checkConstraintViolation(createErr)
					return txErr
				}
				resolved = contact
			} else {
				txErr = fmt.Errorf("%w: failed to lock contact row: %w", apperrors.ErrDatabase, findErr)
				return txErr
			}
		} else {
			resolved = existing
		}

		if commitErr := tx.Commit().Error; commitErr != nil {
			txErr = fmt.Errorf("%w: failed to commit get-or-create transaction: %w", apperrors.ErrDatabase, commitErr)
			return txErr
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "GetOrCreateContact Commit", operation)
	observer.ObserveDbOperationDuration("get_or_create", "contact", organizationID, time.Since(startTime), commitErr)
	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to get or create contact after retries", zap.Error(commitErr))
		return nil, commitErr
	}
	return &resolved, nil
}

// UpdateContactProfile refreshes the provider-sourced profile columns
// (name, avatar) and stamps profile_sync_at.
func (r *PostgresRepo) UpdateContactProfile(ctx context.Context, contactID, name, avatar string) error {
	organizationID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get organization ID from context: %w", apperrors.ErrUnauthorized, err)
	}

	operation := func() error {
		now := utils.Now()
		updates := map[string]interface{}{
			"name":            name,
			"avatar":          avatar,
			"profile_sync_at": &now,
		}
		result := r.db.WithContext(ctx).Model(&model.Contact{}).
			Where("id = ? AND organization_id = ?", contactID, organizationID).
			Updates(updates)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		if result.RowsAffected == 0 {
			return backoff.Permanent(fmt.Errorf("%w: contact_id %s", apperrors.ErrNotFound, contactID))
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "UpdateContactProfile Commit", operation)
	observer.ObserveDbOperationDuration("update_profile", "contact", organizationID, time.Since(startTime), commitErr)
	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to update contact profile after retries", zap.Error(commitErr))
		return commitErr
	}
	return nil
}

// FindContactByID finds a contact by its ID.
func (r *PostgresRepo) FindContactByID(ctx context.Context, id string) (*model.Contact, error) {
	organizationID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get organization ID from context: %w", apperrors.ErrUnauthorized, err)
	}
	loggerCtx := logger.FromContext(ctx)

	var contact model.Contact
	operation := func() error {
		result := r.db.WithContext(ctx).Where("id = ? AND organization_id = ?", id, organizationID).First(&contact)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: contact_id %s: %w", apperrors.ErrNotFound, id, result.Error)
			}
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindContactByID", operation)
	observer.ObserveDbOperationDuration("find_by_id", "contact", organizationID, time.Since(startTime), findErr)

	if findErr != nil {
		if errors.Is(findErr, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		loggerCtx.Error("Failed to find contact by ID after retries",
			zap.String("contact_id", id),
			zap.String("organization_id", organizationID),
			zap.Error(findErr))
		return nil, findErr
	}
	return &contact, nil
}

// FindContactByAddress finds a contact by its provider address on one platform.
func (r *PostgresRepo) FindContactByAddress(ctx context.Context, address, platformName string) (*model.Contact, error) {
	organizationID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get organization ID from context: %w", apperrors.ErrUnauthorized, err)
	}
	loggerCtx := logger.FromContext(ctx)

	var contact model.Contact
	operation := func() error {
		if address == "" {
			return backoff.Permanent(fmt.Errorf("%w: address cannot be empty for FindContactByAddress", apperrors.ErrBadRequest))
		}

		result := r.db.WithContext(ctx).
			Where("address = ? AND platform_name = ? AND organization_id = ?", address, platformName, organizationID).
			First(&contact)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return backoff.Permanent(fmt.Errorf("%w: address %s, platform %s: %w", apperrors.ErrNotFound, address, platformName, result.Error))
			}
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindContactByAddress", operation)
	observer.ObserveDbOperationDuration("find_by_address", "contact", organizationID, time.Since(startTime), findErr)

	if findErr != nil {
		if errors.Is(findErr, apperrors.ErrNotFound) || errors.Is(findErr, apperrors.ErrBadRequest) {
			return nil, findErr
		}
		loggerCtx.Error("Failed to find contact by address after retries",
			zap.String("address", address),
			zap.String("platform_name", platformName),
			zap.String("organization_id", organizationID),
			zap.Error(findErr))
		return nil, findErr
	}
	return &contact, nil
}

// ListGroupContacts returns every contact that is a member of the given group.
func (r *PostgresRepo) ListGroupContacts(ctx context.Context, groupID string) ([]model.Contact, error) {
	organizationID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get organization ID: %w", apperrors.ErrUnauthorized, err)
	}
	loggerCtx := logger.FromContext(ctx)

	var contacts []model.Contact
	operation := func() error {
		// Two-step lookup keeps every table reference schema-qualified by the
		// Namer; a raw JOIN string would bypass it.
		var memberIDs []string
		if err := r.db.WithContext(ctx).Model(&model.ContactGroupMember{}).
			Where("group_id = ?", groupID).
			Pluck("contact_id", &memberIDs).Error; err != nil {
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, err)
		}
		if len(memberIDs) == 0 {
			contacts = []model.Contact{}
			return nil
		}
		result := r.db.WithContext(ctx).
			Where("id IN ? AND organization_id = ?", memberIDs, organizationID).
			Order("created_at ASC").
			Find(&contacts)
		if result.Error != nil {
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil // Success, even if no records found
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "ListGroupContacts", operation)
	observer.ObserveDbOperationDuration("list_group_members", "contact", organizationID, time.Since(startTime), findErr)

	if findErr != nil {
		loggerCtx.Error("Failed to list group contacts after retries",
			zap.String("group_id", groupID),
			zap.String("organization_id", organizationID),
			zap.Error(findErr))
		return nil, findErr
	}
	if contacts == nil {
		return []model.Contact{}, nil
	}
	return contacts, nil
}
