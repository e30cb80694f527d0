package storage

import (
	"context"
	"time"

	"go.uber.org/zap"

	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/model"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/observer"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/tenant"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/pkg/logger"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/pkg/utils"
)

// SaveExhaustedEvent saves an exhausted DLQ event to the database.
// This method is part of the PostgresRepo struct defined in postgres.go
func (r *PostgresRepo) SaveExhaustedEvent(ctx context.Context, event model.ExhaustedEvent) error {
	organizationID, err := tenant.FromContext(ctx)
	if err != nil {
		// The metric label degrades gracefully when tenant context is missing
		logger.FromContext(ctx).Warn("Failed to get tenant ID for exhausted event metric", zap.Error(err))
		organizationID = "unknown"
	}

	operation := func() error {
		// Simple create, no upsert needed for exhausted events (assuming they are unique by nature)
		result := r.db.WithContext(ctx).Create(&event)
		if result.Error != nil {
			// Check for specific DB errors if needed, otherwise wrap generically
			return checkConstraintViolation(result.Error) // Use the common error checker
		}
		return nil
	}

	// Use a standard commit retry policy
	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime) // Defined in postgres.go
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "SaveExhaustedEvent Commit", operation) // Defined in postgres.go
	observer.ObserveDbOperationDuration("save", "exhausted_event", organizationID, time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to save exhausted event after retries",
			zap.String("source_subject", event.SourceSubject),
			zap.String("organization_id", event.OrganizationID),
			zap.Error(commitErr))
		return commitErr // Already wrapped
	}

	logger.FromContext(ctx).Info("Successfully saved exhausted event", zap.Uint("event_id", event.ID), zap.String("source_subject", event.SourceSubject))
	return nil
}
