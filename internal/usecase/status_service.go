package usecase

import (
	"context"
	"errors"
	"time"

	apperrors "gitlab.com/jackdesk/api/bcast-conversation-hub/internal/apperrors"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/tenant"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/validator"

	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/model"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/pkg/logger"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/pkg/utils"
	"go.uber.org/zap"
)

// statusRank orders delivery statuses so stale or duplicated callbacks
// cannot roll a message backwards. failed is terminal and always applies.
var statusRank = map[string]int{
	model.UserMessageStatusSentToServer: 0,
	model.UserMessageStatusSent:         1,
	model.UserMessageStatusDelivered:    2,
	model.UserMessageStatusRead:         3,
	model.UserMessageStatusFailed:       4,
}

// ProcessStatusEvent handles one provider delivery callback: it correlates
// the provider messageid back to the user message, advances its status, and
// on first confirmation marks the conversation as responded.
func (s *EventService) ProcessStatusEvent(ctx context.Context, payload model.StatusEventPayload, metadata *model.LastMetadata) error {
	log := logger.FromContext(ctx)
	start := utils.Now()

	// Validate input
	if err := validator.Validate(payload); err != nil {
		log.Error("Status event validation failed",
			zap.String("message_id", payload.MessageID),
			zap.String("message_status", payload.MessageStatus),
			zap.Error(err),
		)
		return apperrors.NewFatal(err, "status event validation failed")
	}

	// Extract organization ID
	organizationID, err := tenant.FromContext(ctx)
	if err != nil || organizationID == "" {
		log.Error("Failed to get organization ID from context", zap.Error(err))
		return apperrors.NewFatal(err, "failed to get organization ID from context")
	}

	// Validate that the payload organization matches the context organization
	if err := validateEventOrganization(ctx, payload.OrganizationID); err != nil {
		log.Error("OrganizationID validation failed for status event",
			zap.String("message_id", payload.MessageID),
			zap.String("payload_organization_id", payload.OrganizationID),
			zap.Error(err),
		)
		return apperrors.NewFatal(err, "status event OrganizationID mismatch")
	}

	// Correlate the provider messageid to the user message
	msg, err := s.messageRepo.FindUserByProviderID(ctx, payload.MessageID)
	if err != nil {
		logFields := []zap.Field{
			zap.String("provider_message_id", payload.MessageID),
			zap.String("message_status", payload.MessageStatus),
			zap.Error(err),
		}
		if errors.Is(err, apperrors.ErrNotFound) {
			// A status for a message this system never sent carries no work;
			// dropping it keeps redeliveries from writing anything.
			log.Warn("No user message for provider messageid, dropping status event", logFields...)
			return nil
		}
		if errors.Is(err, apperrors.ErrDatabase) || errors.Is(err, apperrors.ErrTimeout) || errors.Is(err, apperrors.ErrConflict) {
			log.Warn("Potentially retryable error correlating status event", logFields...)
			return apperrors.NewRetryable(err, "retryable repository error correlating status event")
		}
		log.Error("Fatal error correlating status event", logFields...)
		return apperrors.NewFatal(err, "fatal repository error correlating status event")
	}

	// Drop stale or duplicated transitions
	newRank, known := statusRank[payload.MessageStatus]
	if !known {
		log.Error("Unknown message status", zap.String("message_status", payload.MessageStatus))
		return apperrors.NewFatal(errors.New("unknown message status"), "unknown message status %s", payload.MessageStatus)
	}
	if currentRank, ok := statusRank[msg.Status]; ok && newRank <= currentRank {
		log.Info("Ignoring stale status transition",
			zap.String("provider_message_id", payload.MessageID),
			zap.String("current_status", msg.Status),
			zap.String("new_status", payload.MessageStatus),
		)
		return nil
	}

	if err := s.messageRepo.UpdateUserStatus(ctx, msg.ID, payload.MessageStatus, payload.ErrorDetails); err != nil {
		logFields := []zap.Field{
			zap.Int64("user_message_id", msg.ID),
			zap.String("message_status", payload.MessageStatus),
			zap.Error(err),
		}
		if errors.Is(err, apperrors.ErrNotFound) {
			log.Warn("User message disappeared before status update", logFields...)
			return nil
		}
		if errors.Is(err, apperrors.ErrDatabase) || errors.Is(err, apperrors.ErrTimeout) || errors.Is(err, apperrors.ErrConflict) {
			log.Warn("Potentially retryable error updating message status", logFields...)
			return apperrors.NewRetryable(err, "retryable repository error updating message status")
		}
		log.Error("Fatal error updating message status", logFields...)
		return apperrors.NewFatal(err, "fatal repository error updating message status")
	}

	// First provider confirmation means the organization has replied: the
	// conversation leaves "new" and the customer's messages are responded.
	// Providers can skip straight to delivered or read, so any rank at or
	// above sent counts; failed never does. MarkActive only touches rows
	// still in "new" and MarkIncomingResponded is idempotent, so firing on
	// later transitions is harmless.
	confirmed := payload.MessageStatus != model.UserMessageStatusFailed &&
		newRank >= statusRank[model.UserMessageStatusSent]
	if confirmed && msg.ConversationID != "" {
		if err := s.conversationRepo.MarkActive(ctx, msg.ConversationID); err != nil {
			log.Warn("Failed to mark conversation active",
				zap.String("conversation_id", msg.ConversationID),
				zap.Error(err),
			)
		}
		if err := s.messageRepo.MarkIncomingResponded(ctx, msg.ConversationID); err != nil {
			log.Warn("Failed to mark incoming messages responded",
				zap.String("conversation_id", msg.ConversationID),
				zap.Error(err),
			)
		}
	}

	// Best-effort realtime ping
	if s.notifier != nil {
		notification := model.RealtimeStatusPayload{
			ConversationID: msg.ConversationID,
			MessageID:      payload.MessageID,
			Status:         payload.MessageStatus,
			StatusDetails:  payload.ErrorDetails,
			OrganizationID: organizationID,
		}
		if err := s.notifier.NotifyStatus(ctx, notification); err != nil {
			log.Warn("Failed to publish realtime status notification",
				zap.String("provider_message_id", payload.MessageID),
				zap.Error(err),
			)
		}
	}

	log.Info("Successfully processed status event",
		zap.Int64("user_message_id", msg.ID),
		zap.String("message_status", payload.MessageStatus),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}
