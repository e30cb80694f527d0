package handler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/apperrors"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/model"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/tenant"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/pkg/logger"
	"go.uber.org/zap"
)

// StatusHandler processes provider delivery status callbacks
type StatusHandler struct {
	service StatusService
}

// StatusService defines the interface for status event processing
type StatusService interface {
	ProcessStatusEvent(ctx context.Context, payload model.StatusEventPayload, metadata *model.LastMetadata) error
}

// NewStatusHandler creates a new status event handler
func NewStatusHandler(service StatusService) *StatusHandler {
	return &StatusHandler{
		service: service,
	}
}

// HandleEvent processes status events
func (h *StatusHandler) HandleEvent(ctx context.Context, eventType model.EventType, metadata *model.MessageMetadata, rawEvent []byte) error {
	// Generate request ID
	requestID := uuid.NewString()
	ctx = tenant.WithRequestID(ctx, requestID)

	log := logger.FromContext(ctx)
	log.Info("Processing status event", zap.String("type", string(eventType)))

	lastMetadata := metadata.ToLastMetadata()
	switch eventType {
	case model.V1InboundStatus:
		return h.handleStatusEvent(ctx, lastMetadata, rawEvent)
	default:
		unsupportedErr := fmt.Errorf("unsupported status event type: %s", eventType)
		log.Error("Unsupported status event type", zap.String("eventType", string(eventType)))
		return apperrors.NewFatal(unsupportedErr, "unsupported status event type")
	}
}

// handleStatusEvent processes a single delivery status payload
func (h *StatusHandler) handleStatusEvent(ctx context.Context, metadata *model.LastMetadata, rawEvent []byte) error {
	log := logger.FromContext(ctx)

	var payload model.StatusEventPayload
	if err := json.Unmarshal(rawEvent, &payload); err != nil {
		log.Error("Failed to unmarshal status event payload", zap.Error(err))
		return apperrors.NewFatal(err, "failed to unmarshal status event payload")
	}

	// Basic validation
	if payload.MessageID == "" {
		validationErr := fmt.Errorf("message ID is required for status update")
		log.Error("Status event validation failed", zap.Error(validationErr))
		return apperrors.NewFatal(validationErr, "message ID is required for status update")
	}

	// Enrich payload with OrganizationID from metadata
	if payload.OrganizationID == "" {
		payload.OrganizationID = metadata.OrganizationID
	}

	log.Info("Processing status event",
		zap.String("message_id", payload.MessageID),
		zap.String("message_status", payload.MessageStatus))
	return h.service.ProcessStatusEvent(ctx, payload, metadata)
}
