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

// InboundHandler processes customer-originated message events
type InboundHandler struct {
	service ConversationService
}

// ConversationService defines the interface for inbound message processing
type ConversationService interface {
	ProcessInboundMessage(ctx context.Context, payload model.InboundMessagePayload, metadata *model.LastMetadata) error
}

// NewInboundHandler creates a new inbound message event handler
func NewInboundHandler(service ConversationService) *InboundHandler {
	return &InboundHandler{
		service: service,
	}
}

// HandleEvent processes inbound message events
func (h *InboundHandler) HandleEvent(ctx context.Context, eventType model.EventType, metadata *model.MessageMetadata, rawEvent []byte) error {
	// Generate request ID
	requestID := uuid.NewString()
	ctx = tenant.WithRequestID(ctx, requestID)

	log := logger.FromContext(ctx)
	log.Info("Processing inbound event", zap.String("type", string(eventType)))

	lastMetadata := metadata.ToLastMetadata()
	switch eventType {
	case model.V1InboundMessage:
		return h.handleInboundMessage(ctx, lastMetadata, rawEvent)
	default:
		unsupportedErr := fmt.Errorf("unsupported inbound event type: %s", eventType)
		log.Error("Unsupported inbound event type", zap.String("eventType", string(eventType)))
		return apperrors.NewFatal(unsupportedErr, "unsupported inbound event type")
	}
}

// handleInboundMessage processes a single customer message payload
func (h *InboundHandler) handleInboundMessage(ctx context.Context, metadata *model.LastMetadata, rawEvent []byte) error {
	log := logger.FromContext(ctx)

	var payload model.InboundMessagePayload
	if err := json.Unmarshal(rawEvent, &payload); err != nil {
		log.Error("Failed to unmarshal inbound message payload", zap.Error(err))
		// Malformed JSON can never succeed on redelivery
		return apperrors.NewFatal(err, "failed to unmarshal inbound message payload")
	}

	// Enrich payload with OrganizationID from metadata
	if payload.OrganizationID == "" {
		payload.OrganizationID = metadata.OrganizationID
	}

	log.Info("Processing inbound message",
		zap.String("channel_id", payload.ChannelID),
		zap.String("provider_message_id", payload.ProviderMessageID),
		zap.String("app_name", payload.AppName))
	return h.service.ProcessInboundMessage(ctx, payload, metadata)
}
